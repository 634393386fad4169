package config

import "time"

// Config holds all configuration for relayforged, mirroring spec.md §6's
// configuration surface plus the ambient blocks every long-lived service
// carries (server/logging/telemetry).
type Config struct {
	ControlPlane ControlPlaneConfig `yaml:"control_plane" mapstructure:"control_plane"`
	Provider     ProviderConfig     `yaml:"provider" mapstructure:"provider"`
	Health       HealthConfig       `yaml:"health" mapstructure:"health"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" mapstructure:"telemetry"`
}

// ControlPlaneConfig configures the outbound WebSocket session.
type ControlPlaneConfig struct {
	Endpoint          string        `yaml:"endpoint" mapstructure:"endpoint"`
	WorkspaceID       string        `yaml:"workspace_id" mapstructure:"workspace_id"`
	ProxyName         string        `yaml:"proxy_name" mapstructure:"proxy_name"`
	Token             string        `yaml:"token" mapstructure:"token"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout" mapstructure:"inactivity_timeout"`
	MaxConnectRetries int           `yaml:"max_connect_retries" mapstructure:"max_connect_retries"`
	BackoffBase       time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`
	BackoffMax        time.Duration `yaml:"backoff_max" mapstructure:"backoff_max"`
}

// ProviderConfig points at the provider module directory and the
// statically configured data sources, and bounds the Dispatcher's worker
// pool.
type ProviderConfig struct {
	WasmDir               string             `yaml:"wasm_dir" mapstructure:"wasm_dir"`
	MaxConcurrentRequests int                `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
	DataSources           []DataSourceConfig `yaml:"data_sources" mapstructure:"data_sources"`
}

// DataSourceConfig is one decoded record from the data-source configuration
// file (spec.md §6); parsing that file is out of core scope, this struct is
// the decoded shape the core consumes.
type DataSourceConfig struct {
	Name         string         `yaml:"name" mapstructure:"name"`
	ProviderType string         `yaml:"providerType" mapstructure:"providerType"`
	Description  string         `yaml:"description" mapstructure:"description"`
	Config       map[string]any `yaml:"config" mapstructure:"config"`
}

// HealthConfig configures the Health Checker.
type HealthConfig struct {
	StatusInterval time.Duration `yaml:"status_interval" mapstructure:"status_interval"`
}

// ServerConfig configures the optional local health/metrics HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr" mapstructure:"listen_addr"` // empty disables it
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	ProfilerAddr    string        `yaml:"profiler_addr" mapstructure:"profiler_addr"` // empty disables pprof
}

// LoggingConfig configures the ambient slog/pterm/lumberjack logging stack.
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Theme      string `yaml:"theme" mapstructure:"theme"`
	FileOutput bool   `yaml:"file_output" mapstructure:"file_output"`
	LogDir     string `yaml:"log_dir" mapstructure:"log_dir"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`
}

// TelemetryConfig configures the ambient Prometheus metrics surface.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}
