package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultMaxConcurrentRequests = 5
	DefaultStatusInterval        = 5 * time.Minute
	MinStatusInterval            = 1 * time.Second
	DefaultInactivityTimeout     = 45 * time.Second
	DefaultMaxConnectRetries     = 1
	DefaultBackoffBase           = 1 * time.Second
	DefaultBackoffMax            = 60 * time.Second

	DefaultFileWriteDelay = 150 * time.Millisecond // small delay to ensure the file write is complete
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with the defaults spec.md §6 names.
func DefaultConfig() *Config {
	return &Config{
		ControlPlane: ControlPlaneConfig{
			InactivityTimeout: DefaultInactivityTimeout,
			MaxConnectRetries: DefaultMaxConnectRetries,
			BackoffBase:       DefaultBackoffBase,
			BackoffMax:        DefaultBackoffMax,
		},
		Provider: ProviderConfig{
			MaxConcurrentRequests: DefaultMaxConcurrentRequests,
		},
		Health: HealthConfig{
			StatusInterval: DefaultStatusInterval,
		},
		Server: ServerConfig{
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			FileOutput: true,
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}
}

// Normalise clamps configurable values to the floors spec.md §4.C/§4.E name.
func (c *Config) Normalise() {
	if c.Health.StatusInterval < MinStatusInterval {
		c.Health.StatusInterval = MinStatusInterval
	}
	if c.Provider.MaxConcurrentRequests < 1 {
		c.Provider.MaxConcurrentRequests = 1
	}
}

// Load loads configuration from file and environment variables, following
// the same viper + fsnotify wiring the rest of the pack uses for config
// hot-reload. Each call builds its own *viper.Viper rather than reaching for
// the package-level singleton, so concurrent callers (and tests) don't
// trample each other's registered paths and env bindings.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("RELAYFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("RELAYFORGE_CONFIG_FILE"); configFile != "" {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Normalise()

	v.WatchConfig()

	if onConfigChange != nil {
		v.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // ignore rapid-fire duplicate events
			}
			lastReload = now

			// some filesystems fire the event before the write finishes
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return cfg, nil
}

// bindDefaults registers every leaf config key with viper's defaults map.
// AutomaticEnv alone only checks the environment reactively for keys viper
// already knows about through SetDefault/BindEnv/a loaded config file - an
// env var for a key nobody ever registered is invisible to Unmarshal. This
// walks DefaultConfig's values so every RELAYFORGE_* override actually
// surfaces.
func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("control_plane.endpoint", cfg.ControlPlane.Endpoint)
	v.SetDefault("control_plane.workspace_id", cfg.ControlPlane.WorkspaceID)
	v.SetDefault("control_plane.proxy_name", cfg.ControlPlane.ProxyName)
	v.SetDefault("control_plane.token", cfg.ControlPlane.Token)
	v.SetDefault("control_plane.inactivity_timeout", cfg.ControlPlane.InactivityTimeout)
	v.SetDefault("control_plane.max_connect_retries", cfg.ControlPlane.MaxConnectRetries)
	v.SetDefault("control_plane.backoff_base", cfg.ControlPlane.BackoffBase)
	v.SetDefault("control_plane.backoff_max", cfg.ControlPlane.BackoffMax)

	v.SetDefault("provider.wasm_dir", cfg.Provider.WasmDir)
	v.SetDefault("provider.max_concurrent_requests", cfg.Provider.MaxConcurrentRequests)
	v.SetDefault("provider.data_sources", cfg.Provider.DataSources)

	v.SetDefault("health.status_interval", cfg.Health.StatusInterval)

	v.SetDefault("server.listen_addr", cfg.Server.ListenAddr)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.profiler_addr", cfg.Server.ProfilerAddr)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.theme", cfg.Logging.Theme)
	v.SetDefault("logging.file_output", cfg.Logging.FileOutput)
	v.SetDefault("logging.log_dir", cfg.Logging.LogDir)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)

	v.SetDefault("telemetry.metrics.enabled", cfg.Telemetry.Metrics.Enabled)
}
