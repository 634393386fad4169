// Package executor implements the Invocation Executor: it turns a
// (provider_type, config, request bytes) triple into a response by running
// the provider's module through a sandboxed wasmtime process, fresh per
// call.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/relayforge/relayforge/internal/core/domain"
	"github.com/relayforge/relayforge/internal/logger"
	"github.com/relayforge/relayforge/pkg/pool"
)

// bufferPool recycles the *bytes.Buffer pair capturing sandbox stdout/stderr
// across invocations: every Invoke spawns a fresh sandbox process, but the
// buffers themselves don't need a fresh allocation each time. bytes.Buffer's
// own Reset satisfies pool.Resettable.
var bufferPool = pool.NewLitePool(func() *bytes.Buffer { return new(bytes.Buffer) })

const (
	// StatusQueryType is the well-known query_type the Health Checker sends
	// to ask a provider module for its current connectivity status.
	StatusQueryType = "status"

	DefaultTimeout = 30 * time.Second
)

// ModuleSource is the subset of the Provider Registry the Executor needs:
// the compiled module bytes for a provider_type.
type ModuleSource interface {
	ModuleFor(providerType string) ([]byte, error)
}

type Config struct {
	WasmtimeBin string // defaults to "wasmtime", resolved via PATH
	Timeout     time.Duration
}

func DefaultConfig() Config {
	return Config{WasmtimeBin: "wasmtime", Timeout: DefaultTimeout}
}

// Executor is the Invocation Executor (spec §4.B). It is stateless between
// calls: every Invoke spawns its own sandbox process and tears it down
// afterward.
type Executor struct {
	registry ModuleSource
	cfg      Config
	log      *logger.StyledLogger
}

func New(registry ModuleSource, cfg Config, log *logger.StyledLogger) *Executor {
	if cfg.WasmtimeBin == "" {
		cfg.WasmtimeBin = "wasmtime"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Executor{registry: registry, cfg: cfg, log: log}
}

// SetRegistry binds the Provider Registry after construction. The Registry
// itself needs an Executor as its ModuleValidator at construction time, so
// main wires an Executor with no registry first, builds the Registry against
// it, then completes the cycle with SetRegistry before any Invoke call.
func (e *Executor) SetRegistry(registry ModuleSource) {
	e.registry = registry
}

// Validate implements registry.ModuleValidator: it compiles the module file
// once, at startup, to fail fast on a missing or malformed module, and
// returns the raw bytes for later invocations.
func (e *Executor) Validate(ctx context.Context, wasmDir, providerType string) ([]byte, error) {
	path := filepath.Join(wasmDir, providerType+".wasm")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", path, err)
	}

	tmp, err := os.CreateTemp("", "relayforge-validate-*.cwasm")
	if err != nil {
		return nil, fmt.Errorf("create validation temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	cctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(cctx, e.cfg.WasmtimeBin, "compile", path, "-o", tmpPath)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("compile %s: %w: %s", path, err, stderr.String())
	}

	return b, nil
}

type sandboxRequest struct {
	Config  map[string]any `json:"config"`
	Payload []byte         `json:"payload"`
}

// Invoke runs the module for providerType with config and payload, returning
// the response bytes on success or a typed ProviderError otherwise.
func (e *Executor) Invoke(ctx context.Context, providerType string, config map[string]any, payload []byte) ([]byte, *domain.ProviderError) {
	moduleBytes, err := e.registry.ModuleFor(providerType)
	if err != nil {
		perr := domain.NewInvocationError(fmt.Sprintf("module for provider type %q not found", providerType))
		return nil, &perr
	}

	modulePath, cleanup, err := materializeModule(providerType, moduleBytes)
	if err != nil {
		perr := domain.NewInvocationError(err.Error())
		return nil, &perr
	}
	defer cleanup()

	reqBody, err := json.Marshal(sandboxRequest{Config: config, Payload: payload})
	if err != nil {
		perr := domain.NewInvocationError(fmt.Sprintf("marshal sandbox request: %v", err))
		return nil, &perr
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	stdout := bufferPool.Get()
	stderr := bufferPool.Get()
	defer bufferPool.Put(stdout)
	defer bufferPool.Put(stderr)

	cmd := exec.CommandContext(cctx, e.cfg.WasmtimeBin, "run", modulePath)
	cmd.Stdin = bytes.NewReader(reqBody)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if runErr := cmd.Run(); runErr != nil {
		e.log.Warn("sandbox invocation failed", "provider_type", providerType, "err", runErr, "stderr", stderr.String())
		perr := domain.NewInvocationError(fmt.Sprintf("sandbox execution failed: %v", runErr))
		return nil, &perr
	}

	var env envelope
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		perr := domain.NewDeserializationError(fmt.Sprintf("malformed provider envelope: %v", err))
		return nil, &perr
	}

	if env.OK {
		return env.Data, nil
	}

	perr := toProviderError(env.Error)
	return nil, &perr
}

// StatusPayload is the canonical status-query request body the Health
// Checker submits through Invoke on each status_interval tick.
func StatusPayload() []byte {
	b, _ := json.Marshal(map[string]string{"query_type": StatusQueryType})
	return b
}

func materializeModule(providerType string, moduleBytes []byte) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", fmt.Sprintf("relayforge-%s-*.wasm", providerType))
	if err != nil {
		return "", nil, fmt.Errorf("create sandbox module file: %w", err)
	}
	if _, err := f.Write(moduleBytes); err != nil {
		_ = f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("write sandbox module file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("close sandbox module file: %w", err)
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

func toProviderError(e *envelopeError) domain.ProviderError {
	if e == nil {
		return domain.NewOtherError("provider returned error envelope with no details")
	}
	switch domain.ProviderErrorKind(e.Kind) {
	case domain.ErrHTTP:
		return domain.NewHTTPError(e.HTTPStatus, []byte(e.Body))
	case domain.ErrValidation:
		return domain.NewValidationError(e.Details)
	case domain.ErrUnsupportedRequest:
		return domain.ProviderError{Kind: domain.ErrUnsupportedRequest, Message: e.Message}
	case domain.ErrNotFound:
		return domain.ProviderError{Kind: domain.ErrNotFound, Message: e.Message}
	case domain.ErrConfig:
		return domain.NewConfigError(e.Message)
	case domain.ErrInvocation:
		return domain.NewInvocationError(e.Message)
	default:
		return domain.NewOtherError(e.Message)
	}
}
