// Package registry holds the Provider Registry: the two immutable maps that
// tie a data source's configured provider_type to its compiled module bytes,
// plus the per-data-source status the Health Checker keeps fresh.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/relayforge/relayforge/internal/config"
	"github.com/relayforge/relayforge/internal/core/domain"
	"github.com/relayforge/relayforge/internal/logger"
)

// ModuleValidator compiles a provider module file once at startup, failing
// fast if the module doesn't load, and returns its bytes for the Invocation
// Executor. The Invocation Executor (adapter/executor) implements this so
// the Registry never needs to know how the sandbox runtime works.
type ModuleValidator interface {
	Validate(ctx context.Context, wasmDir, providerType string) ([]byte, error)
}

// ErrNotFound is returned by lookup operations that miss.
var ErrNotFound = fmt.Errorf("not found")

type entry struct {
	dataSource domain.DataSource // Name/ProviderType/Description/Config: fixed at construction

	mu     sync.RWMutex
	status domain.DataSourceStatus
}

// Registry is the Provider Registry (spec §4.A). modules and the set of
// known data source names are fixed at construction (invariant I3); only
// each entry's status may change afterward, via SetStatus.
type Registry struct {
	modules     map[string][]byte
	dataSources *xsync.Map[domain.Name, *entry]
	names       []domain.Name // construction order, for a stable list()
	log         *logger.StyledLogger
}

// New builds the registry from the configured data sources. For every
// distinct provider_type referenced, the module at <wasmDir>/<type>.wasm is
// validated once via validator.Validate; a data source whose provider_type
// fails validation, or has no module at all, is kept in the registry with an
// Invocation error status rather than dropped, so the control plane learns
// about it. Every validator error is handled this way, including one caused
// by wasmDir itself being missing; New returns an error only for a data
// source with an invalid name.
func New(ctx context.Context, sources []config.DataSourceConfig, wasmDir string, validator ModuleValidator, log *logger.StyledLogger) (*Registry, error) {
	r := &Registry{
		modules:     make(map[string][]byte),
		dataSources: xsync.NewMap[domain.Name, *entry](),
		names:       make([]domain.Name, 0, len(sources)),
		log:         log,
	}

	for _, src := range sources {
		name := domain.Name(src.Name)
		if err := name.Validate(); err != nil {
			return nil, fmt.Errorf("data source %q: %w", src.Name, err)
		}

		ds := domain.DataSource{
			Name:         name,
			ProviderType: src.ProviderType,
			Description:  src.Description,
			Config:       src.Config,
		}

		status := domain.NotCheckedStatus()
		if _, ok := r.modules[src.ProviderType]; !ok {
			moduleBytes, err := validator.Validate(ctx, wasmDir, src.ProviderType)
			if err != nil {
				log.WarnWithDataSource("provider module failed to load, keeping data source with error status", name, "provider_type", src.ProviderType, "err", err)
				status = domain.ErrorStatus(domain.NewInvocationError("unknown provider"))
			} else {
				r.modules[src.ProviderType] = moduleBytes
			}
		}

		r.dataSources.Store(name, &entry{dataSource: ds, status: status})
		r.names = append(r.names, name)
	}

	log.InfoWithCount("provider registry initialised", len(r.names))
	return r, nil
}

// LookupDataSource returns the provider_type and config for name.
func (r *Registry) LookupDataSource(name domain.Name) (domain.DataSource, error) {
	e, ok := r.dataSources.Load(name)
	if !ok {
		return domain.DataSource{}, ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	ds := e.dataSource
	ds.Status = e.status
	return ds, nil
}

// ModuleFor returns the compiled module bytes for providerType.
func (r *Registry) ModuleFor(providerType string) ([]byte, error) {
	b, ok := r.modules[providerType]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// SetStatus updates a data source's status in place. Returns false if the
// status is unchanged (the Health Checker uses this to debounce).
func (r *Registry) SetStatus(name domain.Name, status domain.DataSourceStatus) bool {
	e, ok := r.dataSources.Load(name)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Equal(status) {
		return false
	}
	e.status = status
	return true
}

// List returns a snapshot of every configured data source with its current
// status, in the order they were configured.
func (r *Registry) List() []domain.DataSource {
	out := make([]domain.DataSource, 0, len(r.names))
	for _, name := range r.names {
		e, ok := r.dataSources.Load(name)
		if !ok {
			continue
		}
		e.mu.RLock()
		ds := e.dataSource
		ds.Status = e.status
		e.mu.RUnlock()
		out = append(out, ds)
	}
	return out
}
