package registry

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/internal/config"
	"github.com/relayforge/relayforge/internal/core/domain"
	"github.com/relayforge/relayforge/internal/logger"
	"github.com/relayforge/relayforge/theme"
)

type stubValidator struct {
	known map[string][]byte
}

func (s *stubValidator) Validate(_ context.Context, _, providerType string) ([]byte, error) {
	b, ok := s.known[providerType]
	if !ok {
		return nil, fmt.Errorf("module for %q not found", providerType)
	}
	return b, nil
}

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.DiscardHandler), theme.Default(), false)
}

func TestNew_UnknownProviderTypeKeptWithInvocationError(t *testing.T) {
	validator := &stubValidator{known: map[string][]byte{"prometheus": []byte("wasm-bytes")}}
	sources := []config.DataSourceConfig{
		{Name: "metrics-a", ProviderType: "prometheus"},
		{Name: "logs-a", ProviderType: "loki"},
	}

	r, err := New(context.Background(), sources, "/wasm", validator, testLogger())
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 2)

	logsEntry, err := r.LookupDataSource("logs-a")
	require.NoError(t, err)
	assert.False(t, logsEntry.Status.Connected)
	require.NotNil(t, logsEntry.Status.Err)
	assert.Equal(t, domain.ErrInvocation, logsEntry.Status.Err.Kind)

	metricsEntry, err := r.LookupDataSource("metrics-a")
	require.NoError(t, err)
	assert.Equal(t, domain.ErrNotChecked, metricsEntry.Status.Err.Kind)
}

func TestLookupDataSource_NotFound(t *testing.T) {
	r, err := New(context.Background(), nil, "/wasm", &stubValidator{known: map[string][]byte{}}, testLogger())
	require.NoError(t, err)

	_, err = r.LookupDataSource("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModuleFor(t *testing.T) {
	validator := &stubValidator{known: map[string][]byte{"prometheus": []byte("wasm-bytes")}}
	sources := []config.DataSourceConfig{{Name: "metrics-a", ProviderType: "prometheus"}}

	r, err := New(context.Background(), sources, "/wasm", validator, testLogger())
	require.NoError(t, err)

	b, err := r.ModuleFor("prometheus")
	require.NoError(t, err)
	assert.Equal(t, []byte("wasm-bytes"), b)

	_, err = r.ModuleFor("loki")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatus_DebouncesIdenticalStatus(t *testing.T) {
	validator := &stubValidator{known: map[string][]byte{"prometheus": []byte("wasm-bytes")}}
	sources := []config.DataSourceConfig{{Name: "metrics-a", ProviderType: "prometheus"}}

	r, err := New(context.Background(), sources, "/wasm", validator, testLogger())
	require.NoError(t, err)

	changed := r.SetStatus("metrics-a", domain.ConnectedStatus())
	assert.True(t, changed, "first transition from NotChecked to Connected should report a change")

	changed = r.SetStatus("metrics-a", domain.ConnectedStatus())
	assert.False(t, changed, "identical consecutive status should debounce")

	changed = r.SetStatus("metrics-a", domain.ErrorStatus(domain.NewHTTPError(503, nil)))
	assert.True(t, changed)
}

func TestSetStatus_UnknownNameNoop(t *testing.T) {
	r, err := New(context.Background(), nil, "/wasm", &stubValidator{known: map[string][]byte{}}, testLogger())
	require.NoError(t, err)

	assert.False(t, r.SetStatus("ghost", domain.ConnectedStatus()))
}
