package executor

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relayforge/relayforge/internal/core/domain"
)

func TestToProviderError(t *testing.T) {
	tests := []struct {
		name string
		in   *envelopeError
		want domain.ProviderErrorKind
	}{
		{"nil envelope", nil, domain.ErrOther},
		{"http", &envelopeError{Kind: "http", HTTPStatus: 503, Body: "unavailable"}, domain.ErrHTTP},
		{"validation", &envelopeError{Kind: "validation_error", Details: "bad query"}, domain.ErrValidation},
		{"unsupported", &envelopeError{Kind: "unsupported_request"}, domain.ErrUnsupportedRequest},
		{"invocation", &envelopeError{Kind: "invocation", Message: "panic in guest"}, domain.ErrInvocation},
		{"unknown kind", &envelopeError{Kind: "something_new"}, domain.ErrOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toProviderError(tt.in)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestStatusPayload(t *testing.T) {
	var decoded map[string]string
	require := assert.New(t)
	require.NoError(json.Unmarshal(StatusPayload(), &decoded))
	require.Equal(StatusQueryType, decoded["query_type"])
}

func TestMaterializeModule_RoundTrips(t *testing.T) {
	content := []byte("\x00asm-fake-module-bytes")
	path, cleanup, err := materializeModule("prometheus", content)
	assert.NoError(t, err)
	defer cleanup()
	assert.FileExists(t, path)

	got, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, content, got)
}
