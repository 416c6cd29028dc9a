package validator

import (
	"testing"

	"github.com/modelgate/credential-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(nil)

	for _, provider := range []string{"openai", "anthropic", "gemini"} {
		v, ok := r.Validator(provider)
		require.True(t, ok, provider)
		assert.Equal(t, provider, v.Provider())
	}

	_, ok := r.Validator("unknown")
	assert.False(t, ok)
}

func TestAPIKeyGuards(t *testing.T) {
	tests := []struct {
		name        string
		credentials map[string]any
		wantError   string
	}{
		{name: "missing", credentials: map[string]any{}, wantError: "api_key is required"},
		{name: "empty", credentials: map[string]any{"api_key": ""}, wantError: "api_key is required"},
		{name: "wrong type", credentials: map[string]any{"api_key": 42}, wantError: "api_key is required"},
		{name: "unresolved sentinel", credentials: map[string]any{"api_key": models.HiddenValue}, wantError: "api_key was not resolved from storage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, bad := apiKey(tt.credentials)
			assert.Empty(t, key)
			require.NotNil(t, bad)
			assert.False(t, bad.Success())
			assert.Equal(t, tt.wantError, bad.Error)
		})
	}

	key, bad := apiKey(map[string]any{"api_key": "sk-valid"})
	assert.Nil(t, bad)
	assert.Equal(t, "sk-valid", key)
}

func TestClientKeyStableAndDistinct(t *testing.T) {
	assert.Equal(t, clientKey("openai", "sk-1"), clientKey("openai", "sk-1"))
	assert.NotEqual(t, clientKey("openai", "sk-1"), clientKey("openai", "sk-2"))
	// The separator keeps part boundaries unambiguous.
	assert.NotEqual(t, clientKey("a", "bc"), clientKey("ab", "c"))
}
