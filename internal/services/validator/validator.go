// Package validator checks submitted provider credentials by making the
// cheapest authenticated call each provider offers. A rejected key is a data
// outcome, not an error: it comes back as a non-success OperationResult whose
// message is rendered next to the offending field.
package validator

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/modelgate/credential-engine/internal/models"
)

// Validator probes one provider's API with the given credentials.
type Validator interface {
	Provider() string
	Validate(ctx context.Context, model *models.CustomModel, credentials map[string]any) (*models.OperationResult, error)
}

// Registry holds one validator per supported provider.
type Registry struct {
	validators map[string]Validator
}

// NewRegistry builds validators for every supported provider, applying any
// per-provider overrides from configs (base URL, headers, timeout).
func NewRegistry(configs map[string]models.ProviderConfig) *Registry {
	r := &Registry{validators: make(map[string]Validator)}
	for _, v := range []Validator{
		NewOpenAIValidator(configs["openai"]),
		NewAnthropicValidator(configs["anthropic"]),
		NewGeminiValidator(configs["gemini"]),
	} {
		r.validators[v.Provider()] = v
	}
	return r
}

// Validator returns the validator for provider, or false when the provider has
// no live probe and credentials must be accepted as-is.
func (r *Registry) Validator(provider string) (Validator, bool) {
	v, ok := r.validators[provider]
	return v, ok
}

func apiKey(credentials map[string]any) (string, *models.OperationResult) {
	raw, ok := credentials["api_key"]
	if !ok {
		return "", failure("api_key is required")
	}
	key, ok := raw.(string)
	if !ok || key == "" {
		return "", failure("api_key is required")
	}
	if key == models.HiddenValue {
		return "", failure("api_key was not resolved from storage")
	}
	return key, nil
}

func failure(message string) *models.OperationResult {
	return &models.OperationResult{Result: "failed", Error: message}
}

func success() *models.OperationResult {
	return &models.OperationResult{Result: models.ResultSuccess}
}

// clientKey derives a cache key from the secret without retaining it.
func clientKey(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:16])
}
