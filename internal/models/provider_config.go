package models

// ProviderConfig holds per-provider settings for credential validation and
// secret classification (unified for both YAML config and request overrides)
type ProviderConfig struct {
	BaseURL      string            `yaml:"base_url" json:"base_url,omitzero"`           // Optional custom base URL
	TimeoutMs    int               `yaml:"timeout_ms" json:"timeout_ms,omitzero"`       // Optional timeout in milliseconds
	Headers      map[string]string `yaml:"headers" json:"headers,omitzero"`             // Optional custom headers
	SecretFields []string          `yaml:"secret_fields" json:"secret_fields,omitzero"` // Credential fields treated as secret inputs
}

// DefaultSecretFields is applied when a provider declares no explicit secret
// classification. Matches the common credential schemas.
var DefaultSecretFields = []string{"api_key", "secret_key", "api_secret"}
