package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/modelgate/credential-engine/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server    models.ServerConfig             `yaml:"server"`
	Workspace models.WorkspaceConfig          `yaml:"workspace"`
	AdminAuth models.AdminAuthConfig          `yaml:"admin_auth"`
	Providers map[string]models.ProviderConfig `yaml:"providers"`
	Database  *models.DatabaseConfig          `yaml:"database,omitempty"`
	Redis     *models.RedisConfig             `yaml:"redis,omitempty"`
}

// LoadFromFile loads configuration from a YAML file with environment variable substitution
func LoadFromFile(configPath string) (*Config, error) {
	// Validate and clean the file path to prevent directory traversal
	cleanPath := filepath.Clean(configPath)

	// Ensure the path doesn't contain directory traversal attempts
	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	// Restrict to certain file extensions for security
	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	// Read the file
	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	// Substitute environment variables
	content := substituteEnvVars(string(data))

	// Parse YAML with env vars substituted
	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Normalize provider map keys to lowercase for case-insensitive lookups
	if config.Providers != nil {
		normalizedProviders := make(map[string]models.ProviderConfig, len(config.Providers))
		for key, value := range config.Providers {
			normalizedProviders[strings.ToLower(key)] = value
		}
		config.Providers = normalizedProviders
	}

	return &config, nil
}

// LoadEnvFiles loads environment variables from .env files in order of precedence
// Loads files in the order provided (first has highest priority)
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			// File exists, try to load it
			if err := godotenv.Load(envFile); err == nil {
				fmt.Printf("Loaded environment variables from %s\n", envFile)
			}
		}
	}
}

// New creates a new Config instance by loading from the specified config file path
func New(configPath string) (*Config, error) {
	return LoadFromFile(configPath)
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	// Pattern matches ${VAR_NAME} or ${VAR_NAME:-default_value}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		// Extract variable name and default value
		submatches := re.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""

		if len(submatches) > 2 && submatches[2] != "" {
			// Remove the leading '-' from default value
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		// Get environment variable value
		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// GetProviderConfig returns the configuration for a specific provider
func (c *Config) GetProviderConfig(provider string) (models.ProviderConfig, bool) {
	if c.Providers == nil {
		return models.ProviderConfig{}, false
	}
	providerConfig, exists := c.Providers[strings.ToLower(provider)]
	return providerConfig, exists
}

// SecretFields returns the secret-field classification for a provider,
// falling back to the default set when the provider declares none.
func (c *Config) SecretFields(provider string) []string {
	if providerConfig, exists := c.GetProviderConfig(provider); exists && len(providerConfig.SecretFields) > 0 {
		return providerConfig.SecretFields
	}
	return models.DefaultSecretFields
}

// GetNormalizedLogLevel returns the log level in lowercase for consistent comparison
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(c.Server.LogLevel)
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate checks that the configuration carries everything the engine needs
func (c *Config) Validate() error {
	var missing []string

	if c.Server.Port == "" {
		missing = append(missing, "server.port")
	}
	if c.Workspace.TenantID == "" {
		missing = append(missing, "workspace.tenant_id")
	}
	if c.Workspace.SecretKey == "" {
		missing = append(missing, "workspace.secret_key")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missing, ", "))
	}

	switch len(c.Workspace.SecretKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("workspace.secret_key must be 16, 24, or 32 bytes, got %d", len(c.Workspace.SecretKey))
	}

	return nil
}
