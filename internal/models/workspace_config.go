package models

// WorkspaceConfig carries workspace-level settings read once at controller and
// reconciler construction rather than consulted as ambient global state.
type WorkspaceConfig struct {
	TenantID             string `yaml:"tenant_id" json:"tenant_id"`
	SecretKey            string `yaml:"secret_key" json:"-"`                                             // AES key for credential encryption (16/24/32 bytes)
	LoadBalancingAllowed bool   `yaml:"load_balancing_allowed" json:"load_balancing_allowed"`            // Feature flag gating pool-enable
	CooldownSeconds      int    `yaml:"cooldown_seconds,omitempty" json:"cooldown_seconds,omitzero"`     // Default rate-limit cooldown
}

// AdminAuthConfig guards the management API with a pre-shared admin key.
type AdminAuthConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	HeaderName string `yaml:"header_name,omitempty" json:"header_name,omitzero"`
	KeyHash    string `yaml:"key_hash,omitempty" json:"-"` // sha256 hex of the admin key
}

func DefaultAdminAuthConfig() AdminAuthConfig {
	return AdminAuthConfig{
		Enabled:    false,
		HeaderName: "X-Admin-Key",
	}
}
