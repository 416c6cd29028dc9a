package models

import "time"

// InheritEntryName marks the provider-managed default entry of a pool. It is
// the always-present fallback when no user-added entry is enabled and can only
// be toggled, never renamed or deleted.
const InheritEntryName = "__inherit__"

// ModelLoadBalancingConfigEntry is one credential entry in a model's pool.
// InCooldown and TTL are meaningful only together; TTL is cleared entirely
// once the countdown it produced reaches zero.
type ModelLoadBalancingConfigEntry struct {
	ID           string         `json:"id,omitzero"`
	Enabled      bool           `json:"enabled"`
	Name         string         `json:"name"`
	Credentials  map[string]any `json:"credentials"`
	InCooldown   bool           `json:"in_cooldown,omitzero"`
	TTL          *int           `json:"ttl,omitempty"`
	CredentialID string         `json:"credential_id,omitzero"`
}

// Inherit reports whether the entry is the provider-managed default.
func (e *ModelLoadBalancingConfigEntry) Inherit() bool {
	return e.Name == InheritEntryName
}

// ModelLoadBalancingConfig is the draft pool for one model. The draft is
// client-owned until a save succeeds, at which point it is reconciled with the
// store's authoritative response.
type ModelLoadBalancingConfig struct {
	Enabled bool                            `json:"enabled"`
	Configs []ModelLoadBalancingConfigEntry `json:"configs"`
}

// LoadBalancingModelConfig is the persisted form of one pool entry.
type LoadBalancingModelConfig struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID        string    `gorm:"index;size:36;not null" json:"tenant_id"`
	Provider        string    `gorm:"index;size:255;not null" json:"provider"`
	ModelName       string    `gorm:"index;size:255;not null" json:"model_name"`
	ModelType       string    `gorm:"size:40;not null" json:"model_type"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	EncryptedConfig string    `gorm:"type:text" json:"-"`
	CredentialID    string    `gorm:"size:36" json:"credential_id,omitzero"`
	Enabled         bool      `gorm:"default:true" json:"enabled"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LoadBalancingModelConfig) TableName() string {
	return "load_balancing_model_configs"
}

// ProviderModelSetting carries per-model toggles, currently only whether load
// balancing is enabled for the model.
type ProviderModelSetting struct {
	ID                   string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID             string    `gorm:"index;size:36;not null" json:"tenant_id"`
	Provider             string    `gorm:"index;size:255;not null" json:"provider"`
	ModelName            string    `gorm:"index;size:255;not null" json:"model_name"`
	ModelType            string    `gorm:"size:40;not null" json:"model_type"`
	LoadBalancingEnabled bool      `gorm:"default:false" json:"load_balancing_enabled"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProviderModelSetting) TableName() string {
	return "provider_model_settings"
}
