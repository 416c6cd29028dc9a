package models

import "time"

// HiddenValue is the sentinel substituted for a secret field whose value is
// unchanged since form-open time. The store recognizes it on write and keeps
// the original value instead of persisting the sentinel.
const HiddenValue = "[__HIDDEN__]"

// ConfigurationMethod distinguishes provider-level credential configuration
// from per-model customization.
type ConfigurationMethod string

const (
	ConfigurationMethodPredefinedModel   ConfigurationMethod = "predefined-model"
	ConfigurationMethodCustomizableModel ConfigurationMethod = "customizable-model"
)

// Credential is the visible metadata of one stored secret set. The raw secret
// never leaves the store after initial entry; reads expose obfuscated values.
type Credential struct {
	CredentialID    string `json:"credential_id"`
	CredentialName  string `json:"credential_name,omitzero"`
	FromEnterprise  bool   `json:"from_enterprise,omitzero"`
	NotAllowedToUse bool   `json:"not_allowed_to_use,omitzero"`
}

// CustomModel identifies a model within a provider's customizable-model
// configuration. Immutable once created.
type CustomModel struct {
	Model     string `json:"model"`
	ModelType string `json:"model_type"`
}

// CredentialPayload is the mutating-request shape accepted by the store.
// Presence of CredentialID selects edit over add; presence of Model selects
// the model-scoped service variant over the provider-scoped one.
type CredentialPayload struct {
	CredentialID   string         `json:"credential_id,omitzero"`
	CredentialName string         `json:"credential_name,omitzero"`
	Model          *CustomModel   `json:"model,omitzero"`
	Credentials    map[string]any `json:"credentials"`
}

// OperationResult is the non-throwing outcome shape of every mutating store
// call. Anything other than "success" means no state change happened.
type OperationResult struct {
	Result string `json:"result"`
	Error  string `json:"error,omitzero"`
}

const ResultSuccess = "success"

// Success reports whether the operation actually mutated state.
func (r *OperationResult) Success() bool {
	return r != nil && r.Result == ResultSuccess
}

// PendingOperation is a short-lived cross-call handle: set when a user opens a
// delete confirmation or initiates an edit, read and cleared exactly once when
// the corresponding action completes or is cancelled.
type PendingOperation struct {
	CredentialID string
	Model        *CustomModel
}

// ProviderCredential is the persisted form of a credential. Secret fields
// inside EncryptedConfig are AES-GCM encrypted individually.
type ProviderCredential struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID        string    `gorm:"index;size:36;not null" json:"tenant_id"`
	Provider        string    `gorm:"index;size:255;not null" json:"provider"`
	Name            string    `gorm:"size:255" json:"name"`
	EncryptedConfig string    `gorm:"type:text" json:"-"`
	ModelName       string    `gorm:"index;size:255" json:"model_name,omitzero"`
	ModelType       string    `gorm:"size:40" json:"model_type,omitzero"`
	IsActive        bool      `gorm:"default:false;index" json:"is_active"`
	IsValid         bool      `gorm:"default:false" json:"is_valid"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProviderCredential) TableName() string {
	return "provider_credentials"
}

// ModelScoped reports whether the credential is tied to one custom model
// rather than the whole provider.
func (c *ProviderCredential) ModelScoped() bool {
	return c.ModelName != ""
}
