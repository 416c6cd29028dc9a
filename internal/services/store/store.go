package store

import (
	"context"

	"github.com/modelgate/credential-engine/internal/models"
)

// CredentialStore is the capability set the credential lifecycle controller
// operates against, parameterized by provider. Mutating calls resolve to an
// OperationResult; a non-nil error is reserved for transport failure.
type CredentialStore interface {
	// ProviderCredential returns a provider-scoped credential's fields with
	// secret values obfuscated.
	ProviderCredential(ctx context.Context, credentialID string) (map[string]any, error)
	// ModelCredential returns a model-scoped credential's fields with secret
	// values obfuscated. An empty credentialID selects the model's active one.
	ModelCredential(ctx context.Context, credentialID string, model models.CustomModel) (map[string]any, error)

	AddCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error)
	EditCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error)
	AddModelCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error)
	EditModelCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error)

	// DeleteCredential removes one credential, scoped to a model when one is
	// attached (a credential may be shared across the provider or tied to a
	// single model; the target is resolved by presence).
	DeleteCredential(ctx context.Context, credentialID string, model *models.CustomModel) (*models.OperationResult, error)
	// DeleteModel removes a whole custom model and every credential scoped to it.
	DeleteModel(ctx context.Context, model models.CustomModel) (*models.OperationResult, error)

	ActivateCredential(ctx context.Context, credentialID string, model *models.CustomModel) (*models.OperationResult, error)
}
