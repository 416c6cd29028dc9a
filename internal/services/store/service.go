package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/modelgate/credential-engine/internal/models"
	"github.com/modelgate/credential-engine/internal/services/secrets"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Service is the authoritative credential store for one provider within a
// workspace. Secret fields are encrypted individually before persistence and
// obfuscated on every read; the raw secret never leaves the store after
// initial entry.
type Service struct {
	db           *gorm.DB
	cipher       *secrets.Cipher
	tenantID     string
	provider     string
	secretFields []string

	// Concurrent reads of the same credential collapse into one query.
	fetchGroup singleflight.Group
}

func NewService(db *gorm.DB, cipher *secrets.Cipher, tenantID, provider string, secretFields []string) *Service {
	if len(secretFields) == 0 {
		secretFields = models.DefaultSecretFields
	}
	return &Service{
		db:           db,
		cipher:       cipher,
		tenantID:     tenantID,
		provider:     provider,
		secretFields: secretFields,
	}
}

func (s *Service) isSecret(field string) bool {
	return slices.Contains(s.secretFields, field)
}

func failure(message string) *models.OperationResult {
	return &models.OperationResult{Result: "failed", Error: message}
}

func success() *models.OperationResult {
	return &models.OperationResult{Result: models.ResultSuccess}
}

// encryptCredentials encrypts secret fields and serializes the credential map.
// When a secret arrives as the redaction sentinel, the original ciphertext is
// kept, so unchanged secrets are never retransmitted into storage.
func (s *Service) encryptCredentials(credentials, original map[string]any) (string, error) {
	out := make(map[string]any, len(credentials))
	for key, value := range credentials {
		str, isString := value.(string)
		if !isString || !s.isSecret(key) {
			out[key] = value
			continue
		}

		if str == models.HiddenValue {
			if orig, exists := original[key]; exists {
				out[key] = orig
				continue
			}
			return "", fmt.Errorf("secret field %s sent as sentinel but has no stored value", key)
		}

		encrypted, err := s.cipher.Encrypt(str)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt field %s: %w", key, err)
		}
		out[key] = encrypted
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to serialize credentials: %w", err)
	}
	return string(data), nil
}

func (s *Service) decryptCredentials(encryptedConfig string) (map[string]any, error) {
	if encryptedConfig == "" {
		return map[string]any{}, nil
	}

	var stored map[string]any
	if err := json.Unmarshal([]byte(encryptedConfig), &stored); err != nil {
		return nil, fmt.Errorf("failed to parse stored credentials: %w", err)
	}

	for key, value := range stored {
		str, isString := value.(string)
		if !isString || !s.isSecret(key) {
			continue
		}
		plain, err := s.cipher.Decrypt(str)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt field %s: %w", key, err)
		}
		stored[key] = plain
	}
	return stored, nil
}

func (s *Service) obfuscate(credentials map[string]any) map[string]any {
	out := make(map[string]any, len(credentials))
	for key, value := range credentials {
		if str, isString := value.(string); isString && s.isSecret(key) {
			out[key] = secrets.Obfuscate(str)
			continue
		}
		out[key] = value
	}
	return out
}

func (s *Service) providerScope(db *gorm.DB) *gorm.DB {
	return db.Where("tenant_id = ? AND provider = ?", s.tenantID, s.provider)
}

func (s *Service) ProviderCredential(ctx context.Context, credentialID string) (map[string]any, error) {
	v, err, _ := s.fetchGroup.Do("provider:"+credentialID, func() (any, error) {
		var record models.ProviderCredential
		query := s.providerScope(s.db.WithContext(ctx)).Where("model_name = ''")
		if credentialID != "" {
			query = query.Where("id = ?", credentialID)
		} else {
			query = query.Where("is_active = ?", true)
		}
		if err := query.First(&record).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, models.NewNotFoundError("credential")
			}
			return nil, fmt.Errorf("failed to get provider credential: %w", err)
		}

		credentials, err := s.decryptCredentials(record.EncryptedConfig)
		if err != nil {
			return nil, err
		}
		return s.obfuscate(credentials), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func (s *Service) ModelCredential(ctx context.Context, credentialID string, model models.CustomModel) (map[string]any, error) {
	key := fmt.Sprintf("model:%s:%s:%s", model.ModelType, model.Model, credentialID)
	v, err, _ := s.fetchGroup.Do(key, func() (any, error) {
		var record models.ProviderCredential
		query := s.providerScope(s.db.WithContext(ctx)).
			Where("model_name = ? AND model_type = ?", model.Model, model.ModelType)
		if credentialID != "" {
			query = query.Where("id = ?", credentialID)
		} else {
			query = query.Where("is_active = ?", true)
		}
		if err := query.First(&record).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, models.NewNotFoundError("credential")
			}
			return nil, fmt.Errorf("failed to get model credential: %w", err)
		}

		credentials, err := s.decryptCredentials(record.EncryptedConfig)
		if err != nil {
			return nil, err
		}
		return s.obfuscate(credentials), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// ResolveSentinels replaces sentinel secret fields in submitted with their
// decrypted stored values so an unchanged secret can still be validated
// against the provider. The result is for server-side use only and must never
// be serialized back to a client.
func (s *Service) ResolveSentinels(ctx context.Context, credentialID string, model *models.CustomModel, submitted map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(submitted))
	for k, v := range submitted {
		out[k] = v
	}

	needsStored := false
	for _, value := range out {
		if str, ok := value.(string); ok && str == models.HiddenValue {
			needsStored = true
			break
		}
	}
	if !needsStored {
		return out, nil
	}

	var record models.ProviderCredential
	query := s.providerScope(s.db.WithContext(ctx))
	if model != nil {
		query = query.Where("model_name = ? AND model_type = ?", model.Model, model.ModelType)
	} else {
		query = query.Where("model_name = ''")
	}
	if credentialID != "" {
		query = query.Where("id = ?", credentialID)
	} else {
		query = query.Where("is_active = ?", true)
	}
	if err := query.First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("credential")
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	stored, err := s.decryptCredentials(record.EncryptedConfig)
	if err != nil {
		return nil, err
	}
	for key, value := range out {
		if str, ok := value.(string); ok && str == models.HiddenValue {
			if storedValue, exists := stored[key]; exists {
				out[key] = storedValue
			} else {
				return nil, fmt.Errorf("secret field %s sent as sentinel but has no stored value", key)
			}
		}
	}
	return out, nil
}

func (s *Service) AddCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error) {
	return s.addCredential(ctx, payload, nil)
}

func (s *Service) AddModelCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error) {
	if payload.Model == nil {
		return failure("model is required"), nil
	}
	return s.addCredential(ctx, payload, payload.Model)
}

func (s *Service) addCredential(ctx context.Context, payload models.CredentialPayload, model *models.CustomModel) (*models.OperationResult, error) {
	encrypted, err := s.encryptCredentials(payload.Credentials, nil)
	if err != nil {
		return failure(err.Error()), nil
	}

	record := &models.ProviderCredential{
		ID:              uuid.NewString(),
		TenantID:        s.tenantID,
		Provider:        s.provider,
		Name:            payload.CredentialName,
		EncryptedConfig: encrypted,
		IsValid:         true,
	}
	if model != nil {
		record.ModelName = model.Model
		record.ModelType = model.ModelType
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		scoped := s.providerScope(tx.Model(&models.ProviderCredential{}))
		if model != nil {
			scoped = scoped.Where("model_name = ? AND model_type = ?", model.Model, model.ModelType)
		} else {
			scoped = scoped.Where("model_name = ''")
		}
		if err := scoped.Count(&count).Error; err != nil {
			return err
		}

		// The first credential in a scope is immediately active.
		record.IsActive = count == 0
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	fiberlog.Infof("Store: added credential %s for provider %s", record.ID, s.provider)
	return success(), nil
}

func (s *Service) EditCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error) {
	return s.editCredential(ctx, payload, nil)
}

func (s *Service) EditModelCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error) {
	if payload.Model == nil {
		return failure("model is required"), nil
	}
	return s.editCredential(ctx, payload, payload.Model)
}

func (s *Service) editCredential(ctx context.Context, payload models.CredentialPayload, model *models.CustomModel) (*models.OperationResult, error) {
	if payload.CredentialID == "" {
		return failure("credential_id is required"), nil
	}

	var record models.ProviderCredential
	query := s.providerScope(s.db.WithContext(ctx)).Where("id = ?", payload.CredentialID)
	if model != nil {
		query = query.Where("model_name = ? AND model_type = ?", model.Model, model.ModelType)
	}
	if err := query.First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return failure("credential not found"), nil
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	// Unchanged secrets arrive as the sentinel; restore their stored
	// ciphertext instead of persisting the placeholder.
	var original map[string]any
	if record.EncryptedConfig != "" {
		if err := json.Unmarshal([]byte(record.EncryptedConfig), &original); err != nil {
			return nil, fmt.Errorf("failed to parse stored credentials: %w", err)
		}
	}

	encrypted, err := s.encryptCredentials(payload.Credentials, original)
	if err != nil {
		return failure(err.Error()), nil
	}

	record.EncryptedConfig = encrypted
	record.IsValid = true
	if payload.CredentialName != "" {
		record.Name = payload.CredentialName
	}

	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to update credential: %w", err)
	}

	fiberlog.Infof("Store: updated credential %s for provider %s", record.ID, s.provider)
	return success(), nil
}

func (s *Service) DeleteCredential(ctx context.Context, credentialID string, model *models.CustomModel) (*models.OperationResult, error) {
	if credentialID == "" {
		return failure("credential_id is required"), nil
	}

	var notFound bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := s.providerScope(tx).Where("id = ?", credentialID)
		if model != nil {
			query = query.Where("model_name = ? AND model_type = ?", model.Model, model.ModelType)
		}

		result := query.Delete(&models.ProviderCredential{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			notFound = true
			return nil
		}

		// Pool entries referencing the credential lose their backing secret.
		return s.providerScope(tx).
			Where("credential_id = ?", credentialID).
			Delete(&models.LoadBalancingModelConfig{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete credential: %w", err)
	}
	if notFound {
		return failure("credential not found"), nil
	}

	fiberlog.Infof("Store: deleted credential %s for provider %s", credentialID, s.provider)
	return success(), nil
}

func (s *Service) DeleteModel(ctx context.Context, model models.CustomModel) (*models.OperationResult, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		modelScope := func(db *gorm.DB) *gorm.DB {
			return s.providerScope(db).Where("model_name = ? AND model_type = ?", model.Model, model.ModelType)
		}

		if err := modelScope(tx).Delete(&models.ProviderCredential{}).Error; err != nil {
			return err
		}
		if err := modelScope(tx).Delete(&models.LoadBalancingModelConfig{}).Error; err != nil {
			return err
		}
		return modelScope(tx).Delete(&models.ProviderModelSetting{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete model %s: %w", model.Model, err)
	}

	fiberlog.Infof("Store: deleted model %s/%s for provider %s", model.ModelType, model.Model, s.provider)
	return success(), nil
}

func (s *Service) ActivateCredential(ctx context.Context, credentialID string, model *models.CustomModel) (*models.OperationResult, error) {
	if credentialID == "" {
		return failure("credential_id is required"), nil
	}

	var notFound bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := func(db *gorm.DB) *gorm.DB {
			q := s.providerScope(db)
			if model != nil {
				return q.Where("model_name = ? AND model_type = ?", model.Model, model.ModelType)
			}
			return q.Where("model_name = ''")
		}

		if err := scoped(tx.Model(&models.ProviderCredential{})).
			Update("is_active", false).Error; err != nil {
			return err
		}

		result := scoped(tx.Model(&models.ProviderCredential{})).
			Where("id = ?", credentialID).
			Update("is_active", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			notFound = true
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if notFound {
		return failure("credential not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to activate credential: %w", err)
	}

	fiberlog.Infof("Store: activated credential %s for provider %s", credentialID, s.provider)
	return success(), nil
}
