package loadbalancing

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/modelgate/credential-engine/internal/models"
	"github.com/modelgate/credential-engine/internal/services/cooldown"
	"github.com/modelgate/credential-engine/internal/services/secrets"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CooldownChecker reads the remaining cooldown of a pool entry. Satisfied by
// *cooldown.Store; nil disables annotation.
type CooldownChecker interface {
	Cooldown(ctx context.Context, scope cooldown.Scope, configID string) (bool, int, error)
}

// Service persists load-balancing pools and serves them back annotated with
// live cooldown state. Entry credentials get the same treatment as the
// credential store: secret fields encrypted at rest, obfuscated on read,
// sentinel-restored on write.
type Service struct {
	db           *gorm.DB
	cipher       *secrets.Cipher
	cooldowns    CooldownChecker
	tenantID     string
	provider     string
	secretFields []string
}

func NewService(db *gorm.DB, cipher *secrets.Cipher, cooldowns CooldownChecker, tenantID, provider string, secretFields []string) *Service {
	if len(secretFields) == 0 {
		secretFields = models.DefaultSecretFields
	}
	return &Service{
		db:           db,
		cipher:       cipher,
		cooldowns:    cooldowns,
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

func (s *Service) modelScope(db *gorm.DB, model models.CustomModel) *gorm.DB {
	return db.Where("tenant_id = ? AND provider = ? AND model_name = ? AND model_type = ?",
		s.tenantID, s.provider, model.Model, model.ModelType)
}

func (s *Service) scope(model models.CustomModel) cooldown.Scope {
	return cooldown.Scope{
		TenantID:  s.tenantID,
		Provider:  s.provider,
		ModelName: model.Model,
		ModelType: model.ModelType,
	}
}

// Config loads the pool for one model. The provider-managed default entry is
// always present and listed first; entries currently cooling down carry
// in_cooldown and their remaining ttl.
func (s *Service) Config(ctx context.Context, model models.CustomModel) (*models.ModelLoadBalancingConfig, error) {
	var setting models.ProviderModelSetting
	err := s.modelScope(s.db.WithContext(ctx), model).First(&setting).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to load model setting: %w", err)
	}

	var records []models.LoadBalancingModelConfig
	if err := s.modelScope(s.db.WithContext(ctx), model).
		Order("created_at asc").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load pool entries: %w", err)
	}

	config := &models.ModelLoadBalancingConfig{Enabled: setting.LoadBalancingEnabled}
	haveInherit := false
	for _, record := range records {
		credentials, err := s.decryptCredentials(record.EncryptedConfig)
		if err != nil {
			return nil, err
		}

		entry := models.ModelLoadBalancingConfigEntry{
			ID:           record.ID,
			Enabled:      record.Enabled,
			Name:         record.Name,
			Credentials:  s.obfuscate(credentials),
			CredentialID: record.CredentialID,
		}
		if entry.Inherit() {
			haveInherit = true
		}

		if s.cooldowns != nil {
			cooling, ttl, err := s.cooldowns.Cooldown(ctx, s.scope(model), record.ID)
			if err != nil {
				fiberlog.Warnf("LoadBalancing: cooldown lookup failed for entry %s: %v", record.ID, err)
			} else if cooling {
				entry.InCooldown = true
				entry.TTL = &ttl
			}
		}
		config.Configs = append(config.Configs, entry)
	}

	if !haveInherit {
		inherit := models.ModelLoadBalancingConfigEntry{
			Enabled:     true,
			Name:        models.InheritEntryName,
			Credentials: map[string]any{},
		}
		config.Configs = append([]models.ModelLoadBalancingConfigEntry{inherit}, config.Configs...)
	}
	return config, nil
}

// UpdateConfig persists a submitted pool. Entries keep their ids across
// updates; entries absent from the submission are deleted. Enabling a pool
// with fewer than two enabled entries is refused as a non-success result.
func (s *Service) UpdateConfig(ctx context.Context, model models.CustomModel, config models.ModelLoadBalancingConfig) (*models.OperationResult, error) {
	if config.Enabled {
		enabled := 0
		for _, entry := range config.Configs {
			if entry.Enabled {
				enabled++
			}
		}
		if enabled < 2 {
			return failure("load balancing requires at least 2 enabled entries"), nil
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.saveSetting(tx, model, config.Enabled); err != nil {
			return err
		}

		var existing []models.LoadBalancingModelConfig
		if err := s.modelScope(tx, model).Find(&existing).Error; err != nil {
			return err
		}
		stored := make(map[string]models.LoadBalancingModelConfig, len(existing))
		for _, record := range existing {
			stored[record.ID] = record
		}

		kept := make(map[string]bool, len(config.Configs))
		for _, entry := range config.Configs {
			record, known := stored[entry.ID]
			if known {
				kept[entry.ID] = true
			}

			var original map[string]any
			if known && record.EncryptedConfig != "" {
				if err := json.Unmarshal([]byte(record.EncryptedConfig), &original); err != nil {
					return fmt.Errorf("failed to parse stored entry credentials: %w", err)
				}
			}
			encrypted, err := s.encryptCredentials(entry.Credentials, original)
			if err != nil {
				return err
			}

			if known {
				record.Name = entry.Name
				record.Enabled = entry.Enabled
				record.EncryptedConfig = encrypted
				record.CredentialID = entry.CredentialID
				if err := tx.Save(&record).Error; err != nil {
					return err
				}
				continue
			}

			if err := tx.Create(&models.LoadBalancingModelConfig{
				ID:              uuid.NewString(),
				TenantID:        s.tenantID,
				Provider:        s.provider,
				ModelName:       model.Model,
				ModelType:       model.ModelType,
				Name:            entry.Name,
				EncryptedConfig: encrypted,
				CredentialID:    entry.CredentialID,
				Enabled:         entry.Enabled,
			}).Error; err != nil {
				return err
			}
		}

		for id := range stored {
			if !kept[id] {
				if err := tx.Delete(&models.LoadBalancingModelConfig{}, "id = ?", id).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update load balancing config: %w", err)
	}

	fiberlog.Infof("LoadBalancing: updated pool for %s/%s (enabled=%v, entries=%d)",
		model.ModelType, model.Model, config.Enabled, len(config.Configs))
	return success(), nil
}

func (s *Service) saveSetting(tx *gorm.DB, model models.CustomModel, enabled bool) error {
	var setting models.ProviderModelSetting
	err := s.modelScope(tx, model).First(&setting).Error
	if err == gorm.ErrRecordNotFound {
		return tx.Create(&models.ProviderModelSetting{
			ID:                   uuid.NewString(),
			TenantID:             s.tenantID,
			Provider:             s.provider,
			ModelName:            model.Model,
			ModelType:            model.ModelType,
			LoadBalancingEnabled: enabled,
		}).Error
	}
	if err != nil {
		return err
	}
	setting.LoadBalancingEnabled = enabled
	return tx.Save(&setting).Error
}

// EntryCredentials returns one entry's decrypted credentials for validation.
// Sentinel fields in the submitted map are resolved from storage first.
func (s *Service) EntryCredentials(ctx context.Context, model models.CustomModel, entryID string, submitted map[string]any) (map[string]any, error) {
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

	if entryID == "" {
		return nil, models.NewValidationError("unchanged secrets cannot be resolved for an unsaved entry", nil)
	}
	var record models.LoadBalancingModelConfig
	if err := s.modelScope(s.db.WithContext(ctx), model).
		Where("id = ?", entryID).
		First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.NewNotFoundError("pool entry")
		}
		return nil, fmt.Errorf("failed to load pool entry: %w", err)
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
		return "", fmt.Errorf("failed to serialize entry credentials: %w", err)
	}
	return string(data), nil
}

func (s *Service) decryptCredentials(encryptedConfig string) (map[string]any, error) {
	if encryptedConfig == "" {
		return map[string]any{}, nil
	}

	var stored map[string]any
	if err := json.Unmarshal([]byte(encryptedConfig), &stored); err != nil {
		return nil, fmt.Errorf("failed to parse stored entry credentials: %w", err)
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
