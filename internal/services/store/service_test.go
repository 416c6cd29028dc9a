package store

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/modelgate/credential-engine/internal/models"
	"github.com/modelgate/credential-engine/internal/services/secrets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ProviderCredential{},
		&models.LoadBalancingModelConfig{},
		&models.ProviderModelSetting{},
	))
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	cipher, err := secrets.NewCipher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	return NewService(newTestDB(t), cipher, "tenant-1", "openai", nil)
}

func TestAddAndFetchProviderCredential(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	result, err := s.AddCredential(ctx, models.CredentialPayload{
		CredentialName: "primary",
		Credentials:    map[string]any{"api_key": "sk-live-1234567890", "organization": "acme"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success())

	// The first credential in the scope is active, so an empty id finds it.
	fetched, err := s.ProviderCredential(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "acme", fetched["organization"], "non-secret fields pass through")
	key, ok := fetched["api_key"].(string)
	require.True(t, ok)
	assert.NotEqual(t, "sk-live-1234567890", key, "secrets are never returned verbatim")
	assert.Contains(t, key, "************")
	assert.True(t, strings.HasPrefix(key, "sk-"))
}

func TestSecretStoredEncrypted(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.AddCredential(ctx, models.CredentialPayload{
		Credentials: map[string]any{"api_key": "sk-super-secret"},
	})
	require.NoError(t, err)

	var record models.ProviderCredential
	require.NoError(t, s.db.First(&record).Error)
	assert.NotContains(t, record.EncryptedConfig, "sk-super-secret")
}

func TestEditRestoresSentinelSecret(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.AddCredential(ctx, models.CredentialPayload{
		Credentials: map[string]any{"api_key": "sk-original-value", "organization": "acme"},
	})
	require.NoError(t, err)

	var record models.ProviderCredential
	require.NoError(t, s.db.First(&record).Error)

	// An edit that only changes a non-secret field sends the secret back as
	// the sentinel; the stored ciphertext must survive unchanged.
	result, err := s.EditCredential(ctx, models.CredentialPayload{
		CredentialID: record.ID,
		Credentials:  map[string]any{"api_key": models.HiddenValue, "organization": "acme-2"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success())

	var updated models.ProviderCredential
	require.NoError(t, s.db.First(&updated, "id = ?", record.ID).Error)
	plain, err := s.decryptCredentials(updated.EncryptedConfig)
	require.NoError(t, err)
	assert.Equal(t, "sk-original-value", plain["api_key"])
	assert.Equal(t, "acme-2", plain["organization"])
}

func TestEditSentinelWithoutStoredValueFails(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.AddCredential(ctx, models.CredentialPayload{
		Credentials: map[string]any{"organization": "acme"},
	})
	require.NoError(t, err)

	var record models.ProviderCredential
	require.NoError(t, s.db.First(&record).Error)

	result, err := s.EditCredential(ctx, models.CredentialPayload{
		CredentialID: record.ID,
		Credentials:  map[string]any{"api_key": models.HiddenValue},
	})
	require.NoError(t, err, "a sentinel with no stored value is a non-success result, not a transport error")
	assert.False(t, result.Success())
	assert.Contains(t, result.Error, "api_key")
}

func TestModelScopedCredentialIsolation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	model := &models.CustomModel{Model: "gpt-4o", ModelType: "llm"}

	_, err := s.AddCredential(ctx, models.CredentialPayload{
		Credentials: map[string]any{"api_key": "sk-provider-scope"},
	})
	require.NoError(t, err)

	result, err := s.AddModelCredential(ctx, models.CredentialPayload{
		Model:       model,
		Credentials: map[string]any{"api_key": "sk-model-scope"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success())

	// Each scope resolves its own active credential.
	providerCred, err := s.ProviderCredential(ctx, "")
	require.NoError(t, err)
	modelCred, err := s.ModelCredential(ctx, "", *model)
	require.NoError(t, err)
	assert.NotEqual(t, providerCred["api_key"], modelCred["api_key"])
}

func TestActivateFlipsActiveFlag(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.AddCredential(ctx, models.CredentialPayload{
		CredentialName: "first",
		Credentials:    map[string]any{"api_key": "sk-first"},
	})
	require.NoError(t, err)
	_, err = s.AddCredential(ctx, models.CredentialPayload{
		CredentialName: "second",
		Credentials:    map[string]any{"api_key": "sk-second"},
	})
	require.NoError(t, err)

	var second models.ProviderCredential
	require.NoError(t, s.db.First(&second, "name = ?", "second").Error)
	assert.False(t, second.IsActive, "only the first credential in a scope starts active")

	result, err := s.ActivateCredential(ctx, second.ID, nil)
	require.NoError(t, err)
	assert.True(t, result.Success())

	var active []models.ProviderCredential
	require.NoError(t, s.db.Where("is_active = ?", true).Find(&active).Error)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestActivateUnknownCredential(t *testing.T) {
	s := newTestService(t)

	result, err := s.ActivateCredential(context.Background(), "nope", nil)
	require.NoError(t, err)
	assert.False(t, result.Success())
	assert.Equal(t, "credential not found", result.Error)
}

func TestDeleteCredentialCascadesPoolEntries(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.AddCredential(ctx, models.CredentialPayload{
		Credentials: map[string]any{"api_key": "sk-doomed"},
	})
	require.NoError(t, err)

	var record models.ProviderCredential
	require.NoError(t, s.db.First(&record).Error)

	require.NoError(t, s.db.Create(&models.LoadBalancingModelConfig{
		ID:           "lb-1",
		TenantID:     "tenant-1",
		Provider:     "openai",
		ModelName:    "gpt-4o",
		ModelType:    "llm",
		Name:         "Default",
		CredentialID: record.ID,
		Enabled:      true,
	}).Error)

	result, err := s.DeleteCredential(ctx, record.ID, nil)
	require.NoError(t, err)
	assert.True(t, result.Success())

	var lbCount int64
	require.NoError(t, s.db.Model(&models.LoadBalancingModelConfig{}).Count(&lbCount).Error)
	assert.Zero(t, lbCount, "pool entries backed by the credential go with it")
}

func TestDeleteUnknownCredential(t *testing.T) {
	s := newTestService(t)

	result, err := s.DeleteCredential(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.False(t, result.Success())
}

func TestDeleteModelRemovesEverything(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	model := models.CustomModel{Model: "gpt-4o", ModelType: "llm"}

	_, err := s.AddModelCredential(ctx, models.CredentialPayload{
		Model:       &model,
		Credentials: map[string]any{"api_key": "sk-model"},
	})
	require.NoError(t, err)
	require.NoError(t, s.db.Create(&models.ProviderModelSetting{
		ID: "set-1", TenantID: "tenant-1", Provider: "openai",
		ModelName: model.Model, ModelType: model.ModelType, LoadBalancingEnabled: true,
	}).Error)

	result, err := s.DeleteModel(ctx, model)
	require.NoError(t, err)
	assert.True(t, result.Success())

	var credCount, settingCount int64
	require.NoError(t, s.db.Model(&models.ProviderCredential{}).Count(&credCount).Error)
	require.NoError(t, s.db.Model(&models.ProviderModelSetting{}).Count(&settingCount).Error)
	assert.Zero(t, credCount)
	assert.Zero(t, settingCount)
}
