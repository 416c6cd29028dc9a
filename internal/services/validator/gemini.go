package validator

import (
	"context"
	"time"

	"github.com/modelgate/credential-engine/internal/models"
	"github.com/modelgate/credential-engine/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"google.golang.org/genai"
)

// defaultGeminiModel is probed when the credential is provider-scoped and no
// custom model accompanies it.
const defaultGeminiModel = "gemini-2.0-flash"

// GeminiValidator probes CountTokens, which authenticates without generating.
type GeminiValidator struct {
	config      models.ProviderConfig
	clientCache *clientcache.Cache[*genai.Client]
}

func NewGeminiValidator(config models.ProviderConfig) *GeminiValidator {
	return &GeminiValidator{
		config:      config,
		clientCache: clientcache.NewCache[*genai.Client](),
	}
}

func (v *GeminiValidator) Provider() string {
	return "gemini"
}

func (v *GeminiValidator) buildClient(ctx context.Context, key string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
}

func (v *GeminiValidator) Validate(ctx context.Context, model *models.CustomModel, credentials map[string]any) (*models.OperationResult, error) {
	key, bad := apiKey(credentials)
	if bad != nil {
		return bad, nil
	}

	client, err := v.clientCache.GetOrCreate(clientKey("gemini", key), func() (*genai.Client, error) {
		return v.buildClient(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	probeModel := defaultGeminiModel
	if model != nil && model.Model != "" {
		probeModel = model.Model
	}
	contents := []*genai.Content{
		{Parts: []*genai.Part{{Text: "ping"}}},
	}

	start := time.Now()
	if _, err := client.Models.CountTokens(ctx, probeModel, contents, nil); err != nil {
		fiberlog.Debugf("Validator: gemini credential rejected after %v: %v", time.Since(start), err)
		v.clientCache.Delete(clientKey("gemini", key))
		return failure(err.Error()), nil
	}

	fiberlog.Debugf("Validator: gemini credential accepted in %v", time.Since(start))
	return success(), nil
}
