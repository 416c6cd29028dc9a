package validator

import (
	"context"
	"net/http"
	"time"

	"github.com/modelgate/credential-engine/internal/models"
	"github.com/modelgate/credential-engine/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/openai/openai-go/v2"
	openaiOption "github.com/openai/openai-go/v2/option"
)

// OpenAIValidator probes the models listing, the cheapest authenticated call
// the API offers.
type OpenAIValidator struct {
	config      models.ProviderConfig
	clientCache *clientcache.Cache[*openai.Client]
}

func NewOpenAIValidator(config models.ProviderConfig) *OpenAIValidator {
	return &OpenAIValidator{
		config:      config,
		clientCache: clientcache.NewCache[*openai.Client](),
	}
}

func (v *OpenAIValidator) Provider() string {
	return "openai"
}

func (v *OpenAIValidator) buildClient(key string) *openai.Client {
	opts := []openaiOption.RequestOption{
		openaiOption.WithAPIKey(key),
	}

	if v.config.BaseURL != "" {
		opts = append(opts, openaiOption.WithBaseURL(v.config.BaseURL))
	}
	for header, value := range v.config.Headers {
		opts = append(opts, openaiOption.WithHeader(header, value))
	}
	if v.config.TimeoutMs > 0 {
		timeout := time.Duration(v.config.TimeoutMs) * time.Millisecond
		opts = append(opts, openaiOption.WithHTTPClient(&http.Client{Timeout: timeout}))
	}

	client := openai.NewClient(opts...)
	return &client
}

func (v *OpenAIValidator) Validate(ctx context.Context, model *models.CustomModel, credentials map[string]any) (*models.OperationResult, error) {
	key, bad := apiKey(credentials)
	if bad != nil {
		return bad, nil
	}

	client, err := v.clientCache.GetOrCreate(clientKey("openai", key, v.config.BaseURL), func() (*openai.Client, error) {
		return v.buildClient(key), nil
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if _, err := client.Models.List(ctx); err != nil {
		fiberlog.Debugf("Validator: openai credential rejected after %v: %v", time.Since(start), err)
		v.clientCache.Delete(clientKey("openai", key, v.config.BaseURL))
		return failure(err.Error()), nil
	}

	fiberlog.Debugf("Validator: openai credential accepted in %v", time.Since(start))
	return success(), nil
}
