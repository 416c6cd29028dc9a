package validator

import (
	"context"
	"net/http"
	"time"

	"github.com/modelgate/credential-engine/internal/models"
	"github.com/modelgate/credential-engine/internal/utils/clientcache"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// AnthropicValidator probes the models listing with a page size of one.
type AnthropicValidator struct {
	config      models.ProviderConfig
	clientCache *clientcache.Cache[*anthropic.Client]
}

func NewAnthropicValidator(config models.ProviderConfig) *AnthropicValidator {
	return &AnthropicValidator{
		config:      config,
		clientCache: clientcache.NewCache[*anthropic.Client](),
	}
}

func (v *AnthropicValidator) Provider() string {
	return "anthropic"
}

func (v *AnthropicValidator) buildClient(key string) *anthropic.Client {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(key),
	}

	if v.config.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(v.config.BaseURL))
	}
	for header, value := range v.config.Headers {
		clientOpts = append(clientOpts, option.WithHeader(header, value))
	}
	if v.config.TimeoutMs > 0 {
		timeout := time.Duration(v.config.TimeoutMs) * time.Millisecond
		clientOpts = append(clientOpts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}

	client := anthropic.NewClient(clientOpts...)
	return &client
}

func (v *AnthropicValidator) Validate(ctx context.Context, model *models.CustomModel, credentials map[string]any) (*models.OperationResult, error) {
	key, bad := apiKey(credentials)
	if bad != nil {
		return bad, nil
	}

	cacheKey := clientKey("anthropic", key, v.config.BaseURL)
	client, err := v.clientCache.GetOrCreate(cacheKey, func() (*anthropic.Client, error) {
		return v.buildClient(key), nil
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if _, err := client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)}); err != nil {
		fiberlog.Debugf("Validator: anthropic credential rejected after %v: %v", time.Since(start), err)
		v.clientCache.Delete(cacheKey)
		return failure(err.Error()), nil
	}

	fiberlog.Debugf("Validator: anthropic credential accepted in %v", time.Since(start))
	return success(), nil
}
