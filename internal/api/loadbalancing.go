package api

import (
	"github.com/modelgate/credential-engine/internal/models"
	"github.com/modelgate/credential-engine/internal/services/cooldown"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// LoadBalancingHandler serves the per-model credential pool: read with live
// cooldown annotation, full-pool update, entry validation, and manual cooldown
// control.
type LoadBalancingHandler struct {
	services *Services
}

func NewLoadBalancingHandler(services *Services) *LoadBalancingHandler {
	return &LoadBalancingHandler{services: services}
}

func modelFromParams(c *fiber.Ctx) (models.CustomModel, error) {
	model := models.CustomModel{
		Model:     c.Params("model"),
		ModelType: c.Params("model_type"),
	}
	if model.Model == "" || model.ModelType == "" {
		return model, models.NewValidationError("model and model_type are required", nil)
	}
	return model, nil
}

// GetConfig returns the pool for one model.
func (h *LoadBalancingHandler) GetConfig(c *fiber.Ctx) error {
	provider := c.Params("provider")
	model, err := modelFromParams(c)
	if err != nil {
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	config, err := h.services.Balancer(provider).Config(c.UserContext(), model)
	if err != nil {
		fiberlog.Errorf("API: load balancing config fetch failed for %s: %v", provider, err)
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}
	return c.JSON(config)
}

// UpdateConfig replaces the pool with the submitted draft. Enabling the pool
// is refused when the workspace disallows load balancing.
func (h *LoadBalancingHandler) UpdateConfig(c *fiber.Ctx) error {
	provider := c.Params("provider")
	model, err := modelFromParams(c)
	if err != nil {
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	var config models.ModelLoadBalancingConfig
	if err := c.BodyParser(&config); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if config.Enabled && !h.services.cfg.Workspace.LoadBalancingAllowed {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "load balancing is not allowed for this workspace",
		})
	}

	result, err := h.services.Balancer(provider).UpdateConfig(c.UserContext(), model, config)
	if err != nil {
		fiberlog.Errorf("API: load balancing update failed for %s: %v", provider, err)
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}
	return c.JSON(result)
}

type entryValidateRequest struct {
	Credentials map[string]any `json:"credentials"`
}

// ValidateEntry probes the provider with one pool entry's credentials,
// resolving sentinel fields from the stored entry first.
func (h *LoadBalancingHandler) ValidateEntry(c *fiber.Ctx) error {
	provider := c.Params("provider")
	entryID := c.Params("entry_id")
	model, err := modelFromParams(c)
	if err != nil {
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	var req entryValidateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.Credentials) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "credentials are required"})
	}

	credentials, err := h.services.Balancer(provider).EntryCredentials(c.UserContext(), model, entryID, req.Credentials)
	if err != nil {
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	v, ok := h.services.Validators().Validator(provider)
	if !ok {
		return c.JSON(models.OperationResult{Result: models.ResultSuccess})
	}
	result, err := v.Validate(c.UserContext(), &model, credentials)
	if err != nil {
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}
	return c.JSON(result)
}

type cooldownRequest struct {
	Seconds int `json:"seconds"`
}

// SetCooldown removes one entry from rotation for a given number of seconds.
// Without an explicit duration the workspace default applies.
func (h *LoadBalancingHandler) SetCooldown(c *fiber.Ctx) error {
	provider := c.Params("provider")
	entryID := c.Params("entry_id")
	model, err := modelFromParams(c)
	if err != nil {
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	cooldowns := h.services.Cooldowns()
	if cooldowns == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "cooldown store not configured"})
	}

	var req cooldownRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	seconds := req.Seconds
	if seconds <= 0 {
		seconds = h.services.cfg.Workspace.CooldownSeconds
	}
	if seconds <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "seconds must be positive"})
	}

	scope := cooldown.Scope{
		TenantID:  h.services.cfg.Workspace.TenantID,
		Provider:  provider,
		ModelName: model.Model,
		ModelType: model.ModelType,
	}
	if err := cooldowns.SetCooldown(c.UserContext(), scope, entryID, seconds); err != nil {
		fiberlog.Errorf("API: set cooldown failed for entry %s: %v", entryID, err)
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}
	return c.JSON(fiber.Map{"result": models.ResultSuccess, "ttl": seconds})
}

// ClearCooldown returns one entry to rotation ahead of its expiry.
func (h *LoadBalancingHandler) ClearCooldown(c *fiber.Ctx) error {
	provider := c.Params("provider")
	entryID := c.Params("entry_id")
	model, err := modelFromParams(c)
	if err != nil {
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	cooldowns := h.services.Cooldowns()
	if cooldowns == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "cooldown store not configured"})
	}

	scope := cooldown.Scope{
		TenantID:  h.services.cfg.Workspace.TenantID,
		Provider:  provider,
		ModelName: model.Model,
		ModelType: model.ModelType,
	}
	if err := cooldowns.ClearCooldown(c.UserContext(), scope, entryID); err != nil {
		fiberlog.Errorf("API: clear cooldown failed for entry %s: %v", entryID, err)
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}
	return c.JSON(fiber.Map{"result": models.ResultSuccess})
}
