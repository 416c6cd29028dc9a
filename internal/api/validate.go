package api

import (
	"github.com/modelgate/credential-engine/internal/models"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// ValidateHandler checks submitted credentials against the provider's API.
// The outcome is always a result payload, never an HTTP error: a rejected key
// is data for the form, not a transport failure.
type ValidateHandler struct {
	services *Services
}

func NewValidateHandler(services *Services) *ValidateHandler {
	return &ValidateHandler{services: services}
}

type validateRequest struct {
	Model       *models.CustomModel `json:"model,omitzero"`
	Credentials map[string]any      `json:"credentials"`
}

// ValidateCredentials probes the provider with the submitted credentials.
// Secrets sent as the redaction sentinel are resolved from the stored
// credential first, so an unchanged key can still be validated.
func (h *ValidateHandler) ValidateCredentials(c *fiber.Ctx) error {
	provider := c.Params("provider")

	var req validateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.Credentials) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "credentials are required"})
	}

	credentials, err := h.resolveSentinels(c, provider, req)
	if err != nil {
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	v, ok := h.services.Validators().Validator(provider)
	if !ok {
		// No live probe for this provider; accept the credentials as-is.
		return c.JSON(models.OperationResult{Result: models.ResultSuccess})
	}

	result, err := v.Validate(c.UserContext(), req.Model, credentials)
	if err != nil {
		fiberlog.Errorf("API: validation transport failure for provider %s: %v", provider, err)
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}
	return c.JSON(result)
}

func (h *ValidateHandler) resolveSentinels(c *fiber.Ctx, provider string, req validateRequest) (map[string]any, error) {
	return h.services.Store(provider).ResolveSentinels(
		c.UserContext(), c.Query("credential_id"), req.Model, req.Credentials)
}
