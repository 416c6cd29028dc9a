package api

import (
	"github.com/modelgate/credential-engine/internal/models"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// CredentialHandler exposes credential CRUD and activation for one workspace.
// Mutations go through the per-provider lifecycle controller, so its
// single-flight guard applies across concurrent requests: a request landing
// while another mutation is in flight is acknowledged but performs nothing.
type CredentialHandler struct {
	services *Services
}

func NewCredentialHandler(services *Services) *CredentialHandler {
	return &CredentialHandler{services: services}
}

// customModelFromQuery reads the optional model/model_type pair that scopes a
// request to one custom model.
func customModelFromQuery(c *fiber.Ctx) *models.CustomModel {
	model := c.Query("model")
	modelType := c.Query("model_type")
	if model == "" && modelType == "" {
		return nil
	}
	return &models.CustomModel{Model: model, ModelType: modelType}
}

// GetCredential returns one credential's fields with secrets obfuscated. With
// no id the active credential of the scope is returned.
func (h *CredentialHandler) GetCredential(c *fiber.Ctx) error {
	provider := c.Params("provider")
	credentialID := c.Query("credential_id")

	var (
		credentials map[string]any
		err         error
	)
	if model := customModelFromQuery(c); model != nil {
		credentials, err = h.services.Store(provider).ModelCredential(c.UserContext(), credentialID, *model)
	} else {
		credentials, err = h.services.Store(provider).ProviderCredential(c.UserContext(), credentialID)
	}
	if err != nil {
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	return c.JSON(fiber.Map{"credentials": credentials})
}

// SaveCredential adds or edits a credential. Presence of credential_id in the
// payload selects edit; presence of model selects the model-scoped variant.
func (h *CredentialHandler) SaveCredential(c *fiber.Ctx) error {
	provider := c.Params("provider")

	var payload models.CredentialPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(payload.Credentials) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "credentials are required"})
	}

	if err := h.services.Controller(provider).SaveCredential(c.UserContext(), payload); err != nil {
		fiberlog.Errorf("API: save credential failed for provider %s: %v", provider, err)
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	return c.JSON(fiber.Map{"result": models.ResultSuccess})
}

// DeleteCredential removes one credential, scoped to a model when the query
// carries one. The target is passed through directly rather than via the
// controller's pending confirmation state, which is gesture-scoped and would
// let concurrent requests overwrite each other's target.
func (h *CredentialHandler) DeleteCredential(c *fiber.Ctx) error {
	provider := c.Params("provider")
	credentialID := c.Params("credential_id")

	if err := h.services.Controller(provider).Delete(c.UserContext(), credentialID, customModelFromQuery(c)); err != nil {
		fiberlog.Errorf("API: delete credential failed for provider %s: %v", provider, err)
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	return c.JSON(fiber.Map{"result": models.ResultSuccess})
}

// DeleteModel removes a whole custom model and every credential scoped to it.
func (h *CredentialHandler) DeleteModel(c *fiber.Ctx) error {
	provider := c.Params("provider")

	model := customModelFromQuery(c)
	if model == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "model and model_type are required"})
	}

	if err := h.services.Controller(provider).Delete(c.UserContext(), "", model); err != nil {
		fiberlog.Errorf("API: delete model failed for provider %s: %v", provider, err)
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	return c.JSON(fiber.Map{"result": models.ResultSuccess})
}

// ActivateCredential makes the credential the active one for its scope.
func (h *CredentialHandler) ActivateCredential(c *fiber.Ctx) error {
	provider := c.Params("provider")
	credentialID := c.Params("credential_id")

	err := h.services.Controller(provider).ActivateCredential(c.UserContext(), credentialID, customModelFromQuery(c))
	if err != nil {
		fiberlog.Errorf("API: activate credential failed for provider %s: %v", provider, err)
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
	}

	return c.JSON(fiber.Map{"result": models.ResultSuccess})
}
