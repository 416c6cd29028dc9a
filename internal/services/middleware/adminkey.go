package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/modelgate/credential-engine/internal/models"

	"github.com/gofiber/fiber/v2"
)

// AdminKeyMiddleware guards the management API with a single pre-shared admin
// key, compared as a sha256 hash so the plaintext never sits in config.
type AdminKeyMiddleware struct {
	config models.AdminAuthConfig
}

func NewAdminKeyMiddleware(config models.AdminAuthConfig) *AdminKeyMiddleware {
	if config.HeaderName == "" {
		config.HeaderName = models.DefaultAdminAuthConfig().HeaderName
	}
	return &AdminKeyMiddleware{config: config}
}

// HashAdminKey returns the hex sha256 of a key, the form stored in config.
func HashAdminKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (m *AdminKeyMiddleware) RequireAdminKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !m.config.Enabled {
			return c.Next()
		}

		key := m.extractKey(c)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "admin key required",
			})
		}

		hashed := HashAdminKey(key)
		if subtle.ConstantTimeCompare([]byte(hashed), []byte(m.config.KeyHash)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid admin key",
			})
		}
		return c.Next()
	}
}

func (m *AdminKeyMiddleware) extractKey(c *fiber.Ctx) string {
	if key := c.Get(m.config.HeaderName); key != "" {
		return strings.TrimSpace(key)
	}

	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}
