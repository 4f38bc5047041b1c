package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	requestIDLocal  = "requestId"
	headerRequestID = "X-Request-Id"
)

// CORS allows any origin and answers preflight requests with 200 and an
// empty body.
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET, OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type")

		if c.Method() == fiber.MethodOptions {
			return c.Status(fiber.StatusOK).Send(nil)
		}
		return c.Next()
	}
}

// RequestID keeps a caller supplied X-Request-Id or assigns a new one.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(requestIDLocal, id)
		c.Set(headerRequestID, id)
		return c.Next()
	}
}
