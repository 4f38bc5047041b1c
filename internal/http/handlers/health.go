package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is implemented by cache backends that depend on an external store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	backend string
	pinger  Pinger
}

// NewHealthHandler reports on the named cache backend. pinger may be nil for
// in-process backends.
func NewHealthHandler(backend string, pinger Pinger) *HealthHandler {
	return &HealthHandler{backend: backend, pinger: pinger}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"cache":  h.backend,
				"store":  "down",
				"time":   time.Now().UTC().Format(time.RFC3339),
			})
		}
	}

	return c.JSON(fiber.Map{
		"status": "ok",
		"cache":  h.backend,
		"store":  "up",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
