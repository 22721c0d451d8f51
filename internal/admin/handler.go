package admin

import (
	"github.com/gofiber/fiber/v2"
)

// Handler serves the pre-built resource descriptors.
type Handler struct {
	resources []Resource
}

func NewHandler(resources []Resource) *Handler {
	return &Handler{resources: resources}
}

// RegisterRoutes mounts the read-only admin metadata endpoint.
func RegisterRoutes(app *fiber.App, h *Handler, middlewares ...fiber.Handler) {
	group := app.Group("/api/_admin", middlewares...)
	group.Get("/resources", h.ListResources)
}

func (h *Handler) ListResources(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.resources})
}
