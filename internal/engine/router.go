package engine

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the generic controller under the given router
// group. Specific routes (counters, drafts, admin) must be registered
// before this: fiber matches in registration order and ":resource"
// swallows everything.
func RegisterRoutes(api fiber.Router, h *Handler) {
	api.Get("/:resource", h.List)
	api.Post("/:resource", h.Store)
	api.Get("/:resource/:id", h.Show)
	api.Patch("/:resource/:id", h.Update)
	api.Put("/:resource/:id", h.Update)
	api.Delete("/:resource/:id", h.Destroy)
}
