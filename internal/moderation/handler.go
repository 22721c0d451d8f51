package moderation

import (
	"github.com/gofiber/fiber/v2"

	"campus-backend/internal/engine"
)

// Handler exposes the draft workflow over HTTP. Routes must be registered
// before the generic resource routes so the "drafts" segment is not
// swallowed by the ":id" parameter.
type Handler struct {
	workflow *Workflow
}

func NewHandler(w *Workflow) *Handler {
	return &Handler{workflow: w}
}

// RegisterRoutes mounts the workflow routes. The reviewer middleware guards
// approve and reject; submit and list only need an authenticated user.
func RegisterRoutes(api fiber.Router, h *Handler, reviewerOnly fiber.Handler) {
	api.Get("/:resource/drafts", h.List)
	api.Post("/:resource/drafts", h.Submit)
	api.Post("/:resource/drafts/:id/approve", reviewerOnly, h.Approve)
	api.Post("/:resource/drafts/:id/reject", reviewerOnly, h.Reject)
}

func (h *Handler) Submit(c *fiber.Ctx) error {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil || body == nil {
		return engine.InvalidPayloadError()
	}

	userID, _ := c.Locals("user_id").(string)
	record, err := h.workflow.Submit(c.Context(), c.Params("resource"), body, userID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": record})
}

func (h *Handler) List(c *fiber.Ctx) error {
	rows, err := h.workflow.List(c.Context(), c.Params("resource"), c.Queries())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *Handler) Approve(c *fiber.Ctx) error {
	record, err := h.workflow.Approve(c.Context(), c.Params("resource"), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}

func (h *Handler) Reject(c *fiber.Ctx) error {
	if err := h.workflow.Reject(c.Context(), c.Params("resource"), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
