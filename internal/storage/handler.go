package storage

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"campus-backend/internal/engine"
	"campus-backend/internal/store"
)

// Handler serves file uploads and downloads. Rows live in the files table;
// blobs live in FileStorage. The generic controller still handles listing
// and showing file rows.
type Handler struct {
	store   *store.Store
	storage FileStorage
	maxSize int64
}

func NewHandler(s *store.Store, fs FileStorage, maxSize int64) *Handler {
	return &Handler{store: s, storage: fs, maxSize: maxSize}
}

// RegisterRoutes mounts the upload, download, and delete routes. Must run
// before the generic resource routes so these win route matching.
func RegisterRoutes(api fiber.Router, h *Handler) {
	api.Post("/file/upload", h.Upload)
	api.Get("/file/:id/content", h.Serve)
	api.Delete("/file/:id", h.Delete)
}

func (h *Handler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Missing file in form data")
	}

	if file.Size > h.maxSize {
		msg := fmt.Sprintf("File too large: %d bytes (max %d)", file.Size, h.maxSize)
		return engine.NewAppError("FILE_TOO_LARGE", 413, msg)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	fileID := uuid.New().String()
	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	storagePath, err := h.storage.Save(c.Context(), fileID, file.Filename, src)
	if err != nil {
		return fmt.Errorf("save file: %w", err)
	}

	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO files (id, name, path, mime_type, size) VALUES (%s, %s, %s, %s, %s)",
		pb.Add(fileID), pb.Add(file.Filename), pb.Add(storagePath), pb.Add(mimeType), pb.Add(file.Size))
	if _, err := store.Exec(c.Context(), h.store.DB, sqlStr, pb.Params()...); err != nil {
		// Don't leave an orphaned blob behind.
		_ = h.storage.Delete(c.Context(), storagePath)
		return fmt.Errorf("insert file row: %w", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"id":        fileID,
			"name":      file.Filename,
			"size":      file.Size,
			"mime_type": mimeType,
			"url":       "/api/file/" + fileID + "/content",
		},
	})
}

func (h *Handler) Serve(c *fiber.Ctx) error {
	id := c.Params("id")

	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(c.Context(), h.store.DB,
		"SELECT name, path, mime_type FROM files WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return engine.NotFoundError("file", id)
	}

	storagePath, _ := row["path"].(string)
	mimeType, _ := row["mime_type"].(string)
	name, _ := row["name"].(string)

	reader, err := h.storage.Open(c.Context(), storagePath)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}

	c.Set("Content-Type", mimeType)
	c.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, name))

	return c.SendStream(reader)
}

func (h *Handler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")

	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(c.Context(), h.store.DB,
		"SELECT path FROM files WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return engine.NotFoundError("file", id)
	}

	storagePath, _ := row["path"].(string)
	if err := h.storage.Delete(c.Context(), storagePath); err != nil {
		return fmt.Errorf("delete stored file: %w", err)
	}

	pb = h.store.Dialect.NewParamBuilder()
	if _, err := store.Exec(c.Context(), h.store.DB,
		"DELETE FROM files WHERE id = "+pb.Add(id), pb.Params()...); err != nil {
		return fmt.Errorf("delete file row: %w", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
