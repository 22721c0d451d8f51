package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"campus-backend/internal/metadata"
	"campus-backend/internal/store"
)

// Handler is the generic controller. One instance serves every registered
// resource; the route parameter selects the entity.
type Handler struct {
	store *store.Store
	reg   *metadata.Registry
	log   zerolog.Logger
}

func NewHandler(s *store.Store, reg *metadata.Registry, log zerolog.Logger) *Handler {
	return &Handler{store: s, reg: reg, log: log}
}

type listMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// List handles GET /api/:resource.
func (h *Handler) List(c *fiber.Ctx) error {
	rc, entity, err := h.resolve(c)
	if err != nil {
		return err
	}

	plan, err := BuildQueryPlan(h.reg, rc, entity, c.Queries())
	if err != nil {
		return err
	}

	query := BuildSelectSQL(plan, h.store.Dialect)
	rows, err := store.QueryRows(c.Context(), h.store.DB, query.SQL, query.Params...)
	if err != nil {
		return fmt.Errorf("list %s: %w", entity.Name, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	h.normalize(entity, rows)

	if err := LoadPreloads(c.Context(), h.store.DB, h.store.Dialect, h.reg, rows, plan.Preloads); err != nil {
		return fmt.Errorf("list %s: %w", entity.Name, err)
	}

	if !plan.Paged {
		return c.JSON(fiber.Map{"data": rows})
	}

	countQuery := BuildCountSQL(plan, h.store.Dialect)
	countRow, err := store.QueryRow(c.Context(), h.store.DB, countQuery.SQL, countQuery.Params...)
	if err != nil {
		return fmt.Errorf("count %s: %w", entity.Name, err)
	}
	total := 0
	switch v := countRow["count"].(type) {
	case int64:
		total = int(v)
	case int:
		total = v
	case float64:
		total = int(v)
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": listMeta{Page: plan.Page, Limit: plan.Limit, Total: total},
	})
}

// Show handles GET /api/:resource/:id. Singletons ignore the path id and
// return the pinned row.
func (h *Handler) Show(c *fiber.Ctx) error {
	rc, entity, err := h.resolve(c)
	if err != nil {
		return err
	}

	id, appErr := h.recordID(rc, entity, c.Params("id"))
	if appErr != nil {
		return appErr
	}

	record, err := FetchRecord(c.Context(), h.store.DB, h.store.Dialect, entity, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(entity.Name, c.Params("id"))
		}
		return fmt.Errorf("show %s: %w", entity.Name, err)
	}
	rows := []map[string]any{record}
	h.normalize(entity, rows)

	if raw := c.Query("with"); raw != "" {
		paths := ResolvePreloadPaths(h.reg, rc, entity.Name, strings.Split(raw, ","))
		if err := LoadPreloads(c.Context(), h.store.DB, h.store.Dialect, h.reg, rows, paths); err != nil {
			return fmt.Errorf("show %s: %w", entity.Name, err)
		}
	}

	return c.JSON(fiber.Map{"data": rows[0]})
}

// Store handles POST /api/:resource.
func (h *Handler) Store(c *fiber.Ctx) error {
	rc, entity, err := h.resolve(c)
	if err != nil {
		return err
	}
	if rc.IsSingleton() {
		return MethodNotAllowedError(fmt.Sprintf("%s is a singleton; it cannot be created", entity.Name))
	}

	body, appErr := parseBody(c)
	if appErr != nil {
		return appErr
	}

	plan, details := PlanWrite(entity, h.reg, rc, body, nil)
	if details != nil {
		return ValidationError(details)
	}

	record, err := ExecuteWritePlan(c.Context(), h.store, h.reg, rc, plan)
	if err != nil {
		return h.writeError(entity, err)
	}
	rows := []map[string]any{record}
	h.normalize(entity, rows)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": rows[0]})
}

// Update handles PATCH /api/:resource/:id. Only keys present in the payload
// change; a JSON null clears a nullable field.
func (h *Handler) Update(c *fiber.Ctx) error {
	rc, entity, err := h.resolve(c)
	if err != nil {
		return err
	}

	id, appErr := h.recordID(rc, entity, c.Params("id"))
	if appErr != nil {
		return appErr
	}

	body, appErr := parseBody(c)
	if appErr != nil {
		return appErr
	}

	plan, details := PlanWrite(entity, h.reg, rc, body, id)
	if details != nil {
		return ValidationError(details)
	}

	record, err := ExecuteWritePlan(c.Context(), h.store, h.reg, rc, plan)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(entity.Name, c.Params("id"))
		}
		return h.writeError(entity, err)
	}
	rows := []map[string]any{record}
	h.normalize(entity, rows)

	return c.JSON(fiber.Map{"data": rows[0]})
}

// Destroy handles DELETE /api/:resource/:id.
func (h *Handler) Destroy(c *fiber.Ctx) error {
	rc, entity, err := h.resolve(c)
	if err != nil {
		return err
	}
	if rc.IsSingleton() {
		return MethodNotAllowedError(fmt.Sprintf("%s is a singleton; it cannot be deleted", entity.Name))
	}

	id, appErr := h.recordID(rc, entity, c.Params("id"))
	if appErr != nil {
		return appErr
	}

	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		entity.Table, entity.PrimaryKey.Field, pb.Add(id))
	n, err := store.Exec(c.Context(), h.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return h.writeError(entity, err)
	}
	if n == 0 {
		return NotFoundError(entity.Name, c.Params("id"))
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// resolve maps the :resource route parameter to its registered entity.
func (h *Handler) resolve(c *fiber.Ctx) (*metadata.ResourceConfig, *metadata.Entity, error) {
	name := c.Params("resource")
	rc := h.reg.GetResource(name)
	if rc == nil {
		return nil, nil, UnknownResourceError(name)
	}
	entity := h.reg.GetEntity(rc.Entity)
	if entity == nil {
		return nil, nil, UnknownResourceError(name)
	}
	return rc, entity, nil
}

// recordID validates the path id against the primary key's type. Singletons
// ignore the path id entirely. A malformed id can never match a row, so it
// reports NotFound rather than a payload error.
func (h *Handler) recordID(rc *metadata.ResourceConfig, entity *metadata.Entity, raw string) (any, *AppError) {
	if rc.IsSingleton() {
		return rc.SingletonID, nil
	}
	switch entity.PrimaryKey.Type {
	case "int", "bigint":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, NotFoundError(entity.Name, raw)
		}
		return n, nil
	case "uuid":
		if _, err := uuid.Parse(raw); err != nil {
			return nil, NotFoundError(entity.Name, raw)
		}
		return raw, nil
	default:
		return raw, nil
	}
}

// normalize fixes up driver representations before serialization.
func (h *Handler) normalize(entity *metadata.Entity, rows []map[string]any) {
	if !h.store.Dialect.NeedsBoolFix() {
		return
	}
	var boolFields []string
	for _, f := range entity.Fields {
		if f.Type == metadata.TypeBoolean {
			boolFields = append(boolFields, f.Name)
		}
	}
	store.NormalizeBooleans(rows, boolFields)
}

// writeError maps storage-level failures onto the error taxonomy.
func (h *Handler) writeError(entity *metadata.Entity, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return ConflictError(fmt.Sprintf("%s violates a unique constraint", entity.Name))
	}
	if errors.Is(err, store.ErrCheckViolation) {
		return ConflictError(fmt.Sprintf("%s violates a check constraint", entity.Name))
	}
	return err
}

// parseBody decodes a JSON object body. Using a map instead of a struct
// keeps the null-vs-absent distinction partial updates depend on.
func parseBody(c *fiber.Ctx) (map[string]any, *AppError) {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return nil, InvalidPayloadError()
	}
	if body == nil {
		return nil, InvalidPayloadError()
	}
	return body, nil
}

// ErrorHandler is the fiber error boundary. Taxonomy errors serialize as-is;
// anything else is logged in full and reported as a generic internal error.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Error: NewAppError("INTERNAL_ERROR", fiberErr.Code, fiberErr.Message),
			})
		}
		log.Error().Err(err).Str("path", c.Path()).Str("method", c.Method()).Msg("unhandled error")
		internal := InternalError()
		return c.Status(internal.Status).JSON(ErrorResponse{Error: internal})
	}
}
