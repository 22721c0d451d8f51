package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"campus-backend/internal/metadata"
	"campus-backend/internal/store"
)

// IncrementCounter bumps a counter column by one inside a serializable
// transaction and returns the new value. Read-modify-write at a weaker
// isolation level loses concurrent bumps.
func IncrementCounter(ctx context.Context, s *store.Store, entity *metadata.Entity, field string, id any) (int64, error) {
	tx, err := s.BeginSerializableTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("UPDATE %s SET %s = %s + 1 WHERE %s = %s",
		entity.Table, field, field, entity.PrimaryKey.Field, pb.Add(id))
	n, err := store.Exec(ctx, tx, sqlStr, pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("increment %s.%s: %w", entity.Table, field, err)
	}
	if n == 0 {
		return 0, store.ErrNotFound
	}

	pb = s.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, tx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
			field, entity.Table, entity.PrimaryKey.Field, pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	var value int64
	switch v := row[field].(type) {
	case int64:
		value = v
	case int:
		value = int64(v)
	case float64:
		value = int64(v)
	}
	return value, nil
}

// CounterRoute returns a fiber handler bumping the named counter field of
// one entity by path id.
func (h *Handler) CounterRoute(entityName, field string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entity := h.reg.GetEntity(entityName)
		rc := h.reg.GetResource(entityName)
		if entity == nil || rc == nil {
			return UnknownResourceError(entityName)
		}
		id, appErr := h.recordID(rc, entity, c.Params("id"))
		if appErr != nil {
			return appErr
		}
		value, err := IncrementCounter(c.Context(), h.store, entity, field, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return NotFoundError(entityName, c.Params("id"))
			}
			return err
		}
		return c.JSON(fiber.Map{"data": fiber.Map{field: value}})
	}
}
