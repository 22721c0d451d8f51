package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"campus-backend/internal/engine"
	"campus-backend/internal/metadata"
	"campus-backend/internal/store"
)

// Workflow implements the draft lifecycle for moderated resources: editors
// submit drafts, reviewers approve or reject them. Approval is the only way
// a draft's content reaches the approved table.
type Workflow struct {
	store *store.Store
	reg   *metadata.Registry
}

func NewWorkflow(s *store.Store, reg *metadata.Registry) *Workflow {
	return &Workflow{store: s, reg: reg}
}

// resolve maps a resource name to its moderated configuration and the
// approved/draft entity pair.
func (w *Workflow) resolve(resource string) (*metadata.ResourceConfig, *metadata.Entity, *metadata.Entity, error) {
	rc := w.reg.GetResource(resource)
	if rc == nil {
		return nil, nil, nil, engine.UnknownResourceError(resource)
	}
	if !rc.Moderated {
		return nil, nil, nil, engine.MethodNotAllowedError(fmt.Sprintf("%s does not go through moderation", resource))
	}
	approved := w.reg.GetEntity(rc.Entity)
	draft := w.reg.GetEntity(rc.Entity + "_draft")
	if approved == nil || draft == nil {
		return nil, nil, nil, engine.UnknownResourceError(resource)
	}
	return rc, approved, draft, nil
}

// Submit stores a new pending draft. A draft with a non-null original_id
// proposes changes to an existing approved row; at most one such draft may
// be pending per row, checked in the same transaction that inserts it and
// backed by the unique index on original_id.
func (w *Workflow) Submit(ctx context.Context, resource string, body map[string]any, createdBy string) (map[string]any, error) {
	_, approved, draft, err := w.resolve(resource)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(body))
	var details []engine.ErrorDetail
	for key, value := range body {
		if key == "created_by" {
			details = append(details, engine.ErrorDetail{
				Field: key, Rule: "readonly", Message: "created_by is set from the authenticated user",
			})
			continue
		}
		if !draft.HasField(key) {
			details = append(details, engine.ErrorDetail{
				Field: key, Rule: "unknown", Message: fmt.Sprintf("Unknown field: %s", key),
			})
			continue
		}
		fields[key] = value
	}
	if len(details) > 0 {
		return nil, engine.ValidationError(details)
	}
	fields["created_by"] = createdBy
	if errs := engine.ValidateFields(draft, fields, true); len(errs) > 0 {
		return nil, engine.ValidationError(errs)
	}

	tx, err := w.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if originalID := fields["original_id"]; originalID != nil {
		if _, err := engine.FetchRecord(ctx, tx, w.store.Dialect, approved, originalID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, engine.NotFoundError(approved.Name, fmt.Sprintf("%v", originalID))
			}
			return nil, fmt.Errorf("fetch original: %w", err)
		}
		pending, err := w.pendingDraft(ctx, tx, draft, originalID)
		if err != nil {
			return nil, err
		}
		if pending {
			return nil, engine.ConflictError(fmt.Sprintf("%s already has a pending draft", approved.Name))
		}
	}

	fields[draft.PrimaryKey.Field] = uuid.NewString()
	sqlStr, params := engine.BuildInsertSQL(draft, fields, w.store.Dialect)
	row, err := store.QueryRow(ctx, tx, sqlStr, params...)
	if err != nil {
		mapped := w.store.Dialect.MapError(err)
		if errors.Is(mapped, store.ErrUniqueViolation) {
			return nil, engine.ConflictError(fmt.Sprintf("%s already has a pending draft", approved.Name))
		}
		return nil, fmt.Errorf("insert draft: %w", mapped)
	}

	record, err := engine.FetchRecord(ctx, tx, w.store.Dialect, draft, row[draft.PrimaryKey.Field])
	if err != nil {
		return nil, fmt.Errorf("fetch draft: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return record, nil
}

// List returns pending drafts for review, with the usual search and sort
// scopes available.
func (w *Workflow) List(ctx context.Context, resource string, params map[string]string) ([]map[string]any, error) {
	_, _, draft, err := w.resolve(resource)
	if err != nil {
		return nil, err
	}

	rc := &metadata.ResourceConfig{Entity: draft.Name}
	plan, err := engine.BuildQueryPlan(w.reg, rc, draft, params)
	if err != nil {
		return nil, err
	}
	query := engine.BuildSelectSQL(plan, w.store.Dialect)
	rows, err := store.QueryRows(ctx, w.store.DB, query.SQL, query.Params...)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// Approve applies a draft in one transaction: the approved row is inserted
// (original_id null) or updated (non-null), the approved table's ord
// sequence is renumbered to 1..n, and the draft is deleted. A crash at any
// point leaves the pre-approval state.
func (w *Workflow) Approve(ctx context.Context, resource, draftID string) (map[string]any, error) {
	rc, approved, draft, err := w.resolve(resource)
	if err != nil {
		return nil, err
	}

	tx, err := w.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	draftRow, err := engine.FetchRecord(ctx, tx, w.store.Dialect, draft, draftID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, engine.NotFoundError(draft.Name, draftID)
		}
		return nil, fmt.Errorf("fetch draft: %w", err)
	}

	fields := make(map[string]any)
	for _, f := range approved.WritableFields() {
		if v, ok := draftRow[f.Name]; ok {
			fields[f.Name] = v
		}
	}

	var approvedID any
	if originalID := draftRow["original_id"]; originalID != nil {
		current, err := engine.FetchRecord(ctx, tx, w.store.Dialect, approved, originalID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, engine.NotFoundError(approved.Name, fmt.Sprintf("%v", originalID))
			}
			return nil, fmt.Errorf("fetch original: %w", err)
		}
		if rc.Hooks.PreUpdate != nil {
			if err := rc.Hooks.PreUpdate(ctx, fields, current); err != nil {
				return nil, err
			}
		}
		sqlStr, params := engine.BuildUpdateSQL(approved, originalID, fields, w.store.Dialect)
		if sqlStr != "" {
			if _, err := store.Exec(ctx, tx, sqlStr, params...); err != nil {
				return nil, fmt.Errorf("update approved: %w", w.store.Dialect.MapError(err))
			}
		}
		approvedID = originalID
	} else {
		if rc.Hooks.PreStore != nil {
			if err := rc.Hooks.PreStore(ctx, fields); err != nil {
				return nil, err
			}
		}
		fields[approved.PrimaryKey.Field] = uuid.NewString()
		sqlStr, params := engine.BuildInsertSQL(approved, fields, w.store.Dialect)
		row, err := store.QueryRow(ctx, tx, sqlStr, params...)
		if err != nil {
			return nil, fmt.Errorf("insert approved: %w", w.store.Dialect.MapError(err))
		}
		approvedID = row[approved.PrimaryKey.Field]
	}

	if approved.HasField("ord") {
		if err := w.normalizeOrd(ctx, tx, approved); err != nil {
			return nil, err
		}
	}

	pb := w.store.Dialect.NewParamBuilder()
	delSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		draft.Table, draft.PrimaryKey.Field, pb.Add(draftID))
	if _, err := store.Exec(ctx, tx, delSQL, pb.Params()...); err != nil {
		return nil, fmt.Errorf("delete draft: %w", err)
	}

	record, err := engine.FetchRecord(ctx, tx, w.store.Dialect, approved, approvedID)
	if err != nil {
		return nil, fmt.Errorf("fetch approved: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return record, nil
}

// Reject deletes the draft without touching the approved table.
func (w *Workflow) Reject(ctx context.Context, resource, draftID string) error {
	_, _, draft, err := w.resolve(resource)
	if err != nil {
		return err
	}

	tx, err := w.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	pb := w.store.Dialect.NewParamBuilder()
	delSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		draft.Table, draft.PrimaryKey.Field, pb.Add(draftID))
	n, err := store.Exec(ctx, tx, delSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError(draft.Name, draftID)
	}
	return tx.Commit()
}

func (w *Workflow) pendingDraft(ctx context.Context, q store.Querier, draft *metadata.Entity, originalID any) (bool, error) {
	pb := w.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s WHERE original_id = %s",
		draft.Table, pb.Add(originalID))
	row, err := store.QueryRow(ctx, q, sqlStr, pb.Params()...)
	if err != nil {
		return false, fmt.Errorf("check pending draft: %w", err)
	}
	switch v := row["count"].(type) {
	case int64:
		return v > 0, nil
	case int:
		return v > 0, nil
	case float64:
		return v > 0, nil
	}
	return false, nil
}

// normalizeOrd renumbers the approved table's ord column to a dense 1..n
// sequence, keeping the existing relative order. Rows without an ord sort
// last by primary key.
func (w *Workflow) normalizeOrd(ctx context.Context, q store.Querier, approved *metadata.Entity) error {
	sqlStr := fmt.Sprintf("SELECT %s FROM %s ORDER BY ord IS NULL, ord ASC, %s ASC",
		approved.PrimaryKey.Field, approved.Table, approved.PrimaryKey.Field)
	rows, err := store.QueryRows(ctx, q, sqlStr)
	if err != nil {
		return fmt.Errorf("load ord sequence: %w", err)
	}
	for i, row := range rows {
		pb := w.store.Dialect.NewParamBuilder()
		upSQL := fmt.Sprintf("UPDATE %s SET ord = %s WHERE %s = %s",
			approved.Table, pb.Add(float64(i+1)), approved.PrimaryKey.Field, pb.Add(row[approved.PrimaryKey.Field]))
		if _, err := store.Exec(ctx, q, upSQL, pb.Params()...); err != nil {
			return fmt.Errorf("renumber ord: %w", err)
		}
	}
	return nil
}
