package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"campus-backend/internal/metadata"
	"campus-backend/internal/store"
)

// WritePlan describes the full set of operations for a write request.
type WritePlan struct {
	IsCreate bool
	Entity   *metadata.Entity
	Fields   map[string]any
	ID       any // nil for create, set for update
	ChildOps []*RelationWrite
}

// RelationWrite is a nested write through a crudRelations entry.
type RelationWrite struct {
	Relation *metadata.Relation
	Rows     []map[string]any
}

// PlanWrite builds a WritePlan from the request body without executing any
// SQL. Relation keys are only accepted when listed in crudRelations; every
// other unknown key is rejected.
func PlanWrite(entity *metadata.Entity, reg *metadata.Registry, rc *metadata.ResourceConfig, body map[string]any, existingID any) (*WritePlan, []ErrorDetail) {
	fields := make(map[string]any)
	var childOps []*RelationWrite
	var errs []ErrorDetail

	for key, value := range body {
		if entity.HasField(key) {
			fields[key] = value
			continue
		}
		if rel := reg.GetRelation(entity.Name, key); rel != nil {
			if !rc.AllowsCrudRelation(key) {
				errs = append(errs, ErrorDetail{
					Field:   key,
					Rule:    "readonly",
					Message: fmt.Sprintf("Relation %s is not writable", key),
				})
				continue
			}
			rows, detail := relationRows(key, value)
			if detail != nil {
				errs = append(errs, *detail)
				continue
			}
			childOps = append(childOps, &RelationWrite{Relation: rel, Rows: rows})
			continue
		}
		errs = append(errs, ErrorDetail{
			Field:   key,
			Rule:    "unknown",
			Message: fmt.Sprintf("Unknown field or relation: %s", key),
		})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	isCreate := existingID == nil
	if errs := ValidateFields(entity, fields, isCreate); len(errs) > 0 {
		return nil, errs
	}

	for _, op := range childOps {
		if op.Relation.IsManyToMany() {
			// Membership rows only carry ids of existing targets.
			continue
		}
		target := reg.GetEntity(op.Relation.Target)
		for _, row := range op.Rows {
			// A row without a primary key becomes a new child, so required
			// fields must be present up front.
			isNew := row[target.PrimaryKey.Field] == nil
			child := cloneWithout(row, target.PrimaryKey.Field)
			for _, d := range ValidateFields(target, child, isNew) {
				if d.Field == op.Relation.ForeignKey && d.Rule == "required" {
					// Assigned from the parent row.
					continue
				}
				d.Field = op.Relation.Name + "." + d.Field
				errs = append(errs, d)
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	return &WritePlan{
		IsCreate: isCreate,
		Entity:   entity,
		Fields:   fields,
		ID:       existingID,
		ChildOps: childOps,
	}, nil
}

// relationRows normalizes a relation payload. Has-many payloads are lists
// of objects; many-to-many payloads may also be bare id lists.
func relationRows(key string, value any) ([]map[string]any, *ErrorDetail) {
	list, ok := value.([]any)
	if !ok {
		return nil, &ErrorDetail{
			Field:   key,
			Rule:    "type",
			Message: fmt.Sprintf("%s must be a list", key),
		}
	}
	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case map[string]any:
			rows = append(rows, v)
		case string, float64, int, int64:
			rows = append(rows, map[string]any{"id": v})
		default:
			return nil, &ErrorDetail{
				Field:   key,
				Rule:    "type",
				Message: fmt.Sprintf("%s entries must be objects or ids", key),
			}
		}
	}
	return rows, nil
}

// ExecuteWritePlan runs the planned operations inside a single transaction:
// pre hook, parent write, child relation writes, post hook. Any failure
// rolls everything back; partial relation writes are never visible.
func ExecuteWritePlan(ctx context.Context, s *store.Store, reg *metadata.Registry, rc *metadata.ResourceConfig, plan *WritePlan) (map[string]any, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current map[string]any
	if !plan.IsCreate {
		current, err = FetchRecord(ctx, tx, s.Dialect, plan.Entity, plan.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch current %s/%v: %w", plan.Entity.Name, plan.ID, err)
		}
	}

	if plan.IsCreate {
		if rc.Hooks.PreStore != nil {
			if err := rc.Hooks.PreStore(ctx, plan.Fields); err != nil {
				return nil, hookError(err)
			}
		}
	} else {
		if rc.Hooks.PreUpdate != nil {
			if err := rc.Hooks.PreUpdate(ctx, plan.Fields, current); err != nil {
				return nil, hookError(err)
			}
		}
	}

	var parentID any
	if plan.IsCreate {
		pk := plan.Entity.PrimaryKey
		if pk.Generated && pk.Type == "uuid" {
			// Generated app-side so both dialects behave identically.
			plan.Fields[pk.Field] = uuid.NewString()
		}
		sqlStr, params := BuildInsertSQL(plan.Entity, plan.Fields, s.Dialect)
		row, err := store.QueryRow(ctx, tx, sqlStr, params...)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", plan.Entity.Table, s.Dialect.MapError(err))
		}
		parentID = row[pk.Field]
	} else {
		parentID = plan.ID
		sqlStr, params := BuildUpdateSQL(plan.Entity, plan.ID, plan.Fields, s.Dialect)
		if sqlStr != "" {
			if _, err := store.Exec(ctx, tx, sqlStr, params...); err != nil {
				return nil, fmt.Errorf("update %s: %w", plan.Entity.Table, s.Dialect.MapError(err))
			}
		}
	}

	for _, op := range plan.ChildOps {
		if err := executeChildWrite(ctx, tx, s.Dialect, reg, parentID, op); err != nil {
			return nil, fmt.Errorf("write relation %s: %w", op.Relation.Name, err)
		}
	}

	record, err := FetchRecord(ctx, tx, s.Dialect, plan.Entity, parentID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%v: %w", plan.Entity.Name, parentID, err)
	}

	if plan.IsCreate {
		if rc.Hooks.PostStore != nil {
			if err := rc.Hooks.PostStore(ctx, record); err != nil {
				return nil, hookError(err)
			}
		}
	} else {
		if rc.Hooks.PostUpdate != nil {
			if err := rc.Hooks.PostUpdate(ctx, record, current); err != nil {
				return nil, hookError(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return record, nil
}

// hookError passes validation-shaped hook failures through and wraps
// everything else so the boundary reports an internal error.
func hookError(err error) error {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return fmt.Errorf("hook: %w", err)
}

// executeChildWrite applies replace semantics: incoming rows with a primary
// key update the existing child, rows without one are inserted, and current
// children absent from the payload are removed.
func executeChildWrite(ctx context.Context, q store.Querier, dialect store.Dialect, reg *metadata.Registry, parentID any, op *RelationWrite) error {
	if op.Relation.IsManyToMany() {
		return replaceJoinRows(ctx, q, dialect, parentID, op)
	}
	return replaceChildren(ctx, q, dialect, reg, parentID, op)
}

func replaceChildren(ctx context.Context, q store.Querier, dialect store.Dialect, reg *metadata.Registry, parentID any, op *RelationWrite) error {
	rel := op.Relation
	target := reg.GetEntity(rel.Target)
	if target == nil {
		return fmt.Errorf("unknown target entity: %s", rel.Target)
	}
	pkField := target.PrimaryKey.Field

	pb := dialect.NewParamBuilder()
	currentSQL := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		pkField, target.Table, rel.ForeignKey, pb.Add(parentID))
	currentRows, err := store.QueryRows(ctx, q, currentSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("fetch current children: %w", err)
	}
	existing := make(map[string]bool, len(currentRows))
	for _, r := range currentRows {
		existing[fmt.Sprintf("%v", r[pkField])] = true
	}

	seen := make(map[string]bool)
	for _, row := range op.Rows {
		pk := row[pkField]
		if pk != nil && existing[fmt.Sprintf("%v", pk)] {
			seen[fmt.Sprintf("%v", pk)] = true
			child := cloneWithout(row, pkField)
			sqlStr, params := BuildUpdateSQL(target, pk, child, dialect)
			if sqlStr != "" {
				if _, err := store.Exec(ctx, q, sqlStr, params...); err != nil {
					return fmt.Errorf("update child: %w", dialect.MapError(err))
				}
			}
			continue
		}
		child := cloneWithout(row, pkField)
		child[rel.ForeignKey] = parentID
		if target.PrimaryKey.Generated && target.PrimaryKey.Type == "uuid" {
			child[pkField] = uuid.NewString()
		}
		sqlStr, params := BuildInsertSQL(target, child, dialect)
		if _, err := store.QueryRow(ctx, q, sqlStr, params...); err != nil {
			return fmt.Errorf("insert child: %w", dialect.MapError(err))
		}
	}

	for pkStr := range existing {
		if seen[pkStr] {
			continue
		}
		pb := dialect.NewParamBuilder()
		delSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
			target.Table, pkField, pb.Add(pkStr), rel.ForeignKey, pb.Add(parentID))
		if _, err := store.Exec(ctx, q, delSQL, pb.Params()...); err != nil {
			return fmt.Errorf("delete child: %w", err)
		}
	}
	return nil
}

func replaceJoinRows(ctx context.Context, q store.Querier, dialect store.Dialect, parentID any, op *RelationWrite) error {
	rel := op.Relation

	pb := dialect.NewParamBuilder()
	delSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", rel.JoinTable, rel.OwnerJoinKey, pb.Add(parentID))
	if _, err := store.Exec(ctx, q, delSQL, pb.Params()...); err != nil {
		return fmt.Errorf("clear join rows: %w", err)
	}

	for _, row := range op.Rows {
		targetID := row["id"]
		if targetID == nil {
			continue
		}
		pb := dialect.NewParamBuilder()
		insSQL := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
			rel.JoinTable, rel.OwnerJoinKey, rel.TargetJoinKey, pb.Add(parentID), pb.Add(targetID))
		if _, err := store.Exec(ctx, q, insSQL, pb.Params()...); err != nil {
			return fmt.Errorf("insert join row: %w", dialect.MapError(err))
		}
	}
	return nil
}

// BuildInsertSQL builds an INSERT with RETURNING for the primary key.
// Columns follow declaration order so statements are deterministic.
func BuildInsertSQL(entity *metadata.Entity, fields map[string]any, dialect store.Dialect) (string, []any) {
	pb := dialect.NewParamBuilder()
	var cols, vals []string
	for _, f := range entity.Fields {
		if f.IsAuto() {
			cols = append(cols, f.Name)
			vals = append(vals, dialect.NowExpr())
			continue
		}
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		cols = append(cols, f.Name)
		vals = append(vals, pb.Add(v))
	}
	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		entity.Table, strings.Join(cols, ", "), strings.Join(vals, ", "), entity.PrimaryKey.Field)
	return sqlStr, pb.Params()
}

// BuildUpdateSQL builds a partial UPDATE: only keys present in fields are
// set; a nil value clears the column. Returns an empty string when there is
// nothing to set.
func BuildUpdateSQL(entity *metadata.Entity, id any, fields map[string]any, dialect store.Dialect) (string, []any) {
	pb := dialect.NewParamBuilder()
	var sets []string
	for _, f := range entity.Fields {
		if f.Auto == "update" {
			sets = append(sets, fmt.Sprintf("%s = %s", f.Name, dialect.NowExpr()))
			continue
		}
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		if v == nil {
			sets = append(sets, f.Name+" = NULL")
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", f.Name, pb.Add(v)))
	}
	if len(sets) == 0 {
		return "", nil
	}
	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		entity.Table, strings.Join(sets, ", "), entity.PrimaryKey.Field, pb.Add(id))
	return sqlStr, pb.Params()
}

// FetchRecord loads a single row by primary key.
func FetchRecord(ctx context.Context, q store.Querier, dialect store.Dialect, entity *metadata.Entity, id any) (map[string]any, error) {
	pb := dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(entity.FieldNames(), ", "), entity.Table, entity.PrimaryKey.Field, pb.Add(id))
	return store.QueryRow(ctx, q, sqlStr, pb.Params()...)
}

func cloneWithout(row map[string]any, key string) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if k == key {
			continue
		}
		out[k] = v
	}
	return out
}
