package engine

import (
	"context"
	"fmt"
	"strings"

	"campus-backend/internal/metadata"
	"campus-backend/internal/store"
)

// LoadPreloads eager-loads every validated relation path onto the given
// rows. Each path is walked segment by segment; a segment's loaded children
// become the parent rows for the next segment, so "sections.icon" loads the
// sections of every row and then the icon of every section in two batched
// queries.
func LoadPreloads(ctx context.Context, q store.Querier, dialect store.Dialect, reg *metadata.Registry, rows []map[string]any, paths []PreloadPath) error {
	if len(rows) == 0 {
		return nil
	}
	for _, path := range paths {
		level := rows
		for _, rel := range path {
			children, err := loadRelation(ctx, q, dialect, reg, level, rel)
			if err != nil {
				return fmt.Errorf("preload %s: %w", rel.Name, err)
			}
			level = children
			if len(level) == 0 {
				break
			}
		}
	}
	return nil
}

// loadRelation loads one relation level for a batch of parent rows, attaches
// the results under the relation name, and returns the flattened children.
func loadRelation(ctx context.Context, q store.Querier, dialect store.Dialect, reg *metadata.Registry, parents []map[string]any, rel *metadata.Relation) ([]map[string]any, error) {
	target := reg.GetEntity(rel.Target)
	if target == nil {
		return nil, fmt.Errorf("unknown target entity: %s", rel.Target)
	}

	switch {
	case rel.IsBelongsTo():
		return loadBelongsTo(ctx, q, dialect, parents, rel, target)
	case rel.IsHasMany():
		return loadHasMany(ctx, q, dialect, reg, parents, rel, target)
	case rel.IsManyToMany():
		return loadManyToMany(ctx, q, dialect, reg, parents, rel, target)
	}
	return nil, fmt.Errorf("unknown relation kind: %s", rel.Kind)
}

func loadBelongsTo(ctx context.Context, q store.Querier, dialect store.Dialect, parents []map[string]any, rel *metadata.Relation, target *metadata.Entity) ([]map[string]any, error) {
	ids := collectValues(parents, rel.ForeignKey)
	if len(ids) == 0 {
		for _, p := range parents {
			p[rel.Name] = nil
		}
		return nil, nil
	}

	targets, err := fetchByColumn(ctx, q, dialect, target, target.PrimaryKey.Field, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]map[string]any, len(targets))
	for _, t := range targets {
		byID[keyOf(t[target.PrimaryKey.Field])] = t
	}
	for _, p := range parents {
		fk := p[rel.ForeignKey]
		if fk == nil {
			p[rel.Name] = nil
			continue
		}
		if t, ok := byID[keyOf(fk)]; ok {
			p[rel.Name] = t
		} else {
			p[rel.Name] = nil
		}
	}
	return targets, nil
}

func loadHasMany(ctx context.Context, q store.Querier, dialect store.Dialect, reg *metadata.Registry, parents []map[string]any, rel *metadata.Relation, target *metadata.Entity) ([]map[string]any, error) {
	owner := reg.GetEntity(rel.Owner)
	if owner == nil {
		return nil, fmt.Errorf("unknown owner entity: %s", rel.Owner)
	}
	ids := collectValues(parents, owner.PrimaryKey.Field)
	if len(ids) == 0 {
		return nil, nil
	}

	children, err := fetchByColumn(ctx, q, dialect, target, rel.ForeignKey, ids)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]map[string]any)
	for _, c := range children {
		k := keyOf(c[rel.ForeignKey])
		grouped[k] = append(grouped[k], c)
	}
	for _, p := range parents {
		k := keyOf(p[owner.PrimaryKey.Field])
		set := grouped[k]
		if set == nil {
			set = []map[string]any{}
		}
		p[rel.Name] = set
	}
	return children, nil
}

func loadManyToMany(ctx context.Context, q store.Querier, dialect store.Dialect, reg *metadata.Registry, parents []map[string]any, rel *metadata.Relation, target *metadata.Entity) ([]map[string]any, error) {
	owner := reg.GetEntity(rel.Owner)
	if owner == nil {
		return nil, fmt.Errorf("unknown owner entity: %s", rel.Owner)
	}
	ownerIDs := collectValues(parents, owner.PrimaryKey.Field)
	if len(ownerIDs) == 0 {
		return nil, nil
	}

	pb := dialect.NewParamBuilder()
	joinSQL := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s",
		rel.OwnerJoinKey, rel.TargetJoinKey, rel.JoinTable,
		dialect.InExpr(rel.OwnerJoinKey, pb, ownerIDs))
	joinRows, err := store.QueryRows(ctx, q, joinSQL, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("load join rows: %w", err)
	}
	if len(joinRows) == 0 {
		for _, p := range parents {
			p[rel.Name] = []map[string]any{}
		}
		return nil, nil
	}

	var targetIDs []any
	seen := make(map[string]bool)
	for _, jr := range joinRows {
		id := jr[rel.TargetJoinKey]
		if k := keyOf(id); !seen[k] {
			seen[k] = true
			targetIDs = append(targetIDs, id)
		}
	}

	targets, err := fetchByColumn(ctx, q, dialect, target, target.PrimaryKey.Field, targetIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]map[string]any, len(targets))
	for _, t := range targets {
		byID[keyOf(t[target.PrimaryKey.Field])] = t
	}

	grouped := make(map[string][]map[string]any)
	for _, jr := range joinRows {
		ownerKey := keyOf(jr[rel.OwnerJoinKey])
		if t, ok := byID[keyOf(jr[rel.TargetJoinKey])]; ok {
			grouped[ownerKey] = append(grouped[ownerKey], t)
		}
	}
	for _, p := range parents {
		k := keyOf(p[owner.PrimaryKey.Field])
		set := grouped[k]
		if set == nil {
			set = []map[string]any{}
		}
		p[rel.Name] = set
	}
	return targets, nil
}

func fetchByColumn(ctx context.Context, q store.Querier, dialect store.Dialect, entity *metadata.Entity, column string, values []any) ([]map[string]any, error) {
	pb := dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s ASC",
		strings.Join(entity.FieldNames(), ", "), entity.Table,
		dialect.InExpr(column, pb, values), entity.PrimaryKey.Field)
	return store.QueryRows(ctx, q, sqlStr, pb.Params()...)
}

// collectValues gathers distinct non-nil values of a column across rows.
func collectValues(rows []map[string]any, column string) []any {
	var out []any
	seen := make(map[string]bool)
	for _, r := range rows {
		v := r[column]
		if v == nil {
			continue
		}
		if k := keyOf(v); !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

func keyOf(v any) string {
	return fmt.Sprintf("%v", v)
}
