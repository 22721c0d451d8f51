package store

import (
	"context"
	"fmt"
	"strings"

	"campus-backend/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Bootstrap migrates every registered entity and join table, then verifies
// that no physical column is left without a descriptor. A verification
// failure is fatal: an undescribed column would silently bypass validation
// and search, so the process must not start.
func (m *Migrator) Bootstrap(ctx context.Context, reg *metadata.Registry) error {
	for _, entity := range orderEntities(reg) {
		if err := m.Migrate(ctx, reg, entity); err != nil {
			return fmt.Errorf("migrate %s: %w", entity.Name, err)
		}
	}
	for _, entity := range reg.AllEntities() {
		for _, rel := range reg.RelationsForOwner(entity.Name) {
			if !rel.IsManyToMany() {
				continue
			}
			if err := m.MigrateJoinTable(ctx, reg, rel); err != nil {
				return fmt.Errorf("migrate join table %s: %w", rel.JoinTable, err)
			}
		}
	}
	return m.VerifySchema(ctx, reg)
}

// Migrate ensures the table matches the entity metadata. Creates the table
// if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, reg *metadata.Registry, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		if err := m.createTable(ctx, reg, entity); err != nil {
			return err
		}
	} else {
		if err := m.alterTable(ctx, reg, entity); err != nil {
			return err
		}
	}

	return m.createIndexes(ctx, entity)
}

// MigrateJoinTable creates the join table for a many-to-many relation if it
// doesn't exist.
func (m *Migrator) MigrateJoinTable(ctx context.Context, reg *metadata.Registry, rel *metadata.Relation) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, rel.JoinTable)
	if err != nil {
		return fmt.Errorf("check join table exists: %w", err)
	}
	if exists {
		return nil
	}

	owner := reg.GetEntity(rel.Owner)
	target := reg.GetEntity(rel.Target)
	if owner == nil || target == nil {
		return fmt.Errorf("cannot resolve entities for join table %s", rel.JoinTable)
	}

	// Join rows are pure membership; either side going away removes them.
	ddl := fmt.Sprintf(
		"CREATE TABLE %s (\n  %s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,\n  %s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,\n  PRIMARY KEY (%s, %s)\n)",
		rel.JoinTable,
		rel.OwnerJoinKey, m.store.Dialect.ColumnType(owner.PrimaryKey.Type), owner.Table, owner.PrimaryKey.Field,
		rel.TargetJoinKey, m.store.Dialect.ColumnType(target.PrimaryKey.Type), target.Table, target.PrimaryKey.Field,
		rel.OwnerJoinKey, rel.TargetJoinKey,
	)

	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create join table %s: %w", rel.JoinTable, err)
	}
	return nil
}

// VerifySchema fails if any physical column of a registered entity's table
// has no field descriptor.
func (m *Migrator) VerifySchema(ctx context.Context, reg *metadata.Registry) error {
	for _, entity := range reg.AllEntities() {
		cols, err := m.store.Dialect.GetColumns(ctx, m.store.DB, entity.Table)
		if err != nil {
			return fmt.Errorf("get columns for %s: %w", entity.Table, err)
		}
		for col := range cols {
			if !entity.HasField(col) {
				return fmt.Errorf("table %s has column %s with no field descriptor on entity %s",
					entity.Table, col, entity.Name)
			}
		}
	}
	return nil
}

func (m *Migrator) createTable(ctx context.Context, reg *metadata.Registry, entity *metadata.Entity) error {
	var cols []string
	for i := range entity.Fields {
		cols = append(cols, m.buildColumnDef(reg, entity, &entity.Fields[i]))
	}

	// Singleton tables pin the primary key to the fixed row id.
	if rc := reg.GetResource(entity.Name); rc != nil && rc.IsSingleton() {
		cols = append(cols, fmt.Sprintf("CHECK (%s = %v)", entity.PrimaryKey.Field, rc.SingletonID))
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", entity.Table, strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, reg *metadata.Registry, entity *metadata.Entity) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	for i := range entity.Fields {
		f := &entity.Fields[i]
		if _, ok := existing[f.Name]; ok {
			continue
		}
		colType := m.store.Dialect.ColumnType(m.resolveType(reg, f))
		notNull := ""
		if f.Required && !f.Nullable {
			notNull = " NOT NULL DEFAULT ''" // safe default for existing rows
		}
		// SQLite only accepts REFERENCES on an added column when its
		// default is NULL, so required refs added after the fact stay
		// undeclared until a rebuild.
		ref := ""
		if notNull == "" {
			ref = m.refClause(reg, f)
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s%s%s", entity.Table, f.Name, colType, notNull, ref)
		if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", entity.Table, f.Name, err)
		}
	}
	return nil
}

func (m *Migrator) buildColumnDef(reg *metadata.Registry, entity *metadata.Entity, f *metadata.Field) string {
	if f.Name == entity.PrimaryKey.Field {
		return f.Name + " " + m.store.Dialect.PrimaryKeyDef(entity.PrimaryKey.Type, entity.PrimaryKey.Generated)
	}

	col := f.Name + " " + m.store.Dialect.ColumnType(m.resolveType(reg, f))
	if f.Required && !f.Nullable {
		col += " NOT NULL"
	}
	if f.Auto != "" {
		col += " DEFAULT " + m.store.Dialect.NowExpr()
		if m.store.Dialect.Name() == "sqlite" {
			col = strings.Replace(col, "DEFAULT datetime('now')", "DEFAULT (datetime('now'))", 1)
		}
	}
	col += m.refClause(reg, f)
	return col
}

// refClause emits the foreign-key declaration for a ref column. Destroy
// cascades are delegated entirely to these declared actions.
func (m *Migrator) refClause(reg *metadata.Registry, f *metadata.Field) string {
	if f.Type != metadata.TypeRef {
		return ""
	}
	target := reg.GetEntity(f.Ref)
	if target == nil {
		return ""
	}
	clause := fmt.Sprintf(" REFERENCES %s(%s)", target.Table, target.PrimaryKey.Field)
	switch f.OnDelete {
	case "cascade":
		clause += " ON DELETE CASCADE"
	case "set_null":
		clause += " ON DELETE SET NULL"
	case "restrict":
		clause += " ON DELETE RESTRICT"
	}
	return clause
}

// orderEntities returns every registered entity with each ref target ahead
// of its referrer, so REFERENCES clauses resolve when tables are created in
// order. Self-references are fine; a reference cycle falls back to name
// order for whatever remains.
func orderEntities(reg *metadata.Registry) []*metadata.Entity {
	all := reg.AllEntities()
	done := make(map[string]bool, len(all))
	out := make([]*metadata.Entity, 0, len(all))
	for len(out) < len(all) {
		progressed := false
		for _, e := range all {
			if done[e.Name] {
				continue
			}
			ready := true
			for _, f := range e.Fields {
				if f.Type == metadata.TypeRef && f.Ref != e.Name && !done[f.Ref] && reg.GetEntity(f.Ref) != nil {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			done[e.Name] = true
			out = append(out, e)
			progressed = true
		}
		if !progressed {
			for _, e := range all {
				if !done[e.Name] {
					out = append(out, e)
				}
			}
			return out
		}
	}
	return out
}

// resolveType maps a descriptor to the semantic type the dialect turns into
// DDL. Ref columns take the type of the target entity's primary key.
func (m *Migrator) resolveType(reg *metadata.Registry, f *metadata.Field) string {
	if f.Type == metadata.TypeRef {
		if target := reg.GetEntity(f.Ref); target != nil {
			return target.PrimaryKey.Type
		}
		return "uuid"
	}
	return string(f.Type)
}

func (m *Migrator) createIndexes(ctx context.Context, entity *metadata.Entity) error {
	for _, f := range entity.Fields {
		if !f.Unique {
			continue
		}
		// A unique index on a nullable column allows any number of NULLs
		// while keeping non-null values unique; drafts rely on this for
		// the one-pending-draft-per-original invariant.
		ddl := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			entity.Table, f.Name, entity.Table, f.Name)
		if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create unique index on %s.%s: %w", entity.Table, f.Name, err)
		}
	}
	return nil
}
