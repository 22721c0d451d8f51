package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NowExpr() string   { return "NOW()" }
func (d *PostgresDialect) NeedsBoolFix() bool { return false }

func (d *PostgresDialect) ColumnType(fieldType string) string {
	switch fieldType {
	case "text", "enum":
		return "TEXT"
	case "int":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "real":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	case "uuid":
		return "UUID"
	case "datetime":
		return "TIMESTAMPTZ"
	case "date":
		return "DATE"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) PrimaryKeyDef(pkType string, generated bool) string {
	switch pkType {
	case "uuid":
		if generated {
			return "UUID PRIMARY KEY DEFAULT gen_random_uuid()"
		}
		return "UUID PRIMARY KEY"
	case "bigint":
		if generated {
			return "BIGINT PRIMARY KEY GENERATED BY DEFAULT AS IDENTITY"
		}
		return "BIGINT PRIMARY KEY"
	default:
		if generated {
			return "INTEGER PRIMARY KEY GENERATED BY DEFAULT AS IDENTITY"
		}
		return "INTEGER PRIMARY KEY"
	}
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = 'public'`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

func (d *PostgresDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	ph := pb.Add(values)
	return fmt.Sprintf("%s = ANY(%s)", field, ph)
}

func (d *PostgresDialect) LikeExpr(field string, pb ParamBuilder, value string) string {
	ph := pb.Add("%" + escapeLike(value) + "%")
	return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, field, ph)
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	// With pgx/stdlib the underlying error message includes the PG code.
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	if strings.Contains(errStr, "23514") || strings.Contains(errStr, "check constraint") {
		return fmt.Errorf("%w: %w", ErrCheckViolation, err)
	}
	return err
}

// Compile-time check
var _ Dialect = (*PostgresDialect)(nil)
