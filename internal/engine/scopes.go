package engine

import (
	"fmt"
	"strconv"
	"strings"

	"campus-backend/internal/metadata"
	"campus-backend/internal/store"
)

// DefaultPageSize applies when a page is requested without a limit.
const DefaultPageSize = 10

// MaxPageSize caps client-supplied limits.
const MaxPageSize = 100

// QueryPlan is the result of applying the three scopes plus pagination to a
// list request.
type QueryPlan struct {
	Entity   *metadata.Entity
	Filters  []WhereClause
	Sort     *OrderClause
	Paged    bool
	Page     int
	Limit    int
	Preloads []PreloadPath
}

type WhereClause struct {
	Field    string
	Operator string // eq or like
	Value    any
}

type OrderClause struct {
	Field string
	Dir   string // ASC or DESC
}

// PreloadPath is a validated chain of relation declarations.
type PreloadPath []*metadata.Relation

type QueryResult struct {
	SQL    string
	Params []any
}

// reserved query parameters that are never treated as search fields.
var reservedParams = map[string]bool{
	"sort":  true,
	"page":  true,
	"limit": true,
	"with":  true,
}

// BuildQueryPlan applies search, preload, and sort scopes in that order,
// then pagination. Search keys that don't match a descriptor are silently
// ignored; a malformed sort expression is a client error; a well-formed
// sort on an unknown field is silently ignored.
func BuildQueryPlan(reg *metadata.Registry, rc *metadata.ResourceConfig, entity *metadata.Entity, params map[string]string) (*QueryPlan, error) {
	plan := &QueryPlan{Entity: entity}

	// Search scope: callers pass everything on the query string; only keys
	// with a descriptor are reachable.
	ApplySearch(plan, entity, params)

	// Preload scope
	if raw := params["with"]; raw != "" {
		plan.Preloads = ResolvePreloadPaths(reg, rc, entity.Name, strings.Split(raw, ","))
	}

	// Sort scope
	if raw, ok := params["sort"]; ok && raw != "" {
		if err := ApplySort(plan, entity, raw); err != nil {
			return nil, err
		}
	}

	// Pagination. Disabled for singletons: a pinned single-row table has
	// nothing to page through.
	if !rc.IsSingleton() {
		applyPagination(plan, params)
	}

	return plan, nil
}

// ApplySearch adds an equality or substring predicate for every candidate
// key that has a descriptor on the entity. Unknown keys and values that
// fail coercion are dropped without error.
func ApplySearch(plan *QueryPlan, entity *metadata.Entity, params map[string]string) {
	for key, raw := range params {
		if reservedParams[key] {
			continue
		}
		field := entity.GetField(key)
		if field == nil {
			continue
		}
		value, err := coerceSearchValue(field, raw)
		if err != nil {
			continue
		}
		plan.Filters = append(plan.Filters, WhereClause{
			Field:    key,
			Operator: field.SearchOp(),
			Value:    value,
		})
	}
}

// ApplySort parses a signed sort expression: "+field" ascending, "-field"
// descending. The sign is mandatory; anything else fails the request. A
// well-formed expression naming a field the entity doesn't have is ignored,
// mirroring the search scope's permissiveness.
func ApplySort(plan *QueryPlan, entity *metadata.Entity, raw string) error {
	s := raw
	// An unencoded '+' arrives as a space after URL decoding.
	if strings.HasPrefix(s, " ") {
		s = "+" + s[1:]
	}
	if len(s) < 2 {
		return InvalidSortError(raw)
	}
	var dir string
	switch s[0] {
	case '+':
		dir = "ASC"
	case '-':
		dir = "DESC"
	default:
		return InvalidSortError(raw)
	}
	field := s[1:]
	if !isIdentifier(field) {
		return InvalidSortError(raw)
	}
	if !entity.HasField(field) {
		return nil
	}
	plan.Sort = &OrderClause{Field: field, Dir: dir}
	return nil
}

// ResolvePreloadPaths validates dotted relation paths. Every segment must
// be a declared relation listed in the owning resource's queryRelations;
// paths with any unrecognized segment are dropped entirely.
func ResolvePreloadPaths(reg *metadata.Registry, rc *metadata.ResourceConfig, entityName string, raw []string) []PreloadPath {
	var paths []PreloadPath
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		path := resolvePath(reg, rc, entityName, strings.Split(p, "."))
		if path != nil {
			paths = append(paths, path)
		}
	}
	return paths
}

func resolvePath(reg *metadata.Registry, rc *metadata.ResourceConfig, entityName string, segments []string) PreloadPath {
	var path PreloadPath
	current := entityName
	cfg := rc
	for _, seg := range segments {
		if cfg == nil || !cfg.AllowsQueryRelation(seg) {
			return nil
		}
		rel := reg.GetRelation(current, seg)
		if rel == nil {
			return nil
		}
		path = append(path, rel)
		current = rel.Target
		cfg = reg.GetResource(current)
	}
	return path
}

func applyPagination(plan *QueryPlan, params map[string]string) {
	if raw, ok := params["page"]; ok {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			plan.Paged = true
			plan.Page = v
		}
	}
	if raw, ok := params["limit"]; ok {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			plan.Paged = true
			plan.Limit = v
			if plan.Limit > MaxPageSize {
				plan.Limit = MaxPageSize
			}
		}
	}
	if plan.Paged {
		if plan.Page == 0 {
			plan.Page = 1
		}
		// Page with no limit pages at the default size rather than
		// returning the whole table.
		if plan.Limit == 0 {
			plan.Limit = DefaultPageSize
		}
	}
}

// BuildSelectSQL builds a parameterized SELECT statement from the query plan.
func BuildSelectSQL(plan *QueryPlan, dialect store.Dialect) QueryResult {
	pb := dialect.NewParamBuilder()
	entity := plan.Entity

	columns := strings.Join(entity.FieldNames(), ", ")
	sql := fmt.Sprintf("SELECT %s FROM %s", columns, entity.Table)

	if where := buildWhere(plan.Filters, dialect, pb); where != "" {
		sql += " WHERE " + where
	}

	if plan.Sort != nil {
		sql += fmt.Sprintf(" ORDER BY %s %s", plan.Sort.Field, plan.Sort.Dir)
	} else {
		sql += fmt.Sprintf(" ORDER BY %s ASC", entity.PrimaryKey.Field)
	}

	if plan.Paged {
		limit := pb.Add(plan.Limit)
		offset := pb.Add((plan.Page - 1) * plan.Limit)
		sql += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)
	}

	return QueryResult{SQL: sql, Params: pb.Params()}
}

// BuildCountSQL builds a COUNT query with the same filters as the select.
func BuildCountSQL(plan *QueryPlan, dialect store.Dialect) QueryResult {
	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", plan.Entity.Table)
	if where := buildWhere(plan.Filters, dialect, pb); where != "" {
		sql += " WHERE " + where
	}
	return QueryResult{SQL: sql, Params: pb.Params()}
}

func buildWhere(filters []WhereClause, dialect store.Dialect, pb store.ParamBuilder) string {
	var clauses []string
	for _, f := range filters {
		switch f.Operator {
		case "like":
			clauses = append(clauses, dialect.LikeExpr(f.Field, pb, fmt.Sprintf("%v", f.Value)))
		default:
			clauses = append(clauses, fmt.Sprintf("%s = %s", f.Field, pb.Add(f.Value)))
		}
	}
	return strings.Join(clauses, " AND ")
}

// coerceSearchValue converts a raw query-string value according to the
// field's semantic type.
func coerceSearchValue(field *metadata.Field, raw string) (any, error) {
	switch field.Type {
	case metadata.TypeInt:
		return strconv.Atoi(raw)
	case metadata.TypeBigint:
		return strconv.ParseInt(raw, 10, 64)
	case metadata.TypeReal:
		return strconv.ParseFloat(raw, 64)
	case metadata.TypeBoolean:
		return strconv.ParseBool(raw)
	default:
		return raw, nil
	}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}
