package engine

import (
	"errors"
	"strings"
	"testing"

	"campus-backend/internal/metadata"
	"campus-backend/internal/store"
)

func scopeEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "organization",
		Table:      "organizations",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "uuid", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "name", Type: metadata.TypeText, Required: true},
			{Name: "ord", Type: metadata.TypeReal, Nullable: true},
			{Name: "active", Type: metadata.TypeBoolean},
		},
	}
}

func scopeRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	err := reg.Load(
		[]*metadata.Entity{scopeEntity()},
		nil,
		[]*metadata.ResourceConfig{{Entity: "organization"}},
	)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return reg
}

func buildPlan(t *testing.T, params map[string]string) (*QueryPlan, error) {
	t.Helper()
	reg := scopeRegistry(t)
	return BuildQueryPlan(reg, reg.GetResource("organization"), reg.GetEntity("organization"), params)
}

func TestSearchIgnoresUnknownKeys(t *testing.T) {
	plan, err := buildPlan(t, map[string]string{"name": "chess", "bogus": "x"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if len(plan.Filters) != 1 {
		t.Fatalf("expected 1 filter, got %d", len(plan.Filters))
	}
	if plan.Filters[0].Field != "name" || plan.Filters[0].Operator != "like" {
		t.Fatalf("unexpected filter: %+v", plan.Filters[0])
	}
}

func TestSearchIgnoresCoercionFailures(t *testing.T) {
	plan, err := buildPlan(t, map[string]string{"active": "definitely"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if len(plan.Filters) != 0 {
		t.Fatalf("expected no filters, got %+v", plan.Filters)
	}
}

func TestSortSignMandatory(t *testing.T) {
	_, err := buildPlan(t, map[string]string{"sort": "name"})
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "INVALID_SORT" {
		t.Fatalf("expected INVALID_SORT, got %v", err)
	}
}

func TestSortDescending(t *testing.T) {
	plan, err := buildPlan(t, map[string]string{"sort": "-ord"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if plan.Sort == nil || plan.Sort.Field != "ord" || plan.Sort.Dir != "DESC" {
		t.Fatalf("unexpected sort: %+v", plan.Sort)
	}
}

func TestSortLeadingSpaceMeansPlus(t *testing.T) {
	// An unencoded '+' in the query string URL-decodes to a space.
	plan, err := buildPlan(t, map[string]string{"sort": " name"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if plan.Sort == nil || plan.Sort.Field != "name" || plan.Sort.Dir != "ASC" {
		t.Fatalf("unexpected sort: %+v", plan.Sort)
	}
}

func TestSortUnknownFieldIgnored(t *testing.T) {
	plan, err := buildPlan(t, map[string]string{"sort": "+bogus"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if plan.Sort != nil {
		t.Fatalf("expected no sort clause, got %+v", plan.Sort)
	}
}

func TestPaginationDefaults(t *testing.T) {
	plan, err := buildPlan(t, map[string]string{"page": "3"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if !plan.Paged || plan.Page != 3 || plan.Limit != DefaultPageSize {
		t.Fatalf("unexpected pagination: paged=%v page=%d limit=%d", plan.Paged, plan.Page, plan.Limit)
	}
}

func TestPaginationCap(t *testing.T) {
	plan, err := buildPlan(t, map[string]string{"page": "1", "limit": "5000"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if plan.Limit != MaxPageSize {
		t.Fatalf("expected limit %d, got %d", MaxPageSize, plan.Limit)
	}
}

func TestNoPaginationParamsMeansFullSet(t *testing.T) {
	plan, err := buildPlan(t, map[string]string{})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if plan.Paged {
		t.Fatal("expected unpaged plan")
	}
}

func TestSingletonNeverPaginates(t *testing.T) {
	reg := metadata.NewRegistry()
	err := reg.Load(
		[]*metadata.Entity{scopeEntity()},
		nil,
		[]*metadata.ResourceConfig{{Entity: "organization", SingletonID: 1}},
	)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	plan, err := BuildQueryPlan(reg, reg.GetResource("organization"), reg.GetEntity("organization"),
		map[string]string{"page": "2", "limit": "5"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if plan.Paged {
		t.Fatal("singleton plan must not paginate")
	}
}

func TestBuildSelectSQLDefaultOrder(t *testing.T) {
	plan, err := buildPlan(t, map[string]string{"name": "chess"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	q := BuildSelectSQL(plan, store.NewDialect("sqlite"))
	if !strings.Contains(q.SQL, "FROM organizations") {
		t.Fatalf("unexpected SQL: %s", q.SQL)
	}
	if !strings.Contains(q.SQL, "ORDER BY id ASC") {
		t.Fatalf("expected default pk order, got: %s", q.SQL)
	}
	if len(q.Params) != 1 {
		t.Fatalf("expected 1 param, got %v", q.Params)
	}
}

func TestBuildCountSQLSharesFilters(t *testing.T) {
	plan, err := buildPlan(t, map[string]string{"name": "chess", "page": "1"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	q := BuildCountSQL(plan, store.NewDialect("sqlite"))
	if !strings.Contains(q.SQL, "COUNT(*)") || !strings.Contains(q.SQL, "WHERE") {
		t.Fatalf("unexpected count SQL: %s", q.SQL)
	}
}
