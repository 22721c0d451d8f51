package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"campus-backend/internal/catalog"
	"campus-backend/internal/config"
	"campus-backend/internal/engine"
	"campus-backend/internal/metadata"
	"campus-backend/internal/moderation"
	"campus-backend/internal/store"
)

func testStore(t *testing.T) (*store.Store, *metadata.Registry) {
	t.Helper()
	ctx := context.Background()

	s, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Name:   "test",
		Path:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)

	reg := metadata.NewRegistry()
	if err := catalog.Load(reg); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if err := store.NewMigrator(s).Bootstrap(ctx, reg); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := catalog.Seed(ctx, s, "admin@example.edu", "secret"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s, reg
}

func testApp(t *testing.T, s *store.Store, reg *metadata.Registry) *fiber.App {
	t.Helper()
	log := zerolog.New(os.Stderr)
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler(log),
	})
	api := app.Group("/api")

	h := engine.NewHandler(s, reg, log)
	api.Post("/guide/:id/views", h.CounterRoute("guide", "views"))

	workflow := moderation.NewWorkflow(s, reg)
	passthrough := func(c *fiber.Ctx) error { return c.Next() }
	moderation.RegisterRoutes(api, moderation.NewHandler(workflow), passthrough)

	engine.RegisterRoutes(api, h)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func dataMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	body := decodeBody(t, resp)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", body)
	}
	return data
}

func createCampus(t *testing.T, app *fiber.App, name string) string {
	t.Helper()
	resp := doRequest(t, app, "POST", "/api/campus", map[string]any{"name": name})
	if resp.StatusCode != 201 {
		t.Fatalf("create campus: status %d", resp.StatusCode)
	}
	data := dataMap(t, resp)
	id, _ := data["id"].(string)
	if id == "" {
		t.Fatal("created campus has no id")
	}
	return id
}

func TestCreateAndShow(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	id := createCampus(t, app, "North Campus")

	resp := doRequest(t, app, "GET", "/api/campus/"+id, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("show: status %d", resp.StatusCode)
	}
	data := dataMap(t, resp)
	if data["name"] != "North Campus" {
		t.Fatalf("unexpected name: %v", data["name"])
	}
}

func TestShowMalformedIDIsNotFound(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "GET", "/api/campus/not-a-uuid", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUnknownResource(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "GET", "/api/starships", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "UNKNOWN_RESOURCE" {
		t.Fatalf("unexpected error: %v", body)
	}
}

func TestCreateRejectsUnknownKeys(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "POST", "/api/campus", map[string]any{
		"name": "X", "mascot": "owl",
	})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCreateRequiresFields(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "POST", "/api/organization", map[string]any{
		"name": "Chess Club",
	})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422 for missing category, got %d", resp.StatusCode)
	}
}

func TestDuplicateUniqueIsConflict(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	createCampus(t, app, "Main")
	resp := doRequest(t, app, "POST", "/api/campus", map[string]any{"name": "Main"})
	if resp.StatusCode != 409 {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestUpdateNullClearsNullableField(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "POST", "/api/campus", map[string]any{
		"name": "South", "city": "Springfield",
	})
	data := dataMap(t, resp)
	id := data["id"].(string)

	resp = doRequest(t, app, "PATCH", "/api/campus/"+id, map[string]any{"city": nil})
	if resp.StatusCode != 200 {
		t.Fatalf("update: status %d", resp.StatusCode)
	}
	data = dataMap(t, resp)
	if data["city"] != nil {
		t.Fatalf("expected city cleared, got %v", data["city"])
	}
	if data["name"] != "South" {
		t.Fatalf("absent key must stay untouched, got %v", data["name"])
	}
}

func TestListPaginationMeta(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	for _, name := range []string{"A", "B", "C"} {
		createCampus(t, app, name)
	}

	resp := doRequest(t, app, "GET", "/api/campus?page=1&limit=2", nil)
	body := decodeBody(t, resp)
	meta, _ := body["meta"].(map[string]any)
	if meta == nil {
		t.Fatalf("expected meta, got %v", body)
	}
	if meta["total"] != float64(3) || meta["limit"] != float64(2) {
		t.Fatalf("unexpected meta: %v", meta)
	}
	data, _ := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(data))
	}
}

func TestListWithoutParamsReturnsAll(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	for _, name := range []string{"A", "B", "C"} {
		createCampus(t, app, name)
	}

	resp := doRequest(t, app, "GET", "/api/campus", nil)
	body := decodeBody(t, resp)
	if _, hasMeta := body["meta"]; hasMeta {
		t.Fatal("unpaged list must not include meta")
	}
	data, _ := body["data"].([]any)
	if len(data) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(data))
	}
}

func TestListSortInvalid(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "GET", "/api/campus?sort=name", nil)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "INVALID_SORT" {
		t.Fatalf("unexpected error: %v", body)
	}
}

func TestSingletonRules(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "POST", "/api/app_info", map[string]any{"name": "Another"})
	if resp.StatusCode != 405 {
		t.Fatalf("store on singleton: expected 405, got %d", resp.StatusCode)
	}

	resp = doRequest(t, app, "DELETE", "/api/app_info/1", nil)
	if resp.StatusCode != 405 {
		t.Fatalf("destroy on singleton: expected 405, got %d", resp.StatusCode)
	}

	// The path id is ignored; any id reaches the pinned row.
	resp = doRequest(t, app, "GET", "/api/app_info/999", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("show singleton: status %d", resp.StatusCode)
	}
	data := dataMap(t, resp)
	if data["id"] != float64(1) {
		t.Fatalf("expected pinned row id 1, got %v", data["id"])
	}

	resp = doRequest(t, app, "PATCH", "/api/app_info/42", map[string]any{"name": "Campus App"})
	if resp.StatusCode != 200 {
		t.Fatalf("update singleton: status %d", resp.StatusCode)
	}
	data = dataMap(t, resp)
	if data["name"] != "Campus App" {
		t.Fatalf("unexpected name: %v", data["name"])
	}
}

func TestNestedSectionsWriteAndPreload(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "POST", "/api/guide", map[string]any{
		"title": "Getting Around",
		"sections": []any{
			map[string]any{"title": "Buses", "ord": 1},
			map[string]any{"title": "Bikes", "ord": 2},
		},
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create guide: status %d", resp.StatusCode)
	}
	data := dataMap(t, resp)
	guideID := data["id"].(string)
	if data["views"] != float64(0) {
		t.Fatalf("expected views 0, got %v", data["views"])
	}

	resp = doRequest(t, app, "GET", "/api/guide/"+guideID+"?with=sections", nil)
	data = dataMap(t, resp)
	sections, _ := data["sections"].([]any)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %v", data["sections"])
	}

	// Replace semantics: keep one (by id), add one, drop one.
	first := sections[0].(map[string]any)
	resp = doRequest(t, app, "PATCH", "/api/guide/"+guideID, map[string]any{
		"sections": []any{
			map[string]any{"id": first["id"], "title": "Buses and Trams"},
			map[string]any{"title": "Walking", "ord": 3},
		},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("update guide: status %d", resp.StatusCode)
	}

	resp = doRequest(t, app, "GET", "/api/guide/"+guideID+"?with=sections", nil)
	data = dataMap(t, resp)
	sections, _ = data["sections"].([]any)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections after replace, got %d", len(sections))
	}
	titles := map[string]bool{}
	for _, sec := range sections {
		titles[sec.(map[string]any)["title"].(string)] = true
	}
	if !titles["Buses and Trams"] || !titles["Walking"] || titles["Bikes"] {
		t.Fatalf("unexpected section titles: %v", titles)
	}
}

func TestNestedCreateMissingRequiredFieldIs422(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	// A new section without its required title must fail validation, not
	// surface as a database error.
	resp := doRequest(t, app, "POST", "/api/guide", map[string]any{
		"title":    "Getting Around",
		"sections": []any{map[string]any{"ord": 1}},
	})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	errObj, _ := body["error"].(map[string]any)
	details, _ := errObj["details"].([]any)
	var found bool
	for _, d := range details {
		if d.(map[string]any)["field"] == "sections.title" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a sections.title detail, got %v", body)
	}
}

func TestManyToManyTagsWrite(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	var tagIDs []any
	for _, name := range []string{"outdoors", "music"} {
		resp := doRequest(t, app, "POST", "/api/tag", map[string]any{"name": name})
		tagIDs = append(tagIDs, dataMap(t, resp)["id"])
	}

	resp := doRequest(t, app, "POST", "/api/organization", map[string]any{
		"name":     "Hiking Society",
		"category": "sports",
		"tags":     tagIDs,
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create organization: status %d", resp.StatusCode)
	}
	orgID := dataMap(t, resp)["id"].(string)

	resp = doRequest(t, app, "GET", "/api/organization/"+orgID+"?with=tags", nil)
	data := dataMap(t, resp)
	tags, _ := data["tags"].([]any)
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", data["tags"])
	}

	// Replace with a single tag.
	resp = doRequest(t, app, "PATCH", "/api/organization/"+orgID, map[string]any{
		"tags": tagIDs[:1],
	})
	if resp.StatusCode != 200 {
		t.Fatalf("update organization: status %d", resp.StatusCode)
	}
	resp = doRequest(t, app, "GET", "/api/organization/"+orgID+"?with=tags", nil)
	data = dataMap(t, resp)
	tags, _ = data["tags"].([]any)
	if len(tags) != 1 {
		t.Fatalf("expected 1 tag after replace, got %v", data["tags"])
	}
}

func TestCrudRelationNotDeclaredIsRejected(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	campusID := createCampus(t, app, "East")
	// buildings is a query relation on campus but not a crud relation.
	resp := doRequest(t, app, "PATCH", "/api/campus/"+campusID, map[string]any{
		"buildings": []any{map[string]any{"name": "Library"}},
	})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestDeepPreloadPath(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	campusID := createCampus(t, app, "West")
	resp := doRequest(t, app, "POST", "/api/building", map[string]any{
		"name": "Science Hall", "campus_id": campusID,
	})
	buildingID := dataMap(t, resp)["id"].(string)
	doRequest(t, app, "POST", "/api/department", map[string]any{
		"name": "Physics", "building_id": buildingID,
	})

	resp = doRequest(t, app, "GET", "/api/department?with=building.campus", nil)
	body := decodeBody(t, resp)
	rows, _ := body["data"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 department, got %d", len(rows))
	}
	building, _ := rows[0].(map[string]any)["building"].(map[string]any)
	if building == nil {
		t.Fatal("building not preloaded")
	}
	campus, _ := building["campus"].(map[string]any)
	if campus == nil || campus["name"] != "West" {
		t.Fatalf("campus not preloaded: %v", building["campus"])
	}
}

func TestUnknownPreloadPathIsIgnored(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	createCampus(t, app, "Quiet")
	resp := doRequest(t, app, "GET", "/api/campus?with=dormitories", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestViewCounter(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "POST", "/api/guide", map[string]any{"title": "Dining"})
	guideID := dataMap(t, resp)["id"].(string)

	for i := 0; i < 3; i++ {
		resp = doRequest(t, app, "POST", "/api/guide/"+guideID+"/views", nil)
		if resp.StatusCode != 200 {
			t.Fatalf("bump %d: status %d", i, resp.StatusCode)
		}
	}
	data := dataMap(t, resp)
	if data["views"] != float64(3) {
		t.Fatalf("expected views 3, got %v", data["views"])
	}
}

func TestViewsNotClientWritable(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "POST", "/api/guide", map[string]any{
		"title": "Parking", "views": 100,
	})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestBannerWindowHook(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "POST", "/api/banner", map[string]any{
		"title":         "Welcome Week",
		"visible_from":  "2026-09-01T00:00:00Z",
		"visible_until": "2026-08-01T00:00:00Z",
	})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422 for inverted window, got %d", resp.StatusCode)
	}

	resp = doRequest(t, app, "POST", "/api/banner", map[string]any{
		"title":         "Welcome Week",
		"visible_from":  "2026-08-01T00:00:00Z",
		"visible_until": "2026-09-01T00:00:00Z",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	bannerID := dataMap(t, resp)["id"].(string)

	// Moving only the lower bound past the upper bound must fail against
	// the merged row.
	resp = doRequest(t, app, "PATCH", "/api/banner/"+bannerID, map[string]any{
		"visible_from": "2026-10-01T00:00:00Z",
	})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422 for merged window check, got %d", resp.StatusCode)
	}

	// Clearing one bound leaves an open-ended window, which is legal.
	resp = doRequest(t, app, "PATCH", "/api/banner/"+bannerID, map[string]any{
		"visible_until": nil,
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 for open-ended window, got %d", resp.StatusCode)
	}
}

func TestSearchTreatsWildcardsLiterally(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	createCampus(t, app, "Hillside")
	createCampus(t, app, "100% Official")

	// A percent sign in the search value matches rows containing a literal
	// percent sign, not every row.
	resp := doRequest(t, app, "GET", "/api/campus?name=%25", nil)
	body := decodeBody(t, resp)
	rows, _ := body["data"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 match for %%, got %d", len(rows))
	}
	if rows[0].(map[string]any)["name"] != "100% Official" {
		t.Fatalf("unexpected match: %v", rows[0])
	}

	resp = doRequest(t, app, "GET", "/api/campus?name=ll", nil)
	body = decodeBody(t, resp)
	rows, _ = body["data"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["name"] != "Hillside" {
		t.Fatalf("substring search broken: %v", rows)
	}
}

func TestDestroyCascadesToChildren(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	campusID := createCampus(t, app, "Old Town")
	resp := doRequest(t, app, "POST", "/api/building", map[string]any{
		"name": "Annex", "campus_id": campusID,
	})
	buildingID := dataMap(t, resp)["id"].(string)

	resp = doRequest(t, app, "DELETE", "/api/campus/"+campusID, nil)
	if resp.StatusCode != 204 {
		t.Fatalf("destroy campus: status %d", resp.StatusCode)
	}
	resp = doRequest(t, app, "GET", "/api/building/"+buildingID, nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected building removed with its campus, got %d", resp.StatusCode)
	}
}

func TestDestroy(t *testing.T) {
	s, reg := testStore(t)
	app := testApp(t, s, reg)

	id := createCampus(t, app, "Temp")
	resp := doRequest(t, app, "DELETE", "/api/campus/"+id, nil)
	if resp.StatusCode != 204 {
		t.Fatalf("destroy: status %d", resp.StatusCode)
	}
	resp = doRequest(t, app, "GET", "/api/campus/"+id, nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 after destroy, got %d", resp.StatusCode)
	}
}
