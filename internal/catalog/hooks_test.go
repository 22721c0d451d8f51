package catalog

import (
	"context"
	"errors"
	"testing"

	"campus-backend/internal/engine"
	"campus-backend/internal/metadata"
)

func TestCatalogLoads(t *testing.T) {
	reg := metadata.NewRegistry()
	if err := Load(reg); err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, name := range []string{"campus", "organization", "guide", "app_info", "organization_draft", "guide_draft"} {
		if reg.GetEntity(name) == nil {
			t.Fatalf("entity %s not registered", name)
		}
	}
	if rc := reg.GetResource("app_info"); rc == nil || !rc.IsSingleton() {
		t.Fatal("app_info must be a singleton resource")
	}
}

func validationStatus(err error) int {
	var appErr *engine.AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}

func TestBannerWindowInverted(t *testing.T) {
	err := checkBannerWindow(map[string]any{
		"visible_from":  "2026-09-01T00:00:00Z",
		"visible_until": "2026-08-01T00:00:00Z",
	}, nil)
	if validationStatus(err) != 422 {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestBannerWindowEqualBoundsRejected(t *testing.T) {
	err := checkBannerWindow(map[string]any{
		"visible_from":  "2026-08-01T00:00:00Z",
		"visible_until": "2026-08-01T00:00:00Z",
	}, nil)
	if validationStatus(err) != 422 {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestBannerWindowMergesCurrentRow(t *testing.T) {
	current := map[string]any{
		"visible_from":  "2026-08-01T00:00:00Z",
		"visible_until": "2026-09-01T00:00:00Z",
	}
	// Only the lower bound moves, past the current upper bound.
	err := checkBannerWindow(map[string]any{"visible_from": "2026-10-01T00:00:00Z"}, current)
	if validationStatus(err) != 422 {
		t.Fatalf("expected 422, got %v", err)
	}
	// Moving it within the window is fine.
	if err := checkBannerWindow(map[string]any{"visible_from": "2026-08-15T00:00:00Z"}, current); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestBannerWindowNullClearsBound(t *testing.T) {
	current := map[string]any{
		"visible_from":  "2026-08-01T00:00:00Z",
		"visible_until": "2026-09-01T00:00:00Z",
	}
	if err := checkBannerWindow(map[string]any{"visible_until": nil}, current); err != nil {
		t.Fatalf("open-ended window must be legal, got %v", err)
	}
}

func TestGuideHooksManageViews(t *testing.T) {
	hooks := guideHooks()
	ctx := context.Background()

	fields := map[string]any{"title": "Orientation"}
	if err := hooks.PreStore(ctx, fields); err != nil {
		t.Fatalf("pre store: %v", err)
	}
	if fields["views"] != 0 {
		t.Fatalf("expected views seeded to 0, got %v", fields["views"])
	}

	if err := hooks.PreStore(ctx, map[string]any{"views": float64(9)}); validationStatus(err) != 422 {
		t.Fatalf("expected 422 for client views, got %v", err)
	}
	if err := hooks.PreUpdate(ctx, map[string]any{"views": float64(9)}, nil); validationStatus(err) != 422 {
		t.Fatalf("expected 422 for client views on update, got %v", err)
	}
	if err := hooks.PreUpdate(ctx, map[string]any{"title": "New"}, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
