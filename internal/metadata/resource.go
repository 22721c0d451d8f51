package metadata

import "context"

// Hooks are per-resource lifecycle callbacks supplied at registration time.
// A hook failure that is validation-shaped (the engine's AppError) fails the
// request as a client error; any other error aborts the transaction as an
// internal error. Post hooks run inside the same transaction as the write.
type Hooks struct {
	PreStore   func(ctx context.Context, fields map[string]any) error
	PostStore  func(ctx context.Context, record map[string]any) error
	PreUpdate  func(ctx context.Context, proposed, current map[string]any) error
	PostUpdate func(ctx context.Context, record, previous map[string]any) error
}

// ResourceConfig wires an entity into the generic controller: which
// relations are preloadable on reads, which are writable through
// create/update, whether the resource is a pinned single row, and the
// lifecycle hooks.
type ResourceConfig struct {
	Entity         string
	QueryRelations []string // relations eligible for eager-load on reads
	CrudRelations  []string // relations writable transactionally on store/update
	SingletonID    any      // non-nil pins the resource to one fixed row
	NavGroup       string   // admin navigation grouping
	Moderated      bool     // content goes through the draft workflow
	Hooks          Hooks
}

// IsSingleton reports whether the resource is pinned to a fixed row.
func (rc *ResourceConfig) IsSingleton() bool {
	return rc.SingletonID != nil
}

// AllowsQueryRelation reports whether the named relation may be preloaded.
func (rc *ResourceConfig) AllowsQueryRelation(name string) bool {
	for _, r := range rc.QueryRelations {
		if r == name {
			return true
		}
	}
	return false
}

// AllowsCrudRelation reports whether the named relation is writable.
func (rc *ResourceConfig) AllowsCrudRelation(name string) bool {
	for _, r := range rc.CrudRelations {
		if r == name {
			return true
		}
	}
	return false
}
