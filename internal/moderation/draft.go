package moderation

import (
	"strings"

	"campus-backend/internal/metadata"
)

// DraftEntity derives the draft table definition from an approved entity so
// both schemas come from one field set. The draft copies the approved
// entity's client-writable fields, drops unique flags (two drafts may
// legally share a value that is unique among approved rows), and adds the
// workflow columns: original_id points at the approved row the draft edits
// (null for a brand-new submission) and is unique among non-null values,
// which is what limits each approved row to one pending draft.
func DraftEntity(approved *metadata.Entity, skip ...string) *metadata.Entity {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}

	fields := []metadata.Field{
		{Name: "id", Type: metadata.TypeUUID},
	}
	for _, f := range approved.WritableFields() {
		if skipped[f.Name] {
			continue
		}
		draft := f
		draft.Unique = false
		fields = append(fields, draft)
	}
	// Deleting the approved row or the author takes the pending draft with it.
	fields = append(fields,
		metadata.Field{Name: "original_id", Type: metadata.TypeRef, Ref: approved.Name, Nullable: true, Unique: true, OnDelete: "cascade"},
		metadata.Field{Name: "created_by", Type: metadata.TypeRef, Ref: "user", Required: true, OnDelete: "cascade"},
	)
	if !hasField(fields, "ord") {
		fields = append(fields, metadata.Field{Name: "ord", Type: metadata.TypeReal, Nullable: true})
	}
	fields = append(fields, metadata.Field{Name: "created_at", Type: metadata.TypeDateTime, Auto: "create"})

	return &metadata.Entity{
		Name:       approved.Name + "_draft",
		Table:      strings.TrimSuffix(approved.Table, "s") + "_drafts",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "uuid", Generated: true},
		Fields:     fields,
	}
}

func hasField(fields []metadata.Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
