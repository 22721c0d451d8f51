package metadata

import (
	"strings"
	"testing"
)

func testEntities() []*Entity {
	return []*Entity{
		{
			Name:       "campus",
			Table:      "campuses",
			PrimaryKey: PrimaryKey{Field: "id", Type: "uuid", Generated: true},
			Fields: []Field{
				{Name: "id", Type: TypeUUID},
				{Name: "name", Type: TypeText, Required: true},
			},
		},
		{
			Name:       "building",
			Table:      "buildings",
			PrimaryKey: PrimaryKey{Field: "id", Type: "uuid", Generated: true},
			Fields: []Field{
				{Name: "id", Type: TypeUUID},
				{Name: "name", Type: TypeText, Required: true},
				{Name: "campus_id", Type: TypeRef, Ref: "campus", Required: true},
			},
		},
	}
}

func testRelations() []*Relation {
	return []*Relation{
		{Name: "campus", Kind: "belongs_to", Owner: "building", Target: "campus", ForeignKey: "campus_id"},
		{Name: "buildings", Kind: "has_many", Owner: "campus", Target: "building", ForeignKey: "campus_id"},
	}
}

func TestLoadAcceptsValidCatalog(t *testing.T) {
	reg := NewRegistry()
	err := reg.Load(testEntities(), testRelations(), []*ResourceConfig{
		{Entity: "campus", QueryRelations: []string{"buildings"}},
		{Entity: "building", QueryRelations: []string{"campus"}},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if reg.GetEntity("campus") == nil {
		t.Fatal("campus entity not registered")
	}
	if reg.GetRelation("building", "campus") == nil {
		t.Fatal("building.campus relation not registered")
	}
	if reg.GetResource("campus") == nil {
		t.Fatal("campus resource not registered")
	}
}

func TestLoadRejectsDuplicateEntity(t *testing.T) {
	entities := append(testEntities(), testEntities()[0])
	reg := NewRegistry()
	err := reg.Load(entities, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "duplicate entity") {
		t.Fatalf("expected duplicate entity error, got %v", err)
	}
}

func TestLoadRejectsRelationWithMissingForeignKey(t *testing.T) {
	rels := []*Relation{
		{Name: "campus", Kind: "belongs_to", Owner: "building", Target: "campus", ForeignKey: "nope"},
	}
	reg := NewRegistry()
	err := reg.Load(testEntities(), rels, nil)
	if err == nil || !strings.Contains(err.Error(), "foreign key") {
		t.Fatalf("expected foreign key error, got %v", err)
	}
}

func TestLoadRejectsBelongsToCrudRelation(t *testing.T) {
	reg := NewRegistry()
	err := reg.Load(testEntities(), testRelations(), []*ResourceConfig{
		{Entity: "building", CrudRelations: []string{"campus"}},
	})
	if err == nil || !strings.Contains(err.Error(), "belongs_to") {
		t.Fatalf("expected belongs_to rejection, got %v", err)
	}
}

func TestLoadRejectsUndeclaredQueryRelation(t *testing.T) {
	reg := NewRegistry()
	err := reg.Load(testEntities(), testRelations(), []*ResourceConfig{
		{Entity: "campus", QueryRelations: []string{"departments"}},
	})
	if err == nil || !strings.Contains(err.Error(), "not declared") {
		t.Fatalf("expected undeclared relation error, got %v", err)
	}
}

func TestLoadRejectsEnumWithoutValues(t *testing.T) {
	entities := []*Entity{{
		Name:       "thing",
		Table:      "things",
		PrimaryKey: PrimaryKey{Field: "id", Type: "uuid", Generated: true},
		Fields: []Field{
			{Name: "id", Type: TypeUUID},
			{Name: "kind", Type: TypeEnum},
		},
	}}
	reg := NewRegistry()
	if err := reg.Load(entities, nil, nil); err == nil {
		t.Fatal("expected enum validation error")
	}
}

func TestRelationsTargetingIsSortedByOwner(t *testing.T) {
	entities := testEntities()
	entities = append(entities, &Entity{
		Name:       "annex",
		Table:      "annexes",
		PrimaryKey: PrimaryKey{Field: "id", Type: "uuid", Generated: true},
		Fields: []Field{
			{Name: "id", Type: TypeUUID},
			{Name: "campus_id", Type: TypeRef, Ref: "campus", Required: true},
		},
	})
	rels := append(testRelations(),
		&Relation{Name: "campus", Kind: "belongs_to", Owner: "annex", Target: "campus", ForeignKey: "campus_id"})

	reg := NewRegistry()
	if err := reg.Load(entities, rels, nil); err != nil {
		t.Fatalf("load: %v", err)
	}

	targeting := reg.RelationsTargeting("campus")
	if len(targeting) != 2 {
		t.Fatalf("expected 2 targeting relations, got %d", len(targeting))
	}
	if targeting[0].Owner != "annex" || targeting[1].Owner != "building" {
		t.Fatalf("targeting relations not sorted by owner: %s, %s", targeting[0].Owner, targeting[1].Owner)
	}
}

func TestWritableFieldsExcludesGeneratedAndAuto(t *testing.T) {
	e := &Entity{
		Name:       "note",
		Table:      "notes",
		PrimaryKey: PrimaryKey{Field: "id", Type: "uuid", Generated: true},
		Fields: []Field{
			{Name: "id", Type: TypeUUID},
			{Name: "text", Type: TypeText},
			{Name: "created_at", Type: TypeDateTime, Auto: "create"},
		},
	}
	writable := e.WritableFields()
	if len(writable) != 1 || writable[0].Name != "text" {
		t.Fatalf("unexpected writable fields: %+v", writable)
	}
}
