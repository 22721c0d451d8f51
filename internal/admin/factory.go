package admin

import (
	"sort"

	"campus-backend/internal/metadata"
)

// Resource is the UI descriptor for one registered resource. Descriptors
// are built once at startup from the registry and never mutated afterwards;
// the admin frontend renders forms, tables, and navigation from them.
type Resource struct {
	Name      string               `json:"name"`
	NavGroup  string               `json:"nav_group"`
	Singleton bool                 `json:"singleton"`
	Moderated bool                 `json:"moderated"`
	Actions   Actions              `json:"actions"`
	Fields    []FieldDescriptor    `json:"fields"`
	Relations []RelationDescriptor `json:"relations,omitempty"`
}

// Actions flags which operations the UI should offer.
type Actions struct {
	New    bool `json:"new"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
	Drafts bool `json:"drafts"`
}

type FieldDescriptor struct {
	Name     string   `json:"name"`
	Widget   string   `json:"widget"`
	Required bool     `json:"required,omitempty"`
	Nullable bool     `json:"nullable,omitempty"`
	Readonly bool     `json:"readonly,omitempty"`
	Enum     []string `json:"enum,omitempty"`
	Ref      string   `json:"ref,omitempty"`
}

// RelationDescriptor tells the UI how to edit a relation: "inline" embeds a
// child editor for owned has-many rows, "multiselect" picks many-to-many
// targets, and "picker" is a back-reference selector rendered on the target
// side.
type RelationDescriptor struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Owner  string `json:"owner,omitempty"`
	Mode   string `json:"mode"`
}

// BuildResources builds one descriptor per registered resource, sorted by
// entity name so the output is deterministic across restarts.
func BuildResources(reg *metadata.Registry) []Resource {
	var out []Resource
	for _, entity := range reg.AllEntities() {
		rc := reg.GetResource(entity.Name)
		if rc == nil {
			continue
		}
		out = append(out, buildResource(reg, rc, entity))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func buildResource(reg *metadata.Registry, rc *metadata.ResourceConfig, entity *metadata.Entity) Resource {
	r := Resource{
		Name:      entity.Name,
		NavGroup:  rc.NavGroup,
		Singleton: rc.IsSingleton(),
		Moderated: rc.Moderated,
		Actions: Actions{
			New:    !rc.IsSingleton(),
			Edit:   true,
			Delete: !rc.IsSingleton(),
			Drafts: rc.Moderated,
		},
	}

	for _, f := range entity.Fields {
		r.Fields = append(r.Fields, buildField(entity, f))
	}

	for _, rel := range reg.RelationsForOwner(entity.Name) {
		switch {
		case rel.IsHasMany():
			r.Relations = append(r.Relations, RelationDescriptor{
				Name: rel.Name, Kind: rel.Kind, Target: rel.Target, Mode: "inline",
			})
		case rel.IsManyToMany():
			r.Relations = append(r.Relations, RelationDescriptor{
				Name: rel.Name, Kind: rel.Kind, Target: rel.Target, Mode: "multiselect",
			})
		}
	}
	// Where this model is the target of another model's relation the UI
	// shows a picker on this side instead of an inline editor.
	for _, rel := range reg.RelationsTargeting(entity.Name) {
		if !rel.IsBelongsTo() {
			continue
		}
		r.Relations = append(r.Relations, RelationDescriptor{
			Name: rel.Name, Kind: rel.Kind, Target: rel.Target, Owner: rel.Owner, Mode: "picker",
		})
	}

	return r
}

func buildField(entity *metadata.Entity, f metadata.Field) FieldDescriptor {
	widget := f.WidgetKind()
	// References to uploaded files render as an image picker.
	if f.Type == metadata.TypeRef && f.Ref == "file" {
		widget = "image"
	}

	readonly := f.IsAuto() || (f.Name == entity.PrimaryKey.Field && entity.PrimaryKey.Generated)

	return FieldDescriptor{
		Name:     f.Name,
		Widget:   widget,
		Required: f.Required,
		Nullable: f.Nullable,
		Readonly: readonly,
		Enum:     f.Enum,
		Ref:      f.Ref,
	}
}
