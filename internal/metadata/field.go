package metadata

import "fmt"

// FieldType is the closed set of semantic column types. Every persisted
// column is declared with exactly one of these; the type drives validation,
// the search operator, and the admin widget for that column.
type FieldType string

const (
	TypeInt      FieldType = "int"
	TypeBigint   FieldType = "bigint"
	TypeReal     FieldType = "real"
	TypeText     FieldType = "text"
	TypeBoolean  FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
	TypeUUID     FieldType = "uuid"
	TypeEnum     FieldType = "enum"
	TypeRef      FieldType = "ref"
)

type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Nullable bool      `json:"nullable,omitempty"`
	Unique   bool      `json:"unique,omitempty"`
	Enum     []string  `json:"enum,omitempty"`     // value set for enum fields
	Ref      string    `json:"ref,omitempty"`      // target entity for ref fields
	OnDelete string    `json:"on_delete,omitempty"` // foreign-key action for ref fields: "cascade", "set_null", "restrict"
	RichText bool      `json:"rich_text,omitempty"`
	Rule     string    `json:"rule,omitempty"`    // expr expression; violated when it evaluates to true
	Message  string    `json:"message,omitempty"` // message reported when Rule fires
	Auto     string    `json:"auto,omitempty"`    // "create" or "update" timestamp managed by the engine
}

// IsAuto returns true if the field is auto-managed by the engine.
func (f Field) IsAuto() bool {
	return f.Auto == "create" || f.Auto == "update"
}

// SearchOp returns the predicate used when this field appears as a search
// key: substring match for free text, equality for everything else.
func (f Field) SearchOp() string {
	if f.Type == TypeText {
		return "like"
	}
	return "eq"
}

// WidgetKind returns the base admin widget for this field type. The admin
// factory refines ref fields further (image picker when the target is the
// file entity).
func (f Field) WidgetKind() string {
	switch f.Type {
	case TypeEnum:
		return "select"
	case TypeBoolean:
		return "checkbox"
	case TypeInt, TypeBigint, TypeReal:
		return "number"
	case TypeDate:
		return "date"
	case TypeDateTime:
		return "datetime"
	case TypeRef:
		return "reference"
	case TypeUUID:
		return "text"
	default:
		if f.RichText {
			return "richtext"
		}
		return "text"
	}
}

// HasEnumValue reports whether v is a member of the field's enum set.
func (f Field) HasEnumValue(v string) bool {
	for _, e := range f.Enum {
		if e == v {
			return true
		}
	}
	return false
}

// Validate checks the declaration itself (not a value).
func (f Field) Validate() error {
	switch f.Type {
	case TypeInt, TypeBigint, TypeReal, TypeText, TypeBoolean, TypeDate, TypeDateTime, TypeUUID:
	case TypeEnum:
		if len(f.Enum) == 0 {
			return fmt.Errorf("enum field %s declares no values", f.Name)
		}
	case TypeRef:
		if f.Ref == "" {
			return fmt.Errorf("ref field %s declares no target entity", f.Name)
		}
		switch f.OnDelete {
		case "", "cascade", "set_null", "restrict":
		default:
			return fmt.Errorf("ref field %s has unknown on_delete action %q", f.Name, f.OnDelete)
		}
	default:
		return fmt.Errorf("field %s has unknown type %q", f.Name, f.Type)
	}
	if f.OnDelete != "" && f.Type != TypeRef {
		return fmt.Errorf("field %s: on_delete is only valid on ref fields", f.Name)
	}
	if f.RichText && f.Type != TypeText {
		return fmt.Errorf("field %s: rich_text is only valid on text fields", f.Name)
	}
	return nil
}
