package metadata

// Relation declares a named association on one entity. Relations are the
// only paths the preload scope and nested writes will traverse: a schema
// level foreign key without a declaration here is invisible to both.
type Relation struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"` // belongs_to, has_many, many_to_many
	Owner string `json:"owner"`
	Target string `json:"target"`

	// ForeignKey is the FK column: on the owner for belongs_to, on the
	// target for has_many. Unused for many_to_many.
	ForeignKey string `json:"foreign_key,omitempty"`

	JoinTable    string `json:"join_table,omitempty"`
	OwnerJoinKey string `json:"owner_join_key,omitempty"`
	TargetJoinKey string `json:"target_join_key,omitempty"`
}

func (r *Relation) IsBelongsTo() bool  { return r.Kind == "belongs_to" }
func (r *Relation) IsHasMany() bool    { return r.Kind == "has_many" }
func (r *Relation) IsManyToMany() bool { return r.Kind == "many_to_many" }
