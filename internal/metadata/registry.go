package metadata

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the process-wide catalog of entities, relations, and resource
// configurations. It is populated once during startup and read-only after
// that; Load validates every declaration and the process must not start if
// it fails.
type Registry struct {
	mu               sync.RWMutex
	entities         map[string]*Entity
	relationsByOwner map[string][]*Relation
	resources        map[string]*ResourceConfig
}

func NewRegistry() *Registry {
	return &Registry{
		entities:         make(map[string]*Entity),
		relationsByOwner: make(map[string][]*Relation),
		resources:        make(map[string]*ResourceConfig),
	}
}

// Load replaces all declarations after validating them as a set.
func (r *Registry) Load(entities []*Entity, relations []*Relation, resources []*ResourceConfig) error {
	entityByName := make(map[string]*Entity, len(entities))
	for _, e := range entities {
		if err := validateEntity(e); err != nil {
			return fmt.Errorf("entity %s: %w", e.Name, err)
		}
		if _, dup := entityByName[e.Name]; dup {
			return fmt.Errorf("duplicate entity: %s", e.Name)
		}
		entityByName[e.Name] = e
	}

	byOwner := make(map[string][]*Relation)
	for _, rel := range relations {
		if err := validateRelation(rel, entityByName); err != nil {
			return fmt.Errorf("relation %s.%s: %w", rel.Owner, rel.Name, err)
		}
		for _, existing := range byOwner[rel.Owner] {
			if existing.Name == rel.Name {
				return fmt.Errorf("duplicate relation %s on entity %s", rel.Name, rel.Owner)
			}
		}
		byOwner[rel.Owner] = append(byOwner[rel.Owner], rel)
	}

	resourceByEntity := make(map[string]*ResourceConfig, len(resources))
	for _, rc := range resources {
		if err := validateResource(rc, entityByName, byOwner); err != nil {
			return fmt.Errorf("resource %s: %w", rc.Entity, err)
		}
		if _, dup := resourceByEntity[rc.Entity]; dup {
			return fmt.Errorf("duplicate resource config for entity: %s", rc.Entity)
		}
		resourceByEntity[rc.Entity] = rc
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = entityByName
	r.relationsByOwner = byOwner
	r.resources = resourceByEntity
	return nil
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// Describe returns the ordered field descriptors for an entity.
func (r *Registry) Describe(name string) ([]Field, error) {
	e := r.GetEntity(name)
	if e == nil {
		return nil, fmt.Errorf("unknown entity: %s", name)
	}
	return e.Fields, nil
}

// AllEntities returns all registered entities sorted by name.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
	return entities
}

// GetResource returns the resource configuration for an entity, or nil.
func (r *Registry) GetResource(entity string) *ResourceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resources[entity]
}

// GetRelation returns the named relation declared on owner, or nil.
func (r *Registry) GetRelation(owner, name string) *Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rel := range r.relationsByOwner[owner] {
		if rel.Name == name {
			return rel
		}
	}
	return nil
}

// RelationsForOwner returns all relations declared on an entity.
func (r *Registry) RelationsForOwner(owner string) []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsByOwner[owner]
}

// RelationsTargeting returns relations on other entities that point at the
// given entity. The admin factory uses this to render back-reference
// pickers instead of inline editors.
func (r *Registry) RelationsTargeting(entity string) []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Relation
	owners := make([]string, 0, len(r.relationsByOwner))
	for owner := range r.relationsByOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		for _, rel := range r.relationsByOwner[owner] {
			if rel.Target == entity {
				out = append(out, rel)
			}
		}
	}
	return out
}

func validateEntity(e *Entity) error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if e.Table == "" {
		return fmt.Errorf("table name is required")
	}
	if len(e.Fields) == 0 {
		return fmt.Errorf("entity must declare at least one field")
	}
	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		if seen[f.Name] {
			return fmt.Errorf("duplicate field: %s", f.Name)
		}
		seen[f.Name] = true
		if err := f.Validate(); err != nil {
			return err
		}
	}
	if e.PrimaryKey.Field == "" {
		return fmt.Errorf("primary key field is required")
	}
	if !e.HasField(e.PrimaryKey.Field) {
		return fmt.Errorf("primary key field %s not found in fields", e.PrimaryKey.Field)
	}
	return nil
}

func validateRelation(rel *Relation, entities map[string]*Entity) error {
	owner, ok := entities[rel.Owner]
	if !ok {
		return fmt.Errorf("owner entity not found: %s", rel.Owner)
	}
	target, ok := entities[rel.Target]
	if !ok {
		return fmt.Errorf("target entity not found: %s", rel.Target)
	}
	switch rel.Kind {
	case "belongs_to":
		if !owner.HasField(rel.ForeignKey) {
			return fmt.Errorf("foreign key %s not found on %s", rel.ForeignKey, rel.Owner)
		}
	case "has_many":
		if !target.HasField(rel.ForeignKey) {
			return fmt.Errorf("foreign key %s not found on %s", rel.ForeignKey, rel.Target)
		}
	case "many_to_many":
		if rel.JoinTable == "" || rel.OwnerJoinKey == "" || rel.TargetJoinKey == "" {
			return fmt.Errorf("many_to_many relation requires join_table and join keys")
		}
	default:
		return fmt.Errorf("unknown relation kind: %s", rel.Kind)
	}
	return nil
}

func validateResource(rc *ResourceConfig, entities map[string]*Entity, relations map[string][]*Relation) error {
	if _, ok := entities[rc.Entity]; !ok {
		return fmt.Errorf("entity not found: %s", rc.Entity)
	}
	declared := func(name string) *Relation {
		for _, rel := range relations[rc.Entity] {
			if rel.Name == name {
				return rel
			}
		}
		return nil
	}
	for _, name := range rc.QueryRelations {
		if declared(name) == nil {
			return fmt.Errorf("query relation %s is not declared on %s", name, rc.Entity)
		}
	}
	for _, name := range rc.CrudRelations {
		rel := declared(name)
		if rel == nil {
			return fmt.Errorf("crud relation %s is not declared on %s", name, rc.Entity)
		}
		if rel.IsBelongsTo() {
			return fmt.Errorf("crud relation %s: belongs_to is written through its foreign key field", name)
		}
	}
	return nil
}
