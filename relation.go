package gdao

import (
	"log"
	"reflect"
	"sync"
)

// =====================================
// Relationship Metadata
// =====================================

// Relation is the immutable descriptor tying a named field on an
// owning entity type to the entity type on the other side. The
// meaning of ForeignKey depends on Kind: for BelongsTo it is the
// column on the owning entity holding the related id; for HasOne and
// HasMany it is the column on the related entity holding the owning
// id; for ManyToMany the link lives in PivotTable under
// PivotForeignKey (owning id) and PivotRelatedKey (related id).
type Relation struct {
	Field       string
	Kind        RelationKind
	RelatedType reflect.Type
	ForeignKey  string

	// ManyToMany only
	PivotTable      string
	PivotForeignKey string
	PivotRelatedKey string

	// Eager marks the relation for default loading when no explicit
	// relation list is given. Advisory only.
	Eager bool

	// Optional filter and ordering applied to the related query.
	Where   map[string]interface{}
	OrderBy []Order
}

// BelongsToRelation declares a many-to-one link to R via a foreign
// key column on the owning entity.
func BelongsToRelation[R any](field, foreignKey string) Relation {
	return Relation{
		Field:       field,
		Kind:        BelongsTo,
		RelatedType: reflect.TypeOf((*R)(nil)).Elem(),
		ForeignKey:  foreignKey,
	}
}

// HasOneRelation declares a one-to-one link to R via a foreign key
// column on the related entity.
func HasOneRelation[R any](field, foreignKey string) Relation {
	return Relation{
		Field:       field,
		Kind:        HasOne,
		RelatedType: reflect.TypeOf((*R)(nil)).Elem(),
		ForeignKey:  foreignKey,
	}
}

// HasManyRelation declares a one-to-many link to R via a foreign key
// column on the related entities.
func HasManyRelation[R any](field, foreignKey string) Relation {
	return Relation{
		Field:       field,
		Kind:        HasMany,
		RelatedType: reflect.TypeOf((*R)(nil)).Elem(),
		ForeignKey:  foreignKey,
	}
}

// ManyToManyRelation declares a many-to-many link to R through a
// pivot table holding the owning id under pivotForeignKey and the
// related id under pivotRelatedKey.
func ManyToManyRelation[R any](field, pivotTable, pivotForeignKey, pivotRelatedKey string) Relation {
	return Relation{
		Field:           field,
		Kind:            ManyToMany,
		RelatedType:     reflect.TypeOf((*R)(nil)).Elem(),
		PivotTable:      pivotTable,
		PivotForeignKey: pivotForeignKey,
		PivotRelatedKey: pivotRelatedKey,
	}
}

// WithEager returns a copy of the relation flagged for default loading
func (r Relation) WithEager() Relation {
	r.Eager = true
	return r
}

// WithWhere returns a copy of the relation with a filter applied to
// the related query
func (r Relation) WithWhere(conditions map[string]interface{}) Relation {
	r.Where = conditions
	return r
}

// WithOrderBy returns a copy of the relation with ordering applied to
// the related query
func (r Relation) WithOrderBy(orders ...Order) Relation {
	r.OrderBy = append(append([]Order(nil), r.OrderBy...), orders...)
	return r
}

// validate checks the descriptor carries the metadata its kind needs.
func (r Relation) validate() error {
	if r.Field == "" {
		return NewError(ErrorTypeConfiguration, "relation has no field name")
	}
	if r.RelatedType == nil {
		return NewError(ErrorTypeConfiguration, "relation has no related type").WithRelation(r.Field)
	}
	switch r.Kind {
	case BelongsTo, HasOne, HasMany:
		if r.ForeignKey == "" {
			return NewError(ErrorTypeConfiguration, "relation has no foreign key").WithRelation(r.Field)
		}
	case ManyToMany:
		if r.PivotTable == "" || r.PivotForeignKey == "" || r.PivotRelatedKey == "" {
			return NewError(ErrorTypeConfiguration, "many-to-many relation is missing pivot metadata").WithRelation(r.Field)
		}
	default:
		return NewError(ErrorTypeConfiguration, "unknown relation kind").WithRelation(r.Field)
	}
	return nil
}

// =====================================
// Relation Registry
// =====================================

// RelationSet holds the relation descriptors of one entity type,
// keyed by field name. Registration is additive; re-registering a
// field overwrites the previous descriptor (generated code may
// legitimately re-register at load time), with a logged warning since
// it usually signals a configuration mistake.
type RelationSet struct {
	mutex   sync.RWMutex
	byField map[string]Relation
}

// NewRelationSet creates an empty relation set
func NewRelationSet() *RelationSet {
	return &RelationSet{
		byField: make(map[string]Relation),
	}
}

// Register adds a relation descriptor to the set
func (s *RelationSet) Register(rel Relation) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.byField[rel.Field]; exists {
		log.Printf("gdao: relation %q registered twice; last registration wins", rel.Field)
	}
	s.byField[rel.Field] = rel
}

// Lookup retrieves the descriptor for a field name
func (s *RelationSet) Lookup(field string) (Relation, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rel, ok := s.byField[field]
	return rel, ok
}

// Names returns all registered field names
func (s *RelationSet) Names() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	names := make([]string, 0, len(s.byField))
	for field := range s.byField {
		names = append(names, field)
	}
	return names
}

// EagerNames returns the field names flagged for default loading
func (s *RelationSet) EagerNames() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var names []string
	for field, rel := range s.byField {
		if rel.Eager {
			names = append(names, field)
		}
	}
	return names
}

// Len returns the number of registered relations
func (s *RelationSet) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.byField)
}
