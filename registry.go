package gdao

import (
	"context"
	"reflect"
	"sync"
)

// =====================================
// DAO Registry
// =====================================

// AnyDAO is the type-erased view of a registered DAO. It is what the
// registry stores and what the relation loaders use to reach the DAO
// on the other side of a relation without compile-time coupling
// between entity packages. The unexported methods keep
// implementations inside this package: the only AnyDAO is a *DAO[T].
type AnyDAO interface {
	// Table returns the table the DAO operates on.
	Table() string

	// EntityType returns the entity type the DAO is registered under.
	EntityType() reflect.Type

	// PrimaryKeyColumn returns the DAO's primary-key column name.
	PrimaryKeyColumn() string

	// Relations returns the DAO's relation descriptors.
	Relations() *RelationSet

	findAnyByID(ctx context.Context, id interface{}) (interface{}, error)
	findAnyBy(ctx context.Context, filter Filter) ([]interface{}, error)
	primaryKeyOf(entity interface{}) (interface{}, error)
	fieldOf(entity interface{}, name string) (interface{}, bool)
	setFieldOf(entity interface{}, name string, value interface{}) error
	loadAnyRelation(ctx context.Context, entity interface{}, rel Relation) (interface{}, error)
	loadAnyRelationBatch(ctx context.Context, entities []interface{}, rel Relation) ([]interface{}, AnyDAO, error)
}

var (
	once     sync.Once
	instance *DAORegistry
)

// DAORegistry maps entity types to their DAO instances. It is written
// during startup registration and read on every cross-entity relation
// load; reads may interleave with occasional writes (test setup
// swapping in a mock DAO), so access follows a readers-writer
// discipline.
type DAORegistry struct {
	mutex sync.RWMutex
	daos  map[reflect.Type]AnyDAO
}

// NewRegistry creates an empty, independent registry. Most callers
// use the process-wide Registry(); independent registries exist for
// test isolation and embedding.
func NewRegistry() *DAORegistry {
	return &DAORegistry{
		daos: make(map[reflect.Type]AnyDAO),
	}
}

// Registry returns the singleton process-wide registry
func Registry() *DAORegistry {
	once.Do(func() {
		instance = NewRegistry()
	})
	return instance
}

// register stores a DAO under its entity type, replacing any previous
// registration for that type.
func (r *DAORegistry) register(t reflect.Type, dao AnyDAO) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.daos[t] = dao
}

// ByType retrieves the DAO registered for an entity type
func (r *DAORegistry) ByType(t reflect.Type) (AnyDAO, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	dao, ok := r.daos[t]
	return dao, ok
}

// Unregister removes the DAO registered for an entity type
func (r *DAORegistry) Unregister(t reflect.Type) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.daos, t)
}

// Clear removes all registrations. Intended for test teardown.
func (r *DAORegistry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.daos = make(map[reflect.Type]AnyDAO)
}

// Len returns the number of registered DAOs
func (r *DAORegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.daos)
}

// Types returns all registered entity types
func (r *DAORegistry) Types() []reflect.Type {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	types := make([]reflect.Type, 0, len(r.daos))
	for t := range r.daos {
		types = append(types, t)
	}
	return types
}

// =====================================
// Package-level functions
// =====================================

// Register adds a DAO to the registry it was constructed with (the
// process-wide registry unless WithRegistry overrode it).
// Usage: gdao.Register(userDAO)
func Register[T any](dao *DAO[T]) {
	dao.registry.register(entityTypeOf[T](), dao)
}

// Get retrieves the DAO for entity type T from the process-wide
// registry. The stored DAO is type-checked against T; a mismatch
// returns nothing rather than a miscast value.
// Usage: dao, ok := gdao.Get[User]()
func Get[T any]() (*DAO[T], bool) {
	return GetFrom[T](Registry())
}

// GetFrom retrieves the DAO for entity type T from a specific registry
func GetFrom[T any](r *DAORegistry) (*DAO[T], bool) {
	stored, ok := r.ByType(entityTypeOf[T]())
	if !ok {
		return nil, false
	}
	dao, ok := stored.(*DAO[T])
	if !ok {
		return nil, false
	}
	return dao, true
}

// Unregister removes the DAO for entity type T from the process-wide
// registry
func Unregister[T any]() {
	Registry().Unregister(entityTypeOf[T]())
}

// Clear removes all registrations from the process-wide registry.
// Intended for test teardown.
func Clear() {
	Registry().Clear()
}

// entityTypeOf resolves the registry key for entity type T
func entityTypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
