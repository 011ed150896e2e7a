package gdao

import (
	"context"
	"reflect"
)

// =====================================
// Base Data Access Object
// =====================================

// DAO is the per-entity-type gateway for CRUD and relation
// operations. One DAO exists per entity type; it owns a backend
// reference and its entity's relation descriptors, and reaches other
// entities' DAOs through the registry it was constructed with.
type DAO[T any] struct {
	backend   Backend
	mapper    Mapper[T]
	table     string
	pkColumn  string
	relations *RelationSet
	registry  *DAORegistry
}

// Option configures a DAO at construction time
type Option[T any] func(*DAO[T])

// WithRegistry makes the DAO resolve related DAOs through r instead
// of the process-wide registry. Used for test isolation.
func WithRegistry[T any](r *DAORegistry) Option[T] {
	return func(d *DAO[T]) {
		d.registry = r
	}
}

// WithRelations registers relation descriptors at construction time
func WithRelations[T any](relations ...Relation) Option[T] {
	return func(d *DAO[T]) {
		for _, rel := range relations {
			d.relations.Register(rel)
		}
	}
}

// New creates a DAO for entity type T over the given backend and
// mapping contract. The DAO is not registered automatically; call
// Register once construction is complete.
func New[T any](backend Backend, mapper Mapper[T], opts ...Option[T]) *DAO[T] {
	d := &DAO[T]{
		backend:   backend,
		mapper:    mapper,
		table:     mapper.Table(),
		pkColumn:  PrimaryKeyColumn(mapper.Columns()),
		relations: NewRelationSet(),
		registry:  Registry(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Table returns the table the DAO operates on
func (d *DAO[T]) Table() string {
	return d.table
}

// EntityType returns the entity type the DAO maps
func (d *DAO[T]) EntityType() reflect.Type {
	return entityTypeOf[T]()
}

// PrimaryKeyColumn returns the primary-key column name
func (d *DAO[T]) PrimaryKeyColumn() string {
	return d.pkColumn
}

// Relations returns the DAO's relation descriptors
func (d *DAO[T]) Relations() *RelationSet {
	return d.relations
}

// Backend returns the backend the DAO operates through
func (d *DAO[T]) Backend() Backend {
	return d.backend
}

// Mapper returns the DAO's entity mapping contract
func (d *DAO[T]) Mapper() Mapper[T] {
	return d.mapper
}

// ===============================
// Basic CRUD Operations
// ===============================

// FindByID retrieves a single entity by its primary key.
// Returns (nil, nil) when no row matches.
func (d *DAO[T]) FindByID(ctx context.Context, id interface{}) (*T, error) {
	row, err := d.backend.SelectOne(ctx, d.table, Eq(d.pkColumn, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return d.mapper.FromRecord(row)
}

// FindAll retrieves every entity of the table
func (d *DAO[T]) FindAll(ctx context.Context) ([]*T, error) {
	return d.selectEntities(ctx, NewFilter())
}

// FindWhere retrieves entities matching a conjunctive equality
// filter. Empty conditions behave like FindAll.
func (d *DAO[T]) FindWhere(ctx context.Context, conditions map[string]interface{}) ([]*T, error) {
	return d.selectEntities(ctx, EqAll(conditions))
}

// FindFirstWhere retrieves the first entity matching a conjunctive
// equality filter. Returns (nil, nil) when no row matches; any other
// backend failure propagates.
func (d *DAO[T]) FindFirstWhere(ctx context.Context, conditions map[string]interface{}) (*T, error) {
	row, err := d.backend.SelectOne(ctx, d.table, EqAll(conditions))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return d.mapper.FromRecord(row)
}

// FindWhereIn retrieves entities whose column value is in the given
// set. An empty value set returns an empty result without contacting
// the backend.
func (d *DAO[T]) FindWhereIn(ctx context.Context, column string, values []interface{}) ([]*T, error) {
	if len(values) == 0 {
		return []*T{}, nil
	}
	return d.selectEntities(ctx, In(column, values))
}

// Insert writes a new entity and returns the entity reconstructed
// from the backend's returned row, so server-assigned fields such as
// auto-increment ids are picked up. Columns flagged OmitInsert are
// stripped from the payload.
func (d *DAO[T]) Insert(ctx context.Context, entity *T) (*T, error) {
	if err := d.runValidation(ctx, entity); err != nil {
		return nil, err
	}
	if hook, ok := any(entity).(BeforeInsertHook); ok {
		if err := hook.BeforeInsert(ctx); err != nil {
			return nil, err
		}
	}

	rec, err := InsertRecord(d.mapper, entity)
	if err != nil {
		return nil, err
	}
	row, err := d.backend.Insert(ctx, d.table, rec)
	if err != nil {
		return nil, err
	}
	stored, err := d.mapper.FromRecord(row)
	if err != nil {
		return nil, err
	}

	if hook, ok := any(stored).(AfterInsertHook); ok {
		if err := hook.AfterInsert(ctx); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// Update writes an existing entity by primary-key equality and
// returns the reconstructed updated entity. The entity must have a
// resolvable primary key; columns flagged OmitUpdate and the
// primary-key column are stripped from the payload.
func (d *DAO[T]) Update(ctx context.Context, entity *T) (*T, error) {
	id, err := d.mapper.PrimaryKey(entity)
	if err != nil {
		return nil, err
	}
	if err := d.runValidation(ctx, entity); err != nil {
		return nil, err
	}
	if hook, ok := any(entity).(BeforeUpdateHook); ok {
		if err := hook.BeforeUpdate(ctx); err != nil {
			return nil, err
		}
	}

	rec, err := UpdateRecord(d.mapper, entity)
	if err != nil {
		return nil, err
	}
	row, err := d.backend.Update(ctx, d.table, rec, Eq(d.pkColumn, id))
	if err != nil {
		return nil, err
	}
	stored, err := d.mapper.FromRecord(row)
	if err != nil {
		return nil, err
	}

	if hook, ok := any(stored).(AfterUpdateHook); ok {
		if err := hook.AfterUpdate(ctx); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// Delete removes the row with the given primary key. Deleting a
// non-existent id completes without error.
func (d *DAO[T]) Delete(ctx context.Context, id interface{}) error {
	return d.backend.Delete(ctx, d.table, Eq(d.pkColumn, id))
}

// DeleteEntity removes an entity by its primary key, running the
// delete hooks the entity type implements.
func (d *DAO[T]) DeleteEntity(ctx context.Context, entity *T) error {
	id, err := d.mapper.PrimaryKey(entity)
	if err != nil {
		return err
	}
	if hook, ok := any(entity).(BeforeDeleteHook); ok {
		if err := hook.BeforeDelete(ctx); err != nil {
			return err
		}
	}
	if err := d.Delete(ctx, id); err != nil {
		return err
	}
	if hook, ok := any(entity).(AfterDeleteHook); ok {
		if err := hook.AfterDelete(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the total number of rows in the table
func (d *DAO[T]) Count(ctx context.Context) (int64, error) {
	return d.backend.Count(ctx, d.table, NewFilter())
}

// CountWhere returns the number of rows matching a conjunctive
// equality filter
func (d *DAO[T]) CountWhere(ctx context.Context, conditions map[string]interface{}) (int64, error) {
	return d.backend.Count(ctx, d.table, EqAll(conditions))
}

// RawQuery executes a backend-specific query and maps each returned
// row through the entity mapping contract.
func (d *DAO[T]) RawQuery(ctx context.Context, query string, params map[string]interface{}) ([]*T, error) {
	rows, err := d.backend.RPC(ctx, query, params)
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0, len(rows))
	for _, row := range rows {
		entity, err := d.mapper.FromRecord(row)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// ===============================
// Internal helpers
// ===============================

func (d *DAO[T]) selectEntities(ctx context.Context, filter Filter) ([]*T, error) {
	rows, err := d.backend.Select(ctx, d.table, filter, nil)
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0, len(rows))
	for _, row := range rows {
		entity, err := d.mapper.FromRecord(row)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (d *DAO[T]) runValidation(ctx context.Context, entity *T) error {
	if hook, ok := any(entity).(ValidationHook); ok {
		return hook.Validate(ctx)
	}
	return nil
}

// =====================================
// Type-erased registry view
// =====================================

func (d *DAO[T]) findAnyByID(ctx context.Context, id interface{}) (interface{}, error) {
	entity, err := d.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}
	return entity, nil
}

func (d *DAO[T]) findAnyBy(ctx context.Context, filter Filter) ([]interface{}, error) {
	entities, err := d.selectEntities(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(entities))
	for i, entity := range entities {
		out[i] = entity
	}
	return out, nil
}

func (d *DAO[T]) primaryKeyOf(entity interface{}) (interface{}, error) {
	typed, err := d.assertEntity(entity)
	if err != nil {
		return nil, err
	}
	return d.mapper.PrimaryKey(typed)
}

func (d *DAO[T]) fieldOf(entity interface{}, name string) (interface{}, bool) {
	typed, err := d.assertEntity(entity)
	if err != nil {
		return nil, false
	}
	return d.mapper.GetField(typed, name)
}

func (d *DAO[T]) setFieldOf(entity interface{}, name string, value interface{}) error {
	typed, err := d.assertEntity(entity)
	if err != nil {
		return err
	}
	return d.mapper.SetField(typed, name, value)
}

func (d *DAO[T]) assertEntity(entity interface{}) (*T, error) {
	typed, ok := entity.(*T)
	if !ok {
		return nil, NewError(ErrorTypeConfiguration, "entity is not of the DAO's mapped type").WithTable(d.table)
	}
	return typed, nil
}
