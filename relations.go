package gdao

import (
	"context"
	"fmt"
	"strings"
)

// =====================================
// Relation Loading
// =====================================

// LoadBelongsTo resolves a many-to-one relation for a single entity.
// A nil or missing foreign key resolves to (nil, nil) without a
// backend call, as does a dangling foreign key; in both cases the
// entity field is left untouched. On success the related entity is
// written back to the named field and returned.
func (d *DAO[T]) LoadBelongsTo(ctx context.Context, entity *T, field string) (interface{}, error) {
	rel, err := d.relation(field, BelongsTo)
	if err != nil {
		return nil, err
	}
	fk, ok := d.mapper.GetField(entity, rel.ForeignKey)
	if !ok || fk == nil {
		return nil, nil
	}
	related, err := d.relatedDAO(rel)
	if err != nil {
		return nil, err
	}
	value, err := related.findAnyByID(ctx, fk)
	if err != nil {
		return nil, annotateRelation(err, d.table, field)
	}
	if value == nil {
		return nil, nil
	}
	if err := d.mapper.SetField(entity, field, value); err != nil {
		return nil, err
	}
	return value, nil
}

// LoadHasOne resolves a one-to-one relation for a single entity. The
// related entity, when present, is written back to the named field and
// returned; absence resolves to (nil, nil) with the field untouched.
func (d *DAO[T]) LoadHasOne(ctx context.Context, entity *T, field string) (interface{}, error) {
	rel, err := d.relation(field, HasOne)
	if err != nil {
		return nil, err
	}
	id, err := d.mapper.PrimaryKey(entity)
	if err != nil {
		return nil, err
	}
	related, err := d.relatedDAO(rel)
	if err != nil {
		return nil, err
	}
	values, err := related.findAnyBy(ctx, relationFilter(rel).AndEq(rel.ForeignKey, id).WithLimit(1))
	if err != nil {
		return nil, annotateRelation(err, d.table, field)
	}
	if len(values) == 0 {
		return nil, nil
	}
	if err := d.mapper.SetField(entity, field, values[0]); err != nil {
		return nil, err
	}
	return values[0], nil
}

// LoadHasMany resolves a one-to-many relation for a single entity.
// The loaded slice is written back to the named field even when empty,
// so callers can distinguish "loaded, none" from "never loaded".
func (d *DAO[T]) LoadHasMany(ctx context.Context, entity *T, field string) ([]interface{}, error) {
	rel, err := d.relation(field, HasMany)
	if err != nil {
		return nil, err
	}
	id, err := d.mapper.PrimaryKey(entity)
	if err != nil {
		return nil, err
	}
	related, err := d.relatedDAO(rel)
	if err != nil {
		return nil, err
	}
	values, err := related.findAnyBy(ctx, relationFilter(rel).AndEq(rel.ForeignKey, id))
	if err != nil {
		return nil, annotateRelation(err, d.table, field)
	}
	if values == nil {
		values = []interface{}{}
	}
	if err := d.mapper.SetField(entity, field, values); err != nil {
		return nil, err
	}
	return values, nil
}

// LoadManyToMany resolves a many-to-many relation for a single entity
// through its pivot table: one pivot query for the related ids, then
// at most one batched query for the related entities. An empty pivot
// result writes back an empty slice without the second query.
func (d *DAO[T]) LoadManyToMany(ctx context.Context, entity *T, field string) ([]interface{}, error) {
	rel, err := d.relation(field, ManyToMany)
	if err != nil {
		return nil, err
	}
	id, err := d.mapper.PrimaryKey(entity)
	if err != nil {
		return nil, err
	}
	related, err := d.relatedDAO(rel)
	if err != nil {
		return nil, err
	}

	pivotRows, err := d.backend.Select(ctx, rel.PivotTable,
		Eq(rel.PivotForeignKey, id), []string{rel.PivotRelatedKey})
	if err != nil {
		return nil, annotateRelation(err, d.table, field)
	}
	ids := make([]interface{}, 0, len(pivotRows))
	for _, row := range pivotRows {
		if v, ok := row[rel.PivotRelatedKey]; ok && v != nil {
			ids = append(ids, v)
		}
	}
	if len(ids) == 0 {
		empty := []interface{}{}
		if err := d.mapper.SetField(entity, field, empty); err != nil {
			return nil, err
		}
		return empty, nil
	}

	values, err := related.findAnyBy(ctx, relationFilter(rel).AndIn(related.PrimaryKeyColumn(), ids))
	if err != nil {
		return nil, annotateRelation(err, d.table, field)
	}
	if values == nil {
		values = []interface{}{}
	}
	if err := d.mapper.SetField(entity, field, values); err != nil {
		return nil, err
	}
	return values, nil
}

// =====================================
// Pivot Maintenance
// =====================================

// AddRelation links an entity to a related id through a many-to-many
// pivot table. Extra pivot columns (ordering, timestamps) may be
// supplied alongside the two key columns.
func (d *DAO[T]) AddRelation(ctx context.Context, entity *T, field string, relatedID interface{}, extra ...Record) error {
	rel, err := d.relation(field, ManyToMany)
	if err != nil {
		return err
	}
	id, err := d.mapper.PrimaryKey(entity)
	if err != nil {
		return err
	}
	row := Record{
		rel.PivotForeignKey: id,
		rel.PivotRelatedKey: relatedID,
	}
	for _, e := range extra {
		for k, v := range e {
			row[k] = v
		}
	}
	if _, err := d.backend.Insert(ctx, rel.PivotTable, row); err != nil {
		return annotateRelation(err, d.table, field)
	}
	return nil
}

// RemoveRelation unlinks an entity from a related id in a many-to-many
// pivot table. Removing a link that does not exist is a no-op.
func (d *DAO[T]) RemoveRelation(ctx context.Context, entity *T, field string, relatedID interface{}) error {
	rel, err := d.relation(field, ManyToMany)
	if err != nil {
		return err
	}
	id, err := d.mapper.PrimaryKey(entity)
	if err != nil {
		return err
	}
	filter := Eq(rel.PivotForeignKey, id).AndEq(rel.PivotRelatedKey, relatedID)
	if err := d.backend.Delete(ctx, rel.PivotTable, filter); err != nil {
		return annotateRelation(err, d.table, field)
	}
	return nil
}

// =====================================
// Find With Relations
// =====================================

// FindByIDWithRelations retrieves an entity and resolves the named
// relations onto it. Dotted names descend through nested relations
// ("items.product"). An empty relation list loads the relations
// flagged Eager; names that match no registered relation are skipped.
// Returns (nil, nil) when the entity itself is absent.
func (d *DAO[T]) FindByIDWithRelations(ctx context.Context, id interface{}, relations []string) (*T, error) {
	entity, err := d.FindByID(ctx, id)
	if err != nil || entity == nil {
		return entity, err
	}
	names := relations
	if len(names) == 0 {
		names = d.relations.EagerNames()
	}
	for _, name := range names {
		if strings.Contains(name, ".") {
			if err := d.loadPath(ctx, []interface{}{entity}, name); err != nil {
				return nil, err
			}
			continue
		}
		rel, ok := d.relations.Lookup(name)
		if !ok {
			continue
		}
		if _, err := d.loadAnyRelation(ctx, entity, rel); err != nil {
			return nil, err
		}
	}
	return entity, nil
}

// FindAllWithRelations retrieves every entity and resolves the named
// relations onto each, batching per relation: N entities cost one
// query for the entity rows plus a constant number of queries per
// relation name, never one per entity. Semantics of the relation list
// match FindByIDWithRelations.
func (d *DAO[T]) FindAllWithRelations(ctx context.Context, relations []string) ([]*T, error) {
	entities, err := d.FindAll(ctx)
	if err != nil || len(entities) == 0 {
		return entities, err
	}
	erased := make([]interface{}, len(entities))
	for i, e := range entities {
		erased[i] = e
	}
	names := relations
	if len(names) == 0 {
		names = d.relations.EagerNames()
	}
	for _, name := range names {
		if strings.Contains(name, ".") {
			if err := d.loadPath(ctx, erased, name); err != nil {
				return nil, err
			}
			continue
		}
		rel, ok := d.relations.Lookup(name)
		if !ok {
			continue
		}
		if _, _, err := d.loadAnyRelationBatch(ctx, erased, rel); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// LoadRelations resolves relation paths onto an already-loaded entity
func (d *DAO[T]) LoadRelations(ctx context.Context, entity *T, paths ...string) error {
	return d.LoadRelationsAll(ctx, []*T{entity}, paths...)
}

// LoadRelationsAll resolves relation paths onto a slice of
// already-loaded entities, batching each step across the slice.
func (d *DAO[T]) LoadRelationsAll(ctx context.Context, entities []*T, paths ...string) error {
	if len(entities) == 0 {
		return nil
	}
	erased := make([]interface{}, len(entities))
	for i, e := range entities {
		erased[i] = e
	}
	for _, path := range paths {
		if err := d.loadPath(ctx, erased, path); err != nil {
			return err
		}
	}
	return nil
}

// =====================================
// Type-erased loaders
// =====================================

// loadAnyRelation resolves one relation on one entity, dispatching to
// the kind-specific loader.
func (d *DAO[T]) loadAnyRelation(ctx context.Context, entity interface{}, rel Relation) (interface{}, error) {
	typed, err := d.assertEntity(entity)
	if err != nil {
		return nil, err
	}
	switch rel.Kind {
	case BelongsTo:
		return d.LoadBelongsTo(ctx, typed, rel.Field)
	case HasOne:
		return d.LoadHasOne(ctx, typed, rel.Field)
	case HasMany:
		values, err := d.LoadHasMany(ctx, typed, rel.Field)
		if err != nil {
			return nil, err
		}
		return values, nil
	case ManyToMany:
		values, err := d.LoadManyToMany(ctx, typed, rel.Field)
		if err != nil {
			return nil, err
		}
		return values, nil
	default:
		return nil, NewError(ErrorTypeConfiguration, "unknown relation kind").
			WithTable(d.table).WithRelation(rel.Field)
	}
}

// loadAnyRelationBatch resolves one relation across a slice of
// entities with a constant number of backend queries, writes the
// results back per entity, and returns the loaded related entities
// together with the related DAO so path loading can descend.
func (d *DAO[T]) loadAnyRelationBatch(ctx context.Context, entities []interface{}, rel Relation) ([]interface{}, AnyDAO, error) {
	if err := rel.validate(); err != nil {
		return nil, nil, annotateRelation(err, d.table, rel.Field)
	}
	related, err := d.relatedDAO(rel)
	if err != nil {
		return nil, nil, err
	}
	if len(entities) == 0 {
		return nil, related, nil
	}

	var loaded []interface{}
	switch rel.Kind {
	case BelongsTo:
		loaded, err = d.batchBelongsTo(ctx, entities, rel, related)
	case HasOne, HasMany:
		loaded, err = d.batchHasRelated(ctx, entities, rel, related)
	case ManyToMany:
		loaded, err = d.batchManyToMany(ctx, entities, rel, related)
	default:
		err = NewError(ErrorTypeConfiguration, "unknown relation kind").
			WithTable(d.table).WithRelation(rel.Field)
	}
	if err != nil {
		return nil, nil, err
	}
	return loaded, related, nil
}

// batchBelongsTo collects the distinct foreign keys across the slice,
// fetches the related rows in one query, and assigns each parent its
// match. Parents with nil or dangling keys are left untouched.
func (d *DAO[T]) batchBelongsTo(ctx context.Context, entities []interface{}, rel Relation, related AnyDAO) ([]interface{}, error) {
	var fks []interface{}
	seen := make(map[string]bool)
	for _, e := range entities {
		fk, ok := d.fieldOf(e, rel.ForeignKey)
		if !ok || fk == nil {
			continue
		}
		key := groupKey(fk)
		if !seen[key] {
			seen[key] = true
			fks = append(fks, fk)
		}
	}
	if len(fks) == 0 {
		return nil, nil
	}

	values, err := related.findAnyBy(ctx, In(related.PrimaryKeyColumn(), fks))
	if err != nil {
		return nil, annotateRelation(err, d.table, rel.Field)
	}
	byID := make(map[string]interface{}, len(values))
	for _, v := range values {
		id, err := related.primaryKeyOf(v)
		if err != nil {
			return nil, err
		}
		byID[groupKey(id)] = v
	}
	for _, e := range entities {
		fk, ok := d.fieldOf(e, rel.ForeignKey)
		if !ok || fk == nil {
			continue
		}
		if v, found := byID[groupKey(fk)]; found {
			if err := d.setFieldOf(e, rel.Field, v); err != nil {
				return nil, err
			}
		}
	}
	return values, nil
}

// batchHasRelated loads HasOne and HasMany for a slice of parents with
// one query over the foreign-key column, then groups the related rows
// back onto their parents. HasMany writes a slice (empty when none);
// HasOne writes the first match and leaves the field alone otherwise.
func (d *DAO[T]) batchHasRelated(ctx context.Context, entities []interface{}, rel Relation, related AnyDAO) ([]interface{}, error) {
	ids := make([]interface{}, 0, len(entities))
	for _, e := range entities {
		id, err := d.primaryKeyOf(e)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	values, err := related.findAnyBy(ctx, relationFilter(rel).AndIn(rel.ForeignKey, ids))
	if err != nil {
		return nil, annotateRelation(err, d.table, rel.Field)
	}
	grouped := make(map[string][]interface{})
	for _, v := range values {
		fk, ok := related.fieldOf(v, rel.ForeignKey)
		if !ok || fk == nil {
			continue
		}
		key := groupKey(fk)
		grouped[key] = append(grouped[key], v)
	}

	for i, e := range entities {
		children := grouped[groupKey(ids[i])]
		if rel.Kind == HasOne {
			if len(children) == 0 {
				continue
			}
			if err := d.setFieldOf(e, rel.Field, children[0]); err != nil {
				return nil, err
			}
			continue
		}
		if children == nil {
			children = []interface{}{}
		}
		if err := d.setFieldOf(e, rel.Field, children); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// batchManyToMany loads a many-to-many relation for a slice of parents
// with one pivot query plus at most one related query, then assembles
// each parent's slice from the pivot pairs.
func (d *DAO[T]) batchManyToMany(ctx context.Context, entities []interface{}, rel Relation, related AnyDAO) ([]interface{}, error) {
	ids := make([]interface{}, 0, len(entities))
	for _, e := range entities {
		id, err := d.primaryKeyOf(e)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	pivotRows, err := d.backend.Select(ctx, rel.PivotTable,
		In(rel.PivotForeignKey, ids), []string{rel.PivotForeignKey, rel.PivotRelatedKey})
	if err != nil {
		return nil, annotateRelation(err, d.table, rel.Field)
	}

	type pivotPair struct {
		owner   string
		related interface{}
	}
	pairs := make([]pivotPair, 0, len(pivotRows))
	var relatedIDs []interface{}
	seen := make(map[string]bool)
	for _, row := range pivotRows {
		owner, ok := row[rel.PivotForeignKey]
		if !ok || owner == nil {
			continue
		}
		rid, ok := row[rel.PivotRelatedKey]
		if !ok || rid == nil {
			continue
		}
		pairs = append(pairs, pivotPair{owner: groupKey(owner), related: rid})
		key := groupKey(rid)
		if !seen[key] {
			seen[key] = true
			relatedIDs = append(relatedIDs, rid)
		}
	}

	var values []interface{}
	byID := make(map[string]interface{})
	if len(relatedIDs) > 0 {
		values, err = related.findAnyBy(ctx, relationFilter(rel).AndIn(related.PrimaryKeyColumn(), relatedIDs))
		if err != nil {
			return nil, annotateRelation(err, d.table, rel.Field)
		}
		for _, v := range values {
			id, err := related.primaryKeyOf(v)
			if err != nil {
				return nil, err
			}
			byID[groupKey(id)] = v
		}
	}

	perOwner := make(map[string][]interface{})
	for _, pair := range pairs {
		if v, found := byID[groupKey(pair.related)]; found {
			perOwner[pair.owner] = append(perOwner[pair.owner], v)
		}
	}
	for i, e := range entities {
		children := perOwner[groupKey(ids[i])]
		if children == nil {
			children = []interface{}{}
		}
		if err := d.setFieldOf(e, rel.Field, children); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// =====================================
// Loader helpers
// =====================================

// relation resolves a field name to its descriptor and checks the kind
func (d *DAO[T]) relation(field string, kind RelationKind) (Relation, error) {
	rel, ok := d.relations.Lookup(field)
	if !ok {
		return Relation{}, NewError(ErrorTypeConfiguration, "no relation registered for field").
			WithTable(d.table).WithRelation(field)
	}
	if rel.Kind != kind {
		return Relation{}, NewError(ErrorTypeConfiguration,
			fmt.Sprintf("relation is %s, not %s", rel.Kind, kind)).
			WithTable(d.table).WithRelation(field)
	}
	if err := rel.validate(); err != nil {
		return Relation{}, annotateRelation(err, d.table, field)
	}
	return rel, nil
}

// relatedDAO resolves the DAO on the other side of a relation
func (d *DAO[T]) relatedDAO(rel Relation) (AnyDAO, error) {
	related, ok := d.registry.ByType(rel.RelatedType)
	if !ok {
		return nil, NewError(ErrorTypeConfiguration,
			fmt.Sprintf("no DAO registered for related type %s", rel.RelatedType)).
			WithTable(d.table).WithRelation(rel.Field)
	}
	return related, nil
}

// relationFilter builds the base filter from a descriptor's optional
// conditions and ordering
func relationFilter(rel Relation) Filter {
	f := EqAll(rel.Where)
	if len(rel.OrderBy) > 0 {
		f = f.OrderBy(rel.OrderBy...)
	}
	return f
}

// groupKey normalizes a key value for map grouping, so int64(7) from
// one backend and float64(7) from another land in the same bucket.
func groupKey(v interface{}) string {
	switch n := v.(type) {
	case float32:
		return fmt.Sprintf("%v", float64(n))
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%v", n)
	}
	return fmt.Sprintf("%v", v)
}

// annotateRelation stamps table and relation context onto loader errors
func annotateRelation(err error, table, field string) error {
	if e, ok := err.(Error); ok {
		if e.Table == "" {
			e.Table = table
		}
		if e.Relation == "" {
			e.Relation = field
		}
		return e
	}
	return NewErrorWithCause(ErrorTypeBackend, "relation load failed", err).
		WithTable(table).WithRelation(field)
}
