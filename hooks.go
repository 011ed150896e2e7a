package gdao

import "context"

// =====================================
// Entity Hook Interfaces
// =====================================

// Entity types may implement any of these interfaces to observe the
// DAO write path. The DAO checks for them with type assertions; a
// hook error aborts the operation before (or surfaces after) the
// backend call. Logging and cache decorators hang off these hooks
// without the core knowing about them.

// BeforeInsertHook is called before inserting an entity
type BeforeInsertHook interface {
	BeforeInsert(ctx context.Context) error
}

// AfterInsertHook is called after successfully inserting an entity.
// It runs on the reconstructed entity returned by the backend, so
// server-assigned fields are visible to it.
type AfterInsertHook interface {
	AfterInsert(ctx context.Context) error
}

// BeforeUpdateHook is called before updating an entity
type BeforeUpdateHook interface {
	BeforeUpdate(ctx context.Context) error
}

// AfterUpdateHook is called after successfully updating an entity
type AfterUpdateHook interface {
	AfterUpdate(ctx context.Context) error
}

// BeforeDeleteHook is called before deleting an entity via DeleteEntity
type BeforeDeleteHook interface {
	BeforeDelete(ctx context.Context) error
}

// AfterDeleteHook is called after successfully deleting an entity via
// DeleteEntity
type AfterDeleteHook interface {
	AfterDelete(ctx context.Context) error
}

// ValidationHook is called to validate an entity before insert/update
type ValidationHook interface {
	Validate(ctx context.Context) error
}
