// Package gdao provides relationship-aware data access objects for Go
// applications over table-shaped storage backends (SQL, document, and
// key-value stores) through adapter implementations.
package gdao

import "context"

// =====================================
// Core Backend Contract
// =====================================

// Record is a single table row as a column-name to value mapping.
// Backends produce Records on the read path and consume them on the
// write path; mappers convert between Records and typed entities.
type Record map[string]interface{}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Backend is the storage contract the DAO layer is built on.
// This is the universal interface implemented by all backend adapters
// (gdaobun, gdaogorm, gdaomongo, gdaoredis). It exposes filter-based
// row access over named tables; everything relationship-aware lives
// above it in the DAO.
type Backend interface {
	// ===============================
	// Read Operations
	// ===============================

	// Select retrieves all rows of a table matching the filter.
	// The projection, when non-empty, restricts the returned columns.
	// An empty filter selects the whole table.
	Select(ctx context.Context, table string, filter Filter, projection []string) ([]Record, error)

	// SelectOne retrieves a single row matching the filter.
	// Returns an Error of ErrorTypeNotFound when no row matches;
	// callers that want absent-as-nil semantics normalize that error.
	SelectOne(ctx context.Context, table string, filter Filter) (Record, error)

	// Count returns the number of rows matching the filter.
	Count(ctx context.Context, table string, filter Filter) (int64, error)

	// ===============================
	// Write Operations
	// ===============================

	// Insert writes one row and returns it as stored, including any
	// server-assigned columns such as auto-increment primary keys.
	Insert(ctx context.Context, table string, row Record) (Record, error)

	// Update applies the row's columns to every row matching the
	// filter and returns the updated row as stored.
	Update(ctx context.Context, table string, row Record, filter Filter) (Record, error)

	// Delete removes all rows matching the filter. Deleting rows that
	// do not exist is not an error.
	Delete(ctx context.Context, table string, filter Filter) error

	// ===============================
	// Escape Hatch
	// ===============================

	// RPC executes a backend-specific named query or procedure and
	// returns its result rows. The meaning of name and params depends
	// on the backend (raw SQL for the SQL adapters, a server command
	// for document stores). Backends without an equivalent return an
	// Error of ErrorTypeUnsupported.
	RPC(ctx context.Context, name string, params map[string]interface{}) ([]Record, error)

	// ===============================
	// Lifecycle
	// ===============================

	// Info describes the backend adapter.
	Info() BackendInfo

	// Health checks if the backend connection is healthy and responsive.
	Health() error

	// Close shuts down the backend and releases all resources.
	Close() error
}

// BackendInfo contains information about a backend adapter.
type BackendInfo struct {
	Name         string
	Version      string
	DatabaseType DatabaseType
	Features     []Feature
}
