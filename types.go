package gdao

import "time"

// =====================================
// Core Types and Constants
// =====================================

// Config represents backend connection configuration
type Config struct {
	// Connection details
	Driver        string `json:"driver" yaml:"driver"`
	ConnectionURL string `json:"connection_url" yaml:"connection_url"`
	Host          string `json:"host" yaml:"host"`
	Port          int    `json:"port" yaml:"port"`
	Database      string `json:"database" yaml:"database"`
	Username      string `json:"username" yaml:"username"`
	Password      string `json:"password" yaml:"password"`

	// Connection pool settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	// Additional options
	Options map[string]interface{} `json:"options" yaml:"options"`

	// SSL/TLS configuration
	SSL SSLConfig `json:"ssl" yaml:"ssl"`
}

// SSLConfig represents SSL/TLS configuration
type SSLConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Mode     string `json:"mode" yaml:"mode"`
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
	CAFile   string `json:"ca_file" yaml:"ca_file"`
}

// DatabaseType represents the type of database behind a backend
type DatabaseType string

const (
	DatabaseTypeSQL      DatabaseType = "sql"
	DatabaseTypeDocument DatabaseType = "document"
	DatabaseTypeKV       DatabaseType = "key-value"
	DatabaseTypeMemory   DatabaseType = "memory"
)

// Feature represents a backend capability
type Feature string

const (
	FeatureTransactions Feature = "transactions"
	FeatureReturning    Feature = "returning"
	FeatureRawQueries   Feature = "raw_queries"
	FeatureIndexing     Feature = "indexing"
	FeatureTTL          Feature = "ttl"
)

// RelationKind represents the kind of a declared entity relationship.
// The set is closed: the DAO dispatches exhaustively over these four.
type RelationKind string

const (
	// BelongsTo links via a foreign key stored on the owning entity.
	BelongsTo RelationKind = "belongs_to"
	// HasOne links via a foreign key stored on the related entity,
	// with at most one related row.
	HasOne RelationKind = "has_one"
	// HasMany links via a foreign key stored on the related entities.
	HasMany RelationKind = "has_many"
	// ManyToMany links through a pivot table holding both keys.
	ManyToMany RelationKind = "many_to_many"
)

// Order represents a sort clause
type Order struct {
	Field     string
	Direction OrderDirection
}

// OrderDirection represents sort direction
type OrderDirection string

const (
	OrderAsc  OrderDirection = "ASC"
	OrderDesc OrderDirection = "DESC"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	// ErrorTypeConfiguration marks a programming or setup mistake:
	// unknown relation, relation kind mismatch, missing pivot
	// metadata, unregistered related DAO. Never retried or defaulted.
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeMapping marks a backend record that cannot be
	// converted to an entity.
	ErrorTypeMapping ErrorType = "mapping"
	// ErrorTypeIllegalState marks an operation on an entity missing a
	// required attribute, e.g. an update with no primary key set.
	ErrorTypeIllegalState ErrorType = "illegal_state"
	// ErrorTypeBackend marks a storage-side failure, propagated to
	// the caller unchanged.
	ErrorTypeBackend ErrorType = "backend"

	// Backend-error refinements produced by the adapters.
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeDuplicate   ErrorType = "duplicate"
	ErrorTypeConnection  ErrorType = "connection"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeUnsupported ErrorType = "unsupported"
)
