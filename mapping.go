package gdao

// =====================================
// Entity Mapping Contract
// =====================================

// Column contains metadata about one mapped column
type Column struct {
	Name       string
	PrimaryKey bool
	// OmitInsert excludes the column from insert payloads
	// (server-assigned columns such as auto-increment keys).
	OmitInsert bool
	// OmitUpdate excludes the column from update payloads
	// (immutable columns such as created_at).
	OmitUpdate bool
}

// Mapper is the per-entity mapping contract the DAO layer consumes.
// Implementations are generated or hand-written once per entity type;
// the generic DAO and relation loaders stay entity-agnostic by going
// through it. GetField/SetField address columns by name so relation
// loaders can read foreign keys and write loaded values back without
// entity-specific code.
type Mapper[T any] interface {
	// Table returns the table the entity type is bound to.
	Table() string

	// Columns returns the mapped columns in declaration order.
	Columns() []Column

	// ToRecord produces the full column mapping for writes.
	ToRecord(entity *T) (Record, error)

	// FromRecord reconstructs an entity from a backend record.
	// Returns an Error of ErrorTypeMapping when required fields are
	// absent or malformed.
	FromRecord(rec Record) (*T, error)

	// PrimaryKey extracts the entity's identity value. Returns an
	// Error of ErrorTypeIllegalState when the identity field is unset.
	PrimaryKey(entity *T) (interface{}, error)

	// GetField reads a column or relation field by name. The second
	// return is false for names the mapper does not know.
	GetField(entity *T, name string) (interface{}, bool)

	// SetField writes a column or relation field by name. Relation
	// fields accept the values the loaders produce: a single related
	// entity for BelongsTo/HasOne, a slice for HasMany/ManyToMany.
	SetField(entity *T, name string, value interface{}) error
}

// PrimaryKeyColumn returns the name of the primary-key column, or
// "id" when no column carries the flag.
func PrimaryKeyColumn(columns []Column) string {
	for _, col := range columns {
		if col.PrimaryKey {
			return col.Name
		}
	}
	return "id"
}

// InsertRecord builds the insert payload for an entity, honoring the
// OmitInsert column flags.
func InsertRecord[T any](m Mapper[T], entity *T) (Record, error) {
	rec, err := m.ToRecord(entity)
	if err != nil {
		return nil, err
	}
	for _, col := range m.Columns() {
		if col.OmitInsert {
			delete(rec, col.Name)
		}
	}
	return rec, nil
}

// UpdateRecord builds the update payload for an entity, honoring the
// OmitUpdate column flags. The primary-key column is always stripped:
// identity travels in the update filter, never in the payload.
func UpdateRecord[T any](m Mapper[T], entity *T) (Record, error) {
	rec, err := m.ToRecord(entity)
	if err != nil {
		return nil, err
	}
	for _, col := range m.Columns() {
		if col.OmitUpdate || col.PrimaryKey {
			delete(rec, col.Name)
		}
	}
	return rec, nil
}
