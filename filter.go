package gdao

// =====================================
// Filter Model
// =====================================

// Filter describes which rows a backend operation applies to: a
// conjunction of column-equals-value predicates and column-in-set
// predicates, with optional ordering and a result cap. This is the
// whole predicate language of the backend contract; anything richer
// goes through Backend.RPC.
type Filter struct {
	Eq    map[string]interface{}
	In    map[string][]interface{}
	Order []Order
	Limit int
}

// NewFilter creates a new empty filter
func NewFilter() Filter {
	return Filter{
		Eq: make(map[string]interface{}),
		In: make(map[string][]interface{}),
	}
}

// Eq creates a filter with a single column-equals-value predicate
func Eq(column string, value interface{}) Filter {
	return NewFilter().AndEq(column, value)
}

// EqAll creates a filter from a conjunctive field-to-value mapping
func EqAll(conditions map[string]interface{}) Filter {
	f := NewFilter()
	for column, value := range conditions {
		f.Eq[column] = value
	}
	return f
}

// In creates a filter with a single set-membership predicate
func In(column string, values []interface{}) Filter {
	return NewFilter().AndIn(column, values)
}

// AndEq returns a copy of the filter with an additional
// column-equals-value predicate
func (f Filter) AndEq(column string, value interface{}) Filter {
	out := f.clone()
	out.Eq[column] = value
	return out
}

// AndIn returns a copy of the filter with an additional
// set-membership predicate
func (f Filter) AndIn(column string, values []interface{}) Filter {
	out := f.clone()
	out.In[column] = values
	return out
}

// OrderBy returns a copy of the filter with additional sort clauses
func (f Filter) OrderBy(orders ...Order) Filter {
	out := f.clone()
	out.Order = append(out.Order, orders...)
	return out
}

// WithLimit returns a copy of the filter capped to n rows
func (f Filter) WithLimit(n int) Filter {
	out := f.clone()
	out.Limit = n
	return out
}

// IsEmpty reports whether the filter constrains nothing
func (f Filter) IsEmpty() bool {
	return len(f.Eq) == 0 && len(f.In) == 0
}

// Matches reports whether a record satisfies every predicate of the
// filter. Backends that filter client-side (and the test doubles)
// evaluate rows through this one implementation.
func (f Filter) Matches(row Record) bool {
	for column, want := range f.Eq {
		if !looseEqual(row[column], want) {
			return false
		}
	}
	for column, values := range f.In {
		found := false
		for _, want := range values {
			if looseEqual(row[column], want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f Filter) clone() Filter {
	out := Filter{
		Eq:    make(map[string]interface{}, len(f.Eq)),
		In:    make(map[string][]interface{}, len(f.In)),
		Order: append([]Order(nil), f.Order...),
		Limit: f.Limit,
	}
	for k, v := range f.Eq {
		out.Eq[k] = v
	}
	for k, v := range f.In {
		out.In[k] = append([]interface{}(nil), v...)
	}
	return out
}

// looseEqual compares two scalar values across the numeric type
// drift introduced by drivers and JSON decoding (int64 vs float64
// vs int). Non-numeric values compare with ==.
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
