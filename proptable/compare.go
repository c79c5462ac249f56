package proptable

// CompareOp is a property-query comparison operator, spec §4.8.
type CompareOp int

const (
	EQ CompareOp = iota
	NEQ
	LT
	LTE
	GT
	GTE
	Exists
	DoesNotExist
	Any
	All
)

func numeric(v Value) (float64, bool) {
	switch v.Type {
	case Int32:
		if len(v.Int32s) == 1 {
			return float64(v.Int32s[0]), true
		}
	case Int64:
		if len(v.Int64s) == 1 {
			return float64(v.Int64s[0]), true
		}
	case Float32:
		if len(v.Float32s) == 1 {
			return float64(v.Float32s[0]), true
		}
	case Float64:
		if len(v.Float64s) == 1 {
			return float64(v.Float64s[0]), true
		}
	}
	return 0, false
}

// Matches evaluates op against the table's record at key and the
// supplied comparison value (ignored for Exists/DoesNotExist). EXISTS is
// true for any present record including one holding a zero value — the
// Open Question this module resolved in DESIGN.md: absence (no record)
// is the only thing DoesNotExist reports true for.
func (t *Table) Matches(key string, op CompareOp, want Value) bool {
	got, present := t.Get(key)

	switch op {
	case Exists:
		return present
	case DoesNotExist:
		return !present
	}

	if !present {
		return false
	}

	switch op {
	case EQ:
		return got.Equal(want)
	case NEQ:
		return !got.Equal(want)
	case LT, LTE, GT, GTE:
		a, ok1 := numeric(got)
		b, ok2 := numeric(want)
		if !ok1 || !ok2 {
			return false
		}
		switch op {
		case LT:
			return a < b
		case LTE:
			return a <= b
		case GT:
			return a > b
		case GTE:
			return a >= b
		}
	case Any, All:
		// Vector/list membership tests: Any is true if any element
		// equals want, All is true if every element does.
		elems := elementsOf(got)
		if len(elems) == 0 {
			return false
		}
		for _, e := range elems {
			eq := e.Equal(want)
			if op == Any && eq {
				return true
			}
			if op == All && !eq {
				return false
			}
		}
		return op == All
	}
	return false
}

func elementsOf(v Value) []Value {
	switch v.Type {
	case List:
		return v.List
	case Int32:
		out := make([]Value, len(v.Int32s))
		for i, n := range v.Int32s {
			out[i] = Int32Value(n)
		}
		return out
	case Float32:
		out := make([]Value, len(v.Float32s))
		for i, f := range v.Float32s {
			out[i] = Float32Value(f)
		}
		return out
	case Float64:
		out := make([]Value, len(v.Float64s))
		for i, f := range v.Float64s {
			out[i] = Float64Value(f)
		}
		return out
	default:
		return []Value{v}
	}
}
