// Package proptable implements the typed, ordered property store
// attached to every device/signal/map/slot, spec §4.3.
//
// No library in the retrieved pack implements a generic ordered typed
// property bag, so the table itself is built on the standard library
// (a slice for order plus a map index for O(1) lookup); see
// DESIGN.md for the justification this module's rules require for any
// standard-library-only component.
package proptable

import "fmt"

// Type tags the kind of value a record holds, spec §4.3.
type Type int

const (
	Bool Type = iota
	Int32
	Int64
	Float32
	Float64
	Char
	String
	Time
	Pointer
	DeviceRef
	SignalRef
	MapRef
	List
)

func (t Type) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int32:
		return "i32"
	case Int64:
		return "i64"
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case Char:
		return "char"
	case String:
		return "string"
	case Time:
		return "time"
	case Pointer:
		return "pointer"
	case DeviceRef:
		return "device-ref"
	case SignalRef:
		return "signal-ref"
	case MapRef:
		return "map-ref"
	case List:
		return "list"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Value is a single typed, possibly-vector-valued property payload.
// Length is the vector length for scalar-typed values (1 for a plain
// scalar, >1 for e.g. a signal's @min/@max vector) and the element
// count for List.
type Value struct {
	Type   Type
	Length int

	Bools    []bool
	Int32s   []int32
	Int64s   []int64
	Float32s []float32
	Float64s []float64
	Chars    []byte
	Str      string
	TimeNTP  uint64
	Ptr      uintptr
	Ref      uint64 // device-ref / signal-ref / map-ref: the referenced object's 64-bit id
	List     []Value
}

func BoolValue(v bool) Value   { return Value{Type: Bool, Length: 1, Bools: []bool{v}} }
func Int32Value(v int32) Value { return Value{Type: Int32, Length: 1, Int32s: []int32{v}} }
func Int64Value(v int64) Value { return Value{Type: Int64, Length: 1, Int64s: []int64{v}} }
func Float32Value(v float32) Value {
	return Value{Type: Float32, Length: 1, Float32s: []float32{v}}
}
func Float64Value(v float64) Value {
	return Value{Type: Float64, Length: 1, Float64s: []float64{v}}
}
func StringValue(v string) Value { return Value{Type: String, Length: 1, Str: v} }
func DeviceRefValue(id uint64) Value { return Value{Type: DeviceRef, Length: 1, Ref: id} }
func SignalRefValue(id uint64) Value { return Value{Type: SignalRef, Length: 1, Ref: id} }
func MapRefValue(id uint64) Value    { return Value{Type: MapRef, Length: 1, Ref: id} }

func Int32VectorValue(v []int32) Value {
	return Value{Type: Int32, Length: len(v), Int32s: append([]int32(nil), v...)}
}
func Float32VectorValue(v []float32) Value {
	return Value{Type: Float32, Length: len(v), Float32s: append([]float32(nil), v...)}
}
func Float64VectorValue(v []float64) Value {
	return Value{Type: Float64, Length: len(v), Float64s: append([]float64(nil), v...)}
}

// Equal compares two Values for structural equality, used by the
// round-trip testable property (spec §8.10).
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type || v.Length != o.Length {
		return false
	}
	switch v.Type {
	case Bool:
		return slicesEqual(v.Bools, o.Bools)
	case Int32:
		return slicesEqual(v.Int32s, o.Int32s)
	case Int64:
		return slicesEqual(v.Int64s, o.Int64s)
	case Float32:
		return slicesEqual(v.Float32s, o.Float32s)
	case Float64:
		return slicesEqual(v.Float64s, o.Float64s)
	case Char:
		return string(v.Chars) == string(o.Chars)
	case String:
		return v.Str == o.Str
	case Time:
		return v.TimeNTP == o.TimeNTP
	case Pointer:
		return v.Ptr == o.Ptr
	case DeviceRef, SignalRef, MapRef:
		return v.Ref == o.Ref
	case List:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func slicesEqual[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
