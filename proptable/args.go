package proptable

import "github.com/libmapper/libmapper-sub001/wire"

// Args flattens a Table to the wire argument sequence described in
// spec §4.3: "a flat sequence of @key, value... argument groups". Each
// record emits "@key" followed by one argument per vector element (or,
// for List, one argument per list element — nested lists are flattened
// one level, since the protocol has no need for list-of-list in this
// spec's property set).
func (t *Table) Args() []wire.Arg {
	var out []wire.Arg
	for _, k := range t.Keys() {
		v, _ := t.Get(k)
		out = append(out, wire.String(wire.AtKey(k)))
		out = append(out, valueArgs(v)...)
	}
	return out
}

// ParseArgs reconstructs a Table from the flat "@key, value..." argument
// sequence Args produces — the receiving side of spec §4.3's property
// wire format, used to decode /map, /mapModify, and subscribe messages.
// Non-"@key" leading args (e.g. a message's source/destination path
// strings) are skipped; callers that need those consume them separately
// before handing the rest of the argument slice to ParseArgs.
func ParseArgs(args []wire.Arg) *Table {
	t := NewTable()
	i := 0
	for i < len(args) {
		a := args[i]
		if !isAtKey(a) {
			i++
			continue
		}
		key := a.Str[1:]
		i++
		start := i
		for i < len(args) && !isAtKey(args[i]) {
			i++
		}
		if i > start {
			_, _ = t.Set(key, valueFromArgs(args[start:i]), true)
		}
	}
	return t
}

func isAtKey(a wire.Arg) bool {
	return a.Tag == wire.TagString && len(a.Str) > 0 && a.Str[0] == '@'
}

// valueFromArgs infers a Value's type from the first argument's typetag
// and gathers every argument in the run as its elements — the wire form
// does not distinguish a vector value from a flattened List, so this
// reconstructs the former, which is what every property this protocol
// actually sends (@min, @max, @scope) needs.
func valueFromArgs(args []wire.Arg) Value {
	switch args[0].Tag {
	case wire.TagTrue, wire.TagFalse:
		out := make([]bool, len(args))
		for i, a := range args {
			out[i] = a.Tag == wire.TagTrue
		}
		return Value{Type: Bool, Length: len(out), Bools: out}
	case wire.TagInt32:
		out := make([]int32, len(args))
		for i, a := range args {
			out[i] = a.I32
		}
		return Value{Type: Int32, Length: len(out), Int32s: out}
	case wire.TagInt64:
		out := make([]int64, len(args))
		for i, a := range args {
			out[i] = a.I64
		}
		return Value{Type: Int64, Length: len(out), Int64s: out}
	case wire.TagFloat32:
		out := make([]float32, len(args))
		for i, a := range args {
			out[i] = a.F32
		}
		return Value{Type: Float32, Length: len(out), Float32s: out}
	case wire.TagFloat64:
		out := make([]float64, len(args))
		for i, a := range args {
			out[i] = a.F64
		}
		return Value{Type: Float64, Length: len(out), Float64s: out}
	case wire.TagString:
		return StringValue(args[0].Str)
	case wire.TagTime:
		return Value{Type: Time, Length: 1, TimeNTP: uint64(args[0].Time)}
	default:
		return Value{}
	}
}

func valueArgs(v Value) []wire.Arg {
	switch v.Type {
	case Bool:
		out := make([]wire.Arg, len(v.Bools))
		for i, b := range v.Bools {
			out[i] = wire.Bool(b)
		}
		return out
	case Int32:
		out := make([]wire.Arg, len(v.Int32s))
		for i, n := range v.Int32s {
			out[i] = wire.Int32(n)
		}
		return out
	case Int64:
		out := make([]wire.Arg, len(v.Int64s))
		for i, n := range v.Int64s {
			out[i] = wire.Int64(n)
		}
		return out
	case Float32:
		out := make([]wire.Arg, len(v.Float32s))
		for i, f := range v.Float32s {
			out[i] = wire.Float32(f)
		}
		return out
	case Float64:
		out := make([]wire.Arg, len(v.Float64s))
		for i, f := range v.Float64s {
			out[i] = wire.Float64(f)
		}
		return out
	case Char, String:
		return []wire.Arg{wire.String(v.Str)}
	case Time:
		return []wire.Arg{wire.Time(wire.Timetag(v.TimeNTP))}
	case Pointer:
		return []wire.Arg{wire.Int64(int64(v.Ptr))}
	case DeviceRef, SignalRef, MapRef:
		return []wire.Arg{wire.Int64(int64(v.Ref))}
	case List:
		var out []wire.Arg
		for _, el := range v.List {
			out = append(out, valueArgs(el)...)
		}
		return out
	default:
		return []wire.Arg{wire.Nil()}
	}
}
