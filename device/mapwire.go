package device

import (
	"strings"

	"github.com/libmapper/libmapper-sub001/proptable"
	"github.com/libmapper/libmapper-sub001/routemap"
	"github.com/libmapper/libmapper-sub001/wire"
)

// buildMapMessage and parseMapMessage implement spec §6's /map grammar
// ("/map <src1> [src2...] -> <dst> @id ... @mode ... @expr ...") over
// wire's typed arguments: a source count, the source and destination
// paths as plain strings, then the map's properties as a flattened
// proptable.Table.Args() sequence. The literal "->" the spec shows
// between sources and destination is a textual convenience for
// documenting the grammar; a typed wire message has no need for a
// separator token, so it carries the source count instead.
func buildMapMessage(id uint64, mode routemap.Mode, sources []*routemap.Slot, dest *routemap.Slot, expression string) wire.Message {
	args := make([]wire.Arg, 0, len(sources)+2)
	args = append(args, wire.Int32(int32(len(sources))))
	for _, s := range sources {
		args = append(args, wire.String(slotPath(s)))
	}
	args = append(args, wire.String(slotPath(dest)))

	props := proptable.NewTable()
	props.Define(wire.PropID, proptable.Int64Value(int64(id)), proptable.ModifiableByLocal)
	props.Define(wire.PropMode, proptable.StringValue(modeName(mode)), proptable.ModifiableByLocal)
	props.Define(wire.PropExpr, proptable.StringValue(expression), proptable.ModifiableByLocal)
	props.Define(wire.PropBound, proptable.StringValue(boundName(dest.Bound)), proptable.ModifiableByLocal)
	if len(dest.Min) > 0 {
		props.Define("dstMin", proptable.Float64VectorValue(dest.Min), proptable.ModifiableByLocal)
	}
	if len(dest.Max) > 0 {
		props.Define("dstMax", proptable.Float64VectorValue(dest.Max), proptable.ModifiableByLocal)
	}
	if len(sources) == 1 {
		if len(sources[0].Min) > 0 {
			props.Define("srcMin", proptable.Float64VectorValue(sources[0].Min), proptable.ModifiableByLocal)
		}
		if len(sources[0].Max) > 0 {
			props.Define("srcMax", proptable.Float64VectorValue(sources[0].Max), proptable.ModifiableByLocal)
		}
	}
	causes := make([]bool, len(sources))
	for i, s := range sources {
		causes[i] = s.CausesUpdate
	}
	props.Define("srcCausesUpdate", proptable.Value{Type: proptable.Bool, Length: len(causes), Bools: causes}, proptable.ModifiableByLocal)

	return wire.Message{Address: wire.AddrMap, Args: append(args, props.Args()...)}
}

// parseMapMessage is buildMapMessage's inverse, the receiving half of
// spec §2's "Control flow (map creation)".
func parseMapMessage(msg wire.Message) (id uint64, mode routemap.Mode, sources []*routemap.Slot, dest *routemap.Slot, expression string, ok bool) {
	args := msg.Args
	if len(args) < 1 || args[0].Tag != wire.TagInt32 {
		return
	}
	n := int(args[0].I32)
	args = args[1:]
	if n < 1 || len(args) < n+1 {
		return
	}
	sources = make([]*routemap.Slot, n)
	for i := 0; i < n; i++ {
		if args[i].Tag != wire.TagString {
			return
		}
		sources[i] = slotFromPath(args[i].Str)
	}
	if args[n].Tag != wire.TagString {
		return
	}
	dest = slotFromPath(args[n].Str)

	props := proptable.ParseArgs(args[n+1:])
	idVal, hasID := props.Get(wire.PropID)
	if !hasID || len(idVal.Int64s) == 0 {
		return
	}
	id = uint64(idVal.Int64s[0])

	mode = routemap.ModeExpression
	if modeVal, has := props.Get(wire.PropMode); has {
		mode = parseModeName(modeVal.Str)
	}
	if exprVal, has := props.Get(wire.PropExpr); has {
		expression = exprVal.Str
	}
	if boundVal, has := props.Get(wire.PropBound); has {
		dest.Bound = parseBoundName(boundVal.Str)
	}
	if v, has := props.Get("dstMin"); has {
		dest.Min = v.Float64s
	}
	if v, has := props.Get("dstMax"); has {
		dest.Max = v.Float64s
	}
	if n == 1 {
		if v, has := props.Get("srcMin"); has {
			sources[0].Min = v.Float64s
		}
		if v, has := props.Get("srcMax"); has {
			sources[0].Max = v.Float64s
		}
	}
	if v, has := props.Get("srcCausesUpdate"); has {
		for i := range sources {
			if i < len(v.Bools) {
				sources[i].CausesUpdate = v.Bools[i]
			}
		}
	}

	ok = true
	return
}

func slotPath(s *routemap.Slot) string { return s.Device + "/" + s.SignalName }

func slotFromPath(path string) *routemap.Slot {
	device, name, _ := strings.Cut(path, "/")
	return &routemap.Slot{Device: device, SignalName: name, CausesUpdate: true}
}

func modeName(m routemap.Mode) string {
	switch m {
	case routemap.ModeRaw:
		return "raw"
	case routemap.ModeLinear:
		return "linear"
	default:
		return "expression"
	}
}

func parseModeName(s string) routemap.Mode {
	switch s {
	case "raw":
		return routemap.ModeRaw
	case "linear":
		return routemap.ModeLinear
	default:
		return routemap.ModeExpression
	}
}

func boundName(b routemap.BoundaryAction) string {
	switch b {
	case routemap.BoundMute:
		return "mute"
	case routemap.BoundClamp:
		return "clamp"
	case routemap.BoundFold:
		return "fold"
	case routemap.BoundWrap:
		return "wrap"
	default:
		return "none"
	}
}

func parseBoundName(s string) routemap.BoundaryAction {
	switch s {
	case "mute":
		return routemap.BoundMute
	case "clamp":
		return routemap.BoundClamp
	case "fold":
		return routemap.BoundFold
	case "wrap":
		return routemap.BoundWrap
	default:
		return routemap.BoundNone
	}
}
