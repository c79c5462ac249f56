// Package routemap implements spec §4.6's Map: the named "Map" is
// renamed here to avoid clashing with Go's builtin map type/keyword.
//
// Grounded on the teacher's Unity.processGMCast/processCompute S0-S3
// vote-driven state progression (pkg/mcast/protocol.go), adapted from
// "quorum votes promote consensus state" to "both-endpoints-acknowledge
// promotes activation state".
package routemap

import "github.com/libmapper/libmapper-sub001/signal"

// BoundaryAction is the per-slot policy applied to a destination vector
// element that falls outside [Min, Max], spec §3.
type BoundaryAction int

const (
	BoundNone BoundaryAction = iota
	BoundMute
	BoundClamp
	BoundFold
	BoundWrap
)

// Slot is one end of a Map, referencing exactly one Signal, spec §3.
type Slot struct {
	Device       string
	SignalName   string
	Min, Max     []float64
	CausesUpdate bool
	UseInstances bool
	NumInstances int
	Bound        BoundaryAction

	// Local is set when the referenced signal lives on this device;
	// nil for a slot whose signal lives on a remote peer (the map is
	// processed at the other endpoint in that case).
	Local *signal.Signal
}

func (s *Slot) path() string { return s.Device + "/" + s.SignalName }

// ApplyBoundary implements the boundary-action semantics of spec §3 and
// the linear-map testable property (§8 property 4): clamp limits to
// [min,max]; wrap returns (v-min) mod (max-min) + min; fold reflects a
// single bounce off the exceeded boundary; mute suppresses the whole
// update if any element is out of range.
func ApplyBoundary(vec, min, max []float64, action BoundaryAction) (out []float64, suppressed bool) {
	if action == BoundNone || len(min) == 0 || len(max) == 0 {
		return vec, false
	}
	out = make([]float64, len(vec))
	for i, v := range vec {
		lo := min[i%len(min)]
		hi := max[i%len(max)]
		if lo > hi {
			lo, hi = hi, lo
		}
		switch action {
		case BoundMute:
			if v < lo || v > hi {
				return nil, true
			}
			out[i] = v
		case BoundClamp:
			out[i] = clamp(v, lo, hi)
		case BoundFold:
			out[i] = fold(v, lo, hi)
		case BoundWrap:
			span := hi - lo
			if span <= 0 {
				out[i] = lo
				continue
			}
			w := v - lo
			w -= span * float64(int(w/span))
			if w < 0 {
				w += span
			}
			out[i] = w + lo
		default:
			out[i] = v
		}
	}
	return out, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func fold(v, lo, hi float64) float64 {
	if v < lo {
		return lo + (lo - v)
	}
	if v > hi {
		return hi - (v - hi)
	}
	return v
}
