package routemap

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/libmapper/libmapper-sub001/expr"
)

var (
	ErrIncompatibleVectorLength = errors.New("routemap: incompatible vector length without a bridging expression")
	ErrTooManySources           = errors.New("routemap: more than the maximum number of source slots")
	ErrRawNeedsOneSource        = errors.New("routemap: raw mode requires exactly one source")
	ErrLinearNeedsOneSource     = errors.New("routemap: linear mode requires exactly one source")
)

// MaxSources bounds the number of source slots a convergent map may
// have, spec §3 ("N ≤ a small fixed bound such as 8").
const MaxSources = 8

type Mode int

const (
	ModeRaw Mode = iota
	ModeLinear
	ModeExpression
)

type Location int

const (
	LocationSource Location = iota
	LocationDestination
)

// Status is the activation state progression of spec §3. Comparable
// with <, matching the ordering UNDEFINED < EXPIRED < STAGED < READY <
// ACTIVE the spec calls out.
type Status int

const (
	StatusUndefined Status = iota
	StatusExpired
	StatusStaged
	StatusReady
	StatusActive
)

// Map is a declarative route from one or more source slots to a
// destination slot with a transforming expression, spec §3/§4.6.
type Map struct {
	mu sync.Mutex

	ID         uint64
	Sources    []*Slot
	Dest       *Slot
	Location   Location
	Mode       Mode
	Expression string // ExpressionSource, spec §3.1: round-trips byte-for-byte
	Program    *expr.Program

	Scope   map[string]bool // device names whose releases this map honours
	Status  Status
	Muted   bool
	Version int

	lastEvalTime  float64
	sourceSamples map[int]float64 // last sample time seen per source index
}

// New builds a Map from already-alphabetized source slots (spec §3:
// "ordered list of source slots ... alphabetised by device/signal
// string") and a destination slot. The caller is responsible for
// sorting; Sorted below is provided for convenience.
func New(id uint64, sources []*Slot, dest *Slot) (*Map, error) {
	if len(sources) > MaxSources {
		return nil, ErrTooManySources
	}
	scope := make(map[string]bool, len(sources))
	for _, s := range sources {
		scope[s.Device] = true
	}
	return &Map{
		ID: id, Sources: sources, Dest: dest,
		Location: LocationDestination, Mode: ModeExpression,
		Scope: scope, Status: StatusStaged,
		sourceSamples: make(map[int]float64),
	}, nil
}

// Sorted returns slots ordered alphabetically by "device/signal",
// spec §3's map-source ordering rule.
func Sorted(slots []*Slot) []*Slot {
	out := append([]*Slot(nil), slots...)
	sort.Slice(out, func(i, j int) bool { return out[i].path() < out[j].path() })
	return out
}

// Compile builds m.Program from m.Mode: ModeRaw synthesizes "y = x",
// ModeLinear synthesizes the linear law of spec §8 property 4 baking
// in the source/destination Min/Max as literals, ModeExpression
// compiles m.Expression as written. Called at activation time or
// whenever @expression changes, spec §4.6.
func (m *Map) Compile() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.Mode {
	case ModeRaw:
		if len(m.Sources) != 1 {
			return ErrRawNeedsOneSource
		}
		if m.Dest.Local != nil && m.Sources[0].Local != nil &&
			m.Sources[0].Local.VectorLength != m.Dest.Local.VectorLength &&
			m.Expression == "" {
			return ErrIncompatibleVectorLength
		}
		prog, err := expr.Compile("y = x", 1)
		if err != nil {
			return err
		}
		m.Program = prog
		return nil

	case ModeLinear:
		if len(m.Sources) != 1 {
			return ErrLinearNeedsOneSource
		}
		src := m.Sources[0]
		if len(src.Min) == 0 || len(src.Max) == 0 || len(m.Dest.Min) == 0 || len(m.Dest.Max) == 0 {
			return fmt.Errorf("routemap: linear mode requires min/max on both ends")
		}
		a, b := src.Min[0], src.Max[0]
		c, d := m.Dest.Min[0], m.Dest.Max[0]
		if b == a {
			return fmt.Errorf("routemap: linear mode source range is degenerate (min == max)")
		}
		source := fmt.Sprintf("y = (x - %g) * (%g - %g) / (%g - %g) + %g", a, d, c, b, a, c)
		prog, err := expr.Compile(source, 1)
		if err != nil {
			return err
		}
		m.Program = prog
		return nil

	default: // ModeExpression
		prog, err := expr.Compile(m.Expression, len(m.Sources))
		if err != nil {
			return err
		}
		m.Program = prog
		return nil
	}
}

// Activate compiles the expression if needed and promotes status to
// ACTIVE, spec §4.6 ("upon both endpoints acknowledging via the
// protocol, status becomes ACTIVE"). The handshake itself (waiting for
// both endpoints) is network's responsibility; Activate is the final
// step once that handshake has completed.
func (m *Map) Activate() error {
	m.mu.Lock()
	if m.Program == nil {
		m.mu.Unlock()
		if err := m.Compile(); err != nil {
			return err
		}
		m.mu.Lock()
	}
	m.Status = StatusActive
	m.mu.Unlock()
	return nil
}

// InstanceReducing reports whether m's compiled program collapses every
// instance of its source(s) into a single output (a gather/reduce such
// as x.instance.mean()), vs. needing one evaluation per live instance
// id, spec §4.4: "if no dimension of the expression depends on the
// live instance... otherwise the caller loops over active instances".
func (m *Map) InstanceReducing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Program != nil && m.Program.InstanceReducing
}

// NoteSourceUpdate records that source slot idx received a fresh
// sample at time t, for the convergent-map gating in ShouldEvaluate.
func (m *Map) NoteSourceUpdate(idx int, t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sourceSamples[idx] = t
}

// ShouldEvaluate implements spec §4.6's convergent-map gating: evaluate
// once every CausesUpdate source has a sample newer than the last
// evaluation. The gate is skipped only for a single-source map whose
// program has InstanceReducing set; a history reduction does not skip
// it.
func (m *Map) ShouldEvaluate(causingIdx int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Program != nil && m.Program.InstanceReducing && len(m.Sources) == 1 {
		return true
	}
	for i, s := range m.Sources {
		if !s.CausesUpdate {
			continue
		}
		t, seen := m.sourceSamples[i]
		if !seen || t <= m.lastEvalTime {
			return false
		}
	}
	return true
}

// MarkEvaluated records the evaluation time so the next ShouldEvaluate
// call requires fresh samples again.
func (m *Map) MarkEvaluated(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastEvalTime = t
}

// Evaluate runs the compiled program against ctx and applies the
// destination boundary action to any written vector, spec §4.6's
// processing description. The evaluator's result mask is returned as is,
// except that a BoundMute suppression clears ResultUpdate (spec §9's
// open question: CLAMP is
// applied before the release check here, since the spec notes both
// orderings are observationally equivalent).
func (m *Map) Evaluate(ev expr.Context) (expr.Result, []float64, error) {
	m.mu.Lock()
	prog := m.Program
	dest := m.Dest
	m.mu.Unlock()
	if prog == nil {
		return expr.ResultNone, nil, errors.New("routemap: map has no compiled program")
	}

	result, err := expr.NewEvaluator().Run(prog, ev)
	if err != nil || !result.Has(expr.ResultUpdate) {
		return result, nil, err
	}
	out, _, ok := ev.ReadDst(0)
	if !ok {
		return result, nil, nil
	}
	bounded, suppressed := ApplyBoundary(out, dest.Min, dest.Max, dest.Bound)
	if suppressed {
		return result &^ expr.ResultUpdate, nil, nil
	}
	return result, bounded, nil
}
