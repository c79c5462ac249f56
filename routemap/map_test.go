package routemap

import (
	"io"
	"testing"

	"github.com/libmapper/libmapper-sub001/expr"
	"github.com/libmapper/libmapper-sub001/instance/idmap"
	"github.com/libmapper/libmapper-sub001/internal/herring/log"
	"github.com/libmapper/libmapper-sub001/signal"
	"github.com/libmapper/libmapper-sub001/signal/buffer"
)

func newTestSignal(t *testing.T, name string) *signal.Signal {
	t.Helper()
	lg := log.NewWriterLogger("test", io.Discard)
	return signal.New(name, "dev", 1, 1, signal.DirIn, buffer.Float64, 1, 1, 4, idmap.NewTable(), lg, nil)
}

func evalOnce(t *testing.T, m *Map, src *signal.Signal, dst *signal.Signal, in float64) (expr.Result, []float64) {
	t.Helper()
	srcInst, err := src.SetValue(1, []float64{in}, 0)
	if err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	dstInst, _ := dst.Find(1)
	if dstInst == nil {
		dstInst = &signal.Instance{Buffer: buffer.New(buffer.Float64, 1, 4)}
	}
	ctx := NewInstanceContext([]*signal.Instance{srcInst}, []*signal.Signal{src}, dstInst, 0, 0)
	result, out, err := m.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return result, out
}

func TestMap_RawModePassesValueThrough(t *testing.T) {
	src := newTestSignal(t, "x")
	dst := newTestSignal(t, "y")
	srcSlot := &Slot{Device: "dev", SignalName: "x", Local: src}
	dstSlot := &Slot{Device: "dev", SignalName: "y", Local: dst}

	m, err := New(1, []*Slot{srcSlot}, dstSlot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Mode = ModeRaw
	if err := m.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := m.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	result, out := evalOnce(t, m, src, dst, 42)
	if !result.Has(expr.ResultUpdate) {
		t.Fatal("expected ResultUpdate for raw passthrough")
	}
	if len(out) != 1 || out[0] != 42 {
		t.Errorf("out = %v, want [42]", out)
	}
}

func TestMap_LinearModeRescales(t *testing.T) {
	src := newTestSignal(t, "x")
	dst := newTestSignal(t, "y")
	srcSlot := &Slot{Device: "dev", SignalName: "x", Local: src, Min: []float64{0}, Max: []float64{100}}
	dstSlot := &Slot{Device: "dev", SignalName: "y", Local: dst, Min: []float64{0}, Max: []float64{1}}

	m, err := New(2, []*Slot{srcSlot}, dstSlot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Mode = ModeLinear
	if err := m.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := m.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	_, out := evalOnce(t, m, src, dst, 50)
	if len(out) != 1 || out[0] < 0.49 || out[0] > 0.51 {
		t.Errorf("linear-scaled out = %v, want ~[0.5]", out)
	}
}

func TestMap_ExpressionModeArithmetic(t *testing.T) {
	src := newTestSignal(t, "x")
	dst := newTestSignal(t, "y")
	srcSlot := &Slot{Device: "dev", SignalName: "x", Local: src}
	dstSlot := &Slot{Device: "dev", SignalName: "y", Local: dst}

	m, err := New(3, []*Slot{srcSlot}, dstSlot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Mode = ModeExpression
	m.Expression = "y = x * 2 + 1"
	if err := m.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := m.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	_, out := evalOnce(t, m, src, dst, 10)
	if len(out) != 1 || out[0] != 21 {
		t.Errorf("out = %v, want [21]", out)
	}
}

func TestMap_BoundaryMuteSuppressesUpdate(t *testing.T) {
	src := newTestSignal(t, "x")
	dst := newTestSignal(t, "y")
	srcSlot := &Slot{Device: "dev", SignalName: "x", Local: src}
	dstSlot := &Slot{Device: "dev", SignalName: "y", Local: dst, Min: []float64{0}, Max: []float64{10}, Bound: BoundMute}

	m, err := New(4, []*Slot{srcSlot}, dstSlot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Mode = ModeRaw
	if err := m.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := m.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	result, _ := evalOnce(t, m, src, dst, 999)
	if result.Has(expr.ResultUpdate) {
		t.Error("out-of-range value with BoundMute should suppress ResultUpdate")
	}
}

func TestMap_ShouldEvaluateGatesOnFreshSamples(t *testing.T) {
	slotA := &Slot{Device: "dev", SignalName: "a", CausesUpdate: true}
	slotB := &Slot{Device: "dev", SignalName: "b", CausesUpdate: true}
	dstSlot := &Slot{Device: "dev", SignalName: "y"}

	m, err := New(5, []*Slot{slotA, slotB}, dstSlot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Mode = ModeExpression
	m.Expression = "y = x + x$2"
	if err := m.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	m.NoteSourceUpdate(0, 1)
	if m.ShouldEvaluate(0) {
		t.Error("should not evaluate until every CausesUpdate source has a fresh sample")
	}
	m.NoteSourceUpdate(1, 1)
	if !m.ShouldEvaluate(1) {
		t.Error("should evaluate once every CausesUpdate source has a fresh sample")
	}
	m.MarkEvaluated(1)
	if m.ShouldEvaluate(1) {
		t.Error("should not re-evaluate without a new sample after MarkEvaluated")
	}
}
