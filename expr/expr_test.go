package expr_test

import (
	"testing"

	"github.com/libmapper/libmapper-sub001/expr"
)

// fakeContext is a minimal expr.Context fixture: one source, one
// destination, both single-sample buffers, no history/instance support.
type fakeContext struct {
	src, dst     []float64
	srcTime      float64
	dstTime      float64
	vars         map[string][]float64
	state        map[int][]float64
	alive, muted bool
}

func newFakeContext(src []float64) *fakeContext {
	return &fakeContext{src: src, vars: make(map[string][]float64), alive: true}
}

func (c *fakeContext) NumSources() int { return 1 }
func (c *fakeContext) ReadSource(src int, histOffset float64) ([]float64, float64, bool) {
	if src != 0 || histOffset != 0 {
		return nil, 0, false
	}
	return c.src, c.srcTime, true
}
func (c *fakeContext) ReadSourceWindow(src int, n int) ([][]float64, bool) { return nil, false }
func (c *fakeContext) SourceTime(src int) float64                          { return c.srcTime }
func (c *fakeContext) LatestSource() int                                   { return 0 }
func (c *fakeContext) ReadDst(histOffset float64) ([]float64, float64, bool) {
	if histOffset != 0 || c.dst == nil {
		return nil, 0, false
	}
	return c.dst, c.dstTime, true
}
func (c *fakeContext) WriteDst(histOffset float64, vec []float64) {
	c.dst = append([]float64(nil), vec...)
}
func (c *fakeContext) DstTime() float64                   { return c.dstTime }
func (c *fakeContext) Var(name string) []float64          { return c.vars[name] }
func (c *fakeContext) SetVar(name string, v []float64)    { c.vars[name] = v }
func (c *fakeContext) Alive() bool                        { return c.alive }
func (c *fakeContext) SetAlive(v bool)                    { c.alive = v }
func (c *fakeContext) Muted() bool                        { return c.muted }
func (c *fakeContext) SetMuted(v bool)                    { c.muted = v }
func (c *fakeContext) Instances(src int) []expr.InstanceValue { return nil }
func (c *fakeContext) AllSources() [][]float64             { return [][]float64{c.src} }
func (c *fakeContext) State(key int) ([]float64, bool) {
	v, ok := c.state[key]
	return v, ok
}
func (c *fakeContext) SetState(key int, v []float64) {
	if c.state == nil {
		c.state = make(map[int][]float64)
	}
	c.state[key] = v
}

func TestCompileAndEvaluate_SimpleArithmetic(t *testing.T) {
	prog, err := expr.Compile("y = x * 2 + 1", 1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ctx := newFakeContext([]float64{10})
	result, err := expr.NewEvaluator().Run(prog, ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Has(expr.ResultUpdate) {
		t.Fatal("expected ResultUpdate")
	}
	if ctx.dst[0] != 21 {
		t.Errorf("dst = %v, want [21]", ctx.dst)
	}
}

func TestCompileAndEvaluate_ConditionalAssignsAlive(t *testing.T) {
	prog, err := expr.Compile("alive = x > 0", 1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ctx := newFakeContext([]float64{-5})
	ctx.alive = true
	if _, err := expr.NewEvaluator().Run(prog, ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ctx.Alive() {
		t.Error("alive = (x > 0) with x=-5 should clear alive")
	}
}

func TestCompileAndEvaluate_VectorIndexing(t *testing.T) {
	prog, err := expr.Compile("y = x[0]", 1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ctx := newFakeContext([]float64{7, 8, 9})
	if _, err := expr.NewEvaluator().Run(prog, ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ctx.dst) != 1 || ctx.dst[0] != 7 {
		t.Errorf("dst = %v, want [7]", ctx.dst)
	}
}

func TestCompile_RejectsSyntaxError(t *testing.T) {
	if _, err := expr.Compile("y = = x", 1); err == nil {
		t.Error("Compile should reject malformed expression source")
	}
}

func TestCompileAndEvaluate_SchmittTriggerHoldsBetweenThresholds(t *testing.T) {
	prog, err := expr.Compile("y = schmitt(x, 0, 10)", 1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ctx := newFakeContext(nil)
	ev := expr.NewEvaluator()

	run := func(v float64) float64 {
		ctx.src = []float64{v}
		if _, err := ev.Run(prog, ctx); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return ctx.dst[0]
	}

	if v := run(5); v != 0 {
		t.Errorf("below high threshold: got %v, want 0", v)
	}
	if v := run(15); v != 1 {
		t.Errorf("above high threshold: got %v, want 1", v)
	}
	if v := run(5); v != 1 {
		t.Errorf("between thresholds after turning on: got %v, want 1 (held)", v)
	}
	if v := run(-1); v != 0 {
		t.Errorf("below low threshold: got %v, want 0", v)
	}
}

func TestCompileAndEvaluate_EmaSmoothsAcrossCalls(t *testing.T) {
	prog, err := expr.Compile("y = ema(x, 0.5)", 1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ctx := newFakeContext([]float64{10})
	ev := expr.NewEvaluator()

	if _, err := ev.Run(prog, ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ctx.dst[0] != 10 {
		t.Fatalf("first call should seed state with the raw input, got %v", ctx.dst[0])
	}

	ctx.src = []float64{20}
	if _, err := ev.Run(prog, ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ctx.dst[0] != 15 {
		t.Errorf("second call should blend with prior state: got %v, want 15", ctx.dst[0])
	}
}
