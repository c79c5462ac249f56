// Package eval executes a compiled expr/ir.Program against a live
// Context: the stack machine that is the last stage of the spec §4.4
// pipeline ("evaluator, run once per live instance unless the compiled
// form is instance-reducing").
//
// Grounded on _examples/original_source/src/expression/expr_eval.h for
// the result bitmask (UPDATE / MUTED_UPDATE / RELEASE_BEFORE_UPDATE /
// RELEASE_AFTER_UPDATE / EVAL_DONE) and the alive/muted pseudo-variable
// semantics; the stack machine itself follows expr_stack.h's flat
// postfix-token loop re-expressed over Go's []float64 vectors.
package eval

import (
	"fmt"

	"github.com/libmapper/libmapper-sub001/expr/ir"
)

// Result is the bitmask spec §4.4 returns from one evaluation.
type Result uint8

const (
	ResultNone                Result = 0
	ResultUpdate              Result = 1 << 0
	ResultMutedUpdate         Result = 1 << 1
	ResultReleaseBeforeUpdate Result = 1 << 2
	ResultReleaseAfterUpdate  Result = 1 << 3
	ResultEvalDone            Result = 1 << 4
)

func (r Result) Has(bit Result) bool { return r&bit != 0 }

// InstanceValue is a snapshot of one instance of the reducing signal,
// used for the DimInstance reduction (x.instance.count(), etc.).
type InstanceValue struct {
	Vector []float64
	Time   float64
	Alive  bool
}

// Context is the live state an Evaluator reads from and writes to: one
// source/destination pairing's buffers, instance pool, and per-instance
// variable scope. routemap implements this over a map's staged slots.
type Context interface {
	NumSources() int

	// ReadSource returns the vector at the given history offset (0 or
	// negative) for source slot src, or ok=false if nothing has been
	// written that far back yet (spec §4.1).
	ReadSource(src int, histOffset float64) (vec []float64, time float64, ok bool)

	// ReadSourceWindow returns up to n most recent samples for src,
	// oldest first, for the gather-then-call reductions over DimHistory.
	ReadSourceWindow(src int, n int) (vecs [][]float64, ok bool)

	SourceTime(src int) float64

	// LatestSource is the source slot index that was most recently
	// updated, i.e. what `x$$` refers to.
	LatestSource() int

	ReadDst(histOffset float64) (vec []float64, time float64, ok bool)
	WriteDst(histOffset float64, vec []float64)
	DstTime() float64

	Var(name string) []float64
	SetVar(name string, vec []float64)

	Alive() bool
	SetAlive(v bool)
	Muted() bool
	SetMuted(v bool)

	// State and SetState hold the per-call-site memory a stateful
	// builtin (schmitt(), ema()) carries across evaluations, keyed by
	// the call's ir.Token.CallSite. ok is false the first time a given
	// key is read (no prior state).
	State(key int) (v []float64, ok bool)
	SetState(key int, v []float64)

	// Instances returns the live instances of source slot src's signal,
	// for DimInstance reductions (x.instance.count(), x.instance.sum()).
	Instances(src int) []InstanceValue

	// AllSources returns the current value of every source slot, for
	// DimSignal reductions on a convergent map.
	AllSources() [][]float64
}

// EvalError is a runtime failure: an unknown function, an arity
// mismatch the compiler could not catch because the inputs are only
// known live, or a reduce() over an empty dimension.
type EvalError struct{ Message string }

func (e *EvalError) Error() string { return "expr: " + e.Message }

type frame struct {
	accumVar, elemVar string
	accum, elem       []float64
}

type machine struct {
	ctx    Context
	locals []frame
	stack  [][]float64
}

func (m *machine) push(v []float64) { m.stack = append(m.stack, v) }
func (m *machine) pop() []float64 {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

// Evaluator runs one compiled Program against one Context. It holds no
// state between runs; callers reuse a single Evaluator value across
// instances and ticks.
type Evaluator struct{}

// Run executes prog.Tokens once, returning the UPDATE/MUTED_UPDATE/...
// result mask. Reads past the available history (ReadSource/ReadDst
// returning ok=false) abort the evaluation without side effect, per
// spec §4.1, and Run returns ResultNone, nil in that case.
func (Evaluator) Run(prog *ir.Program, ctx Context) (Result, error) {
	m := &machine{ctx: ctx}
	result, _, err := m.exec(prog.Tokens)
	if err != nil {
		return ResultNone, err
	}
	if result == halted {
		return ResultNone, nil
	}
	mask := result
	if prog.InstanceReducing {
		mask |= ResultEvalDone
	}
	return mask, nil
}

// sentinel appended to the Result return of exec to signal a clean,
// side-effect-free abort (a history read past what's available), which
// is not an error.
const halted Result = 1 << 7

// exec runs a flat token slice (the top-level program, or one loop
// body) against m, returning the accumulated store-side-effect result
// bits and, if control fell off the end with a value still on the
// stack, that value (used by OpLoopStart for each reduce() iteration).
func (m *machine) exec(toks []ir.Token) (Result, []float64, error) {
	result := ResultNone

	for pc := 0; pc < len(toks); pc++ {
		tok := toks[pc]
		switch tok.Op {
		case ir.OpPushConst:
			m.push(append([]float64(nil), tok.Const...))

		case ir.OpLoadSrc:
			src := tok.SrcIndex
			if src < 0 {
				src = m.ctx.LatestSource()
			}
			v, _, ok := m.ctx.ReadSource(src, tok.HistOffset)
			if !ok {
				return halted, nil, nil
			}
			m.push(v)

		case ir.OpLoadDst:
			v, _, ok := m.ctx.ReadDst(tok.DstHistOffset)
			if !ok {
				return halted, nil, nil
			}
			m.push(v)

		case ir.OpLoadTimeSrc:
			src := tok.SrcIndex
			if src < 0 {
				src = m.ctx.LatestSource()
			}
			m.push([]float64{m.ctx.SourceTime(src)})

		case ir.OpLoadTimeDst:
			m.push([]float64{m.ctx.DstTime()})

		case ir.OpLoadVar:
			v := m.ctx.Var(tok.VarName)
			if v == nil {
				v = []float64{0}
			}
			m.push(v)

		case ir.OpLoadAlive:
			m.push(boolVec(m.ctx.Alive()))

		case ir.OpLoadMuted:
			m.push(boolVec(m.ctx.Muted()))

		case ir.OpLoadLocal:
			f := m.locals[len(m.locals)-1]
			if tok.VarName == f.accumVar {
				m.push(f.accum)
			} else {
				m.push(f.elem)
			}

		case ir.OpStoreVar:
			m.ctx.SetVar(tok.VarName, m.pop())

		case ir.OpStoreDst:
			m.ctx.WriteDst(float64(tok.Offset), m.pop())
			result |= ResultUpdate

		case ir.OpStoreAlive:
			v := m.pop()
			alive := len(v) > 0 && v[0] != 0
			wasAlive := m.ctx.Alive()
			m.ctx.SetAlive(alive)
			if wasAlive && !alive {
				result |= ResultReleaseAfterUpdate
			}

		case ir.OpStoreMuted:
			v := m.pop()
			m.ctx.SetMuted(len(v) > 0 && v[0] != 0)
			result |= ResultMutedUpdate

		case ir.OpUnary:
			m.push(applyUnary(tok.Unary, m.pop()))

		case ir.OpBinary:
			r := m.pop()
			l := m.pop()
			out, err := applyBinary(tok.Binary, l, r)
			if err == errDivByZero {
				return halted, nil, nil
			}
			if err != nil {
				return ResultNone, nil, err
			}
			m.push(out)

		case ir.OpIndex:
			idx := m.pop()
			vec := m.pop()
			if len(idx) == 0 || len(vec) == 0 {
				return ResultNone, nil, &EvalError{Message: "index of an empty vector"}
			}
			m.push([]float64{readElement(vec, idx[0])})

		case ir.OpSlice:
			vec := m.pop()
			lo, hi := tok.Lo, tok.Hi
			if lo < 0 || hi > len(vec) || lo > hi {
				return ResultNone, nil, &EvalError{Message: fmt.Sprintf("vector slice [%d:%d] out of range for length %d", lo, hi, len(vec))}
			}
			m.push(append([]float64(nil), vec[lo:hi]...))

		case ir.OpCall:
			args := make([][]float64, tok.Argc)
			for i := tok.Argc - 1; i >= 0; i-- {
				args[i] = m.pop()
			}
			out, err := callBuiltin(m.ctx, tok.CallSite, tok.FuncName, args)
			if err != nil {
				return ResultNone, nil, err
			}
			m.push(out)

		case ir.OpReduce:
			out, err := m.reduceNamed(tok)
			if err != nil {
				return ResultNone, nil, err
			}
			m.push(out)

		case ir.OpJumpIfFalse:
			v := m.pop()
			if len(v) == 0 || v[0] == 0 {
				pc += tok.Offset - 1
			}

		case ir.OpJump:
			pc += tok.Offset - 1

		case ir.OpLoopStart:
			end := matchingLoopEnd(toks, pc)
			body := toks[pc+1 : end]
			out, err := m.runReduce(tok, body)
			if err != nil {
				return ResultNone, nil, err
			}
			m.push(out)
			pc = end

		case ir.OpLoopEnd:
			// unreachable: OpLoopStart always jumps straight past its
			// matching OpLoopEnd.

		default:
			return ResultNone, nil, &EvalError{Message: fmt.Sprintf("unimplemented opcode %d", tok.Op)}
		}
	}

	var tail []float64
	if len(m.stack) > 0 {
		tail = m.stack[len(m.stack)-1]
	}
	return result, tail, nil
}

// matchingLoopEnd finds the OpLoopEnd paired with the OpLoopStart at
// start, accounting for nested reduce() loops over a different
// dimension (same-dimension nesting is rejected at compile time).
func matchingLoopEnd(toks []ir.Token, start int) int {
	depth := 0
	for i := start + 1; i < len(toks); i++ {
		switch toks[i].Op {
		case ir.OpLoopStart:
			depth++
		case ir.OpLoopEnd:
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return len(toks)
}

// reduceNamed gathers tok.Dim's elements into one flat vector and calls
// the named reduction with it, followed by the tok.Argc extra arguments
// the compiler pushed before the OpReduce token (index's position, dot's
// other vector). max and min go to their single-vector forms vmax/vmin.
func (m *machine) reduceNamed(tok ir.Token) ([]float64, error) {
	extra := make([][]float64, tok.Argc)
	for i := tok.Argc - 1; i >= 0; i-- {
		extra[i] = m.pop()
	}
	elems, err := gatherElements(m.ctx, tok.Dim, tok.SourceForDim, tok.Window)
	if err != nil {
		return nil, err
	}
	name := tok.FuncName
	switch name {
	case "max":
		name = "vmax"
	case "min":
		name = "vmin"
	}
	return callBuiltin(m.ctx, tok.CallSite, name, append([][]float64{flatten(elems)}, extra...))
}

// runReduce folds gatherElements(ctx, tok.Dim, ...) through body, one
// element at a time, binding AccumVar/ElementVar for each step — the
// generic reduce() operator, spec §9's reason for genuine loop tokens
// rather than a gather-then-call builtin.
func (m *machine) runReduce(tok ir.Token, body []ir.Token) ([]float64, error) {
	elems, err := gatherElements(m.ctx, tok.Dim, tok.SourceForDim, tok.Window)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, &EvalError{Message: fmt.Sprintf("reduce() over an empty %s dimension", dimName(tok.Dim))}
	}
	accum := elems[0]
	for i := 1; i < len(elems); i++ {
		m.locals = append(m.locals, frame{accumVar: tok.AccumVar, elemVar: tok.ElementVar, accum: accum, elem: elems[i]})
		_, v, err := m.exec(body)
		m.locals = m.locals[:len(m.locals)-1]
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, &EvalError{Message: "reduce() body produced no value"}
		}
		accum = v
	}
	return accum, nil
}

func flatten(vecs [][]float64) []float64 {
	var out []float64
	for _, v := range vecs {
		out = append(out, v...)
	}
	return out
}

func boolVec(b bool) []float64 {
	if b {
		return []float64{1}
	}
	return []float64{0}
}

func dimName(d ir.Dim) string {
	switch d {
	case ir.DimHistory:
		return "history"
	case ir.DimVector:
		return "vector"
	case ir.DimInstance:
		return "instance"
	case ir.DimSignal:
		return "signal"
	default:
		return "?"
	}
}

// gatherElements materializes the sequence a reduction folds over: past
// samples for DimHistory, vector elements for DimVector, other live
// instances' current values for DimInstance, or each source slot's
// current value for DimSignal.
func gatherElements(ctx Context, dim ir.Dim, src, window int) ([][]float64, error) {
	switch dim {
	case ir.DimHistory:
		vecs, ok := ctx.ReadSourceWindow(src, window)
		if !ok {
			return nil, nil
		}
		return vecs, nil
	case ir.DimVector:
		vec, _, ok := ctx.ReadSource(src, 0)
		if !ok {
			return nil, nil
		}
		out := make([][]float64, len(vec))
		for i, e := range vec {
			out[i] = []float64{e}
		}
		return out, nil
	case ir.DimInstance:
		insts := ctx.Instances(src)
		out := make([][]float64, 0, len(insts))
		for _, inst := range insts {
			if inst.Alive {
				out = append(out, inst.Vector)
			}
		}
		return out, nil
	case ir.DimSignal:
		return ctx.AllSources(), nil
	}
	return nil, &EvalError{Message: "unknown reduction dimension"}
}

func readElement(vec []float64, index float64) float64 {
	n := len(vec)
	if n == 0 {
		return 0
	}
	lo := int(index)
	if float64(lo) > index {
		lo--
	}
	frac := index - float64(lo)
	loIdx := ((lo % n) + n) % n
	if frac == 0 {
		return vec[loIdx]
	}
	hiIdx := (loIdx + 1) % n
	return vec[loIdx] + (vec[hiIdx]-vec[loIdx])*frac
}
