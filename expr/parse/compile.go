package parse

import (
	"fmt"

	"github.com/libmapper/libmapper-sub001/expr/ir"
)

// MaxHistSize bounds how far back {-k} may reach, mirroring the original
// implementation's fixed-size history ring (original_source/src/expression/expr_value.h).
const MaxHistSize = 64

// CompileError reports the arity/type/semantic failures spec §4.4 lists
// that can only be detected after the AST is built: unknown function
// and reduction names, argument-count mismatches, assignment to input,
// nested reduction of the same dimension, and out-of-range history
// depth. A reduce-local name used outside its reduction is not
// rejected: like any other unknown identifier it compiles as an
// instance-scoped user variable.
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string { return "expr: " + e.Message }

// reducerArity lists the named vector/history/instance/signal
// reductions and how many arguments each call-form step takes besides
// the implicit gathered vector.
var reducerArity = map[string]int{
	"mean": 0, "sum": 0, "max": 0, "min": 0, "median": 0, "center": 0,
	"length": 0, "norm": 0, "sort": 0, "angle": 0, "all": 0, "any": 0,
	"count": 0, "newest": 0, "concat": -1, "index": 1, "dot": 1,
}

var pureFuncs = map[string]int{
	"sin": 1, "cos": 1, "tan": 1, "asin": 1, "acos": 1, "atan": 1, "atan2": 2,
	"exp": 1, "log": 1, "log10": 1, "log2": 1, "sqrt": 1, "pow": 2, "abs": 1,
	"floor": 1, "ceil": 1, "round": 1, "trunc": 1, "sign": 1,
	"min": 2, "max": 2, "midiToHz": 1, "hzToMidi": 1,

	// schmitt(x, low, high) and ema(x, alpha) are stateful: each carries
	// memory across evaluations keyed by its CallSite, spec §4.4.
	"schmitt": 3, "ema": 2,
}

type scope struct {
	dim   ir.Dim
	names map[string]bool
}

type compiler struct {
	numSources    int
	maxHistory    []int
	dstMaxHistory int
	tokens        []ir.Token
	activeDims    []scope

	// callSite is the next call-site index to hand out; every OpCall/
	// OpReduce token gets a unique one so stateful builtins (schmitt,
	// ema) can key their per-instance memory.
	callSite int
}

// nextCallSite hands out a fresh, stable call-site index.
func (c *compiler) nextCallSite() int {
	n := c.callSite
	c.callSite++
	return n
}

// Compile parses src and lowers it to an ir.Program for a map with
// numSources source slots (1 for a one-to-one map, >1 for a convergent
// map reducing across sources, spec §4.4/§4.6).
func Compile(src string, numSources int) (*ir.Program, error) {
	a, err := Parse(src)
	if err != nil {
		return nil, err
	}
	c := &compiler{numSources: numSources, maxHistory: make([]int, numSources)}

	if a.target.base == "y" {
		// destination assignment: value, then a store
		if err := c.emit(a.value); err != nil {
			return nil, err
		}
		h := 0
		if a.target.hasHist {
			h = int(-a.target.hist)
		}
		c.noteDstHist(h)
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpStoreDst, Offset: -h})
	} else if a.target.base == "alive" {
		if err := c.emit(a.value); err != nil {
			return nil, err
		}
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpStoreAlive})
	} else if a.target.base == "muted" {
		if err := c.emit(a.value); err != nil {
			return nil, err
		}
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpStoreMuted})
	} else {
		if err := c.emit(a.value); err != nil {
			return nil, err
		}
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpStoreVar, VarName: a.target.base})
	}

	instanceReducing := true
	for _, tok := range c.tokens {
		if (tok.Op == ir.OpReduce || tok.Op == ir.OpLoopStart) && tok.Dim == ir.DimInstance {
			instanceReducing = false
			break
		}
	}

	return &ir.Program{
		Tokens:           c.tokens,
		Source:           src,
		NumSources:       numSources,
		MaxHistory:       c.maxHistory,
		DstMaxHistory:    c.dstMaxHistory,
		InstanceReducing: instanceReducing,
		// VectorLength is left for routemap to fill in from the source/
		// destination signal declarations once the map is staged (spec
		// §4.6); the compiler does not attempt static vector-length
		// inference beyond the literal slice bounds used by OpSlice.
	}, nil
}

func (c *compiler) noteDstHist(depth int) {
	if depth > c.dstMaxHistory {
		c.dstMaxHistory = depth
	}
}

func (c *compiler) noteSrcHist(idx, depth int) {
	if idx < 0 || idx >= len(c.maxHistory) {
		return
	}
	if depth > c.maxHistory[idx] {
		c.maxHistory[idx] = depth
	}
}

// emit lowers n, appending tokens to c.tokens in postfix order. It
// first tries constant folding: a subtree that foldConst can reduce to
// a number (literals combined by the operators it handles, with no
// reference to a source, the destination, a variable, a reduce-local or
// a function call) collapses to a single OpPushConst.
func (c *compiler) emit(n node) error {
	if v, ok := foldConst(n); ok {
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpPushConst, Const: []float64{v}})
		return nil
	}

	switch t := n.(type) {
	case *numberNode:
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpPushConst, Const: []float64{t.value}})
		return nil

	case *varNode:
		return c.emitVar(t)

	case *callNode:
		return c.emitCall(t)

	case *unaryNode:
		if err := c.emit(t.x); err != nil {
			return err
		}
		op, err := unaryOp(t.op)
		if err != nil {
			return err
		}
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpUnary, Unary: op})
		return nil

	case *binaryNode:
		if err := c.emit(t.l); err != nil {
			return err
		}
		if err := c.emit(t.r); err != nil {
			return err
		}
		if t.op == "/" || t.op == "%" {
			if v, ok := foldConst(t.r); ok && v == 0 {
				return &CompileError{Message: fmt.Sprintf("division by literal zero in %q", t.op)}
			}
		}
		op, err := binaryOp(t.op)
		if err != nil {
			return err
		}
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpBinary, Binary: op})
		return nil

	case *ternaryNode:
		if err := c.emit(t.cond); err != nil {
			return err
		}
		jf := len(c.tokens)
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpJumpIfFalse})
		if err := c.emit(t.then); err != nil {
			return err
		}
		jmp := len(c.tokens)
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpJump})
		c.tokens[jf].Offset = len(c.tokens) - jf
		if err := c.emit(t.els); err != nil {
			return err
		}
		c.tokens[jmp].Offset = len(c.tokens) - jmp
		return nil

	case *chainNode:
		return c.emitChain(t)

	default:
		return &CompileError{Message: fmt.Sprintf("unsupported node %T", n)}
	}
}

func (c *compiler) emitVar(v *varNode) error {
	if v.isTime {
		if v.base == "x" {
			c.tokens = append(c.tokens, ir.Token{Op: ir.OpLoadTimeSrc, SrcIndex: normalizedSrc(v)})
			return nil
		}
		if v.base == "y" {
			c.tokens = append(c.tokens, ir.Token{Op: ir.OpLoadTimeDst})
			return nil
		}
		return &CompileError{Message: fmt.Sprintf("timetag form t_%s is only valid on x or y", v.base)}
	}

	for _, sc := range c.activeDims {
		if sc.names[v.base] {
			c.tokens = append(c.tokens, ir.Token{Op: ir.OpLoadLocal, VarName: v.base})
			return c.applyIndexing(v)
		}
	}

	switch v.base {
	case "x":
		idx := normalizedSrc(v)
		hist := 0
		if v.hasHist {
			hist = int(-v.hist)
			if hist > MaxHistSize {
				return &CompileError{Message: fmt.Sprintf("history depth %d exceeds MAX_HIST_SIZE", hist)}
			}
		}
		c.noteSrcHist(idx, hist)
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpLoadSrc, SrcIndex: idx, HistOffset: v.hist})
	case "y":
		hist := 0
		if v.hasHist {
			hist = int(-v.hist)
			if hist > MaxHistSize {
				return &CompileError{Message: fmt.Sprintf("history depth %d exceeds MAX_HIST_SIZE", hist)}
			}
		}
		c.noteDstHist(hist)
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpLoadDst, DstHistOffset: v.hist})
	case "alive":
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpLoadAlive})
	case "muted":
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpLoadMuted})
	default:
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpLoadVar, VarName: v.base})
	}
	return c.applyIndexing(v)
}

func (c *compiler) applyIndexing(v *varNode) error {
	if v.hasIndex {
		if err := c.emit(v.index); err != nil {
			return err
		}
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpIndex})
	} else if v.hasRange {
		lo, okLo := foldConst(v.rangeLo)
		hi, okHi := foldConst(v.rangeHi)
		if !okLo || !okHi {
			return &CompileError{Message: "vector range bounds must be constant"}
		}
		c.tokens = append(c.tokens, ir.Token{Op: ir.OpSlice, Lo: int(lo), Hi: int(hi)})
	}
	return nil
}

func normalizedSrc(v *varNode) int {
	if v.srcIndex == -2 {
		return 0
	}
	return v.srcIndex
}

func (c *compiler) emitCall(call *callNode) error {
	argc, known := pureFuncs[call.name]
	if !known {
		return &CompileError{Message: fmt.Sprintf("unknown function %q", call.name)}
	}
	if argc >= 0 && len(call.args) != argc {
		return &CompileError{Message: fmt.Sprintf("%s expects %d argument(s), got %d", call.name, argc, len(call.args))}
	}
	for _, a := range call.args {
		if err := c.emit(a); err != nil {
			return err
		}
	}
	c.tokens = append(c.tokens, ir.Token{Op: ir.OpCall, FuncName: call.name, Argc: len(call.args), CallSite: c.nextCallSite()})
	return nil
}

// emitChain lowers a dotted reduction chain: an optional dimension
// selector step (vector / history(n) / instance / signal) followed by
// either a named reduction or a generic .reduce((a,b)->expr).
func (c *compiler) emitChain(ch *chainNode) error {
	dim := ir.DimVector
	window := 0
	steps := ch.steps
	if len(steps) == 0 {
		return &CompileError{Message: "empty method chain"}
	}
	first := steps[0]
	rest := steps
	switch first.name {
	case "vector":
		dim = ir.DimVector
		rest = steps[1:]
	case "instance":
		dim = ir.DimInstance
		rest = steps[1:]
	case "signal":
		dim = ir.DimSignal
		rest = steps[1:]
	case "history":
		dim = ir.DimHistory
		if len(first.args) == 1 {
			v, ok := foldConst(first.args[0])
			if !ok {
				return &CompileError{Message: "history() window must be constant"}
			}
			window = int(v)
			if window > MaxHistSize {
				return &CompileError{Message: fmt.Sprintf("history window %d exceeds MAX_HIST_SIZE", window)}
			}
		}
		rest = steps[1:]
	}
	if len(rest) != 1 {
		return &CompileError{Message: fmt.Sprintf("malformed reduction chain on %s", dimName(dim))}
	}
	red := rest[0]

	srcIdx := -1
	if v, ok := ch.recv.(*varNode); ok && v.base == "x" {
		srcIdx = normalizedSrc(v)
	}

	if red.name == "reduce" {
		return c.emitGenericReduce(dim, srcIdx, window, red)
	}

	if _, ok := reducerArity[red.name]; !ok {
		return &CompileError{Message: fmt.Sprintf("unknown reduction %q", red.name)}
	}
	for _, dup := range c.activeDims {
		if dup.dim == dim {
			return &CompileError{Message: fmt.Sprintf("nested reduction over the same dimension %q", dimName(dim))}
		}
	}
	argc := 0
	for _, a := range red.args {
		if err := c.emit(a); err != nil {
			return err
		}
		argc++
	}
	if dim == ir.DimHistory {
		c.noteSrcHist(srcIdx, window)
	}
	c.tokens = append(c.tokens, ir.Token{
		Op: ir.OpReduce, Dim: dim, SourceForDim: srcIdx, Window: window,
		FuncName: red.name, Argc: argc, CallSite: c.nextCallSite(),
	})
	return nil
}

func (c *compiler) emitGenericReduce(dim ir.Dim, srcIdx, window int, red step) error {
	if red.lambda == nil {
		return &CompileError{Message: "reduce() requires a (a,b)->expr lambda"}
	}
	for _, dup := range c.activeDims {
		if dup.dim == dim {
			return &CompileError{Message: fmt.Sprintf("nested reduction over the same dimension %q", dimName(dim))}
		}
	}
	if dim == ir.DimHistory {
		c.noteSrcHist(srcIdx, window)
	}

	start := len(c.tokens)
	c.tokens = append(c.tokens, ir.Token{
		Op: ir.OpLoopStart, Dim: dim, SourceForDim: srcIdx, Window: window,
		AccumVar: red.lambda.accum, ElementVar: red.lambda.elem,
		StackDepth: len(c.tokens),
	})

	c.activeDims = append(c.activeDims, scope{dim: dim, names: map[string]bool{
		red.lambda.accum: true, red.lambda.elem: true,
	}})
	err := c.emit(red.lambda.body)
	c.activeDims = c.activeDims[:len(c.activeDims)-1]
	if err != nil {
		return err
	}

	c.tokens = append(c.tokens, ir.Token{Op: ir.OpLoopEnd, Offset: start - len(c.tokens)})
	return nil
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

func unaryOp(op string) (ir.UnaryOp, error) {
	switch op {
	case "-":
		return ir.Neg, nil
	case "!":
		return ir.Not, nil
	case "~":
		return ir.BitNot, nil
	}
	return 0, &CompileError{Message: fmt.Sprintf("unknown unary operator %q", op)}
}

func binaryOp(op string) (ir.BinaryOp, error) {
	switch op {
	case "+":
		return ir.Add, nil
	case "-":
		return ir.Sub, nil
	case "*":
		return ir.Mul, nil
	case "/":
		return ir.Div, nil
	case "%":
		return ir.Mod, nil
	case "&":
		return ir.BitAnd, nil
	case "|":
		return ir.BitOr, nil
	case "^":
		return ir.BitXor, nil
	case "<<":
		return ir.Shl, nil
	case ">>":
		return ir.Shr, nil
	case "<":
		return ir.Lt, nil
	case "<=":
		return ir.Lte, nil
	case ">":
		return ir.Gt, nil
	case ">=":
		return ir.Gte, nil
	case "==":
		return ir.Eq, nil
	case "!=":
		return ir.Neq, nil
	case "&&":
		return ir.LogAnd, nil
	case "||":
		return ir.LogOr, nil
	}
	return 0, &CompileError{Message: fmt.Sprintf("unknown binary operator %q", op)}
}

// foldConst speculatively evaluates n if it is built entirely from
// numeric literals, unary - and !, binary + - * / (a division by a
// constant zero is not folded), and ternaries whose condition folds —
// no source, destination, variable, pseudo-var, or reduce-local
// reference. Function calls are never folded. This is the
// constant-folding pass spec §4.4
// calls for; anything touching live state is left for the evaluator.
func foldConst(n node) (float64, bool) {
	switch t := n.(type) {
	case *numberNode:
		return t.value, true
	case *unaryNode:
		v, ok := foldConst(t.x)
		if !ok {
			return 0, false
		}
		switch t.op {
		case "-":
			return -v, true
		case "!":
			if v == 0 {
				return 1, true
			}
			return 0, true
		}
		return 0, false
	case *binaryNode:
		l, ok := foldConst(t.l)
		if !ok {
			return 0, false
		}
		r, ok := foldConst(t.r)
		if !ok {
			return 0, false
		}
		return foldBinary(t.op, l, r)
	case *ternaryNode:
		cond, ok := foldConst(t.cond)
		if !ok {
			return 0, false
		}
		if cond != 0 {
			return foldConst(t.then)
		}
		return foldConst(t.els)
	}
	return 0, false
}

func foldBinary(op string, l, r float64) (float64, bool) {
	switch op {
	case "+":
		return l + r, true
	case "-":
		return l - r, true
	case "*":
		return l * r, true
	case "/":
		if r == 0 {
			return 0, false
		}
		return l / r, true
	}
	return 0, false
}
