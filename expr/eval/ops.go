package eval

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/libmapper/libmapper-sub001/expr/ir"
)

func applyUnary(op ir.UnaryOp, v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		switch op {
		case ir.Neg:
			out[i] = -x
		case ir.Not:
			if x == 0 {
				out[i] = 1
			} else {
				out[i] = 0
			}
		case ir.BitNot:
			out[i] = float64(^int64(x))
		}
	}
	return out
}

// applyBinary broadcasts a length-1 operand against a longer one,
// spec §4.4's vector-length inference rule ("a scalar combined with a
// vector broadcasts"); operands of differing lengths >1 are an error.
func applyBinary(op ir.BinaryOp, l, r []float64) ([]float64, error) {
	n := len(l)
	if len(r) > n {
		n = len(r)
	}
	if len(l) != 1 && len(l) != n {
		return nil, &EvalError{Message: fmt.Sprintf("vector length mismatch: %d vs %d", len(l), len(r))}
	}
	if len(r) != 1 && len(r) != n {
		return nil, &EvalError{Message: fmt.Sprintf("vector length mismatch: %d vs %d", len(l), len(r))}
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		a := l[i%len(l)]
		b := r[i%len(r)]
		v, err := applyScalarBinary(op, a, b)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func applyScalarBinary(op ir.BinaryOp, a, b float64) (float64, error) {
	switch op {
	case ir.Add:
		return a + b, nil
	case ir.Sub:
		return a - b, nil
	case ir.Mul:
		return a * b, nil
	case ir.Div:
		if b == 0 {
			// integer-divide-by-zero: spec says the assignment this
			// feeds is skipped rather than propagating Inf/NaN; signal
			// that up via EvalError so Run can treat it like a halted
			// read (caller checks for this specific sentinel type).
			return 0, errDivByZero
		}
		return a / b, nil
	case ir.Mod:
		if b == 0 {
			return 0, errDivByZero
		}
		return math.Mod(a, b), nil
	case ir.BitAnd:
		return float64(int64(a) & int64(b)), nil
	case ir.BitOr:
		return float64(int64(a) | int64(b)), nil
	case ir.BitXor:
		return float64(int64(a) ^ int64(b)), nil
	case ir.Shl:
		return float64(int64(a) << uint(int64(b))), nil
	case ir.Shr:
		return float64(int64(a) >> uint(int64(b))), nil
	case ir.Lt:
		return boolF(a < b), nil
	case ir.Lte:
		return boolF(a <= b), nil
	case ir.Gt:
		return boolF(a > b), nil
	case ir.Gte:
		return boolF(a >= b), nil
	case ir.Eq:
		return boolF(a == b), nil
	case ir.Neq:
		return boolF(a != b), nil
	case ir.LogAnd:
		return boolF(a != 0 && b != 0), nil
	case ir.LogOr:
		return boolF(a != 0 || b != 0), nil
	}
	return 0, &EvalError{Message: "unknown binary operator"}
}

// errDivByZero is not surfaced to the caller as a hard error; exec
// treats it the same as a halted history read (abort, no store), which
// is the behavior spec §4.4 describes for division by a runtime zero.
var errDivByZero = &EvalError{Message: "division by zero"}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func callBuiltin(ctx Context, callSite int, name string, args [][]float64) ([]float64, error) {
	switch name {
	case "schmitt":
		return schmittTrigger(ctx, callSite, args)
	case "ema":
		return exponentialMovingAverage(ctx, callSite, args)
	case "sin", "cos", "tan", "asin", "acos", "atan", "exp", "log", "log10", "log2", "sqrt", "abs", "floor", "ceil", "round", "trunc", "sign":
		return mapUnary(name, args[0])
	case "atan2", "pow":
		return mapBinaryFn(name, args[0], args[1])
	case "min":
		return mapBinaryFn("min", args[0], args[1])
	case "max":
		return mapBinaryFn("max", args[0], args[1])
	case "midiToHz":
		return mapUnary("midiToHz", args[0])
	case "hzToMidi":
		return mapUnary("hzToMidi", args[0])
	case "uniform":
		lo, hi := 0.0, 1.0
		if len(args) == 2 {
			lo, hi = args[0][0], args[1][0]
		}
		return []float64{lo + rand.Float64()*(hi-lo)}, nil

	case "mean":
		return []float64{vecMean(args[0])}, nil
	case "sum":
		return []float64{vecSum(args[0])}, nil
	case "vmax":
		return []float64{vecMax(args[0])}, nil
	case "vmin":
		return []float64{vecMin(args[0])}, nil
	case "median":
		return []float64{vecMedian(args[0])}, nil
	case "center":
		lo, hi := vecMin(args[0]), vecMax(args[0])
		return []float64{(lo + hi) / 2}, nil
	case "length", "count":
		return []float64{float64(len(args[0]))}, nil
	case "norm":
		return []float64{vecNorm(args[0])}, nil
	case "sort":
		out := append([]float64(nil), args[0]...)
		sort.Float64s(out)
		return out, nil
	case "newest":
		if len(args[0]) == 0 {
			return nil, &EvalError{Message: "newest() of an empty dimension"}
		}
		return []float64{args[0][len(args[0])-1]}, nil
	case "all":
		for _, v := range args[0] {
			if v == 0 {
				return []float64{0}, nil
			}
		}
		return []float64{1}, nil
	case "any":
		for _, v := range args[0] {
			if v != 0 {
				return []float64{1}, nil
			}
		}
		return []float64{0}, nil
	case "index":
		return []float64{readElement(args[0], args[1][0])}, nil
	case "dot":
		return []float64{vecDot(args[0], args[1])}, nil
	case "angle":
		if len(args[0]) < 2 {
			return nil, &EvalError{Message: "angle() requires a vector of at least 2 elements"}
		}
		return []float64{math.Atan2(args[0][1], args[0][0])}, nil
	case "concat":
		var out []float64
		for _, a := range args {
			out = append(out, a...)
		}
		return out, nil
	}
	return nil, &EvalError{Message: fmt.Sprintf("unknown function %q", name)}
}

func mapUnary(name string, v []float64) ([]float64, error) {
	fn, ok := unaryFuncs[name]
	if !ok {
		return nil, &EvalError{Message: fmt.Sprintf("unknown function %q", name)}
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = fn(x)
	}
	return out, nil
}

func mapBinaryFn(name string, l, r []float64) ([]float64, error) {
	fn, ok := binaryFuncs[name]
	if !ok {
		return nil, &EvalError{Message: fmt.Sprintf("unknown function %q", name)}
	}
	n := len(l)
	if len(r) > n {
		n = len(r)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = fn(l[i%len(l)], r[i%len(r)])
	}
	return out, nil
}

var unaryFuncs = map[string]func(float64) float64{
	"sin": math.Sin, "cos": math.Cos, "tan": math.Tan,
	"asin": math.Asin, "acos": math.Acos, "atan": math.Atan,
	"exp": math.Exp, "log": math.Log, "log10": math.Log10, "log2": math.Log2,
	"sqrt": math.Sqrt, "abs": math.Abs,
	"floor": math.Floor, "ceil": math.Ceil, "round": math.Round, "trunc": math.Trunc,
	"sign":     func(x float64) float64 { return boolF(x > 0) - boolF(x < 0) },
	"midiToHz": func(m float64) float64 { return 440 * math.Pow(2, (m-69)/12) },
	"hzToMidi": func(hz float64) float64 { return 69 + 12*math.Log2(hz/440) },
}

var binaryFuncs = map[string]func(float64, float64) float64{
	"atan2": math.Atan2,
	"pow":   math.Pow,
	"min":   math.Min,
	"max":   math.Max,
}

func vecSum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

func vecMean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return vecSum(v) / float64(len(v))
}

func vecMax(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

func vecMin(v []float64) float64 {
	m := math.Inf(1)
	for _, x := range v {
		if x < m {
			m = x
		}
	}
	return m
}

func vecMedian(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

func vecNorm(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func vecDot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	s := 0.0
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

// schmittTrigger implements a typed Schmitt trigger, spec §4.4:
// schmitt(x, low, high) holds its output at 0 until x rises above high,
// then holds it at 1 until x falls below low. Per-element state (the
// previous output, one bit per vector element) persists across calls
// at this call site via ctx.State/SetState.
func schmittTrigger(ctx Context, callSite int, args [][]float64) ([]float64, error) {
	if len(args) != 3 {
		return nil, &EvalError{Message: "schmitt() requires (x, low, high)"}
	}
	x, low, high := args[0], args[1], args[2]
	prev, ok := ctx.State(callSite)
	out := make([]float64, len(x))
	for i, v := range x {
		on := 0.0
		if ok && i < len(prev) {
			on = prev[i]
		}
		l := low[i%len(low)]
		h := high[i%len(high)]
		switch {
		case on != 0 && v < l:
			on = 0
		case on == 0 && v > h:
			on = 1
		}
		out[i] = on
	}
	ctx.SetState(callSite, out)
	return out, nil
}

// exponentialMovingAverage implements ema(x, alpha), spec §4.4:
// out = alpha*x + (1-alpha)*prev, seeded with x itself on the first
// call at this call site. alpha is clamped to [0, 1].
func exponentialMovingAverage(ctx Context, callSite int, args [][]float64) ([]float64, error) {
	if len(args) != 2 {
		return nil, &EvalError{Message: "ema() requires (x, alpha)"}
	}
	x, alphaArg := args[0], args[1]
	prev, ok := ctx.State(callSite)
	out := make([]float64, len(x))
	for i, v := range x {
		alpha := alphaArg[i%len(alphaArg)]
		if alpha < 0 {
			alpha = 0
		} else if alpha > 1 {
			alpha = 1
		}
		if !ok || i >= len(prev) {
			out[i] = v
			continue
		}
		out[i] = alpha*v + (1-alpha)*prev[i]
	}
	ctx.SetState(callSite, out)
	return out, nil
}
