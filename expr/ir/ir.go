// Package ir defines the postfix stack-machine instruction set the
// expression parser compiles to and the evaluator executes, spec §4.4.
//
// Grounded on _examples/original_source/src/expression/expr_stack.h and
// expr_token.h for the instruction shape (a flat token stream with
// explicit loop-start/loop-end pairs for reductions, per spec §9's
// design note: "Represent this at the IR level as explicit loop tokens
// carrying their branch offset and cached-value stack depth, rather
// than as generators.").
package ir

// Op is one stack-machine instruction.
type Op int

const (
	OpPushConst    Op = iota // push a literal vector
	OpLoadSrc                // push current value of a source slot (with history offset baked in)
	OpLoadDst                // push current/history value of the destination slot
	OpLoadTimeSrc            // push the timetag of a source slot, as a scalar
	OpLoadTimeDst            // push the timetag of the destination slot
	OpLoadVar                // push an instance-scoped user variable
	OpLoadAlive              // push the `alive` pseudo-variable (0/1)
	OpLoadMuted              // push the `muted` pseudo-variable (0/1)
	OpLoadLocal              // push a reduce-local binding (the "a"/"b" of .reduce((a,b)->...))

	OpStoreVar   // pop TOS, store into an instance-scoped user variable
	OpStoreDst   // pop TOS, assign to the destination (sets UPDATE)
	OpStoreAlive // pop TOS, assign to `alive` (0 triggers release)
	OpStoreMuted // pop TOS, assign to `muted`

	OpUnary  // apply a unary operator to TOS
	OpBinary // apply a binary operator to the top two stack values
	OpIndex  // pop index, pop vector, push the (possibly interpolated/wrapped) element
	OpSlice  // pop a vector, push the constant [a:b] sub-vector
	OpCall   // call a named builtin function with a fixed argument count

	OpJumpIfFalse // pop TOS; if falsy, add Offset to the program counter
	OpJump        // unconditionally add Offset to the program counter

	OpReduce // a named reduction (mean/sum/max/...) over Dim; evaluator gathers and calls FuncName directly, no generator needed

	OpLoopStart // begin iterating Dim; binds two reduce-locals for the body
	OpLoopEnd   // end of one reduction body; loop back to matching OpLoopStart while more elements remain
)

// UnaryOp and BinaryOp enumerate the operators spec §4.4 lists:
// arithmetic, comparison, bitwise, logical.
type UnaryOp int

const (
	Neg UnaryOp = iota
	Not
	BitNot
)

type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	BitAnd
	BitOr
	BitXor
	Shl
	Shr
	Lt
	Lte
	Gt
	Gte
	Eq
	Neq
	LogAnd
	LogOr
)

// Dim names the dimension a reduction (spec §4.4's history/vector/
// instance/signal reduce) iterates over.
type Dim int

const (
	DimHistory Dim = iota
	DimVector
	DimInstance
	DimSignal
)

// Token is one instruction in the compiled program.
type Token struct {
	Op Op

	// OpPushConst / OpSlice
	Const []float64
	Lo, Hi int

	// OpLoadSrc
	SrcIndex   int     // which source slot (0-based), or -1 for `x$$` (most recently updated)
	HistOffset float64 // history offset baked in at compile time, spec §4.4: "{-k}"

	// OpLoadDst
	DstHistOffset float64

	// OpLoadVar / OpStoreVar / OpLoadLocal
	VarName string

	// OpUnary
	Unary UnaryOp

	// OpBinary
	Binary BinaryOp

	// OpCall / OpReduce
	FuncName string
	Argc     int

	// CallSite is a stable, compile-time-assigned index identifying this
	// particular call/reduce expression within its program, used to key
	// the per-instance state a stateful builtin (schmitt(), ema()) needs
	// across evaluations, spec §4.4.
	CallSite int

	// OpJump*
	Offset int

	// OpReduce / OpLoopStart / OpLoopEnd
	Dim          Dim
	SourceForDim int // which source slot DimHistory/DimVector/DimInstance apply to; -1 when the receiver is not a source `x`, in which case nothing is gathered
	Window       int // DimHistory: number of past samples (0 = .history(n) not given, use full buffer); unused for the other dimensions

	// OpLoopStart / OpLoopEnd
	AccumVar   string // the accumulator binding name, e.g. "a" in .reduce((a,b)->...)
	ElementVar string // the per-element binding name, e.g. "b"
	StackDepth int    // OpLoopStart: this token's own index in the token stream; the evaluator does not read it
}

// Program is a compiled expression: the postfix token stream plus the
// metadata recorded during compilation (spec §4.4: "final stack stored
// on the Map").
type Program struct {
	Tokens []Token

	// Source is the original, pre-compile expression text, so @expr
	// round-trips byte-for-byte even though the compiled form differs
	// (SPEC_FULL.md §3.1).
	Source string

	NumSources int

	// MaxHistory[i] is the maximum (most negative) history offset
	// referenced for source i; used by routemap to validate a source
	// slot's buffer depth covers what the expression needs (spec §4.6).
	MaxHistory []int

	// DstMaxHistory is the same, for y{-k} reads/writes.
	DstMaxHistory int

	// InstanceReducing is true when no dimension of the expression
	// depends on the live instance identity, i.e. the evaluator sets
	// EVAL_DONE and the caller runs the program once rather than once
	// per active instance (spec §4.4).
	InstanceReducing bool

	// VectorLength is the inferred, pinned output vector length.
	VectorLength int
}
