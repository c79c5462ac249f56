// Package parse turns a token stream from expr/lex into a compiled
// expr/ir.Program: the shunting-yard / type-inference / constant-folding
// / history-annotation pipeline of spec §4.4.
//
// Grounded on _examples/original_source/src/expression/expr_parser.h
// (pipeline stages) and expr_variable.h (the x/x$N/x$$/y/y{-k}/t_x/t_y
// variable grammar), re-expressed as a Go recursive-descent + precedence
// climbing parser — a standard implementation strategy for the same
// operator-precedence problem Dijkstra's shunting-yard solves — that
// builds an AST, which compile.go then lowers to the postfix ir.Program.
package parse

// node is the AST produced by parsing, before compilation to postfix IR.
type node interface{ isNode() }

type numberNode struct{ value float64 }

func (numberNode) isNode() {}

// varNode covers x, x$N, x$$, y, and history/index suffixes on any of
// them: x{-k}, x[i], x[a:b]. base is "x" for a source reference, "y" for
// the destination, or any other identifier for a user-scoped variable,
// "alive"/"muted" for the pseudo-variables.
type varNode struct {
	base       string
	srcIndex   int // 0-based source index; -1 means $$ (most recently updated); -2 means unspecified ($ not used at all)
	hasHist    bool
	hist       float64
	hasIndex   bool
	index      node // single-index form
	hasRange   bool
	rangeLo    node
	rangeHi    node
	isTime     bool // true for t_x / t_y
}

func (*varNode) isNode() {}

// chainNode is a dotted method/reduction chain rooted at a varNode, e.g.
// x.vector.mean(), x.history(8).mean(), x.instance.count(),
// x.signal.newest(), or a direct vector-function call form applied via
// dot (x.mean()).
type chainNode struct {
	recv  node
	steps []step
}

func (*chainNode) isNode() {}

type step struct {
	name    string
	hasCall bool
	args    []node
	lambda  *lambdaNode // only set when name == "reduce"
}

type lambdaNode struct {
	accum, elem string
	body        node
}

type callNode struct {
	name string
	args []node
}

func (*callNode) isNode() {}

type unaryNode struct {
	op string
	x  node
}

func (*unaryNode) isNode() {}

type binaryNode struct {
	op   string
	l, r node
}

func (*binaryNode) isNode() {}

type ternaryNode struct {
	cond, then, els node
}

func (*ternaryNode) isNode() {}

// assignNode is only ever the top-level node: "y = expr", "y{-k} = expr",
// "varname = expr", "alive = expr", "muted = expr".
type assignNode struct {
	target *varNode
	value  node
}

func (*assignNode) isNode() {}
