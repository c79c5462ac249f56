// Package expr is the public front door to the compiled-expression
// pipeline of spec §4.4: lex -> parse -> compile -> evaluate. routemap
// calls Compile once when a map is staged and keeps the resulting
// Program on the slot; Evaluator.Run (expr/eval) is called once per
// tick thereafter.
package expr

import (
	"github.com/libmapper/libmapper-sub001/expr/eval"
	"github.com/libmapper/libmapper-sub001/expr/ir"
	"github.com/libmapper/libmapper-sub001/expr/parse"
)

// Program is the compiled form of one map's expression.
type Program = ir.Program

// Context is the live state an evaluation reads from and writes to.
type Context = eval.Context

// InstanceValue is one instance snapshot handed to a DimInstance reduction.
type InstanceValue = eval.InstanceValue

// Result is the UPDATE/MUTED_UPDATE/RELEASE_.../EVAL_DONE bitmask.
type Result = eval.Result

const (
	ResultNone                = eval.ResultNone
	ResultUpdate              = eval.ResultUpdate
	ResultMutedUpdate         = eval.ResultMutedUpdate
	ResultReleaseBeforeUpdate = eval.ResultReleaseBeforeUpdate
	ResultReleaseAfterUpdate  = eval.ResultReleaseAfterUpdate
	ResultEvalDone            = eval.ResultEvalDone
)

// Compile parses and lowers an expression string for a map with
// numSources source slots (spec §4.4, §4.6).
func Compile(source string, numSources int) (*Program, error) {
	return parse.Compile(source, numSources)
}

// NewEvaluator returns a stateless evaluator reusable across ticks.
func NewEvaluator() eval.Evaluator { return eval.Evaluator{} }
