package parse

import (
	"fmt"

	"github.com/libmapper/libmapper-sub001/expr/lex"
)

// ParseError is returned for the malformed-input cases the parser itself
// detects: syntax errors, assignment to a non-assignable target, and so
// on. Failures found later, in compile.go (unknown names, arity
// mismatches), are reported as CompileError instead.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string { return fmt.Sprintf("expr: %s (at %d)", e.Message, e.Pos) }

type parser struct {
	toks []lex.Token
	pos  int
}

// Parse parses one top-level statement: an assignment to the
// destination, to a user variable, or to `alive`/`muted`.
func Parse(src string) (*assignNode, error) {
	toks, err := lex.Lex(src)
	if err != nil {
		return nil, &ParseError{Pos: 0, Message: err.Error()}
	}
	p := &parser{toks: toks}
	n, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind != lex.EOF {
		return nil, p.errorf("unexpected trailing input %q", p.cur().Text)
	}
	return n, nil
}

func (p *parser) cur() lex.Token  { return p.toks[p.pos] }
func (p *parser) advance() lex.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Pos: p.cur().Pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(k lex.Kind, what string) (lex.Token, error) {
	if p.cur().Kind != k {
		return lex.Token{}, p.errorf("expected %s, got %q", what, p.cur().Text)
	}
	return p.advance(), nil
}

func (p *parser) parseAssignment() (*assignNode, error) {
	target, err := p.parseLValue()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind != lex.Assign {
		return nil, p.errorf("expected '=' assignment to destination, user variable, alive, or muted")
	}
	p.advance()
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &assignNode{target: target, value: value}, nil
}

// parseLValue parses only the restricted set of assignable targets:
// y, y{-k}, a bare identifier (user variable), alive, muted. Assigning
// to a source (x) is rejected here per spec §4.4 ("assignment to
// input").
func (p *parser) parseLValue() (*varNode, error) {
	if p.cur().Kind != lex.Ident {
		return nil, p.errorf("expected an assignment target")
	}
	name := p.advance().Text
	if name == "x" {
		return nil, p.errorf("cannot assign to input %q", name)
	}
	v := &varNode{base: name, srcIndex: -2}
	if p.cur().Kind == lex.LBrace {
		if name != "y" {
			return nil, p.errorf("history write {-k} is only valid on the destination y")
		}
		p.advance()
		h, err := p.parseHistOffset()
		if err != nil {
			return nil, err
		}
		v.hasHist = true
		v.hist = h
		if _, err := p.expect(lex.RBrace, "}"); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (p *parser) parseHistOffset() (float64, error) {
	neg := false
	if p.cur().Kind == lex.Op && p.cur().Text == "-" {
		neg = true
		p.advance()
	}
	if p.cur().Kind != lex.Number {
		return 0, p.errorf("expected a numeric history offset")
	}
	n := p.advance().Num
	if neg {
		n = -n
	}
	if n > 0 {
		return 0, p.errorf("history offset must not be positive")
	}
	return n, nil
}

// --- expression grammar, precedence low to high ---

func (p *parser) parseExpr() (node, error) { return p.parseTernary() }

func (p *parser) parseTernary() (node, error) {
	if p.cur().Kind == lex.Ident && p.cur().Text == "if" {
		p.advance()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur().Kind != lex.Ident || p.cur().Text != "then" {
			return nil, p.errorf("expected 'then'")
		}
		p.advance()
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur().Kind != lex.Ident || p.cur().Text != "else" {
			return nil, p.errorf("expected 'else'")
		}
		p.advance()
		els, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &ternaryNode{cond: cond, then: then, els: els}, nil
	}

	cond, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind == lex.Question {
		p.advance()
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lex.Colon, ":"); err != nil {
			return nil, err
		}
		els, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &ternaryNode{cond: cond, then: then, els: els}, nil
	}
	return cond, nil
}

type binLevel struct {
	ops  []string
	next func(*parser) (node, error)
}

func (p *parser) parseLogicalOr() (node, error)  { return p.parseLeftAssoc([]string{"||"}, (*parser).parseLogicalAnd) }
func (p *parser) parseLogicalAnd() (node, error) { return p.parseLeftAssoc([]string{"&&"}, (*parser).parseBitOr) }
func (p *parser) parseBitOr() (node, error)      { return p.parseLeftAssoc([]string{"|"}, (*parser).parseBitXor) }
func (p *parser) parseBitXor() (node, error)     { return p.parseLeftAssoc([]string{"^"}, (*parser).parseBitAnd) }
func (p *parser) parseBitAnd() (node, error)     { return p.parseLeftAssoc([]string{"&"}, (*parser).parseEquality) }
func (p *parser) parseEquality() (node, error) {
	return p.parseLeftAssoc([]string{"==", "!="}, (*parser).parseRelational)
}
func (p *parser) parseRelational() (node, error) {
	return p.parseLeftAssoc([]string{"<", "<=", ">", ">="}, (*parser).parseShift)
}
func (p *parser) parseShift() (node, error) {
	return p.parseLeftAssoc([]string{"<<", ">>"}, (*parser).parseAdditive)
}
func (p *parser) parseAdditive() (node, error) {
	return p.parseLeftAssoc([]string{"+", "-"}, (*parser).parseMultiplicative)
}
func (p *parser) parseMultiplicative() (node, error) {
	return p.parseLeftAssoc([]string{"*", "/", "%"}, (*parser).parseUnary)
}

func (p *parser) parseLeftAssoc(ops []string, next func(*parser) (node, error)) (node, error) {
	left, err := next(p)
	if err != nil {
		return nil, err
	}
	for {
		if p.cur().Kind != lex.Op || !contains(ops, p.cur().Text) {
			return left, nil
		}
		op := p.advance().Text
		right, err := next(p)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, l: left, r: right}
	}
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func (p *parser) parseUnary() (node, error) {
	if p.cur().Kind == lex.Op && (p.cur().Text == "-" || p.cur().Text == "!" || p.cur().Text == "~") {
		op := p.advance().Text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, x: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch p.cur().Kind {
		case lex.LBrace:
			v, ok := n.(*varNode)
			if !ok {
				return nil, p.errorf("history index {-k} only applies to x or y")
			}
			p.advance()
			h, err := p.parseHistOffset()
			if err != nil {
				return nil, err
			}
			v.hasHist = true
			v.hist = h
			if _, err := p.expect(lex.RBrace, "}"); err != nil {
				return nil, err
			}
		case lex.LBracket:
			v, ok := n.(*varNode)
			if !ok {
				return nil, p.errorf("vector index [..] only applies to x or y")
			}
			p.advance()
			first, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.cur().Kind == lex.Colon {
				p.advance()
				second, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				v.hasRange = true
				v.rangeLo, v.rangeHi = first, second
			} else {
				v.hasIndex = true
				v.index = first
			}
			if _, err := p.expect(lex.RBracket, "]"); err != nil {
				return nil, err
			}
		case lex.Dot:
			p.advance()
			if p.cur().Kind != lex.Ident {
				return nil, p.errorf("expected a method name after '.'")
			}
			name := p.advance().Text
			st := step{name: name}
			if p.cur().Kind == lex.LParen {
				p.advance()
				if name == "reduce" {
					lam, err := p.parseLambda()
					if err != nil {
						return nil, err
					}
					st.lambda = lam
				} else if p.cur().Kind != lex.RParen {
					args, err := p.parseArgs()
					if err != nil {
						return nil, err
					}
					st.args = args
				}
				st.hasCall = true
				if _, err := p.expect(lex.RParen, ")"); err != nil {
					return nil, err
				}
			}
			chain, ok := n.(*chainNode)
			if !ok {
				chain = &chainNode{recv: n}
			}
			chain.steps = append(chain.steps, st)
			n = chain
		default:
			return n, nil
		}
	}
}

func (p *parser) parseLambda() (*lambdaNode, error) {
	if _, err := p.expect(lex.LParen, "("); err != nil {
		return nil, err
	}
	a, err := p.expect(lex.Ident, "accumulator name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lex.Comma, ","); err != nil {
		return nil, err
	}
	b, err := p.expect(lex.Ident, "element name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lex.RParen, ")"); err != nil {
		return nil, err
	}
	if _, err := p.expect(lex.Arrow, "->"); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &lambdaNode{accum: a.Text, elem: b.Text, body: body}, nil
}

func (p *parser) parseArgs() ([]node, error) {
	var args []node
	for {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.cur().Kind == lex.Comma {
			p.advance()
			continue
		}
		return args, nil
	}
}

func (p *parser) parsePrimary() (node, error) {
	switch p.cur().Kind {
	case lex.Number:
		return &numberNode{value: p.advance().Num}, nil
	case lex.LParen:
		p.advance()
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lex.RParen, ")"); err != nil {
			return nil, err
		}
		return n, nil
	case lex.Ident:
		name := p.advance().Text
		if p.cur().Kind == lex.LParen {
			p.advance()
			var args []node
			if p.cur().Kind != lex.RParen {
				a, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				args = a
			}
			if _, err := p.expect(lex.RParen, ")"); err != nil {
				return nil, err
			}
			return &callNode{name: name, args: args}, nil
		}
		return p.parseVarTail(name)
	default:
		return nil, p.errorf("unexpected token %q", p.cur().Text)
	}
}

func (p *parser) parseVarTail(name string) (node, error) {
	v := &varNode{base: name, srcIndex: -2}
	if len(name) > 2 && name[:2] == "t_" {
		v.isTime = true
		v.base = name[2:]
		return v, nil
	}
	if p.cur().Kind == lex.DollarDollar {
		p.advance()
		v.srcIndex = -1
		return v, nil
	}
	if p.cur().Kind == lex.Dollar {
		p.advance()
		if p.cur().Kind != lex.Number {
			return nil, p.errorf("expected a source index after '$'")
		}
		v.srcIndex = int(p.advance().Num)
		return v, nil
	}
	return v, nil
}
