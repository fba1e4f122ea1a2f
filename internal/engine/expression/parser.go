package expression

import (
	"fmt"
	"strconv"
)

type binding struct {
	name string
	slot int
	typ  DataType
}

// parser is a recursive descent parser that type checks nodes as it builds them.
type parser struct {
	toks []token
	i    int // index of the next token

	scope []binding
	slots int
}

func newParser(src string, params []Parameter) (*parser, error) {
	l := newLexer(src)
	var toks []token
	for {
		t := l.next()
		if l.err != nil {
			return nil, l.err
		}
		if t.kind == tokIllegal {
			return nil, &SyntaxError{Pos: t.pos, Found: t.String()}
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			break
		}
	}

	p := &parser{toks: toks}
	for _, param := range params {
		p.scope = append(p.scope, binding{name: param.Name, slot: p.slots, typ: param.Type})
		p.slots++
	}
	return p, nil
}

// parse parses a complete program.
func parse(src string, params []Parameter) (*blockNode, int, error) {
	p, err := newParser(src, params)
	if err != nil {
		return nil, 0, err
	}
	root, err := p.parseProgram()
	if err != nil {
		return nil, 0, err
	}
	if t := p.scan(); t.kind != tokEOF {
		return nil, 0, &SyntaxError{Pos: t.pos, Found: t.String(), Expected: "end of input"}
	}
	return root, p.slots, nil
}

// scan returns the next token.
func (p *parser) scan() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) unscan() {
	if p.i > 0 {
		p.i--
	}
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) is(t token, lit string) bool {
	return (t.kind == tokPunct || t.kind == tokIdent) && t.lit == lit
}

func (p *parser) expect(lit string) (token, error) {
	t := p.scan()
	if !p.is(t, lit) {
		return t, &SyntaxError{Pos: t.pos, Found: t.String(), Expected: "'" + lit + "'"}
	}
	return t, nil
}

func (p *parser) lookup(name string) (binding, bool) {
	for i := len(p.scope) - 1; i >= 0; i-- {
		if p.scope[i].name == name {
			return p.scope[i], true
		}
	}
	return binding{}, false
}

// parseProgram parses { "let" ident "=" expr ";" } expr. Let bindings are visible until
// the end of the program they appear in.
func (p *parser) parseProgram() (*blockNode, error) {
	mark := len(p.scope)
	defer func() { p.scope = p.scope[:mark] }()

	block := &blockNode{}
	for {
		t := p.scan()
		if !p.is(t, "let") {
			p.unscan()
			break
		}

		id := p.scan()
		if id.kind != tokIdent {
			return nil, &SyntaxError{Pos: id.pos, Found: id.String(), Expected: "identifier"}
		}
		if !IsAllowedVariableName(id.lit) {
			return nil, errorAt(id.pos, ErrInvalidVariableName, "%q", id.lit)
		}
		if _, ok := p.lookup(id.lit); ok {
			return nil, errorAt(id.pos, ErrRedefinedVariable, "%q", id.lit)
		}
		if _, err := p.expect("="); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(";"); err != nil {
			return nil, err
		}

		b := binding{name: id.lit, slot: p.slots, typ: value.dataType()}
		p.slots++
		p.scope = append(p.scope, b)
		block.lets = append(block.lets, assignment{name: b.name, slot: b.slot, value: value})
	}

	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	block.expr = expr
	return block, nil
}

func (p *parser) parseExpr() (node, error) {
	if p.is(p.peek(), "if") {
		return p.parseBranch()
	}
	return p.parseSum()
}

func (p *parser) parseBranch() (node, error) {
	n := &branchNode{}
	for {
		ifTok, err := p.expect("if")
		if err != nil {
			return nil, err
		}
		cond, err := p.parseBool()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		if len(n.branches) > 0 && body.dataType() != n.branches[0].body.dataType() {
			return nil, errorAt(ifTok.pos, ErrTypeMismatch, "branch returns %s, previous branch %s",
				body.dataType(), n.branches[0].body.dataType())
		}
		n.branches = append(n.branches, conditionalBranch{cond: cond, body: body})

		elseTok, err := p.expect("else")
		if err != nil {
			return nil, err
		}
		if p.is(p.peek(), "if") {
			continue
		}

		orElse, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		if orElse.dataType() != n.branches[0].body.dataType() {
			return nil, errorAt(elseTok.pos, ErrTypeMismatch, "else branch returns %s, previous branch %s",
				orElse.dataType(), n.branches[0].body.dataType())
		}
		n.orElse = orElse
		return n, nil
	}
}

func (p *parser) parseBlock() (*blockNode, error) {
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	body, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		t := p.scan()
		var fn string
		switch {
		case p.is(t, "+"):
			fn = "add"
		case p.is(t, "-"):
			fn = "sub"
		default:
			p.unscan()
			return left, nil
		}
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		if left, err = p.operator(t, fn, left, right); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseProduct() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.scan()
		var fn string
		switch {
		case p.is(t, "*"):
			fn = "mul"
		case p.is(t, "/"):
			fn = "div"
		default:
			p.unscan()
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if left, err = p.operator(t, fn, left, right); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseUnary() (node, error) {
	t := p.scan()
	if p.is(t, "-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return p.operator(t, "neg", operand)
	}
	p.unscan()
	return p.parseAtom()
}

func (p *parser) operator(t token, fn string, args ...node) (node, error) {
	for _, a := range args {
		if a.dataType() != Number {
			return nil, errorAt(t.pos, ErrTypeMismatch, "operator %s needs numbers, got %s", t.lit, a.dataType())
		}
	}
	return &callNode{fn: operatorFunction(fn), args: args}, nil
}

func (p *parser) parseAtom() (node, error) {
	t := p.scan()
	switch {
	case t.kind == tokNumber:
		v, err := strconv.ParseFloat(t.lit, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: t.pos, Found: t.String(), Expected: "number"}
		}
		return &constantNode{value: v}, nil

	case p.is(t, "("):
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		return expr, nil

	case p.is(t, "if"):
		p.unscan()
		return p.parseBranch()

	case p.is(t, "nodata"):
		return &noDataNode{}, nil

	case t.kind == tokIdent && !keywords[t.lit]:
		if p.is(p.peek(), "(") {
			return p.parseCall(t)
		}
		b, ok := p.lookup(t.lit)
		if !ok {
			return nil, errorAt(t.pos, ErrUnknownVariable, "%q", t.lit)
		}
		return &variableNode{name: b.name, slot: b.slot, typ: b.typ}, nil
	}

	return nil, &SyntaxError{Pos: t.pos, Found: t.String(), Expected: "expression"}
}

func (p *parser) parseCall(name token) (node, error) {
	fn, ok := LookupFunction(name.lit)
	if !ok {
		return nil, errorAt(name.pos, ErrUnknownFunction, "%q", name.lit)
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}

	var args []node
	if p.is(p.peek(), ")") {
		p.scan()
	} else {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if arg.dataType() != Number {
				return nil, errorAt(name.pos, ErrTypeMismatch, "argument %d of %s must be a number, got %s",
					len(args)+1, fn.Name, arg.dataType())
			}
			args = append(args, arg)

			t := p.scan()
			if p.is(t, ")") {
				break
			}
			if !p.is(t, ",") {
				return nil, &SyntaxError{Pos: t.pos, Found: t.String(), Expected: "',' or ')'"}
			}
		}
	}

	if !fn.AcceptsArgs(len(args)) {
		return nil, errorAt(name.pos, ErrArity, "%s takes %s arguments, got %d", fn.Name, arityString(fn), len(args))
	}
	return &callNode{fn: fn, args: args}, nil
}

func arityString(fn Function) string {
	if fn.MinArgs == fn.MaxArgs {
		return strconv.Itoa(fn.MinArgs)
	}
	return fmt.Sprintf("%d to %d", fn.MinArgs, fn.MaxArgs)
}

// parseBool parses boolterm { "or" boolterm }.
func (p *parser) parseBool() (boolNode, error) {
	left, err := p.parseBoolTerm()
	if err != nil {
		return nil, err
	}
	for p.is(p.peek(), "or") {
		p.scan()
		right, err := p.parseBoolTerm()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseBoolTerm() (boolNode, error) {
	left, err := p.parseBoolAtom()
	if err != nil {
		return nil, err
	}
	for p.is(p.peek(), "and") {
		p.scan()
		right, err := p.parseBoolAtom()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{left: left, and: true, right: right}
	}
	return left, nil
}

func (p *parser) parseBoolAtom() (boolNode, error) {
	t := p.scan()
	switch {
	case p.is(t, "true"):
		return &boolConstant{value: true}, nil
	case p.is(t, "false"):
		return &boolConstant{value: false}, nil
	case p.is(t, "("):
		// A parenthesis opens either a nested condition or the left operand of a
		// comparison. Try the condition first and fall back.
		mark, scope := p.i, len(p.scope)
		if cond, err := p.parseBool(); err == nil {
			if _, err := p.expect(")"); err == nil {
				return cond, nil
			}
		}
		p.i, p.scope = mark, p.scope[:scope]
	}
	p.unscan()
	return p.parseComparison()
}

func (p *parser) parseComparison() (boolNode, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}

	t := p.scan()
	var op comparator
	switch comparator(t.lit) {
	case cmpEqual, cmpNotEqual, cmpLess, cmpLessEqual, cmpGreater, cmpGreaterEqual:
		if t.kind != tokPunct {
			return nil, &SyntaxError{Pos: t.pos, Found: t.String(), Expected: "comparison operator"}
		}
		op = comparator(t.lit)
	default:
		return nil, &SyntaxError{Pos: t.pos, Found: t.String(), Expected: "comparison operator"}
	}

	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	for _, operand := range []node{left, right} {
		if operand.dataType() != Number {
			return nil, errorAt(t.pos, ErrTypeMismatch, "comparison needs numbers, got %s", operand.dataType())
		}
	}
	return &comparisonNode{left: left, op: op, right: right}, nil
}
