package expression

import (
	"fmt"
	"math"
	"sync"
)

type evalFunc func(slots []Value) Value
type condFunc func(slots []Value) bool

// Program is a compiled expression. It is immutable and safe for concurrent use.
type Program struct {
	name       string
	params     []Parameter
	outputType DataType
	source     string
	slots      int
	root       evalFunc

	pool sync.Pool
}

// Name returns the program's name.
func (p *Program) Name() string { return p.name }

// Parameters returns the program's inputs in call order.
func (p *Program) Parameters() []Parameter { return p.params }

// OutputType returns the type Eval produces.
func (p *Program) OutputType() DataType { return p.outputType }

// Source returns the DSL text the program was compiled from.
func (p *Program) Source() string { return p.source }

// Eval runs the program. Missing trailing arguments are treated as no-data and extra
// arguments are ignored.
func (p *Program) Eval(args ...Value) Value {
	buf, _ := p.pool.Get().(*[]Value)
	if buf == nil || len(*buf) != p.slots {
		s := make([]Value, p.slots)
		buf = &s
	}
	slots := *buf
	for i := range p.params {
		if i < len(args) {
			slots[i] = args[i]
		} else {
			slots[i] = NoneOf(p.params[i].Type)
		}
	}

	out := p.root(slots)
	p.pool.Put(buf)
	return out
}

// EvalFloats is Eval for number-only programs. NaN inputs are no-data.
func (p *Program) EvalFloats(args ...float64) (float64, bool) {
	values := make([]Value, len(args))
	for i, a := range args {
		if math.IsNaN(a) {
			values[i] = None()
		} else {
			values[i] = Num(a)
		}
	}
	return p.Eval(values...).Float()
}

// String returns the normalized program text.
func (p *Program) String() string {
	return fmt.Sprintf("%s(%v) -> %s", p.name, p.params, p.outputType)
}

// lower turns a typed node into a closure.
func lower(n node) evalFunc {
	switch n := n.(type) {
	case *constantNode:
		v := Num(n.value)
		return func([]Value) Value { return v }

	case *noDataNode:
		return func([]Value) Value { return None() }

	case *variableNode:
		slot := n.slot
		return func(slots []Value) Value { return slots[slot] }

	case *callNode:
		return lowerCall(n)

	case *branchNode:
		conds := make([]condFunc, len(n.branches))
		bodies := make([]evalFunc, len(n.branches))
		for i, b := range n.branches {
			conds[i] = lowerCond(b.cond)
			bodies[i] = lower(b.body)
		}
		orElse := lower(n.orElse)
		return func(slots []Value) Value {
			for i, cond := range conds {
				if cond(slots) {
					return bodies[i](slots)
				}
			}
			return orElse(slots)
		}

	case *blockNode:
		type let struct {
			slot  int
			value evalFunc
		}
		lets := make([]let, len(n.lets))
		for i, a := range n.lets {
			lets[i] = let{slot: a.slot, value: lower(a.value)}
		}
		expr := lower(n.expr)
		if len(lets) == 0 {
			return expr
		}
		return func(slots []Value) Value {
			for _, l := range lets {
				slots[l.slot] = l.value(slots)
			}
			return expr(slots)
		}
	}
	panic(fmt.Sprintf("expression: cannot lower %T", n))
}

func lowerCall(n *callNode) evalFunc {
	args := make([]evalFunc, len(n.args))
	for i, a := range n.args {
		args[i] = lower(a)
	}
	eval := n.fn.eval

	switch len(args) {
	case 0:
		v := Num(eval(nil))
		return func([]Value) Value { return v }
	case 1:
		arg := args[0]
		return func(slots []Value) Value {
			a, ok := arg(slots).Float()
			if !ok {
				return None()
			}
			return Num(eval([]float64{a}))
		}
	}

	return func(slots []Value) Value {
		values := make([]float64, len(args))
		for i, arg := range args {
			v, ok := arg(slots).Float()
			if !ok {
				return None()
			}
			values[i] = v
		}
		return Num(eval(values))
	}
}

func lowerCond(n boolNode) condFunc {
	switch n := n.(type) {
	case *boolConstant:
		v := n.value
		return func([]Value) bool { return v }

	case *logicalNode:
		left, right := lowerCond(n.left), lowerCond(n.right)
		if n.and {
			return func(slots []Value) bool { return left(slots) && right(slots) }
		}
		return func(slots []Value) bool { return left(slots) || right(slots) }

	case *comparisonNode:
		left, right := lower(n.left), lower(n.right)
		op := n.op
		return func(slots []Value) bool {
			c := compareOptional(left(slots), right(slots))
			if c == math.MinInt {
				return op == cmpNotEqual
			}
			switch op {
			case cmpEqual:
				return c == 0
			case cmpNotEqual:
				return c != 0
			case cmpLess:
				return c < 0
			case cmpLessEqual:
				return c <= 0
			case cmpGreater:
				return c > 0
			default:
				return c >= 0
			}
		}
	}
	panic(fmt.Sprintf("expression: cannot lower condition %T", n))
}
