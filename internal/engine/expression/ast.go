package expression

import (
	"fmt"
	"strconv"
	"strings"
)

// Parameter is a named, typed program input.
type Parameter struct {
	Name string
	Type DataType
}

// NumberParam returns a number parameter.
func NumberParam(name string) Parameter {
	return Parameter{Name: name, Type: Number}
}

var keywords = map[string]bool{
	"let": true, "if": true, "else": true, "nodata": true,
	"true": true, "false": true, "and": true, "or": true,
}

// IsAllowedVariableName reports whether name may be used as a parameter or let binding:
// ASCII letters, digits and underscores, not starting with a digit or FunctionPrefix,
// and not a keyword or builtin function.
func IsAllowedVariableName(name string) bool {
	if name == "" || strings.HasPrefix(name, FunctionPrefix) || keywords[name] {
		return false
	}
	if _, ok := LookupFunction(name); ok {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// node is a typed expression node.
type node interface {
	dataType() DataType
	String() string
}

type constantNode struct {
	value float64
}

func (n *constantNode) dataType() DataType { return Number }
func (n *constantNode) String() string {
	return strconv.FormatFloat(n.value, 'g', -1, 64)
}

type noDataNode struct{}

func (n *noDataNode) dataType() DataType { return Number }
func (n *noDataNode) String() string     { return "nodata" }

type variableNode struct {
	name string
	slot int
	typ  DataType
}

func (n *variableNode) dataType() DataType { return n.typ }
func (n *variableNode) String() string     { return n.name }

type callNode struct {
	fn   Function
	args []node
}

func (n *callNode) dataType() DataType { return Number }
func (n *callNode) String() string {
	args := make([]string, len(n.args))
	for i, a := range n.args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", n.fn.Name, strings.Join(args, ", "))
}

type conditionalBranch struct {
	cond boolNode
	body *blockNode
}

type branchNode struct {
	branches []conditionalBranch
	orElse   *blockNode
}

// All arms share the type of the else arm.
func (n *branchNode) dataType() DataType { return n.orElse.dataType() }
func (n *branchNode) String() string {
	var b strings.Builder
	for i, br := range n.branches {
		if i > 0 {
			b.WriteString(" else ")
		}
		fmt.Fprintf(&b, "if %s { %s }", br.cond, br.body)
	}
	fmt.Fprintf(&b, " else { %s }", n.orElse)
	return b.String()
}

type assignment struct {
	name  string
	slot  int
	value node
}

type blockNode struct {
	lets []assignment
	expr node
}

func (n *blockNode) dataType() DataType { return n.expr.dataType() }
func (n *blockNode) String() string {
	var b strings.Builder
	for _, l := range n.lets {
		fmt.Fprintf(&b, "let %s = %s; ", l.name, l.value)
	}
	b.WriteString(n.expr.String())
	return b.String()
}

type boolNode interface {
	String() string
}

type boolConstant struct {
	value bool
}

func (n *boolConstant) String() string { return strconv.FormatBool(n.value) }

type comparator string

const (
	cmpEqual        comparator = "=="
	cmpNotEqual     comparator = "!="
	cmpLess         comparator = "<"
	cmpLessEqual    comparator = "<="
	cmpGreater      comparator = ">"
	cmpGreaterEqual comparator = ">="
)

type comparisonNode struct {
	left  node
	op    comparator
	right node
}

func (n *comparisonNode) String() string {
	return fmt.Sprintf("(%s %s %s)", n.left, n.op, n.right)
}

type logicalNode struct {
	left  boolNode
	and   bool
	right boolNode
}

func (n *logicalNode) String() string {
	op := "or"
	if n.and {
		op = "and"
	}
	return fmt.Sprintf("(%s %s %s)", n.left, op, n.right)
}
