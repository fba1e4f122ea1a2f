// Package expression compiles a small arithmetic DSL into evaluators over optional
// numbers and geometries.
//
// A program is parsed into a typed AST, validated against its parameters and lowered
// into a tree of closures:
//
//	let b = A * 2;
//	if A > 0 { sqrt(b) } else { nodata }
//
// Every value may be absent (no-data). Functions return no-data if any argument is
// absent.
package expression

import (
	"math"
	"sort"
	"strings"
)

// FunctionPrefix is reserved for generated function names. Variables must not use it.
const FunctionPrefix = "expression_fn_"

// Function is a builtin scalar function over numbers.
type Function struct {
	Name    string
	MinArgs int // inclusive
	MaxArgs int // inclusive
	eval    func(args []float64) float64

	// operator entries back the arithmetic syntax and cannot be called by name
	operator bool
}

// InternalName returns the unique generated name of the function for the given
// argument types, e.g. "expression_fn_max__nn".
func (f Function) InternalName(args []DataType) string {
	var b strings.Builder
	b.WriteString(FunctionPrefix)
	b.WriteString(f.Name)
	b.WriteString("__")
	for _, t := range args {
		b.WriteByte(t.Suffix())
	}
	return b.String()
}

// AcceptsArgs reports whether n arguments are within the function's arity.
func (f Function) AcceptsArgs(n int) bool {
	return n >= f.MinArgs && n <= f.MaxArgs
}

func unary(fn func(float64) float64) func([]float64) float64 {
	return func(a []float64) float64 { return fn(a[0]) }
}

func binary(fn func(float64, float64) float64) func([]float64) float64 {
	return func(a []float64) float64 { return fn(a[0], a[1]) }
}

var functions = map[string]Function{
	"min":   {Name: "min", MinArgs: 2, MaxArgs: 2, eval: binary(math.Min)},
	"max":   {Name: "max", MinArgs: 2, MaxArgs: 2, eval: binary(math.Max)},
	"pow":   {Name: "pow", MinArgs: 2, MaxArgs: 2, eval: binary(math.Pow)},
	"abs":   {Name: "abs", MinArgs: 1, MaxArgs: 1, eval: unary(math.Abs)},
	"sqrt":  {Name: "sqrt", MinArgs: 1, MaxArgs: 1, eval: unary(math.Sqrt)},
	"sin":   {Name: "sin", MinArgs: 1, MaxArgs: 1, eval: unary(math.Sin)},
	"cos":   {Name: "cos", MinArgs: 1, MaxArgs: 1, eval: unary(math.Cos)},
	"tan":   {Name: "tan", MinArgs: 1, MaxArgs: 1, eval: unary(math.Tan)},
	"asin":  {Name: "asin", MinArgs: 1, MaxArgs: 1, eval: unary(math.Asin)},
	"acos":  {Name: "acos", MinArgs: 1, MaxArgs: 1, eval: unary(math.Acos)},
	"atan":  {Name: "atan", MinArgs: 1, MaxArgs: 1, eval: unary(math.Atan)},
	"log10": {Name: "log10", MinArgs: 1, MaxArgs: 1, eval: unary(math.Log10)},
	"ln":    {Name: "ln", MinArgs: 1, MaxArgs: 1, eval: unary(math.Log)},
	"pi":    {Name: "pi", MinArgs: 0, MaxArgs: 0, eval: func([]float64) float64 { return math.Pi }},

	"add": {Name: "add", MinArgs: 2, MaxArgs: 2, operator: true, eval: binary(func(a, b float64) float64 { return a + b })},
	"sub": {Name: "sub", MinArgs: 2, MaxArgs: 2, operator: true, eval: binary(func(a, b float64) float64 { return a - b })},
	"mul": {Name: "mul", MinArgs: 2, MaxArgs: 2, operator: true, eval: binary(func(a, b float64) float64 { return a * b })},
	"div": {Name: "div", MinArgs: 2, MaxArgs: 2, operator: true, eval: binary(func(a, b float64) float64 { return a / b })},
	"neg": {Name: "neg", MinArgs: 1, MaxArgs: 1, operator: true, eval: unary(func(a float64) float64 { return -a })},
}

// LookupFunction returns the callable builtin with the given name.
func LookupFunction(name string) (Function, bool) {
	f, ok := functions[name]
	if !ok || f.operator {
		return Function{}, false
	}
	return f, true
}

func operatorFunction(name string) Function {
	return functions[name]
}

// FunctionNames returns the names of all callable builtins, sorted.
func FunctionNames() []string {
	names := make([]string, 0, len(functions))
	for name, f := range functions {
		if !f.operator {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
