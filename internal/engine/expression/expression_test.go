package expression

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/paulmach/orb"
)

func params(names ...string) []Parameter {
	out := make([]Parameter, len(names))
	for i, n := range names {
		out[i] = NumberParam(n)
	}
	return out
}

func TestEvalNumbers(t *testing.T) {
	tests := []struct {
		name   string
		source string
		params []Parameter
		args   []Value
		want   Value
	}{
		{"addition", "a + b", params("a", "b"), []Value{Num(2), Num(3)}, Num(5)},
		{"precedence", "1 + 2 * 3", nil, nil, Num(7)},
		{"parentheses", "(1 + 2) * 3", nil, nil, Num(9)},
		{"left associative minus", "2 - 3 - 4", nil, nil, Num(-5)},
		{"left associative division", "8 / 2 / 2", nil, nil, Num(2)},
		{"unary minus", "-2 * 3", nil, nil, Num(-6)},
		{"double negation", "--A", params("A"), []Value{Num(4)}, Num(4)},
		{"function", "max(A, 10)", params("A"), []Value{Num(3)}, Num(10)},
		{"pow", "pow(2, 3)", nil, nil, Num(8)},
		{"pi", "pi()", nil, nil, Num(math.Pi)},
		{"nested calls", "sqrt(abs(-16))", nil, nil, Num(4)},
		{"float literal", "0.5 * 1e2", nil, nil, Num(50)},
		{"let", "let b = A * 2; b + 1", params("A"), []Value{Num(3)}, Num(7)},
		{"let chain", "let b = A + 1; let c = b * b; c", params("A"), []Value{Num(2)}, Num(9)},
		{"nodata literal", "nodata", nil, nil, None()},
		{"none propagates", "a + b", params("a", "b"), []Value{Num(2), None()}, None()},
		{"none through function", "min(A, 1)", params("A"), []Value{None()}, None()},
		{"missing argument", "A", params("A"), nil, None()},
		{"pi ignores absent inputs", "A * 0 + pi()", params("A"), []Value{None()}, None()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile("test", tt.source, tt.params, Number)
			if err != nil {
				t.Fatalf("Compile(%q) error = %v", tt.source, err)
			}
			got := p.Eval(tt.args...)
			if got.Valid != tt.want.Valid {
				t.Fatalf("Eval() = %v, want %v", got, tt.want)
			}
			if got.Valid && math.Abs(got.Number-tt.want.Number) > 1e-12 {
				t.Errorf("Eval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvalBranches(t *testing.T) {
	p, err := Compile("branch", `
		if A > 0 {
			A
		} else if A < -5 {
			0
		} else {
			nodata
		}`, params("A"), Number)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   Value
		want Value
	}{
		{Num(3), Num(3)},
		{Num(-10), Num(0)},
		{Num(-1), None()},
		// an absent value orders before every number
		{None(), Num(0)},
	}

	for _, tt := range tests {
		got := p.Eval(tt.in)
		if got != tt.want {
			t.Errorf("Eval(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEvalConditions(t *testing.T) {
	tests := []struct {
		name   string
		source string
		arg    Value
		want   float64
	}{
		{"and", "if A > 1 and A < 3 { 1 } else { 0 }", Num(2), 1},
		{"or", "if A < 1 or A > 3 { 1 } else { 0 }", Num(2), 0},
		{"parenthesized condition", "if (A > 1 and A < 3) or false { 1 } else { 0 }", Num(5), 0},
		{"parenthesized operand", "if (A) + 1 >= 3 { 1 } else { 0 }", Num(2), 1},
		{"equality with nodata", "if A == nodata { 1 } else { 0 }", None(), 1},
		{"inequality with nodata", "if A != nodata { 1 } else { 0 }", Num(0), 1},
		{"nodata is less", "if A < 0 { 1 } else { 0 }", None(), 1},
		{"NaN is unordered", "if A >= 0 or A < 0 { 1 } else { 0 }", Num(math.NaN()), 0},
		{"true", "if true { 1 } else { 0 }", None(), 1},
		{"branch as operand", "1 + if A > 0 { 1 } else { 2 }", Num(1), 2},
		{"let in branch", "if true { let x = A; x * 2 } else { 0 }", Num(4), 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile("cond", tt.source, params("A"), Number)
			if err != nil {
				t.Fatalf("Compile(%q) error = %v", tt.source, err)
			}
			got, ok := p.Eval(tt.arg).Float()
			if !ok || got != tt.want {
				t.Errorf("Eval() = %v, %v, want %v", got, ok, tt.want)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	mixed := []Parameter{NumberParam("A"), {Name: "P", Type: MultiPoint}}

	tests := []struct {
		name    string
		expr    string
		source  string
		params  []Parameter
		out     DataType
		wantErr error
	}{
		{"empty name", "", "1", nil, Number, ErrEmptyExpressionName},
		{"unknown variable", "e", "A + B", params("A"), Number, ErrUnknownVariable},
		{"unknown function", "e", "foo(1)", nil, Number, ErrUnknownFunction},
		{"operator not callable", "e", "add(1, 2)", nil, Number, ErrUnknownFunction},
		{"too few arguments", "e", "max(1)", nil, Number, ErrArity},
		{"too many arguments", "e", "sqrt(1, 2)", nil, Number, ErrArity},
		{"branch type mismatch", "e", "if true { A } else { P }", mixed, Number, ErrTypeMismatch},
		{"geometry in arithmetic", "e", "P + 1", mixed, Number, ErrTypeMismatch},
		{"geometry as argument", "e", "abs(P)", mixed, Number, ErrTypeMismatch},
		{"output type", "e", "A", mixed, MultiPoint, ErrTypeMismatch},
		{"reserved prefix", "e", "1", params(FunctionPrefix + "x"), Number, ErrInvalidVariableName},
		{"keyword parameter", "e", "1", params("if"), Number, ErrInvalidVariableName},
		{"leading digit", "e", "1", params("1a"), Number, ErrInvalidVariableName},
		{"function name parameter", "e", "1", params("sqrt"), Number, ErrInvalidVariableName},
		{"duplicate parameter", "e", "1", params("A", "A"), Number, ErrRedefinedVariable},
		{"let redefines parameter", "e", "let A = 1; A", params("A"), Number, ErrRedefinedVariable},
		{"invalid let name", "e", "let nodata = 1; 2", nil, Number, ErrInvalidVariableName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr, tt.source, tt.params, tt.out)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Compile(%q) error = %v, want %v", tt.source, err, tt.wantErr)
			}
		})
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantPos Position
	}{
		{"dangling operator", "1 +", Position{Line: 1, Column: 4}},
		{"missing else", "if true { 1 }", Position{Line: 1, Column: 14}},
		{"unclosed paren", "(1 + 2", Position{Line: 1, Column: 7}},
		{"trailing token", "1 2", Position{Line: 1, Column: 3}},
		{"second line", "let a = 1;\nlet b = ;\na", Position{Line: 2, Column: 9}},
		{"illegal character", "1 # 2", Position{Line: 1, Column: 3}},
		{"missing comparison", "if 1 { 1 } else { 2 }", Position{Line: 1, Column: 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("e", tt.source, nil, Number)
			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("Compile(%q) error = %v, want SyntaxError", tt.source, err)
			}
			if syntaxErr.Pos != tt.wantPos {
				t.Errorf("position = %v, want %v (%v)", syntaxErr.Pos, tt.wantPos, err)
			}
		})
	}
}

func TestGeometryPassThrough(t *testing.T) {
	p, err := Compile("geom", "if A > 0 { P } else { Q }",
		[]Parameter{NumberParam("A"), {Name: "P", Type: MultiPoint}, {Name: "Q", Type: MultiPoint}}, MultiPoint)
	if err != nil {
		t.Fatal(err)
	}

	pv, _ := Geom(orb.MultiPoint{{1, 2}})
	qv, _ := Geom(orb.MultiPoint{{3, 4}})

	got := p.Eval(Num(1), pv, qv)
	if !got.Valid || got.Type != MultiPoint {
		t.Fatalf("Eval() = %v", got)
	}
	if mp := got.Geometry.(orb.MultiPoint); mp[0] != (orb.Point{1, 2}) {
		t.Errorf("got %v, want first geometry", mp)
	}

	if _, err := Geom(orb.Point{1, 2}); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Geom(Point) error = %v, want ErrTypeMismatch", err)
	}
}

func TestEvalFloats(t *testing.T) {
	p, err := Compile("ndvi", "(A - B) / (A + B)", params("A", "B"), Number)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := p.EvalFloats(3, 1); !ok || got != 0.5 {
		t.Errorf("EvalFloats(3, 1) = %v, %v", got, ok)
	}
	if _, ok := p.EvalFloats(3, math.NaN()); ok {
		t.Error("NaN input should yield no-data")
	}
}

func TestFunctionRegistry(t *testing.T) {
	for _, name := range []string{"add", "sub", "mul", "div", "neg"} {
		if _, ok := LookupFunction(name); ok {
			t.Errorf("operator %q should not be callable", name)
		}
	}

	names := FunctionNames()
	if len(names) != 14 {
		t.Errorf("FunctionNames() = %v, want 14 builtins", names)
	}

	fn, _ := LookupFunction("max")
	if got := fn.InternalName([]DataType{Number, Number}); got != "expression_fn_max__nn" {
		t.Errorf("InternalName() = %q", got)
	}
}

func TestIsAllowedVariableName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"A", true},
		{"band_1", true},
		{"_x", true},
		{"", false},
		{"1a", false},
		{"a-b", false},
		{"ä", false},
		{"let", false},
		{"pi", false},
		{FunctionPrefix + "foo", false},
	}

	for _, tt := range tests {
		if got := IsAllowedVariableName(tt.name); got != tt.want {
			t.Errorf("IsAllowedVariableName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCompilerCache(t *testing.T) {
	var mu sync.Mutex
	hits, misses := 0, 0
	c := NewCompiler(2, WithObserver(func(hit bool) {
		mu.Lock()
		defer mu.Unlock()
		if hit {
			hits++
		} else {
			misses++
		}
	}))

	p1, err := c.Compile("e", "A + 1", params("A"), Number)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := c.Compile("e", "A + 1", params("A"), Number)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Error("identical units should share one program")
	}
	if hits != 1 || misses != 1 {
		t.Errorf("hits = %d, misses = %d, want 1 and 1", hits, misses)
	}

	if _, err := c.Compile("e", "A + 1", params("B"), Number); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("different parameters must compile separately, got %v", err)
	}

	if _, err := c.Compile("e", "A +", params("A"), Number); err == nil {
		t.Error("expected syntax error")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCompilerConcurrent(t *testing.T) {
	c := NewCompiler(8)

	var wg sync.WaitGroup
	programs := make([]*Program, 16)
	for i := range programs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.Compile("e", "let x = A * A; x + 1", params("A"), Number)
			if err != nil {
				t.Error(err)
				return
			}
			programs[i] = p
			if got, _ := p.Eval(Num(float64(i))).Float(); got != float64(i*i+1) {
				t.Errorf("Eval(%d) = %v", i, got)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}
