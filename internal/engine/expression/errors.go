package expression

import (
	"errors"
	"fmt"
)

// Compilation errors.
var (
	ErrEmptyExpressionName = errors.New("expression name must not be empty")
	ErrUnknownFunction     = errors.New("unknown function")
	ErrUnknownVariable     = errors.New("unknown variable")
	ErrArity               = errors.New("invalid number of arguments")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrInvalidVariableName = errors.New("invalid variable name")
	ErrRedefinedVariable   = errors.New("variable is already defined")
)

// Position is a line:column location in the source, both 1-based.
type Position struct {
	Line   int
	Column int
}

// String returns "line:column".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// SyntaxError reports an unexpected token.
type SyntaxError struct {
	Pos      Position
	Found    string
	Expected string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("syntax error at %s: unexpected %s", e.Pos, e.Found)
	}
	return fmt.Sprintf("syntax error at %s: found %s, expected %s", e.Pos, e.Found, e.Expected)
}

// semanticError attaches a position and detail to one of the sentinel errors.
type semanticError struct {
	Pos    Position
	Detail string
	Err    error
}

func (e *semanticError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Err, e.Pos, e.Detail)
}

func (e *semanticError) Unwrap() error {
	return e.Err
}

func errorAt(pos Position, err error, format string, args ...any) error {
	return &semanticError{Pos: pos, Detail: fmt.Sprintf(format, args...), Err: err}
}
