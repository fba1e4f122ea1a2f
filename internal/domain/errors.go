package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrWorkflowNotFound       = fmt.Errorf("workflow: %w", ErrNotFound)
	ErrDatasetNotFound        = fmt.Errorf("dataset: %w", ErrNotFound)
	ErrLayerNotFound          = fmt.Errorf("layer: %w", ErrNotFound)
	ErrUnknownOperator        = fmt.Errorf("operator type: %w", ErrInvalidInput)
	ErrInvalidSpatialRef      = fmt.Errorf("spatial reference: %w", ErrInvalidInput)
	ErrInvalidBandSelection   = fmt.Errorf("band selection: %w", ErrInvalidInput)
	ErrUnsupportedProjection  = fmt.Errorf("projection: %w", ErrUnsupported)
	ErrMissingCapability      = fmt.Errorf("execution context capability: %w", ErrUnavailable)
	ErrSourcesNotAligned      = fmt.Errorf("stacked sources emit misaligned tiles: %w", ErrInternal)
	ErrNotReady               = fmt.Errorf("service not ready: %w", ErrUnavailable)
	ErrStorageUnavailable     = fmt.Errorf("storage: %w", ErrUnavailable)
	ErrResultLimitExceeded    = fmt.Errorf("result limit exceeded: %w", ErrInvalidInput)
	ErrUnknownSpatialRefInput = fmt.Errorf("source spatial reference is unknown: %w", ErrInvalidInput)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// SourceKind names the kind of operator input an arity check is about.
type SourceKind string

// Source kinds.
const (
	RasterSources SourceKind = "raster"
	VectorSources SourceKind = "vector"
)

// InvalidInputCountError reports an operator that was given the wrong number of sources.
// The expected range is half-open: [ExpectedMin, ExpectedMax).
type InvalidInputCountError struct {
	Operator    string
	Kind        SourceKind
	ExpectedMin int
	ExpectedMax int
	Found       int
}

// Error implements the error interface.
func (e *InvalidInputCountError) Error() string {
	return fmt.Sprintf("invalid number of %s inputs for %s: expected %d..%d, found %d",
		e.Kind, e.Operator, e.ExpectedMin, e.ExpectedMax, e.Found)
}

// Unwrap returns the underlying error type.
func (e *InvalidInputCountError) Unwrap() error {
	return ErrInvalidInput
}

// CheckInputCount returns an InvalidInputCountError if found is outside [lo, hi).
func CheckInputCount(operator string, kind SourceKind, lo, hi, found int) error {
	if found >= lo && found < hi {
		return nil
	}
	return &InvalidInputCountError{
		Operator:    operator,
		Kind:        kind,
		ExpectedMin: lo,
		ExpectedMax: hi,
		Found:       found,
	}
}

// TypeMismatchError is returned when a typed value is requested as the wrong variant.
type TypeMismatchError struct {
	Expected string
	Found    string
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, found %s", e.Expected, e.Found)
}

// Unwrap returns the underlying error type.
func (e *TypeMismatchError) Unwrap() error {
	return ErrInvalidInput
}

// QueryError represents an error during a workflow query.
type QueryError struct {
	WorkflowID string // Workflow identifier
	Operator   string // Operator type name, if known
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Operator != "" {
		return fmt.Sprintf("query error in workflow %s, operator %s: %v",
			e.WorkflowID, e.Operator, e.Err)
	}
	return fmt.Sprintf("query error in workflow %s: %v", e.WorkflowID, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (download, list, etc.)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ReprojectionError is returned when a feature or bounding box cannot be projected.
type ReprojectionError struct {
	From SpatialReference
	To   SpatialReference
	Err  error
}

// Error implements the error interface.
func (e *ReprojectionError) Error() string {
	return fmt.Sprintf("reprojection from %s to %s failed: %v", e.From, e.To, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReprojectionError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
