// Package operators implements the workflow operators and their JSON encoding.
package operators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
)

// Operator type names.
const (
	TypeRasterStacker               = "RasterStacker"
	TypeExpression                  = "Expression"
	TypeMockRasterSource            = "MockRasterSource"
	TypeReprojection                = "Reprojection"
	TypeMockPointSource             = "MockPointSource"
	TypeMockFeatureCollectionSource = "MockFeatureCollectionSource"
	TypeGeoPackageSource            = "GeoPackageSource"
	TypeTemporalRasterMeanPlot      = "TemporalRasterMeanPlot"
)

// workflowNamespace scopes workflow IDs.
var workflowNamespace = uuid.MustParse("0f4b3a1e-6f5c-4d2a-9a55-5d1f3c8e2b7a")

// encodable is implemented by every operator of the closed set.
type encodable interface {
	TypeName() string
	params() any
	sources() engine.Sources
}

type envelope struct {
	Type    string          `json:"type"`
	Params  json.RawMessage `json:"params"`
	Sources sourceEnvelope  `json:"sources"`
}

type sourceEnvelope struct {
	Rasters []json.RawMessage `json:"rasters,omitempty"`
	Vectors []json.RawMessage `json:"vectors,omitempty"`
}

// MarshalOperator encodes an operator tree as {"type", "params", "sources"}.
func MarshalOperator(op any) ([]byte, error) {
	e, ok := op.(encodable)
	if !ok {
		return nil, fmt.Errorf("%T: %w", op, domain.ErrUnknownOperator)
	}

	params, err := json.Marshal(e.params())
	if err != nil {
		return nil, fmt.Errorf("encoding %s params: %w", e.TypeName(), err)
	}

	env := envelope{Type: e.TypeName(), Params: params}
	src := e.sources()
	for _, r := range src.Rasters {
		data, err := MarshalOperator(r)
		if err != nil {
			return nil, err
		}
		env.Sources.Rasters = append(env.Sources.Rasters, data)
	}
	for _, v := range src.Vectors {
		data, err := MarshalOperator(v)
		if err != nil {
			return nil, err
		}
		env.Sources.Vectors = append(env.Sources.Vectors, data)
	}
	return json.Marshal(env)
}

func decodeEnvelope(data []byte) (envelope, engine.Sources, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, engine.Sources{}, fmt.Errorf("decoding operator: %w: %v", domain.ErrInvalidInput, err)
	}

	var sources engine.Sources
	for _, r := range env.Sources.Rasters {
		op, err := DecodeRasterOperator(r)
		if err != nil {
			return env, engine.Sources{}, err
		}
		sources.Rasters = append(sources.Rasters, op)
	}
	for _, v := range env.Sources.Vectors {
		op, err := DecodeVectorOperator(v)
		if err != nil {
			return env, engine.Sources{}, err
		}
		sources.Vectors = append(sources.Vectors, op)
	}
	return env, sources, nil
}

func decodeParams(typeName string, raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding %s params: %w: %v", typeName, domain.ErrInvalidInput, err)
	}
	return nil
}

func unknownOperator(kind, typeName string) error {
	return fmt.Errorf("%s operator %q: %w", kind, typeName, domain.ErrUnknownOperator)
}

// DecodeRasterOperator decodes a raster operator tree.
func DecodeRasterOperator(data []byte) (engine.RasterOperator, error) {
	env, sources, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeRasterStacker:
		op := &RasterStacker{Sources: sources}
		return op, decodeParams(env.Type, env.Params, &op.Params)
	case TypeExpression:
		op := &Expression{Sources: sources}
		return op, decodeParams(env.Type, env.Params, &op.Params)
	case TypeMockRasterSource:
		op := &MockRasterSource{}
		return op, decodeParams(env.Type, env.Params, &op.Params)
	}
	return nil, unknownOperator("raster", env.Type)
}

// DecodeVectorOperator decodes a vector operator tree.
func DecodeVectorOperator(data []byte) (engine.VectorOperator, error) {
	env, sources, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeReprojection:
		op := &Reprojection{Sources: sources}
		return op, decodeParams(env.Type, env.Params, &op.Params)
	case TypeMockPointSource:
		op := &MockPointSource{}
		return op, decodeParams(env.Type, env.Params, &op.Params)
	case TypeMockFeatureCollectionSource:
		op := &MockFeatureCollectionSource{}
		return op, decodeParams(env.Type, env.Params, &op.Params)
	case TypeGeoPackageSource:
		op := &GeoPackageSource{}
		return op, decodeParams(env.Type, env.Params, &op.Params)
	}
	return nil, unknownOperator("vector", env.Type)
}

// DecodePlotOperator decodes a plot operator tree.
func DecodePlotOperator(data []byte) (engine.PlotOperator, error) {
	env, sources, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeTemporalRasterMeanPlot:
		op := &TemporalRasterMeanPlot{Sources: sources}
		return op, decodeParams(env.Type, env.Params, &op.Params)
	}
	return nil, unknownOperator("plot", env.Type)
}

// Workflow is a typed operator tree.
type Workflow struct {
	Type     domain.ResultType
	Operator any // engine.RasterOperator, engine.VectorOperator or engine.PlotOperator
}

type workflowJSON struct {
	Type     domain.ResultType `json:"type"`
	Operator json.RawMessage   `json:"operator"`
}

// Raster returns the operator of a raster workflow.
func (w *Workflow) Raster() (engine.RasterOperator, error) {
	op, ok := w.Operator.(engine.RasterOperator)
	if !ok || w.Type != domain.ResultRaster {
		return nil, &domain.TypeMismatchError{Expected: string(domain.ResultRaster), Found: string(w.Type)}
	}
	return op, nil
}

// Vector returns the operator of a vector workflow.
func (w *Workflow) Vector() (engine.VectorOperator, error) {
	op, ok := w.Operator.(engine.VectorOperator)
	if !ok || w.Type != domain.ResultVector {
		return nil, &domain.TypeMismatchError{Expected: string(domain.ResultVector), Found: string(w.Type)}
	}
	return op, nil
}

// Plot returns the operator of a plot workflow.
func (w *Workflow) Plot() (engine.PlotOperator, error) {
	op, ok := w.Operator.(engine.PlotOperator)
	if !ok || w.Type != domain.ResultPlot {
		return nil, &domain.TypeMismatchError{Expected: string(domain.ResultPlot), Found: string(w.Type)}
	}
	return op, nil
}

// MarshalJSON implements json.Marshaler.
func (w Workflow) MarshalJSON() ([]byte, error) {
	op, err := MarshalOperator(w.Operator)
	if err != nil {
		return nil, err
	}
	return json.Marshal(workflowJSON{Type: w.Type, Operator: op})
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *Workflow) UnmarshalJSON(data []byte) error {
	var raw workflowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding workflow: %w: %v", domain.ErrInvalidInput, err)
	}

	var (
		op  any
		err error
	)
	switch raw.Type {
	case domain.ResultRaster:
		op, err = DecodeRasterOperator(raw.Operator)
	case domain.ResultVector:
		op, err = DecodeVectorOperator(raw.Operator)
	case domain.ResultPlot:
		op, err = DecodePlotOperator(raw.Operator)
	default:
		return fmt.Errorf("workflow type %q: %w", raw.Type, domain.ErrInvalidInput)
	}
	if err != nil {
		return err
	}

	w.Type, w.Operator = raw.Type, op
	return nil
}

// NormalizeDefinition returns a workflow file as JSON. Content that is not a JSON
// object is read as YAML.
func NormalizeDefinition(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return trimmed, nil
	}
	return yamlToJSON(trimmed)
}

// ParseWorkflow decodes a workflow from JSON or YAML.
func ParseWorkflow(data []byte) (*Workflow, error) {
	normalized, err := NormalizeDefinition(data)
	if err != nil {
		return nil, err
	}

	var w Workflow
	if err := w.UnmarshalJSON(normalized); err != nil {
		return nil, err
	}
	return &w, nil
}

// IsWorkflowFile reports whether a storage key names a workflow definition.
func IsWorkflowFile(key string) bool {
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding workflow YAML: %w: %v", domain.ErrInvalidInput, err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting workflow YAML: %w: %v", domain.ErrInvalidInput, err)
	}
	return out, nil
}

// CanonicalJSON returns the workflow's normalized JSON encoding.
func (w *Workflow) CanonicalJSON() ([]byte, error) {
	return json.Marshal(w)
}

// WorkflowID derives the stable ID of a workflow from its canonical JSON.
func WorkflowID(w *Workflow) (string, error) {
	data, err := w.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(workflowNamespace, data).String(), nil
}

// InitializedWorkflow is a workflow whose operator tree has been initialized.
// Exactly the operator matching Type is set.
type InitializedWorkflow struct {
	Type       domain.ResultType
	Raster     engine.InitializedRasterOperator
	Vector     engine.InitializedVectorOperator
	Plot       engine.InitializedPlotOperator
	Descriptor domain.TypedResultDescriptor
}

// Initialize initializes the workflow's operator tree.
func (w *Workflow) Initialize(ctx context.Context, ectx engine.ExecutionContext) (*InitializedWorkflow, error) {
	out := &InitializedWorkflow{Type: w.Type, Descriptor: domain.TypedResultDescriptor{Type: w.Type}}

	switch w.Type {
	case domain.ResultRaster:
		op, err := w.Raster()
		if err != nil {
			return nil, err
		}
		if out.Raster, err = op.Initialize(ctx, ectx); err != nil {
			return nil, err
		}
		desc := out.Raster.ResultDescriptor()
		out.Descriptor.Raster = &desc
	case domain.ResultVector:
		op, err := w.Vector()
		if err != nil {
			return nil, err
		}
		if out.Vector, err = op.Initialize(ctx, ectx); err != nil {
			return nil, err
		}
		desc := out.Vector.ResultDescriptor()
		out.Descriptor.Vector = &desc
	case domain.ResultPlot:
		op, err := w.Plot()
		if err != nil {
			return nil, err
		}
		if out.Plot, err = op.Initialize(ctx, ectx); err != nil {
			return nil, err
		}
		desc := out.Plot.ResultDescriptor()
		out.Descriptor.Plot = &desc
	default:
		return nil, fmt.Errorf("workflow type %q: %w", w.Type, domain.ErrInvalidInput)
	}
	return out, nil
}
