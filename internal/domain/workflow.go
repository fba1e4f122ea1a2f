package domain

import "time"

// ResultType is the kind of output a workflow produces.
type ResultType string

// Result types.
const (
	ResultRaster ResultType = "Raster"
	ResultVector ResultType = "Vector"
	ResultPlot   ResultType = "Plot"
)

// WorkflowStatus is the lifecycle state of a registered workflow.
type WorkflowStatus string

// Workflow statuses.
const (
	StatusLoading   WorkflowStatus = "loading"
	StatusReady     WorkflowStatus = "ready"
	StatusError     WorkflowStatus = "error"
	StatusUnloading WorkflowStatus = "unloading"
)

// WorkflowMetadata is optional descriptive information attached to a workflow file.
type WorkflowMetadata struct {
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	License     License  `json:"license,omitempty" yaml:"license,omitempty"`
}

// HasKeyword checks if a keyword is present.
func (m *WorkflowMetadata) HasKeyword(keyword string) bool {
	for _, k := range m.Keywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// WorkflowInfo is the registry's view of a workflow.
type WorkflowInfo struct {
	ID           string           `json:"id"`
	Type         ResultType       `json:"type"`
	Source       string           `json:"source,omitempty"` // Storage key it was loaded from
	Status       WorkflowStatus   `json:"status"`
	Error        string           `json:"error,omitempty"`
	Metadata     WorkflowMetadata `json:"metadata"`
	RegisteredAt time.Time        `json:"registeredAt"`
	LastQueried  time.Time        `json:"lastQueried,omitempty"`
}

// IsReady returns true if the workflow can be queried.
func (w *WorkflowInfo) IsReady() bool {
	return w.Status == StatusReady
}
