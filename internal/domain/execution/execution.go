package execution

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for lookups of unknown execution ids.
var ErrNotFound = errors.New("execution not found")

// Status is the lifecycle state of one pipeline run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StepStatus is the per-step progress state.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Terminal reports whether the step reached a final state.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// StepProgress tracks one pipeline step within a run.
type StepProgress struct {
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	Optional    bool       `json:"optional"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Record tracks one pipeline run. It is mutated only by the engine task
// driving the execution and becomes immutable once Status is terminal;
// everything handed out of the store is a deep copy.
type Record struct {
	ExecutionID   uuid.UUID                  `json:"execution_id"`
	PipelineName  string                     `json:"pipeline_name"`
	CorrelationID string                     `json:"correlation_id"`
	Status        Status                     `json:"status"`
	Input         json.RawMessage            `json:"input_data,omitempty"`
	Steps         []StepProgress             `json:"steps"`
	Results       map[string]json.RawMessage `json:"results,omitempty"`
	Warnings      []string                   `json:"warnings,omitempty"`
	Error         string                     `json:"error,omitempty"`
	StartedAt     time.Time                  `json:"started_at"`
	CompletedAt   *time.Time                 `json:"completed_at,omitempty"`
}

// NewRecord creates a running record with all steps pending.
func NewRecord(pipelineName, correlationID string, input json.RawMessage, stepNames []string, optional map[string]bool) *Record {
	steps := make([]StepProgress, 0, len(stepNames))
	for _, name := range stepNames {
		steps = append(steps, StepProgress{
			Name:     name,
			Status:   StepPending,
			Optional: optional[name],
		})
	}
	return &Record{
		ExecutionID:   uuid.New(),
		PipelineName:  pipelineName,
		CorrelationID: correlationID,
		Status:        StatusRunning,
		Input:         append(json.RawMessage(nil), input...),
		Steps:         steps,
		Results:       make(map[string]json.RawMessage),
		StartedAt:     time.Now().UTC(),
	}
}

// Step returns the progress entry with the given name.
func (r *Record) Step(name string) *StepProgress {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	out.Input = append(json.RawMessage(nil), r.Input...)
	out.Steps = make([]StepProgress, len(r.Steps))
	copy(out.Steps, r.Steps)
	out.Results = make(map[string]json.RawMessage, len(r.Results))
	for k, v := range r.Results {
		out.Results[k] = append(json.RawMessage(nil), v...)
	}
	out.Warnings = append([]string(nil), r.Warnings...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Complete marks the record terminal with the given status.
func (r *Record) Complete(status Status, errMsg string) {
	now := time.Now().UTC()
	r.Status = status
	r.Error = errMsg
	r.CompletedAt = &now
}
