package agent

import (
	"context"
	"encoding/json"

	"github.com/agent-forge/agent-forge/internal/domain/feedback"
)

// ConfigClass selects the model configuration profile an agent runs with.
type ConfigClass string

const (
	ConfigStandard ConfigClass = "standard"
	ConfigCoding   ConfigClass = "coding"
	ConfigReview   ConfigClass = "review"
	ConfigCreative ConfigClass = "creative"
)

// Valid reports whether the config class is one of the known profiles.
func (c ConfigClass) Valid() bool {
	switch c {
	case ConfigStandard, ConfigCoding, ConfigReview, ConfigCreative:
		return true
	}
	return false
}

// Descriptor is the immutable metadata registered for an agent type.
type Descriptor struct {
	TypeName     string      `json:"type_name"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Capabilities []string    `json:"capabilities"`
	ConfigClass  ConfigClass `json:"config_class"`
	Dependencies []string    `json:"dependencies,omitempty"`
	Version      string      `json:"version"`
}

// ValidationResult is the outcome of pre-flight input validation.
type ValidationResult struct {
	IsValid     bool     `json:"is_valid"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ProcessResult is the outcome of one collaborator invocation. Evaluator
// agents populate Feedback instead of (or alongside) Result.
type ProcessResult struct {
	Success  bool                         `json:"success"`
	Result   json.RawMessage              `json:"result,omitempty"`
	Feedback *feedback.StructuredFeedback `json:"feedback,omitempty"`
	Error    string                       `json:"error,omitempty"`
}

// Context carries accumulated step results into a collaborator call,
// keyed by step name.
type Context map[string]json.RawMessage

// Agent is the collaborator interface the engine invokes. Implementations
// are treated as immutable after construction and may be called
// concurrently by parallel steps.
type Agent interface {
	Descriptor() Descriptor
	ValidateInput(ctx context.Context, payload json.RawMessage) (*ValidationResult, error)
	Process(ctx context.Context, payload json.RawMessage, execCtx Context) (*ProcessResult, error)
}

// Factory constructs an agent instance for a config class.
type Factory func(class ConfigClass) (Agent, error)
