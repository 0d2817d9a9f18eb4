package pipeline

import (
	"fmt"

	"github.com/agent-forge/agent-forge/internal/domain/agent"
)

// ExecutionMode selects how a step runs within its group.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
	ModeIterative  ExecutionMode = "iterative"
)

// FailureStrategy controls pipeline behavior when a required step fails.
type FailureStrategy string

const (
	FailureStop     FailureStrategy = "stop"
	FailureContinue FailureStrategy = "continue"
)

// IterativeConfig parameterizes the generator/evaluator convergence loop.
type IterativeConfig struct {
	ImproverAgent       string  `yaml:"improver_agent" json:"improver_agent"`
	EvaluatorAgent      string  `yaml:"evaluator_agent" json:"evaluator_agent"`
	MaxIterations       int     `yaml:"max_iterations" json:"max_iterations"`
	QualityThreshold    float64 `yaml:"quality_threshold" json:"quality_threshold"`
	TimeoutPerIteration int     `yaml:"timeout_per_iteration" json:"timeout_per_iteration"`
}

// Step is one node of the pipeline DAG. Steps are identified by their
// agent type name; DependsOn and RunIf gate scheduling.
type Step struct {
	AgentType      string            `yaml:"agent_type" json:"agent_type"`
	ConfigType     agent.ConfigClass `yaml:"config_type" json:"config_type"`
	ExecutionMode  ExecutionMode     `yaml:"execution_mode" json:"execution_mode"`
	DependsOn      []string          `yaml:"depends_on" json:"depends_on,omitempty"`
	Optional       bool              `yaml:"optional" json:"optional"`
	TimeoutSeconds int               `yaml:"timeout_seconds" json:"timeout_seconds"`
	RunIf          string            `yaml:"run_if" json:"run_if,omitempty"`
	Iterative      *IterativeConfig  `yaml:"iterative_config" json:"iterative_config,omitempty"`
}

// Name returns the step identifier used in dependency references and
// result maps.
func (s *Step) Name() string { return s.AgentType }

// Config is a declarative pipeline definition. Immutable once loaded.
type Config struct {
	Name                 string          `yaml:"name" json:"name"`
	Description          string          `yaml:"description" json:"description,omitempty"`
	GlobalTimeoutSeconds int             `yaml:"global_timeout_seconds" json:"global_timeout_seconds"`
	MaxParallelSteps     int             `yaml:"max_parallel_steps" json:"max_parallel_steps"`
	FailureStrategy      FailureStrategy `yaml:"failure_strategy" json:"failure_strategy"`
	Steps                []Step          `yaml:"steps" json:"steps"`
}

// GetStep returns the step with the given name.
func (c *Config) GetStep(name string) *Step {
	for i := range c.Steps {
		if c.Steps[i].Name() == name {
			return &c.Steps[i]
		}
	}
	return nil
}

// StepNames returns step names in declaration order.
func (c *Config) StepNames() []string {
	names := make([]string, 0, len(c.Steps))
	for i := range c.Steps {
		names = append(names, c.Steps[i].Name())
	}
	return names
}

// ConfigError is a fatal configuration problem, surfaced at validation
// time and never retried.
type ConfigError struct {
	Pipeline string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pipeline %q: %s", e.Pipeline, e.Reason)
}

// CycleError reports a cyclic prerequisite graph, naming a step on the
// cycle.
type CycleError struct {
	Pipeline string
	Step     string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("pipeline %q: cyclic step dependency at %q", e.Pipeline, e.Step)
}

// Validate checks structural soundness: step identity, dependency
// references, iterative blocks, and acyclicity. Cycles are rejected here,
// never at execution time.
func Validate(c *Config) error {
	if c == nil {
		return &ConfigError{Reason: "config is nil"}
	}
	if c.Name == "" {
		return &ConfigError{Pipeline: c.Name, Reason: "name is required"}
	}
	if len(c.Steps) == 0 {
		return &ConfigError{Pipeline: c.Name, Reason: "at least one step is required"}
	}
	if c.MaxParallelSteps < 0 {
		return &ConfigError{Pipeline: c.Name, Reason: "max_parallel_steps must not be negative"}
	}
	switch c.FailureStrategy {
	case "", FailureStop, FailureContinue:
	default:
		return &ConfigError{Pipeline: c.Name, Reason: fmt.Sprintf("unknown failure_strategy %q", c.FailureStrategy)}
	}

	seen := make(map[string]struct{}, len(c.Steps))
	for i := range c.Steps {
		step := &c.Steps[i]
		if step.AgentType == "" {
			return &ConfigError{Pipeline: c.Name, Reason: "agent_type is required for every step"}
		}
		if _, ok := seen[step.Name()]; ok {
			return &ConfigError{Pipeline: c.Name, Reason: fmt.Sprintf("duplicate step %q", step.Name())}
		}
		seen[step.Name()] = struct{}{}

		switch step.ExecutionMode {
		case ModeSequential, ModeParallel, ModeIterative:
		case "":
			return &ConfigError{Pipeline: c.Name, Reason: fmt.Sprintf("step %q: execution_mode is required", step.Name())}
		default:
			return &ConfigError{Pipeline: c.Name, Reason: fmt.Sprintf("step %q: unknown execution_mode %q", step.Name(), step.ExecutionMode)}
		}
		if step.ConfigType != "" && !step.ConfigType.Valid() {
			return &ConfigError{Pipeline: c.Name, Reason: fmt.Sprintf("step %q: unknown config_type %q", step.Name(), step.ConfigType)}
		}
		if step.TimeoutSeconds < 0 {
			return &ConfigError{Pipeline: c.Name, Reason: fmt.Sprintf("step %q: timeout_seconds must not be negative", step.Name())}
		}

		if step.ExecutionMode == ModeIterative {
			if err := validateIterative(c.Name, step); err != nil {
				return err
			}
		} else if step.Iterative != nil {
			return &ConfigError{Pipeline: c.Name, Reason: fmt.Sprintf("step %q: iterative_config is only allowed with execution_mode iterative", step.Name())}
		}
	}

	for i := range c.Steps {
		for _, dep := range c.Steps[i].DependsOn {
			if _, ok := seen[dep]; !ok {
				return &ConfigError{Pipeline: c.Name, Reason: fmt.Sprintf("step %q depends on unknown step %q", c.Steps[i].Name(), dep)}
			}
		}
	}

	return detectCycles(c)
}

func validateIterative(pipeline string, step *Step) error {
	ic := step.Iterative
	if ic == nil {
		return &ConfigError{Pipeline: pipeline, Reason: fmt.Sprintf("step %q: iterative_config is required for iterative steps", step.Name())}
	}
	if ic.ImproverAgent == "" || ic.EvaluatorAgent == "" {
		return &ConfigError{Pipeline: pipeline, Reason: fmt.Sprintf("step %q: improver_agent and evaluator_agent are required", step.Name())}
	}
	if ic.MaxIterations < 1 {
		return &ConfigError{Pipeline: pipeline, Reason: fmt.Sprintf("step %q: max_iterations must be >= 1", step.Name())}
	}
	if ic.QualityThreshold < 0 || ic.QualityThreshold > 100 {
		return &ConfigError{Pipeline: pipeline, Reason: fmt.Sprintf("step %q: quality_threshold must be between 0 and 100", step.Name())}
	}
	if ic.TimeoutPerIteration < 0 {
		return &ConfigError{Pipeline: pipeline, Reason: fmt.Sprintf("step %q: timeout_per_iteration must not be negative", step.Name())}
	}
	return nil
}

// detectCycles runs a depth-first traversal with a visiting marker set.
func detectCycles(c *Config) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(c.Steps))
	deps := make(map[string][]string, len(c.Steps))
	for i := range c.Steps {
		deps[c.Steps[i].Name()] = c.Steps[i].DependsOn
	}

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return &CycleError{Pipeline: c.Name, Step: name}
		}
		state[name] = visiting
		for _, dep := range deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for i := range c.Steps {
		if err := visit(c.Steps[i].Name()); err != nil {
			return err
		}
	}
	return nil
}

// ExecutionOrder computes the static step groups for a valid config:
// each group is the maximal set of steps whose prerequisites are all in
// earlier groups. The engine recomputes groups dynamically during a run;
// this static view backs the pipeline info endpoint.
func ExecutionOrder(c *Config) [][]string {
	placed := make(map[string]struct{}, len(c.Steps))
	var groups [][]string
	for len(placed) < len(c.Steps) {
		var group []string
		for i := range c.Steps {
			step := &c.Steps[i]
			if _, ok := placed[step.Name()]; ok {
				continue
			}
			ready := true
			for _, dep := range step.DependsOn {
				if _, ok := placed[dep]; !ok {
					ready = false
					break
				}
			}
			if ready {
				group = append(group, step.Name())
			}
		}
		if len(group) == 0 {
			// unreachable for validated configs
			break
		}
		for _, name := range group {
			placed[name] = struct{}{}
		}
		groups = append(groups, group)
	}
	return groups
}
