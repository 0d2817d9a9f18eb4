package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-forge/agent-forge/internal/domain/agent"
)

func validConfig() *Config {
	return &Config{
		Name:            "test",
		FailureStrategy: FailureStop,
		Steps: []Step{
			{AgentType: "analyst", ExecutionMode: ModeSequential},
			{AgentType: "coder", ExecutionMode: ModeSequential, DependsOn: []string{"analyst"}},
			{AgentType: "reviewer", ExecutionMode: ModeSequential, DependsOn: []string{"coder"}},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		reason string
	}{
		{"missing name", func(c *Config) { c.Name = "" }, "name is required"},
		{"no steps", func(c *Config) { c.Steps = nil }, "at least one step"},
		{"negative parallelism", func(c *Config) { c.MaxParallelSteps = -1 }, "max_parallel_steps"},
		{"bad failure strategy", func(c *Config) { c.FailureStrategy = "retry" }, "failure_strategy"},
		{"missing agent type", func(c *Config) { c.Steps[0].AgentType = "" }, "agent_type is required"},
		{"duplicate step", func(c *Config) { c.Steps[1].AgentType = "analyst" }, "duplicate step"},
		{"missing mode", func(c *Config) { c.Steps[0].ExecutionMode = "" }, "execution_mode is required"},
		{"unknown mode", func(c *Config) { c.Steps[0].ExecutionMode = "batch" }, "unknown execution_mode"},
		{"unknown config type", func(c *Config) { c.Steps[0].ConfigType = agent.ConfigClass("turbo") }, "unknown config_type"},
		{"negative timeout", func(c *Config) { c.Steps[0].TimeoutSeconds = -5 }, "timeout_seconds"},
		{"unknown dependency", func(c *Config) { c.Steps[2].DependsOn = []string{"ghost"} }, "unknown step"},
		{"stray iterative config", func(c *Config) { c.Steps[0].Iterative = &IterativeConfig{} }, "only allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := Validate(c)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Reason, tt.reason)
		})
	}
}

func TestValidate_Cycle(t *testing.T) {
	c := validConfig()
	c.Steps[0].DependsOn = []string{"reviewer"}

	err := Validate(c)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, "test", cycleErr.Pipeline)
	assert.NotEmpty(t, cycleErr.Step)
}

func TestValidate_SelfCycle(t *testing.T) {
	c := validConfig()
	c.Steps[1].DependsOn = []string{"coder"}

	var cycleErr *CycleError
	require.ErrorAs(t, Validate(c), &cycleErr)
	assert.Equal(t, "coder", cycleErr.Step)
}

func TestValidate_Iterative(t *testing.T) {
	base := func() *Config {
		return &Config{
			Name: "iter",
			Steps: []Step{{
				AgentType:     "loop",
				ExecutionMode: ModeIterative,
				Iterative: &IterativeConfig{
					ImproverAgent:    "coder",
					EvaluatorAgent:   "reviewer",
					MaxIterations:    3,
					QualityThreshold: 85,
				},
			}},
		}
	}
	require.NoError(t, Validate(base()))

	t.Run("missing block", func(t *testing.T) {
		c := base()
		c.Steps[0].Iterative = nil
		var cfgErr *ConfigError
		require.ErrorAs(t, Validate(c), &cfgErr)
		assert.Contains(t, cfgErr.Reason, "iterative_config is required")
	})

	t.Run("missing agents", func(t *testing.T) {
		c := base()
		c.Steps[0].Iterative.EvaluatorAgent = ""
		var cfgErr *ConfigError
		require.ErrorAs(t, Validate(c), &cfgErr)
		assert.Contains(t, cfgErr.Reason, "evaluator_agent")
	})

	t.Run("zero iterations", func(t *testing.T) {
		c := base()
		c.Steps[0].Iterative.MaxIterations = 0
		var cfgErr *ConfigError
		require.ErrorAs(t, Validate(c), &cfgErr)
		assert.Contains(t, cfgErr.Reason, "max_iterations")
	})

	t.Run("threshold out of range", func(t *testing.T) {
		c := base()
		c.Steps[0].Iterative.QualityThreshold = 120
		var cfgErr *ConfigError
		require.ErrorAs(t, Validate(c), &cfgErr)
		assert.Contains(t, cfgErr.Reason, "quality_threshold")
	})
}

func TestExecutionOrder(t *testing.T) {
	c := &Config{
		Name: "fan",
		Steps: []Step{
			{AgentType: "a", ExecutionMode: ModeSequential},
			{AgentType: "b", ExecutionMode: ModeParallel, DependsOn: []string{"a"}},
			{AgentType: "c", ExecutionMode: ModeParallel, DependsOn: []string{"a"}},
			{AgentType: "d", ExecutionMode: ModeSequential, DependsOn: []string{"b", "c"}},
		},
	}
	require.NoError(t, Validate(c))

	groups := ExecutionOrder(c)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"a"}, groups[0])
	assert.ElementsMatch(t, []string{"b", "c"}, groups[1])
	assert.Equal(t, []string{"d"}, groups[2])
}

func TestParse_Defaults(t *testing.T) {
	data := []byte(`
name: sample
steps:
  - agent_type: coder
    execution_mode: sequential
`)
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "sample", cfg.Name)
	assert.Equal(t, FailureStop, cfg.FailureStrategy)
	require.Len(t, cfg.Steps, 1)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("name: [broken"))
	require.Error(t, err)

	_, err = Parse([]byte("name: empty\nsteps: []\n"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestGetStepAndNames(t *testing.T) {
	c := validConfig()
	assert.Equal(t, []string{"analyst", "coder", "reviewer"}, c.StepNames())
	require.NotNil(t, c.GetStep("coder"))
	assert.Nil(t, c.GetStep("ghost"))
}
