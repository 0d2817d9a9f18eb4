package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-forge/agent-forge/internal/domain/agent"
	"github.com/agent-forge/agent-forge/internal/domain/execution"
	"github.com/agent-forge/agent-forge/internal/domain/feedback"
	"github.com/agent-forge/agent-forge/internal/domain/pipeline"
)

func iterativeConfig(maxIterations int, threshold float64) *pipeline.Config {
	return &pipeline.Config{
		Name: "loop",
		Steps: []pipeline.Step{{
			AgentType:     "code_loop",
			ExecutionMode: pipeline.ModeIterative,
			Iterative: &pipeline.IterativeConfig{
				ImproverAgent:    "coder",
				EvaluatorAgent:   "reviewer",
				MaxIterations:    maxIterations,
				QualityThreshold: threshold,
			},
		}},
	}
}

func evaluatorScoring(scores ...float64) processFunc {
	i := 0
	return func(ctx context.Context, payload json.RawMessage, execCtx agent.Context) (*agent.ProcessResult, error) {
		score := scores[i]
		if i < len(scores)-1 {
			i++
		}
		return &agent.ProcessResult{
			Success:  true,
			Feedback: &feedback.StructuredFeedback{QualityScore: score, Suggestions: []string{"tighten error handling"}},
		}, nil
	}
}

func loopResult(t *testing.T, rec *execution.Record) *feedback.LoopResult {
	t.Helper()
	raw, ok := rec.Results["code_loop"]
	require.True(t, ok, "loop result missing")
	var lr feedback.LoopResult
	require.NoError(t, json.Unmarshal(raw, &lr))
	return &lr
}

func TestIterative_ThresholdMetFirstIteration(t *testing.T) {
	r := newRig(t)
	r.stub(t, "coder", succeedWith(`{"code":"v1"}`))
	r.stub(t, "reviewer", evaluatorScoring(92))
	require.NoError(t, r.engine.Initialize(iterativeConfig(3, 85)))

	rec := r.execute(t, `{"request":"cli tool"}`)

	require.Equal(t, execution.StatusCompleted, rec.Status)
	lr := loopResult(t, rec)
	assert.Equal(t, 1, lr.TotalIterations)
	assert.True(t, lr.ThresholdMet)
	assert.InDelta(t, 92, lr.FinalQualityScore, 0.001)
	assert.JSONEq(t, `{"code":"v1"}`, string(lr.FinalOutput))
}

func TestIterative_ExhaustsMaxIterations(t *testing.T) {
	r := newRig(t)
	coder := r.stub(t, "coder", succeedWith(`{"code":"draft"}`))
	r.stub(t, "reviewer", evaluatorScoring(10, 20, 30))
	require.NoError(t, r.engine.Initialize(iterativeConfig(3, 85)))

	rec := r.execute(t, `{"request":"cli tool"}`)

	require.Equal(t, execution.StatusCompleted, rec.Status)
	lr := loopResult(t, rec)
	assert.Equal(t, 3, lr.TotalIterations)
	assert.False(t, lr.ThresholdMet)
	assert.Equal(t, []float64{10, 20, 30}, lr.ImprovementTrend)
	assert.InDelta(t, 20, lr.QualityImprovement(), 0.001)
	assert.Equal(t, 3, coder.callCount())

	// Iterations after the first carry draft and formatted feedback.
	var second iterativeInput
	require.NoError(t, json.Unmarshal(coder.input(1), &second))
	assert.Equal(t, 2, second.Iteration)
	assert.JSONEq(t, `{"request":"cli tool"}`, string(second.OriginalRequest))
	assert.JSONEq(t, `{"code":"draft"}`, string(second.CurrentDraft))
	assert.Contains(t, second.Feedback, "tighten error handling")
}

func TestIterative_EvaluatorFailureKeepsDraft(t *testing.T) {
	r := newRig(t)
	r.stub(t, "coder", succeedWith(`{"code":"v1"}`))
	r.stub(t, "reviewer", func(ctx context.Context, payload json.RawMessage, execCtx agent.Context) (*agent.ProcessResult, error) {
		return nil, errors.New("reviewer offline")
	})
	require.NoError(t, r.engine.Initialize(iterativeConfig(3, 85)))

	rec := r.execute(t, `{}`)

	require.Equal(t, execution.StatusCompleted, rec.Status)
	lr := loopResult(t, rec)
	assert.True(t, lr.EvaluatorFailed)
	assert.Equal(t, 1, lr.TotalIterations)
	assert.False(t, lr.ThresholdMet)
	assert.JSONEq(t, `{"code":"v1"}`, string(lr.FinalOutput))
	assert.Contains(t, lr.Iterations[0].ErrorMessage, "reviewer offline")
}

func TestIterative_ImproverFailureFailsStep(t *testing.T) {
	r := newRig(t)
	r.stub(t, "coder", failWith("model refused"))
	r.stub(t, "reviewer", evaluatorScoring(90))
	require.NoError(t, r.engine.Initialize(iterativeConfig(3, 85)))

	rec := r.execute(t, `{}`)

	assert.Equal(t, execution.StatusFailed, rec.Status)
	assert.Contains(t, rec.Step("code_loop").Error, "model refused")
}

func TestIterative_UnparseableFeedbackDefaultsScore(t *testing.T) {
	r := newRig(t)
	r.stub(t, "coder", succeedWith(`{"code":"v1"}`))
	r.stub(t, "reviewer", succeedWith(`"looks fine to me"`))
	require.NoError(t, r.engine.Initialize(iterativeConfig(1, 85)))

	rec := r.execute(t, `{}`)

	require.Equal(t, execution.StatusCompleted, rec.Status)
	lr := loopResult(t, rec)
	assert.Equal(t, 1, lr.TotalIterations)
	assert.InDelta(t, defaultFeedbackScore, lr.FinalQualityScore, 0.001)
	require.NotNil(t, lr.Iterations[0].Feedback)
	assert.NotEmpty(t, lr.Iterations[0].Feedback.Suggestions)
}

func TestIterative_ZeroScoreVerdictIsNotDefaulted(t *testing.T) {
	r := newRig(t)
	r.stub(t, "coder", succeedWith(`{"code":"v1"}`))
	r.stub(t, "reviewer", succeedWith(`{"quality_score":0,"suggestions":["does not compile"]}`))
	require.NoError(t, r.engine.Initialize(iterativeConfig(1, 40)))

	rec := r.execute(t, `{}`)

	require.Equal(t, execution.StatusCompleted, rec.Status)
	lr := loopResult(t, rec)
	assert.False(t, lr.ThresholdMet, "a zero verdict must not pass as the neutral default")
	assert.InDelta(t, 0, lr.FinalQualityScore, 0.001)
	require.NotNil(t, lr.Iterations[0].Feedback)
	assert.Equal(t, []string{"does not compile"}, lr.Iterations[0].Feedback.Suggestions)
}

func TestIterative_EvaluatorSeesDraft(t *testing.T) {
	r := newRig(t)
	r.stub(t, "coder", succeedWith(`{"code":"v1"}`))
	reviewer := r.stub(t, "reviewer", evaluatorScoring(95))
	require.NoError(t, r.engine.Initialize(iterativeConfig(2, 85)))

	rec := r.execute(t, `{}`)
	require.Equal(t, execution.StatusCompleted, rec.Status)

	var in evaluatorInput
	require.NoError(t, json.Unmarshal(reviewer.input(0), &in))
	assert.Equal(t, 1, in.Iteration)
	assert.JSONEq(t, `{"code":"v1"}`, string(in.Draft))
	assert.Nil(t, in.PreviousFeedback)
}
