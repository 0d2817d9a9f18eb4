package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agent-forge/agent-forge/internal/domain/agent"
	"github.com/agent-forge/agent-forge/internal/domain/feedback"
	"github.com/agent-forge/agent-forge/internal/domain/pipeline"
	"github.com/agent-forge/agent-forge/internal/infrastructure/eventbus"
)

// defaultFeedbackScore is used when an evaluator's output cannot be
// parsed into structured feedback.
const defaultFeedbackScore = 50

// iterativeInput is what the improver receives on every iteration after
// the first.
type iterativeInput struct {
	OriginalRequest json.RawMessage `json:"original_request"`
	CurrentDraft    json.RawMessage `json:"current_draft"`
	Feedback        string          `json:"feedback"`
	Iteration       int             `json:"iteration"`
}

// evaluatorInput is what the evaluator receives each iteration.
type evaluatorInput struct {
	Draft            json.RawMessage              `json:"draft"`
	Iteration        int                          `json:"iteration"`
	PreviousFeedback *feedback.StructuredFeedback `json:"previous_feedback,omitempty"`
}

// invokeIterative drives the generate/evaluate loop for one iterative
// step and packages the loop result as the step outcome.
func (e *Engine) invokeIterative(agents map[agentKey]agent.Agent, step *pipeline.Step, input json.RawMessage, execCtx agent.Context, correlationID string) stepOutcome {
	result := e.runIterativeLoop(agents, step, input, execCtx, correlationID)

	if result.FinalOutput == nil {
		reason := "loop produced no output"
		if n := len(result.Iterations); n > 0 && result.Iterations[n-1].ErrorMessage != "" {
			reason = result.Iterations[n-1].ErrorMessage
		}
		return stepOutcome{name: step.Name(), err: &StepExecutionError{Step: step.Name(), Reason: reason}}
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return stepOutcome{name: step.Name(), err: &StepExecutionError{Step: step.Name(), Reason: err.Error()}}
	}
	return stepOutcome{name: step.Name(), result: encoded}
}

// runIterativeLoop executes up to max_iterations improve/evaluate cycles.
// The loop ends early when the threshold is met or either collaborator
// fails; an evaluator failure keeps the last successful draft.
func (e *Engine) runIterativeLoop(agents map[agentKey]agent.Agent, step *pipeline.Step, input json.RawMessage, execCtx agent.Context, correlationID string) *feedback.LoopResult {
	ic := step.Iterative
	improver := e.agentFor(agents, ic.ImproverAgent, "")
	evaluator := e.agentFor(agents, ic.EvaluatorAgent, "")
	timeout := time.Duration(ic.TimeoutPerIteration) * time.Second
	if timeout <= 0 {
		timeout = e.defaultStepTimeout
	}

	result := &feedback.LoopResult{
		LoopName:         step.Name(),
		QualityThreshold: ic.QualityThreshold,
	}
	start := time.Now()
	defer func() {
		result.TotalIterations = len(result.Iterations)
		result.TotalDuration = time.Since(start)
	}()

	current := input
	var lastFeedback *feedback.StructuredFeedback

	for iter := 1; iter <= ic.MaxIterations; iter++ {
		iterStart := time.Now()

		draftRes, err := invokeWithTimeout(improver, current, execCtx, timeout)
		if err != nil {
			result.Iterations = append(result.Iterations, feedback.IterationResult{
				Number:       iter,
				AgentType:    ic.ImproverAgent,
				Duration:     time.Since(iterStart),
				ErrorMessage: fmt.Sprintf("improver failed: %v", err),
			})
			e.logger.Warn().Err(err).
				Str("loop", step.Name()).
				Int("iteration", iter).
				Msg("improver failed; ending loop")
			break
		}
		draft := draftRes.Result

		evalPayload, _ := json.Marshal(evaluatorInput{
			Draft:            draft,
			Iteration:        iter,
			PreviousFeedback: lastFeedback,
		})
		evalRes, err := invokeWithTimeout(evaluator, evalPayload, execCtx, timeout)
		if err != nil {
			// The draft is still usable; downgrade rather than fail.
			result.EvaluatorFailed = true
			result.FinalOutput = draft
			result.Iterations = append(result.Iterations, feedback.IterationResult{
				Number:       iter,
				AgentType:    ic.ImproverAgent,
				Output:       draft,
				Duration:     time.Since(iterStart),
				ErrorMessage: fmt.Sprintf("evaluator failed: %v", err),
			})
			e.logger.Warn().Err(err).
				Str("loop", step.Name()).
				Int("iteration", iter).
				Msg("evaluator failed; keeping last draft")
			break
		}

		fb := extractFeedback(evalRes, iter, ic.EvaluatorAgent)
		result.Iterations = append(result.Iterations, feedback.IterationResult{
			Number:    iter,
			AgentType: ic.ImproverAgent,
			Output:    draft,
			Feedback:  fb,
			Duration:  time.Since(iterStart),
			Success:   true,
		})
		result.ImprovementTrend = append(result.ImprovementTrend, fb.QualityScore)
		result.FinalOutput = draft
		result.FinalQualityScore = fb.QualityScore

		e.publish(eventbus.TypeLoopIteration, correlationID, map[string]any{
			"loop":          step.Name(),
			"iteration":     iter,
			"quality_score": fb.QualityScore,
			"threshold":     ic.QualityThreshold,
		})

		if fb.MeetsThreshold(ic.QualityThreshold) {
			result.ThresholdMet = true
			break
		}
		lastFeedback = fb

		if iter < ic.MaxIterations {
			current, _ = json.Marshal(iterativeInput{
				OriginalRequest: input,
				CurrentDraft:    draft,
				Feedback:        feedback.FormatForAgent(fb),
				Iteration:       iter + 1,
			})
		}
	}

	return result
}

// invokeWithTimeout calls one collaborator with its own deadline and
// returns the raw result on success.
func invokeWithTimeout(ag agent.Agent, payload json.RawMessage, execCtx agent.Context, timeout time.Duration) (*agent.ProcessResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := ag.Process(ctx, payload, execCtx)
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("iteration timeout after %s", timeout)
	}
	if err != nil {
		return nil, err
	}
	if res == nil || !res.Success {
		if res != nil && res.Error != "" {
			return nil, fmt.Errorf("%s", res.Error)
		}
		return nil, fmt.Errorf("collaborator reported failure")
	}
	return res, nil
}

// extractFeedback pulls structured feedback out of an evaluator result,
// falling back to a neutral default score when nothing parseable is
// present.
func extractFeedback(res *agent.ProcessResult, iteration int, evaluatorAgent string) *feedback.StructuredFeedback {
	if res.Feedback != nil {
		fb := *res.Feedback
		fb.IterationNumber = iteration
		if fb.ReviewerAgent == "" {
			fb.ReviewerAgent = evaluatorAgent
		}
		if fb.CreatedAt.IsZero() {
			fb.CreatedAt = time.Now().UTC()
		}
		return &fb
	}

	if len(res.Result) > 0 {
		// A present quality_score field is what marks the document as
		// feedback; a score of zero is a legitimate verdict.
		var marker struct {
			QualityScore *float64 `json:"quality_score"`
		}
		var fb feedback.StructuredFeedback
		if json.Unmarshal(res.Result, &marker) == nil && marker.QualityScore != nil &&
			json.Unmarshal(res.Result, &fb) == nil {
			fb.IterationNumber = iteration
			if fb.ReviewerAgent == "" {
				fb.ReviewerAgent = evaluatorAgent
			}
			if fb.CreatedAt.IsZero() {
				fb.CreatedAt = time.Now().UTC()
			}
			return &fb
		}
	}

	return &feedback.StructuredFeedback{
		QualityScore:    defaultFeedbackScore,
		Suggestions:     []string{"unable to parse detailed feedback from evaluator output"},
		IterationNumber: iteration,
		ReviewerAgent:   evaluatorAgent,
		CreatedAt:       time.Now().UTC(),
	}
}
