package agents

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agent-forge/agent-forge/internal/domain/agent"
	"github.com/agent-forge/agent-forge/internal/domain/feedback"
)

const reviewerSystemPrompt = `You are a code review agent. Review the provided Python code and respond with a JSON object only, no prose, with this shape:

{
  "quality_score": <0-100>,
  "quality_metrics": {
    "complexity_score": <0-100>,
    "maintainability_score": <0-100>,
    "readability_score": <0-100>,
    "test_coverage": <0-100>,
    "performance_score": <0-100>,
    "security_score": <0-100>
  },
  "issues": [{"type": "code_quality|functionality|performance|security|maintainability|style", "severity": "critical|high|medium|low|info", "message": "...", "suggestion": "..."}],
  "suggestions": ["..."],
  "positive_aspects": ["..."]
}

Be specific and actionable. Flag security problems as critical.`

var (
	positiveKeywords = []string{"good", "excellent", "well", "clear", "efficient", "secure"}
	negativeKeywords = []string{"bad", "poor", "unclear", "inefficient", "insecure", "complex"}
)

// Reviewer evaluates generated code and produces structured feedback.
type Reviewer struct {
	client Completer
	class  agent.ConfigClass
	logger zerolog.Logger
}

func NewReviewer(client Completer, class agent.ConfigClass, logger zerolog.Logger) *Reviewer {
	return &Reviewer{
		client: client,
		class:  class,
		logger: logger.With().Str("agent", TypeCodeReviewer).Logger(),
	}
}

func (r *Reviewer) Descriptor() agent.Descriptor {
	return agent.Descriptor{
		TypeName:    TypeCodeReviewer,
		Name:        "Code Reviewer",
		Description: "Reviews Python code and produces structured quality feedback",
		Capabilities: []string{
			"Code quality assessment",
			"Security vulnerability detection",
			"Performance optimization suggestions",
			"Style and maintainability review",
		},
		ConfigClass:  agent.ConfigReview,
		Dependencies: []string{TypePythonCoder},
		Version:      "2.0.0",
	}
}

func (r *Reviewer) ValidateInput(ctx context.Context, payload json.RawMessage) (*agent.ValidationResult, error) {
	result := &agent.ValidationResult{IsValid: true}

	code := strings.TrimSpace(extractCode(payload))
	if code == "" {
		result.IsValid = false
		result.Warnings = append(result.Warnings, "Input cannot be empty")
		return result, nil
	}
	if !strings.Contains(code, "def ") && !strings.Contains(code, "import ") && !strings.Contains(code, "class ") {
		result.Warnings = append(result.Warnings, "Input doesn't appear to contain Python code")
	}
	if len(code) < 50 {
		result.Warnings = append(result.Warnings, "Code seems very short for meaningful review")
	}
	if strings.Contains(code, "TODO") || strings.Contains(code, "FIXME") {
		result.Suggestions = append(result.Suggestions, "Code contains TODO/FIXME comments that should be addressed")
	}
	if !hasAnyKey(payload, "code", "source", "current_code", "current_draft", "draft") {
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			result.Suggestions = append(result.Suggestions, "Consider including 'code' or 'source' key in input data")
		}
	}
	return result, nil
}

func (r *Reviewer) Process(ctx context.Context, payload json.RawMessage, execCtx agent.Context) (*agent.ProcessResult, error) {
	code := extractCode(payload)

	raw, err := r.client.Complete(ctx, r.class, reviewerSystemPrompt, code)
	if err != nil {
		r.logger.Error().Err(err).Msg("review failed")
		return &agent.ProcessResult{Success: false, Error: err.Error()}, nil
	}

	fb := r.parseFeedback(raw)
	out, err := json.Marshal(fb)
	if err != nil {
		return nil, err
	}
	return &agent.ProcessResult{Success: true, Result: out, Feedback: fb}, nil
}

// extractCode digs the code to review out of the payload. The iterative
// loop wraps drafts in an object; direct calls may pass a bare string.
func extractCode(payload json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err == nil {
		if draft, ok := obj["draft"]; ok {
			return extractText(draft, "code", "current_code", "source")
		}
	}
	return extractText(payload, "current_code", "code", "source", "current_draft")
}

// parseFeedback prefers a strict JSON verdict from the model and falls
// back to keyword scoring of free-form text.
func (r *Reviewer) parseFeedback(raw string) *feedback.StructuredFeedback {
	cleaned := stripCodeFences(raw)
	var fb feedback.StructuredFeedback
	if err := json.Unmarshal([]byte(cleaned), &fb); err == nil && fb.QualityScore > 0 {
		fb.ReviewerAgent = TypeCodeReviewer
		fb.CreatedAt = time.Now().UTC()
		return &fb
	}
	return scoreTextFeedback(raw)
}

// scoreTextFeedback turns free-form review prose into structured
// feedback: base score 70, +5 per positive keyword, -10 per negative,
// clamped to 0-100, with suggestion-like lines carried over.
func scoreTextFeedback(text string) *feedback.StructuredFeedback {
	lower := strings.ToLower(text)

	score := 70.0
	for _, kw := range positiveKeywords {
		if strings.Contains(lower, kw) {
			score += 5
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			score -= 10
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	var suggestions []string
	for _, line := range strings.Split(text, "\n") {
		l := strings.ToLower(line)
		if strings.Contains(l, "suggest") || strings.Contains(l, "recommend") ||
			strings.Contains(l, "should") || strings.Contains(l, "could") ||
			strings.Contains(l, "improve") {
			suggestions = append(suggestions, strings.TrimSpace(line))
			if len(suggestions) == 5 {
				break
			}
		}
	}

	coverage := score - 20
	if coverage < 0 {
		coverage = 0
	}
	return &feedback.StructuredFeedback{
		QualityScore: score,
		Metrics: feedback.QualityMetrics{
			Complexity:      score,
			Maintainability: score,
			Readability:     score,
			TestCoverage:    coverage,
			Performance:     score,
			Security:        score,
		},
		Suggestions:   suggestions,
		ReviewerAgent: TypeCodeReviewer,
		CreatedAt:     time.Now().UTC(),
	}
}
