package feedback

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// IssueType classifies the area a review issue concerns.
type IssueType string

const (
	IssueCodeQuality     IssueType = "code_quality"
	IssueFunctionality   IssueType = "functionality"
	IssuePerformance     IssueType = "performance"
	IssueSecurity        IssueType = "security"
	IssueMaintainability IssueType = "maintainability"
	IssueStyle           IssueType = "style"
)

// Severity ranks review issues.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Issue is a single itemized problem reported by an evaluator.
type Issue struct {
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	LineNumber  int       `json:"line_number,omitempty"`
	CodeSnippet string    `json:"code_snippet,omitempty"`
	Suggestion  string    `json:"suggestion,omitempty"`
}

// QualityMetrics holds per-dimension scores, each 0-100.
type QualityMetrics struct {
	Complexity      float64 `json:"complexity_score"`
	Maintainability float64 `json:"maintainability_score"`
	Readability     float64 `json:"readability_score"`
	TestCoverage    float64 `json:"test_coverage"`
	Performance     float64 `json:"performance_score"`
	Security        float64 `json:"security_score"`
}

// Overall averages the individual metric dimensions.
func (m QualityMetrics) Overall() float64 {
	sum := m.Complexity + m.Maintainability + m.Readability +
		m.TestCoverage + m.Performance + m.Security
	return sum / 6
}

// StructuredFeedback is one evaluator verdict for one loop iteration.
// Instances are never mutated after creation.
type StructuredFeedback struct {
	QualityScore    float64        `json:"quality_score"`
	Metrics         QualityMetrics `json:"quality_metrics"`
	Issues          []Issue        `json:"issues,omitempty"`
	Suggestions     []string       `json:"suggestions,omitempty"`
	PositiveAspects []string       `json:"positive_aspects,omitempty"`
	IterationNumber int            `json:"iteration_number"`
	ReviewerAgent   string         `json:"reviewer_agent,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// MeetsThreshold reports whether the score reaches the given threshold.
func (f *StructuredFeedback) MeetsThreshold(threshold float64) bool {
	return f.QualityScore >= threshold
}

// CriticalIssues returns only critical and high severity issues.
func (f *StructuredFeedback) CriticalIssues() []Issue {
	var out []Issue
	for _, issue := range f.Issues {
		if issue.Severity == SeverityCritical || issue.Severity == SeverityHigh {
			out = append(out, issue)
		}
	}
	return out
}

// IterationResult records one generate/evaluate cycle of the loop.
type IterationResult struct {
	Number       int                 `json:"iteration_number"`
	AgentType    string              `json:"agent_type"`
	Output       json.RawMessage     `json:"output,omitempty"`
	Feedback     *StructuredFeedback `json:"feedback,omitempty"`
	Duration     time.Duration       `json:"duration_ns"`
	Success      bool                `json:"success"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// LoopResult is the complete outcome of an iterative step.
type LoopResult struct {
	LoopName          string            `json:"loop_name"`
	TotalIterations   int               `json:"total_iterations"`
	FinalQualityScore float64           `json:"final_quality_score"`
	QualityThreshold  float64           `json:"quality_threshold"`
	ThresholdMet      bool              `json:"threshold_met"`
	EvaluatorFailed   bool              `json:"evaluator_failed,omitempty"`
	Iterations        []IterationResult `json:"iterations"`
	FinalOutput       json.RawMessage   `json:"final_output,omitempty"`
	TotalDuration     time.Duration     `json:"total_duration_ns"`
	ImprovementTrend  []float64         `json:"improvement_trend,omitempty"`
}

// QualityImprovement is the score delta from the first to the last
// evaluated iteration.
func (r *LoopResult) QualityImprovement() float64 {
	if len(r.ImprovementTrend) < 2 {
		return 0
	}
	return r.ImprovementTrend[len(r.ImprovementTrend)-1] - r.ImprovementTrend[0]
}

// FormatForAgent renders feedback as plain text suitable for inclusion in
// the next generator prompt.
func FormatForAgent(f *StructuredFeedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Code review feedback (quality score: %.1f/100)\n", f.QualityScore)

	if len(f.PositiveAspects) > 0 {
		b.WriteString("\nPositive aspects:\n")
		for _, aspect := range f.PositiveAspects {
			fmt.Fprintf(&b, "- %s\n", aspect)
		}
	}
	if len(f.Issues) > 0 {
		b.WriteString("\nIssues to address:\n")
		for _, issue := range f.Issues {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", issue.Type, issue.Severity, issue.Message)
			if issue.Suggestion != "" {
				fmt.Fprintf(&b, "  suggestion: %s\n", issue.Suggestion)
			}
		}
	}
	if len(f.Suggestions) > 0 {
		b.WriteString("\nGeneral suggestions:\n")
		for _, s := range f.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	m := f.Metrics
	b.WriteString("\nQuality metrics:\n")
	fmt.Fprintf(&b, "- complexity: %.1f/100\n", m.Complexity)
	fmt.Fprintf(&b, "- maintainability: %.1f/100\n", m.Maintainability)
	fmt.Fprintf(&b, "- readability: %.1f/100\n", m.Readability)
	fmt.Fprintf(&b, "- test coverage: %.1f%%\n", m.TestCoverage)
	fmt.Fprintf(&b, "- performance: %.1f/100\n", m.Performance)
	fmt.Fprintf(&b, "- security: %.1f/100\n", m.Security)
	return b.String()
}
