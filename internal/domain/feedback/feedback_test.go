package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualityMetrics_Overall(t *testing.T) {
	m := QualityMetrics{
		Complexity:      60,
		Maintainability: 60,
		Readability:     60,
		TestCoverage:    60,
		Performance:     60,
		Security:        60,
	}
	assert.InDelta(t, 60.0, m.Overall(), 0.001)
}

func TestStructuredFeedback_MeetsThreshold(t *testing.T) {
	fb := &StructuredFeedback{QualityScore: 85}
	assert.True(t, fb.MeetsThreshold(85))
	assert.True(t, fb.MeetsThreshold(80))
	assert.False(t, fb.MeetsThreshold(90))
}

func TestStructuredFeedback_CriticalIssues(t *testing.T) {
	fb := &StructuredFeedback{
		Issues: []Issue{
			{Severity: SeverityCritical, Message: "sql injection"},
			{Severity: SeverityLow, Message: "naming"},
			{Severity: SeverityHigh, Message: "no error handling"},
			{Severity: SeverityInfo, Message: "style"},
		},
	}
	critical := fb.CriticalIssues()
	require.Len(t, critical, 2)
	assert.Equal(t, "sql injection", critical[0].Message)
	assert.Equal(t, "no error handling", critical[1].Message)
}

func TestLoopResult_QualityImprovement(t *testing.T) {
	r := &LoopResult{ImprovementTrend: []float64{50, 65, 80}}
	assert.InDelta(t, 30.0, r.QualityImprovement(), 0.001)

	single := &LoopResult{ImprovementTrend: []float64{70}}
	assert.Zero(t, single.QualityImprovement())
}

func TestFormatForAgent(t *testing.T) {
	fb := &StructuredFeedback{
		QualityScore: 72.5,
		Metrics: QualityMetrics{
			Complexity:      80,
			Maintainability: 70,
			Readability:     75,
			TestCoverage:    40,
			Performance:     85,
			Security:        60,
		},
		Issues: []Issue{
			{Type: IssueSecurity, Severity: SeverityCritical, Message: "eval on user input", Suggestion: "use ast.literal_eval"},
		},
		Suggestions:     []string{"add type hints"},
		PositiveAspects: []string{"clear naming"},
	}

	text := FormatForAgent(fb)
	assert.Contains(t, text, "72.5/100")
	assert.Contains(t, text, "eval on user input")
	assert.Contains(t, text, "use ast.literal_eval")
	assert.Contains(t, text, "add type hints")
	assert.Contains(t, text, "clear naming")
	assert.Contains(t, text, "security: 60.0/100")
}
