package engine

import (
	"strings"

	"github.com/agent-forge/agent-forge/internal/domain/agent"
)

var techKeywords = []string{
	"python", "web", "api", "database", "gui", "cli", "script", "application", "tool",
}

// ValidateInput applies lightweight heuristics to a user request before
// execution. It never blocks execution except for empty input.
func ValidateInput(userInput string) *agent.ValidationResult {
	result := &agent.ValidationResult{IsValid: true}

	trimmed := strings.TrimSpace(userInput)
	if trimmed == "" {
		result.IsValid = false
		result.Warnings = append(result.Warnings, "Input cannot be empty")
		return result
	}

	if len(trimmed) < 10 {
		result.Warnings = append(result.Warnings, "Input is very short. Consider providing more details for better results.")
	}
	if len(userInput) > 5000 {
		result.Warnings = append(result.Warnings, "Input is very long. Consider breaking it down into smaller, more focused requests.")
	}

	lower := strings.ToLower(userInput)

	if !strings.Contains(lower, "create") && !strings.Contains(lower, "build") && !strings.Contains(lower, "develop") {
		result.Suggestions = append(result.Suggestions, "Consider starting with action words like 'Create', 'Build', or 'Develop' to clarify your intent.")
	}

	hasTech := false
	for _, kw := range techKeywords {
		if strings.Contains(lower, kw) {
			hasTech = true
			break
		}
	}
	if !hasTech {
		result.Suggestions = append(result.Suggestions, "Consider mentioning the type of application or technology you want to use (e.g., web app, CLI tool, Python script).")
	}

	if len(strings.Fields(lower)) < 5 {
		result.Suggestions = append(result.Suggestions, "Provide more details about the functionality you want to implement.")
	}

	return result
}
