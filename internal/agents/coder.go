package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agent-forge/agent-forge/internal/domain/agent"
)

const coderSystemPrompt = `You are a Python coding agent that converts structured requirements into high-quality, functional Python code.

Your responsibilities:
1. Convert requirements into clean, maintainable Python code
2. Follow Python best practices (PEP 8, type hints, docstrings)
3. Implement proper error handling and logging
4. Create modular, reusable code with appropriate design patterns

Code standards:
- Use type hints for all function parameters and return values
- Include docstrings (Google style)
- Follow PEP 8 style guidelines
- Use meaningful variable and function names

Always provide a complete, runnable code module with proper imports. Respond with the code only.`

// Coder generates Python code from a textual request or structured
// requirements.
type Coder struct {
	client Completer
	class  agent.ConfigClass
	logger zerolog.Logger
}

func NewCoder(client Completer, class agent.ConfigClass, logger zerolog.Logger) *Coder {
	return &Coder{
		client: client,
		class:  class,
		logger: logger.With().Str("agent", TypePythonCoder).Logger(),
	}
}

func (c *Coder) Descriptor() agent.Descriptor {
	return agent.Descriptor{
		TypeName:    TypePythonCoder,
		Name:        "Python Coder",
		Description: "Generates Python code from structured requirements",
		Capabilities: []string{
			"Python code generation",
			"Type hints and documentation",
			"Error handling and logging",
			"PEP 8 compliance",
		},
		ConfigClass: agent.ConfigCoding,
		Version:     "2.0.0",
	}
}

func (c *Coder) ValidateInput(ctx context.Context, payload json.RawMessage) (*agent.ValidationResult, error) {
	result := &agent.ValidationResult{IsValid: true}

	text := strings.TrimSpace(extractText(payload, "requirements", "specifications", "request"))
	if text == "" {
		result.IsValid = false
		result.Warnings = append(result.Warnings, "Input cannot be empty")
		return result, nil
	}
	if len(text) < 20 {
		result.Warnings = append(result.Warnings, "Input seems very short for meaningful code generation")
	}

	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		result.Suggestions = append(result.Suggestions, "Consider providing more structured requirements or function specifications")
	} else if !hasAnyKey(payload, "requirements", "specifications") {
		result.Suggestions = append(result.Suggestions, "Consider including 'requirements' or 'specifications' key in input data")
	}
	return result, nil
}

func (c *Coder) Process(ctx context.Context, payload json.RawMessage, execCtx agent.Context) (*agent.ProcessResult, error) {
	request := extractText(payload, "requirements", "specifications", "request", "original_request")

	userPrompt := request
	// The iterative loop hands back the prior draft plus review feedback.
	if hasAnyKey(payload, "current_draft") {
		draft := extractText(payload, "current_draft")
		fb := extractText(payload, "feedback")
		original := extractText(payload, "original_request")
		userPrompt = fmt.Sprintf(
			"Original request:\n%s\n\nYour previous draft:\n%s\n\nReview feedback to address:\n%s\n\nProduce an improved version of the code.",
			original, draft, fb)
	}

	raw, err := c.client.Complete(ctx, c.class, coderSystemPrompt, userPrompt)
	if err != nil {
		c.logger.Error().Err(err).Msg("code generation failed")
		return &agent.ProcessResult{Success: false, Error: err.Error()}, nil
	}

	code := stripCodeFences(raw)
	out, err := json.Marshal(map[string]string{
		"code":     code,
		"language": "python",
	})
	if err != nil {
		return nil, err
	}
	return &agent.ProcessResult{Success: true, Result: out}, nil
}
