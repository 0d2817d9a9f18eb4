package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/agent-forge/agent-forge/internal/domain/agent"
)

// ConditionError reports a run_if expression that could not be parsed or
// evaluated. Gating treats it as non-fatal: the step runs anyway.
type ConditionError struct {
	Expression string
	Err        error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("run_if %q: %v", e.Expression, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// evaluateRunIf decides whether a gated step runs. Empty expressions and
// the bare "true"/"false" literals short-circuit without parsing.
// Expressions see the input payload fields at the top level and prior
// step results under "steps.<name>".
func evaluateRunIf(expression string, input json.RawMessage, results agent.Context) (bool, error) {
	cond := strings.TrimSpace(expression)
	if cond == "" {
		return true, nil
	}
	switch strings.ToLower(cond) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	expr, err := govaluate.NewEvaluableExpression(cond)
	if err != nil {
		return false, &ConditionError{Expression: cond, Err: err}
	}
	out, err := expr.Evaluate(runIfParams(input, results))
	if err != nil {
		return false, &ConditionError{Expression: cond, Err: err}
	}
	verdict, ok := out.(bool)
	if !ok {
		return false, &ConditionError{Expression: cond, Err: fmt.Errorf("expression yields %T, not boolean", out)}
	}
	return verdict, nil
}

// runIfParams builds the parameter table for one evaluation. Nested
// object fields flatten to dotted keys, reachable with govaluate's
// [a.b] accessor syntax.
func runIfParams(input json.RawMessage, results agent.Context) map[string]interface{} {
	params := make(map[string]interface{})
	addDocument(params, "", input)
	for step, res := range results {
		addDocument(params, "steps."+step, res)
	}
	return params
}

// addDocument decodes one JSON document under a key prefix. A scalar or
// array result (an agent may return a bare string) lands at the prefix
// itself; object fields flatten below it.
func addDocument(params map[string]interface{}, prefix string, doc json.RawMessage) {
	if len(doc) == 0 {
		return
	}
	var val interface{}
	if err := json.Unmarshal(doc, &val); err != nil {
		return
	}
	flatten(params, prefix, val)
}

func flatten(params map[string]interface{}, key string, val interface{}) {
	obj, ok := val.(map[string]interface{})
	if !ok {
		if key != "" {
			params[key] = val
		}
		return
	}
	for field, v := range obj {
		child := field
		if key != "" {
			child = key + "." + field
		}
		flatten(params, child, v)
	}
}
