package agent

import "fmt"

// DuplicateAgentError is returned when a type name is registered twice.
type DuplicateAgentError struct {
	TypeName string
}

func (e *DuplicateAgentError) Error() string {
	return fmt.Sprintf("agent type already registered: %s", e.TypeName)
}

// UnknownAgentError is returned when a referenced type name is not
// registered.
type UnknownAgentError struct {
	TypeName string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent type: %s", e.TypeName)
}

// CircularDependencyError names the agent type at which a dependency
// cycle was detected.
type CircularDependencyError struct {
	TypeName string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular agent dependency detected at: %s", e.TypeName)
}
