package agents

import (
	"github.com/rs/zerolog"

	"github.com/agent-forge/agent-forge/internal/domain/agent"
)

// Registered agent type names.
const (
	TypePythonCoder  = "python_coder"
	TypeCodeReviewer = "code_reviewer"
)

// RegisterAll registers the built-in agent catalog against the given
// registry, all backed by the same completer.
func RegisterAll(reg *agent.Registry, client Completer, logger zerolog.Logger) error {
	coder := NewCoder(client, agent.ConfigCoding, logger)
	if err := reg.Register(coder.Descriptor(), func(class agent.ConfigClass) (agent.Agent, error) {
		return NewCoder(client, class, logger), nil
	}); err != nil {
		return err
	}

	reviewer := NewReviewer(client, agent.ConfigReview, logger)
	if err := reg.Register(reviewer.Descriptor(), func(class agent.ConfigClass) (agent.Agent, error) {
		return NewReviewer(client, class, logger), nil
	}); err != nil {
		return err
	}
	return nil
}
