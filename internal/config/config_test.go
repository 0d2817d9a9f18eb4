package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"SERVER_ADDR", "PIPELINE_DIR", "BACKEND_URL", "EVENT_HISTORY_CAP",
		"DEFAULT_STEP_TIMEOUT", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr)
	assert.Equal(t, "configs/pipelines", cfg.PipelineDir)
	assert.Empty(t, cfg.BackendURL)
	assert.Equal(t, 1000, cfg.EventHistoryCap)
	assert.Equal(t, 5*time.Minute, cfg.DefaultStepTimeout)
	assert.Empty(t, cfg.OpenAIAPIKey)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", "127.0.0.1:9090")
	t.Setenv("PIPELINE_DIR", "/etc/forge/pipelines")
	t.Setenv("BACKEND_URL", "http://backend:8000")
	t.Setenv("EVENT_HISTORY_CAP", "50")
	t.Setenv("DEFAULT_STEP_TIMEOUT", "45s")
	t.Setenv("OPENAI_MODEL", "gpt-4o")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.ServerAddr)
	assert.Equal(t, "/etc/forge/pipelines", cfg.PipelineDir)
	assert.Equal(t, "http://backend:8000", cfg.BackendURL)
	assert.Equal(t, 50, cfg.EventHistoryCap)
	assert.Equal(t, 45*time.Second, cfg.DefaultStepTimeout)
	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("EVENT_HISTORY_CAP", "lots")
	t.Setenv("DEFAULT_STEP_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.EventHistoryCap)
	assert.Equal(t, 5*time.Minute, cfg.DefaultStepTimeout)
}
