package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds service configuration.
type Config struct {
	ServerAddr         string
	PipelineDir        string
	BackendURL         string
	EventHistoryCap    int
	DefaultStepTimeout time.Duration
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	return &Config{
		ServerAddr:         getenv("SERVER_ADDR", "0.0.0.0:8080"),
		PipelineDir:        getenv("PIPELINE_DIR", "configs/pipelines"),
		BackendURL:         os.Getenv("BACKEND_URL"),
		EventHistoryCap:    parseInt(os.Getenv("EVENT_HISTORY_CAP"), 1000),
		DefaultStepTimeout: parseDuration(os.Getenv("DEFAULT_STEP_TIMEOUT"), 5*time.Minute),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:        os.Getenv("OPENAI_MODEL"),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}
