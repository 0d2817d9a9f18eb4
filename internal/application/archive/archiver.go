package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agent-forge/agent-forge/internal/domain/execution"
	"github.com/agent-forge/agent-forge/internal/infrastructure/eventbus"
)

const (
	savePath       = "/api/v1/projects/save-generated"
	maxAttempts    = 3
	requestTimeout = 30 * time.Second
	retryBackoff   = 2 * time.Second
)

// Archiver ships terminal execution records to the project backend over
// HTTP. A failed archive never affects the execution's own status; the
// outcome is reported on the event bus instead.
type Archiver struct {
	backendURL string
	client     *http.Client
	bus        *eventbus.Bus
	backoff    time.Duration
	logger     zerolog.Logger
}

// NewArchiver creates an archiver. An empty backendURL disables it: every
// Archive call becomes a no-op.
func NewArchiver(backendURL string, bus *eventbus.Bus, logger zerolog.Logger) *Archiver {
	return &Archiver{
		backendURL: strings.TrimRight(backendURL, "/"),
		client:     &http.Client{Timeout: requestTimeout},
		bus:        bus,
		backoff:    retryBackoff,
		logger:     logger.With().Str("service", "archiver").Logger(),
	}
}

// Enabled reports whether a backend is configured.
func (a *Archiver) Enabled() bool { return a.backendURL != "" }

// Archive posts the record to the backend, retrying transient failures.
// It publishes data.persisted on success and data.persist_failed after
// the final attempt fails.
func (a *Archiver) Archive(ctx context.Context, rec *execution.Record) {
	if !a.Enabled() {
		return
	}

	body, err := json.Marshal(rec)
	if err != nil {
		a.fail(rec, fmt.Sprintf("encode record: %v", err))
		return
	}

	url := a.backendURL + savePath
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				a.fail(rec, ctx.Err().Error())
				return
			case <-time.After(a.backoff * time.Duration(attempt-1)):
			}
		}

		lastErr = a.post(ctx, url, body)
		if lastErr == nil {
			a.logger.Info().
				Str("execution_id", rec.ExecutionID.String()).
				Int("attempt", attempt).
				Msg("record archived")
			a.bus.Publish(eventbus.Event{
				Type:          eventbus.TypeDataPersisted,
				Source:        "archiver",
				CorrelationID: rec.CorrelationID,
				Payload: map[string]any{
					"execution_id": rec.ExecutionID.String(),
					"attempts":     attempt,
				},
			})
			return
		}
		a.logger.Warn().Err(lastErr).
			Str("execution_id", rec.ExecutionID.String()).
			Int("attempt", attempt).
			Msg("archive attempt failed")
	}

	a.fail(rec, lastErr.Error())
}

func (a *Archiver) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

func (a *Archiver) fail(rec *execution.Record, reason string) {
	a.logger.Error().
		Str("execution_id", rec.ExecutionID.String()).
		Str("reason", reason).
		Msg("record archive failed")
	a.bus.Publish(eventbus.Event{
		Type:          eventbus.TypeDataPersistFailed,
		Source:        "archiver",
		CorrelationID: rec.CorrelationID,
		Payload: map[string]any{
			"execution_id": rec.ExecutionID.String(),
			"error":        reason,
		},
	})
}
