package httpapi

import (
	"encoding/json"
	"net/http"
)

// maxStreamEvents caps the number of data events one stream delivers
// before the terminal marker.
const maxStreamEvents = 64

type streamEnd struct {
	StreamStatus string `json:"stream_status"`
	EventsSent   int    `json:"events_sent"`
}

// streamExecution serves Server-Sent Events for one execution. Every
// stream delivers at least one snapshot and, once the execution is
// terminal, a final end-of-stream marker.
func (s *Server) streamExecution(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "executionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid executionId")
		return
	}

	updates, cancel, err := s.store.Watch(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// Flush headers before the first event.
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	sent := 0
	writeEvent := func(v interface{}) {
		payload, _ := json.Marshal(v)
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
	end := func() {
		writeEvent(streamEnd{StreamStatus: "ended", EventsSent: sent})
	}

	// Initial snapshot. The watch was registered before this read, so no
	// update between the two can be missed.
	rec, err := s.store.Get(id)
	if err != nil {
		writeEvent(map[string]string{"stream_status": "error", "error": err.Error()})
		end()
		return
	}
	writeEvent(rec)
	sent++
	if rec.Status.Terminal() {
		end()
		return
	}

	// Past the cap, updates keep draining so the terminal marker still
	// fires when the execution finishes.
	ctx := r.Context()
	for {
		select {
		case rec, ok := <-updates:
			if !ok {
				end()
				return
			}
			if sent < maxStreamEvents {
				writeEvent(rec)
				sent++
			}
			if rec.Status.Terminal() {
				end()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
