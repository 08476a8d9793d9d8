package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"lexvoss/internal/session"
)

// heartbeatEvery is the number of unchanged polls after which the
// stream emits an SSE comment to keep proxies from closing the
// connection.
const heartbeatEvery = 15

// pollInterval is the progress poll cadence.
const pollInterval = time.Second

// progressEvent is one SSE payload on the session event stream.
type progressEvent struct {
	Type string `json:"type"`
	session.Progress
}

// handleSessionEvents streams live progress for one session. Each poll
// also extends the session from the bank, so a stream left open keeps
// the session fed while background generation lands questions. Events
// fire only when progress changes; quiet periods carry heartbeat
// comments. The stream ends with a "complete" event once the session is
// gone, or silently on shutdown or client disconnect.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.badRequest(w, "invalid session id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, fmt.Errorf("server: response writer does not support streaming"))
		return
	}

	ctx := r.Context()
	progress, alive := s.composer.Snapshot(ctx, id)
	if !alive {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			s.log.Warn("encoding progress event failed", "error", err)
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	last := progress
	if !writeEvent(progressEvent{Type: "progress", Progress: progress}) {
		return
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	unchanged := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.composer.ShutdownCh():
			return
		case <-ticker.C:
		}

		progress, alive := s.composer.Snapshot(ctx, id)
		if !alive {
			writeEvent(map[string]string{"type": "complete"})
			return
		}
		if progress != last {
			if !writeEvent(progressEvent{Type: "progress", Progress: progress}) {
				return
			}
			last = progress
			unchanged = 0
			continue
		}
		unchanged++
		if unchanged >= heartbeatEvery {
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
			unchanged = 0
		}
	}
}
