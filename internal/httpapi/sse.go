package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// handleJobStream pushes the job list on connect and again whenever it
// changes, polling every streamInterval.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := startStream(w)
	if !ok {
		return
	}

	var last []byte
	push := func() error {
		snapshot, err := json.Marshal(s.queue.List())
		if err != nil {
			return err
		}
		if last != nil && bytes.Equal(snapshot, last) {
			return nil
		}
		last = snapshot
		return writeFrame(w, flusher, "", snapshot)
	}
	if push() != nil {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if push() != nil {
				return
			}
		}
	}
}

// writeFrame emits one server-sent event; an empty name sends an unnamed frame.
func writeFrame(w http.ResponseWriter, flusher http.Flusher, name string, data []byte) error {
	if name != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// handleEventStream relays repair events as they are dispatched.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotImplemented, "event stream is not configured")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := startStream(w)
	if !ok {
		return
	}
	msgs, cancel := s.events.Subscribe(64)
	defer cancel()

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-msgs:
			if !open {
				return
			}
			if writeFrame(w, flusher, msg.Name, msg.Data) != nil {
				return
			}
		}
	}
}
