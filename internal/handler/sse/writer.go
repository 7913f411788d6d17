package sse

import (
	"fmt"
	"net/http"
	"sync"
)

// Writer writes Server-Sent Events to one client. Event and keep-alive writes
// come from different goroutines, so every write is serialized.
type Writer struct {
	mu       sync.Mutex
	w        http.ResponseWriter
	flusher  http.Flusher
	runID    string
	clientID string
}

// NewWriter prepares w for an event stream. It fails when the response
// cannot be flushed incrementally.
func NewWriter(w http.ResponseWriter, runID, clientID string) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by response writer")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher, runID: runID, clientID: clientID}, nil
}

// WriteEvent writes one named event with an id and flushes it
func (s *Writer) WriteEvent(id int, event string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data); err != nil {
		return fmt.Errorf("write event %s for run %s: %w", event, s.runID, err)
	}
	s.flusher.Flush()
	return nil
}

// WriteKeepAlive writes an SSE comment (: keepalive) and flushes.
// Lines starting with : are ignored by clients.
func (s *Writer) WriteKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, ": keepalive\n\n"); err != nil {
		return fmt.Errorf("write keepalive for client %s: %w", s.clientID, err)
	}
	s.flusher.Flush()
	return nil
}
