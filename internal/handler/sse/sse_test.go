package sse

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	rec := httptest.NewRecorder()

	w, err := NewWriter(rec, "run-1", "client-1")
	require.NoError(t, err)
	require.NoError(t, w.WriteEvent(0, "section", []byte(`{"state":"updated"}`)))
	require.NoError(t, w.WriteKeepAlive())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "id: 0\nevent: section\ndata: {\"state\":\"updated\"}\n\n: keepalive\n\n", rec.Body.String())
}

type countingWriter struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingWriter) WriteKeepAlive() error {
	c.calls.Add(1)
	if c.fail {
		return errors.New("closed")
	}
	return nil
}

func TestTickerKeepAlive_StopsOnWriteError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	writer := &countingWriter{fail: true}

	k := NewTickerKeepAlive(5 * time.Millisecond)
	stopped := k.Start(writer, logger)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("keep-alive did not stop after a failed write")
	}
	assert.Equal(t, int32(1), writer.calls.Load())
	k.Stop()
}

func TestTickerKeepAlive_Stop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	k := NewTickerKeepAlive(time.Hour)
	stopped := k.Start(&countingWriter{}, logger)

	k.Stop()
	k.Stop()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("keep-alive did not stop")
	}
}
