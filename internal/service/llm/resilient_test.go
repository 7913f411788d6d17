package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir/internal/domain"
	domainllm "memoir/internal/domain/services/llm"
)

// scriptedGenerator returns queued results in order
type scriptedGenerator struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) Generate(ctx context.Context, req *domainllm.GenerationRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.results) == 0 {
		return "ok", nil
	}
	err := g.results[0]
	g.results = g.results[1:]
	if err != nil {
		return "", err
	}
	return "ok", nil
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWithRetriesRetriesTransientFailures(t *testing.T) {
	next := &scriptedGenerator{results: []error{
		&domain.GenerationError{Message: "overloaded", Transient: true},
		&domain.GenerationError{Message: "overloaded", Transient: true},
	}}
	g := WithRetries(next, testPolicy(), discardLogger())

	text, err := g.Generate(context.Background(), &domainllm.GenerationRequest{Task: domainllm.TaskNewSection})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, next.calls)
}

func TestWithRetriesStopsOnPermanentFailure(t *testing.T) {
	next := &scriptedGenerator{results: []error{
		&domain.GenerationError{Message: "invalid api key", Transient: false},
	}}
	g := WithRetries(next, testPolicy(), discardLogger())

	_, err := g.Generate(context.Background(), &domainllm.GenerationRequest{Task: domainllm.TaskNewSection})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.False(t, domain.IsTransient(err))
	assert.Equal(t, 1, next.calls)
}

func TestWithRetriesGivesUpAfterMaxTries(t *testing.T) {
	transient := &domain.GenerationError{Message: "503", Transient: true}
	next := &scriptedGenerator{results: []error{transient, transient, transient, transient}}
	g := WithRetries(next, testPolicy(), discardLogger())

	_, err := g.Generate(context.Background(), &domainllm.GenerationRequest{Task: domainllm.TaskNewSection})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Equal(t, 3, next.calls)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"rate limited", errors.New("HTTP 429 Too Many Requests"), true},
		{"overloaded", errors.New("anthropic: overloaded_error"), true},
		{"bad request", errors.New("400 invalid request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError("test", tt.err)
			var genErr *domain.GenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, tt.transient, genErr.Transient)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
