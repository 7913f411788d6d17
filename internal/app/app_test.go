package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir/internal/config"
	models "memoir/internal/domain/models/memoir"
	llmSvc "memoir/internal/domain/services/llm"
	"memoir/internal/handler"
	"memoir/internal/middleware"
)

// scriptedGenerator answers every task with fixed text
type scriptedGenerator struct{}

func (scriptedGenerator) Name() string { return "scripted" }

func (scriptedGenerator) Generate(_ context.Context, req *llmSvc.GenerationRequest) (string, error) {
	switch req.Task {
	case llmSvc.TaskThemeExtraction:
		return `{"themes":[{"name":"Family"}]}`, nil
	case llmSvc.TaskFactExtraction:
		return `{"facts":[]}`, nil
	case llmSvc.TaskEvolveSection:
		return req.ExistingText + " More followed.", nil
	default:
		return fmt.Sprintf("%s from %d memories.", req.SectionTitle, len(req.Items)), nil
	}
}

type testServer struct {
	t      *testing.T
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Environment:     "test",
		Storage:         "memory",
		SectionTimeout:  5 * time.Second,
		MaxSyncAttempts: 3,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, cfg, logger, WithGenerator(scriptedGenerator{}))
	require.NoError(t, err)

	router := handler.NewRouter(a.Handlers(),
		middleware.Recovery(logger),
		middleware.Auth(nil, logger),
	)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
		a.Close()
	})
	return &testServer{t: t, server: server}
}

func (s *testServer) do(method, path string, body interface{}) (int, []byte) {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(s.t, err)
	req.Header.Set(middleware.DevUserHeader, "alice")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, data
}

func (s *testServer) decode(data []byte, v interface{}) {
	s.t.Helper()
	require.NoError(s.t, json.Unmarshal(data, v), string(data))
}

// seed adds one memory and a single-section projection
func (s *testServer) seed() *models.Projection {
	status, body := s.do(http.MethodPost, "/api/projects/p1/content", map[string]interface{}{
		"content_type": "structured_qa",
		"content": map[string]interface{}{
			"question_text": "Where did you grow up?",
			"answer_text":   "On a farm outside Duluth.",
		},
		"tags": []string{"Childhood"},
	})
	require.Equal(s.t, http.StatusCreated, status, string(body))

	var item models.ContentItem
	s.decode(body, &item)
	assert.Equal(s.t, "alice", item.ContributorID)
	assert.Equal(s.t, []string{"childhood"}, item.Tags)

	status, body = s.do(http.MethodPost, "/api/projects/p1/projections", map[string]interface{}{
		"name":  "Grandma's Story",
		"style": "thematic",
		"sections": []map[string]interface{}{
			{"title": "Early Years", "tags": []string{"childhood"}},
		},
	})
	require.Equal(s.t, http.StatusCreated, status, string(body))

	var projection models.Projection
	s.decode(body, &projection)
	require.Len(s.t, projection.Sections, 1)
	return &projection
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestUpdateLockAndHistory(t *testing.T) {
	s := newTestServer(t)
	projection := s.seed()
	sectionID := projection.Sections[0].ID
	base := "/api/projections/" + projection.ID

	status, body := s.do(http.MethodPost, base+"/update", map[string]interface{}{"mode": "generate"})
	require.Equal(t, http.StatusOK, status, string(body))
	var result models.UpdateResult
	s.decode(body, &result)
	assert.Equal(t, 1, result.Counts.Updated)
	assert.Equal(t, 1, result.Version)
	assert.True(t, result.VersionBumped)

	status, _ = s.do(http.MethodPost, base+"/sections/"+sectionID+"/lock", map[string]string{"reason": "final"})
	require.Equal(t, http.StatusOK, status)

	status, body = s.do(http.MethodPost, base+"/update", map[string]interface{}{"mode": "regenerate"})
	require.Equal(t, http.StatusOK, status, string(body))
	s.decode(body, &result)
	assert.Equal(t, 1, result.Counts.SkippedLocked)
	assert.Equal(t, 1, result.Version)

	status, body = s.do(http.MethodGet, base+"/sections/"+sectionID+"/history", nil)
	require.Equal(t, http.StatusOK, status)
	var history []models.SectionVersion
	s.decode(body, &history)
	require.Len(t, history, 1)
	assert.Equal(t, models.GeneratedByGenerate, history[0].GeneratedBy)

	status, body = s.do(http.MethodPost, base+"/sections/"+sectionID+"/edit", map[string]interface{}{
		"text":   "<p>She was <strong>fearless</strong>.</p>",
		"format": "html",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = s.do(http.MethodPost, base+"/sections/"+sectionID+"/revert", map[string]interface{}{"sequence_number": 1})
	require.Equal(t, http.StatusCreated, status, string(body))
	var reverted models.SectionVersion
	s.decode(body, &reverted)
	assert.Equal(t, 3, reverted.SequenceNumber)
	assert.Equal(t, history[0].Text, reverted.Text)

	status, body = s.do(http.MethodGet, base+"/export?format=markdown", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "## Early Years")
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)
	projection := s.seed()

	status, body := s.do(http.MethodPost, "/api/projections/"+projection.ID+"/update", map[string]interface{}{"mode": "bogus"})
	assert.Equal(t, http.StatusBadRequest, status, string(body))

	var problem map[string]interface{}
	s.decode(body, &problem)
	assert.EqualValues(t, http.StatusBadRequest, problem["status"])

	status, _ = s.do(http.MethodGet, "/api/projections/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(http.MethodGet, "/api/projections/"+projection.ID+"/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(http.MethodGet, "/api/projections/"+projection.ID+"/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(http.MethodGet, "/api/projects/p1/content?after=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAsyncRun(t *testing.T) {
	s := newTestServer(t)
	projection := s.seed()
	base := "/api/projections/" + projection.ID

	status, body := s.do(http.MethodPost, base+"/update", map[string]interface{}{"mode": "generate", "async": true})
	require.Equal(t, http.StatusAccepted, status, string(body))
	var run models.UpdateRun
	s.decode(body, &run)
	require.NotEmpty(t, run.ID)

	require.Eventually(t, func() bool {
		status, body := s.do(http.MethodGet, base+"/runs/"+run.ID, nil)
		if status != http.StatusOK {
			return false
		}
		s.decode(body, &run)
		return run.Status != models.RunRunning
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.RunSucceeded, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, 1, run.Result.Counts.Updated)

	// A finished run replays its outcomes and closes with a done event
	status, body = s.do(http.MethodGet, base+"/runs/"+run.ID+"/events", nil)
	require.Equal(t, http.StatusOK, status)
	stream := string(body)
	assert.Contains(t, stream, "event: section\n")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stream), "}"))
	assert.Contains(t, stream, "event: done\n")

	status, _ = s.do(http.MethodPost, base+"/runs/"+run.ID+"/cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestContentPaging(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	status, body := s.do(http.MethodGet, "/api/projects/p1/content?limit=10", nil)
	require.Equal(t, http.StatusOK, status)

	var page struct {
		Items   []models.ContentItem `json:"items"`
		HasMore bool                 `json:"has_more"`
	}
	s.decode(body, &page)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)

	status, body = s.do(http.MethodPost, "/api/content/"+page.Items[0].ID+"/supersede", map[string]interface{}{
		"content": map[string]interface{}{
			"question_text": "Where did you grow up?",
			"answer_text":   "On a dairy farm outside Duluth.",
		},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var corrected models.ContentItem
	s.decode(body, &corrected)
	assert.Equal(t, 2, corrected.Version)

	status, _ = s.do(http.MethodPost, "/api/projects/p1/narrative/sync", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = s.do(http.MethodGet, "/api/projects/p1/narrative", nil)
	require.Equal(t, http.StatusOK, status)
	var nc models.NarrativeContext
	s.decode(body, &nc)
	assert.Equal(t, corrected.Sequence, nc.LastProcessedSequence)
}
