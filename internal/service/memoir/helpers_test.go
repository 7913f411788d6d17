package memoir

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	models "memoir/internal/domain/models/memoir"
	"memoir/internal/domain/repositories"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	llmSvc "memoir/internal/domain/services/llm"
	memoirSvc "memoir/internal/domain/services/memoir"
	"memoir/internal/products"
	"memoir/internal/repository/memory"
	"memoir/internal/service/markup"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGenerator writes deterministic text and records every call
type fakeGenerator struct {
	mu    sync.Mutex
	calls []llmSvc.GenerationRequest

	// failAll fails every call; failTitles fails calls for a section title;
	// failTasks fails calls of a task
	failAll    error
	failTitles map[string]error
	failTasks  map[llmSvc.Task]error

	// block, when set, holds every call until closed; started receives one
	// value per call that reached the block
	block   chan struct{}
	started chan struct{}

	// after runs once a call has produced its text
	after func(req *llmSvc.GenerationRequest)
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		failTitles: make(map[string]error),
		failTasks:  make(map[llmSvc.Task]error),
	}
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(ctx context.Context, req *llmSvc.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, *req)
	failAll := g.failAll
	failTitle := g.failTitles[req.SectionTitle]
	failTask := g.failTasks[req.Task]
	block, started, after := g.block, g.started, g.after
	g.mu.Unlock()

	if block != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	switch {
	case failAll != nil:
		return "", failAll
	case failTitle != nil:
		return "", failTitle
	case failTask != nil:
		return "", failTask
	}

	var text string
	switch req.Task {
	case llmSvc.TaskThemeExtraction:
		text = `{"themes":[{"name":"Resilience","description":"keeps going"}],"summary":"A full life"}`
	case llmSvc.TaskFactExtraction:
		text = `{"facts":[{"key":"hometown","value":"Duluth"}],"events":[{"date":"1961","label":"Moved north"}]}`
	case llmSvc.TaskEvolveSection:
		text = fmt.Sprintf("%s Then %d more.", req.ExistingText, len(req.Items))
	default:
		text = fmt.Sprintf("%s, drawn from %d memories.", req.SectionTitle, len(req.Items))
	}

	if after != nil {
		after(req)
	}
	return text, nil
}

func (g *fakeGenerator) callsFor(task llmSvc.Task) []llmSvc.GenerationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []llmSvc.GenerationRequest
	for _, c := range g.calls {
		if c.Task == task {
			out = append(out, c)
		}
	}
	return out
}

func (g *fakeGenerator) set(fn func(g *fakeGenerator)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

// testEnv wires every memoir service over one in-memory store
type testEnv struct {
	gen        *fakeGenerator
	locker     *memory.Locker
	content    memoirSvc.ContentService
	narrative  memoirSvc.NarrativeService
	engine     memoirSvc.ProjectionEngine
	sections   memoirSvc.SectionService
	projection memoirSvc.ProjectionService

	contentRepo    memoirRepo.ContentRepository
	projectionRepo memoirRepo.ProjectionRepository
	txManager      repositories.TransactionManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith lets a test wrap the projection repository seen by the engine
func newTestEnvWith(t *testing.T, wrap func(memoirRepo.ProjectionRepository) memoirRepo.ProjectionRepository) *testEnv {
	t.Helper()

	store := memory.NewStore()
	contentRepo := memory.NewContentRepository(store)
	projectionRepo := memory.NewProjectionRepository(store)
	narrativeRepo := memory.NewNarrativeRepository(store)
	txManager := memory.NewTransactionManager(store)
	locker := memory.NewLocker()
	logger := discardLogger()

	engineRepo := projectionRepo
	if wrap != nil {
		engineRepo = wrap(projectionRepo)
	}

	registry, err := products.NewRegistry()
	require.NoError(t, err)

	gen := newFakeGenerator()
	scorer := NewScorer(0, 0, testClock)
	converter := markup.NewConverter()
	narrative := NewNarrativeService(narrativeRepo, contentRepo, locker, gen, 3, testClock, logger)

	return &testEnv{
		gen:       gen,
		locker:    locker,
		content:   NewContentService(contentRepo, txManager, testClock, logger),
		narrative: narrative,
		engine: NewProjectionEngine(EngineOptions{
			ProjectionRepo: engineRepo,
			ContentRepo:    contentRepo,
			Narrative:      narrative,
			Generator:      gen,
			Products:       registry,
			Scorer:         scorer,
			TxManager:      txManager,
			Locker:         locker,
			SectionTimeout: time.Second,
			Clock:          testClock,
			Logger:         logger,
		}),
		sections:   NewSectionService(projectionRepo, txManager, locker, converter, testClock, logger),
		projection: NewProjectionService(projectionRepo, contentRepo, narrative, registry, scorer, converter, testClock, logger),

		contentRepo:    contentRepo,
		projectionRepo: projectionRepo,
		txManager:      txManager,
	}
}

// withContentHooks rebuilds the content service so appends reach hooks
func (e *testEnv) withContentHooks(hooks ...ContentHook) {
	e.content = NewContentService(e.contentRepo, e.txManager, testClock, discardLogger(), hooks...)
}

func (e *testEnv) addAnswer(t *testing.T, projectID, contributor, answer string, tags ...string) *models.ContentItem {
	t.Helper()
	item, err := e.content.Append(context.Background(), &memoirSvc.AppendContentRequest{
		ProjectID:     projectID,
		ContributorID: contributor,
		ContentType:   string(models.ContentTypeStructuredQA),
		Content: map[string]interface{}{
			"question_text": "Tell me about it",
			"answer_text":   answer,
		},
		Tags: tags,
	})
	require.NoError(t, err)
	return item
}

func (e *testEnv) createProjection(t *testing.T, projectID string, sections ...memoirSvc.SectionRequest) *models.Projection {
	t.Helper()
	p, err := e.projection.Create(context.Background(), &memoirSvc.CreateProjectionRequest{
		ProjectID: projectID,
		Name:      "Grandma's Story",
		Style:     string(models.StyleThematic),
		Sections:  sections,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) update(t *testing.T, projectionID string, mode models.UpdateMode) *models.UpdateResult {
	t.Helper()
	result, err := e.engine.Update(context.Background(), &memoirSvc.UpdateRequest{
		ProjectionID: projectionID,
		Mode:         mode,
		UserID:       "user-1",
	})
	require.NoError(t, err)
	return result
}

func outcomeFor(t *testing.T, result *models.UpdateResult, title string) models.SectionOutcome {
	t.Helper()
	for _, o := range result.Sections {
		if o.Title == title {
			return o
		}
	}
	t.Fatalf("no outcome for section %q", title)
	return models.SectionOutcome{}
}

func sectionByTitle(t *testing.T, p *models.Projection, title string) *models.Section {
	t.Helper()
	for i := range p.Sections {
		if p.Sections[i].Title == title {
			return &p.Sections[i]
		}
	}
	t.Fatalf("no section %q", title)
	return nil
}

var (
	earlyYears = memoirSvc.SectionRequest{Title: "Early Years", Tags: []string{"childhood"}}
	career     = memoirSvc.SectionRequest{Title: "Career", Tags: []string{"career"}}
)
