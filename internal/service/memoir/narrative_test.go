package memoir

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	llmSvc "memoir/internal/domain/services/llm"
	memoirSvc "memoir/internal/domain/services/memoir"
)

func (e *testEnv) addStory(t *testing.T, projectID, text string) *models.ContentItem {
	t.Helper()
	item, err := e.content.Append(context.Background(), &memoirSvc.AppendContentRequest{
		ProjectID:     projectID,
		ContributorID: "alice",
		ContentType:   string(models.ContentTypeText),
		Content:       map[string]interface{}{"text": text},
	})
	require.NoError(t, err)
	return item
}

func TestSyncStructuredAnswersWithoutGenerator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	q := "q_birthplace"
	item, err := env.content.Append(ctx, &memoirSvc.AppendContentRequest{
		ProjectID:     "proj",
		ContributorID: "alice",
		ContentType:   string(models.ContentTypeStructuredQA),
		Content: map[string]interface{}{
			"question_text": "Where were you born?",
			"answer_text":   "Duluth, Minnesota",
			"date":          "1941",
		},
		Tags:       []string{"Childhood", "birth"},
		QuestionID: &q,
	})
	require.NoError(t, err)

	stale, err := env.narrative.IsStale(ctx, "proj")
	require.NoError(t, err)
	assert.True(t, stale)

	result, err := env.narrative.Sync(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, env.gen.calls)

	nc := result.Context
	require.Contains(t, nc.Themes, "childhood")
	assert.Equal(t, []string{item.ID}, nc.Themes["childhood"].SourceContentIDs)
	require.Contains(t, nc.Facts, "question:q_birthplace")
	assert.Equal(t, "Duluth, Minnesota", nc.Facts["question:q_birthplace"].Value)
	require.Len(t, nc.Timeline, 1)
	assert.Equal(t, models.TimelineEvent{Date: "1941", Label: "Where were you born?", ContentID: item.ID}, nc.Timeline[0])
	assert.Equal(t, item.Sequence, nc.LastProcessedSequence)

	stale, err = env.narrative.IsStale(ctx, "proj")
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestSyncIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addStory(t, "proj", "We moved north the winter the lake froze early.")
	env.addAnswer(t, "proj", "bob", "She never gave up.", "resilience")

	first, err := env.narrative.Sync(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)
	assert.InDelta(t, 0.2, first.Context.Themes["resilience"].Strength, 1e-9)

	second, err := env.narrative.Sync(ctx, "proj")
	require.NoError(t, err)
	assert.Zero(t, second.Processed)
	assert.Equal(t, first.Context.Themes, second.Context.Themes)
	assert.Equal(t, first.Context.Facts, second.Context.Facts)
	assert.Equal(t, first.Context.Timeline, second.Context.Timeline)
}

func TestSyncFailureHoldsHighWaterMark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	story := env.addStory(t, "proj", "The summer of the flood.")
	later := env.addAnswer(t, "proj", "alice", "Rebuilt the barn.", "family")

	env.gen.set(func(g *fakeGenerator) {
		g.failTasks[llmSvc.TaskThemeExtraction] = &domain.GenerationError{Message: "timeout", Transient: true}
	})

	result, err := env.narrative.Sync(ctx, "proj")
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Equal(t, []string{story.ID}, result.Pending)
	assert.Zero(t, result.Context.LastProcessedSequence)
	assert.NotContains(t, result.Context.Themes, "family")

	env.gen.set(func(g *fakeGenerator) { delete(g.failTasks, llmSvc.TaskThemeExtraction) })

	result, err = env.narrative.Sync(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Empty(t, result.Pending)
	assert.Equal(t, later.Sequence, result.Context.LastProcessedSequence)
	assert.Contains(t, result.Context.Themes, "resilience")
	assert.Contains(t, result.Context.Themes, "family")
	assert.Equal(t, "Duluth", result.Context.Facts["hometown"].Value)
	assert.Equal(t, "A full life", result.Context.Summary)
}

func TestSyncSkipsItemAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	story := env.addStory(t, "proj", "An unreadable letter.")
	env.gen.set(func(g *fakeGenerator) {
		g.failTasks[llmSvc.TaskFactExtraction] = &domain.GenerationError{Message: "bad output"}
	})

	for i := 0; i < DefaultMaxSyncAttempts-1; i++ {
		result, err := env.narrative.Sync(ctx, "proj")
		require.NoError(t, err)
		assert.Equal(t, []string{story.ID}, result.Pending)
	}

	result, err := env.narrative.Sync(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, []string{story.ID}, result.Skipped)
	assert.Empty(t, result.Pending)
	assert.Equal(t, story.Sequence, result.Context.LastProcessedSequence)

	// partial extraction never merged
	assert.NotContains(t, result.Context.Themes, "resilience")
}

func TestSyncWaitsForProjectNarrativeLock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addAnswer(t, "proj", "alice", "The farm.", "childhood")

	release, err := env.locker.Lock(ctx, "narrative:proj")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := env.narrative.Sync(ctx, "proj")
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("sync ran while another writer held the narrative")
	case <-time.After(100 * time.Millisecond):
	}

	release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not resume after release")
	}

	nc, err := env.narrative.Get(ctx, "proj")
	require.NoError(t, err)
	assert.Contains(t, nc.Themes, "childhood")
}
