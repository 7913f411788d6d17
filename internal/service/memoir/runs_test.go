package memoir

import (
	"context"
	"testing"
	"time"

	mstream "github.com/haowjy/meridian-stream-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirSvc "memoir/internal/domain/services/memoir"
)

func newTestRunner(env *testEnv) memoirSvc.UpdateRunner {
	return NewUpdateRunner(env.engine, mstream.NewRegistry(), testClock, discardLogger())
}

func waitForRun(t *testing.T, runner memoirSvc.UpdateRunner, runID string) *models.UpdateRun {
	t.Helper()
	var run *models.UpdateRun
	require.Eventually(t, func() bool {
		var err error
		run, err = runner.Get(runID)
		require.NoError(t, err)
		return run.Status != models.RunRunning
	}, 5*time.Second, 10*time.Millisecond)
	return run
}

func TestRunnerCompletesUpdate(t *testing.T) {
	env := newTestEnv(t)
	runner := newTestRunner(env)

	env.addAnswer(t, "proj", "alice", "The farm.", "childhood")
	p := env.createProjection(t, "proj", earlyYears, career)

	run, err := runner.Start(context.Background(), &memoirSvc.UpdateRequest{ProjectionID: p.ID, Mode: models.ModeGenerate})
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, run.Status)

	done := waitForRun(t, runner, run.ID)
	assert.Equal(t, models.RunSucceeded, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, 1, done.Result.Version)
	require.NotNil(t, done.FinishedAt)

	progress, err := runner.Progress(run.ID, 0)
	require.NoError(t, err)
	assert.Len(t, progress.Outcomes, 2)
	assert.Equal(t, 2, progress.Next)

	progress, err = runner.Progress(run.ID, 1)
	require.NoError(t, err)
	require.Len(t, progress.Outcomes, 1)
	assert.Equal(t, "Career", progress.Outcomes[0].Title)

	err = runner.Cancel(run.ID)
	assert.ErrorIs(t, err, domain.ErrState)
}

func TestRunnerReportsConflictSynchronously(t *testing.T) {
	env := newTestEnv(t)
	runner := newTestRunner(env)
	p := env.createProjection(t, "proj", earlyYears)

	release, err := env.engine.Acquire(context.Background(), p.ID)
	require.NoError(t, err)
	defer release()

	_, err = runner.Start(context.Background(), &memoirSvc.UpdateRequest{ProjectionID: p.ID, Mode: models.ModeEvolve})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRunnerCancel(t *testing.T) {
	env := newTestEnv(t)
	runner := newTestRunner(env)

	env.addAnswer(t, "proj", "alice", "The farm.", "childhood")
	p := env.createProjection(t, "proj", earlyYears)

	started := make(chan struct{}, 1)
	env.gen.set(func(g *fakeGenerator) {
		g.block = make(chan struct{})
		g.started = started
	})

	run, err := runner.Start(context.Background(), &memoirSvc.UpdateRequest{ProjectionID: p.ID, Mode: models.ModeGenerate})
	require.NoError(t, err)
	<-started

	require.NoError(t, runner.Cancel(run.ID))

	done := waitForRun(t, runner, run.ID)
	assert.Equal(t, models.RunCancelled, done.Status)

	// the lock is released once the run ends
	release, err := env.engine.Acquire(context.Background(), p.ID)
	require.NoError(t, err)
	release()
}

func TestRunnerUnknownRun(t *testing.T) {
	runner := newTestRunner(newTestEnv(t))

	_, err := runner.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, runner.Cancel("missing"), domain.ErrNotFound)
}

func TestRunnerProgressOutlivesRegistryStream(t *testing.T) {
	env := newTestEnv(t)
	registry := mstream.NewRegistry()
	runner := NewUpdateRunner(env.engine, registry, testClock, discardLogger())

	env.addAnswer(t, "proj", "alice", "The farm.", "childhood")
	p := env.createProjection(t, "proj", earlyYears)

	block := make(chan struct{})
	env.gen.set(func(g *fakeGenerator) {
		g.block = block
		g.started = make(chan struct{}, 8)
	})

	run, err := runner.Start(context.Background(), &memoirSvc.UpdateRequest{ProjectionID: p.ID, Mode: models.ModeGenerate})
	require.NoError(t, err)
	assert.NotNil(t, registry.Get(run.ID), "running stream is registered for cancellation")

	close(block)
	waitForRun(t, runner, run.ID)

	// the registry forgets finished streams; the run record does not
	require.Eventually(t, func() bool { return registry.Get(run.ID) == nil }, 5*time.Second, 10*time.Millisecond)

	progress, err := runner.Progress(run.ID, 0)
	require.NoError(t, err)
	require.Len(t, progress.Outcomes, 1)
	assert.Equal(t, "Early Years", progress.Outcomes[0].Title)
	assert.Equal(t, models.RunSucceeded, progress.Run.Status)
}
