package memoir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	mstream "github.com/haowjy/meridian-stream-go"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirSvc "memoir/internal/domain/services/memoir"
)

// finishedRunRetention is how long a finished run stays queryable
const finishedRunRetention = time.Hour

// runRecord is the mutable state of one run
type runRecord struct {
	mu       sync.Mutex
	run      models.UpdateRun
	outcomes []models.SectionOutcome
	changed  chan struct{}
}

func (r *runRecord) notify() {
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *runRecord) record(outcome models.SectionOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	r.notify()
}

func (r *runRecord) finish(result *models.UpdateResult, err error, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.Result = result
	r.run.FinishedAt = &at
	switch {
	case err == nil:
		r.run.Status = models.RunSucceeded
	case errors.Is(err, context.Canceled):
		r.run.Status = models.RunCancelled
		r.run.Error = err.Error()
	default:
		r.run.Status = models.RunFailed
		r.run.Error = err.Error()
	}
	r.notify()
}

func (r *runRecord) snapshot() *models.UpdateRun {
	run := r.run
	return &run
}

// updateRunner runs projection updates as cancellable streams
type updateRunner struct {
	engine   memoirSvc.ProjectionEngine
	registry *mstream.Registry
	clock    Clock
	logger   *slog.Logger

	mu   sync.Mutex
	runs map[string]*runRecord
}

// NewUpdateRunner creates a runner whose streams are registered in registry
func NewUpdateRunner(
	engine memoirSvc.ProjectionEngine,
	registry *mstream.Registry,
	clock Clock,
	logger *slog.Logger,
) memoirSvc.UpdateRunner {
	if clock == nil {
		clock = time.Now
	}
	return &updateRunner{
		engine:   engine,
		registry: registry,
		clock:    clock,
		logger:   logger,
		runs:     make(map[string]*runRecord),
	}
}

// Start takes the projection lock synchronously, so a conflicting caller
// gets ConflictError here rather than a failed run later
func (r *updateRunner) Start(ctx context.Context, req *memoirSvc.UpdateRequest) (*models.UpdateRun, error) {
	if err := validateUpdateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	release, err := r.engine.Acquire(ctx, req.ProjectionID)
	if err != nil {
		return nil, err
	}

	rec := &runRecord{
		run: models.UpdateRun{
			ID:           uuid.NewString(),
			ProjectionID: req.ProjectionID,
			Mode:         req.Mode,
			Status:       models.RunRunning,
			StartedAt:    r.clock(),
		},
		changed: make(chan struct{}),
	}

	runReq := *req
	runReq.Async = false

	// released before the run is marked finished so a poller that sees the
	// final status can start the next update
	var once sync.Once
	unlock := func() { once.Do(release) }

	// The stream carries cancellation only; progress is read from rec so a
	// finished run stays replayable after the registry drops its stream
	work := func(ctx context.Context, _ func(mstream.Event)) error {
		defer unlock()

		runReq.Progress = func(outcome models.SectionOutcome) {
			rec.record(outcome)
		}

		result, err := r.engine.UpdateLocked(ctx, &runReq)
		unlock()
		rec.finish(result, err, r.clock())

		if err != nil {
			r.logger.Warn("update run finished with error",
				"run_id", rec.run.ID,
				"projection_id", runReq.ProjectionID,
				"error", err,
			)
		} else {
			r.logger.Info("update run finished",
				"run_id", rec.run.ID,
				"projection_id", runReq.ProjectionID,
			)
		}
		return err
	}

	r.mu.Lock()
	r.pruneLocked()
	r.runs[rec.run.ID] = rec
	r.mu.Unlock()

	stream := mstream.NewStream(rec.run.ID, work)
	r.registry.Register(stream)
	go stream.Start()

	r.logger.Info("update run started",
		"run_id", rec.run.ID,
		"projection_id", req.ProjectionID,
		"mode", req.Mode,
	)
	return rec.snapshot(), nil
}

// Get returns a run's status
func (r *updateRunner) Get(runID string) (*models.UpdateRun, error) {
	rec, err := r.lookup(runID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot(), nil
}

// Cancel stops a run before its next section
func (r *updateRunner) Cancel(runID string) error {
	rec, err := r.lookup(runID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	status := rec.run.Status
	rec.mu.Unlock()
	if status != models.RunRunning {
		return &domain.StateError{Message: fmt.Sprintf("run %s already %s", runID, status)}
	}

	stream := r.registry.Get(runID)
	if stream == nil {
		return &domain.StateError{Message: fmt.Sprintf("run %s is not active", runID)}
	}
	stream.Cancel()

	r.logger.Info("update run cancel requested", "run_id", runID)
	return nil
}

// Progress returns outcomes recorded from index on
func (r *updateRunner) Progress(runID string, from int) (*memoirSvc.RunProgress, error) {
	rec, err := r.lookup(runID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	from = max(0, min(from, len(rec.outcomes)))
	outcomes := make([]models.SectionOutcome, len(rec.outcomes)-from)
	copy(outcomes, rec.outcomes[from:])
	return &memoirSvc.RunProgress{
		Run:      rec.snapshot(),
		Outcomes: outcomes,
		Next:     len(rec.outcomes),
		Changed:  rec.changed,
	}, nil
}

func (r *updateRunner) lookup(runID string) (*runRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[runID]
	if !ok {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("update run not found: %s", runID)}
	}
	return rec, nil
}

// pruneLocked drops runs that finished long ago. Caller holds r.mu.
func (r *updateRunner) pruneLocked() {
	cutoff := r.clock().Add(-finishedRunRetention)
	for id, rec := range r.runs {
		rec.mu.Lock()
		finished := rec.run.FinishedAt
		rec.mu.Unlock()
		if finished != nil && finished.Before(cutoff) {
			delete(r.runs, id)
		}
	}
}

