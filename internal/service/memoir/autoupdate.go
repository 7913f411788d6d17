package memoir

import (
	"context"
	"errors"
	"log/slog"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	memoirSvc "memoir/internal/domain/services/memoir"
)

// ContentHook is told about each item appended to a pool. Hooks run after the
// item is stored and cannot fail the append.
type ContentHook interface {
	ContentAppended(ctx context.Context, item *models.ContentItem)
}

// AutoUpdater starts a background update of every projection that opted into
// auto_update_on_content and admits the new item
type AutoUpdater struct {
	projectionRepo memoirRepo.ProjectionRepository
	runner         memoirSvc.UpdateRunner
	logger         *slog.Logger
}

// NewAutoUpdater creates an AutoUpdater that launches runs through runner
func NewAutoUpdater(projectionRepo memoirRepo.ProjectionRepository, runner memoirSvc.UpdateRunner, logger *slog.Logger) *AutoUpdater {
	return &AutoUpdater{
		projectionRepo: projectionRepo,
		runner:         runner,
		logger:         logger,
	}
}

// ContentAppended runs each matching projection in its default mode. A
// projection that is already updating is skipped; it picks the item up on its
// next update.
func (u *AutoUpdater) ContentAppended(ctx context.Context, item *models.ContentItem) {
	projections, err := u.projectionRepo.ListByProject(ctx, item.ProjectID)
	if err != nil {
		u.logger.Error("auto-update: list projections", "project_id", item.ProjectID, "error", err)
		return
	}

	for i := range projections {
		p := &projections[i]
		if !p.AutoUpdate || len(FilterPool(p, []models.ContentItem{*item})) == 0 {
			continue
		}

		req := &memoirSvc.UpdateRequest{ProjectionID: p.ID, Mode: p.DefaultUpdateMode}
		if req.Mode == models.ModeAppend {
			req.ContentIDs = []string{item.ID}
			for _, s := range p.Sections {
				req.SectionIDs = append(req.SectionIDs, s.ID)
			}
			if len(req.SectionIDs) == 0 {
				continue
			}
		}

		run, err := u.runner.Start(ctx, req)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				u.logger.Info("auto-update skipped, projection busy", "projection_id", p.ID, "content_id", item.ID)
				continue
			}
			u.logger.Error("auto-update: start run", "projection_id", p.ID, "content_id", item.ID, "error", err)
			continue
		}
		u.logger.Info("auto-update started",
			"projection_id", p.ID,
			"run_id", run.ID,
			"mode", req.Mode,
			"content_id", item.ID,
		)
	}
}
