package memoir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	"memoir/internal/domain/repositories"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	llmSvc "memoir/internal/domain/services/llm"
	memoirSvc "memoir/internal/domain/services/memoir"
	"memoir/internal/products"
	"memoir/internal/utils"
)

// DefaultSectionTimeout bounds one section's generation call.
const DefaultSectionTimeout = 90 * time.Second

var errSectionLocked = errors.New("section locked during update")

// EngineOptions wires the projection engine
type EngineOptions struct {
	ProjectionRepo memoirRepo.ProjectionRepository
	ContentRepo    memoirRepo.ContentRepository
	Narrative      memoirSvc.NarrativeService
	Generator      llmSvc.TextGenerator
	Products       *products.Registry // optional
	Scorer         *Scorer
	TxManager      repositories.TransactionManager
	Locker         memoirRepo.Locker
	SectionTimeout time.Duration
	Clock          Clock
	Logger         *slog.Logger
}

// engine implements the ProjectionEngine interface
type engine struct {
	projectionRepo memoirRepo.ProjectionRepository
	contentRepo    memoirRepo.ContentRepository
	narrative      memoirSvc.NarrativeService
	generator      llmSvc.TextGenerator
	products       *products.Registry
	scorer         *Scorer
	txManager      repositories.TransactionManager
	locker         memoirRepo.Locker
	sectionTimeout time.Duration
	clock          Clock
	tracer         trace.Tracer
	logger         *slog.Logger
}

// NewProjectionEngine creates the projection engine
func NewProjectionEngine(opts EngineOptions) memoirSvc.ProjectionEngine {
	if opts.SectionTimeout <= 0 {
		opts.SectionTimeout = DefaultSectionTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Scorer == nil {
		opts.Scorer = NewScorer(0, 0, opts.Clock)
	}
	return &engine{
		projectionRepo: opts.ProjectionRepo,
		contentRepo:    opts.ContentRepo,
		narrative:      opts.Narrative,
		generator:      opts.Generator,
		products:       opts.Products,
		scorer:         opts.Scorer,
		txManager:      opts.TxManager,
		locker:         opts.Locker,
		sectionTimeout: opts.SectionTimeout,
		clock:          opts.Clock,
		tracer:         otel.Tracer("memoir/projection"),
		logger:         opts.Logger,
	}
}

func projectionLockKey(projectionID string) string {
	return "projection:" + projectionID
}

// acquireProjection takes the per-projection update lock without waiting
func acquireProjection(ctx context.Context, locker memoirRepo.Locker, projectionID string) (func(), error) {
	release, ok, err := locker.TryLock(ctx, projectionLockKey(projectionID))
	if err != nil {
		return nil, fmt.Errorf("acquire projection lock: %w", err)
	}
	if !ok {
		return nil, domain.NewAlreadyUpdatingError(projectionID)
	}
	return release, nil
}

// Acquire takes the projection's update lock
func (e *engine) Acquire(ctx context.Context, projectionID string) (func(), error) {
	return acquireProjection(ctx, e.locker, projectionID)
}

// Update runs one update under the projection lock
func (e *engine) Update(ctx context.Context, req *memoirSvc.UpdateRequest) (*models.UpdateResult, error) {
	if err := validateUpdateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	release, err := e.Acquire(ctx, req.ProjectionID)
	if err != nil {
		return nil, err
	}
	defer release()

	return e.UpdateLocked(ctx, req)
}

// runState tracks projection-level effects across section commits
type runState struct {
	mode      models.UpdateMode
	bumped    bool
	version   int
	wordCount map[string]int
}

func (s *runState) totalWords(sectionID string, words int) int {
	total := 0
	for id, n := range s.wordCount {
		if id == sectionID {
			continue
		}
		total += n
	}
	return total + words
}

// UpdateLocked walks the target sections through the selection and
// integration policy of the mode. The caller holds the projection lock.
func (e *engine) UpdateLocked(ctx context.Context, req *memoirSvc.UpdateRequest) (*models.UpdateResult, error) {
	if err := validateUpdateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	projection, err := e.projectionRepo.GetByID(ctx, req.ProjectionID)
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = projection.DefaultUpdateMode
	}
	if mode == "" {
		mode = models.ModeEvolve
	}
	if mode == models.ModeAppend && (len(req.SectionIDs) == 0 || len(req.ContentIDs) == 0) {
		return nil, fmt.Errorf("append requires section_ids and content_ids: %w", domain.ErrValidation)
	}

	ctx, span := e.tracer.Start(ctx, "projection.update", trace.WithAttributes(
		attribute.String("projection.id", projection.ID),
		attribute.String("project.id", projection.ProjectID),
		attribute.String("update.mode", string(mode)),
	))
	defer span.End()

	targets, err := selectTargets(projection, req.SectionIDs)
	if err != nil {
		return nil, err
	}

	var explicit []models.ContentItem
	if mode == models.ModeAppend {
		explicit, err = e.loadExplicitContent(ctx, projection.ProjectID, req.ContentIDs)
		if err != nil {
			return nil, err
		}
	}

	result := &models.UpdateResult{
		ProjectionID: projection.ID,
		Mode:         mode,
		Version:      projection.Version,
		Sections:     []models.SectionOutcome{},
		StartedAt:    e.clock(),
	}

	stale, err := e.narrative.IsStale(ctx, projection.ProjectID)
	if err != nil {
		return nil, err
	}
	if stale {
		if _, err := e.narrative.Sync(ctx, projection.ProjectID); err != nil {
			return nil, fmt.Errorf("sync narrative context: %w", err)
		}
		result.NarrativeSynced = true
	}
	narrative, err := e.narrative.Get(ctx, projection.ProjectID)
	if err != nil {
		return nil, err
	}

	if resolved := e.resolveConfig(projection); resolved != nil {
		result.ConfigVersion = resolved.ConfigVersion()
		applyTemplates(targets, resolved)
	}

	var pool []models.ContentItem
	if mode != models.ModeAppend {
		items, err := e.contentRepo.ListByProject(ctx, projection.ProjectID)
		if err != nil {
			return nil, err
		}
		pool = FilterPool(projection, LatestVersions(items))
	}

	state := &runState{
		mode:      mode,
		version:   projection.Version,
		wordCount: make(map[string]int, len(projection.Sections)),
	}
	for _, s := range projection.Sections {
		state.wordCount[s.ID] = s.WordCount
	}

	generated, transientFailures, permanentFailures := 0, 0, 0
	for i := range targets {
		if ctx.Err() != nil {
			for _, rest := range targets[i:] {
				e.report(result, req, models.SectionOutcome{
					SectionID: rest.ID,
					Title:     rest.Title,
					State:     models.SectionFailed,
					Error:     "update cancelled before this section started",
				})
			}
			break
		}

		outcome, attempt := e.updateSection(ctx, projection, &targets[i], mode, pool, explicit, narrative, state, req.UserID)
		switch attempt {
		case attemptSucceeded:
			generated++
		case attemptFailed:
			transientFailures++
		case attemptRejected:
			permanentFailures++
		}
		e.report(result, req, outcome)
	}

	result.Version = state.version
	result.VersionBumped = state.bumped
	result.FinishedAt = e.clock()

	span.SetAttributes(
		attribute.Int("sections.updated", result.Counts.Updated),
		attribute.Int("sections.failed", result.Counts.Failed),
		attribute.Int("projection.version", result.Version),
	)

	e.logger.Info("projection updated",
		"projection_id", projection.ID,
		"mode", mode,
		"version", result.Version,
		"version_bumped", result.VersionBumped,
		"updated", result.Counts.Updated,
		"unchanged", result.Counts.Unchanged,
		"skipped_locked", result.Counts.SkippedLocked,
		"failed", result.Counts.Failed,
		"narrative_synced", result.NarrativeSynced,
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return result, fmt.Errorf("update of projection %s cancelled: %w", projection.ID, err)
	}

	// Only transient failures across every attempt mean the capability is
	// down; a rejected section stays a per-section failure
	if generated == 0 && transientFailures > 0 && permanentFailures == 0 {
		err := &domain.GenerationError{
			Message:   fmt.Sprintf("text generation unavailable: all %d section generations failed", transientFailures),
			Transient: true,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Message)
		return result, err
	}

	return result, nil
}

func (e *engine) report(result *models.UpdateResult, req *memoirSvc.UpdateRequest, outcome models.SectionOutcome) {
	result.Record(outcome)
	if req.Progress != nil {
		req.Progress(outcome)
	}
}

type generationAttempt int

const (
	attemptNone generationAttempt = iota
	attemptSucceeded
	attemptFailed   // transient
	attemptRejected // permanent
)

// updateSection decides one section's outcome. Generation happens outside
// any transaction; only the commit is transactional.
func (e *engine) updateSection(
	ctx context.Context,
	projection *models.Projection,
	section *models.Section,
	mode models.UpdateMode,
	pool []models.ContentItem,
	explicit []models.ContentItem,
	narrative *models.NarrativeContext,
	state *runState,
	userID string,
) (models.SectionOutcome, generationAttempt) {
	outcome := models.SectionOutcome{SectionID: section.ID, Title: section.Title}

	if section.IsLocked() {
		outcome.State = models.SectionSkippedLocked
		return outcome, attemptNone
	}

	plan := e.planSection(mode, section, pool, explicit)
	if plan == nil {
		outcome.State = models.SectionUnchanged
		return outcome, attemptNone
	}

	ctx, span := e.tracer.Start(ctx, "projection.section", trace.WithAttributes(
		attribute.String("section.id", section.ID),
		attribute.String("generation.task", string(plan.task)),
		attribute.Int("generation.items", len(plan.items)),
	))
	defer span.End()

	genCtx, cancel := context.WithTimeout(ctx, e.sectionTimeout)
	text, err := e.generator.Generate(genCtx, &llmSvc.GenerationRequest{
		Task:          plan.task,
		ProjectID:     projection.ProjectID,
		SectionTitle:  section.Title,
		Style:         projection.Style,
		Length:        projection.Length,
		VoiceGuidance: projection.VoiceGuidance,
		ExistingText:  plan.existing,
		Items:         plan.items,
		Narrative:     narrative,
	})
	timedOut := errors.Is(genCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	if err == nil && strings.TrimSpace(text) == "" {
		err = &domain.GenerationError{Message: "generator returned empty text", Transient: true}
	}
	if err != nil {
		if timedOut {
			err = &domain.GenerationError{
				SectionID: section.ID,
				Message:   fmt.Sprintf("generation timed out after %s", e.sectionTimeout),
				Transient: true,
				Err:       err,
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		e.logger.Warn("section generation failed",
			"projection_id", projection.ID,
			"section_id", section.ID,
			"task", plan.task,
			"error", err,
		)
		outcome.State = models.SectionFailed
		outcome.Error = err.Error()
		if !domain.IsTransient(err) {
			return outcome, attemptRejected
		}
		return outcome, attemptFailed
	}

	version, err := e.commitSection(ctx, projection.ID, section.ID, plan, text, state, userID)
	if errors.Is(err, errSectionLocked) {
		outcome.State = models.SectionSkippedLocked
		return outcome, attemptSucceeded
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		e.logger.Error("section commit failed",
			"projection_id", projection.ID,
			"section_id", section.ID,
			"error", err,
		)
		outcome.State = models.SectionFailed
		outcome.Error = err.Error()
		return outcome, attemptSucceeded
	}

	outcome.State = models.SectionUpdated
	outcome.VersionID = version.ID
	outcome.SequenceNumber = version.SequenceNumber
	outcome.NewContentIDs = plan.newIDs
	return outcome, attemptSucceeded
}

// commitSection appends the version and advances the section pointer in one
// transaction. The first successful commit of a run also bumps the
// projection version; later ones only refresh updated_at and word count.
func (e *engine) commitSection(
	ctx context.Context,
	projectionID, sectionID string,
	plan *sectionPlan,
	text string,
	state *runState,
	userID string,
) (*models.SectionVersion, error) {
	now := e.clock()
	words := utils.CountWords(text)
	version := &models.SectionVersion{
		ID:               uuid.NewString(),
		SectionID:        sectionID,
		Text:             text,
		SourceContentIDs: plan.sources,
		GeneratedBy:      plan.generatedBy,
		CreatedBy:        optionalString(userID),
		CreatedAt:        now,
	}

	var projectionVersion int
	err := e.txManager.ExecTx(ctx, func(ctx context.Context) error {
		current, err := e.projectionRepo.GetSection(ctx, projectionID, sectionID)
		if err != nil {
			return err
		}
		if current.IsLocked() {
			return errSectionLocked
		}

		if err := e.projectionRepo.AppendVersion(ctx, version); err != nil {
			return err
		}

		current.CurrentVersionID = &version.ID
		current.SourceContentIDs = plan.sources
		current.Text = text
		current.WordCount = words
		current.LastUpdatedAt = &now
		applied, err := e.projectionRepo.SetCurrentVersionIfUnlocked(ctx, current)
		if err != nil {
			return err
		}
		if !applied {
			return errSectionLocked
		}

		projectionVersion, err = e.projectionRepo.Touch(ctx, projectionID, memoirRepo.ProjectionChange{
			Bump:      !state.bumped,
			Mode:      string(state.mode),
			WordCount: state.totalWords(sectionID, words),
			UpdatedAt: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	state.bumped = true
	state.version = projectionVersion
	state.wordCount[sectionID] = words
	return version, nil
}

// sectionPlan is what the mode's policy decided to send for one section
type sectionPlan struct {
	task        llmSvc.Task
	generatedBy models.GeneratedBy
	items       []models.ContentItem
	sources     []string
	existing    string
	newIDs      []string
}

// planSection applies the selection and integration policy of mode.
// A nil plan means the section is unchanged.
func (e *engine) planSection(mode models.UpdateMode, section *models.Section, pool, explicit []models.ContentItem) *sectionPlan {
	switch mode {
	case models.ModeGenerate, models.ModeRegenerate:
		relevant := e.scorer.Relevant(section, pool)
		if len(relevant) == 0 {
			return nil
		}
		generatedBy := models.GeneratedByGenerate
		if mode == models.ModeRegenerate {
			generatedBy = models.GeneratedByRegenerate
		}
		return &sectionPlan{
			task:        llmSvc.TaskNewSection,
			generatedBy: generatedBy,
			items:       itemsOf(relevant),
			sources:     itemIDs(relevant),
			newIDs:      itemIDs(NewlyRelevant(section, relevant)),
		}

	case models.ModeEvolve, models.ModeRefresh:
		relevant := e.scorer.Relevant(section, pool)
		fresh := NewlyRelevant(section, relevant)
		if len(fresh) == 0 {
			return nil
		}
		if section.CurrentVersionID == nil {
			return &sectionPlan{
				task:        llmSvc.TaskNewSection,
				generatedBy: models.GeneratedByEvolve,
				items:       itemsOf(relevant),
				sources:     itemIDs(relevant),
				newIDs:      itemIDs(fresh),
			}
		}
		return integrate(section, itemsOf(fresh))

	case models.ModeAppend:
		var fresh []models.ContentItem
		for _, item := range explicit {
			if !section.HasSource(item.ID) {
				fresh = append(fresh, item)
			}
		}
		if len(fresh) == 0 {
			return nil
		}
		if section.CurrentVersionID == nil {
			ids := make([]string, len(fresh))
			for i, item := range fresh {
				ids[i] = item.ID
			}
			return &sectionPlan{
				task:        llmSvc.TaskNewSection,
				generatedBy: models.GeneratedByEvolve,
				items:       fresh,
				sources:     unionIDs(section.SourceContentIDs, ids),
				newIDs:      ids,
			}
		}
		return integrate(section, fresh)
	}
	return nil
}

// integrate builds an evolve plan: existing text plus only the new material
func integrate(section *models.Section, fresh []models.ContentItem) *sectionPlan {
	ids := make([]string, len(fresh))
	for i, item := range fresh {
		ids[i] = item.ID
	}
	return &sectionPlan{
		task:        llmSvc.TaskEvolveSection,
		generatedBy: models.GeneratedByEvolve,
		items:       fresh,
		sources:     unionIDs(section.SourceContentIDs, ids),
		existing:    section.Text,
		newIDs:      ids,
	}
}

// resolveConfig pins the product definition for this call. Projections
// without a product, or whose product is no longer registered, keep their
// stored section tags.
func (e *engine) resolveConfig(projection *models.Projection) *products.Resolved {
	if e.products == nil || projection.ProductID == "" {
		return nil
	}
	resolved, err := e.products.Resolve(projection.ProductID, projection.DefinitionID)
	if err != nil {
		e.logger.Warn("product configuration unavailable, using stored section tags",
			"projection_id", projection.ID,
			"product_id", projection.ProductID,
			"error", err,
		)
		return nil
	}
	return resolved
}

// applyTemplates refreshes section tags and questions from their templates
func applyTemplates(sections []models.Section, resolved *products.Resolved) {
	for i := range sections {
		if sections[i].Key == "" {
			continue
		}
		if tmpl := resolved.Template(sections[i].Key); tmpl != nil {
			sections[i].Tags = NormalizeTags(tmpl.Tags)
			sections[i].QuestionIDs = slices.Clone(tmpl.QuestionIDs)
		}
	}
}

// selectTargets returns the sections to consider, in document order
func selectTargets(projection *models.Projection, sectionIDs []string) ([]models.Section, error) {
	if len(sectionIDs) == 0 {
		return slices.Clone(projection.Sections), nil
	}

	wanted := make(map[string]bool, len(sectionIDs))
	for _, id := range sectionIDs {
		if projection.Section(id) == nil {
			return nil, &domain.NotFoundError{
				Message: fmt.Sprintf("section %s not found in projection %s", id, projection.ID),
			}
		}
		wanted[id] = true
	}

	targets := make([]models.Section, 0, len(wanted))
	for _, s := range projection.Sections {
		if wanted[s.ID] {
			targets = append(targets, s)
		}
	}
	return targets, nil
}

// loadExplicitContent loads append material and checks it belongs to the project
func (e *engine) loadExplicitContent(ctx context.Context, projectID string, ids []string) ([]models.ContentItem, error) {
	items, err := e.contentRepo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.ContentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	ordered := make([]models.ContentItem, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		item, ok := byID[id]
		if !ok || item.ProjectID != projectID {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("content item %s does not belong to project %s", id, projectID),
			}
		}
		ordered = append(ordered, item)
	}
	return ordered, nil
}

func validateUpdateRequest(req *memoirSvc.UpdateRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.ProjectionID, validation.Required),
		validation.Field(&req.Mode, validation.In(updateModeValues()...)),
	)
}

func updateModeValues() []interface{} {
	values := make([]interface{}, len(models.UpdateModes))
	for i, m := range models.UpdateModes {
		values[i] = m
	}
	return values
}

func unionIDs(existing, added []string) []string {
	out := slices.Clone(existing)
	for _, id := range added {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
