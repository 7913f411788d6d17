package memoir

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"memoir/internal/config"
	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	"memoir/internal/domain/repositories"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	memoirSvc "memoir/internal/domain/services/memoir"
	"memoir/internal/service/markup"
	"memoir/internal/utils"
)

const (
	EditFormatMarkdown = "markdown"
	EditFormatHTML     = "html"

	lastModeManualEdit = "manual_edit"
	lastModeRevert     = "revert"
)

// sectionService implements the SectionService interface
type sectionService struct {
	projectionRepo memoirRepo.ProjectionRepository
	txManager      repositories.TransactionManager
	locker         memoirRepo.Locker
	converter      *markup.Converter
	clock          Clock
	logger         *slog.Logger
}

// NewSectionService creates a new section service
func NewSectionService(
	projectionRepo memoirRepo.ProjectionRepository,
	txManager repositories.TransactionManager,
	locker memoirRepo.Locker,
	converter *markup.Converter,
	clock Clock,
	logger *slog.Logger,
) memoirSvc.SectionService {
	if clock == nil {
		clock = time.Now
	}
	if converter == nil {
		converter = markup.NewConverter()
	}
	return &sectionService{
		projectionRepo: projectionRepo,
		txManager:      txManager,
		locker:         locker,
		converter:      converter,
		clock:          clock,
		logger:         logger,
	}
}

// Lock freezes a section against automated updates. Locking a locked section
// is a no-op.
func (s *sectionService) Lock(ctx context.Context, req *memoirSvc.LockSectionRequest) (*models.Section, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ProjectionID, validation.Required),
		validation.Field(&req.SectionID, validation.Required),
		validation.Field(&req.Reason, validation.NilOrNotEmpty, validation.Length(1, config.MaxLockReasonLength)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	section, err := s.projectionRepo.GetSection(ctx, req.ProjectionID, req.SectionID)
	if err != nil {
		return nil, err
	}
	if section.IsLocked() {
		return section, nil
	}

	now := s.clock()
	section.LockState = models.LockStateLocked
	section.LockedAt = &now
	section.LockedBy = optionalString(req.UserID)
	section.LockReason = req.Reason
	if err := s.projectionRepo.UpdateSectionLock(ctx, section); err != nil {
		return nil, err
	}

	s.logger.Info("section locked",
		"projection_id", req.ProjectionID,
		"section_id", req.SectionID,
		"locked_by", req.UserID,
	)
	return section, nil
}

// Unlock makes a section eligible for automated updates again
func (s *sectionService) Unlock(ctx context.Context, projectionID, sectionID string) (*models.Section, error) {
	section, err := s.projectionRepo.GetSection(ctx, projectionID, sectionID)
	if err != nil {
		return nil, err
	}
	if !section.IsLocked() {
		return section, nil
	}

	section.LockState = models.LockStateUnlocked
	section.LockedAt = nil
	section.LockedBy = nil
	section.LockReason = nil
	if err := s.projectionRepo.UpdateSectionLock(ctx, section); err != nil {
		return nil, err
	}

	s.logger.Info("section unlocked", "projection_id", projectionID, "section_id", sectionID)
	return section, nil
}

// Edit records a manual revision. Edits are allowed on locked sections and
// keep the section's provenance.
func (s *sectionService) Edit(ctx context.Context, req *memoirSvc.EditSectionRequest) (*models.SectionVersion, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ProjectionID, validation.Required),
		validation.Field(&req.SectionID, validation.Required),
		validation.Field(&req.Text, validation.Required, validation.Length(1, config.MaxSectionTextLength)),
		validation.Field(&req.Format, validation.In(EditFormatMarkdown, EditFormatHTML)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	text := req.Text
	if req.Format == EditFormatHTML {
		converted, err := s.converter.HTMLToMarkdown(req.Text)
		if err != nil {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("invalid html: %v", err)}
		}
		text = converted
	}

	release, err := acquireProjection(ctx, s.locker, req.ProjectionID)
	if err != nil {
		return nil, err
	}
	defer release()

	var version *models.SectionVersion
	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		section, err := s.projectionRepo.GetSection(ctx, req.ProjectionID, req.SectionID)
		if err != nil {
			return err
		}

		version = &models.SectionVersion{
			ID:               uuid.NewString(),
			SectionID:        section.ID,
			Text:             text,
			SourceContentIDs: section.SourceContentIDs,
			GeneratedBy:      models.GeneratedByManualEdit,
			CreatedBy:        optionalString(req.UserID),
		}
		if err := s.commit(ctx, section, version, lastModeManualEdit); err != nil {
			return err
		}

		if req.LockAfter && !section.IsLocked() {
			section.LockState = models.LockStateLocked
			section.LockedAt = &version.CreatedAt
			section.LockedBy = optionalString(req.UserID)
			return s.projectionRepo.UpdateSectionLock(ctx, section)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("section edited",
		"projection_id", req.ProjectionID,
		"section_id", req.SectionID,
		"sequence", version.SequenceNumber,
		"lock_after", req.LockAfter,
	)
	return version, nil
}

// Revert appends a copy of an earlier version. History is never rewritten.
func (s *sectionService) Revert(ctx context.Context, req *memoirSvc.RevertSectionRequest) (*models.SectionVersion, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ProjectionID, validation.Required),
		validation.Field(&req.SectionID, validation.Required),
		validation.Field(&req.SequenceNumber, validation.Required, validation.Min(1)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	release, err := acquireProjection(ctx, s.locker, req.ProjectionID)
	if err != nil {
		return nil, err
	}
	defer release()

	var version *models.SectionVersion
	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		section, err := s.projectionRepo.GetSection(ctx, req.ProjectionID, req.SectionID)
		if err != nil {
			return err
		}

		target, err := s.projectionRepo.GetVersionBySequence(ctx, section.ID, req.SequenceNumber)
		if err != nil {
			return err
		}

		version = &models.SectionVersion{
			ID:               uuid.NewString(),
			SectionID:        section.ID,
			Text:             target.Text,
			SourceContentIDs: target.SourceContentIDs,
			GeneratedBy:      target.GeneratedBy,
			CreatedBy:        optionalString(req.UserID),
		}
		return s.commit(ctx, section, version, lastModeRevert)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("section reverted",
		"projection_id", req.ProjectionID,
		"section_id", req.SectionID,
		"target_sequence", req.SequenceNumber,
		"sequence", version.SequenceNumber,
	)
	return version, nil
}

// History lists a section's versions oldest first
func (s *sectionService) History(ctx context.Context, projectionID, sectionID string) ([]models.SectionVersion, error) {
	if _, err := s.projectionRepo.GetSection(ctx, projectionID, sectionID); err != nil {
		return nil, err
	}
	versions, err := s.projectionRepo.ListVersions(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []models.SectionVersion{}
	}
	return versions, nil
}

// commit appends version, points the section at it and bumps the projection.
// Must run inside a transaction.
func (s *sectionService) commit(ctx context.Context, section *models.Section, version *models.SectionVersion, mode string) error {
	now := s.clock()
	version.CreatedAt = now
	if err := s.projectionRepo.AppendVersion(ctx, version); err != nil {
		return err
	}

	section.CurrentVersionID = &version.ID
	section.SourceContentIDs = version.SourceContentIDs
	section.Text = version.Text
	section.WordCount = utils.CountWords(version.Text)
	section.LastUpdatedAt = &now
	if err := s.projectionRepo.SetCurrentVersion(ctx, section); err != nil {
		return err
	}

	projection, err := s.projectionRepo.GetByID(ctx, section.ProjectionID)
	if err != nil {
		return err
	}
	total := 0
	for _, other := range projection.Sections {
		if other.ID == section.ID {
			total += section.WordCount
			continue
		}
		total += other.WordCount
	}

	_, err = s.projectionRepo.Touch(ctx, section.ProjectionID, memoirRepo.ProjectionChange{
		Bump:      true,
		Mode:      mode,
		WordCount: total,
		UpdatedAt: now,
	})
	return err
}
