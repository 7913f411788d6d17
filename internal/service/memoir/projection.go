package memoir

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"memoir/internal/config"
	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	memoirSvc "memoir/internal/domain/services/memoir"
	"memoir/internal/products"
	"memoir/internal/service/markup"
)

// projectionService implements the ProjectionService interface
type projectionService struct {
	projectionRepo memoirRepo.ProjectionRepository
	contentRepo    memoirRepo.ContentRepository
	narrative      memoirSvc.NarrativeService
	products       *products.Registry
	scorer         *Scorer
	converter      *markup.Converter
	clock          Clock
	logger         *slog.Logger
}

// NewProjectionService creates a new projection service
func NewProjectionService(
	projectionRepo memoirRepo.ProjectionRepository,
	contentRepo memoirRepo.ContentRepository,
	narrative memoirSvc.NarrativeService,
	registry *products.Registry,
	scorer *Scorer,
	converter *markup.Converter,
	clock Clock,
	logger *slog.Logger,
) memoirSvc.ProjectionService {
	if clock == nil {
		clock = time.Now
	}
	if scorer == nil {
		scorer = NewScorer(0, 0, clock)
	}
	if converter == nil {
		converter = markup.NewConverter()
	}
	return &projectionService{
		projectionRepo: projectionRepo,
		contentRepo:    contentRepo,
		narrative:      narrative,
		products:       registry,
		scorer:         scorer,
		converter:      converter,
		clock:          clock,
		logger:         logger,
	}
}

// Create builds a projection and its (empty) sections
func (s *projectionService) Create(ctx context.Context, req *memoirSvc.CreateProjectionRequest) (*models.Projection, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ProjectID, validation.Required),
		validation.Field(&req.Name, validation.Length(0, config.MaxProjectionNameLength)),
		validation.Field(&req.Style, validation.In(stringValues(models.Styles)...)),
		validation.Field(&req.Length, validation.In(stringValues(models.Lengths)...)),
		validation.Field(&req.DefaultUpdateMode, validation.In(stringValues(models.UpdateModes)...)),
		validation.Field(&req.Sections, validation.Each(validation.By(validateSectionRequest))),
		validation.Field(&req.ContributorFilter, validation.Each(validation.Required)),
		validation.Field(&req.TagFilter, validation.Each(validation.Length(1, config.MaxTagLength))),
		validation.Field(&req.ExcludeTags, validation.Each(validation.Length(1, config.MaxTagLength))),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var resolved *products.Resolved
	if req.ProductID != "" {
		if s.products == nil {
			return nil, &domain.ValidationError{Message: "no product catalog is configured"}
		}
		var err error
		resolved, err = s.products.Resolve(req.ProductID, req.DefinitionID)
		if err != nil {
			return nil, err
		}
	}

	now := s.clock()
	projection := &models.Projection{
		ID:                uuid.NewString(),
		ProjectID:         req.ProjectID,
		Name:              req.Name,
		ProductID:         req.ProductID,
		Style:             models.Style(req.Style),
		Length:            models.Length(req.Length),
		VoiceGuidance:     req.VoiceGuidance,
		DefaultUpdateMode: models.UpdateMode(req.DefaultUpdateMode),
		ContributorFilter: req.ContributorFilter,
		TagFilter:         NormalizeTags(req.TagFilter),
		ExcludeTags:       NormalizeTags(req.ExcludeTags),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var templates []models.Section
	if resolved != nil {
		def := resolved.Definition
		projection.DefinitionID = def.ID
		projection.Name = firstNonEmpty(projection.Name, def.Name)
		projection.Style = models.Style(firstNonEmpty(string(projection.Style), def.Style))
		projection.Length = models.Length(firstNonEmpty(string(projection.Length), def.Length))
		projection.VoiceGuidance = firstNonEmpty(projection.VoiceGuidance, def.VoiceGuidance)
		projection.DefaultUpdateMode = models.UpdateMode(firstNonEmpty(string(projection.DefaultUpdateMode), def.DefaultUpdateMode))
		if len(projection.ContributorFilter) == 0 {
			projection.ContributorFilter = def.ContributorFilter
		}
		if len(projection.TagFilter) == 0 {
			projection.TagFilter = NormalizeTags(def.TagFilter)
		}
		if len(projection.ExcludeTags) == 0 {
			projection.ExcludeTags = NormalizeTags(def.ExcludeTags)
		}
		projection.AutoUpdate = def.AutoUpdate
		templates = sectionsFromDefinition(resolved)
	}
	if req.AutoUpdateOnContent != nil {
		projection.AutoUpdate = *req.AutoUpdateOnContent
	}

	if projection.Style == "" {
		return nil, &domain.ValidationError{Message: "style is required without a product definition"}
	}
	if projection.Length == "" {
		projection.Length = models.LengthStandard
	}
	if projection.DefaultUpdateMode == "" {
		projection.DefaultUpdateMode = models.ModeEvolve
	}
	if projection.Name == "" {
		projection.Name = defaultProjectionName(projection.Style)
	}

	sections := sectionsFromRequest(req.Sections)
	if len(sections) == 0 {
		sections = templates
	}
	if len(sections) == 0 {
		derived, err := s.deriveSections(ctx, projection, resolved)
		if err != nil {
			return nil, err
		}
		sections = derived
	}
	if len(sections) == 0 {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("no sections could be derived for a %s projection; pass sections explicitly", projection.Style),
		}
	}

	for i := range sections {
		sections[i].ID = uuid.NewString()
		sections[i].ProjectionID = projection.ID
		sections[i].Order = i
		sections[i].LockState = models.LockStateUnlocked
		sections[i].SourceContentIDs = []string{}
		sections[i].CreatedAt = now
	}
	projection.Sections = sections

	if err := s.projectionRepo.Create(ctx, projection); err != nil {
		return nil, err
	}

	s.logger.Info("projection created",
		"id", projection.ID,
		"project_id", projection.ProjectID,
		"style", projection.Style,
		"product_id", projection.ProductID,
		"definition_id", projection.DefinitionID,
		"sections", len(projection.Sections),
	)
	return projection, nil
}

// Get retrieves a projection with its sections
func (s *projectionService) Get(ctx context.Context, id string) (*models.Projection, error) {
	return s.projectionRepo.GetByID(ctx, id)
}

// List returns a project's projections
func (s *projectionService) List(ctx context.Context, projectID string) ([]models.Projection, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project_id is required: %w", domain.ErrValidation)
	}
	projections, err := s.projectionRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if projections == nil {
		projections = []models.Projection{}
	}
	return projections, nil
}

// UpdateOptions reports what each mode would touch right now. It never
// generates text.
func (s *projectionService) UpdateOptions(ctx context.Context, id string) (*models.UpdateOptions, error) {
	projection, err := s.projectionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := s.contentRepo.ListByProject(ctx, projection.ProjectID)
	if err != nil {
		return nil, err
	}
	pool := FilterPool(projection, LatestVersions(items))

	narrativeStale, err := s.narrative.IsStale(ctx, projection.ProjectID)
	if err != nil {
		return nil, err
	}

	sections := projection.Sections
	if s.products != nil && projection.ProductID != "" {
		if resolved, err := s.products.Resolve(projection.ProductID, projection.DefinitionID); err == nil {
			sections = append([]models.Section(nil), sections...)
			applyTemplates(sections, resolved)
		}
	}

	opts := &models.UpdateOptions{
		ProjectionID:   projection.ID,
		Version:        projection.Version,
		NarrativeStale: narrativeStale,
	}

	var unlocked, regenerable, stale []string
	newIDs := make(map[string]bool)
	for i := range sections {
		section := &sections[i]
		if section.IsLocked() {
			opts.LockedSections++
			continue
		}
		unlocked = append(unlocked, section.ID)

		relevant := s.scorer.Relevant(section, pool)
		if len(relevant) > 0 {
			regenerable = append(regenerable, section.ID)
		}
		fresh := NewlyRelevant(section, relevant)
		if len(fresh) > 0 {
			stale = append(stale, section.ID)
		}
		for _, si := range fresh {
			newIDs[si.Item.ID] = true
		}
	}

	opts.NewContentCount = len(newIDs)
	opts.HasNewContent = len(newIDs) > 0
	opts.StaleSections = len(stale)
	opts.RegenerableSections = len(regenerable)
	opts.Modes = []models.ModeImpact{
		modeImpact(models.ModeEvolve, "Weave newly relevant content into existing text", stale),
		modeImpact(models.ModeRefresh, "Update only sections with newly relevant content", stale),
		modeImpact(models.ModeGenerate, "Write sections from all relevant content", regenerable),
		modeImpact(models.ModeRegenerate, "Rewrite sections from scratch, keeping history", regenerable),
		modeImpact(models.ModeAppend, "Insert chosen content into chosen sections", unlocked),
	}
	return opts, nil
}

// Export renders the projection as markdown or sanitized HTML
func (s *projectionService) Export(ctx context.Context, id string, format string) (*memoirSvc.Export, error) {
	if format == "" {
		format = memoirSvc.ExportMarkdown
	}
	if format != memoirSvc.ExportMarkdown && format != memoirSvc.ExportHTML {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("unsupported export format: %s", format)}
	}

	projection, err := s.projectionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	markdown := fmt.Sprintf("# %s\n\n%s\n", projection.Name, projection.FullText())
	base := slugify(projection.Name)

	if format == memoirSvc.ExportHTML {
		return &memoirSvc.Export{
			Format:      memoirSvc.ExportHTML,
			ContentType: "text/html; charset=utf-8",
			Filename:    base + ".html",
			Body:        s.converter.MarkdownToHTML(markdown),
		}, nil
	}
	return &memoirSvc.Export{
		Format:      memoirSvc.ExportMarkdown,
		ContentType: "text/markdown; charset=utf-8",
		Filename:    base + ".md",
		Body:        markdown,
	}, nil
}

// StorySectionTitle titles the single section derived for chronological and
// freeform projections
const StorySectionTitle = "The Story"

// deriveSections builds sections from the pool or narrative when neither the
// request nor the definition lists any
func (s *projectionService) deriveSections(ctx context.Context, projection *models.Projection, resolved *products.Resolved) ([]models.Section, error) {
	switch projection.Style {
	case models.StyleThematic:
		nc, err := s.narrative.Get(ctx, projection.ProjectID)
		if err != nil {
			return nil, err
		}
		var sections []models.Section
		for _, theme := range nc.ThemesByStrength() {
			sections = append(sections, models.Section{
				Title: theme.Name,
				Tags:  []string{NormalizeTag(theme.Name)},
			})
		}
		return sections, nil

	case models.StyleByContributor:
		items, err := s.contentRepo.ListByProject(ctx, projection.ProjectID)
		if err != nil {
			return nil, err
		}
		var sections []models.Section
		seen := make(map[string]bool)
		for _, item := range items {
			if item.ContributorID == "" || seen[item.ContributorID] {
				continue
			}
			seen[item.ContributorID] = true
			sections = append(sections, models.Section{
				Title: item.ContributorID,
				Tags:  []string{models.ContributorTagPrefix + item.ContributorID},
			})
		}
		return sections, nil

	case models.StyleQuestions:
		if resolved == nil {
			return nil, nil
		}
		var sections []models.Section
		for _, q := range resolved.Product.Questions {
			sections = append(sections, models.Section{
				Title:       q.Text,
				Tags:        NormalizeTags(q.Tags),
				QuestionIDs: []string{q.ID},
			})
		}
		return sections, nil

	case models.StyleChronological, models.StyleFreeform:
		// Untagged, so every item is relevant and ties fall back to created_at
		return []models.Section{{Title: StorySectionTitle}}, nil
	}
	return nil, nil
}

func sectionsFromDefinition(resolved *products.Resolved) []models.Section {
	templates := append([]products.SectionTemplate(nil), resolved.Definition.Sections...)
	sort.SliceStable(templates, func(i, j int) bool {
		return templates[i].Order < templates[j].Order
	})

	sections := make([]models.Section, 0, len(templates))
	for _, t := range templates {
		sections = append(sections, models.Section{
			Key:         t.ID,
			Title:       t.Title,
			Tags:        NormalizeTags(t.Tags),
			QuestionIDs: append([]string{}, t.QuestionIDs...),
		})
	}
	return sections
}

func sectionsFromRequest(reqs []memoirSvc.SectionRequest) []models.Section {
	sections := make([]models.Section, 0, len(reqs))
	for _, r := range reqs {
		sections = append(sections, models.Section{
			Key:         r.Key,
			Title:       strings.TrimSpace(r.Title),
			Tags:        NormalizeTags(r.Tags),
			QuestionIDs: append([]string{}, r.QuestionIDs...),
		})
	}
	return sections
}

func validateSectionRequest(value interface{}) error {
	r, ok := value.(memoirSvc.SectionRequest)
	if !ok {
		return fmt.Errorf("invalid section")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, config.MaxSectionTitleLength)),
		validation.Field(&r.Tags, validation.Each(validation.Length(1, config.MaxTagLength))),
	)
}

func modeImpact(mode models.UpdateMode, description string, sectionIDs []string) models.ModeImpact {
	if sectionIDs == nil {
		sectionIDs = []string{}
	}
	return models.ModeImpact{
		Mode:            mode,
		Description:     description,
		AffectsSections: sectionIDs,
		Available:       len(sectionIDs) > 0,
	}
}

func defaultProjectionName(style models.Style) string {
	switch style {
	case models.StyleThematic:
		return "Themes"
	case models.StyleChronological:
		return "Life Story"
	case models.StyleByContributor:
		return "Voices"
	case models.StyleQuestions:
		return "Questions & Answers"
	default:
		return "Memoir"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// slugify lowercases name and collapses everything but letters and digits to dashes
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "memoir"
	}
	return slug
}

func stringValues[T ~string](values []T) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
