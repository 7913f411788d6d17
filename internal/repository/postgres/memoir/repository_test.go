package memoir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	"memoir/internal/repository/postgres"
	"memoir/internal/repository/postgres/migrations"
)

// newTestConfig connects to MEMOIR_TEST_DATABASE_URL and migrates a fresh
// schema that is dropped when the test ends.
func newTestConfig(t *testing.T) *postgres.RepositoryConfig {
	t.Helper()

	databaseURL := os.Getenv("MEMOIR_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("MEMOIR_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	pool, err := postgres.CreateConnectionPool(ctx, databaseURL, logger)
	require.NoError(t, err)

	schema := fmt.Sprintf("memoir_it_%d", time.Now().UnixNano())
	require.NoError(t, postgres.EnsureSchema(ctx, pool, schema))
	require.NoError(t, migrations.MigrateUp(databaseURL, schema))

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		pool.Close()
	})

	return &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(schema),
		Logger: logger,
	}
}

func newItem(projectID, text string, tags ...string) *models.ContentItem {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.ContentItem{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		ContributorID: "alice",
		ContentType:   models.ContentTypeText,
		Content:       map[string]interface{}{"text": text},
		Tags:          tags,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestContentRepository(t *testing.T) {
	cfg := newTestConfig(t)
	repo := NewContentRepository(cfg)
	ctx := context.Background()

	first := newItem("p1", "Born in Duluth", "childhood")
	second := newItem("p1", "Worked at the mill")
	other := newItem("p2", "Elsewhere")
	for _, item := range []*models.ContentItem{first, second, other} {
		require.NoError(t, repo.Append(ctx, item))
	}
	assert.Less(t, first.Sequence, second.Sequence)

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Born in Duluth", got.Text())
	assert.Equal(t, []string{"childhood"}, got.Tags)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	page, err := repo.ListSince(ctx, "p1", first.Sequence, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)

	limited, err := repo.ListSince(ctx, "p1", 0, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	head, err := repo.HeadSequence(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, second.Sequence, head)

	empty, err := repo.HeadSequence(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty)

	correction := newItem("p1", "Born in Duluth, Minnesota")
	correction.Version = 2
	correction.PreviousVersionID = &first.ID
	require.NoError(t, repo.Append(ctx, correction))

	has, err := repo.HasSuccessor(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, has)

	fork := newItem("p1", "Born somewhere else")
	fork.Version = 2
	fork.PreviousVersionID = &first.ID
	var conflict *domain.ConflictError
	require.ErrorAs(t, repo.Append(ctx, fork), &conflict)
	assert.Equal(t, domain.ReasonNotLatest, conflict.Reason)

	many, err := repo.GetMany(ctx, []string{second.ID, "missing", first.ID})
	require.NoError(t, err)
	assert.Len(t, many, 2)
}

func TestContentAppendsCommitInSequenceOrder(t *testing.T) {
	cfg := newTestConfig(t)
	repo := NewContentRepository(cfg)
	txManager := postgres.NewTransactionManager(cfg.Pool, cfg.Logger)
	ctx := context.Background()

	first := newItem("p1", "Drawn first, committed late")
	second := newItem("p1", "Drawn second")

	appended := make(chan struct{})
	commit := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- txManager.ExecTx(ctx, func(ctx context.Context) error {
			if err := repo.Append(ctx, first); err != nil {
				return err
			}
			close(appended)
			<-commit
			return nil
		})
	}()
	<-appended

	secondDone := make(chan error, 1)
	go func() { secondDone <- repo.Append(ctx, second) }()

	select {
	case err := <-secondDone:
		t.Fatalf("second append finished while the first was uncommitted: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	// A reader moving its mark now must not get past the open append
	visible, err := repo.ListSince(ctx, "p1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, visible)

	close(commit)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)
	assert.Less(t, first.Sequence, second.Sequence)

	visible, err = repo.ListSince(ctx, "p1", 0, 0)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, first.ID, visible[0].ID)
	assert.Equal(t, second.ID, visible[1].ID)

	// Other projects are not held up by the pool lock
	other := newItem("p2", "Unrelated")
	require.NoError(t, repo.Append(ctx, other))
}

func TestNarrativeRepository(t *testing.T) {
	cfg := newTestConfig(t)
	repo := NewNarrativeRepository(cfg)
	ctx := context.Background()

	_, err := repo.Get(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	nc := models.NewNarrativeContext("p1")
	nc.AddTheme("resilience", "Resilience", "", "c1")
	nc.AddFact("hometown", "Duluth", "c1")
	nc.AddEvent(models.TimelineEvent{Date: "1961", Label: "moved north", ContentID: "c1"})
	nc.LastProcessedSequence = 4
	nc.MarkPending("c2")
	nc.FailedAttempts["c2"] = 1
	nc.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.Save(ctx, nc))

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Resilience", got.Themes["resilience"].Name)
	assert.Equal(t, "Duluth", got.Facts["hometown"].Value)
	assert.Len(t, got.Timeline, 1)
	assert.Equal(t, int64(4), got.LastProcessedSequence)
	assert.Equal(t, []string{"c2"}, got.PendingContentIDs)
	assert.Equal(t, 1, got.FailedAttempts["c2"])

	got.ClearPending("c2")
	got.LastProcessedSequence = 5
	require.NoError(t, repo.Save(ctx, got))

	again, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, again.PendingContentIDs)
	assert.Equal(t, int64(5), again.LastProcessedSequence)
}

func TestProjectionRepository(t *testing.T) {
	cfg := newTestConfig(t)
	repo := NewProjectionRepository(cfg)
	txm := postgres.NewTransactionManager(cfg.Pool, cfg.Logger)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	projection := &models.Projection{
		ID:                uuid.NewString(),
		ProjectID:         "p1",
		Name:              "Grandma's Story",
		Style:             models.StyleThematic,
		Length:            models.LengthStandard,
		DefaultUpdateMode: models.ModeEvolve,
		ContributorFilter: []string{"alice"},
		ExcludeTags:       []string{"private"},
		AutoUpdate:        true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for i, title := range []string{"Early Years", "Career"} {
		projection.Sections = append(projection.Sections, models.Section{
			ID:           uuid.NewString(),
			ProjectionID: projection.ID,
			Title:        title,
			Order:        i,
			LockState:    models.LockStateUnlocked,
			Tags:         []string{"childhood"},
			CreatedAt:    now,
		})
	}
	require.NoError(t, repo.Create(ctx, projection))

	got, err := repo.GetByID(ctx, projection.ID)
	require.NoError(t, err)
	require.Len(t, got.Sections, 2)
	assert.Equal(t, "Early Years", got.Sections[0].Title)
	assert.Zero(t, got.Version)
	assert.Equal(t, []string{"alice"}, got.ContributorFilter)
	assert.Empty(t, got.TagFilter)
	assert.Equal(t, []string{"private"}, got.ExcludeTags)
	assert.True(t, got.AutoUpdate)

	section := got.Sections[0]
	err = txm.ExecTx(ctx, func(txCtx context.Context) error {
		for i := 0; i < 2; i++ {
			version := &models.SectionVersion{
				ID:               uuid.NewString(),
				SectionID:        section.ID,
				Text:             fmt.Sprintf("draft %d", i+1),
				SourceContentIDs: []string{"c1"},
				GeneratedBy:      models.GeneratedByGenerate,
				CreatedAt:        now,
			}
			if err := repo.AppendVersion(txCtx, version); err != nil {
				return err
			}
			assert.Equal(t, i+1, version.SequenceNumber)

			section.CurrentVersionID = &version.ID
			section.Text = version.Text
			section.WordCount = 2
			section.SourceContentIDs = version.SourceContentIDs
			section.LastUpdatedAt = &now
			if err := repo.SetCurrentVersion(txCtx, &section); err != nil {
				return err
			}
		}
		_, err := repo.Touch(txCtx, projection.ID, memoirRepo.ProjectionChange{
			Bump: true, Mode: string(models.ModeGenerate), WordCount: 2, UpdatedAt: now,
		})
		return err
	})
	require.NoError(t, err)

	versions, err := repo.ListVersions(ctx, section.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "draft 1", versions[0].Text)

	first, err := repo.GetVersionBySequence(ctx, section.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, versions[0].ID, first.ID)

	_, err = repo.GetVersionBySequence(ctx, section.ID, 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	version, err := repo.Touch(ctx, projection.ID, memoirRepo.ProjectionChange{WordCount: 2, UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	reloaded, err := repo.GetByID(ctx, projection.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft 2", reloaded.Sections[0].Text)
	require.NotNil(t, reloaded.LastUpdateMode)
	assert.Equal(t, "generate", *reloaded.LastUpdateMode)

	section.LockState = models.LockStateLocked
	section.LockedAt = &now
	require.NoError(t, repo.UpdateSectionLock(ctx, &section))
	locked, err := repo.GetSection(ctx, projection.ID, section.ID)
	require.NoError(t, err)
	assert.True(t, locked.IsLocked())

	list, err := repo.ListByProject(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Sections, 2)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetCurrentVersionIfUnlockedRechecksLock(t *testing.T) {
	cfg := newTestConfig(t)
	repo := NewProjectionRepository(cfg)
	txm := postgres.NewTransactionManager(cfg.Pool, cfg.Logger)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	projection := &models.Projection{
		ID:                uuid.NewString(),
		ProjectID:         "p1",
		Name:              "Story",
		Style:             models.StyleThematic,
		Length:            models.LengthStandard,
		DefaultUpdateMode: models.ModeEvolve,
		CreatedAt:         now,
		UpdatedAt:         now,
		Sections: []models.Section{{
			ID:        uuid.NewString(),
			Title:     "Career",
			LockState: models.LockStateUnlocked,
			CreatedAt: now,
		}},
	}
	projection.Sections[0].ProjectionID = projection.ID
	require.NoError(t, repo.Create(ctx, projection))
	sectionID := projection.Sections[0].ID

	err := txm.ExecTx(ctx, func(txCtx context.Context) error {
		// Read while unlocked, as the engine does before committing
		read, err := repo.GetSection(txCtx, projection.ID, sectionID)
		require.NoError(t, err)
		require.False(t, read.IsLocked())

		// A lock from another connection commits in between
		locked := *read
		locked.LockState = models.LockStateLocked
		locked.LockedAt = &now
		require.NoError(t, repo.UpdateSectionLock(ctx, &locked))

		version := &models.SectionVersion{
			ID:          uuid.NewString(),
			SectionID:   sectionID,
			Text:        "generated",
			GeneratedBy: models.GeneratedByEvolve,
			CreatedAt:   now,
		}
		require.NoError(t, repo.AppendVersion(txCtx, version))

		read.CurrentVersionID = &version.ID
		read.Text = version.Text
		read.LastUpdatedAt = &now
		applied, err := repo.SetCurrentVersionIfUnlocked(txCtx, read)
		require.NoError(t, err)
		assert.False(t, applied)
		return errors.New("section locked")
	})
	require.Error(t, err)

	stored, err := repo.GetSection(ctx, projection.ID, sectionID)
	require.NoError(t, err)
	assert.True(t, stored.IsLocked())
	assert.Nil(t, stored.CurrentVersionID)
	assert.Empty(t, stored.Text)

	history, err := repo.ListVersions(ctx, sectionID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAdvisoryLocker(t *testing.T) {
	cfg := newTestConfig(t)
	locker := postgres.NewAdvisoryLocker(cfg.Pool, cfg.Logger)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "projection:x")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "projection:x")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release()

	again, ok, err := locker.TryLock(ctx, "projection:x")
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}
