package seed_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir/internal/app"
	"memoir/internal/config"
	models "memoir/internal/domain/models/memoir"
	llmSvc "memoir/internal/domain/services/llm"
	"memoir/internal/seed"
)

type echoGenerator struct{}

func (echoGenerator) Name() string { return "echo" }

func (echoGenerator) Generate(_ context.Context, req *llmSvc.GenerationRequest) (string, error) {
	switch req.Task {
	case llmSvc.TaskThemeExtraction:
		return `{"themes":[]}`, nil
	case llmSvc.TaskFactExtraction:
		return `{"facts":[]}`, nil
	default:
		return req.SectionTitle + ".", nil
	}
}

func TestSeed(t *testing.T) {
	cfg := &config.Config{
		Environment:        "test",
		Storage:            "memory",
		SectionTimeout:     5 * time.Second,
		MaxSyncAttempts:    3,
		RelevanceThreshold: 0.3,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := app.New(ctx, cfg, logger, app.WithGenerator(echoGenerator{}))
	require.NoError(t, err)
	defer a.Close()

	seeder := seed.NewSeeder(a.Content, a.Narrative, a.Projections, a.Engine, logger)
	result, err := seeder.Seed(ctx, "demo", "seed-user", "life_story", true)
	require.NoError(t, err)

	assert.Len(t, result.Items, len(seed.Memories()))
	for i, item := range result.Items {
		assert.Equal(t, int64(i+1), item.Sequence)
		assert.Equal(t, "seed-user", item.ContributorID)
	}

	require.NotNil(t, result.Projection)
	assert.Equal(t, "life_story", result.Projection.ProductID)
	assert.Equal(t, "memoir", result.Projection.DefinitionID)

	require.NotNil(t, result.Update)
	assert.Equal(t, models.ModeGenerate, result.Update.Mode)
	assert.Equal(t, 1, result.Update.Version)
	assert.Zero(t, result.Update.Counts.Failed)
	assert.Positive(t, result.Update.Counts.Updated)
}

func TestSeedWithoutGenerate(t *testing.T) {
	cfg := &config.Config{Environment: "test", Storage: "memory", SectionTimeout: time.Second, MaxSyncAttempts: 3}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := app.New(ctx, cfg, logger, app.WithGenerator(echoGenerator{}))
	require.NoError(t, err)
	defer a.Close()

	result, err := seed.NewSeeder(a.Content, a.Narrative, a.Projections, a.Engine, logger).
		Seed(ctx, "demo", "seed-user", "life_story", false)
	require.NoError(t, err)
	assert.Nil(t, result.Update)
	assert.Zero(t, result.Projection.Version)
}
