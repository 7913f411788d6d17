package app

import (
	"context"
	"fmt"
	"log/slog"

	mstream "github.com/haowjy/meridian-stream-go"

	"memoir/internal/auth"
	"memoir/internal/config"
	"memoir/internal/domain/repositories"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	llmSvc "memoir/internal/domain/services/llm"
	memoirSvc "memoir/internal/domain/services/memoir"
	"memoir/internal/handler"
	"memoir/internal/handler/sse"
	"memoir/internal/products"
	"memoir/internal/repository/memory"
	"memoir/internal/repository/postgres"
	"memoir/internal/repository/postgres/migrations"
	postgresMemoir "memoir/internal/repository/postgres/memoir"
	serviceLLM "memoir/internal/service/llm"
	"memoir/internal/service/markup"
	serviceMemoir "memoir/internal/service/memoir"
)

// App holds the wired services shared by the server and the CLI
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Products *products.Registry
	Streams  *mstream.Registry

	Content     memoirSvc.ContentService
	Narrative   memoirSvc.NarrativeService
	Engine      memoirSvc.ProjectionEngine
	Runner      memoirSvc.UpdateRunner
	Sections    memoirSvc.SectionService
	Projections memoirSvc.ProjectionService

	closers []func()
}

// Option customizes wiring
type Option func(*options)

type options struct {
	generator llmSvc.TextGenerator
	clock     serviceMemoir.Clock
}

// WithGenerator replaces the configured text generator
func WithGenerator(gen llmSvc.TextGenerator) Option {
	return func(o *options) { o.generator = gen }
}

// WithClock replaces time.Now in every service
func WithClock(clock serviceMemoir.Clock) Option {
	return func(o *options) { o.clock = clock }
}

type storage struct {
	content    memoirRepo.ContentRepository
	narrative  memoirRepo.NarrativeRepository
	projection memoirRepo.ProjectionRepository
	txManager  repositories.TransactionManager
	locker     memoirRepo.Locker
}

// New wires storage, text generation and the memoir services. ctx bounds
// background work such as stream cleanup.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, Logger: logger}

	registry, err := products.NewRegistry()
	if err != nil {
		return nil, err
	}
	if cfg.ProductsDir != "" {
		if err := registry.LoadDir(cfg.ProductsDir); err != nil {
			return nil, fmt.Errorf("load products from %s: %w", cfg.ProductsDir, err)
		}
	}
	a.Products = registry

	store, err := a.openStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	generator := o.generator
	if generator == nil {
		generator, err = serviceLLM.NewProviderFactory(cfg, logger).NewTextGenerator(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("configure text generator: %w", err)
		}
	}

	scorer := serviceMemoir.NewScorer(cfg.RelevanceThreshold, cfg.RecencyWindow, o.clock)
	converter := markup.NewConverter()

	a.Narrative = serviceMemoir.NewNarrativeService(store.narrative, store.content, store.locker, generator, cfg.MaxSyncAttempts, o.clock, logger)
	a.Engine = serviceMemoir.NewProjectionEngine(serviceMemoir.EngineOptions{
		ProjectionRepo: store.projection,
		ContentRepo:    store.content,
		Narrative:      a.Narrative,
		Generator:      generator,
		Products:       registry,
		Scorer:         scorer,
		TxManager:      store.txManager,
		Locker:         store.locker,
		SectionTimeout: cfg.SectionTimeout,
		Clock:          o.clock,
		Logger:         logger,
	})
	a.Sections = serviceMemoir.NewSectionService(store.projection, store.txManager, store.locker, converter, o.clock, logger)
	a.Projections = serviceMemoir.NewProjectionService(store.projection, store.content, a.Narrative, registry, scorer, converter, o.clock, logger)

	a.Streams = mstream.NewRegistry()
	go a.Streams.StartCleanup(ctx)
	a.Runner = serviceMemoir.NewUpdateRunner(a.Engine, a.Streams, o.clock, logger)

	autoUpdater := serviceMemoir.NewAutoUpdater(store.projection, a.Runner, logger)
	a.Content = serviceMemoir.NewContentService(store.content, store.txManager, o.clock, logger, autoUpdater)

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (*storage, error) {
	switch a.Config.Storage {
	case "memory":
		a.Logger.Warn("using in-memory storage, data is lost on exit")
		store := memory.NewStore()
		return &storage{
			content:    memory.NewContentRepository(store),
			narrative:  memory.NewNarrativeRepository(store),
			projection: memory.NewProjectionRepository(store),
			txManager:  memory.NewTransactionManager(store),
			locker:     memory.NewLocker(),
		}, nil

	case "postgres":
		pool, err := postgres.CreateConnectionPool(ctx, a.Config.DatabaseURL, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)

		if a.Config.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool, a.Config.Schema); err != nil {
				return nil, err
			}
			if err := migrations.MigrateUp(a.Config.DatabaseURL, a.Config.Schema); err != nil {
				return nil, err
			}
		}

		a.Logger.Info("database connected", "schema", a.Config.Schema, "max_conns", pool.Config().MaxConns)

		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: postgres.NewTableNames(a.Config.Schema),
			Logger: a.Logger,
		}
		return &storage{
			content:    postgresMemoir.NewContentRepository(repoConfig),
			narrative:  postgresMemoir.NewNarrativeRepository(repoConfig),
			projection: postgresMemoir.NewProjectionRepository(repoConfig),
			txManager:  postgres.NewTransactionManager(pool, a.Logger),
			locker:     postgres.NewAdvisoryLocker(pool, a.Logger),
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage %q", a.Config.Storage)
	}
}

// Handlers builds the HTTP handlers over the wired services
func (a *App) Handlers() *handler.Handlers {
	return &handler.Handlers{
		Content:    handler.NewContentHandler(a.Content, a.Logger),
		Narrative:  handler.NewNarrativeHandler(a.Narrative, a.Logger),
		Projection: handler.NewProjectionHandler(a.Projections, a.Logger),
		Update:     handler.NewUpdateHandler(a.Engine, a.Runner, sse.DefaultConfig(), a.Logger),
		Section:    handler.NewSectionHandler(a.Sections, a.Logger),
	}
}

// NewVerifier returns a JWT verifier, or nil when auth is not configured
func (a *App) NewVerifier() (auth.JWTVerifier, error) {
	if a.Config.SupabaseJWKSURL == "" {
		a.Logger.Warn("no SUPABASE_URL configured, trusting X-User-ID header")
		return nil, nil
	}
	verifier, err := auth.NewJWTVerifier(a.Config.SupabaseJWKSURL, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = verifier.Close() })
	return verifier, nil
}

// Close releases storage and auth resources, newest first
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
