package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"memoir/internal/app"
	"memoir/internal/config"
	"memoir/internal/handler"
	"memoir/internal/middleware"
	"memoir/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, closeLog, err := config.NewLogger(cfg, "server")
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "memoir-server", cfg.Environment, cfg.OTELEndpoint)
	if err != nil {
		logger.Error("tracing disabled", "error", err)
	}

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"storage", cfg.Storage,
		"schema", cfg.Schema,
		"text_provider", cfg.TextProvider,
	)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	verifier, err := a.NewVerifier()
	if err != nil {
		logger.Error("failed to create JWT verifier", "error", err)
		os.Exit(1)
	}

	router := handler.NewRouter(a.Handlers(),
		middleware.Auth(verifier, logger),
	)

	var h http.Handler = router
	h = middleware.RequestLogger(logger)(h)
	h = middleware.Recovery(logger)(h)
	h = cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID", middleware.DevUserHeader},
		AllowCredentials: true,
	}).Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams and synchronous updates
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return shutdownTracing(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
