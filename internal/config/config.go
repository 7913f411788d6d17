package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`

	// Storage
	Storage     string `env:"STORAGE" envDefault:"postgres"` // postgres | memory
	DatabaseURL string `env:"DATABASE_URL"`
	Schema      string // derived from Environment unless DB_SCHEMA is set
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Auth (optional; X-User-ID header is trusted when unset)
	SupabaseURL     string `env:"SUPABASE_URL"`
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json

	// Text generation
	TextProvider       string  `env:"TEXT_PROVIDER" envDefault:"lorem"`
	TextModel          string  `env:"TEXT_MODEL" envDefault:"lorem-fast"`
	AnthropicAPIKey    string  `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey       string  `env:"GEMINI_API_KEY"`
	GenerationMaxTries uint    `env:"GENERATION_MAX_TRIES" envDefault:"3"`
	GenerationRPS      float64 `env:"GENERATION_RPS" envDefault:"2"`

	// Engine
	SectionTimeout     time.Duration `env:"SECTION_TIMEOUT" envDefault:"90s"`
	RelevanceThreshold float64       `env:"RELEVANCE_THRESHOLD" envDefault:"0.3"`
	RecencyWindow      time.Duration `env:"RECENCY_WINDOW" envDefault:"4320h"`
	MaxSyncAttempts    int           `env:"NARRATIVE_MAX_SYNC_ATTEMPTS" envDefault:"3"`
	ProductsDir        string        `env:"PRODUCTS_DIR"`

	// Observability
	LogDir       string `env:"LOG_DIR"`
	LogMaxFiles  int    `env:"LOG_MAX_FILES" envDefault:"10"`
	OTELEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Debug flags
	Debug bool // defaults to true outside prod, overridable with DEBUG
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.Schema = getSchema(cfg.Environment)
	if cfg.SupabaseURL != "" {
		cfg.SupabaseJWKSURL = cfg.SupabaseURL + "/auth/v1/.well-known/jwks.json"
	}
	cfg.Debug = getEnv("DEBUG", getDefaultDebug(cfg.Environment)) == "true"

	if cfg.Storage != "postgres" && cfg.Storage != "memory" {
		return nil, fmt.Errorf("STORAGE must be postgres or memory, got %q", cfg.Storage)
	}
	if cfg.Storage == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORAGE=postgres")
	}

	return cfg, nil
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getSchema returns the Postgres schema based on environment
func getSchema(env string) string {
	// Allow manual override via DB_SCHEMA env var
	if schema := os.Getenv("DB_SCHEMA"); schema != "" {
		return schema
	}

	switch env {
	case "prod":
		return "memoir_prod"
	case "test":
		return "memoir_test"
	default:
		return "memoir_dev"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
