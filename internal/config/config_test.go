package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("ENVIRONMENT", "dev")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memoir_dev", cfg.Schema)
	assert.Equal(t, 90*time.Second, cfg.SectionTimeout)
	assert.Equal(t, 0.3, cfg.RelevanceThreshold)
	assert.Equal(t, 180*24*time.Hour, cfg.RecencyWindow)
	assert.Equal(t, 3, cfg.MaxSyncAttempts)
	assert.True(t, cfg.Debug)
	assert.Empty(t, cfg.SupabaseJWKSURL)
}

func TestLoadEnvironmentDerivedValues(t *testing.T) {
	tests := []struct {
		name       string
		env        string
		schemaEnv  string
		wantSchema string
		wantDebug  bool
	}{
		{name: "prod", env: "prod", wantSchema: "memoir_prod", wantDebug: false},
		{name: "test", env: "test", wantSchema: "memoir_test", wantDebug: true},
		{name: "override", env: "prod", schemaEnv: "custom", wantSchema: "custom", wantDebug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORAGE", "memory")
			t.Setenv("ENVIRONMENT", tt.env)
			t.Setenv("DB_SCHEMA", tt.schemaEnv)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSchema, cfg.Schema)
			assert.Equal(t, tt.wantDebug, cfg.Debug)
		})
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("STORAGE", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadBuildsJWKSURL(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://example.supabase.co/auth/v1/.well-known/jwks.json", cfg.SupabaseJWKSURL)
}
