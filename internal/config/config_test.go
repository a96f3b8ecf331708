package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, "neuronudge", cfg.JWTIssuer)
	assert.Equal(t, 2*time.Hour, cfg.AccessTTL())
	assert.Equal(t, 20*time.Second, cfg.NudgeGenerationTimeout)
	assert.Equal(t, 2, cfg.NudgesPerReflection)
	assert.Equal(t, DefaultFallbackNudge, cfg.FallbackNudgeText)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Nil(t, cfg.CorsOrigins)
	assert.False(t, cfg.OtelEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://localhost/neuronudge")
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("NUDGE_GENERATION_TIMEOUT", "5s")
	t.Setenv("NUDGES_PER_REFLECTION", "4")
	t.Setenv("LOG_MODE", "Production")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CorsOrigins)
	assert.Equal(t, 5*time.Second, cfg.NudgeGenerationTimeout)
	assert.Equal(t, 4, cfg.NudgesPerReflection)
	assert.Equal(t, "production", cfg.LogMode)
	assert.True(t, cfg.OtelEnabled)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			env:     map[string]string{"STORE_DRIVER": "memory", "JWT_SECRET": ""},
			wantErr: "JWT_SECRET is a required field",
		},
		{
			name:    "postgres without url",
			env:     map[string]string{"JWT_SECRET": "x", "DATABASE_URL": "", "STORE_DRIVER": ""},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"JWT_SECRET": "x", "STORE_DRIVER": "mongo"},
			wantErr: "STORE_DRIVER",
		},
		{
			name:    "retention above a week",
			env:     map[string]string{"JWT_SECRET": "x", "STORE_DRIVER": "memory", "LOG_RETENTION_DAYS": "30"},
			wantErr: "LOG_RETENTION_DAYS",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
