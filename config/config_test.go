package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileWithDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
postgres:
  dsn: postgres://lastword@localhost/lastword
nats:
  url: nats://localhost:4222
engine:
  tick_interval: 2s
  transition_jobs: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Engine.TickInterval)
	assert.True(t, cfg.Engine.TransitionJobs)
	assert.Equal(t, 5*time.Minute, cfg.Engine.EndingWarning)
	assert.Equal(t, 60*time.Second, cfg.Clock.ResyncInterval)
	assert.Equal(t, ":8080", cfg.HTTP.Address)

	rate, err := cfg.Engine.Commission()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.10").Equal(rate))
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
postgres:
  dsn: postgres://file
nats:
  url: nats://file
`)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("ENGINE_TICK_INTERVAL", "750ms")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", cfg.Postgres.DSN)
	assert.Equal(t, "nats://file", cfg.NATS.URL)
	assert.Equal(t, 750*time.Millisecond, cfg.Engine.TickInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("NATS_URL", "nats://env")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", cfg.Postgres.DSN)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "missing dsn", body: "nats:\n  url: nats://x\n"},
		{name: "commission out of range", body: "postgres:\n  dsn: p\nnats:\n  url: n\nengine:\n  settlement_commission_rate: \"1.5\"\n"},
		{name: "bad duration", body: "postgres:\n  dsn: p\nnats:\n  url: n\n", env: map[string]string{"ENGINE_TICK_INTERVAL": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("DATABASE_URL", "")
			t.Setenv("NATS_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}
