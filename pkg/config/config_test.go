package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "loandesk.db", cfg.Store.SQLitePath)
	assert.Equal(t, "0 0 3 * * *", cfg.Scheduler.SlotAudit)
	assert.Equal(t, 5*time.Minute, cfg.HistoryTTL())
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
store:
  driver: postgres
  postgres:
    host: db
    port: 5433
    user: desk
    password: secret
    database: loans
    ssl_mode: require
redis:
  addr: redis:6379
  history_ttl_seconds: 60
log:
  level: debug
  format: text
scheduler:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.GetServerAddress())
	assert.Equal(t, "postgres://desk:secret@db:5433/loans?sslmode=require", cfg.GetDatabaseConnectionString())
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.HistoryTTL())
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Scheduler.Enabled)
	// Unset fields keep their defaults.
	assert.Equal(t, 15, cfg.Server.WriteTimeoutSeconds)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad port", "server:\n  port: 70000\n"},
		{"unknown driver", "store:\n  driver: mongo\n"},
		{"postgres without user", "store:\n  driver: postgres\n  postgres:\n    database: loans\n"},
		{"unknown log format", "log:\n  format: xml\n"},
		{"empty audit schedule", "scheduler:\n  enabled: true\n  slot_audit: \"\"\n"},
		{"malformed yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
