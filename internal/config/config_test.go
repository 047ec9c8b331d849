package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POOLSHARE_AUTH_JWT_SECRET", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "", cfg.Database.URL)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Feed.BroadcastInterval)
	assert.Equal(t, "", cfg.Feed.TriggerToken)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 50, cfg.Engine.RecentTradesLimit)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
server:
  addr: ":9000"
auth:
  jwt_secret: from-file
  token_ttl: 1h
log:
  level: debug
`), 0o600)
	require.NoError(t, err)
	t.Setenv("POOLSHARE_LOG_LEVEL", "warn")
	t.Setenv("POOLSHARE_FEED_TRIGGER_TOKEN", "feed-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "feed-secret", cfg.Feed.TriggerToken)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "MissingSecret", env: map[string]string{"POOLSHARE_AUTH_JWT_SECRET": ""}},
		{name: "ZeroTTL", env: map[string]string{"POOLSHARE_AUTH_JWT_SECRET": "s", "POOLSHARE_AUTH_TOKEN_TTL": "0s"}},
		{name: "ZeroTradesLimit", env: map[string]string{"POOLSHARE_AUTH_JWT_SECRET": "s", "POOLSHARE_ENGINE_RECENT_TRADES_LIMIT": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}

	t.Setenv("POOLSHARE_AUTH_JWT_SECRET", "s")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
