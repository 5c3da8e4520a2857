package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8081, GlobalConfig.Server.GamePort)
	assert.Equal(t, 5*time.Minute, GlobalConfig.Game.ReconnectGrace)
	assert.Equal(t, 2*time.Hour, GlobalConfig.Game.IdleTimeout)
	assert.Equal(t, time.Minute, GlobalConfig.Game.ReviewWindow)
	assert.Equal(t, 30, GlobalConfig.Game.ChatPerMinute)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  game_port: 9001
game:
  reconnect_grace: 30s
  review_window: 5s
redis:
  host: cache
  port: 6380
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	require.NoError(t, LoadConfig(path))

	assert.Equal(t, 9001, GlobalConfig.Server.GamePort)
	assert.Equal(t, 30*time.Second, GlobalConfig.Game.ReconnectGrace)
	assert.Equal(t, 5*time.Second, GlobalConfig.Game.ReviewWindow)
	assert.Equal(t, "cache:6380", GlobalConfig.Redis.GetRedisAddr())
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "cc", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=cc sslmode=disable", c.GetDSN())
}
