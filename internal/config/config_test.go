package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Gateway.Host)
	assert.Equal(t, 4002, cfg.Gateway.Port)
	assert.Equal(t, 10*time.Second, cfg.Session.ConnectTimeout)
	assert.Equal(t, 256, cfg.Stream.BufferCapacity)
	assert.False(t, cfg.Store.Enabled)
}

func TestLoadFile(t *testing.T) {
	cfg, err := loadFromDir(t, `
gateway:
  host: gw.example.com
  port: 7496
  client_id: 42
session:
  connect_timeout: 3s
  heartbeat_every: 5s
stream:
  buffer_capacity: 8
  reconnect_every: 1000
store:
  enabled: true
  database: activity
`)
	require.NoError(t, err)
	assert.Equal(t, "gw.example.com", cfg.Gateway.Host)
	assert.Equal(t, 7496, cfg.Gateway.Port)
	assert.Equal(t, int64(42), cfg.Gateway.ClientID)
	assert.Equal(t, 3*time.Second, cfg.Session.ConnectTimeout)
	assert.Equal(t, 8, cfg.Stream.BufferCapacity)
	assert.Equal(t, uint64(1000), cfg.Stream.ReconnectEvery)
	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, "activity", cfg.Store.Database)

	// untouched keys keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Session.RequestTimeout)
	assert.Equal(t, "localhost", cfg.Store.Host)
}

func loadFromDir(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return Load(path)
}
