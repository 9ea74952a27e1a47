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
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigFrom_Defaults(t *testing.T) {
	dir := writeConfig(t, `
database:
  dsn: "postgres://u:p@localhost:5432/quakes"
`)
	cfg, err := LoadConfigFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, 10*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "https://earthquake.usgs.gov/fdsnws/event/1", cfg.USGS.BaseURL)
	assert.Equal(t, "geojson", cfg.USGS.Format)
	assert.Equal(t, 30, cfg.USGS.Timeout)
	assert.Equal(t, "admin", cfg.Auth.Username)
	assert.Equal(t, "EarthquakeAPI", cfg.Auth.Realm)
	assert.Equal(t, []string{"/healthz", "/metrics", "/visualization/map-view"}, cfg.Auth.BypassPaths)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFrom_YAMLValues(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9090
  mode: debug
database:
  dsn: "postgres://u:p@localhost:5432/quakes"
  conn_max_lifetime: 90s
usgs:
  timeout: 5
  proxy: "http://proxy:3128"
auth:
  bypass_paths: ["/healthz"]
`)
	cfg, err := LoadConfigFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, 90*time.Second, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 5, cfg.USGS.Timeout)
	assert.Equal(t, "http://proxy:3128", cfg.USGS.Proxy)
	assert.Equal(t, []string{"/healthz"}, cfg.Auth.BypassPaths)
}

func TestLoadConfigFrom_EnvOverrides(t *testing.T) {
	dir := writeConfig(t, `
database:
  dsn: "postgres://u:p@localhost:5432/quakes"
`)
	t.Setenv("DATABASE_DSN", "postgres://other:secret@db:5432/quakes")
	t.Setenv("API_USERNAME", "ops")
	t.Setenv("API_PASSWORD", "s3cret")
	t.Setenv("API_REALM", "Quakes")
	t.Setenv("USGS_PROXY", "http://egress:8080")

	cfg, err := LoadConfigFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "postgres://other:secret@db:5432/quakes", cfg.Database.DSN)
	assert.Equal(t, "ops", cfg.Auth.Username)
	assert.Equal(t, "s3cret", cfg.Auth.Password)
	assert.Equal(t, "Quakes", cfg.Auth.Realm)
	assert.Equal(t, "http://egress:8080", cfg.USGS.Proxy)
}

func TestLoadConfigFrom_MissingDSN(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 8080
`)
	_, err := LoadConfigFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn")
}

func TestLoadConfigFrom_MissingFile(t *testing.T) {
	_, err := LoadConfigFrom(t.TempDir())
	require.Error(t, err)
}
