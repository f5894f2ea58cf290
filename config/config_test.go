package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotwire/points-engine/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "points.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_EmptyPath_ReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "points.db", cfg.Storage.Path)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Auth.AdminToken)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = 9090
cors_origins = ["https://points.example.com"]

[storage]
path = "/var/lib/points/points.db"

[auth]
admin_token = "secret"

[metrics]
enabled = false
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://points.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/var/lib/points/points.db", cfg.Storage.Path)
	assert.Equal(t, "secret", cfg.Auth.AdminToken)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_PartialFile_KeepsDefaultsElsewhere(t *testing.T) {
	path := writeConfigFile(t, `
[auth]
admin_token = "secret"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port, "unset sections keep defaults")
	assert.Equal(t, "secret", cfg.Auth.AdminToken)
}

func TestLoad_MissingFile_Errors(t *testing.T) {
	_, err := config.Load("/nonexistent/points.toml")
	assert.Error(t, err)
}

func TestLoad_InvalidPort_Errors(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = -1
`)

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_MalformedTOML_Errors(t *testing.T) {
	path := writeConfigFile(t, `[server`)

	_, err := config.Load(path)
	assert.Error(t, err)
}
