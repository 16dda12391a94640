package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orbit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8765", cfg.Server.Addr())
	assert.Equal(t, DefaultAllowedOrigins, cfg.Server.AllowedOrigins)
	assert.Equal(t, 64, cfg.Server.HubBuffer)
	assert.Zero(t, cfg.Executor.StepTimeout)
	assert.Equal(t, DefaultDeniedPatterns, cfg.Policy.DeniedPatterns)
	_, ok := cfg.GetTelegramConfig()
	assert.False(t, ok)
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9000
  allowed_origins: ["http://localhost:3000"]
tools:
  helper_path: /opt/orbit/helper
  launcher: ["open", "-a"]
executor:
  step_timeout: 30s
policy:
  denied_tools: [delete_file]
gateways:
  telegram:
    token: abc
    enabled: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/opt/orbit/helper", cfg.Tools.HelperPath)
	assert.Equal(t, []string{"open", "-a"}, cfg.Tools.Launcher)
	assert.Equal(t, 30*time.Second, cfg.Executor.StepTimeout)
	assert.Equal(t, []string{"delete_file"}, cfg.Policy.DeniedTools)

	tg, ok := cfg.GetTelegramConfig()
	require.True(t, ok)
	assert.Equal(t, "abc", tg.Token)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ORBIT_HOST", "0.0.0.0")
	t.Setenv("ORBIT_PORT", "9100")
	t.Setenv("ORBIT_HELPER_PATH", "/usr/local/bin/orbit-helper")
	t.Setenv("ORBIT_ALLOWED_ORIGINS", "http://a, http://b")
	t.Setenv("ORBIT_DISCORD_TOKEN", "xyz")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9100", cfg.Server.Addr())
	assert.Equal(t, "/usr/local/bin/orbit-helper", cfg.Tools.HelperPath)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)

	dc, ok := cfg.GetDiscordConfig()
	require.True(t, ok)
	assert.Equal(t, "xyz", dc.Token)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("ORBIT_PORT", "not-a-port")
	_, err := LoadConfig("")
	assert.Error(t, err)

	t.Setenv("ORBIT_PORT", "")
	_, err = LoadConfig(writeFile(t, "server: [unclosed"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "server:\n  hub_buffer: -1\n"))
	assert.Error(t, err)
}
