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
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8420", cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "127.0.0.1:8420", cfg.Addr())
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, "claude", cfg.Claude.Binary)
	assert.Equal(t, "sonnet", cfg.Claude.DefaultModel)
	assert.Equal(t, 3, cfg.Summary.Interval)
	assert.Equal(t, 2*time.Second, cfg.Summary.Delay)
	assert.Equal(t, 10, cfg.Summary.RecentMessages)
	assert.Equal(t, GeneratorFirstPrompt, cfg.Summary.Generator)
	assert.True(t, cfg.WatchProjects)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "relay.yaml")
	yml := `
port: "9000"
claude:
  binary: /opt/claude
  env: ["FOO=bar"]
summary:
  interval: 5
  delay: 500ms
  generator: cli
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("PORT", "9100")
	t.Setenv("SUMMARY_DELAY", "1500")
	t.Setenv("WATCH_PROJECTS", "off")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, "/opt/claude", cfg.Claude.Binary)
	assert.Equal(t, []string{"FOO=bar"}, cfg.Claude.Env)
	assert.Equal(t, 5, cfg.Summary.Interval)
	assert.Equal(t, 1500*time.Millisecond, cfg.Summary.Delay)
	assert.Equal(t, GeneratorCLI, cfg.Summary.Generator)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.WatchProjects)
	assert.Equal(t, "sonnet", cfg.Claude.DefaultModel)
}

func TestAddr(t *testing.T) {
	tests := []struct {
		host, port, want string
	}{
		{"127.0.0.1", "8420", "127.0.0.1:8420"},
		{"", "8420", ":8420"},
		{"0.0.0.0", "9000", "0.0.0.0:9000"},
		{"::1", "8420", "[::1]:8420"},
		{"127.0.0.1", "10.0.0.5:8420", "10.0.0.5:8420"},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Host, cfg.Port = tt.host, tt.port
		assert.Equal(t, tt.want, cfg.Addr())
	}
}

func TestLoad_HostAndOrigins(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8420", cfg.Addr())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CLAUDE_DEFAULT_MODEL=opus\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("CLAUDE_DEFAULT_MODEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "opus", cfg.Claude.DefaultModel)
}

func TestLoad_MissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load("/nonexistent/relay.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"empty db", func(c *Config) { c.DBPath = "" }},
		{"zero interval", func(c *Config) { c.Summary.Interval = 0 }},
		{"negative delay", func(c *Config) { c.Summary.Delay = -time.Second }},
		{"bad generator", func(c *Config) { c.Summary.Generator = "gpt" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"zero replay", func(c *Config) { c.ReplayBuffer = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "3s")

	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, 3*time.Second, getEnvDuration("X_DUR", time.Second))
	assert.Equal(t, "fallback", getEnv("X_MISSING_KEY", "fallback"))
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
