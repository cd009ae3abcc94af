package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "STACKWARD_") {
			key := strings.SplitN(kv, "=", 2)[0]
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/srv/stackward/docker-compose.yml", cfg.Stack.ComposeFile)
	assert.Equal(t, "stackward", cfg.Stack.Project)
	assert.Equal(t, "APP_VERSION", cfg.Stack.VersionKey)
	assert.Equal(t, "/var/lib/stackward/snapshots", cfg.Snapshots.Dir)
	assert.Equal(t, 5, cfg.Snapshots.Retention)
	assert.Equal(t, "/var/lib/stackward/backups", cfg.Backups.Dir)
	assert.Equal(t, 10, cfg.Backups.Retention)
	assert.Equal(t, 120*time.Second, cfg.Timeouts.Start)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.PollInterval)
	assert.Equal(t, "/var/lib/stackward/journal.db", cfg.Journal.Path)
	assert.Equal(t, "/var/lib/stackward/stackward.lock", cfg.Lock.File)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
stack:
  compose_file: "/opt/app/compose.yml"
  project: "myapp"
  env_file: "/opt/app/.env"
  version_key: "RELEASE"

paths:
  config:
    - /opt/app/config
  data:
    - /opt/app/data
  ssl:
    - /opt/app/ssl

snapshots:
  dir: "/opt/app/.snapshots"
  retention: 7

timeouts:
  update: 600s
  poll_interval: 5s

log:
  level: "debug"
  format: "json"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "/opt/app/compose.yml", cfg.Stack.ComposeFile)
	assert.Equal(t, "myapp", cfg.Stack.Project)
	assert.Equal(t, "RELEASE", cfg.Stack.VersionKey)
	assert.Equal(t, []string{"/opt/app/config"}, cfg.Paths.Config)
	assert.Equal(t, "/opt/app/.snapshots", cfg.Snapshots.Dir)
	assert.Equal(t, 7, cfg.Snapshots.Retention)
	assert.Equal(t, 600*time.Second, cfg.Timeouts.Update)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("STACKWARD_STACK_PROJECT", "envproj")
	t.Setenv("STACKWARD_LOG_LEVEL", "warn")
	t.Setenv("STACKWARD_SNAPSHOTS_RETENTION", "9")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "envproj", cfg.Stack.Project)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 9, cfg.Snapshots.Retention)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "stackward", cfg.Stack.Project)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Protected Path Tests
// =============================================================================

func TestProtectedPaths_ConfigSSLAndEnvFile(t *testing.T) {
	cfg := &Config{
		Stack: StackConfig{EnvFile: "/srv/app/.env"},
		Paths: PathsConfig{
			Config: []string{"/srv/app/config"},
			Data:   []string{"/srv/app/data"},
			SSL:    []string{"/srv/app/ssl"},
		},
	}

	paths := cfg.ProtectedPaths()

	assert.Equal(t, []string{"/srv/app/config", "/srv/app/ssl", "/srv/app/.env"}, paths)
	assert.NotContains(t, paths, "/srv/app/data", "bulk data is backed up, not snapshotted")
}

func TestProtectedPaths_Deduplicates(t *testing.T) {
	cfg := &Config{
		Stack: StackConfig{EnvFile: "/srv/app/config"},
		Paths: PathsConfig{
			Config: []string{"/srv/app/config", "/srv/app/config"},
		},
	}

	assert.Equal(t, []string{"/srv/app/config"}, cfg.ProtectedPaths())
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger := SetupLogger(&Config{Log: LogConfig{Level: level, Format: "text"}})
		assert.NotNil(t, logger)
	}
}

func TestSetupLogger_JSONFormat(t *testing.T) {
	logger := SetupLogger(&Config{Log: LogConfig{Level: "info", Format: "json"}})
	assert.NotNil(t, logger)
}
