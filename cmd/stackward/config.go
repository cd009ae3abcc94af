package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration. The core packages receive
// these values as explicit parameters and read no environment themselves.
type Config struct {
	Stack     StackConfig     `mapstructure:"stack"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	Backups   BackupsConfig   `mapstructure:"backups"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Lock      LockConfig      `mapstructure:"lock"`
	Log       LogConfig       `mapstructure:"log"`
}

// StackConfig identifies the managed compose stack.
type StackConfig struct {
	ComposeFile string `mapstructure:"compose_file"`
	Project     string `mapstructure:"project"`

	// EnvFile is the compose env file carrying the version pin.
	EnvFile    string `mapstructure:"env_file"`
	VersionKey string `mapstructure:"version_key"`
}

// PathsConfig maps backup/snapshot scopes to filesystem paths.
type PathsConfig struct {
	Config []string `mapstructure:"config"`
	Data   []string `mapstructure:"data"`
	SSL    []string `mapstructure:"ssl"`
}

// SnapshotsConfig holds the internal snapshot store settings.
type SnapshotsConfig struct {
	Dir       string `mapstructure:"dir"`
	Retention int    `mapstructure:"retention"`
}

// BackupsConfig holds the durable archive settings.
type BackupsConfig struct {
	Dir           string `mapstructure:"dir"`
	Retention     int    `mapstructure:"retention"`
	WorkDir       string `mapstructure:"work_dir"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// TimeoutsConfig holds per-transition deadlines.
type TimeoutsConfig struct {
	Start        time.Duration `mapstructure:"start"`
	Stop         time.Duration `mapstructure:"stop"`
	Restart      time.Duration `mapstructure:"restart"`
	Update       time.Duration `mapstructure:"update"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// DockerConfig holds Docker daemon settings.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// JournalConfig holds the operation journal settings.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// LockConfig holds the invocation lock settings.
type LockConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProtectedPaths is the default path set captured by safe-operation
// snapshots: configuration and certificates, the state a failed operation
// must be able to revert. Bulk data is covered by backups, not snapshots.
func (c *Config) ProtectedPaths() []string {
	var paths []string
	paths = append(paths, c.Paths.Config...)
	paths = append(paths, c.Paths.SSL...)
	if c.Stack.EnvFile != "" {
		paths = append(paths, c.Stack.EnvFile)
	}
	return dedupe(paths)
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("stack.compose_file", "/srv/stackward/docker-compose.yml")
	v.SetDefault("stack.project", "stackward")
	v.SetDefault("stack.env_file", "/srv/stackward/.env")
	v.SetDefault("stack.version_key", "APP_VERSION")

	v.SetDefault("paths.config", []string{"/srv/stackward/config"})
	v.SetDefault("paths.data", []string{"/srv/stackward/data"})
	v.SetDefault("paths.ssl", []string{"/srv/stackward/ssl"})

	v.SetDefault("snapshots.dir", "/var/lib/stackward/snapshots")
	v.SetDefault("snapshots.retention", 5)

	v.SetDefault("backups.dir", "/var/lib/stackward/backups")
	v.SetDefault("backups.retention", 10)
	v.SetDefault("backups.work_dir", "")
	v.SetDefault("backups.max_concurrent", 4)

	v.SetDefault("timeouts.start", "120s")
	v.SetDefault("timeouts.stop", "60s")
	v.SetDefault("timeouts.restart", "180s")
	v.SetDefault("timeouts.update", "300s")
	v.SetDefault("timeouts.poll_interval", "2s")

	v.SetDefault("docker.host", "")
	v.SetDefault("journal.path", "/var/lib/stackward/journal.db")
	v.SetDefault("lock.file", "/var/lib/stackward/stackward.lock")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	v.SetEnvPrefix("STACKWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
