// Package config provides application configuration.
//
// Values come from defaults, then an optional YAML file, then environment
// variables (a .env file in the working directory is loaded first).
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"claude-relay/internal/logging"
)

// Summary generators.
const (
	GeneratorFirstPrompt = "first-prompt"
	GeneratorCLI         = "cli"
)

// Config holds all application configuration.
type Config struct {
	// Host is the listen interface. The relay can run the CLI with
	// permissions skipped, so it binds loopback unless told otherwise.
	Host           string         `yaml:"host"`
	Port           string         `yaml:"port"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	StaticDir      string         `yaml:"static_dir"`
	DBPath         string         `yaml:"db_path"`
	ReplayBuffer   int            `yaml:"replay_buffer"`
	WatchProjects  bool           `yaml:"watch_projects"`
	Claude         ClaudeConfig   `yaml:"claude"`
	Summary        SummaryConfig  `yaml:"summary"`
	Log            logging.Config `yaml:"log"`
}

// ClaudeConfig controls how the CLI is invoked.
type ClaudeConfig struct {
	Binary       string   `yaml:"binary"`
	DefaultModel string   `yaml:"default_model"`
	ProjectsDir  string   `yaml:"projects_dir"`
	Env          []string `yaml:"env"`
}

// SummaryConfig controls background summary regeneration.
type SummaryConfig struct {
	Interval        int           `yaml:"interval"`
	Delay           time.Duration `yaml:"delay"`
	RecentMessages  int           `yaml:"recent_messages"`
	Generator       string        `yaml:"generator"`
	Model           string        `yaml:"model"`
	WriteTranscript bool          `yaml:"write_transcript"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:          "127.0.0.1",
		Port:          "8420",
		DBPath:        "./data/relay.db",
		ReplayBuffer:  200,
		WatchProjects: true,
		Claude: ClaudeConfig{
			Binary:       "claude",
			DefaultModel: "sonnet",
		},
		Summary: SummaryConfig{
			Interval:        3,
			Delay:           2 * time.Second,
			RecentMessages:  10,
			Generator:       GeneratorFirstPrompt,
			Model:           "haiku",
			WriteTranscript: true,
		},
		Log: logging.Config{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load reads configuration. path names an optional YAML file; a missing
// .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Host = getEnv("HOST", c.Host)
	c.Port = getEnv("PORT", c.Port)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.ReplayBuffer = getEnvInt("REPLAY_BUFFER", c.ReplayBuffer)
	c.WatchProjects = getEnvBool("WATCH_PROJECTS", c.WatchProjects)

	c.Claude.Binary = getEnv("CLAUDE_BINARY", c.Claude.Binary)
	c.Claude.DefaultModel = getEnv("CLAUDE_DEFAULT_MODEL", c.Claude.DefaultModel)
	c.Claude.ProjectsDir = getEnv("CLAUDE_PROJECTS_DIR", c.Claude.ProjectsDir)

	c.Summary.Interval = getEnvInt("SUMMARY_INTERVAL", c.Summary.Interval)
	c.Summary.Delay = getEnvDuration("SUMMARY_DELAY", c.Summary.Delay)
	c.Summary.RecentMessages = getEnvInt("SUMMARY_RECENT_MESSAGES", c.Summary.RecentMessages)
	c.Summary.Generator = getEnv("SUMMARY_GENERATOR", c.Summary.Generator)
	c.Summary.Model = getEnv("SUMMARY_MODEL", c.Summary.Model)
	c.Summary.WriteTranscript = getEnvBool("SUMMARY_WRITE_TRANSCRIPT", c.Summary.WriteTranscript)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.Log.MaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", c.Log.MaxSizeMB)
	c.Log.MaxBackups = getEnvInt("LOG_MAX_BACKUPS", c.Log.MaxBackups)
	c.Log.MaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", c.Log.MaxAgeDays)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Claude.Binary == "" {
		return fmt.Errorf("CLAUDE_BINARY cannot be empty")
	}
	if c.ReplayBuffer <= 0 {
		return fmt.Errorf("REPLAY_BUFFER must be > 0")
	}
	if c.Summary.Interval <= 0 {
		return fmt.Errorf("SUMMARY_INTERVAL must be > 0")
	}
	if c.Summary.Delay < 0 {
		return fmt.Errorf("SUMMARY_DELAY cannot be negative")
	}
	if c.Summary.RecentMessages <= 0 {
		return fmt.Errorf("SUMMARY_RECENT_MESSAGES must be > 0")
	}
	switch c.Summary.Generator {
	case GeneratorFirstPrompt, GeneratorCLI:
	default:
		return fmt.Errorf("SUMMARY_GENERATOR must be %q or %q", GeneratorFirstPrompt, GeneratorCLI)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Addr returns the HTTP listen address. A Port that already carries a host
// wins over Host; an empty Host listens on every interface.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return net.JoinHostPort(c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("2s") or plain milliseconds ("2000").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
