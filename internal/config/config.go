// Package config loads the log host configuration. Precedence, lowest first:
// built-in defaults, YAML file, environment, command-line flags (applied by
// the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kettle's own variables for sizing the central log store.
const (
	EnvMaxLogLines          = "KETTLE_MAX_LOG_SIZE_IN_LINES"
	EnvMaxLogTimeoutMinutes = "KETTLE_MAX_LOG_TIMEOUT_IN_MINUTES"
)

var ErrNoToken = errors.New("no auth token configured")

type Config struct {
	Bind      string        `yaml:"bind"`
	Port      string        `yaml:"port"`
	Token     string        `yaml:"token"`
	TokenFile string        `yaml:"token_file"`
	WebDir    string        `yaml:"web_dir"`
	Buffer    BufferConfig  `yaml:"buffer"`
	Spool     SpoolConfig   `yaml:"spool"`
	Capture   CaptureConfig `yaml:"capture"`
	Log       LogConfig     `yaml:"log"`
}

type BufferConfig struct {
	MaxLines      int           `yaml:"max_lines"`
	MaxAge        time.Duration `yaml:"max_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type SpoolConfig struct {
	Path    string `yaml:"path"`
	Restore int    `yaml:"restore"`
	// MaxBytes rotates the spool file at this size; zero never rotates.
	MaxBytes int64 `yaml:"max_bytes"`
}

type CaptureConfig struct {
	LogDir string `yaml:"log_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Buffer tees the host's own logs into the central buffer.
	Buffer bool `yaml:"buffer"`
}

// Default mirrors Kettle's defaults: 5000 lines kept for at most a day.
func Default() Config {
	return Config{
		Bind: "127.0.0.1",
		Port: "8787",
		Buffer: BufferConfig{
			MaxLines:      5000,
			MaxAge:        24 * time.Hour,
			SweepInterval: time.Minute,
		},
		Spool: SpoolConfig{Restore: 1000, MaxBytes: 64 << 20},
		Log:   LogConfig{Level: "info", Format: "text", Buffer: true},
	}
}

// Load reads a YAML file over the defaults. An empty path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from the environment via lookup (os.LookupEnv in
// production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("LOGBUF_BIND", &c.Bind)
	str("LOGBUF_PORT", &c.Port)
	str("LOGBUF_TOKEN", &c.Token)
	str("LOGBUF_TOKEN_FILE", &c.TokenFile)
	str("LOGBUF_SPOOL", &c.Spool.Path)
	str("LOGBUF_LOG_LEVEL", &c.Log.Level)
	str("LOGBUF_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvMaxLogLines); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxLogLines, err)
		}
		c.Buffer.MaxLines = n
	}
	if v, ok := lookup(EnvMaxLogTimeoutMinutes); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxLogTimeoutMinutes, err)
		}
		c.Buffer.MaxAge = time.Duration(n) * time.Minute
	}
	return nil
}

// NormalizeToken strips whitespace and an optional "Bearer " prefix.
func NormalizeToken(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "Bearer ")
	v = strings.TrimPrefix(v, "bearer ")
	return strings.TrimSpace(v)
}

// ResolveToken returns the configured token, falling back to TokenFile.
func (c *Config) ResolveToken() (string, error) {
	if tok := NormalizeToken(c.Token); tok != "" {
		return tok, nil
	}
	if c.TokenFile == "" {
		return "", ErrNoToken
	}
	b, err := os.ReadFile(c.TokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", err
	}
	if tok := NormalizeToken(string(b)); tok != "" {
		return tok, nil
	}
	return "", ErrNoToken
}
