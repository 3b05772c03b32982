package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceNumbers = "numbers"
	SourceLines   = "lines"

	TaskSleep = "sleep"
	TaskEcho  = "echo"
	TaskLinks = "links"
)

// Config holds the settings of one dispatch run.
type Config struct {
	Name           string        `yaml:"name"`
	Workers        int           `yaml:"workers"`
	Source         string        `yaml:"source"`
	Task           string        `yaml:"task"`
	Count          int           `yaml:"count"`
	File           string        `yaml:"file"`
	Delay          time.Duration `yaml:"delay"`
	FailAt         int64         `yaml:"fail_at"`
	StartPostponed bool          `yaml:"start_postponed"`
	Interactive    bool          `yaml:"interactive"`
	StatusInterval time.Duration `yaml:"status_interval"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	LogFile        string        `yaml:"log_file"`
	LogLevel       string        `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		Name:        "dispatch",
		Workers:     4,
		Source:      SourceNumbers,
		Task:        TaskSleep,
		Count:       100,
		Delay:       10 * time.Millisecond,
		HTTPTimeout: 30 * time.Second,
		LogFile:     "dispatch.log",
		LogLevel:    "info",
	}
}

// Load reads the optional YAML file at path over the defaults, then applies
// DISPATCH_* environment variables. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		clean := filepath.Clean(path)
		data, err := os.ReadFile(clean)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", clean, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", clean, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("DISPATCH_NAME", &c.Name)
	str("DISPATCH_SOURCE", &c.Source)
	str("DISPATCH_TASK", &c.Task)
	str("DISPATCH_FILE", &c.File)
	str("DISPATCH_LOG_FILE", &c.LogFile)
	str("DISPATCH_LOG_LEVEL", &c.LogLevel)

	return errors.Join(
		integer("DISPATCH_WORKERS", &c.Workers),
		integer("DISPATCH_COUNT", &c.Count),
		duration("DISPATCH_DELAY", &c.Delay),
		duration("DISPATCH_STATUS_INTERVAL", &c.StatusInterval),
		duration("DISPATCH_HTTP_TIMEOUT", &c.HTTPTimeout),
	)
}

// Validate checks the settings and the source/task pairing.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Count < 0 {
		return fmt.Errorf("count must not be negative, got %d", c.Count)
	}
	if c.Delay < 0 || c.StatusInterval < 0 || c.HTTPTimeout < 0 {
		return errors.New("durations must not be negative")
	}

	switch c.Source {
	case SourceNumbers:
		if c.Task != TaskSleep {
			return fmt.Errorf("source %q only supports task %q, got %q", c.Source, TaskSleep, c.Task)
		}
	case SourceLines:
		switch c.Task {
		case TaskSleep, TaskEcho, TaskLinks:
		default:
			return fmt.Errorf("unknown task %q", c.Task)
		}
		if c.File == "" && c.Interactive {
			return errors.New("interactive mode needs a file for the lines source: the console reads stdin")
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}
	return nil
}
