// Package config loads appshot configuration from YAML with
// environment-variable overrides. A missing config file is not an
// error; defaults apply.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all appshot configuration.
type Config struct {
	// Scanning
	Scan ScanConfig `yaml:"scan"`

	// Readiness polling
	Readiness ReadinessConfig `yaml:"readiness"`

	// Browser capture
	Capture CaptureConfig `yaml:"capture"`

	// Detection/session history database
	History HistoryConfig `yaml:"history"`

	// Source-change recapture
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ScanConfig controls the port-scan loop.
type ScanConfig struct {
	CheckInterval   string `yaml:"check_interval"`
	AdditionalPorts []int  `yaml:"additional_ports"`
	ExcludePorts    []int  `yaml:"exclude_ports"`
	DialTimeout     string `yaml:"dial_timeout"`
}

// ReadinessConfig controls the startup waiter.
type ReadinessConfig struct {
	Timeout      string `yaml:"timeout"`
	PollInterval string `yaml:"poll_interval"`
}

// CaptureConfig controls the browser and output layout.
type CaptureConfig struct {
	OutputDir         string `yaml:"output_dir"`
	ChromeBin         string `yaml:"chrome_bin"`
	Headless          bool   `yaml:"headless"`
	NavigationTimeout string `yaml:"navigation_timeout"`
	Workers           int    `yaml:"workers"`
	PlansPath         string `yaml:"plans_path"`
}

// HistoryConfig controls the SQLite history store.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig controls change-triggered recapture.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Debounce string `yaml:"debounce"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Scan: ScanConfig{
			CheckInterval: "2s",
			DialTimeout:   "500ms",
		},
		Readiness: ReadinessConfig{
			Timeout:      "30s",
			PollInterval: "500ms",
		},
		Capture: CaptureConfig{
			OutputDir:         "screenshots",
			Headless:          true,
			NavigationTimeout: "15s",
			Workers:           3,
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: "data/appshot.db",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: "2s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment win over file values.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("APPSHOT_OUTPUT_DIR"); dir != "" {
		c.Capture.OutputDir = dir
	}
	if bin := os.Getenv("APPSHOT_CHROME_BIN"); bin != "" {
		c.Capture.ChromeBin = bin
	}
	if path := os.Getenv("APPSHOT_DB_PATH"); path != "" {
		c.History.DatabasePath = path
	}
	if level := os.Getenv("APPSHOT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if v := os.Getenv("APPSHOT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Capture.Workers = n
		}
	}
}

// GetCheckInterval parses the scan tick interval.
func (c *Config) GetCheckInterval() time.Duration {
	return parseDuration(c.Scan.CheckInterval, 2*time.Second)
}

// GetDialTimeout parses the per-port dial timeout.
func (c *Config) GetDialTimeout() time.Duration {
	return parseDuration(c.Scan.DialTimeout, 500*time.Millisecond)
}

// GetReadinessTimeout parses the startup wait deadline.
func (c *Config) GetReadinessTimeout() time.Duration {
	return parseDuration(c.Readiness.Timeout, 30*time.Second)
}

// GetPollInterval parses the readiness poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.Readiness.PollInterval, 500*time.Millisecond)
}

// GetNavigationTimeout parses the per-page navigation deadline.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Capture.NavigationTimeout, 15*time.Second)
}

// GetWatchDebounce parses the change-watch debounce window.
func (c *Config) GetWatchDebounce() time.Duration {
	return parseDuration(c.Watch.Debounce, 2*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Capture.OutputDir == "" {
		return fmt.Errorf("capture.output_dir must not be empty")
	}
	if c.Capture.Workers < 1 {
		return fmt.Errorf("capture.workers must be at least 1, got %d", c.Capture.Workers)
	}
	for _, p := range c.Scan.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid additional port %d", p)
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}
