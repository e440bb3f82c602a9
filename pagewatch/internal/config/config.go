// Package config handles pagewatch configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pagewatch configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Stabilize StabilizeConfig `yaml:"stabilize"`
	Trigger   TriggerConfig   `yaml:"trigger"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	MemoryLimit     int64         `yaml:"memory_limit"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	BlockResources  []string      `yaml:"block_resources"`
	Mode            string        `yaml:"mode"` // headless | headful
	XvfbDisplay     string        `yaml:"xvfb_display"`
}

// StabilizeConfig controls how long a page gets to settle before its
// snapshot is taken.
type StabilizeConfig struct {
	Profile      string        `yaml:"profile"` // default | fast | patient
	PollInterval time.Duration `yaml:"poll_interval"`
	QuietPeriod  time.Duration `yaml:"quiet_period"`
	MaxWait      time.Duration `yaml:"max_wait"`
	SendCooldown time.Duration `yaml:"send_cooldown"`
	BodyLimit    int           `yaml:"body_limit"`
	MinReadable  int           `yaml:"min_readable"`
}

// TriggerConfig controls the debounce windows applied to raw page
// events before they start a stabilization watch.
type TriggerConfig struct {
	HistoryDebounce  time.Duration `yaml:"history_debounce"`
	MutationDebounce time.Duration `yaml:"mutation_debounce"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values, resolving the timing profile first so
// explicit per-field settings still win over it.
func (c *Config) ApplyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}

	p := profiles[c.Stabilize.Profile]
	if c.Stabilize.PollInterval <= 0 {
		c.Stabilize.PollInterval = p.poll
	}
	if c.Stabilize.QuietPeriod <= 0 {
		c.Stabilize.QuietPeriod = p.quiet
	}
	if c.Stabilize.MaxWait <= 0 {
		c.Stabilize.MaxWait = p.maxWait
	}
	if c.Stabilize.SendCooldown <= 0 {
		c.Stabilize.SendCooldown = 7 * time.Second
	}
	if c.Stabilize.BodyLimit <= 0 {
		c.Stabilize.BodyLimit = 2000
	}
	if c.Stabilize.MinReadable <= 0 {
		c.Stabilize.MinReadable = 100
	}

	if c.Trigger.HistoryDebounce <= 0 {
		c.Trigger.HistoryDebounce = 700 * time.Millisecond
	}
	if c.Trigger.MutationDebounce <= 0 {
		c.Trigger.MutationDebounce = 2 * time.Second
	}
}

// Validate rejects timing combinations the stabilizer cannot honour.
func (c *Config) Validate() error {
	s := c.Stabilize
	if s.PollInterval >= s.QuietPeriod {
		return fmt.Errorf("config: poll_interval %v must be below quiet_period %v", s.PollInterval, s.QuietPeriod)
	}
	if s.QuietPeriod > s.MaxWait {
		return fmt.Errorf("config: quiet_period %v must not exceed max_wait %v", s.QuietPeriod, s.MaxWait)
	}
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: unknown browser mode %q", c.Browser.Mode)
	}
	return nil
}

type profile struct {
	poll, quiet, maxWait time.Duration
}

// profiles trade snapshot latency against churn tolerance. Fast suits
// mostly-static sites; patient suits heavy SPAs that render in waves.
var profiles = map[string]profile{
	"": {300 * time.Millisecond, 1200 * time.Millisecond, 3 * time.Second},
	"default": {300 * time.Millisecond, 1200 * time.Millisecond, 3 * time.Second},
	"fast":    {150 * time.Millisecond, 600 * time.Millisecond, 1500 * time.Millisecond},
	"patient": {500 * time.Millisecond, 2 * time.Second, 6 * time.Second},
}
