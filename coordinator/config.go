package coordinator

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all coordinator configuration.
type Config struct {
	DBPath   string         `yaml:"db_path"`
	Classify ClassifyConfig `yaml:"classify"`
	Cache    CacheConfig    `yaml:"cache"`

	// Cooldown suppresses re-classification of a URL just assessed.
	Cooldown time.Duration `yaml:"cooldown"`
	// StickyTTL is how long a Relevant verdict shields a URL from an
	// immediate Irrelevant flicker.
	StickyTTL time.Duration `yaml:"sticky_ttl"`
	// MaxConcurrent caps simultaneous classification calls.
	MaxConcurrent int64 `yaml:"max_concurrent"`
}

// ClassifyConfig points at the relevance service.
type ClassifyConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig controls the persistent assessment cache.
type CacheConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	MaxRows int           `yaml:"max_rows"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "focusd.db"
	}
	if c.Classify.Timeout <= 0 {
		c.Classify.Timeout = 20 * time.Second
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 30 * time.Minute
	}
	if c.Cache.MaxRows <= 0 {
		c.Cache.MaxRows = 5000
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 3 * time.Second
	}
	if c.StickyTTL <= 0 {
		c.StickyTTL = 7 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
