package pagewatch

import (
	"github.com/karstvig/focusd/pagewatch/internal/config"
)

// Config is the top-level pagewatch configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// StabilizeConfig controls page settle timing.
type StabilizeConfig = config.StabilizeConfig

// TriggerConfig controls event debounce windows.
type TriggerConfig = config.TriggerConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}
