package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagewatch.yaml")
	if err := os.WriteFile(path, []byte("browser:\n  mode: headless\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Stabilize.QuietPeriod != 1200*time.Millisecond {
		t.Errorf("quiet_period = %v, want default 1.2s", cfg.Stabilize.QuietPeriod)
	}
	if cfg.Trigger.MutationDebounce != 2*time.Second {
		t.Errorf("mutation_debounce = %v, want default 2s", cfg.Trigger.MutationDebounce)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults failed validation: %v", err)
	}
}

func TestLoadFile_ProfileAndOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagewatch.yaml")
	raw := "stabilize:\n  profile: patient\n  max_wait: 10s\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Stabilize.QuietPeriod != 2*time.Second {
		t.Errorf("quiet_period = %v, want patient profile 2s", cfg.Stabilize.QuietPeriod)
	}
	if cfg.Stabilize.MaxWait != 10*time.Second {
		t.Errorf("max_wait = %v, explicit value must win over profile", cfg.Stabilize.MaxWait)
	}
}

func TestLoadFile_RejectsBadTimings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagewatch.yaml")
	raw := "stabilize:\n  quiet_period: 5s\n  max_wait: 3s\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("quiet_period > max_wait loaded without error")
	}
}

func TestValidate_RejectsBadTimings(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	cfg.Stabilize.PollInterval = cfg.Stabilize.QuietPeriod
	if err := cfg.Validate(); err == nil {
		t.Error("poll_interval == quiet_period passed validation")
	}

	var cfg2 Config
	cfg2.ApplyDefaults()
	cfg2.Stabilize.QuietPeriod = cfg2.Stabilize.MaxWait + time.Second
	if err := cfg2.Validate(); err == nil {
		t.Error("quiet_period > max_wait passed validation")
	}
}
