package config

import (
	"path/filepath"
	"testing"
)

func TestNewConfig_Defaults(t *testing.T) {
	c := NewConfig("synth.1")
	if c.AdminGroup != "239.192.23.1:7570" {
		t.Errorf("AdminGroup default = %q", c.AdminGroup)
	}
	if c.DefaultNumInstances != 1 || c.DefaultMaxHistory != 1 {
		t.Errorf("instance/history defaults = %d/%d, want 1/1", c.DefaultNumInstances, c.DefaultMaxHistory)
	}
	if c.TimeoutSec <= c.SyncIntervalSec {
		t.Error("default timeout should exceed default sync interval")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestNewConfig_OptionsOverrideDefaults(t *testing.T) {
	c := NewConfig("synth.1", WithDataPort(9500), WithTimeout(30), WithSyncInterval(5), WithLogLevel("debug"))
	if c.DataPort != 9500 || c.TimeoutSec != 30 || c.SyncIntervalSec != 5 || c.LogLevel != "debug" {
		t.Errorf("options did not apply: %+v", c)
	}
}

func TestConfig_ValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"empty admin group", func(c *Config) { c.AdminGroup = "" }},
		{"negative data port", func(c *Config) { c.DataPort = -1 }},
		{"data port too large", func(c *Config) { c.DataPort = 70000 }},
		{"zero instances", func(c *Config) { c.DefaultNumInstances = 0 }},
		{"non-positive sync interval", func(c *Config) { c.SyncIntervalSec = 0 }},
		{"timeout not exceeding sync interval", func(c *Config) { c.TimeoutSec = c.SyncIntervalSec }},
	}
	for _, tc := range cases {
		c := NewConfig("synth.1")
		tc.mod(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected Validate to reject, got nil error", tc.name)
		}
	}
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "device.yaml")

	want := NewConfig("synth.1", WithDataPort(9500), WithTimeout(20), WithSyncInterval(2))
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != want.Name || got.DataPort != want.DataPort || got.TimeoutSec != want.TimeoutSec {
		t.Errorf("round-tripped config = %+v, want %+v", got, want)
	}
}

func TestConfig_LoadAppliesDefaultsToMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.yaml")
	if err := Save(path, &Config{Name: "synth.1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AdminGroup == "" || got.SyncIntervalSec == 0 || got.TimeoutSec == 0 {
		t.Errorf("Load should backfill zero-valued fields with defaults, got %+v", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Error("Load of a missing file should return an error")
	}
}
