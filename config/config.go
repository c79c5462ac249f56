// Package config holds the per-device configuration this module needs
// to join the bus: device name, network ports, instance/history sizing
// defaults, and expiry timeouts.
//
// Grounded on the teacher's BaseConfiguration/PeerConfiguration split
// (pkg/mcast's NewUnity(base *BaseConfiguration, cluster
// *ClusterConfiguration, ...) and core/transport.go's
// NewTransport(peer *types.PeerConfiguration, ...)): one struct built
// through functional options, handed to the constructors that need it
// rather than read from globals. YAML round-trip is grounded on
// nugget-thane-ai-agent's internal/config/config.go Load/Validate shape.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the configuration one Device process is built from.
type Config struct {
	Name string `yaml:"name"`

	AdminGroup string `yaml:"admin_group"` // multicast group address for /name, /sync traffic
	DataPort   int    `yaml:"data_port"`   // UDP port this device listens on for direct signal traffic

	DefaultNumInstances int     `yaml:"default_num_instances"` // signal.New's numInstances when unspecified
	DefaultMaxHistory   int     `yaml:"default_max_history"`
	SyncIntervalSec     float64 `yaml:"sync_interval_sec"`
	TimeoutSec          float64 `yaml:"timeout_sec"` // device/graph expiry horizon, spec §4.9

	LogLevel string `yaml:"log_level"`
}

// Option mutates a Config under construction, the teacher's
// functional-option idiom generalized from BaseConfiguration's
// constructor arguments to a chain of With* calls.
type Option func(*Config)

func WithAdminGroup(addr string) Option    { return func(c *Config) { c.AdminGroup = addr } }
func WithDataPort(port int) Option         { return func(c *Config) { c.DataPort = port } }
func WithSyncInterval(sec float64) Option  { return func(c *Config) { c.SyncIntervalSec = sec } }
func WithTimeout(sec float64) Option       { return func(c *Config) { c.TimeoutSec = sec } }
func WithLogLevel(level string) Option     { return func(c *Config) { c.LogLevel = level } }
func WithDefaultInstances(n int) Option    { return func(c *Config) { c.DefaultNumInstances = n } }
func WithDefaultMaxHistory(n int) Option   { return func(c *Config) { c.DefaultMaxHistory = n } }

// NewConfig builds a Config for name with defaults applied, then runs
// opts over it.
func NewConfig(name string, opts ...Option) *Config {
	c := &Config{
		Name:                name,
		AdminGroup:          "239.192.23.1:7570",
		DataPort:            0, // 0 = let the transport pick an ephemeral port
		DefaultNumInstances: 1,
		DefaultMaxHistory:   1,
		SyncIntervalSec:     1.0,
		TimeoutSec:          10.0,
		LogLevel:            "info",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks that a Config is usable, run after Load and after
// NewConfig's defaults so it can assume every field is populated.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name is required")
	}
	if c.AdminGroup == "" {
		return fmt.Errorf("config: admin_group is required")
	}
	if c.DataPort < 0 || c.DataPort > 65535 {
		return fmt.Errorf("config: data_port %d out of range", c.DataPort)
	}
	if c.DefaultNumInstances < 1 {
		return fmt.Errorf("config: default_num_instances must be at least 1")
	}
	if c.SyncIntervalSec <= 0 {
		return fmt.Errorf("config: sync_interval_sec must be positive")
	}
	if c.TimeoutSec <= c.SyncIntervalSec {
		return fmt.Errorf("config: timeout_sec must exceed sync_interval_sec")
	}
	return nil
}

// Load reads a YAML manifest from path, applies NewConfig's defaults
// for any zero-valued field, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := NewConfig("")
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	c.applyZeroDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Save writes c back out as YAML, the counterpart nugget-thane-ai-agent
// does not need but spec §4.9's "device configuration is a static
// manifest, loadable and saveable" calls for.
func Save(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyZeroDefaults() {
	defaults := NewConfig(c.Name)
	if c.AdminGroup == "" {
		c.AdminGroup = defaults.AdminGroup
	}
	if c.DefaultNumInstances == 0 {
		c.DefaultNumInstances = defaults.DefaultNumInstances
	}
	if c.DefaultMaxHistory == 0 {
		c.DefaultMaxHistory = defaults.DefaultMaxHistory
	}
	if c.SyncIntervalSec == 0 {
		c.SyncIntervalSec = defaults.SyncIntervalSec
	}
	if c.TimeoutSec == 0 {
		c.TimeoutSec = defaults.TimeoutSec
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
}
