// Package config loads the routersync agent configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/routersync/pkg/audit"
	"github.com/newtron-network/routersync/pkg/device"
	"github.com/newtron-network/routersync/pkg/driver"
	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/util"
)

// EnvPath overrides DefaultPath when set.
const EnvPath = "ROUTERSYNC_CONFIG"

// Config is the agent configuration file.
type Config struct {
	VRFStrategy       string `yaml:"vrf_strategy,omitempty"`
	HostingInfoLayout string `yaml:"hosting_info_layout,omitempty"`
	MultiRegion       struct {
		Enabled  bool   `yaml:"enabled"`
		RegionID string `yaml:"region_id,omitempty"`
	} `yaml:"multi_region,omitempty"`

	ResyncInterval time.Duration `yaml:"resync_interval,omitempty"`
	MaxRetries     int           `yaml:"max_retries,omitempty"`
	RetryBackoff   time.Duration `yaml:"retry_backoff,omitempty"`

	// Snapshot is the desired-state file (or directory of files).
	Snapshot string `yaml:"snapshot,omitempty"`

	Devices []Device `yaml:"devices"`

	// TransitNetworks is nil when the key is absent; transit defaults are
	// then not applied at all.
	TransitNetworks map[string]model.TransitNetwork `yaml:"transit_networks,omitempty"`

	Redis Redis `yaml:"redis,omitempty"`
	Audit Audit `yaml:"audit,omitempty"`
	Log   Log   `yaml:"log,omitempty"`
}

// Device is one hosting device.
type Device struct {
	ID         string `yaml:"id"`
	Family     string `yaml:"family,omitempty"`
	MgmtIP     string `yaml:"mgmt_ip"`
	SSHPort    int    `yaml:"ssh_port,omitempty"`
	SSHUser    string `yaml:"ssh_user,omitempty"`
	SSHPass    string `yaml:"ssh_pass,omitempty"`
	KnownHosts string `yaml:"known_hosts,omitempty"`
}

// Redis configures the shared registry store and device lock. An empty Addr
// keeps the registry in memory.
type Redis struct {
	Addr    string        `yaml:"addr,omitempty"`
	DB      int           `yaml:"db,omitempty"`
	LockTTL time.Duration `yaml:"lock_ttl,omitempty"`
}

// Audit configures the change log. An empty Path disables it.
type Audit struct {
	Path       string `yaml:"path,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// Log configures the process logger.
type Log struct {
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

// Defaults used for unset fields.
const (
	DefaultResyncInterval = 60 * time.Second
	DefaultMaxRetries     = 5
	DefaultRetryBackoff   = 2 * time.Second
	DefaultLockTTL        = 30 * time.Second
)

// DefaultPath returns the config file location.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return filepath.Join("/etc", "routersync", "routersync.yaml")
}

// Load reads the config from the default location.
func Load() (*Config, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads and validates the config at path. A missing file yields
// the defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		c := &Config{}
		c.applyDefaults()
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.VRFStrategy == "" {
		c.VRFStrategy = "tenant"
	}
	if c.HostingInfoLayout == "" {
		c.HostingInfoLayout = string(driver.LayoutExposed)
	}
	if c.ResyncInterval == 0 {
		c.ResyncInterval = DefaultResyncInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = DefaultLockTTL
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i := range c.Devices {
		if c.Devices[i].Family == "" {
			c.Devices[i].Family = driver.FamilyASR1k
		}
		if c.Devices[i].SSHPort == 0 {
			c.Devices[i].SSHPort = 22
		}
	}
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	v := &util.ValidationBuilder{}

	if _, err := c.VRFResolver(); err != nil {
		v.AddErrorf("vrf_strategy: %v", err)
	}
	if _, err := driver.ParseLayout(c.HostingInfoLayout); err != nil {
		v.AddErrorf("hosting_info_layout: %v", err)
	}
	v.Add(c.MaxRetries >= 0, "max_retries must not be negative")
	v.Add(c.ResyncInterval >= 0, "resync_interval must not be negative")

	families := make(map[string]bool)
	for _, f := range driver.Families() {
		families[f] = true
	}
	seen := make(map[string]bool)
	for i, d := range c.Devices {
		if d.ID == "" {
			v.AddErrorf("devices[%d]: id is required", i)
			continue
		}
		if seen[d.ID] {
			v.AddErrorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
		v.Add(families[d.Family], fmt.Sprintf("device %s: unknown family %q", d.ID, d.Family))
		v.Add(d.MgmtIP != "", fmt.Sprintf("device %s: mgmt_ip is required", d.ID))
		v.Add(d.SSHPort > 0 && d.SSHPort < 65536, fmt.Sprintf("device %s: invalid ssh_port %d", d.ID, d.SSHPort))
	}

	for name, tn := range c.TransitNetworks {
		if tn.GatewayIP == "" || tn.CIDRExposed == "" {
			v.AddErrorf("transit network %s: gateway_ip and cidr_exposed are required", name)
			continue
		}
		if net.ParseIP(tn.GatewayIP) == nil {
			v.AddErrorf("transit network %s: invalid gateway_ip %q", name, tn.GatewayIP)
		}
		if _, _, err := net.ParseCIDR(tn.CIDRExposed); err != nil {
			v.AddErrorf("transit network %s: invalid cidr_exposed %q", name, tn.CIDRExposed)
		}
	}

	v.Add(c.Audit.MaxSizeMB >= 0 && c.Audit.MaxBackups >= 0, "audit rotation limits must not be negative")
	return v.Build()
}

// Device returns the device with the given id.
func (c *Config) Device(id string) (Device, bool) {
	for _, d := range c.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// Region returns the region id when multi-region naming is enabled.
func (c *Config) Region() string {
	if !c.MultiRegion.Enabled {
		return ""
	}
	return c.MultiRegion.RegionID
}

// VRFResolver returns the configured VRF naming strategy.
func (c *Config) VRFResolver() (driver.VRFResolver, error) {
	return driver.NewVRFResolver(c.VRFStrategy, c.Region())
}

// Layout returns the configured hosting-info layout.
func (c *Config) Layout() (driver.Layout, error) {
	return driver.ParseLayout(c.HostingInfoLayout)
}

// TransitTable returns the transit networks, or nil when none are
// configured.
func (c *Config) TransitTable() model.TransitTable {
	if c.TransitNetworks == nil {
		return nil
	}
	return model.TransitTable(c.TransitNetworks)
}

// DriverOptions returns the naming options shared by every driver. Session,
// device and registry are filled in by the caller.
func (c *Config) DriverOptions() (driver.Options, error) {
	vrfs, err := c.VRFResolver()
	if err != nil {
		return driver.Options{}, err
	}
	layout, err := c.Layout()
	if err != nil {
		return driver.Options{}, err
	}
	return driver.Options{VRFs: vrfs, Layout: layout, Region: c.Region()}, nil
}

// SSHConfig returns the connection settings for d.
func (d Device) SSHConfig() device.SSHConfig {
	return device.SSHConfig{
		Device:     d.ID,
		Host:       d.MgmtIP,
		Port:       d.SSHPort,
		User:       d.SSHUser,
		Password:   d.SSHPass,
		KnownHosts: d.KnownHosts,
	}
}

// Rotation returns the audit log rotation settings.
func (a Audit) Rotation() audit.RotationConfig {
	return audit.RotationConfig{
		MaxSize:    int64(a.MaxSizeMB) * 1024 * 1024,
		MaxBackups: a.MaxBackups,
	}
}
