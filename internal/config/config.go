package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fikin/nodemcu-device/internal/ota"
	"github.com/fikin/nodemcu-device/internal/report"
)

// Defaults for device access.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultReportFormat = report.FormatTable
)

// Config represents the complete nodemcu-ota configuration
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Upgrade UpgradeConfig `yaml:"upgrade"`
}

// DeviceConfig configures access to the device OTA service
type DeviceConfig struct {
	Host            string        `yaml:"host"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"-"`
	PasswordFile    string        `yaml:"password_file"`
	Timeout         time.Duration `yaml:"timeout"`
	RequestInterval time.Duration `yaml:"request_interval"`
}

// UpgradeConfig configures upgrade behavior
type UpgradeConfig struct {
	IncludeBootstrap    bool          `yaml:"include_bootstrap"`
	ListOnly            bool          `yaml:"list_only"`
	IgnoreReleaseErrors bool          `yaml:"ignore_release_errors"`
	NoRestart           bool          `yaml:"no_restart"`
	ReportFormat        report.Format `yaml:"report_format"`
}

// Default returns a configuration with defaults applied and nothing else set
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file. When optional is true a
// missing file yields the defaults instead of an error.
func Load(path string, optional bool) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Device.Host = os.ExpandEnv(c.Device.Host)
	c.Device.User = os.ExpandEnv(c.Device.User)
	c.Device.PasswordFile = os.ExpandEnv(c.Device.PasswordFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Device.Timeout == 0 {
		c.Device.Timeout = DefaultTimeout
	}
	if c.Upgrade.ReportFormat == "" {
		c.Upgrade.ReportFormat = DefaultReportFormat
	}
}

// Validate checks the configuration for errors. It is called once, after
// file values and command line overrides have been merged.
func (c *Config) Validate() error {
	if c.Device.Host == "" {
		return fmt.Errorf("device.host is required")
	}
	if c.Device.User == "" {
		return fmt.Errorf("device.user is required")
	}
	if strings.ContainsAny(c.Device.Host, " \t") {
		return fmt.Errorf("device.host must not contain whitespace: %q", c.Device.Host)
	}

	if c.Device.Timeout < 0 {
		return fmt.Errorf("device.timeout must not be negative: %s", c.Device.Timeout)
	}
	if c.Device.RequestInterval < 0 {
		return fmt.Errorf("device.request_interval must not be negative: %s", c.Device.RequestInterval)
	}

	switch c.Upgrade.ReportFormat {
	case report.FormatTable, report.FormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid upgrade.report_format: %s (must be table or json)", c.Upgrade.ReportFormat)
	}

	return nil
}

// ResolvePassword fills Device.Password from the password file when it is
// not already set.
func (c *Config) ResolvePassword() error {
	if c.Device.Password != "" || c.Device.PasswordFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Device.PasswordFile)
	if err != nil {
		return fmt.Errorf("failed to read password file: %w", err)
	}
	c.Device.Password = strings.TrimSpace(string(data))
	return nil
}

// Options returns the upgrade options for one run
func (c *Config) Options() ota.Options {
	return ota.Options{
		IncludeBootstrap:    c.Upgrade.IncludeBootstrap,
		ListOnly:            c.Upgrade.ListOnly,
		IgnoreReleaseErrors: c.Upgrade.IgnoreReleaseErrors,
		NoRestart:           c.Upgrade.NoRestart,
	}
}
