package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fikin/nodemcu-device/internal/report"
)

func TestLoad(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	content := `
device:
  host: "nodemcu.local:80"
  user: "admin"
  password_file: "/home/user/.config/nodemcu-ota/password"
  timeout: 10s
  request_interval: 250ms

upgrade:
  include_bootstrap: true
  no_restart: true
  report_format: json
`

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name(), false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Device.Host != "nodemcu.local:80" {
		t.Errorf("expected host nodemcu.local:80, got %s", cfg.Device.Host)
	}
	if cfg.Device.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %s", cfg.Device.Timeout)
	}
	if cfg.Device.RequestInterval != 250*time.Millisecond {
		t.Errorf("expected request interval 250ms, got %s", cfg.Device.RequestInterval)
	}
	if cfg.Upgrade.ReportFormat != report.FormatJSON {
		t.Errorf("expected json report, got %s", cfg.Upgrade.ReportFormat)
	}

	opts := cfg.Options()
	if !opts.IncludeBootstrap || !opts.NoRestart || opts.ListOnly || opts.IgnoreReleaseErrors {
		t.Errorf("unexpected options %+v", opts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("device:\n  host: h\n  user: u\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %s", cfg.Device.Timeout)
	}
	if cfg.Upgrade.ReportFormat != DefaultReportFormat {
		t.Errorf("expected default report format, got %s", cfg.Upgrade.ReportFormat)
	}
}

func TestLoad_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.yaml")

	if _, err := Load(path, false); err == nil {
		t.Error("expected error for missing config file")
	}

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("optional missing config should not fail: %v", err)
	}
	if cfg.Device.Timeout != DefaultTimeout {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("device: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, true); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_ExpandEnv(t *testing.T) {
	t.Setenv("OTA_TEST_HOST", "10.0.0.7")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("device:\n  host: ${OTA_TEST_HOST}\n  user: u\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Host != "10.0.0.7" {
		t.Errorf("expected expanded host, got %s", cfg.Device.Host)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Device: DeviceConfig{
				Host:    "nodemcu.local",
				User:    "admin",
				Timeout: time.Second,
			},
			Upgrade: UpgradeConfig{ReportFormat: report.FormatTable},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Device.Host = "" }, wantErr: true},
		{name: "missing user", mutate: func(c *Config) { c.Device.User = "" }, wantErr: true},
		{name: "host with space", mutate: func(c *Config) { c.Device.Host = "a b" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Device.Timeout = -time.Second }, wantErr: true},
		{name: "negative interval", mutate: func(c *Config) { c.Device.RequestInterval = -time.Second }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Device.Timeout = 0 }},
		{name: "json report", mutate: func(c *Config) { c.Upgrade.ReportFormat = report.FormatJSON }},
		{name: "unknown report", mutate: func(c *Config) { c.Upgrade.ReportFormat = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolvePassword(t *testing.T) {
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "password")
	if err := os.WriteFile(pwFile, []byte("s3cret\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Device.PasswordFile = pwFile
	if err := cfg.ResolvePassword(); err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Password != "s3cret" {
		t.Errorf("expected trimmed password, got %q", cfg.Device.Password)
	}

	cfg = Default()
	cfg.Device.Password = "from-flag"
	cfg.Device.PasswordFile = filepath.Join(dir, "missing")
	if err := cfg.ResolvePassword(); err != nil {
		t.Errorf("explicit password should win over file: %v", err)
	}

	cfg = Default()
	cfg.Device.PasswordFile = filepath.Join(dir, "missing")
	if err := cfg.ResolvePassword(); err == nil {
		t.Error("expected error for missing password file")
	}
}
