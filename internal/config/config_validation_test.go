package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty storage", func(c *Config) { c.Storage.Directory = " " }, "storage.directory"},
		{"sub-second period", func(c *Config) { c.Sampling.Period = 500 * time.Millisecond }, "at least 1s"},
		{"fractional period", func(c *Config) { c.Sampling.Period = 1500 * time.Millisecond }, "whole number"},
		{"live refresh too short", func(c *Config) {
			c.Sampling.Period = 2 * time.Second
			c.Sampling.LiveRefresh = time.Second
		}, "live_refresh"},
		{"missing listen", func(c *Config) { c.HTTP.Listen = "" }, "http.listen"},
		{"zero accept timeout", func(c *Config) { c.HTTP.AcceptTimeout = 0 }, "accept_timeout"},
		{"negative log capacity", func(c *Config) { c.Console.LogCapacity = -1 }, "log_capacity"},
		{"unknown sensor driver", func(c *Config) { c.Sensors.Driver = "ads1115" }, "sensors.driver"},
		{"ina219 without bus", func(c *Config) {
			c.Sensors.Driver = DriverINA219
			c.Sensors.Bus = ""
		}, "sensors.bus"},
		{"one channel", func(c *Config) { c.Sensors.Channels = c.Sensors.Channels[:1] }, "exactly 2"},
		{"address out of range", func(c *Config) {
			c.Sensors.Driver = DriverINA219
			c.Sensors.Channels[0].Address = 0x20
		}, "0x40-0x4F"},
		{"duplicate address", func(c *Config) {
			c.Sensors.Driver = DriverINA219
			c.Sensors.Channels[1].Address = 0x40
		}, "already used"},
		{"zero shunt", func(c *Config) { c.Sensors.Channels[0].ShuntOhms = 0 }, "shunt_ohms"},
		{"negative r_eq", func(c *Config) { c.Sensors.Channels[1].REq = -0.1 }, "r_eq"},
		{"zero ratio", func(c *Config) { c.Sensors.Channels[1].Ratio = 0 }, "ratio"},
		{"pzem without port", func(c *Config) {
			c.Meter.Driver = DriverPZEM
			c.Meter.Port = ""
		}, "meter.port"},
		{"pzem bad address", func(c *Config) {
			c.Meter.Driver = DriverPZEM
			c.Meter.Address = 0
		}, "meter.address"},
		{"meter none", func(c *Config) { c.Meter.Driver = DriverNone }, ""},
		{"unknown meter driver", func(c *Config) { c.Meter.Driver = "sdm120" }, "meter.driver"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"log file without size", func(c *Config) {
			c.Log.File.Path = "/tmp/datalogger.log"
			c.Log.File.MaxSizeMB = 0
		}, "max_size_mb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_LiveRefreshDefaultsToPeriod(t *testing.T) {
	cfg := Default()
	cfg.Sampling.Period = 3 * time.Second
	cfg.Sampling.LiveRefresh = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Sampling.LiveRefresh != 3*time.Second {
		t.Errorf("Expected live refresh 3s, got %s", cfg.Sampling.LiveRefresh)
	}
}

func TestValidateConfigurationFormat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no profiles",
			content: "active_profile: default\n",
			wantErr: "profiles section is required",
		},
		{
			name: "duplicate definition",
			content: `
definitions:
  channels:
    - {id: a, name: a, shunt_ohms: 0.1, max_current: 1}
    - {id: a, name: b, shunt_ohms: 0.1, max_current: 1}
profiles:
  default: {}
`,
			wantErr: "duplicate ID",
		},
		{
			name: "undefined reference",
			content: `
definitions:
  channels:
    - {id: a, name: a, shunt_ohms: 0.1, max_current: 1}
profiles:
  default:
    sensors:
      channels:
        - ref: b
`,
			wantErr: "undefined channel definition 'b'",
		},
		{
			name: "bad ratio override",
			content: `
definitions:
  channels:
    - {id: a, name: a, shunt_ohms: 0.1, max_current: 1}
profiles:
  default:
    sensors:
      channels:
        - {ref: a, ratio: 0}
`,
			wantErr: "ratio override",
		},
		{
			name: "definition without shunt",
			content: `
definitions:
  channels:
    - {id: a, name: a, max_current: 1}
profiles:
  default: {}
`,
			wantErr: "shunt_ohms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTempConfig(t, tt.content)
			_, err := ValidateConfigurationFormat(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateConfigurationFormat_Valid(t *testing.T) {
	path := createTempConfig(t, profilesConfig)

	root, err := ValidateConfigurationFormat(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if root.ActiveProfile != "bench" {
		t.Errorf("Expected active profile 'bench', got %s", root.ActiveProfile)
	}
	if len(root.Definitions.Channels) != 3 {
		t.Errorf("Expected 3 definitions, got %d", len(root.Definitions.Channels))
	}
	if len(root.Profiles) != 2 {
		t.Errorf("Expected 2 profiles, got %d", len(root.Profiles))
	}
}
