package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const profilesConfig = `
active_profile: bench

definitions:
  channels:
    - id: panel
      name: panel
      address: 0x40
      shunt_ohms: 0.1
      max_current: 3.2
      r_eq: 0.05
    - id: battery
      name: battery
      address: 0x41
      shunt_ohms: 0.1
      max_current: 3.2
      ratio: 1.02
    - id: load
      name: load
      address: 0x44
      shunt_ohms: 0.01
      max_current: 10

profiles:
  default:
    storage:
      directory: /var/lib/datalogger
    sampling:
      period: 1s
      live_refresh: 2s
    sensors:
      driver: ina219
      bus: /dev/i2c-1
      channels:
        - ref: panel
        - ref: battery
    meter:
      driver: pzem
      port: /dev/ttyUSB0

  bench:
    sampling:
      period: 5s
      live_refresh: 10s
    http:
      listen: 127.0.0.1:9000
      metrics: false
    sensors:
      channels:
        - ref: panel
          r_eq: 0.12
        - ref: load
    meter:
      driver: simulated
`

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datalogger.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

func TestLoadWithProfile_ActiveProfileMergedOverDefault(t *testing.T) {
	path := createTempConfig(t, profilesConfig)

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Profile != "bench" {
		t.Errorf("Expected profile 'bench', got %s", cfg.Profile)
	}
	if cfg.Sampling.Period != 5*time.Second {
		t.Errorf("Expected period 5s, got %s", cfg.Sampling.Period)
	}
	if cfg.Storage.Directory != "/var/lib/datalogger" {
		t.Errorf("Expected storage directory inherited from default, got %s", cfg.Storage.Directory)
	}
	if cfg.Sensors.Driver != DriverINA219 {
		t.Errorf("Expected sensors driver inherited from default, got %s", cfg.Sensors.Driver)
	}
	if cfg.Meter.Driver != DriverSimulated {
		t.Errorf("Expected meter driver 'simulated', got %s", cfg.Meter.Driver)
	}
	if cfg.HTTP.MetricsEnabled() {
		t.Errorf("Expected metrics disabled by profile")
	}
	if cfg.HTTP.AcceptTimeout != 800*time.Millisecond {
		t.Errorf("Expected built-in accept timeout, got %s", cfg.HTTP.AcceptTimeout)
	}

	want := []Channel{
		{Name: "panel", Address: 0x40, ShuntOhms: 0.1, MaxCurrent: 3.2, REq: 0.12, Ratio: 1},
		{Name: "load", Address: 0x44, ShuntOhms: 0.01, MaxCurrent: 10, Ratio: 1},
	}
	if diff := cmp.Diff(want, cfg.Sensors.Channels); diff != "" {
		t.Errorf("Channels mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadWithProfile_Inheritance(t *testing.T) {
	path := createTempConfig(t, profilesConfig)

	cfg, err := LoadWithProfile(path, "bench")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := map[string]string{
		"sampling.period":     "profile-specific",
		"storage.directory":   "inherited",
		"sensors.driver":      "inherited",
		"meter.driver":        "profile-specific",
		"meter.port":          "inherited",
		"http.accept_timeout": "builtin",
		"http.listen":         "profile-specific",
	}
	for key, source := range want {
		if got := cfg.Inheritance.Keys[key]; got != source {
			t.Errorf("Key %s: expected %s, got %s", key, source, got)
		}
	}
	if got := cfg.Inheritance.Channels["load"]; got != "profile-specific" {
		t.Errorf("Expected channel 'load' profile-specific, got %s", got)
	}
}

func TestLoadWithProfile_DefaultProfile(t *testing.T) {
	path := createTempConfig(t, profilesConfig)

	cfg, err := LoadWithProfile(path, "default")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := []Channel{
		{Name: "panel", Address: 0x40, ShuntOhms: 0.1, MaxCurrent: 3.2, REq: 0.05, Ratio: 1},
		{Name: "battery", Address: 0x41, ShuntOhms: 0.1, MaxCurrent: 3.2, Ratio: 1.02},
	}
	if diff := cmp.Diff(want, cfg.Sensors.Channels); diff != "" {
		t.Errorf("Channels mismatch (-want +got):\n%s", diff)
	}
	if cfg.Inheritance.Keys["sampling.period"] != "profile-specific" {
		t.Errorf("Expected period profile-specific in default profile, got %s", cfg.Inheritance.Keys["sampling.period"])
	}
}

func TestLoadWithProfile_UnknownProfile(t *testing.T) {
	path := createTempConfig(t, profilesConfig)
	if _, err := LoadWithProfile(path, "field"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestLoadWithProfile_Globals(t *testing.T) {
	content := profilesConfig + `
globals:
  storage_directory: ~/logs
  http_listen: ":80"
`
	path := createTempConfig(t, content)

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	home, _ := os.UserHomeDir()
	if cfg.Storage.Directory != filepath.Join(home, "logs") {
		t.Errorf("Expected expanded global directory, got %s", cfg.Storage.Directory)
	}
	if cfg.HTTP.Listen != ":80" {
		t.Errorf("Expected global listen address, got %s", cfg.HTTP.Listen)
	}
	if cfg.Inheritance.Keys["http.listen"] != "global" {
		t.Errorf("Expected http.listen marked global, got %s", cfg.Inheritance.Keys["http.listen"])
	}
}

func TestLoadWithProfile_EnvOverride(t *testing.T) {
	path := createTempConfig(t, profilesConfig)
	t.Setenv("DATALOGGER_STORAGE_DIRECTORY", "/mnt/sd")
	t.Setenv("DATALOGGER_LOG_LEVEL", "debug")

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Storage.Directory != "/mnt/sd" {
		t.Errorf("Expected env storage directory, got %s", cfg.Storage.Directory)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected env log level, got %s", cfg.Log.Level)
	}
	if cfg.Inheritance.Keys["storage.directory"] != "env" {
		t.Errorf("Expected storage.directory marked env, got %s", cfg.Inheritance.Keys["storage.directory"])
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Profile != "builtin" {
		t.Errorf("Expected builtin profile, got %s", cfg.Profile)
	}
	if cfg.Sampling.Period != time.Second {
		t.Errorf("Expected 1s period, got %s", cfg.Sampling.Period)
	}
	if len(cfg.Sensors.Channels) != SensorChannels {
		t.Errorf("Expected %d default channels, got %d", SensorChannels, len(cfg.Sensors.Channels))
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), ""); err == nil {
		t.Error("Expected error for an explicit config file that does not exist")
	}
}

func TestUpdateActiveProfile(t *testing.T) {
	path := createTempConfig(t, profilesConfig)

	if err := UpdateActiveProfile(path, "default"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Profile != "default" {
		t.Errorf("Expected active profile 'default', got %s", cfg.Profile)
	}

	if err := UpdateActiveProfile(path, "missing"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestMergeProfile_KeepsBaseUntouched(t *testing.T) {
	base := Default()
	profile := &ConfigProfile{}
	profile.Sampling.Period = 3 * time.Second

	merged, err := mergeProfile(base, profile, nil, "profile-specific")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if merged.Sampling.Period != 3*time.Second {
		t.Errorf("Expected merged period 3s, got %s", merged.Sampling.Period)
	}
	if base.Sampling.Period != time.Second {
		t.Errorf("Base config was modified: %s", base.Sampling.Period)
	}
	if base.Inheritance.Keys["sampling.period"] != "builtin" {
		t.Errorf("Base inheritance was modified: %s", base.Inheritance.Keys["sampling.period"])
	}
}

func TestLoadWithProfile_EmptyProfiles(t *testing.T) {
	path := createTempConfig(t, "active_profile: default\nprofiles:\n  default: {}\n")

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected empty default profile to load, got: %v", err)
	}
	if diff := cmp.Diff(Default().Sensors.Channels, cfg.Sensors.Channels); diff != "" {
		t.Errorf("Channels mismatch (-want +got):\n%s", diff)
	}

	path = createTempConfig(t, `
active_profile: lab
profiles:
  default:
  lab:
    storage:
      directory: /srv/lab
`)
	cfg, err = LoadWithProfile(path, "default")
	if err != nil {
		t.Fatalf("Expected --profile default to load, got: %v", err)
	}
	if cfg.Profile != "default" {
		t.Errorf("Expected profile 'default', got %s", cfg.Profile)
	}
	if cfg.Storage.Directory == "/srv/lab" {
		t.Error("Expected lab storage directory not to leak into default")
	}

	cfg, err = LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected lab profile to load, got: %v", err)
	}
	if cfg.Storage.Directory != "/srv/lab" {
		t.Errorf("Expected storage directory /srv/lab, got %s", cfg.Storage.Directory)
	}
}
