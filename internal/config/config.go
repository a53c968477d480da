package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys.
const EnvPrefix = "DATALOGGER"

// DefaultProfile is the profile every other profile inherits from.
const DefaultProfile = "default"

// Sensor and meter driver names.
const (
	DriverINA219    = "ina219"
	DriverSimulated = "simulated"
	DriverPZEM      = "pzem"
	DriverNone      = "none"
)

type DefinitionsConfig struct {
	Channels []ChannelDefinition `mapstructure:"channels" yaml:"channels"`
}

// ChannelDefinition describes one current/voltage sensor wired to the logger.
type ChannelDefinition struct {
	ID         string  `mapstructure:"id" yaml:"id"`
	Name       string  `mapstructure:"name" yaml:"name"`
	Address    uint16  `mapstructure:"address" yaml:"address"`
	ShuntOhms  float64 `mapstructure:"shunt_ohms" yaml:"shunt_ohms"`
	MaxCurrent float64 `mapstructure:"max_current" yaml:"max_current"`
	REq        float64 `mapstructure:"r_eq" yaml:"r_eq"`
	Ratio      float64 `mapstructure:"ratio" yaml:"ratio"`
}

// ChannelReference selects a definition for a profile, optionally overriding
// its calibration.
type ChannelReference struct {
	Ref   string   `mapstructure:"ref" yaml:"ref"`
	REq   *float64 `mapstructure:"r_eq,omitempty" yaml:"r_eq,omitempty"`
	Ratio *float64 `mapstructure:"ratio,omitempty" yaml:"ratio,omitempty"`
}

type GlobalsConfig struct {
	StorageDirectory string `mapstructure:"storage_directory" yaml:"storage_directory"`
	HTTPListen       string `mapstructure:"http_listen" yaml:"http_listen"`
}

type RootConfig struct {
	ActiveProfile string                    `mapstructure:"active_profile" yaml:"active_profile"`
	Globals       *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Definitions   *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Profiles      map[string]*ConfigProfile `mapstructure:"profiles" yaml:"profiles"`
}

type ConfigProfile struct {
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Sampling SamplingConfig `mapstructure:"sampling" yaml:"sampling"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	Console  ConsoleConfig  `mapstructure:"console" yaml:"console"`
	Sensors  SensorsProfile `mapstructure:"sensors" yaml:"sensors"`
	Meter    MeterConfig    `mapstructure:"meter" yaml:"meter"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type SensorsProfile struct {
	Driver   string             `mapstructure:"driver" yaml:"driver"`
	Bus      string             `mapstructure:"bus" yaml:"bus"`
	Channels []ChannelReference `mapstructure:"channels" yaml:"channels"`
}

// Config is the resolved configuration of one profile.
type Config struct {
	Profile  string         `mapstructure:"-" yaml:"profile"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Sampling SamplingConfig `mapstructure:"sampling" yaml:"sampling"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	Console  ConsoleConfig  `mapstructure:"console" yaml:"console"`
	Sensors  SensorsConfig  `mapstructure:"sensors" yaml:"sensors"`
	Meter    MeterConfig    `mapstructure:"meter" yaml:"meter"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`

	// Where each value came from, for the info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

// InheritanceInfo maps a dotted key to "builtin", "inherited",
// "profile-specific" or "global".
type InheritanceInfo struct {
	Keys     map[string]string
	Channels map[string]string
}

type StorageConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type SamplingConfig struct {
	Period      time.Duration `mapstructure:"period" yaml:"period"`
	LiveRefresh time.Duration `mapstructure:"live_refresh" yaml:"live_refresh"`
}

type HTTPConfig struct {
	Listen        string        `mapstructure:"listen" yaml:"listen"`
	AcceptTimeout time.Duration `mapstructure:"accept_timeout" yaml:"accept_timeout"`
	Metrics       *bool         `mapstructure:"metrics" yaml:"metrics,omitempty"`
}

// MetricsEnabled reports whether /metrics is served. Defaults to true.
func (h HTTPConfig) MetricsEnabled() bool {
	return h.Metrics == nil || *h.Metrics
}

type ConsoleConfig struct {
	Device      string `mapstructure:"device" yaml:"device"` // empty means stdin/stdout
	BaudRate    int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	LogCapacity int    `mapstructure:"log_capacity" yaml:"log_capacity"`
}

type SensorsConfig struct {
	Driver   string    `mapstructure:"driver" yaml:"driver"`
	Bus      string    `mapstructure:"bus" yaml:"bus"`
	Channels []Channel `mapstructure:"channels" yaml:"channels"`
}

// Channel is a resolved sensor channel with its calibration.
type Channel struct {
	Name       string  `mapstructure:"name" yaml:"name"`
	Address    uint16  `mapstructure:"address" yaml:"address"`
	ShuntOhms  float64 `mapstructure:"shunt_ohms" yaml:"shunt_ohms"`
	MaxCurrent float64 `mapstructure:"max_current" yaml:"max_current"`
	REq        float64 `mapstructure:"r_eq" yaml:"r_eq"`
	Ratio      float64 `mapstructure:"ratio" yaml:"ratio"`
}

type MeterConfig struct {
	Driver   string        `mapstructure:"driver" yaml:"driver"`
	Port     string        `mapstructure:"port" yaml:"port"`
	BaudRate int           `mapstructure:"baud_rate" yaml:"baud_rate"`
	Address  uint8         `mapstructure:"address" yaml:"address"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type LogConfig struct {
	Level  string        `mapstructure:"level" yaml:"level"`
	Format string        `mapstructure:"format" yaml:"format"` // text, json or auto
	File   LogFileConfig `mapstructure:"file" yaml:"file"`
}

type LogFileConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	return &Config{
		Profile: "builtin",
		Storage: StorageConfig{
			Directory: filepath.Join(os.Getenv("HOME"), "datalogger"),
		},
		Sampling: SamplingConfig{
			Period:      time.Second,
			LiveRefresh: 2 * time.Second,
		},
		HTTP: HTTPConfig{
			Listen:        ":8080",
			AcceptTimeout: 800 * time.Millisecond,
		},
		Console: ConsoleConfig{
			BaudRate:    115200,
			LogCapacity: 16 * 1024,
		},
		Sensors: SensorsConfig{
			Driver: DriverSimulated,
			Bus:    "/dev/i2c-1",
			Channels: []Channel{
				{Name: "ch1", Address: 0x40, ShuntOhms: 0.1, MaxCurrent: 3.2, Ratio: 1},
				{Name: "ch2", Address: 0x41, ShuntOhms: 0.1, MaxCurrent: 3.2, Ratio: 1},
			},
		},
		Meter: MeterConfig{
			Driver:   DriverSimulated,
			Port:     "/dev/ttyUSB0",
			BaudRate: 9600,
			Address:  0xF8,
			Timeout:  time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
			File: LogFileConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Inheritance: newInheritance("builtin"),
	}
}

// DefaultPath returns $HOME/.config/datalogger.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".config", "datalogger.yaml")
}

// Load resolves profile from configFile. An empty configFile falls back to
// DefaultPath; a missing file yields the built-in defaults.
func Load(configFile, profile string) (*Config, error) {
	if configFile == "" {
		configFile = DefaultPath()
		if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			applyEnv(cfg)
			if err := Validate(cfg); err != nil {
				return nil, fmt.Errorf("config validation failed: %w", err)
			}
			return cfg, nil
		}
	}
	return LoadWithProfile(configFile, profile)
}

// LoadWithProfile reads configFile and resolves the requested profile, or the
// file's active_profile, merged over the default profile and built-in values.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	profileName := profile
	if profileName == "" {
		profileName = rootConfig.ActiveProfile
	}
	if profileName == "" {
		profileName = DefaultProfile
	}

	selected, exists := rootConfig.Profiles[profileName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", profileName)
	}

	result := Default()
	if base, ok := rootConfig.Profiles[DefaultProfile]; ok && profileName != DefaultProfile {
		result, err = mergeProfile(result, base, rootConfig.Definitions, "inherited")
		if err != nil {
			return nil, fmt.Errorf("error resolving default profile: %w", err)
		}
	}
	result, err = mergeProfile(result, selected, rootConfig.Definitions, "profile-specific")
	if err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", profileName, err)
	}
	result.Profile = profileName

	// Globals win over every profile
	if g := rootConfig.Globals; g != nil {
		if g.StorageDirectory != "" {
			result.Storage.Directory = g.StorageDirectory
			result.Inheritance.Keys["storage.directory"] = "global"
		}
		if g.HTTPListen != "" {
			result.HTTP.Listen = g.HTTPListen
			result.Inheritance.Keys["http.listen"] = "global"
		}
	}

	applyEnv(result)
	result.Storage.Directory = expandPath(result.Storage.Directory)
	result.Log.File.Path = expandPath(result.Log.File.Path)

	if err := Validate(result); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return result, nil
}

// ValidateConfigurationFormat reads configFile and checks its structure.
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateDefinitions(rootConfig.Definitions); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	// Unmarshal drops profiles written as "name: {}" or "name:", so the
	// profile set comes from the raw keys.
	if rootConfig.Profiles == nil {
		rootConfig.Profiles = make(map[string]*ConfigProfile)
	}
	for name := range v.GetStringMap("profiles") {
		if rootConfig.Profiles[name] == nil {
			rootConfig.Profiles[name] = &ConfigProfile{}
		}
	}
	if len(rootConfig.Profiles) == 0 {
		return nil, fmt.Errorf("profiles section is required")
	}
	for name, p := range rootConfig.Profiles {
		if err := validateChannelReferences(p.Sensors.Channels, rootConfig.Definitions); err != nil {
			return nil, fmt.Errorf("invalid profile '%s': %w", name, err)
		}
	}

	return &rootConfig, nil
}

// UpdateActiveProfile rewrites the active_profile key of configFile.
func UpdateActiveProfile(configFile, profile string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	if _, ok := v.GetStringMap("profiles")[profile]; !ok {
		return fmt.Errorf("configuration profile '%s' not found", profile)
	}

	v.Set("active_profile", profile)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}
	return nil
}

// applyEnv overrides a few operational keys from DATALOGGER_* variables.
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, apply := range map[string]func(string){
		"storage.directory": func(s string) { cfg.Storage.Directory = s },
		"http.listen":       func(s string) { cfg.HTTP.Listen = s },
		"console.device":    func(s string) { cfg.Console.Device = s },
		"sensors.driver":    func(s string) { cfg.Sensors.Driver = s },
		"meter.driver":      func(s string) { cfg.Meter.Driver = s },
		"meter.port":        func(s string) { cfg.Meter.Port = s },
		"log.level":         func(s string) { cfg.Log.Level = s },
	} {
		if s := v.GetString(key); s != "" {
			apply(s)
			if cfg.Inheritance != nil {
				cfg.Inheritance.Keys[key] = "env"
			}
		}
	}
}

func newInheritance(source string) *InheritanceInfo {
	info := &InheritanceInfo{
		Keys:     make(map[string]string),
		Channels: make(map[string]string),
	}
	for _, key := range trackedKeys {
		info.Keys[key] = source
	}
	return info
}

var trackedKeys = []string{
	"storage.directory",
	"sampling.period",
	"sampling.live_refresh",
	"http.listen",
	"http.accept_timeout",
	"http.metrics",
	"console.device",
	"console.baud_rate",
	"console.log_capacity",
	"sensors.driver",
	"sensors.bus",
	"meter.driver",
	"meter.port",
	"meter.baud_rate",
	"meter.address",
	"meter.timeout",
	"log.level",
	"log.format",
	"log.file.path",
}

// mergeProfile overlays the non-zero values of profile onto base, marking
// each overridden key with source. A profile listing sensor channels
// replaces the inherited channel set.
func mergeProfile(base *Config, profile *ConfigProfile, definitions *DefinitionsConfig, source string) (*Config, error) {
	result := *base
	result.Sensors.Channels = append([]Channel(nil), base.Sensors.Channels...)
	result.Inheritance = &InheritanceInfo{
		Keys:     make(map[string]string, len(base.Inheritance.Keys)),
		Channels: make(map[string]string, len(base.Inheritance.Channels)),
	}
	for k, v := range base.Inheritance.Keys {
		result.Inheritance.Keys[k] = v
	}
	for k, v := range base.Inheritance.Channels {
		result.Inheritance.Channels[k] = v
	}

	if profile == nil {
		return &result, nil
	}
	mark := func(key string) { result.Inheritance.Keys[key] = source }

	if profile.Storage.Directory != "" {
		result.Storage.Directory = profile.Storage.Directory
		mark("storage.directory")
	}
	if profile.Sampling.Period != 0 {
		result.Sampling.Period = profile.Sampling.Period
		mark("sampling.period")
	}
	if profile.Sampling.LiveRefresh != 0 {
		result.Sampling.LiveRefresh = profile.Sampling.LiveRefresh
		mark("sampling.live_refresh")
	}
	if profile.HTTP.Listen != "" {
		result.HTTP.Listen = profile.HTTP.Listen
		mark("http.listen")
	}
	if profile.HTTP.AcceptTimeout != 0 {
		result.HTTP.AcceptTimeout = profile.HTTP.AcceptTimeout
		mark("http.accept_timeout")
	}
	if profile.HTTP.Metrics != nil {
		enabled := *profile.HTTP.Metrics
		result.HTTP.Metrics = &enabled
		mark("http.metrics")
	}
	if profile.Console.Device != "" {
		result.Console.Device = profile.Console.Device
		mark("console.device")
	}
	if profile.Console.BaudRate != 0 {
		result.Console.BaudRate = profile.Console.BaudRate
		mark("console.baud_rate")
	}
	if profile.Console.LogCapacity != 0 {
		result.Console.LogCapacity = profile.Console.LogCapacity
		mark("console.log_capacity")
	}
	if profile.Sensors.Driver != "" {
		result.Sensors.Driver = profile.Sensors.Driver
		mark("sensors.driver")
	}
	if profile.Sensors.Bus != "" {
		result.Sensors.Bus = profile.Sensors.Bus
		mark("sensors.bus")
	}
	if profile.Meter.Driver != "" {
		result.Meter.Driver = profile.Meter.Driver
		mark("meter.driver")
	}
	if profile.Meter.Port != "" {
		result.Meter.Port = profile.Meter.Port
		mark("meter.port")
	}
	if profile.Meter.BaudRate != 0 {
		result.Meter.BaudRate = profile.Meter.BaudRate
		mark("meter.baud_rate")
	}
	if profile.Meter.Address != 0 {
		result.Meter.Address = profile.Meter.Address
		mark("meter.address")
	}
	if profile.Meter.Timeout != 0 {
		result.Meter.Timeout = profile.Meter.Timeout
		mark("meter.timeout")
	}
	if profile.Log.Level != "" {
		result.Log.Level = profile.Log.Level
		mark("log.level")
	}
	if profile.Log.Format != "" {
		result.Log.Format = profile.Log.Format
		mark("log.format")
	}
	if profile.Log.File.Path != "" {
		result.Log.File.Path = profile.Log.File.Path
		mark("log.file.path")
	}
	if profile.Log.File.MaxSizeMB != 0 {
		result.Log.File.MaxSizeMB = profile.Log.File.MaxSizeMB
	}
	if profile.Log.File.MaxBackups != 0 {
		result.Log.File.MaxBackups = profile.Log.File.MaxBackups
	}
	if profile.Log.File.MaxAgeDays != 0 {
		result.Log.File.MaxAgeDays = profile.Log.File.MaxAgeDays
	}

	if len(profile.Sensors.Channels) > 0 {
		channels, err := resolveChannels(profile.Sensors.Channels, definitions)
		if err != nil {
			return nil, err
		}
		result.Sensors.Channels = channels
		result.Inheritance.Channels = make(map[string]string, len(channels))
		for _, ch := range channels {
			result.Inheritance.Channels[ch.Name] = source
		}
	}

	return &result, nil
}

// resolveChannels turns references into channels, applying overrides.
func resolveChannels(refs []ChannelReference, definitions *DefinitionsConfig) ([]Channel, error) {
	channels := make([]Channel, 0, len(refs))
	for i, ref := range refs {
		def := findDefinition(definitions, ref.Ref)
		if def == nil {
			return nil, fmt.Errorf("channels[%d]: reference '%s' not found in definitions", i, ref.Ref)
		}
		ch := Channel{
			Name:       def.Name,
			Address:    def.Address,
			ShuntOhms:  def.ShuntOhms,
			MaxCurrent: def.MaxCurrent,
			REq:        def.REq,
			Ratio:      def.Ratio,
		}
		if ref.REq != nil {
			ch.REq = *ref.REq
		}
		if ref.Ratio != nil {
			ch.Ratio = *ref.Ratio
		}
		if ch.Ratio == 0 {
			ch.Ratio = 1
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func findDefinition(definitions *DefinitionsConfig, id string) *ChannelDefinition {
	if definitions == nil {
		return nil
	}
	for i := range definitions.Channels {
		if definitions.Channels[i].ID == id {
			return &definitions.Channels[i]
		}
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
