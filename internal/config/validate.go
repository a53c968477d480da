package config

import (
	"fmt"
	"strings"
	"time"
)

// SensorChannels is the number of sensor channels a sample carries.
const SensorChannels = 2

// Validate checks a resolved configuration.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Storage.Directory) == "" {
		return fmt.Errorf("storage.directory is required")
	}

	if cfg.Sampling.Period < time.Second {
		return fmt.Errorf("sampling.period must be at least 1s, got: %s", cfg.Sampling.Period)
	}
	if cfg.Sampling.Period%time.Second != 0 {
		return fmt.Errorf("sampling.period must be a whole number of seconds, got: %s", cfg.Sampling.Period)
	}
	if cfg.Sampling.LiveRefresh == 0 {
		cfg.Sampling.LiveRefresh = cfg.Sampling.Period
	}
	if cfg.Sampling.LiveRefresh < cfg.Sampling.Period {
		return fmt.Errorf("sampling.live_refresh (%s) must not be shorter than sampling.period (%s)",
			cfg.Sampling.LiveRefresh, cfg.Sampling.Period)
	}

	if cfg.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}
	if cfg.HTTP.AcceptTimeout <= 0 {
		return fmt.Errorf("http.accept_timeout must be > 0, got: %s", cfg.HTTP.AcceptTimeout)
	}

	if cfg.Console.BaudRate < 0 {
		return fmt.Errorf("console.baud_rate must be >= 0, got: %d", cfg.Console.BaudRate)
	}
	if cfg.Console.LogCapacity < 0 {
		return fmt.Errorf("console.log_capacity must be >= 0, got: %d", cfg.Console.LogCapacity)
	}

	if err := validateSensors(&cfg.Sensors); err != nil {
		return err
	}
	if err := validateMeter(&cfg.Meter); err != nil {
		return err
	}
	return validateLog(&cfg.Log)
}

func validateSensors(s *SensorsConfig) error {
	switch s.Driver {
	case DriverINA219:
		if s.Bus == "" {
			return fmt.Errorf("sensors.bus is required for driver '%s'", s.Driver)
		}
	case DriverSimulated:
	default:
		return fmt.Errorf("sensors.driver must be '%s' or '%s', got: %s", DriverINA219, DriverSimulated, s.Driver)
	}

	if len(s.Channels) != SensorChannels {
		return fmt.Errorf("sensors.channels must list exactly %d channels, got %d", SensorChannels, len(s.Channels))
	}
	seen := make(map[uint16]string)
	for i, ch := range s.Channels {
		prefix := fmt.Sprintf("sensors.channels[%d]", i)
		if ch.Name == "" {
			return fmt.Errorf("%s: 'name' is required", prefix)
		}
		if s.Driver == DriverINA219 {
			if ch.Address < 0x40 || ch.Address > 0x4F {
				return fmt.Errorf("%s '%s': address must be within 0x40-0x4F, got: %#x", prefix, ch.Name, ch.Address)
			}
			if other, dup := seen[ch.Address]; dup {
				return fmt.Errorf("%s '%s': address %#x already used by '%s'", prefix, ch.Name, ch.Address, other)
			}
			seen[ch.Address] = ch.Name
		}
		if err := validateCalibration(ch.ShuntOhms, ch.MaxCurrent, ch.REq, ch.Ratio, prefix+" '"+ch.Name+"'"); err != nil {
			return err
		}
	}
	return nil
}

func validateCalibration(shunt, maxCurrent, rEq, ratio float64, prefix string) error {
	if shunt <= 0 {
		return fmt.Errorf("%s: 'shunt_ohms' must be > 0, got: %g", prefix, shunt)
	}
	if maxCurrent <= 0 {
		return fmt.Errorf("%s: 'max_current' must be > 0, got: %g", prefix, maxCurrent)
	}
	if rEq < 0 {
		return fmt.Errorf("%s: 'r_eq' must be >= 0, got: %g", prefix, rEq)
	}
	if ratio <= 0 {
		return fmt.Errorf("%s: 'ratio' must be > 0, got: %g", prefix, ratio)
	}
	return nil
}

func validateMeter(m *MeterConfig) error {
	switch m.Driver {
	case DriverPZEM:
		if m.Port == "" {
			return fmt.Errorf("meter.port is required for driver '%s'", m.Driver)
		}
		if m.BaudRate <= 0 {
			return fmt.Errorf("meter.baud_rate must be > 0, got: %d", m.BaudRate)
		}
		if m.Address == 0 || m.Address > 0xF8 {
			return fmt.Errorf("meter.address must be within 0x01-0xF8, got: %#x", m.Address)
		}
		if m.Timeout <= 0 {
			return fmt.Errorf("meter.timeout must be > 0, got: %s", m.Timeout)
		}
	case DriverSimulated, DriverNone:
	default:
		return fmt.Errorf("meter.driver must be '%s', '%s' or '%s', got: %s", DriverPZEM, DriverSimulated, DriverNone, m.Driver)
	}
	return nil
}

func validateLog(l *LogConfig) error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got: %s", l.Level)
	}
	switch l.Format {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("log.format must be text, json or auto, got: %s", l.Format)
	}
	if l.File.Path != "" && l.File.MaxSizeMB <= 0 {
		return fmt.Errorf("log.file.max_size_mb must be > 0, got: %d", l.File.MaxSizeMB)
	}
	return nil
}

// validateDefinitions validates the definitions section
func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return nil
	}

	seenIDs := make(map[string]bool)
	for i, def := range definitions.Channels {
		prefix := fmt.Sprintf("definitions.channels[%d]", i)
		if def.ID == "" {
			return fmt.Errorf("%s: 'id' is required", prefix)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("%s: duplicate ID '%s'", prefix, def.ID)
		}
		seenIDs[def.ID] = true

		if def.Name == "" {
			return fmt.Errorf("%s: 'name' is required", prefix)
		}
		ratio := def.Ratio
		if ratio == 0 {
			ratio = 1
		}
		if err := validateCalibration(def.ShuntOhms, def.MaxCurrent, def.REq, ratio, prefix); err != nil {
			return err
		}
	}
	return nil
}

// validateChannelReferences validates channel references in a profile
func validateChannelReferences(channels []ChannelReference, definitions *DefinitionsConfig) error {
	for i, ref := range channels {
		prefix := fmt.Sprintf("sensors.channels[%d]", i)

		if ref.Ref == "" {
			return fmt.Errorf("%s: 'ref' is required", prefix)
		}
		if findDefinition(definitions, ref.Ref) == nil {
			return fmt.Errorf("%s: references undefined channel definition '%s'", prefix, ref.Ref)
		}
		if ref.REq != nil && *ref.REq < 0 {
			return fmt.Errorf("%s: r_eq override must be >= 0, got %g", prefix, *ref.REq)
		}
		if ref.Ratio != nil && *ref.Ratio <= 0 {
			return fmt.Errorf("%s: ratio override must be > 0, got %g", prefix, *ref.Ratio)
		}
	}
	return nil
}
