package sensor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/manudelosrios02/datalogger/internal/config"
	"github.com/manudelosrios02/datalogger/internal/record"
	"github.com/manudelosrios02/datalogger/internal/sensor/i2cdev"
	"github.com/manudelosrios02/datalogger/internal/sensor/ina219"
	"github.com/manudelosrios02/datalogger/internal/sensor/pzem"
)

// DriverType names a hardware backend.
type DriverType string

const (
	DriverINA219    DriverType = config.DriverINA219
	DriverSimulated DriverType = config.DriverSimulated
	DriverPZEM      DriverType = config.DriverPZEM
	DriverNone      DriverType = config.DriverNone
)

// AvailableDrivers lists the channel and meter backends built into this binary.
func AvailableDrivers() (channels, meters []DriverType) {
	return []DriverType{DriverINA219, DriverSimulated},
		[]DriverType{DriverPZEM, DriverSimulated, DriverNone}
}

// Open builds the acquisition set described by cfg. Devices that fail to
// initialize are logged and kept: channels then serve their last known
// values and the meter reports the sentinel reading. Only an unusable
// configuration is an error. The returned closer releases buses and ports.
func Open(cfg *config.Config) (*Set, io.Closer, error) {
	if len(cfg.Sensors.Channels) != config.SensorChannels {
		return nil, nil, fmt.Errorf("expected %d sensor channels, got %d", config.SensorChannels, len(cfg.Sensors.Channels))
	}

	var closers multiCloser
	set := &Set{}

	switch DriverType(strings.ToLower(cfg.Sensors.Driver)) {
	case DriverINA219:
		bus, err := i2cdev.Open(cfg.Sensors.Bus)
		if err != nil {
			slog.Error("Sensor bus unavailable, channels will report last known values", "bus", cfg.Sensors.Bus, "error", err)
		} else {
			closers = append(closers, bus)
		}
		for i, ch := range cfg.Sensors.Channels {
			var reader Channel = unavailableChannel{name: ch.Name}
			if bus != nil {
				dev := ina219.New(bus, ina219.Config{
					Address:    ch.Address,
					ShuntOhms:  ch.ShuntOhms,
					MaxCurrent: ch.MaxCurrent,
				})
				if err := dev.Configure(); err != nil {
					slog.Error("Sensor initialization failed", "channel", ch.Name, "address", fmt.Sprintf("%#x", ch.Address), "error", err)
				}
				reader = &saturating{name: ch.Name, ch: dev}
			}
			set.Channels[i] = channel(ch, reader)
		}

	case DriverSimulated:
		for i, ch := range cfg.Sensors.Channels {
			sim := NewSimulatedChannel(12-float64(i)*7, ch.ShuntOhms, ch.MaxCurrent*1000/4, int64(i+1))
			set.Channels[i] = channel(ch, sim)
		}

	default:
		return nil, nil, fmt.Errorf("unknown sensor driver: %s", cfg.Sensors.Driver)
	}

	switch DriverType(strings.ToLower(cfg.Meter.Driver)) {
	case DriverPZEM:
		dev, err := pzem.Open(pzem.Config{
			Port:     cfg.Meter.Port,
			BaudRate: cfg.Meter.BaudRate,
			Address:  cfg.Meter.Address,
			Timeout:  cfg.Meter.Timeout,
		})
		if err != nil {
			slog.Error("Energy meter unavailable, samples will carry -1", "port", cfg.Meter.Port, "error", err)
			set.Meter = NoMeter{}
		} else {
			set.Meter = dev
			closers = append(closers, dev)
		}
	case DriverSimulated:
		set.Meter = NewSimulatedMeter(3)
	case DriverNone:
		set.Meter = NoMeter{}
	default:
		closers.Close()
		return nil, nil, fmt.Errorf("unknown meter driver: %s", cfg.Meter.Driver)
	}

	slog.Debug("Acquisition set ready", "sensors", cfg.Sensors.Driver, "meter", cfg.Meter.Driver)
	return set, closers, nil
}

func channel(ch config.Channel, reader Channel) Channel {
	var cal Calibration
	if ch.REq != 0 || (ch.Ratio != 0 && ch.Ratio != 1) {
		cal = DropCorrection{REq: ch.REq, Ratio: ch.Ratio}
	}
	return NewLastKnown(ch.Name, WithCalibration(reader, cal))
}

// saturating passes an INA219 overflow reading through as a valid sample
// holding the saturated values. The overflow is logged once per episode.
type saturating struct {
	name      string
	ch        Channel
	saturated bool
}

func (s *saturating) Read() (record.Channel, error) {
	v, err := s.ch.Read()
	if errors.Is(err, ina219.ErrOverflow) {
		if !s.saturated {
			slog.Warn("Sensor out of range, recording saturated values", "channel", s.name, "error", err)
			s.saturated = true
		}
		return v, nil
	}
	if err == nil && s.saturated {
		slog.Info("Sensor back in range", "channel", s.name)
		s.saturated = false
	}
	return v, err
}

type unavailableChannel struct{ name string }

func (u unavailableChannel) Read() (record.Channel, error) {
	return record.Channel{}, fmt.Errorf("sensor %s: bus unavailable", u.name)
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
