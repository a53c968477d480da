// Package sensor adapts the measurement hardware to the sample shape the
// logger records: two current/voltage channels and one AC energy meter.
package sensor

import (
	"errors"
	"log/slog"

	"github.com/manudelosrios02/datalogger/internal/errcode"
	"github.com/manudelosrios02/datalogger/internal/record"
)

// Channel reads one current/voltage sensor.
type Channel interface {
	Read() (record.Channel, error)
}

// Meter reads every register of the energy meter in one transaction.
type Meter interface {
	ReadAll() (record.Meter, error)
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func() (record.Channel, error)

func (f ChannelFunc) Read() (record.Channel, error) { return f() }

// MeterFunc adapts a function to Meter.
type MeterFunc func() (record.Meter, error)

func (f MeterFunc) ReadAll() (record.Meter, error) { return f() }

// NoMeter reports every read as failed, so samples carry the sentinel values.
type NoMeter struct{}

func (NoMeter) ReadAll() (record.Meter, error) {
	return record.MeterUnavailable(), errcode.New(errcode.ReadFailure, "meter", "no meter configured")
}

// LastKnown keeps the most recent successful reading of a channel and serves
// it when the underlying sensor fails.
type LastKnown struct {
	name  string
	ch    Channel
	last  record.Channel
	fails int
}

// NewLastKnown wraps ch. name is used in logs.
func NewLastKnown(name string, ch Channel) *LastKnown {
	return &LastKnown{name: name, ch: ch}
}

// Read returns the fresh reading, or the last good one together with the
// read error.
func (l *LastKnown) Read() (record.Channel, error) {
	v, err := l.ch.Read()
	if err != nil {
		l.fails++
		if l.fails == 1 {
			slog.Warn("Sensor read failed, keeping last known values", "channel", l.name, "error", err)
		}
		return l.last, errcode.Wrap(err, errcode.ReadFailure, l.name)
	}
	if l.fails > 0 {
		slog.Info("Sensor read recovered", "channel", l.name, "failed_reads", l.fails)
		l.fails = 0
	}
	l.last = v
	return v, nil
}

// ReadError is one device's failure within an acquisition.
type ReadError struct {
	Device string
	Err    error
}

func (e *ReadError) Error() string { return e.Device + ": " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// ReadErrors lists the per-device failures contained in an Acquire error.
func ReadErrors(err error) []*ReadError {
	var out []*ReadError
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
		case *ReadError:
			out = append(out, e)
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}

// Set is the full acquisition front: both channels and the meter.
type Set struct {
	Channels [2]Channel
	Meter    Meter
}

// Devices names the members of a Set in sample order.
var Devices = [3]string{"ch1", "ch2", "meter"}

// Acquire reads every device once and stamps the sample with elapsed seconds.
// The sample is always usable: a failed meter read yields the sentinel
// reading and failed channels keep whatever their reader returned. The
// returned error joins one *ReadError per failed device.
func (s *Set) Acquire(elapsed uint64) (record.Sample, error) {
	sample := record.Sample{Elapsed: elapsed}
	var errs []error

	readings := [2]*record.Channel{&sample.Ch1, &sample.Ch2}
	for i, ch := range s.Channels {
		if ch == nil {
			continue
		}
		v, err := ch.Read()
		*readings[i] = v
		if err != nil {
			errs = append(errs, &ReadError{Device: Devices[i], Err: readFailure(err, Devices[i])})
		}
	}

	meter := s.Meter
	if meter == nil {
		meter = NoMeter{}
	}
	m, err := meter.ReadAll()
	if err != nil {
		m = record.MeterUnavailable()
		errs = append(errs, &ReadError{Device: Devices[2], Err: readFailure(err, Devices[2])})
	}
	sample.Meter = m

	return sample, errors.Join(errs...)
}

func readFailure(err error, device string) error {
	if errors.Is(err, errcode.ReadFailure) {
		return err
	}
	return errcode.Wrap(err, errcode.ReadFailure, device)
}
