package sensor

import "github.com/manudelosrios02/datalogger/internal/record"

// Calibration corrects a raw channel reading.
type Calibration interface {
	Apply(record.Channel) record.Channel
}

// DropCorrection removes the voltage lost across the wiring between the
// sensor and the measured load, then scales by Ratio:
//
//	V = (Vbus - I·REq) · Ratio
//
// Current is in mA and REq in ohms. A zero Ratio is treated as 1.
type DropCorrection struct {
	REq   float64
	Ratio float64
}

func (c DropCorrection) Apply(in record.Channel) record.Channel {
	ratio := c.Ratio
	if ratio == 0 {
		ratio = 1
	}
	out := in
	out.BusVoltage = (in.BusVoltage - in.Current/1000*c.REq) * ratio
	return out
}

// Calibrated applies cal to every successful reading of ch.
type Calibrated struct {
	ch  Channel
	cal Calibration
}

// WithCalibration wraps ch. A nil cal returns ch unchanged.
func WithCalibration(ch Channel, cal Calibration) Channel {
	if cal == nil {
		return ch
	}
	return &Calibrated{ch: ch, cal: cal}
}

func (c *Calibrated) Read() (record.Channel, error) {
	v, err := c.ch.Read()
	if err != nil {
		return v, err
	}
	return c.cal.Apply(v), nil
}
