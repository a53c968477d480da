// Package record defines the measurement tuple captured every sampling period
// and its CSV renderings.
package record

import (
	"strconv"
	"strings"
)

// Header is the first line of every recording file.
const Header = "t_s,VBUS1,VSHUNT1,I1,P1,VBUS2,VSHUNT2,I2,P2,VPZ,IPZ,PPZ,EPZ,FPZ,PF_PZ"

// Fields is the number of comma-separated values in a data line.
const Fields = 15

// Columns holds the header names, t_s first.
var Columns = strings.Split(Header, ",")

// Unavailable is written for every meter field when the meter read fails.
const Unavailable = -1

// Channel is one current/voltage sensor reading. Units: V, mV, mA, mW.
type Channel struct {
	BusVoltage   float64 `json:"bus_voltage"`
	ShuntVoltage float64 `json:"shunt_voltage"`
	Current      float64 `json:"current"`
	Power        float64 `json:"power"`
}

// Meter is one energy-meter reading. Units: V, A, W, Wh, Hz, ratio.
type Meter struct {
	Voltage     float64 `json:"voltage"`
	Current     float64 `json:"current"`
	Power       float64 `json:"power"`
	Energy      float64 `json:"energy"`
	Frequency   float64 `json:"frequency"`
	PowerFactor float64 `json:"power_factor"`
}

// MeterUnavailable is the reading substituted for a failed meter read.
func MeterUnavailable() Meter {
	return Meter{Unavailable, Unavailable, Unavailable, Unavailable, Unavailable, Unavailable}
}

// Sample is an immutable snapshot taken once per sampling period.
type Sample struct {
	Elapsed uint64 // seconds since the session started
	Ch1     Channel
	Ch2     Channel
	Meter   Meter
}

// Values returns the 14 measurements in header order.
func (s Sample) Values() [14]float64 {
	return [14]float64{
		s.Ch1.BusVoltage, s.Ch1.ShuntVoltage, s.Ch1.Current, s.Ch1.Power,
		s.Ch2.BusVoltage, s.Ch2.ShuntVoltage, s.Ch2.Current, s.Ch2.Power,
		s.Meter.Voltage, s.Meter.Current, s.Meter.Power,
		s.Meter.Energy, s.Meter.Frequency, s.Meter.PowerFactor,
	}
}

// Decimal places per measurement, header order.
var (
	storagePrecision = [14]int{4, 6, 6, 4, 4, 6, 6, 4, 3, 3, 3, 3, 2, 3}
	livePrecision    = [14]int{3, 3, 3, 2, 3, 3, 3, 2, 1, 3, 1, 3, 1, 2}
)

// Format renders s as a full-precision data line without the trailing newline.
func Format(s Sample) string {
	return render(s, &storagePrecision)
}

// FormatLive renders s at the reduced precision used for the live preview.
func FormatLive(s Sample) string {
	return render(s, &livePrecision)
}

func render(s Sample, prec *[14]int) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(strconv.FormatUint(s.Elapsed, 10))
	for i, v := range s.Values() {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v, 'f', prec[i], 64))
	}
	return b.String()
}
