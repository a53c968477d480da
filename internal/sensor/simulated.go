package sensor

import (
	"math"
	"math/rand"
	"time"

	"github.com/manudelosrios02/datalogger/internal/record"
)

// SimulatedChannel produces plausible DC readings for development hosts: a
// bus voltage around Nominal with a slowly swinging load current.
type SimulatedChannel struct {
	Nominal   float64 // V
	ShuntOhms float64
	Load      float64 // peak current, mA

	rng   *rand.Rand
	start time.Time
	now   func() time.Time
}

// NewSimulatedChannel seeds the noise source with seed so runs are repeatable.
func NewSimulatedChannel(nominal, shuntOhms, load float64, seed int64) *SimulatedChannel {
	return &SimulatedChannel{
		Nominal:   nominal,
		ShuntOhms: shuntOhms,
		Load:      load,
		rng:       rand.New(rand.NewSource(seed)),
		start:     time.Now(),
		now:       time.Now,
	}
}

func (s *SimulatedChannel) Read() (record.Channel, error) {
	t := s.now().Sub(s.start).Seconds()
	current := s.Load * (0.6 + 0.4*math.Sin(2*math.Pi*t/60)) * (1 + 0.01*s.rng.NormFloat64())
	shunt := current / 1000 * s.ShuntOhms * 1000 // mV
	bus := s.Nominal*(1+0.002*s.rng.NormFloat64()) - current/1000*0.05
	return record.Channel{
		BusVoltage:   bus,
		ShuntVoltage: shunt,
		Current:      current,
		Power:        bus * current,
	}, nil
}

// SimulatedMeter emulates a mains meter whose energy counter integrates the
// simulated power between reads.
type SimulatedMeter struct {
	rng    *rand.Rand
	now    func() time.Time
	last   time.Time
	energy float64 // Wh
}

func NewSimulatedMeter(seed int64) *SimulatedMeter {
	return &SimulatedMeter{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

func (m *SimulatedMeter) ReadAll() (record.Meter, error) {
	now := m.now()
	voltage := 230 + 2*m.rng.NormFloat64()
	current := 1.5 + 0.2*m.rng.NormFloat64()
	if current < 0 {
		current = 0
	}
	pf := 0.95 + 0.02*m.rng.NormFloat64()
	pf = math.Max(0, math.Min(1, pf))
	power := voltage * current * pf

	if !m.last.IsZero() {
		m.energy += power * now.Sub(m.last).Hours()
	}
	m.last = now

	return record.Meter{
		Voltage:     voltage,
		Current:     current,
		Power:       power,
		Energy:      math.Floor(m.energy),
		Frequency:   50 + 0.05*m.rng.NormFloat64(),
		PowerFactor: pf,
	}, nil
}
