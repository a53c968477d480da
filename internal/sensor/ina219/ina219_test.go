package ina219

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus emulates the register file of one device.
type fakeBus struct {
	addr   uint16
	regs   map[byte]uint16
	writes map[byte][]uint16
	err    error
}

func newFakeBus(addr uint16) *fakeBus {
	return &fakeBus{addr: addr, regs: map[byte]uint16{}, writes: map[byte][]uint16{}}
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if b.err != nil {
		return b.err
	}
	if addr != b.addr {
		return errors.New("nack")
	}
	reg := w[0]
	if len(w) == 3 {
		v := uint16(w[1])<<8 | uint16(w[2])
		b.regs[reg] = v
		b.writes[reg] = append(b.writes[reg], v)
	}
	if len(r) == 2 {
		v := b.regs[reg]
		r[0] = byte(v >> 8)
		r[1] = byte(v)
	}
	return nil
}

func TestCalibration(t *testing.T) {
	d := New(newFakeBus(AddressDefault), Config{ShuntOhms: 0.1, MaxCurrent: 3.2})
	assert.Equal(t, uint16(4194), d.Calibration())

	d = New(newFakeBus(AddressDefault), Config{})
	assert.Equal(t, uint16(4194), d.Calibration(), "zero config uses the 0.1 Ω / 3.2 A defaults")
}

func TestConfigure(t *testing.T) {
	bus := newFakeBus(0x41)
	d := New(bus, Config{Address: 0x41, ShuntOhms: 0.1, MaxCurrent: 3.2})
	require.NoError(t, d.Configure())
	assert.Equal(t, uint16(configDefault), bus.regs[regConfig])
	assert.Equal(t, d.Calibration(), bus.regs[regCalibration])
}

func TestRead(t *testing.T) {
	bus := newFakeBus(AddressDefault)
	d := New(bus, Config{ShuntOhms: 0.1, MaxCurrent: 3.2})

	bus.regs[regBus] = 3000 << 3 // 12 V
	bus.regs[regShunt] = 0xFF06  // -250 → -2.5 mV
	bus.regs[regCurrent] = 256
	bus.regs[regPower] = 100

	ch, err := d.Read()
	require.NoError(t, err)
	assert.InDelta(t, 12.0, ch.BusVoltage, 1e-9)
	assert.InDelta(t, -2.5, ch.ShuntVoltage, 1e-9)
	assert.InDelta(t, 25.0, ch.Current, 1e-6)
	assert.InDelta(t, 195.3125, ch.Power, 1e-6)
	assert.Len(t, bus.writes[regCalibration], 1, "calibration rewritten before reading")
}

func TestReadOverflow(t *testing.T) {
	bus := newFakeBus(AddressDefault)
	d := New(bus, Config{})
	bus.regs[regBus] = 1000<<3 | busOverflow

	ch, err := d.Read()
	assert.ErrorIs(t, err, ErrOverflow)
	assert.InDelta(t, 4.0, ch.BusVoltage, 1e-9)
}

func TestReadBusError(t *testing.T) {
	d := New(newFakeBus(0x45), Config{})
	_, err := d.Read()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "0x40")
}
