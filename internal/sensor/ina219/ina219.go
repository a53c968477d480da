// Package ina219 is a minimal driver for the INA219 high-side current and
// bus voltage monitor.
//
// • I2C, 16-bit big-endian registers (MSB first).
// • Default 7-bit address 0x40, A0/A1 straps select 0x40-0x4F.
// • Bus voltage LSB 4 mV (bits 15:3), shunt voltage LSB 10 µV.
// • Current and power use the programmed calibration value.
package ina219

import (
	"errors"
	"fmt"
	"math"

	"tinygo.org/x/drivers"

	"github.com/manudelosrios02/datalogger/internal/record"
)

const AddressDefault = 0x40

const (
	regConfig      = 0x00
	regShunt       = 0x01
	regBus         = 0x02
	regPower       = 0x03
	regCurrent     = 0x04
	regCalibration = 0x05
)

// 32 V range, ±320 mV shunt range, 12-bit conversions, continuous mode.
const configDefault = 0x399F

// bus register flags
const (
	busOverflow = 1 << 0
)

var ErrOverflow = errors.New("ina219: math overflow, current exceeds calibrated range")

type Config struct {
	Address    uint16
	ShuntOhms  float64
	MaxCurrent float64 // expected full-scale current, A
}

type Device struct {
	i2c  drivers.I2C
	addr uint16

	cal        uint16
	currentLSB float64 // A per bit
	powerLSB   float64 // W per bit

	w [3]byte
	r [2]byte
}

func New(i2c drivers.I2C, cfg Config) *Device {
	addr := cfg.Address
	if addr == 0 {
		addr = AddressDefault
	}
	d := &Device{i2c: i2c, addr: addr}
	d.calibrate(cfg.ShuntOhms, cfg.MaxCurrent)
	return d
}

// calibrate derives the calibration register from the shunt and expected
// maximum current (datasheet equations 1-3).
func (d *Device) calibrate(shuntOhms, maxCurrent float64) {
	if shuntOhms <= 0 {
		shuntOhms = 0.1
	}
	if maxCurrent <= 0 {
		maxCurrent = 3.2
	}
	d.currentLSB = maxCurrent / 32768
	cal := math.Trunc(0.04096 / (d.currentLSB * shuntOhms))
	if cal > 0xFFFE {
		cal = 0xFFFE
		d.currentLSB = 0.04096 / (cal * shuntOhms)
	}
	d.cal = uint16(cal) &^ 1
	d.powerLSB = 20 * d.currentLSB
}

// Configure writes the configuration and calibration registers.
func (d *Device) Configure() error {
	if err := d.writeWord(regConfig, configDefault); err != nil {
		return fmt.Errorf("ina219 %#x: write config: %w", d.addr, err)
	}
	if err := d.writeWord(regCalibration, d.cal); err != nil {
		return fmt.Errorf("ina219 %#x: write calibration: %w", d.addr, err)
	}
	return nil
}

// Calibration returns the value programmed into the calibration register.
func (d *Device) Calibration() uint16 { return d.cal }

// BusVoltage returns the bus voltage in V.
func (d *Device) BusVoltage() (float64, error) {
	v, err := d.readWord(regBus)
	if err != nil {
		return 0, err
	}
	if v&busOverflow != 0 {
		return float64(v>>3) * 0.004, ErrOverflow
	}
	return float64(v>>3) * 0.004, nil
}

// ShuntVoltage returns the shunt voltage in mV.
func (d *Device) ShuntVoltage() (float64, error) {
	v, err := d.readS16(regShunt)
	return float64(v) * 0.01, err
}

// Current returns the current in mA.
func (d *Device) Current() (float64, error) {
	v, err := d.readS16(regCurrent)
	return float64(v) * d.currentLSB * 1000, err
}

// Power returns the power in mW.
func (d *Device) Power() (float64, error) {
	v, err := d.readWord(regPower)
	return float64(v) * d.powerLSB * 1000, err
}

// Read takes one full reading. The calibration register is rewritten first
// since the part clears it on a brown-out reset.
func (d *Device) Read() (record.Channel, error) {
	var ch record.Channel
	if err := d.writeWord(regCalibration, d.cal); err != nil {
		return ch, fmt.Errorf("ina219 %#x: write calibration: %w", d.addr, err)
	}

	var err error
	if ch.BusVoltage, err = d.BusVoltage(); err != nil && !errors.Is(err, ErrOverflow) {
		return ch, fmt.Errorf("ina219 %#x: bus voltage: %w", d.addr, err)
	}
	overflow := err
	if ch.ShuntVoltage, err = d.ShuntVoltage(); err != nil {
		return ch, fmt.Errorf("ina219 %#x: shunt voltage: %w", d.addr, err)
	}
	if ch.Current, err = d.Current(); err != nil {
		return ch, fmt.Errorf("ina219 %#x: current: %w", d.addr, err)
	}
	if ch.Power, err = d.Power(); err != nil {
		return ch, fmt.Errorf("ina219 %#x: power: %w", d.addr, err)
	}
	return ch, overflow
}

func (d *Device) readWord(reg byte) (uint16, error) {
	d.w[0] = reg
	if err := d.i2c.Tx(d.addr, d.w[:1], d.r[:2]); err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<8 | uint16(d.r[1]), nil
}

func (d *Device) readS16(reg byte) (int16, error) {
	u, err := d.readWord(reg)
	return int16(u), err
}

func (d *Device) writeWord(reg byte, val uint16) error {
	d.w[0] = reg
	d.w[1] = byte(val >> 8) // high
	d.w[2] = byte(val)      // low
	return d.i2c.Tx(d.addr, d.w[:3], nil)
}
