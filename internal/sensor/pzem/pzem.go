// Package pzem talks Modbus RTU to a PZEM-004T v3 AC energy meter.
//
// All ten input registers are fetched with a single function 0x04 request so
// the six values of one reading come from the same measurement cycle.
package pzem

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/manudelosrios02/datalogger/internal/record"
)

// AddressGeneral is answered by any single meter on the line.
const AddressGeneral = 0xF8

const (
	fnReadInput   = 0x04
	fnResetEnergy = 0x42
	exceptionFlag = 0x80

	registerCount = 10
	responseSize  = 3 + registerCount*2 + 2
)

var (
	ErrTimeout = errors.New("pzem: response timeout")
	ErrCRC     = errors.New("pzem: crc mismatch")
)

// ExceptionError is a Modbus exception reply.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("pzem: function %#x exception %#x", e.Function, e.Code)
}

type Config struct {
	Port     string
	BaudRate int
	Address  uint8
	Timeout  time.Duration
}

// Device is one meter on a serial line.
type Device struct {
	mu      sync.Mutex
	rw      io.ReadWriter
	closer  io.Closer
	addr    byte
	timeout time.Duration
	now     func() time.Time
}

// Open opens the serial port with the meter's fixed 8N1 framing.
func Open(cfg Config) (*Device, error) {
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = 9600
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open meter port %s: %w", cfg.Port, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	// Short reads let the response loop enforce the overall deadline
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Port, err)
	}
	d := New(port, cfg.Address, timeout)
	d.closer = port
	return d, nil
}

// New wraps an already open line. A read returning no bytes and no error is
// treated as an idle line.
func New(rw io.ReadWriter, addr uint8, timeout time.Duration) *Device {
	if addr == 0 {
		addr = AddressGeneral
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Device{rw: rw, addr: addr, timeout: timeout, now: time.Now}
}

// ReadAll reads voltage, current, power, energy, frequency and power factor.
func (d *Device) ReadAll() (record.Meter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	req := frame(d.addr, fnReadInput, 0x00, 0x00, 0x00, registerCount)
	if _, err := d.rw.Write(req); err != nil {
		return record.Meter{}, fmt.Errorf("pzem: write request: %w", err)
	}

	var buf [responseSize]byte
	deadline := d.now().Add(d.timeout)
	if err := d.readFull(buf[:3], deadline); err != nil {
		return record.Meter{}, err
	}
	if buf[1]&exceptionFlag != 0 {
		if err := d.readFull(buf[3:5], deadline); err != nil {
			return record.Meter{}, err
		}
		if !checkCRC(buf[:5]) {
			return record.Meter{}, ErrCRC
		}
		return record.Meter{}, &ExceptionError{Function: buf[1] &^ exceptionFlag, Code: buf[2]}
	}
	if buf[0] != d.addr && d.addr != AddressGeneral {
		return record.Meter{}, fmt.Errorf("pzem: reply from address %#x, want %#x", buf[0], d.addr)
	}
	if buf[1] != fnReadInput || buf[2] != registerCount*2 {
		return record.Meter{}, fmt.Errorf("pzem: unexpected reply header % x", buf[:3])
	}
	if err := d.readFull(buf[3:], deadline); err != nil {
		return record.Meter{}, err
	}
	if !checkCRC(buf[:]) {
		return record.Meter{}, ErrCRC
	}

	return decode(buf[3 : 3+registerCount*2]), nil
}

// ResetEnergy clears the meter's energy counter.
func (d *Device) ResetEnergy() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	req := appendCRC([]byte{d.addr, fnResetEnergy})
	if _, err := d.rw.Write(req); err != nil {
		return fmt.Errorf("pzem: write reset: %w", err)
	}

	var buf [5]byte
	deadline := d.now().Add(d.timeout)
	if err := d.readFull(buf[:4], deadline); err != nil {
		return err
	}
	if buf[1]&exceptionFlag != 0 {
		if err := d.readFull(buf[4:5], deadline); err != nil {
			return err
		}
		return &ExceptionError{Function: buf[1] &^ exceptionFlag, Code: buf[2]}
	}
	if !checkCRC(buf[:4]) {
		return ErrCRC
	}
	return nil
}

// Close closes the serial port if Open created it.
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func (d *Device) readFull(buf []byte, deadline time.Time) error {
	for got := 0; got < len(buf); {
		n, err := d.rw.Read(buf[got:])
		if err != nil {
			return fmt.Errorf("pzem: read: %w", err)
		}
		got += n
		if n == 0 && !d.now().Before(deadline) {
			return ErrTimeout
		}
	}
	return nil
}

// decode scales the ten input registers. 32-bit values are sent low word
// first.
func decode(p []byte) record.Meter {
	reg := func(i int) uint32 { return uint32(p[2*i])<<8 | uint32(p[2*i+1]) }
	reg32 := func(i int) uint32 { return reg(i) | reg(i+1)<<16 }

	return record.Meter{
		Voltage:     float64(reg(0)) / 10,
		Current:     float64(reg32(1)) / 1000,
		Power:       float64(reg32(3)) / 10,
		Energy:      float64(reg32(5)),
		Frequency:   float64(reg(7)) / 10,
		PowerFactor: float64(reg(8)) / 100,
	}
}

func frame(addr, fn byte, data ...byte) []byte {
	return appendCRC(append([]byte{addr, fn}, data...))
}

func appendCRC(p []byte) []byte {
	crc := crc16(p)
	return append(p, byte(crc), byte(crc>>8))
}

func checkCRC(p []byte) bool {
	if len(p) < 3 {
		return false
	}
	n := len(p) - 2
	crc := crc16(p[:n])
	return p[n] == byte(crc) && p[n+1] == byte(crc>>8)
}

// crc16 is the Modbus CRC (poly 0xA001 reflected, init 0xFFFF).
func crc16(p []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range p {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
