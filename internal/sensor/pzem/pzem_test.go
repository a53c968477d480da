package pzem

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/manudelosrios02/datalogger/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLine serves a canned reply in small chunks, like a slow UART.
type fakeLine struct {
	written bytes.Buffer
	reply   []byte
	chunk   int
}

func (l *fakeLine) Write(p []byte) (int, error) { return l.written.Write(p) }

func (l *fakeLine) Read(p []byte) (int, error) {
	n := len(l.reply)
	if l.chunk > 0 && n > l.chunk {
		n = l.chunk
	}
	n = copy(p, l.reply[:n])
	l.reply = l.reply[n:]
	return n, nil
}

func newDevice(line *fakeLine) *Device {
	d := New(line, AddressGeneral, time.Second)
	clock := time.Unix(0, 0)
	d.now = func() time.Time {
		clock = clock.Add(100 * time.Millisecond)
		return clock
	}
	return d
}

func reply(addr byte, regs [registerCount]uint16) []byte {
	p := []byte{addr, fnReadInput, registerCount * 2}
	for _, r := range regs {
		p = append(p, byte(r>>8), byte(r))
	}
	return appendCRC(p)
}

func TestCRC16(t *testing.T) {
	assert.Equal(t, uint16(0x4B37), crc16([]byte("123456789")))
	assert.Equal(t, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCD}, frame(0x01, 0x03, 0x00, 0x00, 0x00, 0x0A))
	assert.True(t, checkCRC(frame(0xF8, fnReadInput, 0, 0, 0, registerCount)))
	assert.False(t, checkCRC([]byte{0x01, 0x02}))
}

func TestReadAll(t *testing.T) {
	regs := [registerCount]uint16{
		2301,           // 230.1 V
		0x1F40, 0x0000, // 8.000 A
		0x6B6C, 0x0001, // 0x16B6C = 93036 → 9303.6 W
		0x86A0, 0x0001, // 100000 Wh
		500,            // 50.0 Hz
		98,             // 0.98
		0,
	}
	line := &fakeLine{reply: reply(AddressGeneral, regs), chunk: 7}
	d := newDevice(line)

	got, err := d.ReadAll()
	require.NoError(t, err)

	want := record.Meter{
		Voltage:     230.1,
		Current:     8,
		Power:       9303.6,
		Energy:      100000,
		Frequency:   50,
		PowerFactor: 0.98,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadAll mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, frame(AddressGeneral, fnReadInput, 0, 0, 0, registerCount), line.written.Bytes())
}

func TestReadAllBadCRC(t *testing.T) {
	p := reply(AddressGeneral, [registerCount]uint16{2300})
	p[len(p)-1] ^= 0xFF
	d := newDevice(&fakeLine{reply: p})

	_, err := d.ReadAll()
	assert.ErrorIs(t, err, ErrCRC)
}

func TestReadAllException(t *testing.T) {
	d := newDevice(&fakeLine{reply: appendCRC([]byte{AddressGeneral, fnReadInput | exceptionFlag, 0x02})})

	_, err := d.ReadAll()
	var exc *ExceptionError
	require.True(t, errors.As(err, &exc), "got %v", err)
	assert.Equal(t, byte(fnReadInput), exc.Function)
	assert.Equal(t, byte(0x02), exc.Code)
}

func TestReadAllTimeout(t *testing.T) {
	d := newDevice(&fakeLine{reply: []byte{AddressGeneral, fnReadInput}})
	_, err := d.ReadAll()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReadAllWrongHeader(t *testing.T) {
	p := appendCRC([]byte{AddressGeneral, fnReadInput, 0x04, 0, 0, 0, 0})
	d := newDevice(&fakeLine{reply: p})
	_, err := d.ReadAll()
	assert.ErrorContains(t, err, "unexpected reply header")
}

func TestResetEnergy(t *testing.T) {
	line := &fakeLine{reply: appendCRC([]byte{AddressGeneral, fnResetEnergy})}
	d := newDevice(line)
	require.NoError(t, d.ResetEnergy())
	assert.Equal(t, appendCRC([]byte{AddressGeneral, fnResetEnergy}), line.written.Bytes())
}
