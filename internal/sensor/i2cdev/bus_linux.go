//go:build linux

// Package i2cdev exposes a Linux /dev/i2c-N adapter with the Tx shape the
// register drivers expect.
package i2cdev

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ioctl request selecting the target address of subsequent read/write calls
const i2cSlave = 0x0703

// Bus is an open i2c-dev adapter.
type Bus struct {
	mu   sync.Mutex
	fd   int
	path string
	addr uint16
	set  bool
}

// Open opens the adapter at path, e.g. /dev/i2c-1.
func Open(path string) (*Bus, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c bus %s: %w", path, err)
	}
	return &Bus{fd: fd, path: path}, nil
}

// Tx writes w then reads len(r) bytes from the device at addr.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fd < 0 {
		return fmt.Errorf("i2c bus %s: closed", b.path)
	}
	if !b.set || b.addr != addr {
		if err := unix.IoctlSetInt(b.fd, i2cSlave, int(addr)); err != nil {
			return fmt.Errorf("i2c bus %s: select %#x: %w", b.path, addr, err)
		}
		b.addr, b.set = addr, true
	}
	if len(w) > 0 {
		if n, err := unix.Write(b.fd, w); err != nil {
			return fmt.Errorf("i2c %#x: write: %w", addr, err)
		} else if n != len(w) {
			return fmt.Errorf("i2c %#x: short write %d/%d", addr, n, len(w))
		}
	}
	if len(r) > 0 {
		if n, err := unix.Read(b.fd, r); err != nil {
			return fmt.Errorf("i2c %#x: read: %w", addr, err)
		} else if n != len(r) {
			return fmt.Errorf("i2c %#x: short read %d/%d", addr, n, len(r))
		}
	}
	return nil
}

// Close releases the adapter.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}
