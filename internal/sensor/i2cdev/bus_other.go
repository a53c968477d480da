//go:build !linux

package i2cdev

import (
	"errors"
	"runtime"
)

// Bus is unavailable outside Linux.
type Bus struct{}

func Open(path string) (*Bus, error) {
	return nil, errors.New("i2c-dev is not supported on " + runtime.GOOS)
}

func (b *Bus) Tx(addr uint16, w, r []byte) error {
	return errors.New("i2c-dev is not supported on " + runtime.GOOS)
}

func (b *Bus) Close() error { return nil }
