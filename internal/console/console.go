// Package console is the local text control surface: an output writer that
// mirrors everything into a bounded Log, and line sources feeding the command
// router.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.bug.st/serial"
)

// Console writes to the operator's terminal and mirrors every byte into Log.
type Console struct {
	out io.Writer
	log *Log
}

// New returns a console writing to out and mirroring into log.
func New(out io.Writer, log *Log) *Console {
	if out == nil {
		out = io.Discard
	}
	return &Console{out: out, log: log}
}

func (c *Console) Write(p []byte) (int, error) {
	c.log.Write(p)
	if _, err := c.out.Write(p); err != nil {
		slog.Debug("Console write failed", "error", err)
	}
	return len(p), nil
}

// Printf writes a formatted message.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c, format, args...)
}

// Println writes its arguments followed by a newline.
func (c *Console) Println(args ...any) {
	fmt.Fprintln(c, args...)
}

// Log returns the mirrored output buffer.
func (c *Console) Log() *Log {
	return c.log
}

// ReadLines scans r on its own goroutine and delivers complete lines, with
// trailing CR/LF removed, until r is exhausted or ctx is done. Partial lines
// stay buffered in the scanner. The channel is closed when reading stops.
func ReadLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimRight(scanner.Text(), "\r"):
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("Console input stopped", "error", err)
		}
	}()
	return lines
}

// SerialOptions configures a serial console.
type SerialOptions struct {
	Device   string
	BaudRate int
}

// OpenSerial opens a serial port to be used as both console input and output.
func OpenSerial(opts SerialOptions) (serial.Port, error) {
	baud := opts.BaudRate
	if baud <= 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(opts.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial console %s: %w", opts.Device, err)
	}
	return port, nil
}
