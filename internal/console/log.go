package console

import "bytes"

// DefaultLogCapacity bounds the mirrored console output kept for /log.
const DefaultLogCapacity = 16 * 1024

// Log is an append-only text buffer truncated from the front once it exceeds
// its capacity. Truncation drops whole lines where possible. Log is not safe
// for concurrent use.
type Log struct {
	buf      []byte
	capacity int
}

// NewLog creates a log holding at most capacity bytes.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Log{capacity: capacity}
}

func (l *Log) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	if over := len(l.buf) - l.capacity; over > 0 {
		cut := over
		rest := l.buf[over:]
		if i := bytes.IndexByte(rest, '\n'); i >= 0 && i < len(rest)-1 {
			cut += i + 1
		}
		l.buf = append(l.buf[:0], l.buf[cut:]...)
	}
	return len(p), nil
}

// String returns the buffered text.
func (l *Log) String() string {
	return string(l.buf)
}

// Len returns the number of buffered bytes.
func (l *Log) Len() int {
	return len(l.buf)
}
