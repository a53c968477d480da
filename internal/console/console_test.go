package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogTruncatesFromFront(t *testing.T) {
	l := NewLog(16)
	l.Write([]byte("line one\n"))
	l.Write([]byte("line two\n"))
	assert.Equal(t, "line two\n", l.String())

	l.Write([]byte("three\n"))
	assert.Equal(t, "line two\nthree\n", l.String())

	l.Write([]byte("four\n"))
	assert.LessOrEqual(t, l.Len(), 16)
	assert.Equal(t, "three\nfour\n", l.String())
}

func TestLogKeepsTailOfLongLine(t *testing.T) {
	l := NewLog(4)
	l.Write([]byte("abcdefgh"))
	assert.Equal(t, "efgh", l.String())
}

func TestLogUnderCapacity(t *testing.T) {
	l := NewLog(0)
	l.Write([]byte("hello\n"))
	assert.Equal(t, "hello\n", l.String())
}

func TestConsoleMirrorsOutput(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, NewLog(1024))
	c.Printf("Session %s started\n", "LOG.CSV")
	c.Println("ok")

	assert.Equal(t, "Session LOG.CSV started\nok\n", out.String())
	assert.Equal(t, out.String(), c.Log().String())
}

func TestReadLines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines := ReadLines(ctx, strings.NewReader("a\r\nback\n\npartial"))
	var got []string
	timeout := time.After(time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				assert.Equal(t, []string{"a", "back", "", "partial"}, got)
				return
			}
			got = append(got, line)
		case <-timeout:
			require.FailNow(t, "ReadLines did not finish")
		}
	}
}
