package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/manudelosrios02/datalogger/internal/session"
	"github.com/manudelosrios02/datalogger/internal/storage"
)

// ErrStopped is returned once the coordinator loop has exited.
var ErrStopped = errors.New("coordinator stopped")

// Service is the control API the HTTP front-end drives. Every call is
// executed on the coordinator loop, one at a time.
type Service interface {
	// Recording operations
	Start(ctx context.Context, label string) error
	Stop(ctx context.Context) error
	Delete(ctx context.Context, name string) error

	// Information operations
	Snapshot(ctx context.Context) (Snapshot, error)
	ConsoleLog(ctx context.Context) (string, error)
	Live(ctx context.Context) (string, error)

	// Open resolves name and opens it for reading. The caller closes it.
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
}

// Snapshot is everything the status page shows, taken in one loop turn.
type Snapshot struct {
	Mode       string          `json:"mode"`
	Status     session.Status  `json:"status"`
	Session    *session.Info   `json:"session,omitempty"`
	Live       string          `json:"live"`
	LiveAt     time.Time       `json:"live_at"`
	Period     time.Duration   `json:"period"`
	Files      []storage.Entry `json:"files"`
	StorageErr string          `json:"storage_error,omitempty"`
	Failing    []string        `json:"failing,omitempty"` // devices whose last read failed
}
