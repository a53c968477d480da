// Package session owns the single recording session and its output file.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manudelosrios02/datalogger/internal/errcode"
	"github.com/manudelosrios02/datalogger/internal/filename"
	"github.com/manudelosrios02/datalogger/internal/record"
	"github.com/manudelosrios02/datalogger/internal/storage"
)

// Status represents the current state of the session manager
type Status string

const (
	StatusIdle   Status = "IDLE"
	StatusActive Status = "ACTIVE"
)

// Info describes the active recording session.
type Info struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Filename  string    `json:"filename"`
	StartTime time.Time `json:"start_time"`
	Samples   uint64    `json:"samples"`
}

// Manager owns at most one active session. It is not safe for concurrent use;
// the coordinator loop is its only caller.
type Manager struct {
	store storage.Store
	now   func() time.Time

	status Status
	info   Info
	out    storage.Appender
}

// NewManager creates an idle manager writing to store.
func NewManager(store storage.Store) *Manager {
	return &Manager{
		store:  store,
		now:    time.Now,
		status: StatusIdle,
	}
}

// Start sanitizes label, creates or appends to the resulting file and writes
// the CSV header. Only one session may be active at a time.
func (m *Manager) Start(label string) error {
	if strings.TrimSpace(label) == "" {
		return errcode.New(errcode.InvalidName, "start", "label is required")
	}
	name, err := filename.Sanitize(label)
	if err != nil {
		return err
	}

	if m.status == StatusActive {
		return errcode.New(errcode.AlreadyActive, "start", m.info.Filename)
	}

	out, err := m.store.Append(name)
	if err != nil {
		return errcode.Wrap(err, errcode.StorageUnavailable, "start")
	}
	if _, err := fmt.Fprintln(out, record.Header); err != nil {
		out.Close()
		return errcode.Wrap(err, errcode.StorageUnavailable, "start")
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return errcode.Wrap(err, errcode.StorageUnavailable, "start")
	}

	m.out = out
	m.info = Info{
		ID:        uuid.NewString(),
		Label:     label,
		Filename:  name,
		StartTime: m.now(),
	}
	m.status = StatusActive

	slog.Info("Recording session started", "session_id", m.info.ID, "file", name, "label", label)
	return nil
}

// Stop commits buffered bytes, releases the output file and returns to idle.
// The manager is idle afterwards even when the flush or close fails.
func (m *Manager) Stop() error {
	if m.status != StatusActive {
		return errcode.New(errcode.NotActive, "stop", "no session is running")
	}

	info := m.info
	syncErr := m.out.Sync()
	closeErr := m.out.Close()

	m.out = nil
	m.info = Info{}
	m.status = StatusIdle

	slog.Info("Recording session stopped", "session_id", info.ID, "file", info.Filename, "samples", info.Samples)

	if syncErr != nil {
		return errcode.Wrap(syncErr, errcode.WriteFailure, "stop")
	}
	if closeErr != nil {
		return errcode.Wrap(closeErr, errcode.WriteFailure, "stop")
	}
	return nil
}

// Append writes one data line. The sample counter only advances when the
// write and flush both succeed; a failure leaves the session running.
func (m *Manager) Append(s record.Sample) error {
	if m.status != StatusActive {
		return errcode.New(errcode.NotActive, "append", "no session is running")
	}
	if _, err := fmt.Fprintln(m.out, record.Format(s)); err != nil {
		return errcode.Wrap(err, errcode.WriteFailure, "append")
	}
	if err := m.out.Sync(); err != nil {
		return errcode.Wrap(err, errcode.WriteFailure, "append")
	}
	m.info.Samples++
	return nil
}

// IsBusy reports whether name is the file currently open for writing.
func (m *Manager) IsBusy(name string) bool {
	return m.status == StatusActive && filename.Equal(name, m.info.Filename)
}

// Active reports whether a session is running.
func (m *Manager) Active() bool {
	return m.status == StatusActive
}

// Samples returns the number of samples written in the current session.
func (m *Manager) Samples() uint64 {
	return m.info.Samples
}

// Status returns the current state and, when active, a copy of the session info.
func (m *Manager) Status() (Status, *Info) {
	if m.status != StatusActive {
		return m.status, nil
	}
	info := m.info
	return m.status, &info
}
