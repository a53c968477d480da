// Package storage is the recording medium: a flat directory of CSV files.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/manudelosrios02/datalogger/internal/errcode"
	"github.com/manudelosrios02/datalogger/internal/filename"
	"github.com/spf13/afero"
)

// Appender is an exclusively owned, append-only output stream.
type Appender interface {
	io.Writer
	Sync() error
	Close() error
}

// Entry describes one stored file.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store is the storage collaborator used by the session and command layers.
type Store interface {
	Append(name string) (Appender, error)
	Open(name string) (io.ReadCloser, error)
	Remove(name string) error
	List() ([]Entry, error)
	// Resolve maps a requested name onto the stored entry using the medium's
	// case-insensitive matching. It fails with NotFound.
	Resolve(name string) (string, error)
}

// FS implements Store on top of an afero filesystem. Names are always
// relative to the filesystem root; subdirectories are not used.
type FS struct {
	fs afero.Fs
}

// New returns a Store backed by fsys.
func New(fsys afero.Fs) *FS {
	return &FS{fs: fsys}
}

// NewDir returns a Store rooted at dir on the host filesystem, creating the
// directory if needed.
func NewDir(dir string) (*FS, error) {
	base := afero.NewOsFs()
	if err := base.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return New(afero.NewBasePathFs(base, dir)), nil
}

// Append opens name for appending, creating it if it does not exist.
func (s *FS) Append(name string) (Appender, error) {
	if !filename.Valid(name) {
		return nil, errcode.New(errcode.InvalidName, "append", name)
	}
	f, err := s.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errcode.Wrap(err, errcode.StorageUnavailable, "append")
	}
	return f, nil
}

// Open opens a stored file for reading.
func (s *FS) Open(name string) (io.ReadCloser, error) {
	resolved, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(resolved)
	if err != nil {
		return nil, errcode.Wrap(err, errcode.NotFound, "open")
	}
	return f, nil
}

// Remove deletes a stored file.
func (s *FS) Remove(name string) error {
	resolved, err := s.Resolve(name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(resolved); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errcode.Wrap(err, errcode.NotFound, "remove")
		}
		return errcode.Wrap(err, errcode.StorageUnavailable, "remove")
	}
	return nil
}

// List returns the regular files in the root, sorted by name.
func (s *FS) List() ([]Entry, error) {
	infos, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return nil, errcode.Wrap(err, errcode.StorageUnavailable, "list")
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		entries = append(entries, Entry{
			Name:    info.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Resolve finds the stored entry matching name, ignoring case.
func (s *FS) Resolve(name string) (string, error) {
	if !filename.Valid(name) {
		return "", errcode.New(errcode.NotFound, "resolve", name)
	}
	if info, err := s.fs.Stat(name); err == nil && !info.IsDir() {
		return name, nil
	}

	entries, err := s.List()
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if filename.Equal(e.Name, name) {
			return e.Name, nil
		}
	}
	return "", errcode.New(errcode.NotFound, "resolve", name)
}
