package storage

import (
	"errors"
	"io"
	"testing"

	"github.com/manudelosrios02/datalogger/internal/errcode"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, s *FS, name, data string) {
	t.Helper()
	a, err := s.Append(name)
	require.NoError(t, err)
	_, err = io.WriteString(a, data)
	require.NoError(t, err)
	require.NoError(t, a.Sync())
	require.NoError(t, a.Close())
}

func TestAppendCreatesAndAppends(t *testing.T) {
	s := New(afero.NewMemMapFs())
	write(t, s, "LOG.CSV", "a\n")
	write(t, s, "LOG.CSV", "b\n")

	r, err := s.Open("LOG.CSV")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))
}

func TestAppendRejectsPaths(t *testing.T) {
	s := New(afero.NewMemMapFs())
	_, err := s.Append("../x.CSV")
	assert.True(t, errors.Is(err, errcode.InvalidName))
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	s := New(afero.NewMemMapFs())
	write(t, s, "RUN_1.CSV", "x")

	got, err := s.Resolve("run_1.csv")
	require.NoError(t, err)
	assert.Equal(t, "RUN_1.CSV", got)

	_, err = s.Resolve("missing.csv")
	assert.True(t, errors.Is(err, errcode.NotFound))
}

func TestListAndRemove(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.Mkdir("SUBDIR", 0755))
	s := New(fsys)
	write(t, s, "B.CSV", "bb")
	write(t, s, "A.CSV", "a")

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "A.CSV", entries[0].Name)
	assert.Equal(t, int64(2), entries[1].Size)

	require.NoError(t, s.Remove("a.csv"))
	entries, err = s.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "B.CSV", entries[0].Name)

	err = s.Remove("A.CSV")
	assert.True(t, errors.Is(err, errcode.NotFound))
}

func TestNewDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDir(dir)
	require.NoError(t, err)
	write(t, s, "DISK.CSV", "1")

	ok, err := afero.Exists(afero.NewOsFs(), dir+"/DISK.CSV")
	require.NoError(t, err)
	assert.True(t, ok)
}
