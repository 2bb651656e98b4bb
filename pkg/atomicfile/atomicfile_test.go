package atomicfile_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqcollect/pkg/atomicfile"
)

func TestWriteBytes_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")

	require.NoError(t, atomicfile.WriteBytes(path, []byte("a,b\n1,2\n"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(got))
}

func TestWriteBytes_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("old content that is longer"), 0o644))

	require.NoError(t, atomicfile.WriteBytes(path, []byte("new"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestWriteFile_FailureKeepsOriginalAndRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	writeErr := errors.New("disk full")
	err := atomicfile.WriteFile(path, 0o644, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return writeErr
	})
	require.ErrorIs(t, err, writeErr)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be cleaned up")
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "data.csv")

	err := atomicfile.WriteBytes(path, []byte("x"), 0o644)
	assert.Error(t, err)
	assert.NoFileExists(t, path)
}
