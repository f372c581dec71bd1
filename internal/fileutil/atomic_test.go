package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWriter = errors.New("writer failed")

func TestWriteAtomic_Replaces(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "main.wallet")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644)) //nolint:gosec // G306: test file
	require.NoError(t, WriteAtomic(target, []byte("new"), 0o600))

	data, err := os.ReadFile(target) //nolint:gosec // G304: test path
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(target)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestWriteAtomicFunc_ErrorKeepsOriginal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o600))

	err := WriteAtomicFunc(target, 0o600, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errWriter
	})
	require.ErrorIs(t, err, errWriter)

	data, err := os.ReadFile(target) //nolint:gosec // G304: test path
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteAtomic_MissingDir(t *testing.T) {
	t.Parallel()
	err := WriteAtomic(filepath.Join(t.TempDir(), "nope", "file"), []byte("x"), 0o600)
	require.Error(t, err)
}

func TestWriteAtomic_EmptyPath(t *testing.T) {
	t.Parallel()
	require.ErrorIs(t, WriteAtomic("", []byte("x"), 0o600), ErrEmptyPath)
	require.ErrorIs(t, EnsurePrivateDir(""), ErrEmptyPath)
}

func TestEnsurePrivateDir(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	base := t.TempDir()
	fresh := filepath.Join(base, "a", "b")
	require.NoError(t, EnsurePrivateDir(fresh))
	info, err := os.Stat(fresh)
	require.NoError(t, err)
	assert.Equal(t, PrivateDirPerm, info.Mode().Perm())

	loose := filepath.Join(base, "loose")
	require.NoError(t, os.Mkdir(loose, 0o755)) //nolint:gosec // G301: test setup
	require.NoError(t, EnsurePrivateDir(loose))
	info, err = os.Stat(loose)
	require.NoError(t, err)
	assert.Equal(t, PrivateDirPerm, info.Mode().Perm())

	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	require.Error(t, EnsurePrivateDir(file))
}
