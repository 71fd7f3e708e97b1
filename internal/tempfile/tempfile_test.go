package tempfile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathIsUniqueAndUnderDir(t *testing.T) {
	dir := t.TempDir()
	tmp, err := New(dir)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		p, err := tmp.Path()
		require.NoError(t, err)
		require.Len(t, filepathBase(p), 22)
		_, dup := seen[p]
		require.False(t, dup)
		seen[p] = struct{}{}
	}
}

func TestReleaseRemovesAllocatedFiles(t *testing.T) {
	dir := t.TempDir()
	tmp, err := New(dir)
	require.NoError(t, err)

	p, err := tmp.Path()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	tmp.Release()

	_, err = os.Stat(p)
	require.True(t, os.IsNotExist(err))
}

func TestReleaseSkipsMovedOutPaths(t *testing.T) {
	dir := t.TempDir()
	tmp, err := New(dir)
	require.NoError(t, err)

	p, err := tmp.Path()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	require.NoError(t, os.Remove(p)) // simulate a rename-away

	require.NotPanics(t, tmp.Release)
}

func filepathBase(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}
