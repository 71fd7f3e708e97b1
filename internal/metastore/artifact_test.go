package metastore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treasuryhq/treasury/internal/hasher"
)

func writeOutput(t *testing.T, dir string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, "scratch-"+t.Name())
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func TestPlaceArtifactFreshFile(t *testing.T) {
	scratch := t.TempDir()
	artifacts := filepath.Join(t.TempDir(), "artifacts")

	content := []byte("hello treasury")
	sum := hasher.Bytes(content)
	out := writeOutput(t, scratch, content)

	prefixLen, suffixIndex, path, err := PlaceArtifact(out, artifacts, sum)
	require.NoError(t, err)
	require.Equal(t, 8, prefixLen)
	require.Equal(t, -1, suffixIndex)
	require.Equal(t, filepath.Join(artifacts, sum.String()[:8]), path)

	_, err = os.Stat(out)
	require.True(t, os.IsNotExist(err), "output file should have been moved, not copied")

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, content, got)

	_, err = os.Stat(filepath.Join(artifacts, ".gitignore"))
	require.NoError(t, err)
}

func TestPlaceArtifactDedupesIdenticalContent(t *testing.T) {
	scratch := t.TempDir()
	artifacts := filepath.Join(t.TempDir(), "artifacts")

	content := []byte("duplicate me")
	sum := hasher.Bytes(content)

	out1 := writeOutput(t, scratch, content)
	p1, s1, path1, err := PlaceArtifact(out1, artifacts, sum)
	require.NoError(t, err)

	out2 := filepath.Join(scratch, "second-copy")
	require.NoError(t, os.WriteFile(out2, content, 0o644))
	p2, s2, path2, err := PlaceArtifact(out2, artifacts, sum)
	require.NoError(t, err)

	require.Equal(t, path1, path2)
	require.Equal(t, p1, p2)
	require.Equal(t, s1, s2)

	_, err = os.Stat(out2)
	require.True(t, os.IsNotExist(err), "duplicate output should have been removed")

	entries, err := os.ReadDir(artifacts)
	require.NoError(t, err)
	// Exactly one artifact plus the .gitignore sentinel.
	require.Len(t, entries, 2)
}

func TestPlaceArtifactDistinctContentGetsDistinctPaths(t *testing.T) {
	scratch := t.TempDir()
	artifacts := filepath.Join(t.TempDir(), "artifacts")

	c1 := []byte("alpha payload")
	c2 := []byte("bravo payload, different bytes entirely")
	sum1 := hasher.Bytes(c1)
	sum2 := hasher.Bytes(c2)
	require.NotEqual(t, sum1, sum2)

	out1 := writeOutput(t, scratch, c1)
	_, _, path1, err := PlaceArtifact(out1, artifacts, sum1)
	require.NoError(t, err)

	out2 := filepath.Join(scratch, "other")
	require.NoError(t, os.WriteFile(out2, c2, 0o644))
	_, _, path2, err := PlaceArtifact(out2, artifacts, sum2)
	require.NoError(t, err)

	require.NotEqual(t, path1, path2)
}

func TestArtifactPathMatchesPlacement(t *testing.T) {
	scratch := t.TempDir()
	artifacts := filepath.Join(t.TempDir(), "artifacts")

	content := []byte("path derivation check")
	sum := hasher.Bytes(content)
	out := writeOutput(t, scratch, content)

	prefixLen, suffixIndex, path, err := PlaceArtifact(out, artifacts, sum)
	require.NoError(t, err)
	require.Equal(t, ArtifactPath(artifacts, sum, prefixLen, suffixIndex), path)
}
