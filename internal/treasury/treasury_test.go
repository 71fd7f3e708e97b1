package treasury

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treasuryhq/treasury/internal/hasher"
	"github.com/treasuryhq/treasury/internal/idgen"
	"github.com/treasuryhq/treasury/internal/metastore"
	"github.com/treasuryhq/treasury/uri"
)

func TestOpenWithoutConfigUsesDefaults(t *testing.T) {
	base := t.TempDir()
	tr, err := Open(base)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, defaultArtifactsDir), tr.paths.artifacts)
	require.Equal(t, filepath.Join(base, defaultExternalDir), tr.paths.external)
}

func TestOpenHonorsCustomConfig(t *testing.T) {
	base := t.TempDir()
	toml := "artifacts = \"store/art\"\nexternal = \"store/ext\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(base, configFileName), []byte(toml), 0o644))

	tr, err := Open(base)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "store/art"), tr.paths.artifacts)
	require.Equal(t, filepath.Join(base, "store/ext"), tr.paths.external)
}

func TestOpenSkipsMissingImporterLibraries(t *testing.T) {
	base := t.TempDir()
	toml := "importers = [\"/nonexistent/does-not-exist.so\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(base, configFileName), []byte(toml), 0o644))

	tr, err := Open(base)
	require.NoError(t, err, "a broken plugin must not fail the whole open")
	require.Empty(t, tr.libs)
}

func TestFetchPathScansAndFindsAsset(t *testing.T) {
	base := t.TempDir()
	tr, err := Open(base)
	require.NoError(t, err)

	src := filepath.Join(base, "photo.png")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0o644))
	sm, err := tr.meta.OpenForSource(uri.New("file://" + src))
	require.NoError(t, err)

	sum := hasher.Bytes([]byte("pixels"))
	asset := metastore.AssetMeta{ID: idgen.ID(7), SHA256: sum, PrefixLen: 8, SuffixIndex: -1}
	require.NoError(t, sm.AddAsset("png", asset))

	path, ok, err := tr.FetchPath(idgen.ID(7))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, filepath.Join(tr.paths.artifacts, sum.String()[:8]), path)

	_, ok, err = tr.FetchPath(idgen.ID(999))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFindAssetReadsExistingMeta(t *testing.T) {
	base := t.TempDir()
	tr, err := Open(base)
	require.NoError(t, err)

	src := filepath.Join(base, "doc.txt")
	require.NoError(t, os.WriteFile(src, []byte("words"), 0o644))
	sm, err := tr.meta.OpenForSource(uri.New("file://" + src))
	require.NoError(t, err)
	require.NoError(t, sm.AddAsset("txt", metastore.AssetMeta{ID: idgen.ID(1), SHA256: hasher.Bytes([]byte("words")), PrefixLen: 8, SuffixIndex: -1}))

	asset, ok, err := tr.FindAsset(uri.New("file://"+src), "txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, idgen.ID(1), asset.ID)

	_, ok, err = tr.FindAsset(uri.New("file://"+src), "missing-target")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegistryDedupesByCanonicalPath(t *testing.T) {
	base := t.TempDir()
	reg := NewRegistry()

	t1, err := reg.Open(base)
	require.NoError(t, err)
	t2, err := reg.Open(base)
	require.NoError(t, err)
	require.Same(t, t1, t2)

	rel := filepath.Join(base, ".", "")
	t3, err := reg.Open(rel)
	require.NoError(t, err)
	require.Same(t, t1, t3)
}
