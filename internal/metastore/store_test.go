package metastore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/treasuryhq/treasury/internal/idgen"
	"github.com/treasuryhq/treasury/uri"
)

// timeCmp compares time.Time by instant rather than by cmp's default
// unexported-field comparison, which panics on time.Time's internal
// representation.
var timeCmp = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	base := t.TempDir()
	return New(base, filepath.Join(base, "external")), base
}

func TestOpenForSourceLocalUsesTreasureSidecar(t *testing.T) {
	st, base := newTestStore(t)
	src := filepath.Join(base, "photo.png")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0o644))

	sm, err := st.OpenForSource(uri.New("file://" + src))
	require.NoError(t, err)

	resolvedSrc, err := filepath.EvalSymlinks(src)
	require.NoError(t, err)
	require.Equal(t, resolvedSrc+".treasure", sm.Path())

	_, err = os.Stat(sm.Path())
	require.NoError(t, err, "local meta file should be created eagerly")
}

func TestOpenForSourceLocalReopenIsCached(t *testing.T) {
	st, base := newTestStore(t)
	src := filepath.Join(base, "doc.txt")
	require.NoError(t, os.WriteFile(src, []byte("words"), 0o644))

	sm1, err := st.OpenForSource(uri.New("file://" + src))
	require.NoError(t, err)
	sm2, err := st.OpenForSource(uri.New("file://" + src))
	require.NoError(t, err)
	require.Same(t, sm1, sm2)
}

func TestAddAssetPersistsAcrossStores(t *testing.T) {
	st, base := newTestStore(t)
	src := filepath.Join(base, "book.epub")
	require.NoError(t, os.WriteFile(src, []byte("pages"), 0o644))

	sm, err := st.OpenForSource(uri.New("file://" + src))
	require.NoError(t, err)

	asset := AssetMeta{
		ID:          idgen.ID(0x0102030405060708),
		SHA256:      mustSum("pages"),
		PrefixLen:   8,
		SuffixIndex: -1,
		Recorded: []SourceRecord{
			{URL: "", ModTime: mustTime("2026-01-02T15:04:05Z")},
			{URL: "cover.jpg", ModTime: mustTime("2026-01-02T15:05:00Z")},
		},
		Dependencies: []idgen.ID{idgen.ID(1), idgen.ID(2)},
	}
	require.NoError(t, sm.AddAsset("cover", asset))

	got, ok := sm.Asset("cover")
	require.True(t, ok)
	if diff := cmp.Diff(asset, got, timeCmp); diff != "" {
		t.Errorf("asset meta round trip mismatch (-want +got):\n%s", diff)
	}

	// A fresh Store instance must read the same state back from disk.
	fresh := New(base, filepath.Join(base, "external"))
	reopened, err := fresh.OpenForSource(uri.New("file://" + src))
	require.NoError(t, err)
	reopenedAsset, ok := reopened.Asset("cover")
	require.True(t, ok)
	if diff := cmp.Diff(asset, reopenedAsset, timeCmp); diff != "" {
		t.Errorf("asset meta reopen mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenForSourceExternalForNonFileScheme(t *testing.T) {
	st, base := newTestStore(t)
	src := uri.New("https://example.com/a.json")

	sm, err := st.OpenForSource(src)
	require.NoError(t, err)
	require.Equal(t, src, sm.URL())

	rel, err := filepath.Rel(filepath.Join(base, "external"), sm.Path())
	require.NoError(t, err)
	require.False(t, len(rel) > 2 && rel[:2] == "..")
}

func TestOpenForSourceExternalReopenSameURLReusesMeta(t *testing.T) {
	st, base := newTestStore(t)
	src := uri.New("https://example.com/b.json")

	sm, err := st.OpenForSource(src)
	require.NoError(t, err)
	require.NoError(t, sm.AddAsset("root", AssetMeta{
		ID:          idgen.ID(42),
		SHA256:      mustSum("b"),
		PrefixLen:   8,
		SuffixIndex: -1,
	}))

	fresh := New(base, filepath.Join(base, "external"))
	reopened, err := fresh.OpenForSource(src)
	require.NoError(t, err)
	require.Equal(t, sm.Path(), reopened.Path())

	asset, ok := reopened.Asset("root")
	require.True(t, ok)
	require.Equal(t, idgen.ID(42), asset.ID)
}

func TestOpenForSourceExternalDistinctURLsGetDistinctMetas(t *testing.T) {
	st, _ := newTestStore(t)
	sm1, err := st.OpenForSource(uri.New("https://example.com/one.json"))
	require.NoError(t, err)
	sm2, err := st.OpenForSource(uri.New("https://example.com/two.json"))
	require.NoError(t, err)
	require.NotEqual(t, sm1.Path(), sm2.Path())
}

func mustSum(s string) (sum [32]byte) {
	for i := 0; i < len(s) && i < 32; i++ {
		sum[i] = s[i]
	}
	return sum
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}
