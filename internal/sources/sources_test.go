package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treasuryhq/treasury/internal/tempfile"
	"github.com/treasuryhq/treasury/uri"
)

func newTestSources(t *testing.T) *Sources {
	t.Helper()
	tmp, err := tempfile.New(t.TempDir())
	require.NoError(t, err)
	return New(tmp)
}

func TestFetchFileReturnsPathAndModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	s := newTestSources(t)
	r, err := s.Fetch(context.Background(), uri.New("file://"+path))
	require.NoError(t, err)
	require.Equal(t, path, r.Path)
	require.False(t, r.ModTime.IsZero())
}

func TestFetchDataPlainPayload(t *testing.T) {
	s := newTestSources(t)
	r, err := s.Fetch(context.Background(), uri.New("data:,hello"))
	require.NoError(t, err)

	got, err := os.ReadFile(r.Path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
	require.True(t, r.ModTime.IsZero())
}

func TestFetchDataBase64Payload(t *testing.T) {
	s := newTestSources(t)
	// URL-safe base64 (no padding) of "hello" is "aGVsbG8".
	r, err := s.Fetch(context.Background(), uri.New("data:;base64,aGVsbG8"))
	require.NoError(t, err)

	got, err := os.ReadFile(r.Path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestFetchDataRejectsMissingComma(t *testing.T) {
	s := newTestSources(t)
	_, err := s.Fetch(context.Background(), uri.New("data:no-comma-here"))
	require.Error(t, err)
}

func TestFetchIsCachedPerURL(t *testing.T) {
	s := newTestSources(t)
	u := uri.New("data:,cache-me")
	r1, err := s.Fetch(context.Background(), u)
	require.NoError(t, err)
	r2, err := s.Fetch(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, r1.Path, r2.Path)
}

func TestFetchWebDownloadsToTempFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("served bytes"))
	}))
	defer srv.Close()

	s := newTestSources(t)
	r, err := s.Fetch(context.Background(), uri.New(srv.URL+"/asset.bin"))
	require.NoError(t, err)

	got, err := os.ReadFile(r.Path)
	require.NoError(t, err)
	require.Equal(t, "served bytes", string(got))
}

func TestFetchWebNon200Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := newTestSources(t)
	_, err := s.Fetch(context.Background(), uri.New(srv.URL+"/missing.bin"))
	require.Error(t, err)
}

func TestFetchUnsupportedSchemeFails(t *testing.T) {
	s := newTestSources(t)
	_, err := s.Fetch(context.Background(), uri.New("ftp://example.com/x"))
	require.Error(t, err)
}
