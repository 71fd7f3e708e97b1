// Package sources resolves source URLs (file:, data:, and the
// supplemental http(s):) to local paths, and tracks the modification
// time each resolution observed so the import engine can later tell
// whether a recorded source has gone stale.
package sources

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/treasuryhq/treasury/internal/tempfile"
	"github.com/treasuryhq/treasury/uri"
)

// fetchTimeout bounds a single http(s) fetch. Treasury assets are
// sidecar-sized, not bulk snapshots, so there's no case for resumable
// or chunked transfer here.
const fetchTimeout = 30 * time.Second

// Resolved is the result of fetching one source URL: where its
// content now lives on disk, and when it was last modified (zero if
// the scheme doesn't expose a modification time).
type Resolved struct {
	Path    string
	ModTime time.Time
}

// Sources resolves URLs to local paths and caches the result for the
// lifetime of one import-engine invocation.
type Sources struct {
	tmp    *tempfile.Temporaries
	client *http.Client

	cache map[uri.URI]Resolved
}

// New constructs a Sources cache that allocates scratch files through
// tmp for any scheme that doesn't already live on the local disk.
func New(tmp *tempfile.Temporaries) *Sources {
	return &Sources{
		tmp:    tmp,
		client: &http.Client{Timeout: fetchTimeout},
		cache:  make(map[uri.URI]Resolved),
	}
}

// Fetch resolves u to a local path, caching the result. Calling Fetch
// again with the same URL returns the cached resolution without
// refetching.
func (s *Sources) Fetch(ctx context.Context, u uri.URI) (Resolved, error) {
	if r, ok := s.cache[u]; ok {
		return r, nil
	}

	var r Resolved
	var err error
	switch {
	case u.IsFile():
		r, err = resolveFile(u)
	case u.IsData():
		r, err = s.resolveData(u)
	case u.IsWeb():
		r, err = s.resolveWeb(ctx, u)
	default:
		return Resolved{}, fmt.Errorf("sources: unsupported scheme in %q", u)
	}
	if err != nil {
		return Resolved{}, err
	}
	s.cache[u] = r
	return r, nil
}

func resolveFile(u uri.URI) (Resolved, error) {
	path := strings.TrimPrefix(u.String(), "file://")
	info, err := os.Stat(path)
	if err != nil {
		return Resolved{}, fmt.Errorf("fetching %q: %w", u, err)
	}
	return Resolved{Path: path, ModTime: info.ModTime()}, nil
}

// resolveData decodes an RFC 2397 data: URL. The preamble (everything
// up to the first comma) is inspected only for a trailing ";base64"
// flag; any media-type or charset parameters are ignored since
// Treasury only cares about the decoded bytes.
func (s *Sources) resolveData(u uri.URI) (Resolved, error) {
	raw := strings.TrimPrefix(u.String(), "data:")
	comma := strings.IndexByte(raw, ',')
	if comma < 0 {
		return Resolved{}, fmt.Errorf("fetching %q: malformed data: URL, no comma", u)
	}
	preamble, payload := raw[:comma], raw[comma+1:]

	var decoded []byte
	if strings.HasSuffix(preamble, ";base64") {
		b, err := base64.RawURLEncoding.DecodeString(payload)
		if err != nil {
			// RFC 2397 payloads are standard (not URL-safe) base64 in
			// the wild; fall back before giving up.
			b, err = base64.StdEncoding.WithPadding(base64.NoPadding).DecodeString(payload)
			if err != nil {
				return Resolved{}, fmt.Errorf("fetching %q: decoding base64 payload: %w", u, err)
			}
		}
		decoded = b
	} else {
		decoded = []byte(payload)
	}

	path, err := s.tmp.Path()
	if err != nil {
		return Resolved{}, fmt.Errorf("fetching %q: %w", u, err)
	}
	if err := os.WriteFile(path, decoded, 0o644); err != nil {
		return Resolved{}, fmt.Errorf("fetching %q: writing %q: %w", u, path, err)
	}
	return Resolved{Path: path}, nil
}

func (s *Sources) resolveWeb(ctx context.Context, u uri.URI) (Resolved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Resolved{}, fmt.Errorf("fetching %q: %w", u, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Resolved{}, fmt.Errorf("fetching %q: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Resolved{}, fmt.Errorf("fetching %q: server returned %s", u, resp.Status)
	}

	path, err := s.tmp.Path()
	if err != nil {
		return Resolved{}, fmt.Errorf("fetching %q: %w", u, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return Resolved{}, fmt.Errorf("fetching %q: creating %q: %w", u, path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return Resolved{}, fmt.Errorf("fetching %q: writing %q: %w", u, path, err)
	}

	modTime := time.Time{}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			modTime = t
		}
	}
	return Resolved{Path: path, ModTime: modTime}, nil
}
