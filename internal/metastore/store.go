// Package metastore implements the Source Meta Store and the shared
// candidate-path collision-resolution protocol used both for external
// source-meta filenames and for content-addressed artifact placement
// (spec §4.3).
package metastore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/treasuryhq/treasury/internal/hasher"
	"github.com/treasuryhq/treasury/uri"
)

// Store locates and persists source meta files for one treasury.
type Store struct {
	baseDir     string // treasury base directory, for canonicalizing file: sources
	externalDir string

	mu    sync.Mutex
	cache map[string]*SourceMeta // keyed by resolved meta file path
}

// New constructs a Store rooted at baseDir (for local sources) with
// external metas kept under externalDir.
func New(baseDir, externalDir string) *Store {
	return &Store{
		baseDir:     baseDir,
		externalDir: externalDir,
		cache:       make(map[string]*SourceMeta),
	}
}

// SourceMeta is the in-memory, mutable view of one source's persisted
// meta file.
type SourceMeta struct {
	mu sync.Mutex

	path   string
	local  bool
	url    uri.URI // authoritative only for external metas
	assets map[string]AssetMeta
}

// URL returns the source URL this meta describes.
func (sm *SourceMeta) URL() uri.URI {
	return sm.url
}

// Path returns the on-disk location of the meta file.
func (sm *SourceMeta) Path() string {
	return sm.path
}

// Asset returns the asset meta recorded for target, if any.
func (sm *SourceMeta) Asset(target string) (AssetMeta, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	a, ok := sm.assets[target]
	return a, ok
}

// Assets returns a snapshot of every target->asset mapping recorded
// for this source.
func (sm *SourceMeta) Assets() map[string]AssetMeta {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make(map[string]AssetMeta, len(sm.assets))
	for k, v := range sm.assets {
		out[k] = v
	}
	return out
}

// AddAsset records asset under target and rewrites the meta file in
// full. Asset meta is never mutated once added; callers should only
// call this once per (source, target) pair.
func (sm *SourceMeta) AddAsset(target string, asset AssetMeta) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	next := make(map[string]AssetMeta, len(sm.assets)+1)
	for k, v := range sm.assets {
		next[k] = v
	}
	next[target] = asset
	if err := sm.persist(next); err != nil {
		return err
	}
	sm.assets = next
	return nil
}

func (sm *SourceMeta) persist(assets map[string]AssetMeta) error {
	var b []byte
	var err error
	if sm.local {
		b, err = toml.Marshal(assets)
	} else {
		b, err = toml.Marshal(externalDoc{URL: sm.url.String(), Assets: assets})
	}
	if err != nil {
		return fmt.Errorf("encoding meta for %q: %w", sm.path, err)
	}
	if err := os.WriteFile(sm.path, b, 0o644); err != nil {
		return fmt.Errorf("writing meta %q: %w", sm.path, err)
	}
	return nil
}

type externalDoc struct {
	URL    string               `toml:"url"`
	Assets map[string]AssetMeta `toml:"assets"`
}

// OpenForSource finds or creates the meta file for src, per §4.3.
//
//   - file: sources that canonicalize under the treasury base get a
//     local meta at "<source>.treasure".
//   - everything else gets an external meta under externalDir, named
//     by the candidate-path protocol applied to sha256(url).
func (s *Store) OpenForSource(src uri.URI) (*SourceMeta, error) {
	if src.IsFile() {
		if localPath, ok := s.localMetaPath(src); ok {
			return s.openLocal(localPath)
		}
	}
	return s.openExternal(src)
}

// localMetaPath returns the sidecar meta path for a file: source if it
// canonicalizes to a path under the treasury base directory.
func (s *Store) localMetaPath(src uri.URI) (string, bool) {
	p := strings.TrimPrefix(src.String(), "file://")
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The source file may not exist yet (e.g. a not-yet-fetched
		// external source never reaches here); fall back to the
		// unresolved absolute path for the containment check.
		resolved = abs
	}
	baseAbs, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(baseAbs, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return resolved + ".treasure", true
}

func (s *Store) openLocal(path string) (*SourceMeta, error) {
	s.mu.Lock()
	if cached, ok := s.cache[path]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	assets := make(map[string]AssetMeta)
	if b, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(b, &assets); err != nil {
			return nil, fmt.Errorf("decoding local meta %q: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading local meta %q: %w", path, err)
	} else {
		// Create an empty meta file lazily so re-opens are idempotent.
		if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
			return nil, fmt.Errorf("creating local meta %q: %w", path, err)
		}
	}

	sourcePath := strings.TrimSuffix(path, ".treasure")
	sm := &SourceMeta{
		path:   path,
		local:  true,
		url:    uri.New("file://" + sourcePath),
		assets: assets,
	}
	s.mu.Lock()
	s.cache[path] = sm
	s.mu.Unlock()
	return sm, nil
}

func (s *Store) openExternal(src uri.URI) (*SourceMeta, error) {
	if err := os.MkdirAll(s.externalDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating external meta dir %q: %w", s.externalDir, err)
	}
	sum := hasher.Bytes([]byte(src.String()))
	h := sum.String()

	var resolvedPath string
	var loadedAssets map[string]AssetMeta

	_, _, err := resolveCandidate(h, func(prefixLen, suffix int) (bool, error) {
		name := candidateName(h, prefixLen, suffix)
		path := filepath.Join(s.externalDir, name)

		b, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			resolvedPath = path
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("reading external meta %q: %w", path, err)
		}
		var doc externalDoc
		if err := toml.Unmarshal(b, &doc); err != nil {
			return false, fmt.Errorf("decoding external meta %q: %w", path, err)
		}
		if doc.URL == src.String() {
			resolvedPath = path
			loadedAssets = doc.Assets
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if cached, ok := s.cache[resolvedPath]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	if loadedAssets == nil {
		loadedAssets = make(map[string]AssetMeta)
	}
	sm := &SourceMeta{
		path:   resolvedPath,
		local:  false,
		url:    src,
		assets: loadedAssets,
	}
	if _, err := os.Stat(resolvedPath); os.IsNotExist(err) {
		if err := sm.persist(loadedAssets); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	s.cache[resolvedPath] = sm
	s.mu.Unlock()
	return sm, nil
}

// ScanAll walks every local ".treasure" sidecar under baseDir and
// every external meta file under the external directory, opening each
// through this Store so results land in (and reuse) its cache. It
// backs the server's id->asset lookup, which has no other way to
// enumerate every asset a treasury has ever produced.
func (s *Store) ScanAll(baseDir string) ([]*SourceMeta, error) {
	var metas []*SourceMeta

	walkErr := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".treasure") {
			return nil
		}
		sm, err := s.openLocal(path)
		if err != nil {
			return err
		}
		metas = append(metas, sm)
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return nil, fmt.Errorf("metastore: scanning %q: %w", baseDir, walkErr)
	}

	entries, err := os.ReadDir(s.externalDir)
	if err != nil {
		if os.IsNotExist(err) {
			return metas, nil
		}
		return nil, fmt.Errorf("metastore: scanning %q: %w", s.externalDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == ".gitignore" {
			continue
		}
		path := filepath.Join(s.externalDir, entry.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("metastore: reading %q: %w", path, err)
		}
		var doc externalDoc
		if err := toml.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("metastore: decoding %q: %w", path, err)
		}
		sm, err := s.openExternal(uri.New(doc.URL))
		if err != nil {
			return nil, err
		}
		metas = append(metas, sm)
	}
	return metas, nil
}
