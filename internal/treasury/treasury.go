package treasury

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	"github.com/treasuryhq/treasury/internal/idgen"
	"github.com/treasuryhq/treasury/internal/importer"
	"github.com/treasuryhq/treasury/internal/metastore"
	"github.com/treasuryhq/treasury/internal/pluginabi"
	"github.com/treasuryhq/treasury/internal/sources"
	"github.com/treasuryhq/treasury/internal/tempfile"
	"github.com/treasuryhq/treasury/uri"
)

// assetLocation is the scan cache's payload: enough to answer FetchUrl
// and FindAsset without re-reading every meta file on every request.
type assetLocation struct {
	source uri.URI
	target string
	meta   metastore.AssetMeta
}

// Treasury is one opened treasury directory: its resolved layout, its
// loaded importer registry, and the shared state a server fans out to
// concurrent requests against it.
type Treasury struct {
	base   string
	cfg    Config
	paths  resolvedPaths
	meta   *metastore.Store
	engine *importer.Engine
	libs   []*pluginabi.Library

	scanMu  sync.RWMutex
	scanned bool
	byID    map[idgen.ID]assetLocation
}

// Open loads Treasury.toml (if present) under base, loads every
// configured importer library, and constructs the component chain the
// import engine needs. Importer libraries that fail to load (missing
// symbol, magic mismatch, version mismatch) are logged and skipped;
// other importers still load, per §7's load policy.
func Open(base string) (*Treasury, error) {
	cfg, err := loadConfig(base)
	if err != nil {
		return nil, err
	}
	paths := cfg.resolved(base)

	tmp, err := tempfile.New(paths.temp)
	if err != nil {
		return nil, err
	}
	metaStore := metastore.New(base, paths.external)
	srcFetcher := sources.New(tmp)

	node, err := randomNode()
	if err != nil {
		return nil, err
	}
	ids := idgen.New(idgen.Epoch, node)

	var libs []*pluginabi.Library
	var allImporters []*pluginabi.Importer
	for _, p := range cfg.Importers {
		lib, _, err := pluginabi.Load(p)
		if err != nil {
			klog.Errorf("treasury: skipping importer library %q: %v", p, err)
			pluginLoadFailures.WithLabelValues(p).Inc()
			continue
		}
		ims, err := lib.Importers()
		if err != nil {
			klog.Errorf("treasury: skipping importer library %q: %v", p, err)
			pluginLoadFailures.WithLabelValues(p).Inc()
			continue
		}
		libs = append(libs, lib)
		allImporters = append(allImporters, ims...)
	}

	registry := importer.NewRegistry(allImporters)
	engine := &importer.Engine{
		Registry:     registry,
		Meta:         metaStore,
		Sources:      srcFetcher,
		Temp:         tmp,
		IDs:          ids,
		ArtifactsDir: paths.artifacts,
	}

	return &Treasury{
		base:   base,
		cfg:    cfg,
		paths:  paths,
		meta:   metaStore,
		engine: engine,
		libs:   libs,
	}, nil
}

// Store imports source into target (with an optional format hint),
// returning its asset id and artifact path. It is the §4.5 entry
// point, fanned out directly from a Store protocol request.
func (t *Treasury) Store(ctx context.Context, source uri.URI, format, target string) (idgen.ID, string, error) {
	tmp, err := tempfile.New(t.paths.temp)
	if err != nil {
		return 0, "", err
	}
	defer tmp.Release()
	engine := *t.engine
	engine.Temp = tmp
	engine.Sources = sources.New(tmp)

	id, path, err := engine.Store(ctx, source, format, target)
	t.invalidateScan()
	return id, path, err
}

// FindAsset looks up a previously imported (source, target) pair
// without triggering an import.
func (t *Treasury) FindAsset(source uri.URI, target string) (metastore.AssetMeta, bool, error) {
	sm, err := t.meta.OpenForSource(source)
	if err != nil {
		return metastore.AssetMeta{}, false, err
	}
	asset, ok := sm.Asset(target)
	return asset, ok, nil
}

// FetchPath resolves an asset id to its artifact path, scanning every
// source meta file on first use.
func (t *Treasury) FetchPath(id idgen.ID) (string, bool, error) {
	if err := t.ensureScanned(); err != nil {
		return "", false, err
	}
	t.scanMu.RLock()
	defer t.scanMu.RUnlock()
	loc, ok := t.byID[id]
	if !ok {
		return "", false, nil
	}
	return metastore.ArtifactPath(t.paths.artifacts, loc.meta.SHA256, loc.meta.PrefixLen, loc.meta.SuffixIndex), true, nil
}

func (t *Treasury) ensureScanned() error {
	t.scanMu.RLock()
	scanned := t.scanned
	t.scanMu.RUnlock()
	if scanned {
		return nil
	}

	t.scanMu.Lock()
	defer t.scanMu.Unlock()
	if t.scanned {
		return nil
	}

	metas, err := t.meta.ScanAll(t.base)
	if err != nil {
		return fmt.Errorf("treasury: scanning %q: %w", t.base, err)
	}
	byID := make(map[idgen.ID]assetLocation)
	for _, sm := range metas {
		for target, asset := range sm.Assets() {
			byID[asset.ID] = assetLocation{source: sm.URL(), target: target, meta: asset}
		}
	}
	t.byID = byID
	t.scanned = true
	return nil
}

// invalidateScan forces the next FetchPath call to re-scan, since a
// Store call may have just created a new asset the cache doesn't know
// about yet. A full rescan on every write is wasteful at high
// throughput but matches the spec's "first read triggers a one-time
// scan" model without inventing an incremental-update path it doesn't
// describe.
func (t *Treasury) invalidateScan() {
	t.scanMu.Lock()
	t.scanned = false
	t.byID = nil
	t.scanMu.Unlock()
}

func randomNode() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("treasury: generating node salt: %w", err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
