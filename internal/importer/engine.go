package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/treasuryhq/treasury/internal/hasher"
	"github.com/treasuryhq/treasury/internal/idgen"
	"github.com/treasuryhq/treasury/internal/metastore"
	"github.com/treasuryhq/treasury/internal/pluginabi"
	"github.com/treasuryhq/treasury/internal/sources"
	"github.com/treasuryhq/treasury/internal/tempfile"
	"github.com/treasuryhq/treasury/telemetry"
	"github.com/treasuryhq/treasury/uri"
)

// MaxAttempts bounds how many times a single stack item may be
// attempted (the first try plus every retry after a
// RequireSources/RequireDependencies signal) before the engine gives
// up on it.
const MaxAttempts = 1024

// selfRecord is the relative URL recorded in AssetMeta.Recorded for an
// item's own primary source, as opposed to one fetched through the
// sources callback.
const selfRecord = ""

// Engine ties the loaded importer registry to the source meta store,
// source fetcher, temp-file allocator, and id generator, and drives
// the stack-based store algorithm of §4.5.
type Engine struct {
	Registry     *Registry
	Meta         *metastore.Store
	Sources      *sources.Sources
	Temp         *tempfile.Temporaries
	IDs          *idgen.Generator
	ArtifactsDir string
}

// item is one pending (source, target) import on the engine's stack.
type item struct {
	source   uri.URI
	format   string // explicit hint, "" if none
	target   string
	attempt  int
	recorded []metastore.SourceRecord
	deps     []idgen.ID
}

// Store runs the import engine to completion for the initial
// (source, format?, target) request and returns the resulting asset's
// id and artifact path.
func (e *Engine) Store(ctx context.Context, source uri.URI, format, target string) (idgen.ID, string, error) {
	stack := []*item{{source: source, format: format, target: target}}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		it.attempt++
		if it.attempt > MaxAttempts {
			return 0, "", fmt.Errorf("importer: %q -> %q: exceeded %d attempts", it.source, it.target, MaxAttempts)
		}

		sm, err := e.Meta.OpenForSource(it.source)
		if err != nil {
			return 0, "", err
		}

		if existing, ok := sm.Asset(it.target); ok {
			stale, err := e.isStale(ctx, it.source, existing)
			if err != nil {
				return 0, "", err
			}
			if !stale {
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return existing.ID, metastore.ArtifactPath(e.ArtifactsDir, existing.SHA256, existing.PrefixLen, existing.SuffixIndex), nil
				}
				continue
			}
		}

		im, err := e.resolve(it)
		if err != nil {
			return 0, "", err
		}
		if im == nil {
			return 0, "", fmt.Errorf("importer: no importer for source %q, target %q", it.source, it.target)
		}

		resolved, err := e.Sources.Fetch(ctx, it.source)
		if err != nil {
			return 0, "", err
		}
		it.recorded = setRecord(it.recorded, selfRecord, resolved.ModTime)

		outPath, err := e.Temp.Path()
		if err != nil {
			return 0, "", err
		}

		result, err := im.Import(resolved.Path, outPath, e.sourcesCallback(ctx, it), e.dependenciesCallback(ctx, it))
		if err != nil {
			return 0, "", fmt.Errorf("importer: invoking %q: %w", im.Name, err)
		}

		switch result.Code {
		case pluginabi.Success:
			id, path, err := e.finish(ctx, it, outPath, sm)
			if err != nil {
				return 0, "", err
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return id, path, nil
			}

		case pluginabi.RequireSources:
			for _, rel := range result.Sources {
				abs, err := uri.Join(it.source, rel)
				if err != nil {
					return 0, "", err
				}
				r, err := e.Sources.Fetch(ctx, abs)
				if err != nil {
					return 0, "", err
				}
				it.recorded = setRecord(it.recorded, rel, r.ModTime)
			}

		case pluginabi.RequireDependencies:
			for _, pair := range result.Dependencies {
				abs, err := uri.Join(it.source, pair.Source)
				if err != nil {
					return 0, "", err
				}
				stack = append(stack, &item{source: abs, target: pair.Target})
			}

		case pluginabi.OtherError:
			return 0, "", fmt.Errorf("importer: %q: %s", im.Name, result.ErrorMessage)

		default:
			return 0, "", fmt.Errorf("importer: %q: unexpected result code %d", im.Name, result.Code)
		}
	}
	return 0, "", fmt.Errorf("importer: stack exhausted without a result")
}

// finish places the artifact for a successfully imported item and
// records its asset meta.
func (e *Engine) finish(ctx context.Context, it *item, outPath string, sm *metastore.SourceMeta) (idgen.ID, string, error) {
	_, span := telemetry.TraceFileOperation(ctx, "place_artifact", outPath)
	defer span.End()

	sum, err := hasher.File(outPath)
	if err != nil {
		telemetry.RecordError(span, err, "hashing import output failed")
		return 0, "", err
	}
	prefixLen, suffixIndex, artifactPath, err := metastore.PlaceArtifact(outPath, e.ArtifactsDir, sum)
	if err != nil {
		telemetry.RecordError(span, err, "placing artifact failed")
		return 0, "", err
	}
	id := e.IDs.Generate()
	meta := metastore.AssetMeta{
		ID:           id,
		SHA256:       sum,
		PrefixLen:    prefixLen,
		SuffixIndex:  suffixIndex,
		SourceFormat: it.format,
		Recorded:     it.recorded,
		Dependencies: it.deps,
	}
	if err := sm.AddAsset(it.target, meta); err != nil {
		return 0, "", err
	}
	return id, artifactPath, nil
}

func (e *Engine) resolve(it *item) (*pluginabi.Importer, error) {
	if it.format != "" {
		im, ok := e.Registry.Lookup(it.format, it.target)
		if !ok {
			return nil, nil
		}
		return im, nil
	}
	return e.Registry.Guess(it.source.Ext(), it.target)
}

// isStale reports whether any of existing's recorded sources have a
// modification time that no longer matches what's on disk/on the
// network now. A recorded entry with a zero ModTime (data: sources,
// which expose none) never triggers staleness.
func (e *Engine) isStale(ctx context.Context, primary uri.URI, existing metastore.AssetMeta) (bool, error) {
	for _, rec := range existing.Recorded {
		if rec.ModTime.IsZero() {
			continue
		}
		abs := primary
		if rec.URL != selfRecord {
			var err error
			abs, err = uri.Join(primary, rec.URL)
			if err != nil {
				return false, err
			}
		}
		r, err := e.Sources.Fetch(ctx, abs)
		if err != nil {
			return false, err
		}
		if !r.ModTime.Equal(rec.ModTime) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) sourcesCallback(ctx context.Context, it *item) pluginabi.SourcesGetter {
	return func(rel string) (string, bool, error) {
		abs, err := uri.Join(it.source, rel)
		if err != nil {
			return "", false, err
		}
		r, err := e.Sources.Fetch(ctx, abs)
		if err != nil {
			return "", false, nil
		}
		it.recorded = setRecord(it.recorded, rel, r.ModTime)
		return r.Path, true, nil
	}
}

func (e *Engine) dependenciesCallback(ctx context.Context, it *item) pluginabi.DependenciesGetter {
	return func(rel, target string) (uint64, bool, error) {
		abs, err := uri.Join(it.source, rel)
		if err != nil {
			return 0, false, err
		}
		sm, err := e.Meta.OpenForSource(abs)
		if err != nil {
			return 0, false, nil
		}
		asset, ok := sm.Asset(target)
		if !ok {
			return 0, false, nil
		}
		it.deps = append(it.deps, asset.ID)
		return uint64(asset.ID), true, nil
	}
}

// setRecord records (or updates) the observed modification time for
// url within an item's recorded-sources list.
func setRecord(records []metastore.SourceRecord, url string, modTime time.Time) []metastore.SourceRecord {
	for i := range records {
		if records[i].URL == url {
			records[i].ModTime = modTime
			return records
		}
	}
	return append(records, metastore.SourceRecord{URL: url, ModTime: modTime})
}
