// Package importer drives the stack-based import engine: resolving an
// importer for a (source, target) pair, fetching inputs, marshaling
// calls across the plugin ABI, and placing the resulting artifact.
package importer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/treasuryhq/treasury/internal/pluginabi"
)

// AmbiguousError is returned by Guess when more than one importer
// could handle a request, with or without an extension; it carries
// every candidate so the caller can report them.
type AmbiguousError struct {
	Target     string
	Candidates []string // source-format names
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("importer: ambiguous importer for target %q, candidates: %s", e.Target, strings.Join(e.Candidates, ", "))
}

type extTargetKey struct{ ext, target string }
type formatTargetKey struct{ format, target string }

// Registry indexes a fixed set of loaded importers for lookup by
// (format, target) and by guess(extension, target).
type Registry struct {
	byFormatTarget map[formatTargetKey]*pluginabi.Importer
	byExtTarget    map[extTargetKey][]*pluginabi.Importer
	byTarget       map[string][]*pluginabi.Importer
}

// NewRegistry indexes importers. An importer is indexed once per
// extension it declares, plus once by its (source-format, target).
func NewRegistry(importers []*pluginabi.Importer) *Registry {
	r := &Registry{
		byFormatTarget: make(map[formatTargetKey]*pluginabi.Importer),
		byExtTarget:    make(map[extTargetKey][]*pluginabi.Importer),
		byTarget:       make(map[string][]*pluginabi.Importer),
	}
	for _, im := range importers {
		key := formatTargetKey{format: im.SourceFormat, target: im.TargetFormat}
		r.byFormatTarget[key] = im
		r.byTarget[im.TargetFormat] = append(r.byTarget[im.TargetFormat], im)
		for _, ext := range im.Extensions {
			ek := extTargetKey{ext: strings.ToLower(ext), target: im.TargetFormat}
			r.byExtTarget[ek] = append(r.byExtTarget[ek], im)
		}
	}
	return r
}

// Lookup resolves an importer by explicit format hint.
func (r *Registry) Lookup(format, target string) (*pluginabi.Importer, bool) {
	im, ok := r.byFormatTarget[formatTargetKey{format: format, target: target}]
	return im, ok
}

// Guess resolves an importer for an extension-less or extension-bearing
// request, per §4.5's guess semantics. A nil, nil result means no
// importer matches.
func (r *Registry) Guess(ext string, target string) (*pluginabi.Importer, error) {
	if ext != "" {
		candidates := r.byExtTarget[extTargetKey{ext: strings.ToLower(ext), target: target}]
		switch len(candidates) {
		case 0:
			return nil, nil
		case 1:
			return candidates[0], nil
		default:
			return nil, &AmbiguousError{Target: target, Candidates: candidateNames(candidates)}
		}
	}
	candidates := r.byTarget[target]
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	default:
		return nil, &AmbiguousError{Target: target, Candidates: candidateNames(candidates)}
	}
}

func candidateNames(importers []*pluginabi.Importer) []string {
	names := make([]string, len(importers))
	for i, im := range importers {
		names[i] = im.SourceFormat
	}
	sort.Strings(names)
	return names
}
