package metastore

import (
	"time"

	"github.com/treasuryhq/treasury/internal/hasher"
	"github.com/treasuryhq/treasury/internal/idgen"
)

// SourceRecord is one (source-url, modification-time) pair an importer
// consulted while producing an asset. URL is relative to the owning
// source's URL. ModTime is the zero time when the underlying scheme
// doesn't expose a modification time (e.g. data:).
type SourceRecord struct {
	URL     string    `toml:"url"`
	ModTime time.Time `toml:"mod_time"`
}

// AssetMeta is the persisted record of one successful import: where
// its artifact lives (derived purely from SHA256/PrefixLen/Suffix),
// and the provenance the importer actually used.
type AssetMeta struct {
	ID           idgen.ID       `toml:"id"`
	SHA256       hasher.Sum     `toml:"sha256"`
	PrefixLen    int            `toml:"prefix_len"`
	SuffixIndex  int            `toml:"suffix_index"`
	SourceFormat string         `toml:"source_format,omitempty"`
	Recorded     []SourceRecord `toml:"recorded,omitempty"`
	Dependencies []idgen.ID     `toml:"dependencies,omitempty"`
}

// ArtifactFilename returns the on-disk name for this asset's artifact,
// per the §4.3 naming rule. It depends only on SHA256, PrefixLen, and
// SuffixIndex. SuffixIndex is -1 for a bare prefix name and >= 0 for a
// colon-suffixed full-hex name, matching resolveCandidate's convention.
func ArtifactFilename(sum hasher.Sum, prefixLen, suffixIndex int) string {
	return candidateName(sum.String(), prefixLen, suffixIndex)
}
