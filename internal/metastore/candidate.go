package metastore

import "fmt"

// tryFunc is the visitor the candidate-path protocol calls for each
// candidate name. It returns found=true to stop the search (the
// candidate is "occupied" by the caller, either freshly created or
// already holding equivalent content), or found=false to keep probing.
//
// suffix is -1 for a bare prefix candidate ("<hex[..prefix]>") and
// >= 0 once the protocol has exhausted every prefix length and moved
// on to the numeric-suffix phase ("<hex>:<suffix>").
type tryFunc func(prefixLen, suffix int) (found bool, err error)

// resolveCandidate walks the shared collision-resolution scheme used
// for both artifact files and external source-meta files: try
// progressively longer hex prefixes of h (8 up to the full 64 digits),
// then numeric suffixes appended to the full hex string.
//
// The returned suffix is -1 when the match came from the prefix phase
// (bare "<hex[..prefix]>", no colon) and >= 0 when it came from the
// suffix phase ("<hex>:<suffix>"). Callers must persist this value
// as-is: collapsing a suffix-phase 0 into -1 would make it
// indistinguishable from the bare full-hex name, a different file.
func resolveCandidate(h string, try tryFunc) (prefixLen, suffix int, err error) {
	if len(h) != 64 {
		return 0, 0, fmt.Errorf("metastore: hex digest must be 64 characters, got %d", len(h))
	}
	for prefixLen := 8; prefixLen <= 64; prefixLen++ {
		found, err := try(prefixLen, -1)
		if err != nil {
			return 0, 0, err
		}
		if found {
			return prefixLen, -1, nil
		}
	}
	for suffix := 0; ; suffix++ {
		found, err := try(64, suffix)
		if err != nil {
			return 0, 0, err
		}
		if found {
			return 64, suffix, nil
		}
	}
}

// candidateName renders the on-disk name for a given prefix/suffix
// pair, per the §4.3 naming rule.
func candidateName(h string, prefixLen, suffix int) string {
	if suffix < 0 {
		return h[:prefixLen]
	}
	return fmt.Sprintf("%s:%d", h, suffix)
}
