package pluginabi

import "fmt"

// DependencyRequest is one (source, target) pair an importer requests
// be imported before it can proceed.
type DependencyRequest struct {
	Source string
	Target string
}

// decodeStringList parses the RequireSources wire format: a
// little-endian u32 count, followed by that many (len u32, bytes)
// records.
func decodeStringList(buf []byte) ([]string, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("pluginabi: string list truncated: need 4 bytes for count, got %d", len(buf))
	}
	count := byteOrder.Uint32(buf)
	buf = buf[4:]
	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		s, rest, err := readLenPrefixed(buf)
		if err != nil {
			return nil, fmt.Errorf("pluginabi: string list entry %d: %w", i, err)
		}
		out = append(out, s)
		buf = rest
	}
	return out, nil
}

// decodePairList parses the RequireDependencies wire format: a u32
// count, followed by that many (source len+bytes, target len+bytes)
// pair records.
func decodePairList(buf []byte) ([]DependencyRequest, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("pluginabi: pair list truncated: need 4 bytes for count, got %d", len(buf))
	}
	count := byteOrder.Uint32(buf)
	buf = buf[4:]
	out := make([]DependencyRequest, 0, count)
	for i := uint32(0); i < count; i++ {
		src, rest, err := readLenPrefixed(buf)
		if err != nil {
			return nil, fmt.Errorf("pluginabi: pair list entry %d source: %w", i, err)
		}
		buf = rest
		tgt, rest, err := readLenPrefixed(buf)
		if err != nil {
			return nil, fmt.Errorf("pluginabi: pair list entry %d target: %w", i, err)
		}
		buf = rest
		out = append(out, DependencyRequest{Source: src, Target: tgt})
	}
	return out, nil
}

func readLenPrefixed(buf []byte) (s string, rest []byte, err error) {
	if len(buf) < 4 {
		return "", nil, fmt.Errorf("truncated length prefix")
	}
	n := byteOrder.Uint32(buf)
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return "", nil, fmt.Errorf("truncated payload: want %d bytes, have %d", n, len(buf))
	}
	return string(buf[:n]), buf[n:], nil
}

// encodeStringList is used by unit tests exercising decodeStringList
// against a known-good encoding.
func encodeStringList(items []string) []byte {
	buf := make([]byte, 4)
	byteOrder.PutUint32(buf, uint32(len(items)))
	for _, s := range items {
		lb := make([]byte, 4)
		byteOrder.PutUint32(lb, uint32(len(s)))
		buf = append(buf, lb...)
		buf = append(buf, s...)
	}
	return buf
}

func encodePairList(pairs []DependencyRequest) []byte {
	buf := make([]byte, 4)
	byteOrder.PutUint32(buf, uint32(len(pairs)))
	appendLenPrefixed := func(s string) {
		lb := make([]byte, 4)
		byteOrder.PutUint32(lb, uint32(len(s)))
		buf = append(buf, lb...)
		buf = append(buf, s...)
	}
	for _, p := range pairs {
		appendLenPrefixed(p.Source)
		appendLenPrefixed(p.Target)
	}
	return buf
}
