// Package hasher computes and formats the SHA-256 content hashes that
// back artifact placement and external source-meta filenames.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Size is the length in bytes of a SHA-256 digest.
const Size = sha256.Size

// chunkSize is the read buffer used when streaming a file through the
// hasher, matching the spec's 16-KiB streaming requirement.
const chunkSize = 16 * 1024

// Sum is a SHA-256 digest.
type Sum [Size]byte

// Bytes hashes a byte string.
func Bytes(b []byte) Sum {
	return Sum(sha256.Sum256(b))
}

// File hashes the contents of the file at path, streaming it in
// 16-KiB chunks so large artifacts don't need to be loaded whole.
func File(path string) (Sum, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sum{}, fmt.Errorf("hashing %q: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return Sum{}, fmt.Errorf("hashing %q: %w", path, err)
	}
	var s Sum
	copy(s[:], h.Sum(nil))
	return s, nil
}

// String renders the digest as 64 lowercase hex digits.
func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// Parse parses a 64-hex-digit digest (upper or lower case).
func Parse(s string) (Sum, error) {
	if len(s) != Size*2 {
		return Sum{}, fmt.Errorf("sha256 %q: must be exactly %d hex digits", s, Size*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Sum{}, fmt.Errorf("sha256 %q: %w", s, err)
	}
	var out Sum
	copy(out[:], b)
	return out, nil
}

// MarshalText implements encoding.TextMarshaler so a Sum can be
// embedded directly in a TOML-tagged struct.
func (s Sum) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Sum) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
