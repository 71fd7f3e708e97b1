// Package idgen produces the 64-bit asset identifiers used to name
// every asset Treasury creates. An id is derived from a timestamp, a
// per-process node salt, and a per-generator counter, then diffused
// with a reversible multiply so that sequential ids don't look
// sequential on disk.
package idgen

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"
)

// idMul is the odd 64-bit constant used to scramble the laid-out id.
// It must stay odd (coprime with 2^64) for the map to be a bijection.
// Changing it breaks id compatibility with previously stored metas.
const idMul uint64 = 0xF89A4B715E26C30D

const (
	counterBits = 12
	nodeBits    = 10
	msBits      = 42

	counterMask = (uint64(1) << counterBits) - 1
	nodeMask    = (uint64(1) << nodeBits) - 1
	msMask      = (uint64(1) << msBits) - 1
)

// ID is a non-zero 64-bit asset identifier.
type ID uint64

// String renders the id as 16 lowercase hex digits.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Bytes renders the id as 8 raw big-endian bytes, the binary wire form.
func (id ID) Bytes() [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b
}

// FromBytes parses the 8-byte binary wire form of an id.
func FromBytes(b []byte) (ID, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("asset id: need 8 bytes, got %d", len(b))
	}
	return ID(binary.BigEndian.Uint64(b)), nil
}

// MarshalText implements encoding.TextMarshaler so an ID can be
// embedded directly in a TOML-tagged struct.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Parse parses a 16-hex-digit id. It accepts exactly 16 digits.
func Parse(s string) (ID, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("asset id %q: must be exactly 16 hex digits", s)
	}
	var v uint64
	if _, err := fmt.Sscanf(s, "%016x", &v); err != nil {
		return 0, fmt.Errorf("asset id %q: %w", s, err)
	}
	return ID(v), nil
}

// Generator produces unique ids from a fixed epoch and node salt. The
// zero value is not usable; construct with New.
type Generator struct {
	epoch   time.Time
	node    uint16
	counter uint32 // only the low 12 bits (counterMask) are used; kept wider to fetch-add safely
	now     func() time.Time
}

// New constructs a Generator. epoch is the reference wall-clock instant
// (Treasury's epoch is 2021-01-01 00:00:00 UTC); node is a 16-bit salt
// that should be randomized per process so that concurrent generators
// produce disjoint ids.
func New(epoch time.Time, node uint16) *Generator {
	return &Generator{epoch: epoch, node: node, now: time.Now}
}

// Epoch is the reference instant Treasury asset ids are measured from.
var Epoch = time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)

// Generate produces the next id from this generator. It panics if the
// wall clock has been observed earlier than the generator's epoch.
func (g *Generator) Generate() ID {
	now := g.now()
	if now.Before(g.epoch) {
		panic(fmt.Sprintf("idgen: current time %s is before epoch %s", now, g.epoch))
	}
	ms := uint64(now.Sub(g.epoch).Milliseconds()) & msMask

	counter := uint64(atomic.AddUint32(&g.counter, 1)) & counterMask
	if counter == 0 {
		// Burn one value (~1 in 4096) so the counter field is never
		// zero; that keeps the all-zero pre-image unreachable.
		counter = uint64(atomic.AddUint32(&g.counter, 1)) & counterMask
	}

	laid := (ms << (nodeBits + counterBits)) | ((uint64(g.node) & nodeMask) << counterBits) | counter
	return ID(laid * idMul)
}
