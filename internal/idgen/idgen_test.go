package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSequentialIDsAreDistinct(t *testing.T) {
	g := New(time.Now().Add(-time.Hour), 1)
	seen := make(map[ID]struct{}, 100000)
	for i := 0; i < 100000; i++ {
		id := g.Generate()
		require.NotZero(t, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id at iteration %d", i)
		seen[id] = struct{}{}
	}
}

func TestDistinctNodesDisjoint(t *testing.T) {
	epoch := time.Now().Add(-time.Hour)
	a := New(epoch, 1)
	b := New(epoch, 2)

	seenA := make(map[ID]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		seenA[a.Generate()] = struct{}{}
	}
	for i := 0; i < 10000; i++ {
		id := b.Generate()
		_, collide := seenA[id]
		require.False(t, collide, "node collision at iteration %d", i)
	}
}

func TestPanicsWhenClockBeforeEpoch(t *testing.T) {
	g := New(time.Now().Add(time.Hour), 1)
	require.Panics(t, func() {
		g.Generate()
	})
}

func TestStringRoundTrip(t *testing.T) {
	g := New(time.Now().Add(-time.Hour), 7)
	for i := 0; i < 1000; i++ {
		id := g.Generate()
		parsed, err := Parse(id.String())
		require.NoError(t, err)
		require.Equal(t, id, parsed)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	g := New(time.Now().Add(-time.Hour), 7)
	id := g.Generate()
	b := id.Bytes()
	got, err := FromBytes(b[:])
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestParseRejectsBadLength(t *testing.T) {
	_, err := Parse("abc")
	require.Error(t, err)
}
