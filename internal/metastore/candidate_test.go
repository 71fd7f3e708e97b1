package metastore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCandidateNameBareVsSuffixed(t *testing.T) {
	h := "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"[:64]
	require.Equal(t, h[:8], candidateName(h, 8, -1))
	require.Equal(t, h, candidateName(h, 64, -1))
	require.Equal(t, h+":0", candidateName(h, 64, 0))
	require.Equal(t, h+":7", candidateName(h, 64, 7))
}

func TestResolveCandidateFirstPrefixWins(t *testing.T) {
	h := fakeHex()
	var calls []int

	prefixLen, suffix, err := resolveCandidate(h, func(pfx, sfx int) (bool, error) {
		calls = append(calls, pfx)
		require.Equal(t, -1, sfx)
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, 8, prefixLen)
	require.Equal(t, -1, suffix)
	require.Equal(t, []int{8}, calls)
}

func TestResolveCandidateExhaustsPrefixesBeforeBareFullHex(t *testing.T) {
	h := fakeHex()
	var calls []int

	prefixLen, suffix, err := resolveCandidate(h, func(pfx, sfx int) (bool, error) {
		calls = append(calls, pfx)
		require.Equal(t, -1, sfx)
		return pfx == 64, nil
	})
	require.NoError(t, err)
	require.Equal(t, 64, prefixLen)
	require.Equal(t, -1, suffix)

	want := make([]int, 0, 57)
	for p := 8; p <= 64; p++ {
		want = append(want, p)
	}
	require.Equal(t, want, calls)
}

func TestResolveCandidateFallsBackToSuffixPhaseOnlyAfterFullHexCollides(t *testing.T) {
	h := fakeHex()
	type call struct {
		pfx, sfx int
	}
	var calls []call

	prefixLen, suffix, err := resolveCandidate(h, func(pfx, sfx int) (bool, error) {
		calls = append(calls, call{pfx, sfx})
		// Every prefix candidate collides, including the bare full hex
		// (prefixLen==64, sfx==-1). Only suffix index 2 is free.
		if pfx == 64 && sfx == 2 {
			return true, nil
		}
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, 64, prefixLen)
	require.Equal(t, 2, suffix)

	// The prefix phase must run to completion (8..64, all with sfx=-1)
	// before any suffix-phase call is made, and the suffix phase must
	// start at 0 and increment — never jumping straight to ":2".
	require.Len(t, calls, 57+3)
	for i, p := 0, 8; i < 57; i, p = i+1, p+1 {
		require.Equal(t, call{p, -1}, calls[i])
	}
	require.Equal(t, call{64, 0}, calls[57])
	require.Equal(t, call{64, 1}, calls[58])
	require.Equal(t, call{64, 2}, calls[59])
}

func TestResolveCandidateStopsOnError(t *testing.T) {
	h := fakeHex()
	wantErr := fmt.Errorf("boom")
	calls := 0

	_, _, err := resolveCandidate(h, func(pfx, sfx int) (bool, error) {
		calls++
		return false, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 1, calls)
}

func TestResolveCandidateRejectsShortHex(t *testing.T) {
	_, _, err := resolveCandidate("abcd", func(pfx, sfx int) (bool, error) {
		t.Fatal("try must not be called for an invalid digest")
		return false, nil
	})
	require.Error(t, err)
}

func fakeHex() string {
	return "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
}
