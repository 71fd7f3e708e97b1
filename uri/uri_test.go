package uri

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	require.True(t, New("file:///tmp/a.json").IsFile())
	require.True(t, New("data:,hello").IsData())
	require.True(t, New("http://example.com/a.json").IsWeb())
	require.True(t, New("https://example.com/a.json").IsWeb())
	require.False(t, New("").IsValid())
	require.False(t, New("ftp://example.com/a").IsValid())
}

func TestExt(t *testing.T) {
	require.Equal(t, "json", New("file:///tmp/a.JSON").Ext())
	require.Equal(t, "", New("data:,hello").Ext())
	require.Equal(t, "", New("file:///tmp/noext").Ext())
}

func TestJoin(t *testing.T) {
	got, err := Join(New("file:///tmp/dir/a.json"), "./b.json")
	require.NoError(t, err)
	require.Equal(t, "file:///tmp/dir/b.json", got.String())

	got, err = Join(New("file:///tmp/dir/a.json"), "http://example.com/x")
	require.NoError(t, err)
	require.Equal(t, "http://example.com/x", got.String())

	_, err = Join(New("data:,hello"), "./b.json")
	require.Error(t, err)
}
