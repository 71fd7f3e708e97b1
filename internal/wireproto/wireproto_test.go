package wireproto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treasuryhq/treasury/internal/idgen"
)

func TestHandshakeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHandshake(&buf))
	require.NoError(t, ReadHandshake(&buf))
}

func TestHandshakeRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, buf.WriteByte(0))
	buf.Write(make([]byte, 7))
	err := ReadHandshake(&buf)
	require.Error(t, err)
}

func TestHandshakeRejectsBadVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHandshake(&buf))
	encoded := buf.Bytes()
	encoded[4] = 0xff
	err := ReadHandshake(bytes.NewReader(encoded))
	require.Error(t, err)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello treasury")
	require.NoError(t, WriteFrame(&buf, payload))
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrameRejectsOversizedWrite(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxMessageSize+1))
	require.Error(t, err)
}

func TestFrameRejectsOversizedReadHeader(t *testing.T) {
	var lenBuf [4]byte
	byteOrder.PutUint32(lenBuf[:], MaxMessageSize+1)
	_, err := ReadFrame(bytes.NewReader(lenBuf[:]))
	require.Error(t, err)
}

func TestOpenRequestRoundTrip(t *testing.T) {
	req := OpenRequest{Path: "/var/treasury", Init: true}
	encoded := req.Encode()
	tag, body, err := PeekTag(encoded)
	require.NoError(t, err)
	require.Equal(t, TagOpen, tag)

	got, err := DecodeOpenRequest(body)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestStoreRequestRoundTrip(t *testing.T) {
	req := StoreRequest{Source: "file:///a.png", Format: "", Target: "thumbnail"}
	_, body, err := PeekTag(req.Encode())
	require.NoError(t, err)
	got, err := DecodeStoreRequest(body)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestFetchURLRequestRoundTrip(t *testing.T) {
	req := FetchURLRequest{ID: idgen.ID(0xdeadbeef)}
	_, body, err := PeekTag(req.Encode())
	require.NoError(t, err)
	got, err := DecodeFetchURLRequest(body)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestFindAssetRequestRoundTrip(t *testing.T) {
	req := FindAssetRequest{Source: "data:,hi", Target: "thumbnail"}
	_, body, err := PeekTag(req.Encode())
	require.NoError(t, err)
	got, err := DecodeFindAssetRequest(body)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestSuccessResponseRoundTrip(t *testing.T) {
	encoded := EncodeSuccess(idgen.ID(42), "/treasury/artifacts/abcd1234")
	tag, body, err := PeekTag(encoded)
	require.NoError(t, err)
	require.Equal(t, TagSuccess, tag)
	got, err := DecodeSuccess(body)
	require.NoError(t, err)
	require.Equal(t, idgen.ID(42), got.ID)
	require.Equal(t, "/treasury/artifacts/abcd1234", got.Path)
}

func TestFailureResponseRoundTrip(t *testing.T) {
	encoded := EncodeFailure("importer not found")
	tag, body, err := PeekTag(encoded)
	require.NoError(t, err)
	require.Equal(t, TagFailure, tag)
	got, err := DecodeFailure(body)
	require.NoError(t, err)
	require.Equal(t, "importer not found", got.Description)
}

func TestNotFoundHasNoBody(t *testing.T) {
	encoded := EncodeNotFound()
	tag, body, err := PeekTag(encoded)
	require.NoError(t, err)
	require.Equal(t, TagNotFound, tag)
	require.Empty(t, body)
}

func TestDecodeStoreRequestRejectsTruncatedBody(t *testing.T) {
	_, err := DecodeStoreRequest([]byte{1, 2, 3})
	require.Error(t, err)
}
