package wireproto

import (
	"encoding/binary"
	"fmt"

	"github.com/treasuryhq/treasury/internal/idgen"
)

// Tag identifies the kind of message carried in a frame's first byte.
type Tag byte

const (
	TagOpen Tag = iota + 1
	TagOpenSuccess
	TagOpenFailure
	TagStore
	TagFetchURL
	TagFindAsset
	TagSuccess
	TagNotFound
	TagFailure
)

// OpenRequest asks the server to open (and, if requested, create) the
// treasury rooted at Path.
type OpenRequest struct {
	Path string
	Init bool
}

// StoreRequest asks the server to import Source into Target, via the
// importer that matches Format if given or guessed otherwise.
type StoreRequest struct {
	Source string
	Format string // empty if not given
	Target string
}

// FetchURLRequest asks the server for the local artifact path of a
// previously stored asset id.
type FetchURLRequest struct {
	ID idgen.ID
}

// FindAssetRequest asks the server whether Source has already been
// imported to Target.
type FindAssetRequest struct {
	Source string
	Target string
}

// SuccessResponse carries the id and artifact path of an asset.
type SuccessResponse struct {
	ID   idgen.ID
	Path string
}

// FailureResponse carries a human-readable description of what went
// wrong.
type FailureResponse struct {
	Description string
}

// --- encoding helpers -------------------------------------------------

func putString(buf []byte, s string) []byte {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf = append(buf, n[:]...)
	return append(buf, s...)
}

func getString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, fmt.Errorf("wireproto: truncated string length")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return "", nil, fmt.Errorf("wireproto: truncated string payload")
	}
	return string(buf[:n]), buf[n:], nil
}

func putBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func getBool(buf []byte) (bool, []byte, error) {
	if len(buf) < 1 {
		return false, nil, fmt.Errorf("wireproto: truncated bool")
	}
	return buf[0] != 0, buf[1:], nil
}

// --- Open --------------------------------------------------------------

// Encode serializes an OpenRequest frame (tag included).
func (r OpenRequest) Encode() []byte {
	buf := []byte{byte(TagOpen)}
	buf = putString(buf, r.Path)
	buf = putBool(buf, r.Init)
	return buf
}

// DecodeOpenRequest parses the body following the tag byte.
func DecodeOpenRequest(body []byte) (OpenRequest, error) {
	path, rest, err := getString(body)
	if err != nil {
		return OpenRequest{}, err
	}
	init, _, err := getBool(rest)
	if err != nil {
		return OpenRequest{}, err
	}
	return OpenRequest{Path: path, Init: init}, nil
}

// EncodeOpenSuccess serializes an empty OpenSuccess frame.
func EncodeOpenSuccess() []byte {
	return []byte{byte(TagOpenSuccess)}
}

// EncodeOpenFailure serializes an OpenFailure frame carrying description.
func EncodeOpenFailure(description string) []byte {
	buf := []byte{byte(TagOpenFailure)}
	return putString(buf, description)
}

// DecodeOpenFailure parses the body following the tag byte.
func DecodeOpenFailure(body []byte) (FailureResponse, error) {
	desc, _, err := getString(body)
	if err != nil {
		return FailureResponse{}, err
	}
	return FailureResponse{Description: desc}, nil
}

// --- Store ---------------------------------------------------------------

// Encode serializes a StoreRequest frame.
func (r StoreRequest) Encode() []byte {
	buf := []byte{byte(TagStore)}
	buf = putString(buf, r.Source)
	buf = putString(buf, r.Format)
	buf = putString(buf, r.Target)
	return buf
}

// DecodeStoreRequest parses the body following the tag byte.
func DecodeStoreRequest(body []byte) (StoreRequest, error) {
	source, rest, err := getString(body)
	if err != nil {
		return StoreRequest{}, err
	}
	format, rest, err := getString(rest)
	if err != nil {
		return StoreRequest{}, err
	}
	target, _, err := getString(rest)
	if err != nil {
		return StoreRequest{}, err
	}
	return StoreRequest{Source: source, Format: format, Target: target}, nil
}

// --- FetchURL --------------------------------------------------------------

// Encode serializes a FetchURLRequest frame.
func (r FetchURLRequest) Encode() []byte {
	buf := []byte{byte(TagFetchURL)}
	idb := r.ID.Bytes()
	return append(buf, idb[:]...)
}

// DecodeFetchURLRequest parses the body following the tag byte.
func DecodeFetchURLRequest(body []byte) (FetchURLRequest, error) {
	if len(body) < 8 {
		return FetchURLRequest{}, fmt.Errorf("wireproto: truncated asset id")
	}
	id, err := idgen.FromBytes(body[:8])
	if err != nil {
		return FetchURLRequest{}, err
	}
	return FetchURLRequest{ID: id}, nil
}

// --- FindAsset -------------------------------------------------------------

// Encode serializes a FindAssetRequest frame.
func (r FindAssetRequest) Encode() []byte {
	buf := []byte{byte(TagFindAsset)}
	buf = putString(buf, r.Source)
	buf = putString(buf, r.Target)
	return buf
}

// DecodeFindAssetRequest parses the body following the tag byte.
func DecodeFindAssetRequest(body []byte) (FindAssetRequest, error) {
	source, rest, err := getString(body)
	if err != nil {
		return FindAssetRequest{}, err
	}
	target, _, err := getString(rest)
	if err != nil {
		return FindAssetRequest{}, err
	}
	return FindAssetRequest{Source: source, Target: target}, nil
}

// --- generic responses -----------------------------------------------------

// EncodeSuccess serializes a Success frame carrying an asset id and path.
func EncodeSuccess(id idgen.ID, path string) []byte {
	buf := []byte{byte(TagSuccess)}
	idb := id.Bytes()
	buf = append(buf, idb[:]...)
	return putString(buf, path)
}

// DecodeSuccess parses the body following the tag byte.
func DecodeSuccess(body []byte) (SuccessResponse, error) {
	if len(body) < 8 {
		return SuccessResponse{}, fmt.Errorf("wireproto: truncated asset id")
	}
	id, err := idgen.FromBytes(body[:8])
	if err != nil {
		return SuccessResponse{}, err
	}
	path, _, err := getString(body[8:])
	if err != nil {
		return SuccessResponse{}, err
	}
	return SuccessResponse{ID: id, Path: path}, nil
}

// EncodeNotFound serializes an empty NotFound frame.
func EncodeNotFound() []byte {
	return []byte{byte(TagNotFound)}
}

// EncodeFailure serializes a Failure frame carrying description.
func EncodeFailure(description string) []byte {
	buf := []byte{byte(TagFailure)}
	return putString(buf, description)
}

// DecodeFailure parses the body following the tag byte.
func DecodeFailure(body []byte) (FailureResponse, error) {
	desc, _, err := getString(body)
	if err != nil {
		return FailureResponse{}, err
	}
	return FailureResponse{Description: desc}, nil
}

// PeekTag reads a frame's leading tag byte without consuming the rest.
func PeekTag(frame []byte) (Tag, []byte, error) {
	if len(frame) < 1 {
		return 0, nil, fmt.Errorf("wireproto: empty frame")
	}
	return Tag(frame[0]), frame[1:], nil
}
