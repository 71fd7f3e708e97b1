// Package pluginabi implements the host side of Treasury's importer
// plugin ABI: loading dynamic libraries exposing a fixed C-linkage
// contract, marshaling import calls across it, and negotiating the
// variable-length result buffer protocol plugins use to report
// errors and dependency/source requests.
//
// Loading is done without cgo via purego, so a single compiled host
// binary can dlopen plugins built by anyone targeting the same ABI
// version.
package pluginabi

import "encoding/binary"

// Magic is the 32-bit magic number every importer library must export
// as TREASURY_DYLIB_MAGIC: the ASCII bytes "TRES", little-endian.
const Magic uint32 = 'T' | 'R'<<8 | 'E'<<16 | 'S'<<24

// Version is the ABI version this host implements. A library whose
// treasury_importer_ffi_version() disagrees is rejected at load time.
const Version uint32 = 1

// Fixed field widths inside ImporterFFI. These are part of the wire
// contract and must never change within a major ABI version.
const (
	NameSize      = 64
	FormatSize    = 64
	TargetSize    = 64
	ExtSize       = 16
	MaxExtensions = 8
)

// Result codes returned by import_fn and by the Sources/Dependencies
// callbacks.
const (
	Success             int32 = 0
	RequireDependencies int32 = 1
	RequireSources      int32 = 2
	NotFound            int32 = -1
	NotUTF8             int32 = -2
	BufferTooSmall      int32 = -3
	OtherError          int32 = -6
)

var byteOrder = binary.LittleEndian
