package pluginabi

import "strings"

// importerFFI mirrors the C ImporterFFI record, repr-C and pointer-stable.
// Plugins populate an array of these in treasury_export_importers; the
// host only ever reads them, never writes.
type importerFFI struct {
	Importer   uintptr // opaque plugin-owned pointer, passed back on every call
	ImportFn   uintptr // C function pointer: see Importer.importFn in importer.go
	Name       [NameSize]byte
	SourceFmt  [FormatSize]byte
	TargetFmt  [TargetSize]byte
	NumExts    uint32
	_          uint32 // padding to keep Extensions 8-byte aligned
	Extensions [MaxExtensions][ExtSize]byte
}

func fixedString(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

// Descriptor is the host-side, Go-native view of one exported importer:
// everything except the raw function/opaque pointers needed to invoke it.
type Descriptor struct {
	Name         string
	SourceFormat string
	TargetFormat string
	Extensions   []string
}

func descriptorFromFFI(r *importerFFI) Descriptor {
	exts := make([]string, 0, r.NumExts)
	n := int(r.NumExts)
	if n > MaxExtensions {
		n = MaxExtensions
	}
	for i := 0; i < n; i++ {
		ext := fixedString(r.Extensions[i][:])
		if ext != "" {
			exts = append(exts, strings.ToLower(ext))
		}
	}
	return Descriptor{
		Name:         fixedString(r.Name[:]),
		SourceFormat: fixedString(r.SourceFmt[:]),
		TargetFormat: fixedString(r.TargetFmt[:]),
		Extensions:   exts,
	}
}
