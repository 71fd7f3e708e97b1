package pluginabi

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Library is one loaded importer dynamic library. The handle is kept
// open for the process lifetime: every Importer produced from it holds
// a reference back to the Library so the library is never unloaded
// while an importer from it could still be invoked.
type Library struct {
	path   string
	handle uintptr

	exportImporters func(buf unsafe.Pointer, cap uint32) uint32
}

// Load dlopens path, verifies its magic number and ABI version, and
// returns the importers it exports. Loading a plugin runs native code
// in-process at call time; the host trusts the library the way any
// dynamic-linking host must.
func Load(path string) (*Library, []Descriptor, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, nil, fmt.Errorf("pluginabi: opening %q: %w", path, err)
	}

	magicAddr, err := purego.Dlsym(handle, "TREASURY_DYLIB_MAGIC")
	if err != nil {
		return nil, nil, fmt.Errorf("pluginabi: %q: missing TREASURY_DYLIB_MAGIC: %w", path, err)
	}
	gotMagic := *(*uint32)(unsafe.Pointer(magicAddr))
	if gotMagic != Magic {
		return nil, nil, fmt.Errorf("pluginabi: %q: magic mismatch (want %#x, got %#x)", path, Magic, gotMagic)
	}

	var ffiVersion func() uint32
	versionAddr, err := purego.Dlsym(handle, "treasury_importer_ffi_version")
	if err != nil {
		return nil, nil, fmt.Errorf("pluginabi: %q: missing treasury_importer_ffi_version: %w", path, err)
	}
	purego.RegisterFunc(&ffiVersion, versionAddr)
	if got := ffiVersion(); got != Version {
		return nil, nil, fmt.Errorf("pluginabi: %q: ABI version mismatch (want %d, got %d)", path, Version, got)
	}

	exportAddr, err := purego.Dlsym(handle, "treasury_export_importers")
	if err != nil {
		return nil, nil, fmt.Errorf("pluginabi: %q: missing treasury_export_importers: %w", path, err)
	}
	var exportFn func(buf unsafe.Pointer, cap uint32) uint32
	purego.RegisterFunc(&exportFn, exportAddr)

	lib := &Library{path: path, handle: handle, exportImporters: exportFn}

	records, err := lib.fetchImporters()
	if err != nil {
		return nil, nil, err
	}

	descriptors := make([]Descriptor, len(records))
	for i := range records {
		descriptors[i] = descriptorFromFFI(&records[i])
	}
	return lib, descriptors, nil
}

// fetchImporters runs the buffer-size-negotiation protocol against
// treasury_export_importers: call with a starting guess, and if the
// library reports wanting more room than it was given, reallocate to
// exactly that size and call once more.
func (l *Library) fetchImporters() ([]importerFFI, error) {
	const initialCap = 8
	cap := uint32(initialCap)
	for attempt := 0; attempt < 2; attempt++ {
		buf := make([]importerFFI, cap)
		var ptr unsafe.Pointer
		if cap > 0 {
			ptr = unsafe.Pointer(&buf[0])
		}
		total := l.exportImporters(ptr, cap)
		if total <= cap {
			return buf[:total], nil
		}
		cap = total
	}
	return nil, fmt.Errorf("pluginabi: %q: treasury_export_importers did not converge after reallocation", l.path)
}
