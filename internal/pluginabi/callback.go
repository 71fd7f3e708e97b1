package pluginabi

import (
	"unsafe"

	"github.com/ebitengine/purego"
)

// boundCallback pairs a C-callable function pointer (built from a Go
// closure via purego.NewCallback) with the opaque value the plugin
// must pass back on every invocation. Treasury doesn't need the
// opaque value for anything beyond satisfying the ABI shape since the
// closures already capture their Go-side state directly; it is always
// zero.
type boundCallback struct {
	opaque uintptr
	fnPtr  uintptr
}

// newSourcesCallback builds the C-callable Sources.get function for
// one Import call. The release func must be called once the importer
// call returns; purego callbacks are only valid while referenced, and
// keeping one alive past its Import call would let the plugin invoke
// stale Go state.
func newSourcesCallback(get SourcesGetter) (boundCallback, func()) {
	fn := func(opaque uintptr, urlPtr uintptr, urlLen uint32, outPtr uintptr, outLenPtr uintptr) int32 {
		url := ptrToString(urlPtr, urlLen)
		path, found, err := get(url)
		if err != nil {
			return OtherError
		}
		if !found {
			return NotFound
		}
		pathBytes, err := encodeOSPath(path)
		if err != nil {
			return NotUTF8
		}
		outLen := (*uint32)(unsafe.Pointer(outLenPtr))
		if uint32(len(pathBytes)) > *outLen {
			*outLen = uint32(len(pathBytes))
			return BufferTooSmall
		}
		if len(pathBytes) > 0 {
			dst := unsafe.Slice((*byte)(unsafe.Pointer(outPtr)), *outLen)
			copy(dst, pathBytes)
		}
		*outLen = uint32(len(pathBytes))
		return Success
	}
	ptr := purego.NewCallback(fn)
	return boundCallback{opaque: 0, fnPtr: ptr}, func() {}
}

// newDependenciesCallback builds the C-callable Dependencies.get
// function for one Import call.
func newDependenciesCallback(get DependenciesGetter) (boundCallback, func()) {
	fn := func(opaque uintptr, urlPtr uintptr, urlLen uint32, targetPtr uintptr, targetLen uint32, outIDPtr uintptr) int32 {
		url := ptrToString(urlPtr, urlLen)
		target := ptrToString(targetPtr, targetLen)
		id, found, err := get(url, target)
		if err != nil {
			return OtherError
		}
		if !found {
			return NotFound
		}
		*(*uint64)(unsafe.Pointer(outIDPtr)) = id
		return Success
	}
	ptr := purego.NewCallback(fn)
	return boundCallback{opaque: 0, fnPtr: ptr}, func() {}
}

func ptrToString(ptr uintptr, length uint32) string {
	if length == 0 {
		return ""
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), length)
	return string(b)
}
