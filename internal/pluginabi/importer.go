package pluginabi

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/text/encoding/unicode"
)

// Importer is one callable importer exported by a loaded Library. It
// holds a reference to the owning Library so the dynamic library is
// never unloaded while this importer could still be invoked.
type Importer struct {
	Descriptor

	lib      *Library
	opaque   uintptr
	importFn func(
		importer uintptr,
		srcPtr uintptr, srcLen uint32,
		outPtr uintptr, outLen uint32,
		srcCBOpaque uintptr, srcCBFn uintptr,
		depCBOpaque uintptr, depCBFn uintptr,
		resultPtr uintptr, resultLenPtr uintptr,
	) int32
}

// Importers re-fetches and binds every importer a Library exports.
// Load already returns Descriptors for discovery/registration; callers
// that need to actually invoke an importer build the bound Importer
// set once via this call and keep it for the library's lifetime.
func (l *Library) Importers() ([]*Importer, error) {
	records, err := l.fetchImporters()
	if err != nil {
		return nil, err
	}
	out := make([]*Importer, len(records))
	for i := range records {
		r := records[i]
		var fn func(
			importer uintptr,
			srcPtr uintptr, srcLen uint32,
			outPtr uintptr, outLen uint32,
			srcCBOpaque uintptr, srcCBFn uintptr,
			depCBOpaque uintptr, depCBFn uintptr,
			resultPtr uintptr, resultLenPtr uintptr,
		) int32
		purego.RegisterFunc(&fn, r.ImportFn)
		out[i] = &Importer{
			Descriptor: descriptorFromFFI(&r),
			lib:        l,
			opaque:     r.Importer,
			importFn:   fn,
		}
	}
	return out, nil
}

// SourcesGetter resolves a relative-or-absolute URL to a local OS path,
// the host-side implementation of the import engine's sources
// callback (see §4.5/§4.6).
type SourcesGetter func(url string) (path string, found bool, err error)

// DependenciesGetter resolves (url, target) to a previously recorded
// non-zero asset id.
type DependenciesGetter func(url, target string) (id uint64, found bool, err error)

// CallResult is the outcome of invoking an importer: either success
// (the output path was written), or one of the two "needs more data"
// signals, or a fatal error.
type CallResult struct {
	Code         int32
	Dependencies []DependencyRequest
	Sources      []string
	ErrorMessage string
}

// Import invokes the importer on src, writing its output to out. The
// callbacks are called synchronously and re-entrantly from within the
// plugin's native code; they must not block on anything the plugin
// itself could be waiting on.
func (im *Importer) Import(src, out string, sources SourcesGetter, deps DependenciesGetter) (CallResult, error) {
	srcBytes, err := encodeOSPath(src)
	if err != nil {
		return CallResult{}, fmt.Errorf("pluginabi: encoding source path: %w", err)
	}
	outBytes, err := encodeOSPath(out)
	if err != nil {
		return CallResult{}, fmt.Errorf("pluginabi: encoding output path: %w", err)
	}

	sourcesCB, releaseSources := newSourcesCallback(sources)
	defer releaseSources()
	depsCB, releaseDeps := newDependenciesCallback(deps)
	defer releaseDeps()

	resultCap := uint32(4096)
	for attempt := 0; attempt < 4; attempt++ {
		result := make([]byte, resultCap)
		resultLen := uint32(len(result))

		code := im.importFn(
			im.opaque,
			bytesPtr(srcBytes), uint32(len(srcBytes)),
			bytesPtr(outBytes), uint32(len(outBytes)),
			sourcesCB.opaque, sourcesCB.fnPtr,
			depsCB.opaque, depsCB.fnPtr,
			uintptr(unsafe.Pointer(&result[0])), uintptr(unsafe.Pointer(&resultLen)),
		)
		runtime.KeepAlive(srcBytes)
		runtime.KeepAlive(outBytes)
		runtime.KeepAlive(result)

		if code == BufferTooSmall {
			resultCap = resultLen
			continue
		}
		return decodeCallResult(code, result[:min(resultLen, uint32(len(result)))])
	}
	return CallResult{}, fmt.Errorf("pluginabi: %s: result buffer negotiation did not converge", im.Name)
}

func decodeCallResult(code int32, buf []byte) (CallResult, error) {
	switch code {
	case Success:
		return CallResult{Code: code}, nil
	case RequireSources:
		list, err := decodeStringList(buf)
		if err != nil {
			return CallResult{}, err
		}
		return CallResult{Code: code, Sources: list}, nil
	case RequireDependencies:
		list, err := decodePairList(buf)
		if err != nil {
			return CallResult{}, err
		}
		return CallResult{Code: code, Dependencies: list}, nil
	case OtherError:
		return CallResult{Code: code, ErrorMessage: string(buf)}, nil
	case NotUTF8:
		return CallResult{}, fmt.Errorf("pluginabi: importer reported a non-UTF8 string crossing the ABI boundary")
	default:
		return CallResult{}, fmt.Errorf("pluginabi: importer returned unexpected code %d", code)
	}
}

func bytesPtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// encodeOSPath renders path in the import_fn's expected OS encoding:
// UTF-8 on POSIX, UTF-16LE on Windows.
func encodeOSPath(path string) ([]byte, error) {
	if runtime.GOOS != "windows" {
		return []byte(path), nil
	}
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	return enc.Bytes([]byte(path))
}
