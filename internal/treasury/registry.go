package treasury

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Registry ensures the server instantiates at most one Treasury per
// canonicalized base path, per §9's "process-wide state" note.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Treasury
}

// NewRegistry constructs an empty process-wide treasury registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]*Treasury)}
}

// Open returns the already-open Treasury for base if one exists,
// otherwise opens and registers a new one. Concurrent Open calls for
// the same path never produce two distinct instances.
func (reg *Registry) Open(base string) (*Treasury, error) {
	return reg.OpenWithInit(base, true)
}

// OpenWithInit is Open with the protocol's init flag: when init is
// false, the base directory must already exist (it is the difference
// between "open my treasury" and "create a treasury here").
func (reg *Registry) OpenWithInit(base string, init bool) (*Treasury, error) {
	canonical, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if t, ok := reg.instances[canonical]; ok {
		return t, nil
	}

	if !init {
		fi, err := os.Stat(canonical)
		if err != nil {
			return nil, fmt.Errorf("treasury: opening %q: %w", canonical, err)
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("treasury: %q is not a directory", canonical)
		}
	} else if err := os.MkdirAll(canonical, 0o755); err != nil {
		return nil, fmt.Errorf("treasury: creating %q: %w", canonical, err)
	}

	t, err := Open(canonical)
	if err != nil {
		return nil, err
	}
	reg.instances[canonical] = t
	return t, nil
}
