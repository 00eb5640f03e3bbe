package registry

import (
	"sync"

	"github.com/cuemby/tunnelgroup/pkg/metrics"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

// Entry is a registered controller and the file its configuration lives in
type Entry struct {
	Controller types.Controller
	ConfigFile string
}

// Registry is the ordered list of live controllers. Order is insertion
// order; indices are used as tunnel.<i> prefixes when saving.
type Registry struct {
	entries []Entry
	mu      sync.RWMutex
}

// New creates an empty registry
func New() *Registry {
	return &Registry{}
}

// Add appends a controller. The same controller may be added twice.
func (r *Registry) Add(c types.Controller, configFile string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, Entry{Controller: c, ConfigFile: configFile})
	metrics.ControllersTotal.Set(float64(len(r.entries)))
}

// Remove stops c, collects its pending messages and drops its first entry.
// The returned messages end with a removal notice. A controller that is not
// registered still gets stopped.
func (r *Registry) Remove(c types.Controller) []string {
	if c == nil {
		return nil
	}

	c.Stop()
	msgs := c.ClearMessages()

	r.mu.Lock()
	for i, e := range r.entries {
		if e.Controller == c {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			break
		}
	}
	metrics.ControllersTotal.Set(float64(len(r.entries)))
	r.mu.Unlock()

	return append(msgs, "Tunnel "+c.Name()+" removed")
}

// Snapshot returns a copy of the entries, safe to iterate while the
// registry changes.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Controllers returns a copy of the registered controllers in order
func (r *Registry) Controllers() []types.Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Controller, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Controller
	}
	return out
}

// ConfigFile returns the file c was registered with
func (r *Registry) ConfigFile(c types.Controller) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Controller == c {
			return e.ConfigFile, true
		}
	}
	return "", false
}

// SetConfigFile moves the first entry of c to file. It reports whether c
// is registered.
func (r *Registry) SetConfigFile(c types.Controller, file string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.Controller == c {
			r.entries[i].ConfigFile = file
			return true
		}
	}
	return false
}

// IndexOf returns the position of c, or -1
func (r *Registry) IndexOf(c types.Controller) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, e := range r.entries {
		if e.Controller == c {
			return i
		}
	}
	return -1
}

// ForEach calls fn for each entry under the read lock. fn must not modify
// the registry.
func (r *Registry) ForEach(fn func(i int, e Entry)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, e := range r.entries {
		fn(i, e)
	}
}

// Clear destroys every controller and empties the registry
func (r *Registry) Clear() {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	metrics.ControllersTotal.Set(0)
	r.mu.Unlock()

	for _, e := range entries {
		e.Controller.Destroy()
	}
}

// Len returns the number of entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
