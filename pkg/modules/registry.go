package modules

import (
	"fmt"
	"sync"

	"vigil/pkg/errors"
	"vigil/pkg/logger"
)

// Registry holds the modules a process can run, in registration order.
type Registry struct {
	mutex    sync.RWMutex
	modules  map[string]Module
	order    []string
	defaults []string
	logger   *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Default()
	}
	return &Registry{
		modules: make(map[string]Module),
		logger:  log,
	}
}

func (r *Registry) Register(m Module) error {
	if m.Name == "" {
		return fmt.Errorf("module name is required")
	}
	if m.Run == nil {
		return fmt.Errorf("module %s has no run function", m.Name)
	}
	if !m.Category.Valid() {
		return errors.NewConfigError("category", m.Category, "must be quick, deep or security")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.modules[m.Name]; exists {
		return fmt.Errorf("module %s already registered", m.Name)
	}
	r.modules[m.Name] = m
	r.order = append(r.order, m.Name)
	return nil
}

// SetDefaults sets the modules used when a scan requests none. Every name
// must already be registered.
func (r *Registry) SetDefaults(names []string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, n := range names {
		if _, ok := r.modules[n]; !ok {
			return fmt.Errorf("default module %s: %w", n, errors.ErrModuleNotFound)
		}
	}
	r.defaults = append([]string(nil), names...)
	return nil
}

func (r *Registry) Get(name string) (Module, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, ok := r.modules[name]
	return m, ok
}

func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Defaults() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]string(nil), r.defaults...)
}

func (r *Registry) IsDefault(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, d := range r.defaults {
		if d == name {
			return true
		}
	}
	return false
}

func (r *Registry) List() []Module {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]Module, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.modules[n])
	}
	return out
}

// Resolve maps requested names to modules. An empty request selects the
// defaults. Unknown names are skipped. The result follows registration
// order regardless of the order requested.
func (r *Registry) Resolve(requested []string) []Module {
	if len(requested) == 0 {
		requested = r.Defaults()
	}

	want := make(map[string]bool, len(requested))
	for _, n := range requested {
		want[n] = true
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var out []Module
	for _, n := range r.order {
		if want[n] {
			out = append(out, r.modules[n])
			delete(want, n)
		}
	}

	for n := range want {
		r.logger.WithFields(logger.Fields{"module": n}).Debug("Skipping unknown module")
	}

	return out
}
