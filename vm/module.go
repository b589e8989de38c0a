package vm

import (
	"fmt"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

// Module is a named namespace. Top-level frames execute against a
// module's attribute table, and functions remember the module they were
// defined in.
type Module struct {
	Name string

	mu    sync.RWMutex
	attrs map[string]Value
}

// NewModule creates an empty module with __name__ set.
func NewModule(name string) *Module {
	m := &Module{Name: name, attrs: make(map[string]Value)}
	m.attrs["__name__"] = MakeStr(name)
	return m
}

// Get looks up a module attribute.
func (m *Module) Get(name string) (Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.attrs[name]
	return v, ok
}

// Set stores a module attribute.
func (m *Module) Set(name string, v Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attrs[name] = v
}

// Delete removes a module attribute, reporting whether it existed.
func (m *Module) Delete(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attrs[name]; !ok {
		return false
	}
	delete(m.attrs, name)
	return true
}

// AttrNames returns the attribute names, sorted.
func (m *Module) AttrNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.attrs))
	for name := range m.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Module cache
// ---------------------------------------------------------------------------

// ModuleLoader resolves a module name to a loaded module. Loaders that
// execute top-level code should add the module to the cache before
// running it, so circular imports observe the partial module the way
// Python does.
type ModuleLoader func(name string) (*Module, error)

// ModuleCache is the import table. A name is loaded at most once; every
// importer of the same name receives the identical module handle.
type ModuleCache struct {
	mu       sync.Mutex
	modules  map[string]*Module
	inflight map[string]chan struct{}
	loader   ModuleLoader
}

// NewModuleCache creates a cache backed by loader. A nil loader makes
// every miss an ImportError.
func NewModuleCache(loader ModuleLoader) *ModuleCache {
	return &ModuleCache{
		modules:  make(map[string]*Module),
		inflight: make(map[string]chan struct{}),
		loader:   loader,
	}
}

// SetLoader replaces the loader used on cache misses.
func (c *ModuleCache) SetLoader(loader ModuleLoader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loader = loader
}

// Import returns the cached module or loads it. Concurrent importers of
// a missing name wait for the single load instead of loading again.
func (c *ModuleCache) Import(name string) (*Module, error) {
	for {
		c.mu.Lock()
		if m, ok := c.modules[name]; ok {
			c.mu.Unlock()
			return m, nil
		}
		if ch, ok := c.inflight[name]; ok {
			c.mu.Unlock()
			<-ch
			continue
		}
		loader := c.loader
		if loader == nil {
			c.mu.Unlock()
			return nil, NewImportError(fmt.Sprintf("No module named '%s'", name))
		}
		ch := make(chan struct{})
		c.inflight[name] = ch
		c.mu.Unlock()

		m, err := loader(name)

		c.mu.Lock()
		delete(c.inflight, name)
		close(ch)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		if existing, ok := c.modules[name]; ok {
			// The loader registered it itself (circular import path).
			c.mu.Unlock()
			return existing, nil
		}
		m.Set("__name__", MakeStr(name))
		c.modules[name] = m
		c.mu.Unlock()
		return m, nil
	}
}

// Get returns a cached module without loading.
func (c *ModuleCache) Get(name string) (*Module, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.modules[name]
	return m, ok
}

// Add registers a module under its name, returning the registered
// handle. If the name is already present the existing module wins.
func (c *ModuleCache) Add(m *Module) *Module {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.modules[m.Name]; ok {
		return existing
	}
	c.modules[m.Name] = m
	return m
}

// Remove drops a module from the cache, reporting whether it was there.
// A later import loads it fresh.
func (c *ModuleCache) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.modules[name]; !ok {
		return false
	}
	delete(c.modules, name)
	return true
}

// Names returns the cached module names, sorted.
func (c *ModuleCache) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.modules))
	for name := range c.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
