package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/monty/vm"
)

// NewLoader returns a module loader that serves imports from the store
// first, then from .mprg program files on the search paths. Disk hits
// are cached back into the store so later processes skip the file read.
// Dotted module names map to nested directories.
//
// Install with vm.SetLoader. The loader runs the module's top-level
// code, so imports triggered mid-program execute on the same goroutine
// as the importing frame.
func NewLoader(v *vm.VM, s *Store, searchPaths []string) vm.ModuleLoader {
	return func(name string) (*vm.Module, error) {
		if s != nil {
			image, err := s.Get(name)
			switch {
			case err == nil:
				_, code, derr := vm.DecodeProgram(image)
				if derr != nil {
					return nil, fmt.Errorf("stored image for %s: %w", name, derr)
				}
				return v.RunModule(name, code)
			case !errors.Is(err, ErrModuleNotFound):
				return nil, err
			}
		}

		rel := strings.ReplaceAll(name, ".", string(filepath.Separator)) + ".mprg"
		for _, dir := range searchPaths {
			path := filepath.Join(dir, rel)
			data, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}

			_, code, err := vm.DecodeProgram(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if s != nil {
				if err := s.Put(name, code.QualName, data); err != nil {
					log.Warningf("caching %s: %v", name, err)
				}
			}
			return v.RunModule(name, code)
		}

		return nil, vm.NewImportError(fmt.Sprintf("No module named '%s'", name))
	}
}
