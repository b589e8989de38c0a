// Package manifest handles monty.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("manifest")

// Manifest represents a monty.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Modules Modules `toml:"modules"`
	Interp  Interp  `toml:"interp"`
	Server  Server  `toml:"server"`
	Store   Store   `toml:"store"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the monty.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Modules configures program image locations and the entry module.
type Modules struct {
	Paths []string `toml:"paths"`
	Entry string   `toml:"entry"`
}

// Interp configures interpreter limits and profiling.
type Interp struct {
	MaxDepth     int  `toml:"max-depth"`
	Profile      bool `toml:"profile"`
	HotThreshold int  `toml:"hot-threshold"`
}

// Server configures the exec service.
type Server struct {
	Listen string `toml:"listen"`
}

// Store configures the on-disk databases.
type Store struct {
	Path        string `toml:"path"`
	ProfilePath string `toml:"profile-path"`
}

// Log configures logging verbosity.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Load parses a monty.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "monty.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	// Schema check runs on the raw tree so unknown keys and
	// out-of-range values are reported before decoding.
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := validate(raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()

	log.Debugf("loaded %s", path)
	return &m, nil
}

// FindAndLoad walks up from startDir to find a monty.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "monty.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Default creates a manifest with defaults applied, rooted at dir. Used
// when no monty.toml exists.
func Default(dir string) *Manifest {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	m := &Manifest{Dir: abs}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if len(m.Modules.Paths) == 0 {
		m.Modules.Paths = []string{"modules"}
	}
	if m.Interp.MaxDepth == 0 {
		m.Interp.MaxDepth = 1000
	}
	if m.Interp.HotThreshold == 0 {
		m.Interp.HotThreshold = 100
	}
	if m.Server.Listen == "" {
		m.Server.Listen = ":7821"
	}
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(".monty", "modules.db")
	}
	if m.Store.ProfilePath == "" {
		m.Store.ProfilePath = filepath.Join(".monty", "profile.db")
	}
}

// ModulePaths returns absolute paths for the configured module directories.
func (m *Manifest) ModulePaths() []string {
	var paths []string
	for _, d := range m.Modules.Paths {
		paths = append(paths, m.join(d))
	}
	return paths
}

// StorePath returns the absolute path of the module store database.
func (m *Manifest) StorePath() string {
	return m.join(m.Store.Path)
}

// ProfileStorePath returns the absolute path of the profile database.
func (m *Manifest) ProfileStorePath() string {
	return m.join(m.Store.ProfilePath)
}

func (m *Manifest) join(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
