// Package cppinfo models the per-package build metadata consumers need:
// include paths, libraries, flags and named sub-components, plus the
// aggregation logic generators use to emit build files.
package cppinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Default directory layout inside an installed package.
const (
	DefaultInclude   = "include"
	DefaultLib       = "lib"
	DefaultBin       = "bin"
	DefaultRes       = "res"
	DefaultBuild     = ""
	DefaultFramework = "Frameworks"
)

// Component is a named sub-target within a package: its own dirs, libs
// and flags, plus internal dependencies on sibling components declared
// through Requires. Components cannot carry nested configs.
type Component struct {
	Name     string
	Names    map[string]string
	Requires []string

	IncludeDirs   []string
	SrcDirs       []string
	LibDirs       []string
	ResDirs       []string
	BinDirs       []string
	BuildDirs     []string
	FrameworkDirs []string

	Libs            []string
	SystemLibs      []string
	Frameworks      []string
	Defines         []string
	CFlags          []string
	CxxFlags        []string
	SharedLinkFlags []string
	ExeLinkFlags    []string
	BuildModules    []string
}

// GetName returns the component's name for a generator, honoring
// per-generator overrides.
func (c *Component) GetName(generator string) string {
	if n, ok := c.Names[generator]; ok {
		return n
	}
	return c.Name
}

// CppInfo is the build information one package declares for its
// consumers. Directories are relative to RootPath at declaration time
// and resolved to absolute paths on aggregation.
type CppInfo struct {
	Name        string
	Names       map[string]string
	Version     string
	Description string
	RootPath    string
	SysRoot     string

	// FilterEmpty drops directories that do not exist on disk when
	// paths are resolved. Editable packages keep empty dirs.
	FilterEmpty bool

	IncludeDirs   []string
	SrcDirs       []string
	LibDirs       []string
	ResDirs       []string
	BinDirs       []string
	BuildDirs     []string
	FrameworkDirs []string

	Libs            []string
	SystemLibs      []string
	Frameworks      []string
	Defines         []string
	CFlags          []string
	CxxFlags        []string
	SharedLinkFlags []string
	ExeLinkFlags    []string
	BuildModules    []string

	components map[string]*Component
	configs    map[string]*CppInfo
}

// New returns a CppInfo rooted at rootPath with the default layout.
func New(rootPath string) *CppInfo {
	return &CppInfo{
		RootPath:      rootPath,
		FilterEmpty:   true,
		Names:         make(map[string]string),
		IncludeDirs:   []string{DefaultInclude},
		LibDirs:       []string{DefaultLib},
		BinDirs:       []string{DefaultBin},
		ResDirs:       []string{DefaultRes},
		BuildDirs:     []string{DefaultBuild},
		FrameworkDirs: []string{DefaultFramework},
		components:    make(map[string]*Component),
		configs:       make(map[string]*CppInfo),
	}
}

// GetName returns the package's name for a generator, honoring
// per-generator overrides.
func (c *CppInfo) GetName(generator string) string {
	if n, ok := c.Names[generator]; ok {
		return n
	}
	return c.Name
}

// Component returns the named component, creating it on first use.
func (c *CppInfo) Component(name string) *Component {
	comp, ok := c.components[name]
	if !ok {
		comp = &Component{Name: name, Names: make(map[string]string)}
		c.components[name] = comp
	}
	return comp
}

// Components returns the declared components keyed by name.
func (c *CppInfo) Components() map[string]*Component {
	return c.components
}

// HasComponents reports whether any component is declared.
func (c *CppInfo) HasComponents() bool {
	return len(c.components) > 0
}

// ComponentNames returns the component names, sorted, for deterministic
// aggregation of unordered fields.
func (c *CppInfo) ComponentNames() []string {
	names := make([]string, 0, len(c.components))
	for n := range c.components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config returns the named additive overlay (release, debug, ...),
// creating it on first use. Overlays start with the default layout so
// per-config dirs add to the base ones.
func (c *CppInfo) Config(name string) *CppInfo {
	cfg, ok := c.configs[name]
	if !ok {
		cfg = New(c.RootPath)
		cfg.FilterEmpty = c.FilterEmpty
		c.configs[name] = cfg
	}
	return cfg
}

// Configs returns the declared overlays keyed by config name.
func (c *CppInfo) Configs() map[string]*CppInfo {
	return c.configs
}

// Validate checks the structural invariants: top-level libs and
// components are mutually exclusive, and every component requirement
// names a sibling component.
func (c *CppInfo) Validate() error {
	if c.HasComponents() && (len(c.Libs) > 0 || len(c.SystemLibs) > 0) {
		return &ConfigError{
			Package: c.Name,
			Reason:  "cannot declare both top-level libs and components",
		}
	}
	for _, name := range c.ComponentNames() {
		for _, req := range c.components[name].Requires {
			if _, ok := c.components[req]; !ok {
				return &MissingComponentError{Package: c.Name, Component: name, Missing: req}
			}
		}
	}
	return nil
}

// filterPaths resolves paths against root and, when filterEmpty is set,
// keeps only directories that exist.
func filterPaths(root string, paths []string, filterEmpty bool) []string {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		abs = append(abs, p)
	}
	if !filterEmpty {
		return abs
	}
	existing := abs[:0]
	for _, p := range abs {
		if st, err := os.Stat(p); err == nil && st.IsDir() {
			existing = append(existing, p)
		}
	}
	return existing
}

// ConfigError is a structural misuse of a CppInfo declaration.
type ConfigError struct {
	Package string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("package %q: %s", e.Package, e.Reason)
}

// MissingComponentError reports a component requirement that names no
// declared component.
type MissingComponentError struct {
	Package   string
	Component string
	Missing   string
}

func (e *MissingComponentError) Error() string {
	return fmt.Sprintf("package %q: component %q requires undeclared component %q",
		e.Package, e.Component, e.Missing)
}

// DependencyLoopError reports a cycle in a package's component graph.
type DependencyLoopError struct {
	Package string
}

func (e *DependencyLoopError) Error() string {
	return fmt.Sprintf("package %q: loop detected in component requires", e.Package)
}
