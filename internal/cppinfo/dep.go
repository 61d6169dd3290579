package cppinfo

// DepCppInfo presents one dependency's CppInfo as the aggregate view a
// consumer sees: top-level values concatenated with every component's
// contribution, directory fields resolved to absolute filtered paths,
// and libs emitted in component link order.
//
// Path lists, libs and build modules are memoized on first access;
// CppInfo is frozen once a package is installed, so no invalidation is
// needed. The other value lists are recomputed on every call.
type DepCppInfo struct {
	cpp *CppInfo

	libs         []string
	libsErr      error
	libsDone     bool
	includePaths []string
	libPaths     []string
	binPaths     []string
	buildPaths   []string
	resPaths     []string
	srcPaths     []string
	frameworkPaths []string
	buildModules []string
}

// NewDep wraps a CppInfo.
func NewDep(cpp *CppInfo) *DepCppInfo {
	return &DepCppInfo{cpp: cpp}
}

// Name returns the wrapped package name.
func (d *DepCppInfo) Name() string { return d.cpp.Name }

// GetName returns the generator-specific name.
func (d *DepCppInfo) GetName(generator string) string { return d.cpp.GetName(generator) }

// Version returns the wrapped package version.
func (d *DepCppInfo) Version() string { return d.cpp.Version }

// RootPath returns the package root.
func (d *DepCppInfo) RootPath() string { return d.cpp.RootPath }

// Raw returns the wrapped CppInfo.
func (d *DepCppInfo) Raw() *CppInfo { return d.cpp }

// Configs returns the wrapped overlays.
func (d *DepCppInfo) Configs() map[string]*CppInfo { return d.cpp.Configs() }

func (d *DepCppInfo) paths(cache *[]string, pick func(*CppInfo) []string, pickComp func(*Component) []string) []string {
	if *cache == nil {
		out := filterPaths(d.cpp.RootPath, pick(d.cpp), d.cpp.FilterEmpty)
		for _, name := range d.cpp.ComponentNames() {
			out = append(out, filterPaths(d.cpp.RootPath, pickComp(d.cpp.components[name]), d.cpp.FilterEmpty)...)
		}
		if out == nil {
			out = []string{}
		}
		*cache = out
	}
	return *cache
}

// IncludePaths returns absolute, filtered include directories.
func (d *DepCppInfo) IncludePaths() []string {
	return d.paths(&d.includePaths,
		func(c *CppInfo) []string { return c.IncludeDirs },
		func(c *Component) []string { return c.IncludeDirs })
}

// LibPaths returns absolute, filtered library directories.
func (d *DepCppInfo) LibPaths() []string {
	return d.paths(&d.libPaths,
		func(c *CppInfo) []string { return c.LibDirs },
		func(c *Component) []string { return c.LibDirs })
}

// BinPaths returns absolute, filtered binary directories.
func (d *DepCppInfo) BinPaths() []string {
	return d.paths(&d.binPaths,
		func(c *CppInfo) []string { return c.BinDirs },
		func(c *Component) []string { return c.BinDirs })
}

// BuildPaths returns absolute, filtered build directories.
func (d *DepCppInfo) BuildPaths() []string {
	return d.paths(&d.buildPaths,
		func(c *CppInfo) []string { return c.BuildDirs },
		func(c *Component) []string { return c.BuildDirs })
}

// ResPaths returns absolute, filtered resource directories.
func (d *DepCppInfo) ResPaths() []string {
	return d.paths(&d.resPaths,
		func(c *CppInfo) []string { return c.ResDirs },
		func(c *Component) []string { return c.ResDirs })
}

// SrcPaths returns absolute, filtered source directories.
func (d *DepCppInfo) SrcPaths() []string {
	return d.paths(&d.srcPaths,
		func(c *CppInfo) []string { return c.SrcDirs },
		func(c *Component) []string { return c.SrcDirs })
}

// FrameworkPaths returns absolute, filtered framework directories.
func (d *DepCppInfo) FrameworkPaths() []string {
	return d.paths(&d.frameworkPaths,
		func(c *CppInfo) []string { return c.FrameworkDirs },
		func(c *Component) []string { return c.FrameworkDirs })
}

// BuildModulesPaths returns absolute build module files, unfiltered
// (they are files, not directories).
func (d *DepCppInfo) BuildModulesPaths() []string {
	if d.buildModules == nil {
		out := filterPaths(d.cpp.RootPath, d.cpp.BuildModules, false)
		for _, name := range d.cpp.ComponentNames() {
			out = append(out, filterPaths(d.cpp.RootPath, d.cpp.components[name].BuildModules, false)...)
		}
		d.buildModules = out
	}
	return d.buildModules
}

func (d *DepCppInfo) values(pick func(*CppInfo) []string, pickComp func(*Component) []string) []string {
	out := append([]string(nil), pick(d.cpp)...)
	for _, name := range d.cpp.ComponentNames() {
		out = append(out, pickComp(d.cpp.components[name])...)
	}
	return out
}

// SystemLibs aggregates system libraries.
func (d *DepCppInfo) SystemLibs() []string {
	return d.values(func(c *CppInfo) []string { return c.SystemLibs },
		func(c *Component) []string { return c.SystemLibs })
}

// Frameworks aggregates frameworks.
func (d *DepCppInfo) Frameworks() []string {
	return d.values(func(c *CppInfo) []string { return c.Frameworks },
		func(c *Component) []string { return c.Frameworks })
}

// Defines aggregates preprocessor definitions.
func (d *DepCppInfo) Defines() []string {
	return d.values(func(c *CppInfo) []string { return c.Defines },
		func(c *Component) []string { return c.Defines })
}

// CFlags aggregates C compiler flags.
func (d *DepCppInfo) CFlags() []string {
	return d.values(func(c *CppInfo) []string { return c.CFlags },
		func(c *Component) []string { return c.CFlags })
}

// CxxFlags aggregates C++ compiler flags.
func (d *DepCppInfo) CxxFlags() []string {
	return d.values(func(c *CppInfo) []string { return c.CxxFlags },
		func(c *Component) []string { return c.CxxFlags })
}

// SharedLinkFlags aggregates shared-library linker flags.
func (d *DepCppInfo) SharedLinkFlags() []string {
	return d.values(func(c *CppInfo) []string { return c.SharedLinkFlags },
		func(c *Component) []string { return c.SharedLinkFlags })
}

// ExeLinkFlags aggregates executable linker flags.
func (d *DepCppInfo) ExeLinkFlags() []string {
	return d.values(func(c *CppInfo) []string { return c.ExeLinkFlags },
		func(c *Component) []string { return c.ExeLinkFlags })
}

// Libs returns the libraries to link, in link order. Without
// components this is the top-level list; with components, libs follow
// the topological order of the component requires DAG so that a
// component's libs precede the libs of everything it requires.
func (d *DepCppInfo) Libs() ([]string, error) {
	if d.libsDone {
		return d.libs, d.libsErr
	}
	d.libsDone = true
	if !d.cpp.HasComponents() {
		d.libs = append([]string(nil), d.cpp.Libs...)
		return d.libs, nil
	}
	if err := d.cpp.Validate(); err != nil {
		d.libsErr = err
		return nil, err
	}
	order, err := d.componentLinkOrder()
	if err != nil {
		d.libsErr = err
		return nil, err
	}
	var libs []string
	for _, name := range order {
		libs = append(libs, d.cpp.components[name].Libs...)
	}
	d.libs = libs
	return d.libs, nil
}

// componentLinkOrder sorts components so dependents come before their
// requirements: a DFS postorder over the requires DAG, reversed as a
// whole, with roots visited in sorted name order.
func (d *DepCppInfo) componentLinkOrder() ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(d.cpp.components))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return &DependencyLoopError{Package: d.cpp.Name}
		}
		state[name] = visiting
		for _, req := range d.cpp.components[name].Requires {
			if err := visit(req); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range d.cpp.ComponentNames() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	// Postorder lists requirements first; reverse for link order.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}
