package cppinfo

// DepsCppInfo aggregates the metadata of every dependency, in
// declaration order, into the single view a consumer's build system
// uses. Directory and library fields append dependencies after earlier
// entries; defines and flags prepend them, preserving
// last-defined-wins for the consumer.
type DepsCppInfo struct {
	SysRoot string

	IncludeDirs   []string
	SrcDirs       []string
	LibDirs       []string
	BinDirs       []string
	ResDirs       []string
	BuildDirs     []string
	FrameworkDirs []string
	RootPaths     []string

	Libs            []string
	SystemLibs      []string
	Frameworks      []string
	Defines         []string
	CFlags          []string
	CxxFlags        []string
	SharedLinkFlags []string
	ExeLinkFlags    []string
	BuildModules    []string

	depOrder []string
	deps     map[string]*DepCppInfo
	configs  map[string]*DepsCppInfo
}

// NewDeps returns an empty aggregate.
func NewDeps() *DepsCppInfo {
	return &DepsCppInfo{
		deps:    make(map[string]*DepCppInfo),
		configs: make(map[string]*DepsCppInfo),
	}
}

// mergeLists appends extra after base, dropping base entries that
// reappear in extra so the later position wins.
func mergeLists(base, extra []string) []string {
	in := make(map[string]bool, len(extra))
	for _, s := range extra {
		in[s] = true
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range base {
		if !in[s] {
			out = append(out, s)
		}
	}
	return append(out, extra...)
}

// Add merges one package's CppInfo into the aggregate. Packages must be
// added in dependency declaration order. It fails when the package's
// component declaration is invalid or its component graph has a loop.
func (d *DepsCppInfo) Add(pkgName string, cpp *CppInfo) error {
	if err := cpp.Validate(); err != nil {
		return err
	}
	dep := NewDep(cpp)
	libs, err := dep.Libs()
	if err != nil {
		return err
	}

	d.SystemLibs = mergeLists(d.SystemLibs, dep.SystemLibs())
	d.IncludeDirs = mergeLists(d.IncludeDirs, dep.IncludePaths())
	d.SrcDirs = mergeLists(d.SrcDirs, dep.SrcPaths())
	d.LibDirs = mergeLists(d.LibDirs, dep.LibPaths())
	d.BinDirs = mergeLists(d.BinDirs, dep.BinPaths())
	d.ResDirs = mergeLists(d.ResDirs, dep.ResPaths())
	d.BuildDirs = mergeLists(d.BuildDirs, dep.BuildPaths())
	d.FrameworkDirs = mergeLists(d.FrameworkDirs, dep.FrameworkPaths())
	d.Libs = mergeLists(d.Libs, libs)
	d.Frameworks = mergeLists(d.Frameworks, dep.Frameworks())
	d.RootPaths = append(d.RootPaths, dep.RootPath())

	// Reverse order: the dependency's values go first so the
	// consumer's own definitions stay last and win.
	d.Defines = mergeLists(dep.Defines(), d.Defines)
	d.CFlags = mergeLists(dep.CFlags(), d.CFlags)
	d.CxxFlags = mergeLists(dep.CxxFlags(), d.CxxFlags)
	d.SharedLinkFlags = mergeLists(dep.SharedLinkFlags(), d.SharedLinkFlags)
	d.ExeLinkFlags = mergeLists(dep.ExeLinkFlags(), d.ExeLinkFlags)
	d.BuildModules = mergeLists(d.BuildModules, dep.BuildModulesPaths())

	// The first dependency that declares a sysroot wins.
	if d.SysRoot == "" {
		d.SysRoot = cpp.SysRoot
	}

	if _, ok := d.deps[pkgName]; !ok {
		d.depOrder = append(d.depOrder, pkgName)
	}
	d.deps[pkgName] = dep

	for cfgName, cfgInfo := range dep.Configs() {
		cfg, ok := d.configs[cfgName]
		if !ok {
			cfg = NewDeps()
			d.configs[cfgName] = cfg
		}
		if err := cfg.Add(pkgName, cfgInfo); err != nil {
			return err
		}
	}
	return nil
}

// Dependency returns the aggregated view of one package, or nil.
func (d *DepsCppInfo) Dependency(name string) *DepCppInfo {
	return d.deps[name]
}

// Deps returns the package names in the order they were added.
func (d *DepsCppInfo) Deps() []string {
	return append([]string(nil), d.depOrder...)
}

// Config returns the aggregate for a named config overlay, creating an
// empty one if no dependency declared it.
func (d *DepsCppInfo) Config(name string) *DepsCppInfo {
	cfg, ok := d.configs[name]
	if !ok {
		cfg = NewDeps()
		d.configs[name] = cfg
	}
	return cfg
}

// RootPath returns the first dependency's root, matching the behavior
// consumers rely on for single-dependency graphs.
func (d *DepsCppInfo) RootPath() string {
	if len(d.RootPaths) > 0 {
		return d.RootPaths[0]
	}
	return ""
}
