package recipe

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/tsukumogami/hako/internal/cppinfo"
	"github.com/tsukumogami/hako/internal/ref"
)

// recipeFile mirrors the declarative TOML recipe format. Declarative
// recipes cover the common case; recipes needing conditional logic
// register hooks programmatically through a Provider.
type recipeFile struct {
	Package struct {
		Name        string   `toml:"name"`
		Version     string   `toml:"version"`
		User        string   `toml:"user"`
		Channel     string   `toml:"channel"`
		Description string   `toml:"description"`
		Settings    []string `toml:"settings"`
		ShortPaths  bool     `toml:"short_paths"`
		Alias       string   `toml:"alias"`
	} `toml:"package"`

	Options map[string]struct {
		Default string   `toml:"default"`
		Values  []string `toml:"values"`
	} `toml:"options"`

	Requires []struct {
		Ref      string `toml:"ref"`
		Private  bool   `toml:"private"`
		Override bool   `toml:"override"`
	} `toml:"requires"`

	// DepsOptions imposes option values on dependencies:
	// [deps_options.zlib] shared = "True"
	DepsOptions map[string]map[string]string `toml:"deps_options"`

	CppInfo *cppInfoFile `toml:"cppinfo"`
}

type cppInfoFile struct {
	IncludeDirs []string                     `toml:"includedirs"`
	LibDirs     []string                     `toml:"libdirs"`
	Libs        []string                     `toml:"libs"`
	SystemLibs  []string                     `toml:"system_libs"`
	Defines     []string                     `toml:"defines"`
	CFlags      []string                     `toml:"cflags"`
	CxxFlags    []string                     `toml:"cxxflags"`
	Components  map[string]cppInfoComponent `toml:"components"`
}

type cppInfoComponent struct {
	Libs     []string `toml:"libs"`
	Requires []string `toml:"requires"`
	Defines  []string `toml:"defines"`
}

// Load reads a declarative TOML recipe from path.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	return Parse(data)
}

// Parse decodes a declarative TOML recipe. The declared requirements
// are installed behind a requirements hook so diamond re-evaluation
// exercises the same save/restore path as programmatic recipes.
func Parse(data []byte) (*Recipe, error) {
	var rf recipeFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse recipe: %w", err)
	}
	if rf.Package.Name == "" {
		return nil, fmt.Errorf("recipe is missing package.name")
	}
	if rf.Package.Alias == "" && rf.Package.Version == "" {
		return nil, fmt.Errorf("recipe %q is missing package.version", rf.Package.Name)
	}

	r := New(rf.Package.Name, rf.Package.Version)
	r.User = rf.Package.User
	r.Channel = rf.Package.Channel
	r.Description = rf.Package.Description
	r.ShortPaths = rf.Package.ShortPaths
	r.Alias = rf.Package.Alias
	r.Settings.Declare(rf.Package.Settings...)

	for name, opt := range rf.Options {
		r.Options.Define(name, opt.Default, opt.Values...)
	}

	declared := NewRequirements()
	for _, req := range rf.Requires {
		parsed, err := ref.Parse(req.Ref)
		if err != nil {
			return nil, fmt.Errorf("recipe %q: %w", rf.Package.Name, err)
		}
		declared.Add(&Requirement{Ref: parsed, Private: req.Private, Override: req.Override})
	}
	depsOptions := rf.DepsOptions

	r.SetHook(HookRequirements, func(rc *Recipe) error {
		for _, req := range declared.List() {
			c := *req
			rc.Requires.Add(&c)
		}
		return nil
	})
	if len(depsOptions) > 0 {
		r.SetHook(HookConfigOptions, func(rc *Recipe) error {
			for pkg, vals := range depsOptions {
				for name, value := range vals {
					rc.Options.SetDep(pkg, name, value)
				}
			}
			return nil
		})
	}
	if rf.CppInfo != nil {
		info := rf.CppInfo
		r.SetHook(HookPackageInfo, func(rc *Recipe) error {
			if rc.CppInfo == nil {
				rc.CppInfo = cppinfo.New("")
			}
			c := rc.CppInfo
			c.Name = rc.Name
			c.Version = rc.Version
			if len(info.IncludeDirs) > 0 {
				c.IncludeDirs = info.IncludeDirs
			}
			if len(info.LibDirs) > 0 {
				c.LibDirs = info.LibDirs
			}
			c.Libs = append(c.Libs, info.Libs...)
			c.SystemLibs = append(c.SystemLibs, info.SystemLibs...)
			c.Defines = append(c.Defines, info.Defines...)
			c.CFlags = append(c.CFlags, info.CFlags...)
			c.CxxFlags = append(c.CxxFlags, info.CxxFlags...)
			for name, comp := range info.Components {
				target := c.Component(name)
				target.Libs = append(target.Libs, comp.Libs...)
				target.Requires = append(target.Requires, comp.Requires...)
				target.Defines = append(target.Defines, comp.Defines...)
			}
			return c.Validate()
		})
	}
	return r, nil
}
