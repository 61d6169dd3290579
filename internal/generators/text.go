package generators

import (
	"fmt"
	"strings"

	"github.com/tsukumogami/hako/internal/cppinfo"
)

func init() {
	register(&textGenerator{})
}

// textGenerator emits a single flat listing of the aggregate metadata,
// the lowest common denominator downstream tooling can parse.
type textGenerator struct{}

func (g *textGenerator) Name() string { return "txt" }

func (g *textGenerator) Content(deps *cppinfo.DepsCppInfo) (map[string]string, error) {
	var b strings.Builder
	writeList := func(header string, values []string) {
		fmt.Fprintf(&b, "[%s]\n", header)
		for _, v := range values {
			b.WriteString(v + "\n")
		}
		b.WriteString("\n")
	}

	writeList("includedirs", deps.IncludeDirs)
	writeList("libdirs", deps.LibDirs)
	writeList("bindirs", deps.BinDirs)
	writeList("builddirs", deps.BuildDirs)
	writeList("resdirs", deps.ResDirs)
	writeList("libs", deps.Libs)
	writeList("system_libs", deps.SystemLibs)
	writeList("defines", deps.Defines)
	writeList("cflags", deps.CFlags)
	writeList("cxxflags", deps.CxxFlags)
	writeList("sharedlinkflags", deps.SharedLinkFlags)
	writeList("exelinkflags", deps.ExeLinkFlags)

	for _, pkgName := range deps.Deps() {
		dep := deps.Dependency(pkgName)
		libs, err := dep.Libs()
		if err != nil {
			return nil, err
		}
		writeList("includedirs_"+pkgName, dep.IncludePaths())
		writeList("libdirs_"+pkgName, dep.LibPaths())
		writeList("libs_"+pkgName, libs)
		writeList("rootpath_"+pkgName, []string{dep.RootPath()})
	}
	return map[string]string{"hakobuildinfo.txt": b.String()}, nil
}
