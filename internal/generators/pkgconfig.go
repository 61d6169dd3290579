package generators

import (
	"fmt"
	"strings"

	"github.com/tsukumogami/hako/internal/cppinfo"
)

func init() {
	register(&pkgConfigGenerator{})
}

// pkgConfigGenerator emits one .pc file per dependency.
type pkgConfigGenerator struct{}

func (g *pkgConfigGenerator) Name() string { return "pkg_config" }

func (g *pkgConfigGenerator) Content(deps *cppinfo.DepsCppInfo) (map[string]string, error) {
	files := make(map[string]string)
	for _, pkgName := range deps.Deps() {
		dep := deps.Dependency(pkgName)
		name := dep.GetName(g.Name())
		if name == "" {
			name = pkgName
		}
		content, err := g.pcFile(name, dep)
		if err != nil {
			return nil, err
		}
		files[name+".pc"] = content
	}
	return files, nil
}

func (g *pkgConfigGenerator) pcFile(name string, dep *cppinfo.DepCppInfo) (string, error) {
	libs, err := dep.Libs()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "prefix=%s\n\n", dep.RootPath())
	fmt.Fprintf(&b, "Name: %s\n", name)
	description := dep.Raw().Description
	if description == "" {
		description = "Package " + name
	}
	fmt.Fprintf(&b, "Description: %s\n", description)
	fmt.Fprintf(&b, "Version: %s\n", dep.Version())

	var libFlags []string
	for _, dir := range dep.LibPaths() {
		libFlags = append(libFlags, "-L"+dir)
	}
	for _, lib := range libs {
		libFlags = append(libFlags, "-l"+lib)
	}
	for _, lib := range dep.SystemLibs() {
		libFlags = append(libFlags, "-l"+lib)
	}
	libFlags = append(libFlags, dep.SharedLinkFlags()...)
	libFlags = append(libFlags, dep.ExeLinkFlags()...)
	if len(libFlags) > 0 {
		fmt.Fprintf(&b, "Libs: %s\n", strings.Join(libFlags, " "))
	}

	var cflags []string
	for _, dir := range dep.IncludePaths() {
		cflags = append(cflags, "-I"+dir)
	}
	for _, def := range dep.Defines() {
		cflags = append(cflags, "-D"+def)
	}
	cflags = append(cflags, dep.CFlags()...)
	cflags = append(cflags, dep.CxxFlags()...)
	if len(cflags) > 0 {
		fmt.Fprintf(&b, "Cflags: %s\n", strings.Join(cflags, " "))
	}
	return b.String(), nil
}
