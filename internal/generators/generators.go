// Package generators emits consumer build files from aggregated
// package metadata. Each generator maps a DepsCppInfo to a set of
// files, returned as filename → content for the caller to write.
package generators

import (
	"github.com/tsukumogami/hako/internal/cppinfo"
)

// Generator renders consumer files from aggregated metadata.
type Generator interface {
	// Name is the generator's registry key.
	Name() string

	// Content returns the files to write, keyed by relative filename.
	Content(deps *cppinfo.DepsCppInfo) (map[string]string, error)
}

// registry holds the built-in generators.
var registry = map[string]Generator{}

func register(g Generator) {
	registry[g.Name()] = g
}

// Get returns a generator by name, or nil.
func Get(name string) Generator {
	return registry[name]
}

// Names lists the registered generator names.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}
