package recipe

import (
	"fmt"
	"sort"
	"strings"
)

// defaultDomains are the settings every recipe may constrain itself to.
// Empty domains leave the value free-form.
var defaultDomains = map[string][]string{
	"os":               {"Linux", "Windows", "Macos", "FreeBSD", "Android", "iOS"},
	"arch":             {"x86", "x86_64", "armv7", "armv8", "wasm"},
	"compiler":         {"gcc", "clang", "apple-clang", "msvc"},
	"build_type":       {"Release", "Debug", "RelWithDebInfo", "MinSizeRel"},
	"compiler.version": nil,
	"compiler.libcxx":  nil,
}

// Settings holds a recipe's configuration axes (os, arch, compiler,
// build_type, ...). Recipes declare which axes they use; values outside
// an axis' domain fail validation.
type Settings struct {
	declared map[string]bool
	values   map[string]string
}

// NewSettings returns a settings set declaring the given axes.
func NewSettings(axes ...string) *Settings {
	s := &Settings{
		declared: make(map[string]bool),
		values:   make(map[string]string),
	}
	for _, a := range axes {
		s.declared[a] = true
	}
	return s
}

// Declare adds axes to the set the recipe uses.
func (s *Settings) Declare(axes ...string) {
	for _, a := range axes {
		s.declared[a] = true
	}
}

// Remove drops an axis and its value. Recipes narrow their package id
// this way (a header-only package removes compiler and build_type).
func (s *Settings) Remove(axis string) {
	delete(s.declared, axis)
	delete(s.values, axis)
}

// Set assigns a value for a declared axis.
func (s *Settings) Set(axis, value string) error {
	if !s.declared[axis] {
		return fmt.Errorf("setting %q not declared by this recipe", axis)
	}
	s.values[axis] = value
	return nil
}

// Get returns the value of an axis.
func (s *Settings) Get(axis string) (string, bool) {
	v, ok := s.values[axis]
	return v, ok
}

// Values returns a copy of the assigned values.
func (s *Settings) Values() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Axes returns the declared axes, sorted.
func (s *Settings) Axes() []string {
	axes := make([]string, 0, len(s.declared))
	for a := range s.declared {
		axes = append(axes, a)
	}
	sort.Strings(axes)
	return axes
}

// Validate checks that every declared axis has a value inside its
// domain. Axes without a known domain accept any non-empty value.
func (s *Settings) Validate() error {
	for axis := range s.declared {
		value, ok := s.values[axis]
		if !ok || value == "" {
			return fmt.Errorf("setting %q has no value", axis)
		}
		domain, known := defaultDomains[axis]
		if !known || len(domain) == 0 {
			continue
		}
		found := false
		for _, d := range domain {
			if d == value {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("invalid setting %s=%s (allowed: %s)",
				axis, value, strings.Join(domain, ", "))
		}
	}
	return nil
}

// Copy returns an independent copy.
func (s *Settings) Copy() *Settings {
	c := NewSettings()
	for a := range s.declared {
		c.declared[a] = true
	}
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}
