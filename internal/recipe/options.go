package recipe

import (
	"fmt"
	"sort"
	"strings"
)

// Options holds a recipe's own option values plus the option values it
// imposes on its dependencies. Downstream consumers override a
// dependency's own defaults; the graph builder applies those overrides
// before the configure hook runs.
type Options struct {
	domains map[string][]string
	values  map[string]string
	deps    map[string]map[string]string
	frozen  bool
}

// NewOptions returns an empty option set.
func NewOptions() *Options {
	return &Options{
		domains: make(map[string][]string),
		values:  make(map[string]string),
		deps:    make(map[string]map[string]string),
	}
}

// Define declares an option with its allowed values and default. An
// empty allowed list leaves the domain free.
func (o *Options) Define(name, defaultValue string, allowed ...string) {
	o.domains[name] = allowed
	o.values[name] = defaultValue
}

// Set assigns an option value. Unknown options and frozen option sets
// are errors.
func (o *Options) Set(name, value string) error {
	if o.frozen {
		return fmt.Errorf("cannot set option %q: options are frozen", name)
	}
	if _, ok := o.domains[name]; !ok {
		return fmt.Errorf("option %q does not exist", name)
	}
	o.values[name] = value
	return nil
}

// Get returns the current value of an option; the second result is
// false for undeclared options.
func (o *Options) Get(name string) (string, bool) {
	v, ok := o.values[name]
	return v, ok
}

// Values returns a copy of the recipe's own option values.
func (o *Options) Values() map[string]string {
	out := make(map[string]string, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

// Names returns the declared option names, sorted.
func (o *Options) Names() []string {
	names := make([]string, 0, len(o.domains))
	for n := range o.domains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SetDep records an option value this recipe imposes on a dependency.
func (o *Options) SetDep(pkg, name, value string) {
	if o.deps[pkg] == nil {
		o.deps[pkg] = make(map[string]string)
	}
	o.deps[pkg][name] = value
}

// DepsValues returns a deep copy of the per-package option assignments
// to propagate upstream, including assignments inherited from
// downstream consumers.
func (o *Options) DepsValues() map[string]map[string]string {
	out := make(map[string]map[string]string, len(o.deps))
	for pkg, vals := range o.deps {
		m := make(map[string]string, len(vals))
		for k, v := range vals {
			m[k] = v
		}
		out[pkg] = m
	}
	return out
}

// PropagateUpstream applies downstream option assignments. Entries for
// ownName assign this recipe's own options (downstream wins); entries
// for other packages merge into the deps assignments for further
// propagation, again with downstream winning over locally declared
// values.
func (o *Options) PropagateUpstream(down map[string]map[string]string, ownName string) error {
	for pkg, vals := range down {
		if pkg == ownName {
			for name, value := range vals {
				if _, ok := o.domains[name]; !ok {
					return fmt.Errorf("option %q does not exist in %q", name, ownName)
				}
				o.values[name] = value
			}
			continue
		}
		for name, value := range vals {
			o.SetDep(pkg, name, value)
		}
	}
	return nil
}

// ClearUnused drops dependency option assignments for packages outside
// keep. Called right before freezing, once the direct and indirect
// requirement sets are known.
func (o *Options) ClearUnused(keep map[string]bool) {
	for pkg := range o.deps {
		if !keep[pkg] {
			delete(o.deps, pkg)
		}
	}
}

// Freeze makes the option set immutable. The package id is computed
// from frozen values only.
func (o *Options) Freeze() { o.frozen = true }

// Validate checks every value against its declared domain.
func (o *Options) Validate() error {
	for name, value := range o.values {
		allowed := o.domains[name]
		if len(allowed) == 0 {
			continue
		}
		ok := false
		for _, a := range allowed {
			if a == value {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%q is not a valid value for option %q (allowed: %s)",
				value, name, strings.Join(allowed, ", "))
		}
	}
	return nil
}

// Copy returns an independent, unfrozen copy.
func (o *Options) Copy() *Options {
	c := NewOptions()
	for k, v := range o.domains {
		c.domains[k] = append([]string(nil), v...)
	}
	for k, v := range o.values {
		c.values[k] = v
	}
	for pkg, vals := range o.deps {
		for k, v := range vals {
			c.SetDep(pkg, k, v)
		}
	}
	return c
}
