// Package recipe models package recipes: the declared identity,
// settings, options and requirements of a package, plus the dynamic
// hooks the graph builder and binary analyzer invoke while expanding
// and evaluating a dependency graph.
//
// A Recipe is a capability-bearing value: hooks are registered under
// fixed names and invoked by name, never through method dispatch on a
// base type. Recipe loading and sandboxing live behind the Provider
// interface; this package only ships a loader for declarative TOML
// recipes.
package recipe

import (
	"fmt"

	"github.com/tsukumogami/hako/internal/cppinfo"
	"github.com/tsukumogami/hako/internal/pkginfo"
	"github.com/tsukumogami/hako/internal/ref"
)

// Hook names a recipe may register. The builder invokes them in this
// order during node configuration; package_id and package_info run
// later, from the analyzer and the generator layer.
const (
	HookConfig        = "config" // deprecated, kept for old recipes
	HookConfigOptions = "config_options"
	HookConfigure     = "configure"
	HookRequirements  = "requirements"
	HookPackageID     = "package_id"
	HookPackageInfo   = "package_info"
)

// Hook is a recipe callback. Hooks mutate the receiving recipe.
type Hook func(*Recipe) error

// Recipe is a loaded recipe instance.
type Recipe struct {
	Name        string
	Version     string
	User        string
	Channel     string
	Description string

	// Alias, when set, declares this recipe a pure forwarder to the
	// given reference; no node is instantiated for it.
	Alias string

	// ShortPaths requests the shortened cache layout on systems with
	// path length limits.
	ShortPaths bool

	// BuildPolicy is the recipe's own build preference: "missing"
	// builds when no binary is found, "always" forces a source build.
	BuildPolicy string

	Settings *Settings
	Options  *Options
	Requires *Requirements

	// Info is filled by the binary analyzer once the package id is
	// computed.
	Info *pkginfo.Info

	// CppInfo is filled by the package_info hook once a binary is
	// available, and consumed by generators.
	CppInfo *cppinfo.CppInfo

	hooks map[string]Hook

	// requirements() re-evaluation state, managed by the graph builder.
	originalRequires  *Requirements
	evaluatedRequires *Requirements
}

// New returns an empty recipe for the given name and version.
func New(name, version string) *Recipe {
	return &Recipe{
		Name:     name,
		Version:  version,
		Settings: NewSettings(),
		Options:  NewOptions(),
		Requires: NewRequirements(),
		hooks:    make(map[string]Hook),
	}
}

// Ref returns the recipe's reference, without revision.
func (r *Recipe) Ref() ref.Reference {
	return ref.Reference{Name: r.Name, Version: r.Version, User: r.User, Channel: r.Channel}
}

// DisplayName identifies the recipe in user-facing messages. Consumer
// recipes without a name display as "project".
func (r *Recipe) DisplayName() string {
	if r.Name == "" {
		return "project"
	}
	return r.Ref().String()
}

// SetHook registers fn under the given hook name, replacing any
// previous registration. A nil fn removes the hook.
func (r *Recipe) SetHook(name string, fn Hook) {
	if fn == nil {
		delete(r.hooks, name)
		return
	}
	r.hooks[name] = fn
}

// HasHook reports whether a hook is registered under name.
func (r *Recipe) HasHook(name string) bool {
	_, ok := r.hooks[name]
	return ok
}

// CallHook invokes the named hook if registered. Errors (and panics)
// raised by the hook come back as *UserError carrying the recipe's
// display name, so traversal failures point at the offending recipe.
func (r *Recipe) CallHook(name string) (err error) {
	fn, ok := r.hooks[name]
	if !ok {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = &UserError{Recipe: r.DisplayName(), Hook: name, Err: fmt.Errorf("%v", rec)}
		}
	}()
	if hookErr := fn(r); hookErr != nil {
		return &UserError{Recipe: r.DisplayName(), Hook: name, Err: hookErr}
	}
	return nil
}

// SaveOriginalRequires snapshots the requires list before the first
// requirements() evaluation. Each later call rewinds to that snapshot
// before the re-evaluation, so two diamond paths cannot accumulate
// duplicate dependencies.
func (r *Recipe) SaveOriginalRequires() {
	if r.originalRequires == nil {
		r.originalRequires = r.Requires.Copy()
	} else {
		r.Requires = r.originalRequires.Copy()
	}
}

// SetEvaluatedRequires records the requires list produced by the first
// requirements() evaluation.
func (r *Recipe) SetEvaluatedRequires(reqs *Requirements) {
	r.evaluatedRequires = reqs
}

// EvaluatedRequires returns the recorded first-evaluation requires, or
// nil before the first evaluation.
func (r *Recipe) EvaluatedRequires() *Requirements {
	return r.evaluatedRequires
}

// UserError is a failure inside a recipe hook. It is fatal to the
// traversal and surfaced with the recipe's display name.
type UserError struct {
	Recipe string
	Hook   string
	Err    error
}

func (e *UserError) Error() string {
	return fmt.Sprintf("%s: error in %s(): %v", e.Recipe, e.Hook, e.Err)
}

func (e *UserError) Unwrap() error { return e.Err }
