package graph

import (
	"fmt"
	"path"

	"github.com/tsukumogami/hako/internal/recipe"
	"github.com/tsukumogami/hako/internal/ref"
)

// Recipe build policies honored by the build mode.
const (
	BuildPolicyMissing = "missing"
	BuildPolicyAlways  = "always"
)

// BuildMode captures the user's --build arguments: which packages are
// forced to build from source, whether missing binaries may build, and
// the cascade/outdated modifiers.
type BuildMode struct {
	// All forces every package to build ("--build").
	All bool
	// Never forbids building anything ("--build=never").
	Never bool
	// Missing builds packages whose binary cannot be found.
	Missing bool
	// Cascade also builds dependents of anything built.
	Cascade bool
	// Outdated rebuilds binaries whose recorded recipe hash disagrees
	// with the cached recipe.
	Outdated bool

	patterns []string
}

// NewBuildMode parses --build arguments. An empty list means "build
// nothing, fail on missing"; each entry is a keyword or a package
// pattern.
func NewBuildMode(args []string) (*BuildMode, error) {
	b := &BuildMode{}
	if len(args) == 0 {
		return b, nil
	}
	for _, arg := range args {
		switch arg {
		case "", "*":
			b.All = true
		case "never":
			b.Never = true
		case "missing":
			b.Missing = true
		case "cascade":
			b.Cascade = true
		case "outdated":
			b.Outdated = true
		default:
			b.patterns = append(b.patterns, arg)
		}
	}
	if b.Never && (b.All || b.Missing || b.Cascade || b.Outdated || len(b.patterns) > 0) {
		return nil, fmt.Errorf("--build=never cannot be combined with other build options")
	}
	return b, nil
}

// matches reports whether a reference matches any forced-build
// pattern, by bare name or by full reference glob.
func (b *BuildMode) matches(r ref.Reference) bool {
	for _, p := range b.patterns {
		if p == r.Name {
			return true
		}
		if ok, _ := path.Match(p, r.Name); ok {
			return true
		}
		if ok, _ := path.Match(p, r.ClearRev().String()); ok {
			return true
		}
	}
	return false
}

// Forced decides whether a node must build from source regardless of
// available binaries. Cascade forces a build only when some direct
// dependency is already building.
func (b *BuildMode) Forced(rc *recipe.Recipe, r ref.Reference, withDepsToBuild bool) bool {
	if b.Never {
		return false
	}
	if rc.BuildPolicy == BuildPolicyAlways {
		return true
	}
	if b.All {
		return true
	}
	if b.Cascade && withDepsToBuild {
		return true
	}
	return b.matches(r)
}

// Allowed decides whether a node without a usable binary may build
// instead of being reported missing.
func (b *BuildMode) Allowed(rc *recipe.Recipe) bool {
	if b.Never {
		return false
	}
	if b.All || b.Missing || b.Cascade {
		return true
	}
	return rc.BuildPolicy == BuildPolicyMissing || rc.BuildPolicy == BuildPolicyAlways
}
