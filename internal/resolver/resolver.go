// Package resolver rewrites version-range requirements to concrete
// references. A range travels inside the version slot of a reference
// as "[constraint]", e.g. zlib/[>=1.0 <2.0]; candidates come from the
// local recipe cache first and, when updating or the cache holds no
// candidate in the range's user/channel, from the configured remotes.
// Local candidates that all fall outside the range do not trigger a
// remote search.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/tsukumogami/hako/internal/log"
	"github.com/tsukumogami/hako/internal/recipe"
	"github.com/tsukumogami/hako/internal/ref"
)

// LocalSearcher lists cached recipe references for a package name.
type LocalSearcher interface {
	SearchRecipes(name string) ([]ref.Reference, error)
}

// RemoteSearcher lists recipe references a remote serves for a
// package name. remoteName narrows the search to one remote; empty
// searches all configured remotes.
type RemoteSearcher interface {
	SearchRemoteRecipes(name, remoteName string) ([]ref.Reference, error)
}

// Resolver resolves version ranges against cache and remotes.
type Resolver struct {
	local  LocalSearcher
	remote RemoteSearcher
	logger log.Logger
}

// New returns a Resolver. remote may be nil for offline resolution.
func New(local LocalSearcher, remote RemoteSearcher, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{local: local, remote: remote, logger: logger}
}

// IsRange reports whether a version slot carries a range expression.
func IsRange(version string) bool {
	return strings.HasPrefix(version, "[") && strings.HasSuffix(version, "]")
}

// Resolve rewrites req's reference to a concrete one when its version
// is a range. scope names the requiring recipe for error messages.
func (r *Resolver) Resolve(req *recipe.Requirement, scope string, update bool, remoteName string) error {
	version := req.Ref.Version
	if !IsRange(version) {
		return nil
	}
	expr := strings.TrimSpace(version[1 : len(version)-1])
	constraint, err := semver.NewConstraint(expr)
	if err != nil {
		return &Error{Scope: scope, Ref: req.Ref, Message: fmt.Sprintf("invalid version range %q", expr), Err: err}
	}

	candidates, err := r.candidates(req.Ref, update, remoteName)
	if err != nil {
		return err
	}

	best, found := pick(candidates, constraint)
	if !found {
		return &Error{Scope: scope, Ref: req.Ref,
			Message: fmt.Sprintf("no version satisfying range %q found (candidates: %s)",
				expr, renderVersions(candidates))}
	}

	r.logger.Info("version range resolved", "scope", scope,
		"range", req.Ref.String(), "resolved", best.String())
	req.Ref = best
	return nil
}

// candidates collects matching references: local cache first; remotes
// when updating or when the cache has nothing.
func (r *Resolver) candidates(rangeRef ref.Reference, update bool, remoteName string) ([]ref.Reference, error) {
	var out []ref.Reference
	if r.local != nil {
		local, err := r.local.SearchRecipes(rangeRef.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, filterUserChannel(local, rangeRef)...)
	}
	if r.remote != nil && (update || len(out) == 0) {
		remote, err := r.remote.SearchRemoteRecipes(rangeRef.Name, remoteName)
		if err == nil {
			out = append(out, filterUserChannel(remote, rangeRef)...)
		}
		// A failing remote search leaves local candidates in play.
	}
	return out, nil
}

// filterUserChannel keeps candidates living in the same user/channel
// namespace as the range reference.
func filterUserChannel(candidates []ref.Reference, rangeRef ref.Reference) []ref.Reference {
	var out []ref.Reference
	for _, c := range candidates {
		if c.User == rangeRef.User && c.Channel == rangeRef.Channel {
			out = append(out, c)
		}
	}
	return out
}

// pick returns the highest candidate satisfying the constraint.
func pick(candidates []ref.Reference, constraint *semver.Constraints) (ref.Reference, bool) {
	type versioned struct {
		ref ref.Reference
		v   *semver.Version
	}
	var matching []versioned
	for _, c := range candidates {
		v, err := semver.NewVersion(c.Version)
		if err != nil {
			continue // non-semver versions never satisfy a range
		}
		if constraint.Check(v) {
			matching = append(matching, versioned{ref: c, v: v})
		}
	}
	if len(matching) == 0 {
		return ref.Reference{}, false
	}
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].v.LessThan(matching[j].v)
	})
	return matching[len(matching)-1].ref, true
}

func renderVersions(candidates []ref.Reference) string {
	if len(candidates) == 0 {
		return "none"
	}
	versions := make([]string, 0, len(candidates))
	for _, c := range candidates {
		versions = append(versions, c.Version)
	}
	sort.Strings(versions)
	return strings.Join(versions, ", ")
}

// Error is a range resolution failure tied to the requiring recipe.
type Error struct {
	Scope   string
	Ref     ref.Reference
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: requirement %q: %s: %v", e.Scope, e.Ref, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: requirement %q: %s", e.Scope, e.Ref, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }
