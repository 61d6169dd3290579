package recipe

import (
	"fmt"
	"strings"

	"github.com/tsukumogami/hako/internal/log"
	"github.com/tsukumogami/hako/internal/ref"
)

// Requirement is one edge declaration: a reference plus the private and
// override flags. An override contributes version pinning downstream
// but never instantiates a node of its own.
type Requirement struct {
	Ref      ref.Reference
	Private  bool
	Override bool
}

// Requirements is an ordered, name-keyed requirement set. Order is the
// recipe's declaration order and drives graph expansion order.
type Requirements struct {
	order []string
	m     map[string]*Requirement
}

// NewRequirements returns an empty requirement set.
func NewRequirements() *Requirements {
	return &Requirements{m: make(map[string]*Requirement)}
}

// Add inserts or replaces a requirement keyed by its package name.
func (r *Requirements) Add(req *Requirement) {
	name := req.Ref.Name
	if _, ok := r.m[name]; !ok {
		r.order = append(r.order, name)
	}
	r.m[name] = req
}

// AddRef is a convenience Add for a plain public requirement.
func (r *Requirements) AddRef(reference ref.Reference) {
	r.Add(&Requirement{Ref: reference})
}

// Get returns the requirement for a package name, or nil.
func (r *Requirements) Get(name string) *Requirement {
	return r.m[name]
}

// Names returns the package names in declaration order.
func (r *Requirements) Names() []string {
	return append([]string(nil), r.order...)
}

// List returns the requirements in declaration order.
func (r *Requirements) List() []*Requirement {
	out := make([]*Requirement, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.m[name])
	}
	return out
}

// Len returns the number of requirements.
func (r *Requirements) Len() int { return len(r.order) }

// Copy returns a deep copy preserving order.
func (r *Requirements) Copy() *Requirements {
	c := NewRequirements()
	for _, name := range r.order {
		req := *r.m[name]
		c.Add(&req)
	}
	return c
}

// Equal compares both sets by name, reference and flags, ignoring
// order. The builder uses it to detect a non-deterministic
// requirements() hook across diamond re-evaluations.
func (r *Requirements) Equal(o *Requirements) bool {
	if r.Len() != o.Len() {
		return false
	}
	for name, req := range r.m {
		other := o.m[name]
		if other == nil || *req != *other {
			return false
		}
	}
	return true
}

// String renders the set for error messages.
func (r *Requirements) String() string {
	parts := make([]string, 0, len(r.order))
	for _, req := range r.List() {
		s := req.Ref.String()
		if req.Override {
			s += " (override)"
		} else if req.Private {
			s += " (private)"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// Update applies downstream requirement overrides to this set and
// computes the set to propagate further upstream: a copy of the
// downstream requirements (minus this package's own name) extended
// with this recipe's non-private requirements. Same-name downstream
// refs override local ones.
func (r *Requirements) Update(down *Requirements, ownRef, downRef ref.Reference, logger log.Logger) *Requirements {
	next := down.Copy()
	if !ownRef.IsZero() {
		next.remove(ownRef.Name)
	}
	for _, name := range r.order {
		req := r.m[name]
		if req.Private {
			continue
		}
		if other := down.Get(name); other != nil && !other.Ref.IsZero() && other.Ref != req.Ref {
			logger.Info("requirement overridden by downstream consumer",
				"package", ownRef.String(),
				"requirement", req.Ref.String(),
				"downstream", downRef.String(),
				"override", other.Ref.String())
			req.Ref = other.Ref
		}
		next.Add(req)
	}
	return next
}

func (r *Requirements) remove(name string) {
	if _, ok := r.m[name]; !ok {
		return
	}
	delete(r.m, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Provenance of a loaded recipe, recorded on the graph node.
type Status string

const (
	StatusConsumer   Status = "consumer"
	StatusVirtual    Status = "virtual"
	StatusEditable   Status = "editable"
	StatusWorkspace  Status = "workspace"
	StatusDownloaded Status = "downloaded"
	StatusInCache    Status = "in_cache"
	StatusNoRemote   Status = "no_remote"
	StatusUpdated    Status = "updated"
)

// Provider resolves a reference to a loaded recipe. Implementations
// front the local recipe cache, workspace entries and remotes; recipe
// execution sandboxing is their concern, not the graph's.
type Provider interface {
	// GetRecipe returns the loaded recipe, its provenance, the remote
	// it came from (empty for local results) and the resolved
	// reference (revision filled in when revisions are enabled).
	GetRecipe(r ref.Reference, checkUpdates, update bool, remote string) (*Recipe, Status, string, ref.Reference, error)
}

// NotFoundError reports a reference no provider source could serve.
type NotFoundError struct {
	Ref    ref.Reference
	Remote string
}

func (e *NotFoundError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("recipe %s not found in remote %q", e.Ref, e.Remote)
	}
	return fmt.Sprintf("recipe %s not found", e.Ref)
}
