package graph

import (
	"fmt"

	"github.com/tsukumogami/hako/internal/log"
	"github.com/tsukumogami/hako/internal/recipe"
	"github.com/tsukumogami/hako/internal/ref"
)

// maxAliasDepth bounds alias chasing so forwarding cycles terminate.
const maxAliasDepth = 50

// RangeResolver rewrites version-range requirements to concrete
// references against the recipe cache and remotes.
type RangeResolver interface {
	Resolve(req *recipe.Requirement, scope string, update bool, remoteName string) error
}

// Builder expands a root recipe into a fully configured dependency
// graph.
type Builder struct {
	provider recipe.Provider
	resolver RangeResolver
	logger   log.Logger
}

// NewBuilder returns a Builder. resolver may be nil when version
// ranges are not in play.
func NewBuilder(provider recipe.Provider, resolver RangeResolver, logger log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{provider: provider, resolver: resolver, logger: logger}
}

// Build runs the recursive expansion from root. On return every node
// is fully configured: options and settings applied, requirements
// resolved, ancestors and closures wired, edges carrying the private
// flag.
func (b *Builder) Build(root *Node, checkUpdates, update bool, remoteName string) (*Graph, error) {
	checkUpdates = checkUpdates || update
	g := NewGraph()
	g.AddNode(root)
	err := b.expand(g, root, recipe.NewRequirements(), ref.Reference{}, nil,
		checkUpdates, update, remoteName)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// expand configures node, resolves its requirement ranges and recurses
// into each requirement. downReqs and downOpts accumulate the
// overrides and option assignments coming from downstream consumers.
func (b *Builder) expand(g *Graph, node *Node, downReqs *recipe.Requirements,
	downRef ref.Reference, downOpts map[string]map[string]string,
	checkUpdates, update bool, remoteName string) error {

	newReqs, newOpts, err := b.configNode(g, node, downReqs, downRef, downOpts)
	if err != nil {
		return err
	}
	if err := b.resolveRanges(g, node, update, remoteName); err != nil {
		return err
	}

	for _, req := range node.Recipe.Requires.List() {
		if req.Override {
			continue
		}
		if node.Ancestors[req.Ref] {
			return &LoopError{Node: node.Ref, Require: req.Ref}
		}

		previous := node.publicDeps[req.Ref.Name]
		if req.Private || previous == nil {
			child, err := b.createNewNode(g, node, req, checkUpdates, update, remoteName, 0)
			if err != nil {
				return err
			}

			child.publicClosure = make(map[string]*Node)
			if req.Private {
				// A private child lives in an isolated namespace
				// seeded with the parent's closure.
				child.publicDeps = node.publicClosure
				node.publicClosure[req.Ref.Name] = child
			} else {
				child.publicDeps = node.publicDeps
				node.publicDeps[req.Ref.Name] = child
				// Every dependent on the path to this child sees it
				// in its closure.
				for ancestor := range child.Ancestors {
					if ancestor.IsZero() {
						continue
					}
					if dep, ok := node.publicDeps[ancestor.Name]; ok {
						dep.publicClosure[req.Ref.Name] = child
					}
				}
			}

			if err := b.expand(g, child, newReqs, node.Ref, newOpts,
				checkUpdates, update, remoteName); err != nil {
				return err
			}
			continue
		}

		// The name is already bound in this namespace.
		previous.Ancestors[node.Ref] = true
		if target, ok := g.Aliased[req.Ref]; ok {
			req.Ref = target
		}
		switch conflicting(previous.Ref, req.Ref) {
		case revisionConflict:
			return &RevisionConflictError{Node: node.Ref, Require: req.Ref}
		case referenceConflict:
			return &ConflictError{Node: node.Ref, Require: req.Ref, Previous: previous.Ref}
		}

		g.AddEdge(node, previous, false)
		if b.needsRecursion(previous.publicClosure, newReqs, newOpts) {
			b.logger.Debug("re-expanding already visited node",
				"node", previous.Ref.String(), "from", node.Ref.String())
			if err := b.expand(g, previous, newReqs, node.Ref, newOpts,
				checkUpdates, update, remoteName); err != nil {
				return err
			}
		}
	}
	return nil
}

type conflictKind int

const (
	noConflict conflictKind = iota
	referenceConflict
	revisionConflict
)

// conflicting compares an established reference with a new requirement
// for the same name. Reference inequality (revisions cleared) is a
// hard conflict; equal references with two different pinned revisions
// conflict on revision. A requirement without a revision accepts any
// established one.
func conflicting(previous, next ref.Reference) conflictKind {
	if !previous.EqualIgnoreRev(next) {
		return referenceConflict
	}
	if previous.Revision != "" && next.Revision != "" && previous.Revision != next.Revision {
		return revisionConflict
	}
	return noConflict
}

// needsRecursion decides whether a re-visit of an already expanded
// public node must re-traverse its subgraph: only when an incoming
// downstream requirement or option assignment is visible to the
// node's current closure and disagrees with it.
func (b *Builder) needsRecursion(closure map[string]*Node, newReqs *recipe.Requirements,
	newOpts map[string]map[string]string) bool {

	for _, req := range newReqs.List() {
		if n, ok := closure[req.Ref.Name]; ok {
			if conflicting(n.Ref, req.Ref) != noConflict {
				return true
			}
		}
	}
	for pkgName, values := range newOpts {
		n, ok := closure[pkgName]
		if !ok {
			continue
		}
		for option, value := range values {
			if current, _ := n.Recipe.Options.Get(option); current != value {
				return true
			}
		}
	}
	return false
}

// configNode runs the recipe configuration sequence: config (legacy),
// config_options, downstream option overrides, configure, validation,
// then requirements. It returns the requirement and option sets to
// propagate into children.
func (b *Builder) configNode(g *Graph, node *Node, downReqs *recipe.Requirements,
	downRef ref.Reference, downOpts map[string]map[string]string) (*recipe.Requirements, map[string]map[string]string, error) {

	rc := node.Recipe

	if rc.HasHook(recipe.HookConfig) {
		if node.Ref.IsZero() {
			b.logger.Warn("config() has been deprecated, use config_options and configure",
				"recipe", rc.DisplayName())
		}
		if err := rc.CallHook(recipe.HookConfig); err != nil {
			return nil, nil, err
		}
	}
	if err := rc.CallHook(recipe.HookConfigOptions); err != nil {
		return nil, nil, err
	}
	if err := rc.Options.PropagateUpstream(downOpts, rc.Name); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", rc.DisplayName(), err)
	}
	if err := rc.CallHook(recipe.HookConfigure); err != nil {
		return nil, nil, err
	}
	if err := rc.Settings.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", rc.DisplayName(), err)
	}
	if err := rc.Options.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", rc.DisplayName(), err)
	}

	if rc.HasHook(recipe.HookRequirements) {
		// Re-evaluations in a diamond path rewind to the original
		// requires so two paths cannot accumulate dependencies.
		rc.SaveOriginalRequires()
		if err := rc.CallHook(recipe.HookRequirements); err != nil {
			return nil, nil, err
		}
	}

	newOpts := rc.Options.DepsValues()
	for _, req := range rc.Requires.List() {
		if target, ok := g.Aliased[req.Ref]; ok {
			req.Ref = target
		}
	}
	newReqs := rc.Requires.Update(downReqs, node.Ref, downRef, b.logger)
	return newReqs, newOpts, nil
}

// resolveRanges rewrites version-range requirements to concrete refs,
// chases aliases the resolution may have exposed, and checks that
// requirements() evaluated deterministically against any previous
// evaluation of the same recipe.
func (b *Builder) resolveRanges(g *Graph, node *Node, update bool, remoteName string) error {
	rc := node.Recipe
	scope := rc.DisplayName()
	if b.resolver != nil {
		for _, req := range rc.Requires.List() {
			if err := b.resolver.Resolve(req, scope, update, remoteName); err != nil {
				return err
			}
		}
	}
	for _, req := range rc.Requires.List() {
		if target, ok := g.Aliased[req.Ref]; ok {
			req.Ref = target
		}
	}

	if evaluated := rc.EvaluatedRequires(); evaluated == nil {
		rc.SetEvaluatedRequires(rc.Requires.Copy())
	} else if !rc.Requires.Equal(evaluated) {
		return &recipe.UserError{
			Recipe: scope,
			Hook:   recipe.HookRequirements,
			Err: fmt.Errorf("incompatible requirements obtained in different evaluations: "+
				"previous %s, new %s", evaluated, rc.Requires),
		}
	}
	return nil
}

// createNewNode fetches the requirement's recipe, chases alias
// recipes, and wires the new node into the graph.
func (b *Builder) createNewNode(g *Graph, current *Node, req *recipe.Requirement,
	checkUpdates, update bool, remoteName string, aliasDepth int) (*Node, error) {

	if aliasDepth > maxAliasDepth {
		return nil, &AliasLoopError{Ref: req.Ref}
	}

	rc, status, remoteOrigin, resolvedRef, err := b.provider.GetRecipe(req.Ref, checkUpdates, update, remoteName)
	if err != nil {
		if !current.Ref.IsZero() {
			b.logger.Error("failed requirement", "require", req.Ref.String(),
				"from", current.Recipe.DisplayName())
		}
		return nil, &RequirementError{Require: req.Ref, From: current.Recipe.DisplayName(), Err: err}
	}

	if rc.Alias != "" {
		target, err := ref.Parse(rc.Alias)
		if err != nil {
			return nil, &recipe.UserError{Recipe: rc.DisplayName(), Hook: "alias",
				Err: fmt.Errorf("invalid alias target: %w", err)}
		}
		g.Aliased[resolvedRef.ClearRev()] = target
		req.Ref = target
		return b.createNewNode(g, current, req, checkUpdates, update, remoteName, aliasDepth+1)
	}

	b.logger.Debug("new graph node", "ref", resolvedRef.String(), "recipe", string(status))
	node := NewNode(resolvedRef, rc, status)
	node.Remote = remoteOrigin
	node.RevisionPinned = req.Ref.Revision != ""
	for a := range current.Ancestors {
		node.Ancestors[a] = true
	}
	node.Ancestors[current.Ref] = true
	g.AddNode(node)
	g.AddEdge(current, node, req.Private)
	return node, nil
}
