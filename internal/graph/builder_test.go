package graph

import (
	"errors"
	"testing"

	"github.com/tsukumogami/hako/internal/log"
	"github.com/tsukumogami/hako/internal/recipe"
	"github.com/tsukumogami/hako/internal/ref"
)

// fakeProvider serves recipes from factories keyed by reference
// (revision cleared). Factories return fresh instances so separate
// graphs never share recipe state.
type fakeProvider struct {
	recipes map[string]func() *recipe.Recipe
	status  recipe.Status
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		recipes: make(map[string]func() *recipe.Recipe),
		status:  recipe.StatusInCache,
	}
}

func (p *fakeProvider) add(rc func() *recipe.Recipe, key string) {
	p.recipes[key] = rc
}

func (p *fakeProvider) GetRecipe(r ref.Reference, checkUpdates, update bool, remoteName string) (*recipe.Recipe, recipe.Status, string, ref.Reference, error) {
	factory, ok := p.recipes[r.ClearRev().String()]
	if !ok {
		return nil, "", "", ref.Reference{}, &recipe.NotFoundError{Ref: r}
	}
	return factory(), p.status, "", r, nil
}

// testRecipe declares a plain recipe requiring the given refs.
func testRecipe(name, version string, requires ...string) *recipe.Recipe {
	rc := recipe.New(name, version)
	if len(requires) > 0 {
		refs := make([]ref.Reference, 0, len(requires))
		for _, s := range requires {
			refs = append(refs, ref.MustParse(s))
		}
		rc.SetHook(recipe.HookRequirements, func(r *recipe.Recipe) error {
			for _, target := range refs {
				r.Requires.AddRef(target)
			}
			return nil
		})
	}
	return rc
}

func buildGraph(t *testing.T, provider recipe.Provider, root *recipe.Recipe) (*Graph, error) {
	t.Helper()
	b := NewBuilder(provider, nil, log.NewNoop())
	return b.Build(NewRootNode(root, recipe.StatusConsumer), false, false, "")
}

func findNode(g *Graph, name string) *Node {
	for _, n := range g.Nodes {
		if n.Ref.Name == name {
			return n
		}
	}
	return nil
}

func TestBuildLinearChain(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "c/1.0") }, "b/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("c", "1.0") }, "c/1.0")

	g, err := buildGraph(t, p, testRecipe("a", "1.0", "b/1.0"))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(g.Nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(g.Nodes))
	}

	c := findNode(g, "c")
	for _, want := range []string{"a/1.0", "b/1.0"} {
		if !c.Ancestors[ref.MustParse(want)] {
			t.Errorf("c.Ancestors missing %s", want)
		}
	}
	if c.Ancestors[c.Ref] {
		t.Error("a node must never be its own ancestor")
	}
}

func TestBuildDiamondExpandsOnce(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "d/1.0") }, "b/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("c", "1.0", "d/1.0") }, "c/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("d", "1.0") }, "d/1.0")

	g, err := buildGraph(t, p, testRecipe("a", "1.0", "b/1.0", "c/1.0"))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(g.Nodes) != 4 {
		t.Fatalf("diamond expanded %d nodes, want 4 (d shared)", len(g.Nodes))
	}

	d := findNode(g, "d")
	for _, want := range []string{"a/1.0", "b/1.0", "c/1.0"} {
		if !d.Ancestors[ref.MustParse(want)] {
			t.Errorf("d.Ancestors missing %s", want)
		}
	}
	c := findNode(g, "c")
	if len(c.Dependencies()) != 1 || c.Dependencies()[0].Dst != d {
		t.Error("second diamond path should terminate at an edge to the shared node")
	}
}

func TestBuildDiamondReferenceConflict(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "d/1.0") }, "b/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("c", "1.0", "d/2.0") }, "c/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("d", "1.0") }, "d/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("d", "2.0") }, "d/2.0")

	_, err := buildGraph(t, p, testRecipe("a", "1.0", "b/1.0", "c/1.0"))
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}
	if conflict.Require.Name != "d" {
		t.Errorf("conflict should cite d, got %+v", conflict)
	}
	if conflict.Previous.Version != "1.0" {
		t.Errorf("conflict should keep the first-seen d/1.0, got %s", conflict.Previous)
	}
}

func TestBuildRevisionConflict(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "d/1.0#r1") }, "b/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("c", "1.0", "d/1.0#r2") }, "c/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("d", "1.0") }, "d/1.0")

	_, err := buildGraph(t, p, testRecipe("a", "1.0", "b/1.0", "c/1.0"))
	var revConflict *RevisionConflictError
	if !errors.As(err, &revConflict) {
		t.Fatalf("expected *RevisionConflictError, got %v", err)
	}
}

func TestBuildUnpinnedRevisionAcceptsPrevious(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "d/1.0#r1") }, "b/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("c", "1.0", "d/1.0") }, "c/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("d", "1.0") }, "d/1.0")

	if _, err := buildGraph(t, p, testRecipe("a", "1.0", "b/1.0", "c/1.0")); err != nil {
		t.Errorf("unpinned requirement should accept the established revision, got %v", err)
	}
}

func TestBuildLoopDetected(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "a/1.0") }, "b/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("a", "1.0", "b/1.0") }, "a/1.0")

	_, err := buildGraph(t, p, testRecipe("a", "1.0", "b/1.0"))
	var loop *LoopError
	if !errors.As(err, &loop) {
		t.Fatalf("expected *LoopError, got %v", err)
	}
	if loop.Require.Name != "a" {
		t.Errorf("loop should cite the ancestor a, got %+v", loop)
	}
}

func TestBuildPrivateIsolation(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe {
		rc := recipe.New("b", "1.0")
		rc.SetHook(recipe.HookRequirements, func(r *recipe.Recipe) error {
			r.Requires.AddRef(ref.MustParse("c/1.0"))
			return nil
		})
		return rc
	}, "b/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("c", "1.0") }, "c/1.0")

	root := recipe.New("a", "1.0")
	root.SetHook(recipe.HookRequirements, func(r *recipe.Recipe) error {
		r.Requires.Add(&recipe.Requirement{Ref: ref.MustParse("b/1.0"), Private: true})
		return nil
	})

	g, err := buildGraph(t, p, root)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	a, b := g.Root, findNode(g, "b")
	if _, ok := a.PublicDeps()["b"]; ok {
		t.Error("private child must not enter the parent's namespace")
	}
	if _, ok := a.PublicClosure()["b"]; !ok {
		t.Error("private child should be in the parent's closure")
	}
	if _, ok := b.PublicDeps()["c"]; !ok {
		t.Error("c should be visible in b's namespace")
	}
	if _, ok := a.PublicDeps()["c"]; ok {
		t.Error("c must not leak into a's namespace through the private edge")
	}

	edge := a.Dependencies()[0]
	if !edge.Private {
		t.Error("edge a->b should carry the private flag")
	}
}

func TestBuildPublicClosureInvariant(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "c/1.0") }, "b/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("c", "1.0") }, "c/1.0")

	g, err := buildGraph(t, p, testRecipe("a", "1.0", "b/1.0"))
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range g.Nodes {
		for _, e := range n.Dependencies() {
			if e.Private {
				continue
			}
			if n.PublicDeps()[e.Dst.Ref.Name] != e.Dst {
				t.Errorf("%s: public dep %s missing from namespace", n.Ref, e.Dst.Ref)
			}
		}
	}
	b := findNode(g, "b")
	if b.PublicClosure()["c"] != findNode(g, "c") {
		t.Error("b's closure should contain c")
	}
}

func TestBuildDownstreamOverride(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "d/1.0") }, "b/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("d", "2.0") }, "d/2.0")
	p.add(func() *recipe.Recipe { return testRecipe("d", "1.0") }, "d/1.0")

	root := recipe.New("a", "1.0")
	root.SetHook(recipe.HookRequirements, func(r *recipe.Recipe) error {
		r.Requires.AddRef(ref.MustParse("b/1.0"))
		r.Requires.Add(&recipe.Requirement{Ref: ref.MustParse("d/2.0"), Override: true})
		return nil
	})

	g, err := buildGraph(t, p, root)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	d := findNode(g, "d")
	if d == nil || d.Ref.Version != "2.0" {
		t.Fatalf("override should rewrite b's requirement to d/2.0, got %v", d)
	}
	// The override itself must not instantiate an extra node.
	if len(g.Nodes) != 3 {
		t.Errorf("got %d nodes, want 3", len(g.Nodes))
	}
}

func TestBuildAliasChasing(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe {
		rc := recipe.New("zlib", "")
		rc.Alias = "zlib/1.2.11"
		return rc
	}, "zlib/latest")
	p.add(func() *recipe.Recipe { return testRecipe("zlib", "1.2.11") }, "zlib/1.2.11")
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "zlib/latest") }, "b/1.0")

	g, err := buildGraph(t, p, testRecipe("a", "1.0", "zlib/latest", "b/1.0"))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	z := findNode(g, "zlib")
	if z == nil || z.Ref.Version != "1.2.11" {
		t.Fatalf("alias not chased, got %v", z)
	}
	if target := g.Aliased[ref.MustParse("zlib/latest")]; target != ref.MustParse("zlib/1.2.11") {
		t.Errorf("alias map = %v", g.Aliased)
	}
	// Both paths resolve to the single concrete node: a, b, zlib.
	if len(g.Nodes) != 3 {
		t.Errorf("got %d nodes, want 3", len(g.Nodes))
	}
}

func TestBuildAliasLoop(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe {
		rc := recipe.New("x", "")
		rc.Alias = "x/loop"
		return rc
	}, "x/loop")

	_, err := buildGraph(t, p, testRecipe("a", "1.0", "x/loop"))
	var aliasLoop *AliasLoopError
	if !errors.As(err, &aliasLoop) {
		t.Fatalf("expected *AliasLoopError, got %v", err)
	}
}

func TestBuildRecipeNotFound(t *testing.T) {
	p := newFakeProvider()

	_, err := buildGraph(t, p, testRecipe("a", "1.0", "ghost/1.0"))
	var reqErr *RequirementError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequirementError, got %v", err)
	}
	var notFound *recipe.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected wrapped *recipe.NotFoundError, got %v", err)
	}
}

func TestBuildUserRecipeErrorSurfaced(t *testing.T) {
	p := newFakeProvider()
	p.add(func() *recipe.Recipe {
		rc := recipe.New("b", "1.0")
		rc.SetHook(recipe.HookConfigure, func(*recipe.Recipe) error {
			return errors.New("bad recipe logic")
		})
		return rc
	}, "b/1.0")

	_, err := buildGraph(t, p, testRecipe("a", "1.0", "b/1.0"))
	var userErr *recipe.UserError
	if !errors.As(err, &userErr) {
		t.Fatalf("expected *recipe.UserError, got %v", err)
	}
	if userErr.Recipe != "b/1.0" {
		t.Errorf("error should name the offending recipe, got %q", userErr.Recipe)
	}
}

func TestBuildNonDeterministicRequirements(t *testing.T) {
	p := newFakeProvider()
	// d's requirements() grows its answer on re-evaluation; the
	// diamond re-expansion must flag the mismatch as a recipe bug.
	p.add(func() *recipe.Recipe {
		rc := recipe.New("d", "1.0")
		calls := 0
		rc.SetHook(recipe.HookRequirements, func(r *recipe.Recipe) error {
			calls++
			r.Requires.AddRef(ref.MustParse("e/1.0"))
			if calls > 1 {
				r.Requires.AddRef(ref.MustParse("f/1.0"))
			}
			return nil
		})
		return rc
	}, "d/1.0")
	p.add(func() *recipe.Recipe {
		rc := recipe.New("e", "1.0")
		rc.Options.Define("shared", "False", "True", "False")
		return rc
	}, "e/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("f", "1.0") }, "f/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "d/1.0") }, "b/1.0")
	p.add(func() *recipe.Recipe {
		rc := recipe.New("c", "1.0")
		rc.SetHook(recipe.HookRequirements, func(r *recipe.Recipe) error {
			r.Requires.AddRef(ref.MustParse("d/1.0"))
			return nil
		})
		rc.SetHook(recipe.HookConfigOptions, func(r *recipe.Recipe) error {
			// Disagree with e's value in d's closure to force d's
			// re-expansion.
			r.Options.SetDep("e", "shared", "True")
			return nil
		})
		return rc
	}, "c/1.0")

	_, err := buildGraph(t, p, testRecipe("a", "1.0", "b/1.0", "c/1.0"))
	var userErr *recipe.UserError
	if !errors.As(err, &userErr) {
		t.Fatalf("expected *recipe.UserError for non-deterministic requirements, got %v", err)
	}
	if userErr.Hook != recipe.HookRequirements {
		t.Errorf("error should cite requirements(), got %q", userErr.Hook)
	}
}

func TestBuildDiamondReexpansion(t *testing.T) {
	p := newFakeProvider()

	dRequirementsCalls := 0
	p.add(func() *recipe.Recipe {
		rc := recipe.New("d", "1.0")
		rc.SetHook(recipe.HookRequirements, func(r *recipe.Recipe) error {
			dRequirementsCalls++
			r.Requires.AddRef(ref.MustParse("e/1.0"))
			return nil
		})
		return rc
	}, "d/1.0")
	p.add(func() *recipe.Recipe {
		rc := recipe.New("e", "1.0")
		rc.Options.Define("shared", "False", "True", "False")
		return rc
	}, "e/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "d/1.0") }, "b/1.0")
	p.add(func() *recipe.Recipe {
		rc := recipe.New("c", "1.0")
		rc.SetHook(recipe.HookRequirements, func(r *recipe.Recipe) error {
			r.Requires.AddRef(ref.MustParse("d/1.0"))
			return nil
		})
		rc.SetHook(recipe.HookConfigOptions, func(r *recipe.Recipe) error {
			// e sits in d's closure with shared=False; this
			// assignment disagrees, forcing d's re-expansion.
			r.Options.SetDep("e", "shared", "True")
			return nil
		})
		return rc
	}, "c/1.0")

	g, err := buildGraph(t, p, testRecipe("a", "1.0", "b/1.0", "c/1.0"))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if dRequirementsCalls < 2 {
		t.Errorf("d should have been re-evaluated, requirements ran %d time(s)", dRequirementsCalls)
	}
	// The restore-before-reevaluation rule keeps the requires list
	// from accumulating.
	d := findNode(g, "d")
	if d.Recipe.Requires.Len() != 1 {
		t.Errorf("d.requires accumulated across re-evaluations: %s", d.Recipe.Requires)
	}
	if len(g.Nodes) != 5 {
		t.Errorf("got %d nodes, want 5", len(g.Nodes))
	}
}

func TestBuildDiamondTerminatesWithoutChanges(t *testing.T) {
	p := newFakeProvider()
	dCalls := 0
	p.add(func() *recipe.Recipe {
		rc := recipe.New("d", "1.0")
		rc.SetHook(recipe.HookRequirements, func(r *recipe.Recipe) error {
			dCalls++
			return nil
		})
		return rc
	}, "d/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("b", "1.0", "d/1.0") }, "b/1.0")
	p.add(func() *recipe.Recipe { return testRecipe("c", "1.0", "d/1.0") }, "c/1.0")

	_, err := buildGraph(t, p, testRecipe("a", "1.0", "b/1.0", "c/1.0"))
	if err != nil {
		t.Fatal(err)
	}
	if dCalls != 1 {
		t.Errorf("compatible re-visit should terminate at an edge add, requirements ran %d times", dCalls)
	}
}
