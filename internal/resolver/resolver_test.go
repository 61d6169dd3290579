package resolver

import (
	"errors"
	"testing"

	"github.com/tsukumogami/hako/internal/log"
	"github.com/tsukumogami/hako/internal/recipe"
	"github.com/tsukumogami/hako/internal/ref"
)

type fakeLocal struct {
	refs map[string][]ref.Reference
}

func (f *fakeLocal) SearchRecipes(name string) ([]ref.Reference, error) {
	return f.refs[name], nil
}

type fakeRemote struct {
	refs  map[string][]ref.Reference
	calls int
}

func (f *fakeRemote) SearchRemoteRecipes(name, remoteName string) ([]ref.Reference, error) {
	f.calls++
	return f.refs[name], nil
}

func refs(t *testing.T, specs ...string) []ref.Reference {
	t.Helper()
	out := make([]ref.Reference, 0, len(specs))
	for _, s := range specs {
		out = append(out, ref.MustParse(s))
	}
	return out
}

func TestResolvePicksHighestInRange(t *testing.T) {
	local := &fakeLocal{refs: map[string][]ref.Reference{
		"d": refs(t, "d/1.0", "d/1.2", "d/2.1"),
	}}
	r := New(local, nil, log.NewNoop())

	req := &recipe.Requirement{Ref: ref.MustParse("d/[>=1.0 <2.0]")}
	if err := r.Resolve(req, "a/1.0", false, ""); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if req.Ref.String() != "d/1.2" {
		t.Errorf("resolved to %s, want d/1.2", req.Ref)
	}
}

func TestResolveNonRangeIsNoop(t *testing.T) {
	r := New(&fakeLocal{}, nil, log.NewNoop())
	req := &recipe.Requirement{Ref: ref.MustParse("d/1.0")}
	if err := r.Resolve(req, "a/1.0", false, ""); err != nil {
		t.Fatal(err)
	}
	if req.Ref.Version != "1.0" {
		t.Error("plain version must not be rewritten")
	}
}

func TestResolveNoMatch(t *testing.T) {
	local := &fakeLocal{refs: map[string][]ref.Reference{
		"d": refs(t, "d/0.5"),
	}}
	r := New(local, nil, log.NewNoop())
	req := &recipe.Requirement{Ref: ref.MustParse("d/[>=1.0]")}
	err := r.Resolve(req, "a/1.0", false, "")
	var resErr *Error
	if !errors.As(err, &resErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
}

func TestResolveInvalidRange(t *testing.T) {
	r := New(&fakeLocal{}, nil, log.NewNoop())
	req := &recipe.Requirement{Ref: ref.MustParse("d/[not a constraint]")}
	if err := r.Resolve(req, "a/1.0", false, ""); err == nil {
		t.Error("invalid constraint should fail")
	}
}

func TestResolveFallsBackToRemote(t *testing.T) {
	local := &fakeLocal{refs: map[string][]ref.Reference{}}
	remote := &fakeRemote{refs: map[string][]ref.Reference{
		"d": refs(t, "d/1.5"),
	}}
	r := New(local, remote, log.NewNoop())

	req := &recipe.Requirement{Ref: ref.MustParse("d/[>=1.0 <2.0]")}
	if err := r.Resolve(req, "a/1.0", false, ""); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if req.Ref.Version != "1.5" {
		t.Errorf("resolved to %s, want d/1.5", req.Ref)
	}
	if remote.calls != 1 {
		t.Errorf("remote searched %d times, want 1", remote.calls)
	}
}

func TestResolveLocalHitSkipsRemote(t *testing.T) {
	local := &fakeLocal{refs: map[string][]ref.Reference{
		"d": refs(t, "d/1.2"),
	}}
	remote := &fakeRemote{refs: map[string][]ref.Reference{
		"d": refs(t, "d/1.9"),
	}}
	r := New(local, remote, log.NewNoop())

	req := &recipe.Requirement{Ref: ref.MustParse("d/[>=1.0 <2.0]")}
	if err := r.Resolve(req, "a/1.0", false, ""); err != nil {
		t.Fatal(err)
	}
	if req.Ref.Version != "1.2" {
		t.Errorf("offline resolution should use cache only, got %s", req.Ref)
	}
	if remote.calls != 0 {
		t.Error("remote must not be searched when the cache matches and update is off")
	}
}

func TestResolveUpdateConsidersRemote(t *testing.T) {
	local := &fakeLocal{refs: map[string][]ref.Reference{
		"d": refs(t, "d/1.2"),
	}}
	remote := &fakeRemote{refs: map[string][]ref.Reference{
		"d": refs(t, "d/1.9"),
	}}
	r := New(local, remote, log.NewNoop())

	req := &recipe.Requirement{Ref: ref.MustParse("d/[>=1.0 <2.0]")}
	if err := r.Resolve(req, "a/1.0", true, ""); err != nil {
		t.Fatal(err)
	}
	if req.Ref.Version != "1.9" {
		t.Errorf("update resolution should consider remotes, got %s", req.Ref)
	}
}

func TestResolveKeepsUserChannelNamespace(t *testing.T) {
	local := &fakeLocal{refs: map[string][]ref.Reference{
		"d": refs(t, "d/1.5", "d/1.2@acme/stable"),
	}}
	r := New(local, nil, log.NewNoop())

	req := &recipe.Requirement{Ref: ref.MustParse("d/[>=1.0]@acme/stable")}
	if err := r.Resolve(req, "a/1.0", false, ""); err != nil {
		t.Fatal(err)
	}
	if req.Ref.String() != "d/1.2@acme/stable" {
		t.Errorf("resolution crossed user/channel namespaces: %s", req.Ref)
	}
}

func TestResolveIgnoresNonSemverCandidates(t *testing.T) {
	local := &fakeLocal{refs: map[string][]ref.Reference{
		"d": refs(t, "d/system", "d/1.1"),
	}}
	r := New(local, nil, log.NewNoop())

	req := &recipe.Requirement{Ref: ref.MustParse("d/[>=1.0]")}
	if err := r.Resolve(req, "a/1.0", false, ""); err != nil {
		t.Fatal(err)
	}
	if req.Ref.Version != "1.1" {
		t.Errorf("non-semver candidate should be skipped, got %s", req.Ref)
	}
}
