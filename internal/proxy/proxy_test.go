package proxy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tsukumogami/hako/internal/cache"
	"github.com/tsukumogami/hako/internal/log"
	"github.com/tsukumogami/hako/internal/manifest"
	"github.com/tsukumogami/hako/internal/pkginfo"
	"github.com/tsukumogami/hako/internal/recipe"
	"github.com/tsukumogami/hako/internal/ref"
	"github.com/tsukumogami/hako/internal/remote"
)

const zlibRecipe = `
[package]
name = "zlib"
version = "1.2.11"
`

type fakeClient struct {
	recipes   map[string]map[string][]byte // remote → ref → recipe bytes
	manifests map[string]map[string]*manifest.Manifest
	searches  map[string][]ref.Reference
	getCalls  int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		recipes:   make(map[string]map[string][]byte),
		manifests: make(map[string]map[string]*manifest.Manifest),
		searches:  make(map[string][]ref.Reference),
	}
}

func (c *fakeClient) serveRecipe(remoteName, refStr string, data []byte, m *manifest.Manifest) {
	if c.recipes[remoteName] == nil {
		c.recipes[remoteName] = make(map[string][]byte)
		c.manifests[remoteName] = make(map[string]*manifest.Manifest)
	}
	c.recipes[remoteName][refStr] = data
	c.manifests[remoteName][refStr] = m
}

func (c *fakeClient) GetRecipe(r ref.Reference, rem *remote.Remote) ([]byte, ref.Reference, error) {
	c.getCalls++
	data, ok := c.recipes[rem.Name][r.ClearRev().String()]
	if !ok {
		return nil, ref.Reference{}, &remote.NotFoundError{What: "recipe " + r.String(), Remote: rem.Name}
	}
	return data, r, nil
}

func (c *fakeClient) GetRecipeManifest(r ref.Reference, rem *remote.Remote) (*manifest.Manifest, error) {
	m, ok := c.manifests[rem.Name][r.ClearRev().String()]
	if !ok || m == nil {
		return nil, &remote.NotFoundError{What: "recipe manifest", Remote: rem.Name}
	}
	return m, nil
}

func (c *fakeClient) GetPackageManifest(pref ref.PackageReference, rem *remote.Remote) (*manifest.Manifest, ref.PackageReference, error) {
	return nil, ref.PackageReference{}, &remote.NotFoundError{What: pref.String(), Remote: rem.Name}
}

func (c *fakeClient) GetPackageInfo(pref ref.PackageReference, rem *remote.Remote) (*pkginfo.Info, ref.PackageReference, error) {
	return nil, ref.PackageReference{}, &remote.NotFoundError{What: pref.String(), Remote: rem.Name}
}

func (c *fakeClient) DownloadPackage(pref ref.PackageReference, rem *remote.Remote, destDir string) error {
	return &remote.NotFoundError{What: pref.String(), Remote: rem.Name}
}

func (c *fakeClient) UploadPackage(pref ref.PackageReference, rem *remote.Remote, files map[string]string) error {
	return nil
}

func (c *fakeClient) SearchRecipes(name string, rem *remote.Remote) ([]ref.Reference, error) {
	return c.searches[name], nil
}

func TestGetRecipeDownloadsAndExports(t *testing.T) {
	store := cache.New(t.TempDir())
	client := newFakeClient()
	client.serveRecipe("origin", "zlib/1.2.11", []byte(zlibRecipe), nil)
	remotes := remote.NewRemotes(&remote.Remote{Name: "origin", URL: "http://origin"})
	p := New(store, client, remotes, log.NewNoop())

	rc, status, origin, resolved, err := p.GetRecipe(ref.MustParse("zlib/1.2.11"), false, false, "")
	if err != nil {
		t.Fatalf("GetRecipe() error: %v", err)
	}
	if status != recipe.StatusDownloaded || origin != "origin" {
		t.Errorf("status=%s origin=%s", status, origin)
	}
	if rc.Name != "zlib" || resolved.Name != "zlib" {
		t.Errorf("recipe identity = %s", rc.DisplayName())
	}

	layout := store.PackageLayout(ref.MustParse("zlib/1.2.11"), false)
	if !layout.HasRecipe() {
		t.Error("downloaded recipe not exported to cache")
	}
	meta, err := layout.LoadMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if meta.Recipe.Remote != "origin" {
		t.Errorf("recipe remote not recorded: %+v", meta.Recipe)
	}
}

func TestGetRecipeServedFromCache(t *testing.T) {
	store := cache.New(t.TempDir())
	client := newFakeClient()
	client.serveRecipe("origin", "zlib/1.2.11", []byte(zlibRecipe), nil)
	remotes := remote.NewRemotes(&remote.Remote{Name: "origin", URL: "http://origin"})
	p := New(store, client, remotes, log.NewNoop())

	if _, _, _, _, err := p.GetRecipe(ref.MustParse("zlib/1.2.11"), false, false, ""); err != nil {
		t.Fatal(err)
	}
	callsAfterDownload := client.getCalls

	_, status, _, _, err := p.GetRecipe(ref.MustParse("zlib/1.2.11"), false, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if status != recipe.StatusInCache {
		t.Errorf("second fetch status = %s, want in_cache", status)
	}
	if client.getCalls != callsAfterDownload {
		t.Error("cache hit should not touch the remote")
	}
}

func TestGetRecipeUpdateFetchesNewer(t *testing.T) {
	store := cache.New(t.TempDir())
	client := newFakeClient()
	client.serveRecipe("origin", "zlib/1.2.11", []byte(zlibRecipe), nil)
	remotes := remote.NewRemotes(&remote.Remote{Name: "origin", URL: "http://origin"})
	p := New(store, client, remotes, log.NewNoop())

	if _, _, _, _, err := p.GetRecipe(ref.MustParse("zlib/1.2.11"), false, false, ""); err != nil {
		t.Fatal(err)
	}

	// Upstream now serves a changed recipe with a newer manifest.
	layout := store.PackageLayout(ref.MustParse("zlib/1.2.11"), false)
	local, err := layout.RecipeManifest()
	if err != nil {
		t.Fatal(err)
	}
	updated := []byte(zlibRecipe + "\n[options.shared]\ndefault = \"False\"\n")
	client.serveRecipe("origin", "zlib/1.2.11", updated,
		&manifest.Manifest{Time: local.Time + 100, Files: map[string]string{"recipe.toml": "ffff"}})

	_, status, _, _, err := p.GetRecipe(ref.MustParse("zlib/1.2.11"), true, true, "")
	if err != nil {
		t.Fatal(err)
	}
	if status != recipe.StatusUpdated {
		t.Errorf("status = %s, want updated", status)
	}
	data, err := os.ReadFile(layout.RecipePath())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(updated) {
		t.Error("updated recipe not re-exported")
	}
}

func TestGetRecipeCheckUpdatesWithoutUpdateKeepsCache(t *testing.T) {
	store := cache.New(t.TempDir())
	client := newFakeClient()
	client.serveRecipe("origin", "zlib/1.2.11", []byte(zlibRecipe), nil)
	remotes := remote.NewRemotes(&remote.Remote{Name: "origin", URL: "http://origin"})
	p := New(store, client, remotes, log.NewNoop())

	if _, _, _, _, err := p.GetRecipe(ref.MustParse("zlib/1.2.11"), false, false, ""); err != nil {
		t.Fatal(err)
	}
	layout := store.PackageLayout(ref.MustParse("zlib/1.2.11"), false)
	local, _ := layout.RecipeManifest()
	client.serveRecipe("origin", "zlib/1.2.11", []byte("changed"),
		&manifest.Manifest{Time: local.Time + 100, Files: map[string]string{"recipe.toml": "ffff"}})

	_, status, _, _, err := p.GetRecipe(ref.MustParse("zlib/1.2.11"), true, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if status != recipe.StatusInCache {
		t.Errorf("check without update should keep the cache copy, got %s", status)
	}
}

func TestGetRecipeEditable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.toml")
	if err := os.WriteFile(path, []byte(zlibRecipe), 0644); err != nil {
		t.Fatal(err)
	}

	p := New(cache.New(t.TempDir()), newFakeClient(), remote.NewRemotes(), log.NewNoop())
	p.AddEditable(ref.MustParse("zlib/1.2.11"), path)

	_, status, _, resolved, err := p.GetRecipe(ref.MustParse("zlib/1.2.11#somerev"), false, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if status != recipe.StatusEditable {
		t.Errorf("status = %s, want editable", status)
	}
	if resolved.Revision != "" {
		t.Error("editable references must not carry revisions")
	}
}

func TestGetRecipeNotFound(t *testing.T) {
	remotes := remote.NewRemotes(&remote.Remote{Name: "origin", URL: "http://origin"})
	p := New(cache.New(t.TempDir()), newFakeClient(), remotes, log.NewNoop())

	_, _, _, _, err := p.GetRecipe(ref.MustParse("ghost/1.0"), false, false, "")
	var notFound *recipe.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *recipe.NotFoundError, got %v", err)
	}
}

func TestGetRecipeNoRemotesConfigured(t *testing.T) {
	p := New(cache.New(t.TempDir()), newFakeClient(), remote.NewRemotes(), log.NewNoop())
	_, _, _, _, err := p.GetRecipe(ref.MustParse("ghost/1.0"), false, false, "")
	var notFound *recipe.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *recipe.NotFoundError, got %v", err)
	}
}

func TestSearchRemoteRecipesDeduplicates(t *testing.T) {
	client := newFakeClient()
	client.searches["zlib"] = []ref.Reference{
		ref.MustParse("zlib/1.2.11"),
		ref.MustParse("zlib/1.3.1"),
	}
	remotes := remote.NewRemotes(
		&remote.Remote{Name: "a", URL: "http://a"},
		&remote.Remote{Name: "b", URL: "http://b"},
	)
	p := New(cache.New(t.TempDir()), client, remotes, log.NewNoop())

	found, err := p.SearchRemoteRecipes("zlib", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Errorf("duplicate results across remotes not merged: %v", found)
	}
}
