// Package proxy resolves references to loaded recipes: workspace and
// editable entries first, then the local cache, then the configured
// remotes, exporting downloaded recipes into the cache on the way.
package proxy

import (
	"github.com/tsukumogami/hako/internal/cache"
	"github.com/tsukumogami/hako/internal/log"
	"github.com/tsukumogami/hako/internal/recipe"
	"github.com/tsukumogami/hako/internal/ref"
	"github.com/tsukumogami/hako/internal/remote"
)

// Client is the remote surface the proxy needs: the analyzer protocol
// plus recipe search for version ranges.
type Client interface {
	remote.Client
	SearchRecipes(name string, r *remote.Remote) ([]ref.Reference, error)
}

// Proxy implements recipe.Provider.
type Proxy struct {
	cache   *cache.Cache
	client  Client
	remotes *remote.Remotes
	logger  log.Logger

	// editables and workspace map references (without revision) to
	// recipe file paths outside the cache.
	editables map[ref.Reference]string
	workspace map[ref.Reference]string
}

// New returns a proxy over the given cache and remotes.
func New(c *cache.Cache, client Client, remotes *remote.Remotes, logger log.Logger) *Proxy {
	if logger == nil {
		logger = log.Default()
	}
	return &Proxy{
		cache:     c,
		client:    client,
		remotes:   remotes,
		logger:    logger,
		editables: make(map[ref.Reference]string),
		workspace: make(map[ref.Reference]string),
	}
}

// AddEditable registers a reference served from a local working copy.
func (p *Proxy) AddEditable(r ref.Reference, path string) {
	p.editables[r.ClearRev()] = path
}

// AddWorkspace registers a workspace member.
func (p *Proxy) AddWorkspace(r ref.Reference, path string) {
	p.workspace[r.ClearRev()] = path
}

// GetRecipe implements recipe.Provider.
func (p *Proxy) GetRecipe(r ref.Reference, checkUpdates, update bool, remoteName string) (*recipe.Recipe, recipe.Status, string, ref.Reference, error) {
	if path, ok := p.workspace[r.ClearRev()]; ok {
		rc, err := recipe.Load(path)
		if err != nil {
			return nil, "", "", ref.Reference{}, err
		}
		return rc, recipe.StatusWorkspace, "", r, nil
	}
	if path, ok := p.editables[r.ClearRev()]; ok {
		rc, err := recipe.Load(path)
		if err != nil {
			return nil, "", "", ref.Reference{}, err
		}
		// Editable references never carry a revision.
		return rc, recipe.StatusEditable, "", r.ClearRev(), nil
	}

	layout := p.cache.PackageLayout(r, false)
	if layout.HasRecipe() {
		return p.fromCache(layout, r, checkUpdates, update, remoteName)
	}
	return p.fromRemotes(layout, r, remoteName)
}

// fromCache serves a cached recipe, optionally probing the remote for
// a newer one when updates were requested.
func (p *Proxy) fromCache(layout *cache.Layout, r ref.Reference, checkUpdates, update bool, remoteName string) (*recipe.Recipe, recipe.Status, string, ref.Reference, error) {
	meta, err := layout.LoadMetadata()
	if err != nil {
		return nil, "", "", ref.Reference{}, err
	}
	status := recipe.StatusInCache
	origin := meta.Recipe.Remote

	probe := p.remoteFor(remoteName, origin)
	if checkUpdates && probe != nil {
		upstream, err := p.client.GetRecipeManifest(r, probe)
		switch {
		case err == nil:
			local, manifestErr := layout.RecipeManifest()
			if manifestErr == nil && upstream.NewerThan(local) && !upstream.SameContent(local) {
				if update {
					if err := p.downloadRecipe(layout, r, probe); err != nil {
						return nil, "", "", ref.Reference{}, err
					}
					status = recipe.StatusUpdated
				} else {
					p.logger.Info("newer recipe available in remote",
						"ref", r.String(), "remote", probe.Name)
				}
			}
		case remote.IsNotFound(err):
			p.logger.Debug("recipe not found while checking updates",
				"ref", r.String(), "remote", probe.Name)
		default:
			return nil, "", "", ref.Reference{}, err
		}
	}
	if origin == "" && p.remotes.Len() == 0 {
		status = recipe.StatusNoRemote
	}

	rc, err := recipe.Load(layout.RecipePath())
	if err != nil {
		return nil, "", "", ref.Reference{}, err
	}
	resolved := r
	if resolved.Revision == "" {
		resolved.Revision = meta.Recipe.Revision
	}
	return rc, status, origin, resolved, nil
}

// fromRemotes downloads a recipe from the first remote that has it.
func (p *Proxy) fromRemotes(layout *cache.Layout, r ref.Reference, remoteName string) (*recipe.Recipe, recipe.Status, string, ref.Reference, error) {
	candidates := p.remotes.All()
	if remoteName != "" {
		named := p.remotes.Get(remoteName)
		if named == nil {
			return nil, "", "", ref.Reference{}, &remote.NotFoundError{What: "remote " + remoteName}
		}
		candidates = []*remote.Remote{named}
	}
	if len(candidates) == 0 {
		return nil, "", "", ref.Reference{}, &recipe.NotFoundError{Ref: r}
	}

	for _, rem := range candidates {
		data, resolved, err := p.client.GetRecipe(r, rem)
		if err != nil {
			if remote.IsNotFound(err) {
				continue
			}
			return nil, "", "", ref.Reference{}, err
		}
		if err := layout.ExportRecipe(data); err != nil {
			return nil, "", "", ref.Reference{}, err
		}
		meta, err := layout.LoadMetadata()
		if err != nil {
			return nil, "", "", ref.Reference{}, err
		}
		meta.Recipe.Remote = rem.Name
		meta.Recipe.Revision = resolved.Revision
		if err := layout.SaveMetadata(meta); err != nil {
			return nil, "", "", ref.Reference{}, err
		}
		rc, err := recipe.Parse(data)
		if err != nil {
			return nil, "", "", ref.Reference{}, err
		}
		p.logger.Info("recipe downloaded", "ref", resolved.String(), "remote", rem.Name)
		return rc, recipe.StatusDownloaded, rem.Name, resolved, nil
	}
	return nil, "", "", ref.Reference{}, &recipe.NotFoundError{Ref: r, Remote: remoteName}
}

func (p *Proxy) downloadRecipe(layout *cache.Layout, r ref.Reference, rem *remote.Remote) error {
	data, resolved, err := p.client.GetRecipe(r, rem)
	if err != nil {
		return err
	}
	if err := layout.ExportRecipe(data); err != nil {
		return err
	}
	meta, err := layout.LoadMetadata()
	if err != nil {
		return err
	}
	meta.Recipe.Remote = rem.Name
	meta.Recipe.Revision = resolved.Revision
	return layout.SaveMetadata(meta)
}

// remoteFor picks the remote to probe: the explicitly named one, the
// recorded origin, or nil.
func (p *Proxy) remoteFor(remoteName, origin string) *remote.Remote {
	if remoteName != "" {
		return p.remotes.Get(remoteName)
	}
	if origin != "" {
		return p.remotes.Get(origin)
	}
	return nil
}

// SearchRemoteRecipes lists the references remotes serve for a name,
// satisfying the range resolver's remote search.
func (p *Proxy) SearchRemoteRecipes(name, remoteName string) ([]ref.Reference, error) {
	candidates := p.remotes.All()
	if remoteName != "" {
		named := p.remotes.Get(remoteName)
		if named == nil {
			return nil, &remote.NotFoundError{What: "remote " + remoteName}
		}
		candidates = []*remote.Remote{named}
	}
	seen := make(map[ref.Reference]bool)
	var out []ref.Reference
	for _, rem := range candidates {
		found, err := p.client.SearchRecipes(name, rem)
		if err != nil {
			if remote.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		for _, r := range found {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out, nil
}
