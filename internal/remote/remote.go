// Package remote models the ordered set of configured remotes and the
// client protocol the binary analyzer uses against them: recipe and
// package manifests, package info and package archives.
package remote

import (
	"github.com/tsukumogami/hako/internal/manifest"
	"github.com/tsukumogami/hako/internal/pkginfo"
	"github.com/tsukumogami/hako/internal/ref"
)

// Remote is one configured remote.
type Remote struct {
	Name      string
	URL       string
	VerifySSL bool
}

// Remotes is the ordered remote list plus an optional user selection.
// When a remote is explicitly selected it is used exclusively.
type Remotes struct {
	list     []*Remote
	selected string
}

// NewRemotes builds the set preserving declaration order.
func NewRemotes(remotes ...*Remote) *Remotes {
	return &Remotes{list: remotes}
}

// Select marks one remote as the exclusive choice. An empty name
// clears the selection.
func (r *Remotes) Select(name string) error {
	if name != "" && r.Get(name) == nil {
		return &NotFoundError{What: "remote " + name}
	}
	r.selected = name
	return nil
}

// Selected returns the explicitly selected remote, or nil.
func (r *Remotes) Selected() *Remote {
	if r.selected == "" {
		return nil
	}
	return r.Get(r.selected)
}

// Get returns a remote by name, or nil.
func (r *Remotes) Get(name string) *Remote {
	for _, rem := range r.list {
		if rem.Name == name {
			return rem
		}
	}
	return nil
}

// All returns the remotes in declaration order.
func (r *Remotes) All() []*Remote {
	return append([]*Remote(nil), r.list...)
}

// Len returns the number of configured remotes.
func (r *Remotes) Len() int { return len(r.list) }

// Client is the protocol the graph core speaks to a remote. NotFound
// and NoRemoteAvailable errors are non-fatal to analysis; anything
// else propagates.
type Client interface {
	// GetRecipe fetches the recipe file for a reference.
	GetRecipe(r ref.Reference, remote *Remote) ([]byte, ref.Reference, error)

	// GetRecipeManifest fetches the recipe manifest.
	GetRecipeManifest(r ref.Reference, remote *Remote) (*manifest.Manifest, error)

	// GetPackageManifest fetches a binary's manifest. The returned
	// pref carries the package revision the remote serves.
	GetPackageManifest(pref ref.PackageReference, remote *Remote) (*manifest.Manifest, ref.PackageReference, error)

	// GetPackageInfo fetches a binary's package info text.
	GetPackageInfo(pref ref.PackageReference, remote *Remote) (*pkginfo.Info, ref.PackageReference, error)

	// DownloadPackage fetches and unpacks a binary into destDir.
	DownloadPackage(pref ref.PackageReference, remote *Remote, destDir string) error

	// UploadPackage uploads a binary as a files map: archive path →
	// local file path.
	UploadPackage(pref ref.PackageReference, remote *Remote, files map[string]string) error
}
