// Package cache implements the local package store: a per-reference
// directory layout with exported recipes, package folders keyed by
// package id, JSON metadata, dirty markers for crash recovery and
// package-level locks.
//
// Layout under the storage root:
//
//	<name>/<version>/<user>/<channel>/
//	    export/              recipe and recipe manifest
//	    package/<pkgid>/     one installed binary per package id
//	    metadata.json
//
// Empty user/channel store as "_".
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tsukumogami/hako/internal/manifest"
	"github.com/tsukumogami/hako/internal/ref"
)

const (
	metadataFile = "metadata.json"
	dirtySuffix  = ".dirty"
	exportDir    = "export"
	packageDir   = "package"

	// RecipeFile is the exported recipe file name.
	RecipeFile = "recipe.toml"
)

// PackageMetadata is the per-binary slice of a reference's metadata.
type PackageMetadata struct {
	Revision       string `json:"revision,omitempty"`
	Remote         string `json:"remote,omitempty"`
	RecipeRevision string `json:"recipe_revision,omitempty"`
}

// RecipeMetadata records where the recipe came from.
type RecipeMetadata struct {
	Remote   string `json:"remote,omitempty"`
	Revision string `json:"revision,omitempty"`
}

// Metadata is the persisted state of one reference in the cache.
type Metadata struct {
	Recipe   RecipeMetadata              `json:"recipe"`
	Packages map[string]*PackageMetadata `json:"packages"`
}

// Package returns the metadata slice for a package id, creating it.
func (m *Metadata) Package(packageID string) *PackageMetadata {
	if m.Packages == nil {
		m.Packages = make(map[string]*PackageMetadata)
	}
	p, ok := m.Packages[packageID]
	if !ok {
		p = &PackageMetadata{}
		m.Packages[packageID] = p
	}
	return p
}

// Cache is the local package store rooted at a storage directory.
type Cache struct {
	base string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a cache rooted at base.
func New(base string) *Cache {
	return &Cache{base: base, locks: make(map[string]*sync.Mutex)}
}

// Base returns the storage root.
func (c *Cache) Base() string { return c.base }

// refPath returns the directory of a reference.
func (c *Cache) refPath(r ref.Reference) string {
	user, channel := r.User, r.Channel
	if user == "" {
		user = "_"
	}
	if channel == "" {
		channel = "_"
	}
	return filepath.Join(c.base, r.Name, r.Version, user, channel)
}

// PackageLayout returns the layout for one reference. shortPaths is
// accepted for recipes that request it but does not change the layout:
// every reference gets the plain layout.
func (c *Cache) PackageLayout(r ref.Reference, shortPaths bool) *Layout {
	return &Layout{cache: c, ref: r, base: c.refPath(r)}
}

// IsDirty reports whether a path carries a dirty marker from an
// interrupted write.
func (c *Cache) IsDirty(path string) bool {
	_, err := os.Stat(path + dirtySuffix)
	return err == nil
}

// MarkDirty places a dirty marker next to path. Writers mark before
// mutating and clear after an atomic finalize.
func (c *Cache) MarkDirty(path string) error {
	return os.WriteFile(path+dirtySuffix, nil, 0644)
}

// ClearDirty removes the dirty marker.
func (c *Cache) ClearDirty(path string) error {
	err := os.Remove(path + dirtySuffix)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// RemoveDir deletes a directory and its dirty marker.
func (c *Cache) RemoveDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return c.ClearDirty(path)
}

// lockFor returns the process-wide mutex for a (reference, package id)
// pair. The builder and analyzer are single-threaded; the lock guards
// against concurrent hako processes' helpers inside this one.
func (c *Cache) lockFor(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// SearchRecipes returns the references of all cached recipes for a
// package name, every version/user/channel combination present.
func (c *Cache) SearchRecipes(name string) ([]ref.Reference, error) {
	nameDir := filepath.Join(c.base, name)
	versions, err := os.ReadDir(nameDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []ref.Reference
	for _, v := range versions {
		if !v.IsDir() {
			continue
		}
		users, err := os.ReadDir(filepath.Join(nameDir, v.Name()))
		if err != nil {
			continue
		}
		for _, u := range users {
			if !u.IsDir() {
				continue
			}
			channels, err := os.ReadDir(filepath.Join(nameDir, v.Name(), u.Name()))
			if err != nil {
				continue
			}
			for _, ch := range channels {
				if !ch.IsDir() {
					continue
				}
				r := ref.Reference{Name: name, Version: v.Name()}
				if u.Name() != "_" {
					r.User = u.Name()
					r.Channel = ch.Name()
				} else if ch.Name() != "_" {
					continue
				}
				// Only count entries with an exported recipe.
				if _, err := os.Stat(filepath.Join(nameDir, v.Name(), u.Name(), ch.Name(), exportDir, RecipeFile)); err == nil {
					out = append(out, r)
				}
			}
		}
	}
	return out, nil
}

// Layout is the on-disk layout of one reference.
type Layout struct {
	cache *Cache
	ref   ref.Reference
	base  string
}

// Ref returns the layout's reference.
func (l *Layout) Ref() ref.Reference { return l.ref }

// BasePath returns the reference directory.
func (l *Layout) BasePath() string { return l.base }

// ExportPath returns the exported recipe directory.
func (l *Layout) ExportPath() string { return filepath.Join(l.base, exportDir) }

// RecipePath returns the exported recipe file.
func (l *Layout) RecipePath() string { return filepath.Join(l.ExportPath(), RecipeFile) }

// Package returns the package folder for a pref.
func (l *Layout) Package(pref ref.PackageReference) string {
	return filepath.Join(l.base, packageDir, pref.PackageID)
}

// PackageLock returns the mutex guarding cache mutation for a pref.
// Hold it around dirty checks, metadata loads and folder removal, and
// never across network I/O.
func (l *Layout) PackageLock(pref ref.PackageReference) sync.Locker {
	key := l.ref.ClearRev().String() + ":" + pref.PackageID
	return l.cache.lockFor(key)
}

// LoadMetadata reads the reference's metadata, returning an empty
// record when none exists yet.
func (l *Layout) LoadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(l.base, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Metadata{Packages: make(map[string]*PackageMetadata)}, nil
		}
		return nil, fmt.Errorf("failed to read metadata for %s: %w", l.ref, err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupted metadata for %s: %w", l.ref, err)
	}
	if m.Packages == nil {
		m.Packages = make(map[string]*PackageMetadata)
	}
	return &m, nil
}

// SaveMetadata writes the reference's metadata atomically.
func (l *Layout) SaveMetadata(m *Metadata) error {
	if err := os.MkdirAll(l.base, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(l.base, metadataFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(l.base, metadataFile))
}

// RecipeManifest loads the exported recipe's manifest, used by the
// outdated check.
func (l *Layout) RecipeManifest() (*manifest.Manifest, error) {
	return manifest.Load(l.ExportPath())
}

// ExportRecipe stores recipe bytes and a fresh manifest in the export
// folder.
func (l *Layout) ExportRecipe(data []byte) error {
	if err := os.MkdirAll(l.ExportPath(), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(l.RecipePath(), data, 0644); err != nil {
		return err
	}
	m, err := manifest.Create(l.ExportPath())
	if err != nil {
		return err
	}
	return m.Save(l.ExportPath())
}

// HasRecipe reports whether a recipe is exported for this reference.
func (l *Layout) HasRecipe() bool {
	_, err := os.Stat(l.RecipePath())
	return err == nil
}

// String renders the layout for log lines.
func (l *Layout) String() string {
	return strings.TrimPrefix(l.base, l.cache.base+string(filepath.Separator))
}
