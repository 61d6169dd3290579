// Package lockfile pins resolved package references across runs. A
// graph lock maps recipe references to the exact pref that satisfied
// them, plus a modified marker consumed by cascade builds.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tsukumogami/hako/internal/ref"
)

// Node is one locked entry.
type Node struct {
	PRef     ref.PackageReference `json:"pref"`
	Modified bool                 `json:"modified,omitempty"`
}

// GraphLock is a set of locked entries keyed by the recipe reference
// without revision.
type GraphLock struct {
	Nodes map[string]*Node `json:"nodes"`
}

// New returns an empty lock.
func New() *GraphLock {
	return &GraphLock{Nodes: make(map[string]*Node)}
}

// Lookup returns the locked entry for a reference, or nil.
func (g *GraphLock) Lookup(r ref.Reference) *Node {
	if g == nil {
		return nil
	}
	return g.Nodes[r.ClearRev().String()]
}

// Pin records the pref that satisfied a reference.
func (g *GraphLock) Pin(pref ref.PackageReference) {
	g.Nodes[pref.Ref.ClearRev().String()] = &Node{PRef: pref}
}

// MarkModified flags an entry as rebuilt in this run.
func (g *GraphLock) MarkModified(r ref.Reference) {
	if n := g.Lookup(r); n != nil {
		n.Modified = true
	}
}

// lockJSON is the serialized form; prefs travel as strings.
type lockJSON struct {
	Nodes map[string]lockNodeJSON `json:"nodes"`
}

type lockNodeJSON struct {
	PRef     string `json:"pref"`
	Modified bool   `json:"modified,omitempty"`
}

// Load reads a lock from path.
func Load(path string) (*GraphLock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}
	var raw lockJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse lockfile %s: %w", path, err)
	}
	lock := New()
	for key, n := range raw.Nodes {
		pref, err := ref.ParsePackageReference(n.PRef)
		if err != nil {
			return nil, fmt.Errorf("lockfile %s entry %q: %w", path, key, err)
		}
		lock.Nodes[key] = &Node{PRef: pref, Modified: n.Modified}
	}
	return lock, nil
}

// Save writes the lock to path.
func (g *GraphLock) Save(path string) error {
	raw := lockJSON{Nodes: make(map[string]lockNodeJSON, len(g.Nodes))}
	for key, n := range g.Nodes {
		raw.Nodes[key] = lockNodeJSON{PRef: n.PRef.String(), Modified: n.Modified}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
