// Package graph implements the dependency graph core: recursive graph
// construction from a root recipe (version ranges, aliases, option and
// requirement propagation, conflict and loop detection, private
// subtree isolation) and the binary analysis that decides, node by
// node, whether a prebuilt binary is reused, downloaded, rebuilt or
// missing.
package graph

import (
	"github.com/tsukumogami/hako/internal/lockfile"
	"github.com/tsukumogami/hako/internal/recipe"
	"github.com/tsukumogami/hako/internal/ref"
	"github.com/tsukumogami/hako/internal/remote"
)

// Binary is a node's binary disposition, decided by the Analyzer.
type Binary string

const (
	BinaryBuild    Binary = "build"
	BinaryCache    Binary = "cache"
	BinaryDownload Binary = "download"
	BinaryUpdate   Binary = "update"
	BinaryMissing  Binary = "missing"
	BinarySkip     Binary = "skip"
	BinaryEditable Binary = "editable"
)

// Edge is one requirement edge between two nodes.
type Edge struct {
	Src     *Node
	Dst     *Node
	Private bool
}

// Node is one vertex of the dependency graph. Nodes are created during
// expansion, mutated only by the traversal that created them, and
// written again only by the binary analyzer (PackageID, Binary, Prev).
type Node struct {
	Ref    ref.Reference
	Recipe *recipe.Recipe

	// RecipeStatus is the provenance of the loaded recipe.
	RecipeStatus recipe.Status

	// Remote is the name of the remote the recipe came from, if any.
	Remote string

	// RevisionPinned records whether the requirement that created this
	// node pinned an explicit recipe revision.
	RevisionPinned bool

	// Ancestors are the references transitively upstream on the DFS
	// path that created this node; used for loop detection.
	Ancestors map[ref.Reference]bool

	// publicDeps is the name → node namespace visible across
	// non-private edges. Nodes joined by public edges share the same
	// map; a private child gets its parent's closure as namespace.
	publicDeps map[string]*Node

	// publicClosure is the set of nodes reachable from this node by
	// non-private edges, keyed by package name. Each dependent keeps
	// its own closure view.
	publicClosure map[string]*Node

	dependencies []*Edge
	dependents   []*Edge

	// Filled by the binary analyzer.
	PackageID     string
	Prev          string
	Binary        Binary
	BinaryNonSkip Binary
	BinaryRemote  *remote.Remote

	// GraphLockNode pins this node's pref when a lockfile is in use.
	GraphLockNode *lockfile.Node
}

// NewNode creates a node for a loaded recipe.
func NewNode(r ref.Reference, rc *recipe.Recipe, status recipe.Status) *Node {
	return &Node{
		Ref:          r,
		Recipe:       rc,
		RecipeStatus: status,
		Ancestors:    make(map[ref.Reference]bool),
	}
}

// NewRootNode creates the graph entry point: a consumer or virtual
// node with an empty namespace and closure.
func NewRootNode(rc *recipe.Recipe, status recipe.Status) *Node {
	n := NewNode(rc.Ref(), rc, status)
	n.publicDeps = make(map[string]*Node)
	n.publicClosure = make(map[string]*Node)
	return n
}

// PublicDeps returns the node's namespace view.
func (n *Node) PublicDeps() map[string]*Node { return n.publicDeps }

// PublicClosure returns the node's public closure view.
func (n *Node) PublicClosure() map[string]*Node { return n.publicClosure }

// Dependencies returns the outgoing edges in creation order.
func (n *Node) Dependencies() []*Edge { return n.dependencies }

// Dependents returns the incoming edges.
func (n *Node) Dependents() []*Edge { return n.dependents }

// Neighbors returns the direct requirement nodes, private included.
func (n *Node) Neighbors() []*Node {
	out := make([]*Node, 0, len(n.dependencies))
	for _, e := range n.dependencies {
		out = append(out, e.Dst)
	}
	return out
}

// PrivateNeighbors returns the nodes reached through private edges.
func (n *Node) PrivateNeighbors() []*Node {
	var out []*Node
	for _, e := range n.dependencies {
		if e.Private {
			out = append(out, e.Dst)
		}
	}
	return out
}

// Pref returns the node's package reference. Valid once the analyzer
// has filled PackageID; Prev is included when known.
func (n *Node) Pref() ref.PackageReference {
	return ref.PackageReference{Ref: n.Ref, PackageID: n.PackageID, Revision: n.Prev}
}

// IsConsumer reports whether this node is the user's own project or a
// virtual root rather than a dependency.
func (n *Node) IsConsumer() bool {
	return n.RecipeStatus == recipe.StatusConsumer || n.RecipeStatus == recipe.StatusVirtual
}

// Graph is the dependency DAG. The graph owns node storage; namespace
// and closure maps reference nodes without owning them.
type Graph struct {
	Root  *Node
	Nodes []*Node

	// Aliased records alias recipes chased during expansion:
	// original reference → forwarded reference.
	Aliased map[ref.Reference]ref.Reference

	// evaluated deduplicates binary analysis per pref: the first node
	// decides, later ones copy.
	evaluated map[ref.PackageReference][]*Node
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Aliased:   make(map[ref.Reference]ref.Reference),
		evaluated: make(map[ref.PackageReference][]*Node),
	}
}

// AddNode appends a node; the first node added becomes the root.
func (g *Graph) AddNode(n *Node) {
	if g.Root == nil {
		g.Root = n
	}
	g.Nodes = append(g.Nodes, n)
}

// AddEdge links src to dst. Re-expansion of a diamond may visit the
// same pair twice; the edge is recorded once.
func (g *Graph) AddEdge(src, dst *Node, private bool) {
	for _, e := range src.dependencies {
		if e.Dst == dst {
			return
		}
	}
	e := &Edge{Src: src, Dst: dst, Private: private}
	src.dependencies = append(src.dependencies, e)
	dst.dependents = append(dst.dependents, e)
}

// OrderedIterate yields the nodes leaves-first, so every node is
// visited after all of its direct requirements. Within a level, nodes
// keep insertion order.
func (g *Graph) OrderedIterate() []*Node {
	levels := make(map[*Node]int, len(g.Nodes))
	var level func(n *Node) int
	level = func(n *Node) int {
		if l, ok := levels[n]; ok {
			return l
		}
		levels[n] = 0 // breaks accidental cycles; builder guarantees none
		deepest := 0
		for _, e := range n.dependencies {
			if l := level(e.Dst) + 1; l > deepest {
				deepest = l
			}
		}
		levels[n] = deepest
		return deepest
	}
	maxLevel := 0
	for _, n := range g.Nodes {
		if l := level(n); l > maxLevel {
			maxLevel = l
		}
	}
	out := make([]*Node, 0, len(g.Nodes))
	for l := 0; l <= maxLevel; l++ {
		for _, n := range g.Nodes {
			if levels[n] == l {
				out = append(out, n)
			}
		}
	}
	return out
}
