package graph

import (
	"os"

	"github.com/tsukumogami/hako/internal/cache"
	"github.com/tsukumogami/hako/internal/log"
	"github.com/tsukumogami/hako/internal/manifest"
	"github.com/tsukumogami/hako/internal/pkginfo"
	"github.com/tsukumogami/hako/internal/recipe"
	"github.com/tsukumogami/hako/internal/ref"
	"github.com/tsukumogami/hako/internal/remote"
)

// Cache is the slice of the local store the analyzer needs.
type Cache interface {
	PackageLayout(r ref.Reference, shortPaths bool) *cache.Layout
	IsDirty(path string) bool
	RemoveDir(path string) error
}

// Analyzer decides every node's binary disposition against the local
// cache and the configured remotes.
type Analyzer struct {
	cache  Cache
	client remote.Client
	logger log.Logger

	// RevisionsEnabled turns on revision-aware cache checks and
	// remote iteration.
	RevisionsEnabled bool

	// DefaultPackageIDMode is the requirement identity mode package
	// ids are computed with unless a recipe narrows it.
	DefaultPackageIDMode string
}

// NewAnalyzer returns an Analyzer over the given cache and remote
// client.
func NewAnalyzer(c Cache, client remote.Client, logger log.Logger) *Analyzer {
	if logger == nil {
		logger = log.Default()
	}
	return &Analyzer{
		cache:                c,
		client:               client,
		logger:               logger,
		DefaultPackageIDMode: pkginfo.SemverMode,
	}
}

// Analyze fills PackageID, Prev, Binary and BinaryRemote on every
// non-consumer node, iterating leaves-first so each node sees its
// requirements' package ids.
func (a *Analyzer) Analyze(g *Graph, buildMode *BuildMode, update bool, remotes *remote.Remotes) error {
	for _, node := range g.OrderedIterate() {
		a.computePackageID(node)
		if node.IsConsumer() {
			continue
		}
		if node.PackageID == pkginfo.PackageIDUnknown {
			node.Binary = BinaryMissing
			continue
		}
		if err := a.evaluateNode(g, node, buildMode, update, remotes); err != nil {
			return err
		}
		a.handlePrivate(node)
	}
	return nil
}

// computePackageID derives a node's package id from its frozen
// configuration and its neighbors' identities, then lets the recipe's
// package_id hook narrow the result.
func (a *Analyzer) computePackageID(node *Node) {
	rc := node.Recipe

	var direct []ref.PackageReference
	indirect := make(map[string]ref.PackageReference)
	for _, nb := range node.Neighbors() {
		pref := nb.Pref()
		direct = append(direct, pref)
		if nb.Recipe.Info != nil {
			for _, p := range nb.Recipe.Info.Requires.Nodes() {
				indirect[p.String()] = p
			}
		}
		// Record the neighbor's frozen options on this node for
		// reverse visibility.
		if nb.Recipe.Info != nil {
			for k, v := range nb.Recipe.Info.FullOptions {
				rc.Options.SetDep(nb.Ref.Name, k, v)
			}
		}
		// Keep the requirement ref aligned with the resolved node.
		if req := rc.Requires.Get(nb.Ref.Name); req != nil {
			req.Ref = nb.Ref
		}
	}

	directKeys := make(map[string]bool, len(direct))
	keepNames := make(map[string]bool)
	for _, p := range direct {
		directKeys[p.String()] = true
		keepNames[p.Ref.Name] = true
	}
	var indirectList []ref.PackageReference
	for key, p := range indirect {
		if directKeys[key] {
			continue
		}
		indirectList = append(indirectList, p)
		keepNames[p.Ref.Name] = true
	}

	rc.Options.ClearUnused(keepNames)
	rc.Options.Freeze()

	rc.Info = pkginfo.Create(rc.Settings.Values(), rc.Options.Values(),
		direct, indirectList, a.DefaultPackageIDMode)
	if err := rc.CallHook(recipe.HookPackageID); err != nil {
		// The hook only narrows an already valid configuration; a
		// failing hook leaves the unnarrowed info in place.
		a.logger.Warn("package_id() failed, using default package id",
			"recipe", rc.DisplayName(), "error", err)
	}
	node.PackageID = rc.Info.PackageID()
}

// evaluateNode runs the disposition decision for one node.
func (a *Analyzer) evaluateNode(g *Graph, node *Node, buildMode *BuildMode, update bool, remotes *remote.Remotes) error {
	rc := node.Recipe

	// Honor a lockfile pin carrying a package revision.
	var pref ref.PackageReference
	if locked := node.GraphLockNode; locked != nil && locked.PRef.PackageID == node.PackageID {
		pref = locked.PRef
	} else {
		pref = ref.NewPackageReference(node.Ref, node.PackageID)
	}

	// Deduplicate: every later node with the same pref copies the
	// first one's disposition.
	dedupKey := pref
	dedupKey.Revision = ""
	if previous := g.evaluated[dedupKey]; len(previous) > 0 {
		g.evaluated[dedupKey] = append(previous, node)
		first := previous[0]
		if first.Binary == BinarySkip {
			// The first occurrence was skipped as a private
			// dependency; this one starts from its pre-skip value and
			// may be skipped again by its own private handling.
			node.Binary = first.BinaryNonSkip
		} else {
			node.Binary = first.Binary
		}
		node.BinaryRemote = first.BinaryRemote
		node.Prev = first.Prev
		return nil
	}
	g.evaluated[dedupKey] = []*Node{node}

	if node.RecipeStatus == recipe.StatusEditable {
		node.Binary = BinaryEditable
		return nil
	}

	// Cascade needs to know whether something below is being built;
	// lockfile-modified nodes were already built and do not count.
	withDepsToBuild := false
	if buildMode.Cascade && !(node.GraphLockNode != nil && node.GraphLockNode.Modified) {
		for _, dep := range node.Neighbors() {
			if dep.Binary == BinaryBuild ||
				(dep.GraphLockNode != nil && dep.GraphLockNode.Modified) {
				withDepsToBuild = true
				break
			}
		}
	}
	if buildMode.Forced(rc, node.Ref, withDepsToBuild) {
		a.logger.Info("forced build from source", "ref", node.Ref.String())
		node.Binary = BinaryBuild
		node.Prev = ""
		return nil
	}

	layout := a.cache.PackageLayout(pref.Ref, rc.ShortPaths)
	packageFolder := layout.Package(pref)

	// Local cache mutation happens under the package lock; the lock is
	// released before any remote traffic.
	if err := a.probeLocal(node, layout, pref, packageFolder); err != nil {
		return err
	}

	selected, err := a.selectRemote(layout, pref, remotes)
	if err != nil {
		return err
	}

	var packageHash string
	if _, statErr := os.Stat(packageFolder); statErr == nil {
		packageHash, err = a.evaluateLocal(node, layout, pref, packageFolder,
			selected, remotes, update, buildMode)
	} else {
		packageHash, selected, err = a.evaluateRemote(node, pref, selected, remotes, buildMode)
	}
	if err != nil {
		return err
	}

	if buildMode.Outdated {
		switch node.Binary {
		case BinaryCache, BinaryDownload, BinaryUpdate:
			recipeManifest, err := layout.RecipeManifest()
			if err != nil {
				return err
			}
			if recipeManifest.SummaryHash() != packageHash {
				a.logger.Info("outdated package", "pref", pref.String())
				node.Binary = BinaryBuild
				node.Prev = ""
			} else {
				a.logger.Debug("package is up to date", "pref", pref.String())
			}
		}
	}

	// The remote that served (or would serve) this binary is kept even
	// when outdated flips the disposition to build.
	node.BinaryRemote = selected
	return nil
}

// probeLocal removes corrupted or stale package folders under the
// package lock.
func (a *Analyzer) probeLocal(node *Node, layout *cache.Layout, pref ref.PackageReference, packageFolder string) error {
	lock := layout.PackageLock(pref)
	lock.Lock()
	defer lock.Unlock()

	if a.cache.IsDirty(packageFolder) {
		a.logger.Warn("package is corrupted, removing folder", "folder", packageFolder)
		if err := a.cache.RemoveDir(packageFolder); err != nil {
			return err
		}
	}
	if a.RevisionsEnabled {
		meta, err := layout.LoadMetadata()
		if err != nil {
			return err
		}
		if pm := meta.Packages[pref.PackageID]; pm != nil {
			if pm.RecipeRevision != "" && pm.RecipeRevision != node.Ref.Revision {
				a.logger.Warn("package does not belong to the installed recipe revision, removing folder",
					"pref", pref.String())
				if err := a.cache.RemoveDir(packageFolder); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// selectRemote picks the remote to talk to: the user's explicit
// selection, else the remote recorded for this binary, else the
// recipe's remote.
func (a *Analyzer) selectRemote(layout *cache.Layout, pref ref.PackageReference, remotes *remote.Remotes) (*remote.Remote, error) {
	if selected := remotes.Selected(); selected != nil {
		return selected, nil
	}
	meta, err := layout.LoadMetadata()
	if err != nil {
		return nil, err
	}
	name := meta.Recipe.Remote
	if pm := meta.Packages[pref.PackageID]; pm != nil && pm.Remote != "" {
		name = pm.Remote
	}
	if name == "" {
		return nil, nil
	}
	return remotes.Get(name), nil
}

// evaluateLocal decides the disposition when the package folder exists
// locally: UPDATE when a newer upstream manifest exists and update was
// requested, CACHE otherwise. Returns the recipe hash recorded in the
// binary for the outdated check.
func (a *Analyzer) evaluateLocal(node *Node, layout *cache.Layout, pref ref.PackageReference,
	packageFolder string, selected *remote.Remote, remotes *remote.Remotes,
	update bool, buildMode *BuildMode) (string, error) {

	var packageHash string
	if update {
		switch {
		case selected != nil:
			upstream, upstreamPref, err := a.client.GetPackageManifest(pref, selected)
			switch {
			case err == nil:
				if a.checkUpdate(upstream, packageFolder) {
					node.Binary = BinaryUpdate
					node.Prev = upstreamPref.Revision
					if buildMode.Outdated {
						info, _, err := a.client.GetPackageInfo(upstreamPref, selected)
						if err != nil {
							return "", err
						}
						packageHash = info.RecipeHash
					}
				}
			case remote.IsNotFound(err):
				a.logger.Warn("can't update, no package in remote", "pref", pref.String())
			case remote.IsNoRemote(err):
				a.logger.Warn("can't update, no remote defined", "pref", pref.String())
			default:
				return "", err
			}
		case remotes.Len() > 0:
			// No remote is associated with this binary; nothing to
			// compare against.
		default:
			a.logger.Warn("can't update, no remote defined", "pref", pref.String())
		}
	}

	if node.Binary == "" {
		node.Binary = BinaryCache
		meta, err := layout.LoadMetadata()
		if err != nil {
			return "", err
		}
		pm := meta.Packages[pref.PackageID]
		if pm == nil || pm.Revision == "" {
			return "", &cache.CorruptedError{
				Path:   packageFolder,
				Reason: "package folder exists but metadata records no package revision",
			}
		}
		node.Prev = pm.Revision
		if buildMode.Outdated {
			info, err := pkginfo.LoadFromPackage(packageFolder)
			if err != nil {
				return "", err
			}
			packageHash = info.RecipeHash
		}
	}
	return packageHash, nil
}

// checkUpdate compares the upstream manifest against the local one.
// Only a strictly newer upstream triggers an update.
func (a *Analyzer) checkUpdate(upstream *manifest.Manifest, packageFolder string) bool {
	local, err := manifest.Load(packageFolder)
	if err != nil {
		a.logger.Warn("can't read local package manifest", "folder", packageFolder, "error", err)
		return false
	}
	if upstream.Equal(local) {
		return false
	}
	if upstream.NewerThan(local) {
		a.logger.Warn("current package is older than remote upstream one", "folder", packageFolder)
		return true
	}
	a.logger.Warn("current package is newer than remote upstream one", "folder", packageFolder)
	return false
}

// evaluateRemote decides the disposition when no local binary exists:
// DOWNLOAD when some remote has it, otherwise BUILD or MISSING per the
// build mode.
func (a *Analyzer) evaluateRemote(node *Node, pref ref.PackageReference,
	selected *remote.Remote, remotes *remote.Remotes, buildMode *BuildMode) (string, *remote.Remote, error) {

	var info *pkginfo.Info
	var resolvedPref ref.PackageReference
	if selected != nil {
		var err error
		info, resolvedPref, err = a.client.GetPackageInfo(pref, selected)
		if err != nil && !remote.IsNotFound(err) && !remote.IsNoRemote(err) {
			a.logger.Error("error downloading binary package info", "pref", pref.String())
			return "", selected, err
		}
	}

	// If no remote was chosen at all, or the chosen one lacks the
	// binary and revisions are enabled, iterate the other configured
	// remotes in declared order.
	if selected == nil || (info == nil && a.RevisionsEnabled) {
		for _, r := range remotes.All() {
			if selected != nil && r.Name == selected.Name {
				continue
			}
			candidate, candidatePref, err := a.client.GetPackageInfo(pref, r)
			if err != nil {
				if remote.IsNotFound(err) {
					continue
				}
				return "", selected, err
			}
			info, resolvedPref, selected = candidate, candidatePref, r
			break
		}
	}

	if info != nil {
		node.Binary = BinaryDownload
		node.Prev = resolvedPref.Revision
		return info.RecipeHash, selected, nil
	}
	if buildMode.Allowed(node.Recipe) {
		node.Binary = BinaryBuild
	} else {
		node.Binary = BinaryMissing
	}
	node.Prev = ""
	return "", selected, nil
}

// handlePrivate propagates SKIP across private subtrees: a private
// dependency of a reused prebuilt binary is not needed at install
// time. Only edges whose private flag is set are followed.
func (a *Analyzer) handlePrivate(node *Node) {
	switch node.Binary {
	case BinaryCache, BinaryDownload, BinaryUpdate, BinarySkip:
	default:
		return
	}
	for _, e := range node.Dependencies() {
		if !e.Private || e.Dst.Binary == BinarySkip {
			continue
		}
		e.Dst.BinaryNonSkip = e.Dst.Binary
		e.Dst.Binary = BinarySkip
		a.handlePrivate(e.Dst)
	}
}
