// Package installer acts on an analyzed dependency graph: it fetches
// the binaries marked for download or update into the local cache,
// collects every package's metadata and writes the requested generator
// outputs for the consumer. Actually compiling BUILD-marked packages
// is the build runner's job, not the installer's; the installer
// reports them.
package installer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsukumogami/hako/internal/cache"
	"github.com/tsukumogami/hako/internal/cppinfo"
	"github.com/tsukumogami/hako/internal/generators"
	"github.com/tsukumogami/hako/internal/graph"
	"github.com/tsukumogami/hako/internal/log"
	"github.com/tsukumogami/hako/internal/manifest"
	"github.com/tsukumogami/hako/internal/recipe"
	"github.com/tsukumogami/hako/internal/remote"
)

// Installer realizes an analyzed graph on disk.
type Installer struct {
	cache  *cache.Cache
	client remote.Client
	logger log.Logger
}

// New returns an Installer.
func New(c *cache.Cache, client remote.Client, logger log.Logger) *Installer {
	if logger == nil {
		logger = log.Default()
	}
	return &Installer{cache: c, client: client, logger: logger}
}

// MissingError reports packages whose binaries are missing and not
// allowed to build.
type MissingError struct {
	Refs []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing prebuilt packages: %v (try --build=missing)", e.Refs)
}

// BuildRequiredError reports packages that must be built from source;
// running their builds is outside the installer.
type BuildRequiredError struct {
	Refs []string
}

func (e *BuildRequiredError) Error() string {
	return fmt.Sprintf("packages must be built from source: %v", e.Refs)
}

// Install walks the analyzed graph leaves-first and realizes each
// disposition: cache hits are left alone, downloads and updates are
// fetched, skips are ignored, missing or build-required nodes abort
// with a typed error.
func (i *Installer) Install(g *graph.Graph) error {
	var missing, toBuild []string
	for _, node := range g.OrderedIterate() {
		if node.IsConsumer() {
			continue
		}
		switch node.Binary {
		case graph.BinaryCache, graph.BinaryEditable, graph.BinarySkip:
			i.logger.Debug("nothing to do", "ref", node.Ref.String(), "binary", string(node.Binary))
		case graph.BinaryDownload, graph.BinaryUpdate:
			if err := i.download(node); err != nil {
				return err
			}
		case graph.BinaryBuild:
			toBuild = append(toBuild, node.Ref.String())
		case graph.BinaryMissing:
			missing = append(missing, node.Ref.String())
		}
	}
	if len(missing) > 0 {
		return &MissingError{Refs: missing}
	}
	if len(toBuild) > 0 {
		return &BuildRequiredError{Refs: toBuild}
	}
	return nil
}

// download fetches one binary into its package folder, marking the
// folder dirty during the write so an interrupted download is
// recovered on the next run.
func (i *Installer) download(node *graph.Node) error {
	pref := node.Pref()
	layout := i.cache.PackageLayout(pref.Ref, node.Recipe.ShortPaths)
	folder := layout.Package(pref)

	lock := layout.PackageLock(pref)
	lock.Lock()
	if node.Binary == graph.BinaryUpdate {
		if err := i.cache.RemoveDir(folder); err != nil {
			lock.Unlock()
			return err
		}
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		lock.Unlock()
		return err
	}
	if err := i.cache.MarkDirty(folder); err != nil {
		lock.Unlock()
		return err
	}
	lock.Unlock()

	// Network transfer happens outside the package lock.
	i.logger.Info("downloading package", "pref", pref.String(),
		"remote", node.BinaryRemote.Name)
	if err := i.client.DownloadPackage(pref, node.BinaryRemote, folder); err != nil {
		return err
	}

	lock.Lock()
	defer lock.Unlock()
	meta, err := layout.LoadMetadata()
	if err != nil {
		return err
	}
	pm := meta.Package(pref.PackageID)
	pm.Revision = node.Prev
	pm.Remote = node.BinaryRemote.Name
	pm.RecipeRevision = node.Ref.Revision
	if err := layout.SaveMetadata(meta); err != nil {
		return err
	}
	if _, err := manifest.Load(folder); err != nil {
		// The remote served no manifest inside the archive; build one
		// so later update checks have a baseline.
		m, err := manifest.Create(folder)
		if err != nil {
			return err
		}
		if err := m.Save(folder); err != nil {
			return err
		}
	}
	return i.cache.ClearDirty(folder)
}

// CollectMetadata runs package_info on every usable node and
// aggregates the results nearest-first, in the reverse of the
// leaves-first order. Nodes at the same depth are aggregated in reverse
// insertion order, not in the root's declaration order.
func (i *Installer) CollectMetadata(g *graph.Graph) (*cppinfo.DepsCppInfo, error) {
	deps := cppinfo.NewDeps()
	ordered := g.OrderedIterate()
	// Consumers aggregate dependencies nearest-first: reverse the
	// leaves-first order, skipping the root itself.
	for idx := len(ordered) - 1; idx >= 0; idx-- {
		node := ordered[idx]
		if node.IsConsumer() || node.Binary == graph.BinarySkip {
			continue
		}
		pref := node.Pref()
		layout := i.cache.PackageLayout(pref.Ref, node.Recipe.ShortPaths)
		rootPath := layout.Package(pref)

		node.Recipe.CppInfo = cppinfo.New(rootPath)
		if node.Binary == graph.BinaryEditable {
			node.Recipe.CppInfo.FilterEmpty = false
		}
		if err := node.Recipe.CallHook(recipe.HookPackageInfo); err != nil {
			return nil, err
		}
		if node.Recipe.CppInfo.Name == "" {
			node.Recipe.CppInfo.Name = node.Ref.Name
		}
		if err := deps.Add(node.Ref.Name, node.Recipe.CppInfo); err != nil {
			return nil, err
		}
	}
	return deps, nil
}

// WriteGenerators renders the named generators into outDir.
func (i *Installer) WriteGenerators(deps *cppinfo.DepsCppInfo, names []string, outDir string) error {
	for _, name := range names {
		gen := generators.Get(name)
		if gen == nil {
			return fmt.Errorf("unknown generator %q (available: %v)", name, generators.Names())
		}
		files, err := gen.Content(deps)
		if err != nil {
			return err
		}
		for fileName, content := range files {
			path := filepath.Join(outDir, fileName)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return err
			}
			i.logger.Info("generator file written", "generator", name, "file", path)
		}
	}
	return nil
}
