package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/hako/internal/graph"
	"github.com/tsukumogami/hako/internal/installer"
	"github.com/tsukumogami/hako/internal/lockfile"
	"github.com/tsukumogami/hako/internal/log"
	"github.com/tsukumogami/hako/internal/recipe"
	"github.com/tsukumogami/hako/internal/ref"
)

var (
	flagBuild      []string
	flagUpdate     bool
	flagRemote     string
	flagGenerators []string
	flagLockfile   string
	flagOutDir     string
	flagSettings   []string
	flagOptions    []string
)

var installCmd = &cobra.Command{
	Use:   "install <recipe.toml | reference>",
	Short: "Resolve, fetch and expose a dependency graph",
	Long: `Install expands the given recipe (or a bare reference) into a full
dependency graph, decides each package's binary disposition against
the local cache and the configured remotes, downloads what can be
reused and writes generator files for the consumer build.`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringArrayVar(&flagBuild, "build", nil,
		"force building from source: never|missing|cascade|outdated|<pattern>")
	installCmd.Flags().BoolVarP(&flagUpdate, "update", "u", false,
		"check remotes for newer recipes and binaries")
	installCmd.Flags().StringVarP(&flagRemote, "remote", "r", "", "use this remote exclusively")
	installCmd.Flags().StringSliceVarP(&flagGenerators, "generator", "g", []string{"txt"},
		"generators to run")
	installCmd.Flags().StringVar(&flagLockfile, "lockfile", "", "graph lockfile to honor")
	installCmd.Flags().StringVar(&flagOutDir, "install-folder", ".", "where generator files go")
	installCmd.Flags().StringArrayVarP(&flagSettings, "settings", "s", nil, "settings, e.g. -s os=Linux")
	installCmd.Flags().StringArrayVarP(&flagOptions, "options", "o", nil, "options, e.g. -o pkg:shared=True")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	logger := log.Default()
	e, err := newEnv()
	if err != nil {
		return err
	}
	if err := e.selectRemote(flagRemote); err != nil {
		return err
	}

	root, err := loadRootNode(args[0])
	if err != nil {
		return err
	}
	if err := applyProfile(root.Recipe, flagSettings, flagOptions); err != nil {
		return err
	}

	var lock *lockfile.GraphLock
	if flagLockfile != "" {
		lock, err = lockfile.Load(flagLockfile)
		if err != nil {
			return err
		}
	}

	builder := graph.NewBuilder(e.proxy, e.ranges, logger)
	g, err := builder.Build(root, flagUpdate, flagUpdate, flagRemote)
	if err != nil {
		return err
	}
	if lock != nil {
		for _, node := range g.Nodes {
			node.GraphLockNode = lock.Lookup(node.Ref)
		}
	}

	buildMode, err := graph.NewBuildMode(flagBuild)
	if err != nil {
		return err
	}
	analyzer := graph.NewAnalyzer(e.cache, e.client, logger)
	analyzer.RevisionsEnabled = e.cfg.General.RevisionsEnabled
	analyzer.DefaultPackageIDMode = e.cfg.General.DefaultPackageIDMode
	if err := analyzer.Analyze(g, buildMode, flagUpdate, e.remotes); err != nil {
		return err
	}

	printPlan(cmd, g)

	inst := installer.New(e.cache, e.client, logger)
	if err := inst.Install(g); err != nil {
		return err
	}
	deps, err := inst.CollectMetadata(g)
	if err != nil {
		return err
	}
	return inst.WriteGenerators(deps, flagGenerators, flagOutDir)
}

// loadRootNode builds the graph entry point: a consumer node for a
// recipe file, or a virtual node wrapping a bare reference.
func loadRootNode(arg string) (*graph.Node, error) {
	if _, err := os.Stat(arg); err == nil {
		rc, err := recipe.Load(arg)
		if err != nil {
			return nil, err
		}
		return graph.NewRootNode(rc, recipe.StatusConsumer), nil
	}
	target, err := ref.Parse(strings.TrimSuffix(arg, "@"))
	if err != nil {
		return nil, fmt.Errorf("%q is neither a recipe file nor a reference: %w", arg, err)
	}
	virtual := recipe.New("", "")
	virtual.SetHook(recipe.HookRequirements, func(rc *recipe.Recipe) error {
		rc.Requires.AddRef(target)
		return nil
	})
	return graph.NewRootNode(virtual, recipe.StatusVirtual), nil
}

// applyProfile applies -s and -o arguments to the root recipe. Scoped
// options ("pkg:name=value") become dependency assignments.
func applyProfile(rc *recipe.Recipe, settings, options []string) error {
	for _, s := range settings {
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("invalid setting %q, expected key=value", s)
		}
		rc.Settings.Declare(key)
		if err := rc.Settings.Set(key, value); err != nil {
			return err
		}
	}
	for _, o := range options {
		key, value, ok := strings.Cut(o, "=")
		if !ok {
			return fmt.Errorf("invalid option %q, expected [pkg:]key=value", o)
		}
		if pkg, name, scoped := strings.Cut(key, ":"); scoped {
			rc.Options.SetDep(pkg, name, value)
		} else {
			rc.Options.Define(key, value)
		}
	}
	return nil
}

func printPlan(cmd *cobra.Command, g *graph.Graph) {
	cmd.Println("Requirements")
	for _, node := range g.OrderedIterate() {
		if node.IsConsumer() {
			continue
		}
		cmd.Printf("    %s:%s - %s\n", node.Ref, node.PackageID, node.Binary)
	}
}
