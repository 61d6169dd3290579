package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/hako/internal/cache"
	"github.com/tsukumogami/hako/internal/config"
	"github.com/tsukumogami/hako/internal/log"
	"github.com/tsukumogami/hako/internal/proxy"
	"github.com/tsukumogami/hako/internal/remote"
	"github.com/tsukumogami/hako/internal/resolver"
)

var (
	flagQuiet   bool
	flagVerbose bool
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "hako",
	Short: "hako is a C/C++ package manager",
	Long: `hako builds a dependency graph from package recipes, decides for
every package whether a prebuilt binary is reused, downloaded or
rebuilt, and exposes the resulting build metadata to your build
system through generators.`,
	PersistentPreRun:  initLogger,
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "errors only")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "operational detail")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "traversal internals")
}

func initLogger(cmd *cobra.Command, args []string) {
	level := slog.LevelWarn
	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	log.SetDefault(log.New(handler))
}

// env bundles the wired subsystems a command needs.
type env struct {
	home    string
	cfg     *config.Config
	cache   *cache.Cache
	remotes *remote.Remotes
	client  *remote.HTTPClient
	proxy   *proxy.Proxy
	ranges  *resolver.Resolver
}

// newEnv loads configuration and wires the cache, remotes, recipe
// proxy and range resolver.
func newEnv() (*env, error) {
	home, err := config.HomeDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(home)
	if err != nil {
		return nil, err
	}
	store := cache.New(cfg.StoragePath(home))

	var list []*remote.Remote
	for _, rc := range cfg.Remotes {
		list = append(list, &remote.Remote{Name: rc.Name, URL: rc.URL, VerifySSL: rc.VerifySSL})
	}
	remotes := remote.NewRemotes(list...)
	client := remote.NewHTTPClient()
	logger := log.Default()
	px := proxy.New(store, client, remotes, logger)

	return &env{
		home:    home,
		cfg:     cfg,
		cache:   store,
		remotes: remotes,
		client:  client,
		proxy:   px,
		ranges:  resolver.New(store, px, logger),
	}, nil
}

// selectRemote applies --remote to the remote set.
func (e *env) selectRemote(name string) error {
	if name == "" {
		return nil
	}
	if err := e.remotes.Select(name); err != nil {
		return fmt.Errorf("unknown remote %q (configure it in %s/config.toml)", name, e.home)
	}
	return nil
}
