package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/hako/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and modify the client configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		cmd.Printf("home: %s\n", e.home)
		cmd.Printf("storage: %s\n", e.cfg.StoragePath(e.home))
		cmd.Printf("revisions_enabled: %v\n", e.cfg.General.RevisionsEnabled)
		cmd.Printf("default_package_id_mode: %s\n", e.cfg.General.DefaultPackageIDMode)
		for _, r := range e.cfg.Remotes {
			cmd.Printf("remote: %s %s (verify_ssl=%v)\n", r.Name, r.URL, r.VerifySSL)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.toml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := config.HomeDir()
		if err != nil {
			return err
		}
		cfg := config.Default()
		if err := cfg.Save(home); err != nil {
			return err
		}
		cmd.Printf("wrote %s/config.toml\n", home)
		return nil
	},
}

var configAddRemoteCmd = &cobra.Command{
	Use:   "add-remote <name> <url>",
	Short: "Append a remote to the configuration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := config.HomeDir()
		if err != nil {
			return err
		}
		cfg, err := config.Load(home)
		if err != nil {
			return err
		}
		for _, r := range cfg.Remotes {
			if r.Name == args[0] {
				return fmt.Errorf("remote %q already configured", args[0])
			}
		}
		cfg.Remotes = append(cfg.Remotes, config.RemoteConfig{
			Name: args[0], URL: args[1], VerifySSL: true,
		})
		return cfg.Save(home)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd, configAddRemoteCmd)
	rootCmd.AddCommand(configCmd)
}
