package main

import (
	"github.com/spf13/cobra"

	"github.com/tsukumogami/hako/internal/ref"
)

var removeCmd = &cobra.Command{
	Use:   "remove <reference>",
	Short: "Remove a reference and its binaries from the local cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	r, err := ref.Parse(args[0])
	if err != nil {
		return err
	}
	layout := e.cache.PackageLayout(r, false)
	if err := e.cache.RemoveDir(layout.BasePath()); err != nil {
		return err
	}
	cmd.Printf("removed %s\n", r)
	return nil
}
