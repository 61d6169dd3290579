package main

import (
	"github.com/spf13/cobra"
)

var searchRemote string

var searchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "List cached and remote recipes for a package name",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchRemote, "remote", "r", "", "search only this remote")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	name := args[0]

	if searchRemote == "" {
		local, err := e.cache.SearchRecipes(name)
		if err != nil {
			return err
		}
		for _, r := range local {
			cmd.Printf("%s (local)\n", r)
		}
	}
	if e.remotes.Len() == 0 {
		return nil
	}
	found, err := e.proxy.SearchRemoteRecipes(name, searchRemote)
	if err != nil {
		return err
	}
	for _, r := range found {
		cmd.Println(r.String())
	}
	return nil
}
