package main

import (
	"github.com/spf13/cobra"

	"github.com/tsukumogami/hako/internal/graph"
	"github.com/tsukumogami/hako/internal/log"
)

var graphRemote string

var graphCmd = &cobra.Command{
	Use:   "graph <recipe.toml | reference>",
	Short: "Print the resolved dependency graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().StringVarP(&graphRemote, "remote", "r", "", "use this remote exclusively")
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	if err := e.selectRemote(graphRemote); err != nil {
		return err
	}
	root, err := loadRootNode(args[0])
	if err != nil {
		return err
	}

	builder := graph.NewBuilder(e.proxy, e.ranges, log.Default())
	g, err := builder.Build(root, false, false, graphRemote)
	if err != nil {
		return err
	}

	for _, node := range g.Nodes {
		if node.IsConsumer() {
			cmd.Println(node.Recipe.DisplayName())
		} else {
			cmd.Printf("%s (%s)\n", node.Ref, node.RecipeStatus)
		}
		for _, edge := range node.Dependencies() {
			marker := ""
			if edge.Private {
				marker = " (private)"
			}
			cmd.Printf("    requires %s%s\n", edge.Dst.Ref, marker)
		}
	}
	return nil
}
