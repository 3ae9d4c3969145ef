package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nkarpov/codesentry/internal/graph"
)

var (
	graphRoot      string
	graphDepth     int
	graphDirection string
	graphSimplify  bool
	graphFormat    string
)

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringVar(&graphRoot, "root", "", "Function at the center of the graph (empty for the full graph)")
	graphCmd.Flags().IntVar(&graphDepth, "depth", 0, "Traversal depth bound (default from config)")
	graphCmd.Flags().StringVar(&graphDirection, "direction", "both", "Traversal direction (callees|callers|both)")
	graphCmd.Flags().BoolVar(&graphSimplify, "simplify", false, "Prune low-degree nodes")
	graphCmd.Flags().StringVarP(&graphFormat, "format", "f", "text", "Output format (text|json)")
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build the call graph from traced calls",
	RunE:  runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	g, cfg, err := openGuardian(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	opts := graph.Options{
		Root:     graphRoot,
		Depth:    graphDepth,
		Simplify: graphSimplify,
	}
	switch graphDirection {
	case "callees":
		opts.Direction = graph.Callees
	case "callers":
		opts.Direction = graph.Callers
	case "both":
		opts.Direction = graph.Both
	default:
		return fmt.Errorf("unknown direction %q", graphDirection)
	}
	if opts.Depth <= 0 {
		opts.Depth = cfg.Graph.DefaultDepth
	}
	if opts.Simplify {
		opts.MinImportance = cfg.Graph.MinImportance
	}

	result, err := g.CallGraph(ctx, opts)
	if err != nil {
		return err
	}

	switch graphFormat {
	case "json":
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		fmt.Printf("%d nodes, %d edges\n", len(result.Nodes), len(result.Edges))
		for _, e := range result.Edges {
			fmt.Printf("  %s -> %s (x%d)\n", e.Source, e.Target, e.Weight)
		}
		for _, n := range result.Nodes {
			var marks string
			if n.Protected {
				marks += " [protected]"
			}
			if n.Changed {
				marks += " [changed]"
			}
			if n.HasErrors {
				marks += " [errors]"
			}
			if marks != "" {
				fmt.Printf("  %s%s\n", n.ID, marks)
			}
		}
	}
	return nil
}
