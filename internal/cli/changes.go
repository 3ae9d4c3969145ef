package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	changesFile     string
	changesFunction string
	changesLimit    int
	changesFormat   string
	changesDiff     bool
)

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().StringVar(&changesFile, "file", "", "Restrict to one file")
	changesCmd.Flags().StringVar(&changesFunction, "function", "", "Restrict to one entity name")
	changesCmd.Flags().IntVarP(&changesLimit, "limit", "n", 50, "Maximum records to show")
	changesCmd.Flags().StringVarP(&changesFormat, "format", "f", "text", "Output format (text|json)")
	changesCmd.Flags().BoolVar(&changesDiff, "diff", false, "Include recorded diffs")
}

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List recorded integrity changes, most recent first",
	RunE:  runChanges,
}

func runChanges(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	g, _, err := openGuardian(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	recs, err := g.Changes(ctx, changesFile, changesFunction, changesLimit)
	if err != nil {
		return err
	}

	if changesFormat == "json" {
		out, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if len(recs) == 0 {
		fmt.Println("no changes recorded")
		return nil
	}
	for _, c := range recs {
		fmt.Printf("[%s] %s %s in %s\n",
			c.Time.Format(time.RFC3339), c.ChangeKind, c.Name, c.FilePath)
		if changesDiff && c.Diff != "" {
			fmt.Println(c.Diff)
		}
	}
	return nil
}
