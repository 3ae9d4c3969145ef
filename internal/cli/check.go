package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkFormat string

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Re-verify every protected entity in a file",
	Long: "Re-extracts the current content of each protected function and block\n" +
		"registered for the file, compares digests, and records any changes.\n\n" +
		"Exit code 0 when clean, 1 when tampering was detected.",
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	g, _, err := openGuardian(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	changed, err := g.CheckFileIntegrity(ctx, args[0])
	if err != nil {
		return err
	}

	switch checkFormat {
	case "json":
		out, err := json.MarshalIndent(changed, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		if len(changed) == 0 {
			fmt.Printf("%s: clean\n", args[0])
		}
		for _, c := range changed {
			fmt.Printf("CHANGED %s in %s\n", c.Name, c.FilePath)
			if c.Diff != "" {
				fmt.Println(c.Diff)
			}
		}
	}

	if len(changed) > 0 {
		os.Exit(1)
	}
	return nil
}
