package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	errorsFunction string
	errorsLimit    int
	errorsFormat   string
)

func init() {
	rootCmd.AddCommand(errorsCmd)
	errorsCmd.Flags().StringVar(&errorsFunction, "function", "", "Restrict to one function")
	errorsCmd.Flags().IntVarP(&errorsLimit, "limit", "n", 50, "Maximum records to show")
	errorsCmd.Flags().StringVarP(&errorsFormat, "format", "f", "text", "Output format (text|json)")
}

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "List recorded runtime errors, most recent first",
	RunE:  runErrors,
}

func runErrors(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	g, _, err := openGuardian(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	recs, err := g.Errors(ctx, errorsFunction, errorsLimit)
	if err != nil {
		return err
	}

	if errorsFormat == "json" {
		out, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if len(recs) == 0 {
		fmt.Println("no errors recorded")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("[%s] %s: %s: %s\n",
			r.Time.Format(time.RFC3339), r.Function, r.Kind, r.Message)
	}
	return nil
}
