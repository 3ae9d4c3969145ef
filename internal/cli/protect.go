package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	protectFunction  string
	protectStartLine int
	protectEndLine   int
)

func init() {
	rootCmd.AddCommand(protectCmd)
	protectCmd.Flags().StringVar(&protectFunction, "function", "", "Qualified function name (Type.Method for methods)")
	protectCmd.Flags().IntVar(&protectStartLine, "start", 0, "First protected line (1-based, inclusive)")
	protectCmd.Flags().IntVar(&protectEndLine, "end", 0, "Last protected line (1-based, inclusive)")
}

var protectCmd = &cobra.Command{
	Use:   "protect <file>",
	Short: "Manually register a protected function or line range",
	Long: "Registers one function by qualified name, or one inclusive line range,\n" +
		"of the given file as protected without requiring source markers.",
	Args: cobra.ExactArgs(1),
	RunE: runProtect,
}

func runProtect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	g, _, err := openGuardian(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	switch {
	case protectFunction != "" && protectStartLine == 0 && protectEndLine == 0:
		e, err := g.RegisterProtection(ctx, args[0], protectFunction)
		if err != nil {
			return err
		}
		fmt.Printf("protected %s (L%d-L%d) digest=%s\n", e.Name, e.StartLine, e.EndLine, e.Digest)
	case protectFunction == "" && protectStartLine > 0 && protectEndLine > 0:
		e, err := g.RegisterBlock(ctx, args[0], protectStartLine, protectEndLine)
		if err != nil {
			return err
		}
		fmt.Printf("protected %s digest=%s\n", e.DisplayName(), e.Digest)
	default:
		return fmt.Errorf("give either --function or --start and --end")
	}
	return nil
}
