package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nkarpov/codesentry/internal/model"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show protection status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	g, _, err := openGuardian(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	entities, err := g.Entities(ctx)
	if err != nil {
		return err
	}
	var functions, blocks int
	for _, e := range entities {
		switch e.Kind {
		case model.KindFunction:
			functions++
		case model.KindBlock:
			blocks++
		}
	}

	fmt.Printf("database:  %s\n", g.DatabasePath())
	fmt.Printf("functions: %d\n", functions)
	fmt.Printf("blocks:    %d\n", blocks)
	for _, e := range entities {
		fmt.Printf("  %-9s %s (%s)\n", e.Kind, e.DisplayName(), e.FilePath)
	}
	return nil
}
