package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbClearCmd)
	dbCmd.AddCommand(dbPathCmd)
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbClearCmd = &cobra.Command{
	Use:   "clear <table>",
	Short: "Empty one table, or all of them",
	Long: "Deletes every row from the named table: protected_functions,\n" +
		"protected_blocks, call_edges, errors, changes, or all.",
	Args: cobra.ExactArgs(1),
	RunE: runDBClear,
}

var dbPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the database location",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println(cfg.DatabasePath)
		return nil
	},
}

func runDBClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	g, _, err := openGuardian(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	if err := g.ClearData(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("cleared %s\n", args[0])
	return nil
}
