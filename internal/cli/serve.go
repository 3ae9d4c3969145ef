package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	sentrymcp "github.com/nkarpov/codesentry/internal/mcp"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs codesentry as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: scan, protect, check, graph, errors, changes, monitor, status.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	g, cfg, err := openGuardian(cmd.Context())
	if err != nil {
		return err
	}
	defer g.Close()

	srv := sentrymcp.New(g, cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutting down MCP server")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "codesentry MCP server running on stdio")
	return srv.Run(ctx)
}
