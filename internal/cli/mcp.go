package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/chaingate/internal/mcp"
)

var mcpAuditLog string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Path to audit log JSONL file")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as MCP tool server (stdio)",
	Long:  "Starts an MCP server on stdio exposing path and class checks, policy status\nand kill-switch control to an operator assistant.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	mcp.Version = version
	srv, err := mcp.New(mcp.Config{
		PolicyPath:   policyPath,
		TokenDir:     tokenDir,
		AuditLogPath: mcpAuditLog,
		Logger:       slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
