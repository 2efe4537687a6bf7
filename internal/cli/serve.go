package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/chaingate/internal/server"
)

var (
	servePort     int
	serveAuditLog string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 50051, "gRPC listen port")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to audit log JSONL file (overrides audit.path)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC decision service",
	Long:  "Runs chaingate as a decision service over gRPC. Controllers and agents ask it\nwhether a path or class may cross the boundary. The policy file and the\nkill-switch token directory are hot-reloaded.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, err := server.New(server.Config{
		Port:         servePort,
		PolicyPath:   policyPath,
		TokenDir:     tokenDir,
		AuditLogPath: serveAuditLog,
		Logger:       slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	reloader, err := server.NewReloader(srv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down gate service...")
			cancel()
			srv.GracefulStop()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(os.Stderr, "chaingate gate service listening on :%d\n", servePort)
	fmt.Fprintf(os.Stderr, "Policy: %s (hot-reload enabled)\n", srv.Store().Path())
	for _, b := range srv.Store().Banners() {
		fmt.Fprintln(os.Stderr, b)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Serve()
}
