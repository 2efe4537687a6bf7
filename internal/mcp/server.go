package mcp

import (
	"context"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/chaingate/internal/alert"
	"github.com/ppiankov/chaingate/internal/audit"
	"github.com/ppiankov/chaingate/internal/breakglass"
	"github.com/ppiankov/chaingate/internal/gate"
	"github.com/ppiankov/chaingate/internal/policy"
)

// Version is reported in the MCP implementation info.
var Version = "dev"

// Config holds MCP server configuration.
type Config struct {
	PolicyPath string
	// TokenDir holds kill-switch tokens shared with a running gate
	// service. Empty means the default directory.
	TokenDir     string
	AuditLogPath string
	Logger       *slog.Logger
}

// Server exposes the operator tools of chaingate over MCP.
type Server struct {
	mcpServer *mcpsdk.Server
	store     *policy.Store
	tokens    *breakglass.Store
	gate      *gate.Gate
	auditLog  *audit.Log
	alerts    *alert.Dispatcher
	logger    *slog.Logger
}

// New creates an MCP server with loaded policy and tools.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir := cfg.TokenDir
	if dir == "" {
		dir = breakglass.DefaultDir()
	}
	tokens, err := breakglass.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open kill-switch store: %w", err)
	}

	store, err := policy.Open(cfg.PolicyPath, policy.Options{Logger: logger, Tokens: tokens})
	if err != nil {
		return nil, fmt.Errorf("failed to load policy config: %w", err)
	}

	s := &Server{
		store:  store,
		tokens: tokens,
		alerts: alert.NewDispatcher(store.Snapshot().Config.Alerts, logger),
		logger: logger,
	}
	opts := gate.Options{Logger: logger, Alerts: s.alerts}
	if cfg.AuditLogPath != "" {
		s.auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		opts.Audit = s.auditLog
	}
	s.gate = gate.New(store, opts)

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "chaingate",
			Version: Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close waits for alerts and closes the audit log if configured.
func (s *Server) Close() error {
	s.alerts.Wait()
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}

// registerTools adds all chaingate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "chaingate_check_path",
		Description: "Check whether a file operation requested by the agent (or controller) side would be permitted by the path sandbox, without performing it.",
	}, s.handleCheckPath)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "chaingate_check_class",
		Description: "Check whether a class name or type expression may be reconstructed from a received object graph.",
	}, s.handleCheckClass)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "chaingate_status",
		Description: "Show the policy fingerprint and whether each mechanism (role, class, path) is enforced.",
	}, s.handleStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "chaingate_killswitch",
		Description: "Disable (with a reason and optional expiry up to 1h) or restore enforcement of one mechanism. Shared with running gate services.",
	}, s.handleKillSwitch)
}
