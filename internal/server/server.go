package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	gatev1 "github.com/ppiankov/chaingate/api/gate/v1"
	"github.com/ppiankov/chaingate/internal/alert"
	"github.com/ppiankov/chaingate/internal/audit"
	"github.com/ppiankov/chaingate/internal/breakglass"
	"github.com/ppiankov/chaingate/internal/enforce"
	"github.com/ppiankov/chaingate/internal/gate"
	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/policy"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

// Config holds gRPC server configuration.
type Config struct {
	Port       int
	PolicyPath string
	// TokenDir holds kill-switch tokens issued by the CLI. Empty means
	// the default directory.
	TokenDir     string
	AuditLogPath string
	Logger       *slog.Logger
}

// Server implements the chaingate.v1.Gate service.
type Server struct {
	gatev1.UnimplementedGateServer

	cfg      Config
	logger   *slog.Logger
	store    *policy.Store
	gate     *gate.Gate
	auditLog *audit.Log
	alerts   *alert.Dispatcher
	seq      atomic.Uint64

	grpcServer *grpc.Server
}

// New creates a server with loaded policy, kill-switch tokens and audit
// log.
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
	if err := tokens.Cleanup(); err != nil {
		logger.Warn("kill-switch token cleanup failed", "error", err)
	}

	store, err := policy.Open(cfg.PolicyPath, policy.Options{Logger: logger, Tokens: tokens})
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  store,
		alerts: alert.NewDispatcher(store.Snapshot().Config.Alerts, logger),
	}

	auditPath := cfg.AuditLogPath
	if auditPath == "" {
		auditPath = store.Snapshot().Config.Audit.Path
	}
	opts := gate.Options{Logger: logger, Alerts: s.alerts}
	if auditPath != "" {
		s.auditLog, err = audit.Open(auditPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		opts.Audit = s.auditLog
	}
	s.gate = gate.New(store, opts)

	for _, b := range store.Banners() {
		logger.Warn(b)
	}

	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.logCalls))
	gatev1.RegisterGateServer(s.grpcServer, s)
	return s, nil
}

// Gate returns the interceptor the server decides with.
func (s *Server) Gate() *gate.Gate {
	return s.gate
}

// Store returns the live policy.
func (s *Server) Store() *policy.Store {
	return s.store
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.ServeOn(lis)
}

// ServeOn starts the gRPC server on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.logger.Info("gate service listening", "addr", lis.Addr().String(), "policy_hash", s.store.Snapshot().Hash)
	return s.grpcServer.Serve(lis)
}

// GracefulStop gracefully shuts down the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Close waits for in-flight alerts and closes the audit log.
func (s *Server) Close() error {
	s.alerts.Wait()
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}

// ReloadPolicy re-reads the policy file and kill-switch tokens. Called
// by the hot-reloader on file change.
func (s *Server) ReloadPolicy() error {
	if err := s.store.Reload(); err != nil {
		return fmt.Errorf("failed to reload policy: %w", err)
	}
	return nil
}

// CheckPath implements the CheckPath RPC.
func (s *Server) CheckPath(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	path := stringField(req, "path")
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "path is required")
	}
	op := model.OpRead
	if v := stringField(req, "op"); v != "" {
		var ok bool
		if op, ok = model.ParseOperation(v); !ok {
			return nil, status.Errorf(codes.InvalidArgument, "unknown operation %q", v)
		}
	}

	rc := sandbox.Context{
		Base:        stringField(req, "base"),
		BuildDirs:   listField(req, "build_dirs"),
		Workspaces:  listField(req, "workspaces"),
		UserContent: stringField(req, "user_content"),
		Temps:       listField(req, "temps"),
	}
	scope := s.gate.NewScope(s.scopeID(req), model.ParseSide(stringField(req, "side")), rc)
	defer scope.Close()

	if err := scope.Check(op, path); err != nil {
		return nil, s.toStatus(err, scope.External(err))
	}
	return s.allowed(model.MechanismPath)
}

// CheckClass implements the CheckClass RPC.
func (s *Server) CheckClass(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	class := stringField(req, "class")
	if class == "" {
		return nil, status.Error(codes.InvalidArgument, "class is required")
	}
	side := model.SideController
	if v := stringField(req, "side"); v != "" {
		side = model.ParseSide(v)
	}

	if err := s.gate.AdmitClass(class, side); err != nil {
		return nil, s.toStatus(err, s.gate.External(err, nil))
	}
	return s.allowed(model.MechanismClass)
}

// Status implements the Status RPC.
func (s *Server) Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(StatusFields(s.gate.Status()))
}

// SetKillSwitch implements the SetKillSwitch RPC.
func (s *Server) SetKillSwitch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	mech, ok := model.ParseMechanism(stringField(req, "mechanism"))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown mechanism %q", stringField(req, "mechanism"))
	}
	enabled := req.GetFields()["enabled"].GetBoolValue()

	var duration time.Duration
	if v := stringField(req, "duration"); v != "" {
		var err error
		duration, err = time.ParseDuration(v)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid duration %q: %v", v, err)
		}
	}

	tok, err := s.store.Toggle(mech, enabled, stringField(req, "reason"), duration)
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}

	out := map[string]any{
		"mechanism": string(mech),
		"enabled":   enabled,
	}
	if tok != nil {
		out["token_id"] = tok.ID
		if !tok.ExpiresAt.IsZero() {
			out["expires_at"] = tok.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	return structpb.NewStruct(out)
}

// StatusFields renders st as Struct fields.
func StatusFields(st gate.Status) map[string]any {
	mechs := make([]any, 0, len(st.Mechanisms))
	for _, m := range st.Mechanisms {
		entry := map[string]any{
			"mechanism": string(m.Mechanism),
			"enforced":  m.Enforced,
		}
		if m.Source != "" {
			entry["source"] = m.Source
			entry["reason"] = m.Reason
		}
		if m.TokenID != "" {
			entry["token_id"] = m.TokenID
		}
		if m.ExpiresAt != nil {
			entry["expires_at"] = m.ExpiresAt.UTC().Format(time.RFC3339)
		}
		mechs = append(mechs, entry)
	}
	banners := make([]any, 0, len(st.Banners))
	for _, b := range st.Banners {
		banners = append(banners, b)
	}
	return map[string]any{
		"policy_hash": st.PolicyHash,
		"version":     float64(st.Version),
		"mechanisms":  mechs,
		"banners":     banners,
	}
}

func (s *Server) allowed(mech model.Mechanism) (*structpb.Struct, error) {
	snap := s.store.Snapshot()
	return structpb.NewStruct(map[string]any{
		"allowed":     true,
		"enforced":    snap.Enforced(mech),
		"policy_hash": snap.Hash,
	})
}

// toStatus maps a gate error to a gRPC status carrying only the
// boundary-safe message.
func (s *Server) toStatus(err error, external string) error {
	if errors.Is(err, enforce.ErrSecurity) {
		return status.Error(codes.PermissionDenied, external)
	}
	return status.Error(codes.Internal, external)
}

func (s *Server) scopeID(req *structpb.Struct) string {
	if id := stringField(req, "scope"); id != "" {
		return id
	}
	return fmt.Sprintf("grpc-%d", s.seq.Add(1))
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("rpc",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start))
	return resp, err
}

func stringField(s *structpb.Struct, key string) string {
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}

func listField(s *structpb.Struct, key string) []string {
	var out []string
	for _, v := range s.GetFields()[key].GetListValue().GetValues() {
		if str := v.GetStringValue(); str != "" {
			out = append(out, str)
		}
	}
	return out
}
