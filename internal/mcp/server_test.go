package mcp

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/chaingate/internal/breakglass"
	"github.com/ppiankov/chaingate/internal/model"
)

func newTestServer(t *testing.T, policyYAML string) *Server {
	t.Helper()
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(policyPath, []byte(policyYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := New(Config{
		PolicyPath: policyPath,
		TokenDir:   filepath.Join(dir, "killswitch"),
		Logger:     slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("failed to create MCP server: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCheckPathDenied(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()
	ws, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	result, out, err := s.handleCheckPath(ctx, &mcpsdk.CallToolRequest{}, CheckPathInput{
		Path:       "../../etc/passwd",
		Base:       ws,
		Workspaces: []string{ws},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for denied path")
	}
	if out.Decision != "deny" || out.Kind != string(model.KindPathEscape) {
		t.Fatalf("unexpected output %+v", out)
	}
	if strings.Contains(out.External, "passwd") {
		t.Errorf("external message leaks path: %s", out.External)
	}

	_, out, err = s.handleCheckPath(ctx, &mcpsdk.CallToolRequest{}, CheckPathInput{
		Path:       "logs/build.txt",
		Op:         "create",
		Base:       ws,
		Workspaces: []string{ws},
	})
	if err != nil || out.Decision != "allow" {
		t.Fatalf("expected allow, got %+v (%v)", out, err)
	}
}

func TestCheckPathInvalidInput(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()
	if _, _, err := s.handleCheckPath(ctx, &mcpsdk.CallToolRequest{}, CheckPathInput{}); err == nil {
		t.Error("expected error for missing path")
	}
	if _, _, err := s.handleCheckPath(ctx, &mcpsdk.CallToolRequest{}, CheckPathInput{Path: "/x", Op: "chmod"}); err == nil {
		t.Error("expected error for unknown op")
	}
}

func TestCheckClass(t *testing.T) {
	s := newTestServer(t, "classes:\n  deny: [acme.internal.]\n")
	ctx := context.Background()

	for _, tt := range []struct {
		class string
		want  string
	}{
		{"rmi.server.UnicastRemoteObject", "deny"},
		{"[]acme.internal.Secret", "deny"},
		{"acme.Result", "allow"},
	} {
		_, out, err := s.handleCheckClass(ctx, &mcpsdk.CallToolRequest{}, CheckClassInput{Class: tt.class})
		if err != nil {
			t.Fatal(err)
		}
		if out.Decision != tt.want {
			t.Errorf("%s: expected %s, got %+v", tt.class, tt.want, out)
		}
	}
}

func TestKillSwitchSharedThroughTokens(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	_, out, err := s.handleKillSwitch(ctx, &mcpsdk.CallToolRequest{}, KillSwitchInput{
		Mechanism: "class",
		Reason:    "plugin regression",
		Duration:  "15m",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Enforced || out.TokenID == "" || out.ExpiresAt == "" {
		t.Fatalf("unexpected output %+v", out)
	}

	// Another process sees the token on disk.
	other, err := breakglass.NewStore(s.tokens.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if tok := other.Active()[model.MechanismClass]; tok == nil || tok.ID != out.TokenID {
		t.Errorf("expected token on disk, got %+v", tok)
	}

	result, check, err := s.handleCheckClass(ctx, &mcpsdk.CallToolRequest{}, CheckClassInput{Class: "rmi.Stub"})
	if err != nil || check.Decision != "bypass" || (result != nil && result.IsError) {
		t.Errorf("expected bypass, got %+v (%v)", check, err)
	}

	_, st, err := s.handleStatus(ctx, &mcpsdk.CallToolRequest{}, StatusInput{})
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Banners) != 1 || !strings.Contains(st.Banners[0], "class enforcement is DISABLED") {
		t.Errorf("unexpected banners %v", st.Banners)
	}

	_, out, err = s.handleKillSwitch(ctx, &mcpsdk.CallToolRequest{}, KillSwitchInput{Mechanism: "class", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Enforced || out.Revoked != 1 {
		t.Errorf("unexpected restore output %+v", out)
	}
	if len(other.Active()) != 0 {
		t.Error("expected token revoked on disk")
	}
}

func TestKillSwitchRejectsBadInput(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()
	for _, in := range []KillSwitchInput{
		{Mechanism: "budget", Reason: "x"},
		{Mechanism: "path"},
		{Mechanism: "path", Reason: "x", Duration: "2h"},
		{Mechanism: "path", Reason: "x", Duration: "later"},
	} {
		if _, _, err := s.handleKillSwitch(ctx, &mcpsdk.CallToolRequest{}, in); err == nil {
			t.Errorf("expected error for %+v", in)
		}
	}
}

func TestKillSwitchCannotOverrideConfig(t *testing.T) {
	s := newTestServer(t, "enforcement:\n  paths: false\n")
	_, _, err := s.handleKillSwitch(context.Background(), &mcpsdk.CallToolRequest{}, KillSwitchInput{Mechanism: "path", Enabled: true})
	if err == nil {
		t.Error("restoring a mechanism disabled by the policy file must fail")
	}
}

func TestStatusReportsHash(t *testing.T) {
	s := newTestServer(t, "grants: []\n")
	_, st, err := s.handleStatus(context.Background(), &mcpsdk.CallToolRequest{}, StatusInput{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(st.PolicyHash, "blake3:") || len(st.Mechanisms) != 3 || len(st.Banners) != 0 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestRegisterToolsNoPanic(t *testing.T) {
	s := newTestServer(t, "")
	if s.mcpServer == nil {
		t.Fatal("expected MCP server")
	}
}
