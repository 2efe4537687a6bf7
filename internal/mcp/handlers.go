package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/chaingate/internal/enforce"
	"github.com/ppiankov/chaingate/internal/gate"
	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

// --- Input/Output types ---

// CheckPathInput defines parameters for the chaingate_check_path tool.
type CheckPathInput struct {
	Path        string   `json:"path" jsonschema:"path the operation targets"`
	Op          string   `json:"op,omitempty" jsonschema:"read/write/create/delete/list/stat/extract/mkdirs/symlink (default read)"`
	Side        string   `json:"side,omitempty" jsonschema:"requesting side: agent (default) or controller"`
	Base        string   `json:"base,omitempty" jsonschema:"working directory relative paths resolve against"`
	BuildDirs   []string `json:"build_dirs,omitempty" jsonschema:"build directories of the request"`
	Workspaces  []string `json:"workspaces,omitempty" jsonschema:"workspaces of the request"`
	UserContent string   `json:"user_content,omitempty" jsonschema:"user content directory"`
}

// CheckClassInput defines parameters for the chaingate_check_class tool.
type CheckClassInput struct {
	Class string `json:"class" jsonschema:"class name or type expression, e.g. map[string]acme.Result"`
}

// CheckOutput contains a decision.
type CheckOutput struct {
	// Decision is allow, deny, or bypass when the mechanism's
	// kill-switch would let a denial through.
	Decision string `json:"decision"`
	Kind     string `json:"kind,omitempty"`
	Reason   string `json:"reason,omitempty"`
	// External is what the remote side would be told.
	External string `json:"external,omitempty"`
}

// StatusInput is empty.
type StatusInput struct{}

// StatusOutput is the live policy state.
type StatusOutput struct {
	PolicyHash string            `json:"policy_hash"`
	Version    uint64            `json:"version"`
	Mechanisms []MechanismOutput `json:"mechanisms"`
	Banners    []string          `json:"banners,omitempty"`
}

// MechanismOutput describes one mechanism.
type MechanismOutput struct {
	Mechanism string `json:"mechanism"`
	Enforced  bool   `json:"enforced"`
	Source    string `json:"source,omitempty"`
	Reason    string `json:"reason,omitempty"`
	TokenID   string `json:"token_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// KillSwitchInput defines parameters for the chaingate_killswitch tool.
type KillSwitchInput struct {
	Mechanism string `json:"mechanism" jsonschema:"role, class or path"`
	Enabled   bool   `json:"enabled" jsonschema:"true restores enforcement, false disables it"`
	Reason    string `json:"reason,omitempty" jsonschema:"why enforcement is disabled (required when disabling)"`
	Duration  string `json:"duration,omitempty" jsonschema:"expiry when disabling, e.g. 15m (max 1h, omit for until restored)"`
}

// KillSwitchOutput confirms the change.
type KillSwitchOutput struct {
	Mechanism string `json:"mechanism"`
	Enforced  bool   `json:"enforced"`
	TokenID   string `json:"token_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Revoked   int    `json:"revoked,omitempty"`
}

// --- Handlers ---

func (s *Server) handleCheckPath(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckPathInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if input.Path == "" {
		return nil, CheckOutput{}, fmt.Errorf("path is required")
	}
	op := model.OpRead
	if input.Op != "" {
		var ok bool
		if op, ok = model.ParseOperation(input.Op); !ok {
			return nil, CheckOutput{}, fmt.Errorf("unknown operation %q", input.Op)
		}
	}
	rc := sandbox.Context{
		Base:        input.Base,
		BuildDirs:   input.BuildDirs,
		Workspaces:  input.Workspaces,
		UserContent: input.UserContent,
	}
	d := s.gate.EvaluatePath(rc, op, input.Path, model.ParseSide(input.Side))
	return s.output(model.MechanismPath, d)
}

func (s *Server) handleCheckClass(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckClassInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if input.Class == "" {
		return nil, CheckOutput{}, fmt.Errorf("class is required")
	}
	return s.output(model.MechanismClass, s.gate.EvaluateClass(input.Class))
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	// Pick up tokens issued by other processes.
	if err := s.store.Reload(); err != nil {
		s.logger.Warn("policy reload failed, reporting previous policy", "error", err)
	}
	return nil, statusOutput(s.gate.Status()), nil
}

func (s *Server) handleKillSwitch(ctx context.Context, req *mcpsdk.CallToolRequest, input KillSwitchInput) (*mcpsdk.CallToolResult, KillSwitchOutput, error) {
	mech, ok := model.ParseMechanism(input.Mechanism)
	if !ok {
		return nil, KillSwitchOutput{}, fmt.Errorf("unknown mechanism %q", input.Mechanism)
	}
	out := KillSwitchOutput{Mechanism: string(mech)}

	if input.Enabled {
		revoked, err := s.tokens.RevokeMechanism(mech)
		if err != nil {
			return nil, out, err
		}
		if _, err := s.store.Toggle(mech, true, "", 0); err != nil {
			return nil, out, err
		}
		out.Revoked = revoked
		out.Enforced = s.store.Snapshot().Enforced(mech)
		return nil, out, nil
	}

	var duration time.Duration
	if input.Duration != "" {
		var err error
		duration, err = time.ParseDuration(input.Duration)
		if err != nil {
			return nil, out, fmt.Errorf("invalid duration %q: %w", input.Duration, err)
		}
	}
	tok, err := s.tokens.Create(mech, input.Reason, duration)
	if err != nil {
		return nil, out, err
	}
	if err := s.store.Reload(); err != nil {
		return nil, out, fmt.Errorf("token %s issued but policy reload failed: %w", tok.ID, err)
	}
	out.TokenID = tok.ID
	if !tok.ExpiresAt.IsZero() {
		out.ExpiresAt = tok.ExpiresAt.UTC().Format(time.RFC3339)
	}
	out.Enforced = s.store.Snapshot().Enforced(mech)
	return nil, out, nil
}

func (s *Server) output(mech model.Mechanism, d model.Decision) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if d.Allowed {
		return nil, CheckOutput{Decision: "allow", Reason: d.Reason}, nil
	}
	out := CheckOutput{
		Decision: "deny",
		Kind:     string(d.Kind),
		Reason:   d.Reason,
	}
	out.External = enforce.FromDecision(d, model.SideAgent).External()
	if !s.store.Snapshot().Enforced(mech) {
		out.Decision = "bypass"
		return nil, out, nil
	}
	return &mcpsdk.CallToolResult{IsError: true}, out, nil
}

func statusOutput(st gate.Status) StatusOutput {
	out := StatusOutput{
		PolicyHash: st.PolicyHash,
		Version:    st.Version,
		Banners:    st.Banners,
	}
	for _, m := range st.Mechanisms {
		mo := MechanismOutput{
			Mechanism: string(m.Mechanism),
			Enforced:  m.Enforced,
			Source:    m.Source,
			Reason:    m.Reason,
			TokenID:   m.TokenID,
		}
		if m.ExpiresAt != nil {
			mo.ExpiresAt = m.ExpiresAt.UTC().Format(time.RFC3339)
		}
		out.Mechanisms = append(out.Mechanisms, mo)
	}
	return out
}
