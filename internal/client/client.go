package client

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	gatev1 "github.com/ppiankov/chaingate/api/gate/v1"
	"github.com/ppiankov/chaingate/internal/gate"
	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

// Timeout bounds each call when ctx carries no deadline.
const Timeout = 5 * time.Second

// Client connects to a chaingate decision service.
type Client struct {
	conn   *grpc.ClientConn
	client gatev1.GateClient
}

// New creates a gRPC client connected to the given address.
// Fail-closed: if the service cannot be reached, checks return a denial.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gate service: %w", err)
	}
	return &Client{
		conn:   conn,
		client: gatev1.NewGateClient(conn),
	}, nil
}

// PathRequest is one file operation to decide.
type PathRequest struct {
	Op      model.Operation
	Path    string
	Side    model.Side
	Context sandbox.Context
	// Scope correlates server logs. Empty lets the server assign one.
	Scope string
}

// CheckPath asks the service to decide a file operation. Denials are
// returned as a Decision, not an error. Fail-closed: any RPC failure is
// a denial.
func (c *Client) CheckPath(ctx context.Context, req PathRequest) (model.Decision, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	in, err := structpb.NewStruct(map[string]any{
		"op":           string(req.Op),
		"path":         req.Path,
		"side":         string(req.Side),
		"base":         req.Context.Base,
		"build_dirs":   anyList(req.Context.BuildDirs),
		"workspaces":   anyList(req.Context.Workspaces),
		"user_content": req.Context.UserContent,
		"temps":        anyList(req.Context.Temps),
		"scope":        req.Scope,
	})
	if err != nil {
		return model.Decision{}, err
	}

	_, err = c.client.CheckPath(ctx, in)
	return decision(req.Path, err), nil
}

// CheckClass asks the service whether class may be reconstructed on side.
// Fail-closed like CheckPath.
func (c *Client) CheckClass(ctx context.Context, class string, side model.Side) (model.Decision, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	in, err := structpb.NewStruct(map[string]any{
		"class": class,
		"side":  string(side),
	})
	if err != nil {
		return model.Decision{}, err
	}

	_, err = c.client.CheckClass(ctx, in)
	return decision(class, err), nil
}

// Status returns the live policy state of the service.
func (c *Client) Status(ctx context.Context) (*gate.Status, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Status(ctx, &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	data, err := protojson.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	var st gate.Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}

// KillSwitch is the result of SetKillSwitch.
type KillSwitch struct {
	Mechanism model.Mechanism
	Enabled   bool
	TokenID   string
	ExpiresAt time.Time
}

// SetKillSwitch turns enforcement of mech off (enabled=false) or back on.
func (c *Client) SetKillSwitch(ctx context.Context, mech model.Mechanism, enabled bool, reason string, duration time.Duration) (*KillSwitch, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	fields := map[string]any{
		"mechanism": string(mech),
		"enabled":   enabled,
		"reason":    reason,
	}
	if duration > 0 {
		fields["duration"] = duration.String()
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.SetKillSwitch(ctx, in)
	if err != nil {
		return nil, err
	}
	ks := &KillSwitch{
		Mechanism: mech,
		Enabled:   resp.Fields["enabled"].GetBoolValue(),
		TokenID:   resp.Fields["token_id"].GetStringValue(),
	}
	if v := resp.Fields["expires_at"].GetStringValue(); v != "" {
		ks.ExpiresAt, _ = time.Parse(time.RFC3339, v)
	}
	return ks, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

var kindRe = regexp.MustCompile(`^security rejection \(([A-Za-z]+)\)`)

// decision maps an RPC result to a Decision. Only PermissionDenied
// carries a gate verdict; everything else is fail-closed.
func decision(identifier string, err error) model.Decision {
	if err == nil {
		return model.Allow(identifier)
	}
	st := status.Convert(err)
	if st.Code() != codes.PermissionDenied {
		msg := fmt.Sprintf("gate service unreachable: %s", st.Message())
		return model.Decision{Identifier: identifier, Reason: msg, Redacted: msg}
	}
	d := model.Decision{Identifier: identifier, Reason: st.Message(), Redacted: st.Message()}
	if m := kindRe.FindStringSubmatch(st.Message()); m != nil {
		d.Kind = model.Kind(m[1])
	}
	return d
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, Timeout)
}

func anyList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
