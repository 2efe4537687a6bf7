// Package gate is the boundary interceptor. Every invocation, object
// decode and cross-boundary file operation passes through a Gate before
// the underlying call runs.
package gate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/chaingate/internal/alert"
	"github.com/ppiankov/chaingate/internal/audit"
	"github.com/ppiankov/chaingate/internal/enforce"
	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/policy"
	"github.com/ppiankov/chaingate/internal/redact"
	"github.com/ppiankov/chaingate/internal/roles"
	"github.com/ppiankov/chaingate/internal/sandbox"
	"github.com/ppiankov/chaingate/internal/wire"
)

// RedactedClass is returned to the remote side for class denials.
const RedactedClass = "class not admitted"

// Options configures a Gate.
type Options struct {
	Logger *slog.Logger
	// Audit receives deny, bypass and kill-switch entries. Nil disables.
	Audit audit.Recorder
	// Alerts receives the same events as webhooks. Nil disables.
	Alerts *alert.Dispatcher
}

// Gate applies the three mechanisms using the policy in store. It holds
// no per-request state and is safe for concurrent use.
type Gate struct {
	store  *policy.Store
	logger *slog.Logger
	audit  audit.Recorder
	alerts *alert.Dispatcher
}

// New creates a Gate and subscribes it to kill-switch transitions.
func New(store *policy.Store, opts Options) *Gate {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		store:  store,
		logger: logger,
		audit:  opts.Audit,
		alerts: opts.Alerts,
	}
	store.Subscribe(g.onTransition)
	return g
}

// Store returns the policy store the gate reads.
func (g *Gate) Store() *policy.Store {
	return g.store
}

// Authorize checks that item may travel in dir. The side recorded is the
// side that would execute it.
func (g *Gate) Authorize(item any, dir model.Direction) error {
	snap := g.store.Snapshot()
	d := roles.Authorize(item, dir, snap.Grants())
	return g.enforce(snap, model.MechanismRole, d, dir.Destination(), "", nil)
}

// EvaluateRole returns the role decision for item without recording
// anything.
func (g *Gate) EvaluateRole(item any, dir model.Direction) model.Decision {
	return roles.Authorize(item, dir, g.store.Snapshot().Grants())
}

// AdmitClass checks that the class named by expr may be reconstructed
// on side.
func (g *Gate) AdmitClass(expr string, side model.Side) error {
	snap := g.store.Snapshot()
	return g.enforce(snap, model.MechanismClass, classDecision(snap, expr), side, "", nil)
}

// EvaluateClass returns the filter result for expr without recording
// anything.
func (g *Gate) EvaluateClass(expr string) model.Decision {
	return classDecision(g.store.Snapshot(), expr)
}

func classDecision(snap *policy.Snapshot, expr string) model.Decision {
	res := snap.Filter().Evaluate(expr)
	if res.Admitted {
		return model.Allow(expr)
	}
	return model.Deny(model.KindDeniedClass, expr,
		fmt.Sprintf("class %s rejected by %s layer: %s", res.Class, res.Layer, res.Reason),
		RedactedClass)
}

// Decode reconstructs a received object graph on side. Every class in
// the graph is admitted before any value is constructed; one rejected
// class aborts the whole graph.
func (g *Gate) Decode(data []byte, side model.Side) (any, error) {
	return g.decode(data, side, "", nil)
}

func (g *Gate) decode(data []byte, side model.Side, scope string, tm *redact.TokenMap) (any, error) {
	snap := g.store.Snapshot()
	v, err := wire.Decode(data, wire.AdmitFunc(func(name string) error {
		return g.enforce(snap, model.MechanismClass, classDecision(snap, name), side, scope, tm)
	}))
	if err != nil {
		var se *enforce.SecurityError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, fmt.Errorf("decode object graph: %w", err)
	}
	return v, nil
}

// CheckPath checks one file operation requested by side within the
// request described by rc.
func (g *Gate) CheckPath(rc sandbox.Context, op model.Operation, path string, side model.Side) error {
	snap := g.store.Snapshot()
	d := sandbox.Check(sandbox.Request{Op: op, Path: path, Side: side, Base: rc.Base}, snap.Roots(rc))
	return g.enforce(snap, model.MechanismPath, d, side, "", nil)
}

// EvaluatePath returns the sandbox decision without recording anything.
func (g *Gate) EvaluatePath(rc sandbox.Context, op model.Operation, path string, side model.Side) model.Decision {
	snap := g.store.Snapshot()
	return sandbox.Check(sandbox.Request{Op: op, Path: path, Side: side, Base: rc.Base}, snap.Roots(rc))
}

// External returns the message for err that may cross the boundary.
// Security errors carry their redacted reason. Other errors have paths
// and hosts replaced by tokens allocated in tm unless detail is enabled.
func (g *Gate) External(err error, tm *redact.TokenMap) string {
	if err == nil {
		return ""
	}
	var se *enforce.SecurityError
	if errors.As(err, &se) {
		return se.External()
	}
	r := g.store.Snapshot().Redactor()
	if r.IncludeDetail() {
		return err.Error()
	}
	return r.Redact(err.Error(), tm)
}

// Status describes the live policy.
type Status struct {
	PolicyHash string                   `json:"policy_hash"`
	Version    uint64                   `json:"version"`
	Mechanisms []policy.MechanismStatus `json:"mechanisms"`
	Banners    []string                 `json:"banners,omitempty"`
}

// Status returns the live policy state.
func (g *Gate) Status() Status {
	snap := g.store.Snapshot()
	return Status{
		PolicyHash: snap.Hash,
		Version:    snap.Version,
		Mechanisms: snap.Status(),
		Banners:    snap.Banners(),
	}
}

// enforce turns a decision into an error. If the mechanism's
// kill-switch is active a denial is recorded as a bypass and nil is
// returned.
func (g *Gate) enforce(snap *policy.Snapshot, mech model.Mechanism, d model.Decision, side model.Side, scope string, tm *redact.TokenMap) error {
	if d.Allowed {
		return nil
	}
	if !snap.Enforced(mech) {
		se := g.securityError(snap, mech, d, side)
		se.Bypassed = true
		g.logger.Debug("security check bypassed by kill-switch", g.attrs(se, scope, tm)...)
		g.record(snap, se, audit.EventBypass, alert.TypeBypass, scope)
		return nil
	}
	return g.deny(snap, mech, d, side, scope, tm)
}

// deny logs, audits and alerts a denial regardless of kill-switches.
func (g *Gate) deny(snap *policy.Snapshot, mech model.Mechanism, d model.Decision, side model.Side, scope string, tm *redact.TokenMap) *enforce.SecurityError {
	se := g.securityError(snap, mech, d, side)
	g.logger.Warn("security rejection", g.attrs(se, scope, tm)...)
	g.record(snap, se, audit.EventDeny, alert.TypeDeny, scope)
	return se
}

func (g *Gate) securityError(snap *policy.Snapshot, mech model.Mechanism, d model.Decision, side model.Side) *enforce.SecurityError {
	se := enforce.FromDecision(d, side)
	se.Mechanism = mech
	if snap.Redactor().IncludeDetail() {
		se.Redacted = se.Reason
	}
	return se
}

func (g *Gate) attrs(se *enforce.SecurityError, scope string, tm *redact.TokenMap) []any {
	attrs := []any{
		"mechanism", se.Mechanism,
		"kind", se.Kind,
		"identifier", se.Identifier,
		"side", se.Side,
		"killswitch", se.Bypassed,
		"reason", se.Reason,
	}
	if scope != "" {
		attrs = append(attrs, "scope", scope)
	}
	if tm != nil && tm.Len() > 0 {
		attrs = append(attrs, "tokens", tm)
	}
	return attrs
}

func (g *Gate) record(snap *policy.Snapshot, se *enforce.SecurityError, event audit.Event, alertType, scope string) {
	if g.audit != nil {
		err := g.audit.Record(audit.Entry{
			Scope:      scope,
			Event:      event,
			Mechanism:  string(se.Mechanism),
			Kind:       string(se.Kind),
			Identifier: se.Identifier,
			Side:       string(se.Side),
			Killswitch: se.Bypassed,
			Reason:     se.Reason,
			PolicyHash: snap.Hash,
		})
		if err != nil {
			g.logger.Error("audit write failed", "event", event, "error", err)
		}
	}

	identifier := se.Identifier
	if se.Mechanism == model.MechanismPath && !snap.Redactor().IncludeDetail() {
		identifier = snap.Redactor().Redact(identifier, nil)
	}
	g.alerts.Dispatch(alert.Event{
		Type:       alertType,
		Scope:      scope,
		Mechanism:  string(se.Mechanism),
		Kind:       string(se.Kind),
		Identifier: identifier,
		Side:       string(se.Side),
		Reason:     se.Redacted,
		Killswitch: se.Bypassed,
		PolicyHash: snap.Hash,
	})
}

func (g *Gate) onTransition(t policy.Transition) {
	event, alertType := audit.EventKillswitch, alert.TypeKillswitch
	if t.Enabled {
		event, alertType = audit.EventRestore, alert.TypeRestore
	}
	identifier := ""
	if t.Token != nil {
		identifier = t.Token.ID
	}
	reason := t.Source
	if t.Reason != "" {
		reason += ": " + t.Reason
	}

	if g.audit != nil {
		err := g.audit.Record(audit.Entry{
			Event:      event,
			Mechanism:  string(t.Mechanism),
			Identifier: identifier,
			Killswitch: !t.Enabled,
			Reason:     reason,
			PolicyHash: t.PolicyHash,
		})
		if err != nil {
			g.logger.Error("audit write failed", "event", event, "error", err)
		}
	}
	g.alerts.Dispatch(alert.Event{
		Type:       alertType,
		Mechanism:  string(t.Mechanism),
		Identifier: identifier,
		Reason:     t.Reason,
		Killswitch: !t.Enabled,
		PolicyHash: t.PolicyHash,
	})
}
