package sandbox

import (
	"errors"
	"fmt"

	"github.com/ppiankov/chaingate/internal/model"
)

// Messages returned to the remote side in place of the full reason.
const (
	RedactedOutside   = "path outside permitted roots"
	RedactedOperation = "operation not permitted on path"
	RedactedArchive   = "archive entry outside extraction root"
)

// Request is one file operation crossing the boundary.
type Request struct {
	Op   model.Operation
	Path string
	Side model.Side
	// Base resolves relative paths.
	Base string
}

// DeniedError carries a denying decision out of an I/O helper.
type DeniedError struct {
	Decision model.Decision
}

func (e *DeniedError) Error() string {
	return "sandbox: " + e.Decision.Reason
}

// AsDenied extracts the decision from err, if any.
func AsDenied(err error) (model.Decision, bool) {
	var de *DeniedError
	if errors.As(err, &de) {
		return de.Decision, true
	}
	return model.Decision{}, false
}

// Check decides whether req may proceed under roots. Requests from the
// controller side are trusted and always allowed.
func Check(req Request, roots []Root) model.Decision {
	_, d := Evaluate(req, roots)
	return d
}

// Evaluate is Check that also returns the resolution it decided on.
// The resolution is empty for trusted requests.
func Evaluate(req Request, roots []Root) (Resolution, model.Decision) {
	if req.Side.Trusted() {
		return Resolution{}, model.Allow(req.Path)
	}
	if _, ok := model.ParseOperation(string(req.Op)); !ok {
		return Resolution{}, denyPath(req.Path, fmt.Sprintf("unknown operation %q", req.Op), RedactedOperation)
	}

	res, err := Canonicalize(req.Path, req.Base)
	if err != nil {
		return res, denyPath(req.Path, fmt.Sprintf("cannot resolve %s: %v", req.Path, err), RedactedOutside)
	}
	return res, decide(req, res, canonicalizeRoots(roots))
}

func decide(req Request, res Resolution, roots []canonicalRoot) model.Decision {
	for _, hop := range res.Hops {
		if anyWithin(hop.Link, roots) && !anyWithin(hop.Target, roots) {
			return denyPath(req.Path,
				fmt.Sprintf("symlink %s points outside permitted roots (%s)", hop.Link, hop.Target),
				RedactedOutside)
		}
	}

	var reason string
	matched := false
	for _, r := range roots {
		if !Within(res.Canonical, r.canonical) {
			continue
		}
		matched = true
		if !r.Permits(req.Op) {
			reason = fmt.Sprintf("%s not permitted under %s root %s", req.Op, r.Kind, r.canonical)
			continue
		}
		if req.Op.Mutates() {
			if res.Canonical == r.canonical && req.Op == model.OpDelete {
				reason = fmt.Sprintf("cannot delete %s root %s", r.Kind, r.canonical)
				continue
			}
			if pattern, ok := r.IsProtected(res.Canonical, r.canonical); ok {
				reason = fmt.Sprintf("%s of %s denied: protected by %q in %s root", req.Op, res.Canonical, pattern, r.Kind)
				continue
			}
		}
		return model.Allow(req.Path)
	}

	if !matched {
		return denyPath(req.Path,
			fmt.Sprintf("%s resolves to %s, outside permitted roots", req.Path, res.Canonical),
			RedactedOutside)
	}
	return denyPath(req.Path, reason, RedactedOperation)
}

func denyPath(path, reason, redacted string) model.Decision {
	return model.Deny(model.KindPathEscape, path, reason, redacted)
}

// Guard binds the requesting side, base directory and roots of one
// request. The zero Guard denies every untrusted operation.
type Guard struct {
	Side  model.Side
	Base  string
	Roots []Root
}

// Check decides op on path.
func (g Guard) Check(op model.Operation, path string) model.Decision {
	return Check(Request{Op: op, Path: path, Side: g.Side, Base: g.Base}, g.Roots)
}

// Require returns a *DeniedError if op on path is not allowed.
func (g Guard) Require(op model.Operation, path string) error {
	if d := g.Check(op, path); !d.Allowed {
		return &DeniedError{Decision: d}
	}
	return nil
}

// WithRoot returns a copy of g with an extra root.
func (g Guard) WithRoot(r Root) Guard {
	roots := make([]Root, 0, len(g.Roots)+1)
	roots = append(roots, g.Roots...)
	g.Roots = append(roots, r)
	return g
}
