package enforce

import (
	"errors"
	"fmt"

	"github.com/ppiankov/chaingate/internal/model"
)

// ErrSecurity matches every SecurityError via errors.Is.
var ErrSecurity = errors.New("security rejection")

// SecurityError is raised when a boundary check rejects a work item,
// a class or a file operation. Callers abort the one offending call and
// report it to the initiating side; they never retry it.
type SecurityError struct {
	Kind       model.Kind
	Mechanism  model.Mechanism
	Identifier string
	Side       model.Side
	Reason     string
	Redacted   string
	// Bypassed is set when the mechanism's kill-switch let the
	// operation proceed.
	Bypassed bool
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security rejection (%s): %s", e.Kind, e.Reason)
}

// Is lets errors.Is(err, ErrSecurity) match any kind.
func (e *SecurityError) Is(target error) bool {
	return target == ErrSecurity
}

// External returns the message that may cross the boundary.
func (e *SecurityError) External() string {
	msg := e.Redacted
	if msg == "" {
		msg = "operation rejected"
	}
	return fmt.Sprintf("security rejection (%s): %s", e.Kind, msg)
}

// FromDecision converts a denying decision into a SecurityError.
// Returns nil for allowing decisions.
func FromDecision(d model.Decision, side model.Side) *SecurityError {
	if d.Allowed {
		return nil
	}
	return &SecurityError{
		Kind:       d.Kind,
		Mechanism:  model.MechanismFor(d.Kind),
		Identifier: d.Identifier,
		Side:       side,
		Reason:     d.Reason,
		Redacted:   d.Redacted,
	}
}

// IsKind returns true if err is a SecurityError of the given kind.
func IsKind(err error, kind model.Kind) bool {
	var se *SecurityError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// External returns the boundary-safe message for any error. Security
// errors are redacted, other errors are reported generically so that
// local filesystem details never reach the remote side.
func External(err error) string {
	if err == nil {
		return ""
	}
	var se *SecurityError
	if errors.As(err, &se) {
		return se.External()
	}
	return "remote operation failed"
}
