package gate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/policy"
	"github.com/ppiankov/chaingate/internal/redact"
	"github.com/ppiankov/chaingate/internal/roles"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

// Scope performs the file operations of one request. Every operation is
// checked against the roots of the request and then executed on the
// caller's goroutine. A Scope is safe for concurrent use.
type Scope struct {
	gate   *Gate
	id     string
	side   model.Side
	rc     sandbox.Context
	tokens *redact.TokenMap

	mu    sync.Mutex
	temps []string
}

// NewScope starts a request scope. id correlates log lines, audit entries
// and redaction tokens of the request.
func (g *Gate) NewScope(id string, side model.Side, rc sandbox.Context) *Scope {
	return &Scope{
		gate:   g,
		id:     id,
		side:   side,
		rc:     rc,
		tokens: redact.NewTokenMap(id),
	}
}

// ID returns the scope identifier.
func (s *Scope) ID() string { return s.id }

// Side returns the requesting side.
func (s *Scope) Side() model.Side { return s.side }

// Tokens returns the redaction tokens allocated in this scope.
func (s *Scope) Tokens() *redact.TokenMap { return s.tokens }

// External returns the boundary-safe message for err.
func (s *Scope) External(err error) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.External(err, s.tokens)
}

// Decode reconstructs an object graph sent by the requesting side. The
// decoding side is its peer.
func (s *Scope) Decode(data []byte) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.decode(data, s.side.Peer(), s.id, s.tokens)
}

// Authorize checks that item may travel in dir, recording the denial
// under this scope.
func (s *Scope) Authorize(item any, dir model.Direction) error {
	snap := s.gate.store.Snapshot()
	d := roles.Authorize(item, dir, snap.Grants())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.enforce(snap, model.MechanismRole, d, dir.Destination(), s.id, s.tokens)
}

// Check decides op on path without performing it.
func (s *Scope) Check(op model.Operation, path string) error {
	_, err := s.check(op, path)
	return err
}

func (s *Scope) context() sandbox.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc := s.rc
	rc.Temps = append(append([]string{}, rc.Temps...), s.temps...)
	return rc
}

func (s *Scope) guard(snap *policy.Snapshot) sandbox.Guard {
	rc := s.context()
	return sandbox.Guard{Side: s.side, Base: rc.Base, Roots: snap.Roots(rc)}
}

// check decides op on path and returns the path the operation should
// use: the canonical path when one was resolved.
func (s *Scope) check(op model.Operation, path string) (string, error) {
	snap := s.gate.store.Snapshot()
	g := s.guard(snap)
	res, d := sandbox.Evaluate(sandbox.Request{Op: op, Path: path, Side: s.side, Base: g.Base}, g.Roots)
	if err := s.enforce(snap, d); err != nil {
		return "", err
	}
	if res.Canonical != "" {
		return res.Canonical, nil
	}
	return s.abs(path), nil
}

func (s *Scope) enforce(snap *policy.Snapshot, d model.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.enforce(snap, model.MechanismPath, d, s.side, s.id, s.tokens)
}

func (s *Scope) abs(path string) string {
	if filepath.IsAbs(path) || s.rc.Base == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(s.rc.Base, path)
}

// ReadFile reads the named file.
func (s *Scope) ReadFile(path string) ([]byte, error) {
	target, err := s.check(model.OpRead, path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(target)
}

// WriteFile writes data to the named file, creating it if needed. A
// final symlink is never followed.
func (s *Scope) WriteFile(path string, data []byte, perm os.FileMode) error {
	op := model.OpWrite
	if _, err := os.Lstat(s.abs(path)); os.IsNotExist(err) {
		op = model.OpCreate
	}
	target, err := s.check(op, path)
	if err != nil {
		return err
	}
	f, err := sandbox.OpenNoFollow(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Remove deletes the named file or empty directory.
func (s *Scope) Remove(path string) error {
	if _, err := s.check(model.OpDelete, path); err != nil {
		return err
	}
	// The link itself is removed, not its target.
	return os.Remove(s.abs(path))
}

// ReadDir lists the named directory.
func (s *Scope) ReadDir(path string) ([]os.DirEntry, error) {
	target, err := s.check(model.OpList, path)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(target)
}

// Stat describes the named file.
func (s *Scope) Stat(path string) (os.FileInfo, error) {
	target, err := s.check(model.OpStat, path)
	if err != nil {
		return nil, err
	}
	return os.Stat(target)
}

// MkdirAll creates the named directory and any missing parents.
func (s *Scope) MkdirAll(path string, perm os.FileMode) error {
	target, err := s.check(model.OpMkdirs, path)
	if err != nil {
		return err
	}
	return os.MkdirAll(target, perm)
}

// Symlink creates newname as a link to oldname. Both the link and its
// target are checked. A relative target is resolved against the
// canonical parent of the link, where the kernel will resolve it, and
// the link is created there.
func (s *Scope) Symlink(oldname, newname string) error {
	if _, err := s.check(model.OpSymlink, newname); err != nil {
		return err
	}
	nominal := s.abs(newname)
	parent, err := sandbox.Canonicalize(filepath.Dir(nominal), s.rc.Base)
	if err != nil {
		return fmt.Errorf("resolve link parent: %w", err)
	}
	link := filepath.Join(parent.Canonical, filepath.Base(nominal))

	target := oldname
	if !filepath.IsAbs(target) {
		target = filepath.Join(parent.Canonical, target)
	}
	if _, err := s.check(model.OpStat, target); err != nil {
		return err
	}
	return os.Symlink(oldname, link)
}

// CreateTemp creates a temp file in dir. The created path is checked as
// a create and removed if rejected.
func (s *Scope) CreateTemp(dir, pattern string) (*os.File, error) {
	snap := s.gate.store.Snapshot()
	g := s.guard(snap)
	if !snap.Enforced(model.MechanismPath) {
		if err := s.enforce(snap, g.Check(model.OpList, dir)); err != nil {
			return nil, err
		}
		f, err := os.CreateTemp(s.abs(dir), pattern)
		if err != nil {
			return nil, fmt.Errorf("create temp file: %w", err)
		}
		return f, s.enforce(snap, g.Check(model.OpCreate, f.Name()))
	}
	f, err := g.CreateTemp(s.abs(dir), pattern)
	if d, ok := sandbox.AsDenied(err); ok {
		return nil, s.enforce(snap, d)
	}
	return f, err
}

// MkdirTemp creates a temp directory in dir. The created path is checked
// as a create and removed if rejected.
func (s *Scope) MkdirTemp(dir, pattern string) (string, error) {
	snap := s.gate.store.Snapshot()
	g := s.guard(snap)
	if !snap.Enforced(model.MechanismPath) {
		if err := s.enforce(snap, g.Check(model.OpList, dir)); err != nil {
			return "", err
		}
		name, err := os.MkdirTemp(s.abs(dir), pattern)
		if err != nil {
			return "", fmt.Errorf("create temp dir: %w", err)
		}
		return name, s.enforce(snap, g.Check(model.OpCreate, name))
	}
	name, err := g.MkdirTemp(s.abs(dir), pattern)
	if d, ok := sandbox.AsDenied(err); ok {
		return "", s.enforce(snap, d)
	}
	return name, err
}

// TempRoot creates a controller-owned temp directory and makes it a temp
// root of this scope only. Other scopes never see it.
func (s *Scope) TempRoot(dir, pattern string) (string, error) {
	name, err := os.MkdirTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp root: %w", err)
	}
	s.mu.Lock()
	s.temps = append(s.temps, name)
	s.mu.Unlock()
	return name, nil
}

// Close removes the temp roots created by TempRoot.
func (s *Scope) Close() error {
	s.mu.Lock()
	temps := s.temps
	s.temps = nil
	s.mu.Unlock()

	var firstErr error
	for _, d := range temps {
		if err := os.RemoveAll(d); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Extract unpacks archive into dest. Entries must stay inside dest even
// when the path kill-switch is active.
func (s *Scope) Extract(ctx context.Context, archive, dest string, format sandbox.Format) (*sandbox.Report, error) {
	snap := s.gate.store.Snapshot()
	g := s.guard(snap)
	if !snap.Enforced(model.MechanismPath) {
		if err := s.enforce(snap, g.Check(model.OpRead, archive)); err != nil {
			return nil, err
		}
		if err := s.enforce(snap, g.Check(model.OpExtract, dest)); err != nil {
			return nil, err
		}
		g.Side = model.SideController
		g.Base = s.rc.Base
	}
	report, err := g.Extract(ctx, archive, dest, format)
	if d, ok := sandbox.AsDenied(err); ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		se := s.gate.deny(snap, model.MechanismPath, d, s.side, s.id, s.tokens)
		return report, se
	}
	return report, err
}
