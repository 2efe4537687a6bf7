package sandbox

import (
	"fmt"
	"os"

	"github.com/ppiankov/chaingate/internal/model"
)

// CreateTemp creates a temp file in dir and checks the resulting path as
// a create. On rejection the file is removed before returning.
func (g Guard) CreateTemp(dir, pattern string) (*os.File, error) {
	if err := g.Require(model.OpList, dir); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if d := g.Check(model.OpCreate, f.Name()); !d.Allowed {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, &DeniedError{Decision: d}
	}
	return f, nil
}

// MkdirTemp creates a temp directory in dir and checks the resulting
// path as a create. On rejection the directory is removed.
func (g Guard) MkdirTemp(dir, pattern string) (string, error) {
	if err := g.Require(model.OpList, dir); err != nil {
		return "", err
	}
	name, err := os.MkdirTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	if d := g.Check(model.OpCreate, name); !d.Allowed {
		_ = os.RemoveAll(name)
		return "", &DeniedError{Decision: d}
	}
	return name, nil
}
