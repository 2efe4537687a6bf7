package sandbox

import (
	"path/filepath"
	"strings"

	"github.com/ppiankov/chaingate/internal/model"
)

// RootKind classifies a permitted root.
type RootKind string

const (
	RootBuild       RootKind = "build"
	RootWorkspace   RootKind = "workspace"
	RootUserContent RootKind = "user_content"
	RootTemp        RootKind = "temp"
	RootStatic      RootKind = "static"
)

// DefaultBuildProtected are names inside a build directory that the
// remote side may read but never modify.
var DefaultBuildProtected = []string{"build.xml", "config.xml", "log"}

// Root is a directory tree the remote side may operate on.
type Root struct {
	Path string   `yaml:"path" json:"path"`
	Kind RootKind `yaml:"kind" json:"kind"`
	// Ops lists permitted operations. Nil permits all.
	Ops model.OperationSet `yaml:"-" json:"-"`
	// Protected are glob patterns, relative to Path, that may not be
	// written, created or deleted.
	Protected []string `yaml:"protected,omitempty" json:"protected,omitempty"`
}

// NewRoot creates a root. With no ops every operation is permitted.
func NewRoot(path string, kind RootKind, ops ...model.Operation) Root {
	r := Root{Path: path, Kind: kind}
	if len(ops) > 0 {
		r.Ops = model.NewOperationSet(ops...)
	}
	return r
}

// Permits reports whether op is allowed under r.
func (r Root) Permits(op model.Operation) bool {
	if r.Ops == nil {
		return true
	}
	return r.Ops.Permits(op)
}

// IsProtected reports whether canonical (inside r) matches a protected
// pattern. rootCanonical is r.Path after canonicalization.
func (r Root) IsProtected(canonical, rootCanonical string) (string, bool) {
	if len(r.Protected) == 0 {
		return "", false
	}
	rel, err := filepath.Rel(rootCanonical, canonical)
	if err != nil || rel == "." {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range r.Protected {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return pattern, true
		}
		// A protected directory covers everything below it.
		if strings.HasPrefix(rel, strings.TrimSuffix(pattern, "/")+"/") {
			return pattern, true
		}
	}
	return "", false
}

// Context describes the request a file operation belongs to. Roots are
// derived from it per call and never cached.
type Context struct {
	// Base resolves relative paths. Empty means relative paths deny.
	Base        string
	BuildDirs   []string
	Workspaces  []string
	UserContent string
	// Temps are temp locations the controller created for this request.
	Temps []string
}

// Roots returns the permitted roots of c.
func (c Context) Roots() []Root {
	var roots []Root
	for _, d := range c.BuildDirs {
		if d == "" {
			continue
		}
		r := NewRoot(d, RootBuild)
		r.Protected = DefaultBuildProtected
		roots = append(roots, r)
	}
	for _, d := range c.Workspaces {
		if d != "" {
			roots = append(roots, NewRoot(d, RootWorkspace))
		}
	}
	if c.UserContent != "" {
		roots = append(roots, NewRoot(c.UserContent, RootUserContent))
	}
	for _, d := range c.Temps {
		if d != "" {
			roots = append(roots, NewRoot(d, RootTemp))
		}
	}
	return roots
}

// RootProvider contributes extra roots for a request context.
type RootProvider interface {
	Name() string
	Roots(c Context) []Root
}

type canonicalRoot struct {
	Root
	canonical string
}

// canonicalizeRoots resolves every root path the same way request paths
// are resolved. Roots that cannot be resolved are dropped.
func canonicalizeRoots(roots []Root) []canonicalRoot {
	out := make([]canonicalRoot, 0, len(roots))
	for _, r := range roots {
		if r.Path == "" || !filepath.IsAbs(r.Path) {
			continue
		}
		res, err := Canonicalize(r.Path, "")
		if err != nil {
			continue
		}
		out = append(out, canonicalRoot{Root: r, canonical: res.Canonical})
	}
	return out
}

func anyWithin(path string, roots []canonicalRoot) bool {
	for _, r := range roots {
		if Within(path, r.canonical) {
			return true
		}
	}
	return false
}
