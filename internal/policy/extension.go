package policy

import (
	"github.com/ppiankov/chaingate/internal/classfilter"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

// Extension is a named contribution to the boundary policy. An
// extension must implement ClassContributor, sandbox.RootProvider, or
// both.
type Extension interface {
	Name() string
}

// ClassContributor adds class rules to the operator/extension layer.
// Contributions can never override the built-in deny set.
type ClassContributor interface {
	Extension
	ClassPatterns() classfilter.Patterns
}

// Classes is a static ClassContributor.
type Classes struct {
	ID       string
	Patterns classfilter.Patterns
}

func (c Classes) Name() string                        { return c.ID }
func (c Classes) ClassPatterns() classfilter.Patterns { return c.Patterns }

// StaticRoots is a RootProvider that contributes the same roots to
// every request.
type StaticRoots struct {
	ID    string
	Paths []sandbox.Root
}

func (s StaticRoots) Name() string                         { return s.ID }
func (s StaticRoots) Roots(sandbox.Context) []sandbox.Root { return s.Paths }
