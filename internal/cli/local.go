package cli

import (
	"fmt"
	"log/slog"

	"github.com/ppiankov/chaingate/internal/breakglass"
	"github.com/ppiankov/chaingate/internal/gate"
	"github.com/ppiankov/chaingate/internal/policy"
)

// openTokens opens the kill-switch token directory shared with a
// running service.
func openTokens() (*breakglass.Store, error) {
	dir := tokenDir
	if dir == "" {
		dir = breakglass.DefaultDir()
	}
	tokens, err := breakglass.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open kill-switch store: %w", err)
	}
	return tokens, nil
}

// openGate loads the policy with on-disk kill-switches applied and
// returns a gate that records nothing.
func openGate() (*gate.Gate, error) {
	tokens, err := openTokens()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()
	store, err := policy.Open(policyPath, policy.Options{Logger: logger, Tokens: tokens})
	if err != nil {
		return nil, fmt.Errorf("failed to load policy config: %w", err)
	}
	return gate.New(store, gate.Options{Logger: logger}), nil
}
