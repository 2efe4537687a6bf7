package scenario

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/chaingate/internal/gate"
	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/policy"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

// Outcomes a case can expect.
const (
	Allow  = "allow"
	Deny   = "deny"
	Bypass = "bypass"
	Error  = "error"
)

// Run evaluates all cases in a scenario against the policy g reads.
// Nothing is recorded: cases compute decisions only.
func Run(s *Scenario, g *gate.Gate) *RunResult {
	snap := g.Store().Snapshot()
	rc := s.Context.sandbox()

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		cr := CaseResult{
			Index:     i + 1,
			Mechanism: c.Check.Mechanism,
			Subject:   c.Check.subject(),
			Expected:  strings.ToLower(c.Expect),
		}

		mech, d, err := evaluate(g, rc, c.Check)
		switch {
		case err != nil:
			cr.Actual, cr.Reason = Error, err.Error()
		case d.Allowed:
			cr.Actual, cr.Reason = Allow, d.Reason
		case !snap.Enforced(mech):
			cr.Actual, cr.Kind, cr.Reason = Bypass, string(d.Kind), d.Reason
		default:
			cr.Actual, cr.Kind, cr.Reason = Deny, string(d.Kind), d.Reason
		}

		cr.Passed = cr.Actual == cr.Expected && (c.Kind == "" || c.Kind == cr.Kind)
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

func evaluate(g *gate.Gate, rc sandbox.Context, c Check) (model.Mechanism, model.Decision, error) {
	mech, ok := model.ParseMechanism(c.Mechanism)
	if !ok {
		return "", model.Decision{}, fmt.Errorf("unknown mechanism %q", c.Mechanism)
	}

	switch mech {
	case model.MechanismRole:
		item, ok := Items[c.Item]
		if !ok {
			return mech, model.Decision{}, fmt.Errorf("unknown item %q (known: %s)", c.Item, strings.Join(ItemNames(), ", "))
		}
		dir := model.Direction(c.Direction)
		if !dir.Valid() {
			return mech, model.Decision{}, fmt.Errorf("unknown direction %q", c.Direction)
		}
		return mech, g.EvaluateRole(item, dir), nil

	case model.MechanismClass:
		if c.Class == "" {
			return mech, model.Decision{}, fmt.Errorf("class case without class")
		}
		return mech, g.EvaluateClass(c.Class), nil

	default:
		op := model.OpRead
		if c.Op != "" {
			if op, ok = model.ParseOperation(c.Op); !ok {
				return mech, model.Decision{}, fmt.Errorf("unknown operation %q", c.Op)
			}
		}
		if c.Path == "" {
			return mech, model.Decision{}, fmt.Errorf("path case without path")
		}
		return mech, g.EvaluatePath(rc, op, c.Path, model.ParseSide(c.Side)), nil
	}
}

func (c Check) subject() string {
	switch {
	case c.Path != "":
		return c.Path
	case c.Class != "":
		return c.Class
	default:
		return c.Item
	}
}

func (c Context) sandbox() sandbox.Context {
	return sandbox.Context{
		Base:        c.Base,
		BuildDirs:   c.BuildDirs,
		Workspaces:  c.Workspaces,
		UserContent: c.UserContent,
		Temps:       c.Temps,
	}
}

// Load reads a scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadAndRun loads a scenario YAML file and the policy, engages the
// scenario's kill-switches and runs.
func LoadAndRun(path, policyPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}

	cfg, hash, err := policy.LoadConfig(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	logger := slog.New(slog.DiscardHandler)
	store, err := policy.NewStore(cfg, hash, policy.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	for _, name := range s.Disable {
		mech, ok := model.ParseMechanism(name)
		if !ok {
			return nil, fmt.Errorf("scenario %s: unknown mechanism %q", path, name)
		}
		if _, err := store.Toggle(mech, false, "scenario "+s.Name, 0); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", path, err)
		}
	}

	result := Run(s, gate.New(store, gate.Options{Logger: logger}))
	result.File = path

	return result, nil
}
