package roles

import (
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/chaingate/internal/model"
)

type noCheck struct{}

func (noCheck) CheckRoles(c Checker) error { return nil }

type agentToController struct{ ToController }

type controllerToAgent struct{ ToAgent }

type either struct{ Either }

type granted struct{ GrantedToController }

type swallowsMismatch struct{}

func (swallowsMismatch) CheckRoles(c Checker) error {
	_ = c.Check(model.RoleAgent)
	_ = c.Check(model.RoleController)
	return nil
}

type failingCallback struct{}

func (failingCallback) CheckRoles(c Checker) error {
	_ = c.Check(model.RoleController, model.RoleAgent)
	return errors.New("declaration unavailable")
}

type panicking struct{}

func (panicking) CheckRoles(c Checker) error { panic("boom") }

type legacyItem struct{}

func (legacyItem) Call() (any, error) { return nil, nil }

func TestNoDeclarationDeniedBothDirections(t *testing.T) {
	for _, dir := range []model.Direction{model.ControllerToAgent, model.AgentToController} {
		d := Authorize(noCheck{}, dir, nil)
		if d.Allowed {
			t.Errorf("expected deny for item without role check in %s", dir)
		}
		if d.Kind != model.KindUnauthorizedDirection {
			t.Errorf("expected UnauthorizedDirection, got %s", d.Kind)
		}
		if !strings.Contains(d.Reason, "no role check") {
			t.Errorf("unexpected reason %q", d.Reason)
		}
	}
}

func TestWrongDirectionDenied(t *testing.T) {
	if d := Authorize(agentToController{}, model.ControllerToAgent, nil); d.Allowed {
		t.Error("agent_to_controller item must not travel controller_to_agent")
	}
	if d := Authorize(agentToController{}, model.AgentToController, nil); !d.Allowed {
		t.Errorf("expected allow, got %s", d.Reason)
	}
	if d := Authorize(controllerToAgent{}, model.AgentToController, nil); d.Allowed {
		t.Error("controller_to_agent item must not travel agent_to_controller")
	}
	if d := Authorize(controllerToAgent{}, model.ControllerToAgent, nil); !d.Allowed {
		t.Errorf("expected allow, got %s", d.Reason)
	}
}

func TestEitherAllowedBothDirections(t *testing.T) {
	for _, dir := range []model.Direction{model.ControllerToAgent, model.AgentToController} {
		if d := Authorize(either{}, dir, nil); !d.Allowed {
			t.Errorf("expected allow in %s, got %s", dir, d.Reason)
		}
	}
}

func TestGrantedRequiresOperatorGrant(t *testing.T) {
	if d := Authorize(granted{}, model.AgentToController, nil); d.Allowed {
		t.Error("expected deny without grant")
	}

	grants := NewGrants(TypeName(granted{}))
	if d := Authorize(granted{}, model.AgentToController, grants); !d.Allowed {
		t.Errorf("expected allow with grant, got %s", d.Reason)
	}
	if d := Authorize(granted{}, model.ControllerToAgent, nil); !d.Allowed {
		t.Errorf("expected agent direction to need no grant, got %s", d.Reason)
	}
}

func TestSwallowedMismatchStillDenied(t *testing.T) {
	d := Authorize(swallowsMismatch{}, model.AgentToController, nil)
	if d.Allowed {
		t.Fatal("a mismatching check must deny even when its error is ignored")
	}
}

func TestCallbackErrorDenied(t *testing.T) {
	d := Authorize(failingCallback{}, model.AgentToController, nil)
	if d.Allowed {
		t.Fatal("expected deny when callback returns an error")
	}
	if !strings.Contains(d.Reason, "declaration unavailable") {
		t.Errorf("expected callback error in reason, got %q", d.Reason)
	}
}

func TestPanicDenied(t *testing.T) {
	d := Authorize(panicking{}, model.AgentToController, nil)
	if d.Allowed {
		t.Fatal("expected deny on panic")
	}
}

func TestLegacyItemRejectedByName(t *testing.T) {
	d := Authorize(legacyItem{}, model.AgentToController, nil)
	if d.Allowed {
		t.Fatal("expected legacy item to be denied")
	}
	if d.Kind != model.KindLegacyWorkItemRejected {
		t.Errorf("expected LegacyWorkItemRejected, got %s", d.Kind)
	}
	if !strings.Contains(d.Reason, "roles.legacyItem") {
		t.Errorf("expected reason to name legacy type, got %q", d.Reason)
	}
}

func TestNonWorkItemDenied(t *testing.T) {
	if d := Authorize("just a string", model.AgentToController, nil); d.Allowed {
		t.Error("expected deny for arbitrary value")
	}
	if d := Authorize(nil, model.AgentToController, nil); d.Allowed {
		t.Error("expected deny for nil")
	}
	if d := Authorize(either{}, model.Direction("sideways"), nil); d.Allowed {
		t.Error("expected deny for unknown direction")
	}
}

func TestDenialRedactedOmitsTypeDetail(t *testing.T) {
	d := Authorize(agentToController{}, model.ControllerToAgent, nil)
	if !strings.Contains(d.Reason, "agentToController") {
		t.Errorf("expected full type in reason, got %q", d.Reason)
	}
	if strings.Contains(d.Redacted, "agentToController") {
		t.Errorf("redacted message should not carry type detail, got %q", d.Redacted)
	}
}

func TestTypeName(t *testing.T) {
	name := TypeName(&agentToController{})
	if name != "github.com/ppiankov/chaingate/internal/roles.agentToController" {
		t.Errorf("unexpected type name %q", name)
	}
	if TypeName(nil) != "<nil>" {
		t.Error("expected <nil> for nil")
	}
}

func BenchmarkAuthorize(b *testing.B) {
	item := agentToController{}
	for i := 0; i < b.N; i++ {
		Authorize(item, model.AgentToController, nil)
	}
}

type newStyleCallable struct{}

func (newStyleCallable) Call(step int, env map[string]string) (any, error) { return nil, nil }

func TestAnyCallShapeWithoutDeclarationIsLegacy(t *testing.T) {
	d := Authorize(newStyleCallable{}, model.ControllerToAgent, nil)
	if d.Kind != model.KindLegacyWorkItemRejected {
		t.Errorf("expected LegacyWorkItemRejected, got %s", d.Kind)
	}
}
