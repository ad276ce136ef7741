// internal/approvals/engine_test.go
package approvals

import (
	"errors"
	"testing"
	"time"

	"github.com/agentcoord/internal/agents"
	"github.com/agentcoord/internal/db"
	"github.com/agentcoord/internal/types"
)

// chain builds IC -> MM -> SM -> EXEC and returns the profiles bottom-up
func buildChain(t *testing.T, store *agents.Store) (ic, mm, sm, exec *agents.Profile) {
	t.Helper()
	exec = register(t, store, "exec", types.RoleExecutive, "")
	sm = register(t, store, "sm", types.RoleSeniorManagement, exec.ID)
	mm = register(t, store, "mm", types.RoleMiddleManagement, sm.ID)
	ic = register(t, store, "ic", types.RoleIndividualContributor, mm.ID)
	return ic, mm, sm, exec
}

func register(t *testing.T, store *agents.Store, name string, role types.Role, reportsTo string) *agents.Profile {
	t.Helper()
	p := agents.NewProfile("proj-1", name, role)
	p.ReportsTo = reportsTo
	if err := store.Register(p); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return p
}

func newTestEngine(t *testing.T, fleetFallback bool) (*Engine, *agents.Store) {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	agentStore, err := agents.NewStore(conn)
	if err != nil {
		t.Fatalf("agent store: %v", err)
	}
	store, err := NewStore(conn)
	if err != nil {
		t.Fatalf("approval store: %v", err)
	}
	return NewEngine(agentStore, store, fleetFallback), agentStore
}

func TestBudgetAuthorityMatrix(t *testing.T) {
	tests := []struct {
		amount float64
		want   types.Role
	}{
		{200000, types.RoleExecutive},
		{100001, types.RoleExecutive},
		{100000, types.RoleSeniorManagement},
		{26000, types.RoleSeniorManagement},
		{10000, types.RoleMiddleManagement},
		{500, types.RoleIndividualContributor},
	}
	for _, tt := range tests {
		if got := RequiredAuthority(DecisionBudget, tt.amount); got != tt.want {
			t.Errorf("budget %.0f: expected %s, got %s", tt.amount, tt.want, got)
		}
	}
	if got := RequiredAuthority(DecisionPolicy, 0); got != types.RoleExecutive {
		t.Errorf("policy should need executive, got %s", got)
	}
	if got := RequiredAuthority(DecisionScaling, 0); got != types.RoleMiddleManagement {
		t.Errorf("scaling should need middle management, got %s", got)
	}
}

func TestRequestRoutesToLowestSufficient(t *testing.T) {
	engine, agentStore := newTestEngine(t, true)
	ic, mm, _, _ := buildChain(t, agentStore)

	// 10k needs middle management; MM is the first sufficient link.
	req, err := engine.Request("proj-1", ic.ID, DecisionBudget, "tooling", "", "", 10000, "medium")
	if err != nil {
		t.Fatal(err)
	}
	if req.CurrentApprover != mm.ID {
		t.Errorf("expected approver %s, got %s", mm.ID, req.CurrentApprover)
	}
	if req.Status != StatusPending {
		t.Errorf("new request should be pending, got %s", req.Status)
	}
}

func TestEscalationToTopThenStuck(t *testing.T) {
	engine, agentStore := newTestEngine(t, true)
	ic, _, _, exec := buildChain(t, agentStore)
	engine.SetRules([]Rule{{DecisionType: DecisionBudget, MaxAge: 24 * time.Hour}})

	// 200k requires executive; the chain walk lands on EXEC directly.
	req, err := engine.Request("proj-1", ic.ID, DecisionBudget, "expansion", "", "", 200000, "high")
	if err != nil {
		t.Fatal(err)
	}
	if req.CurrentApprover != exec.ID {
		t.Fatalf("expected EXEC approver, got %s", req.CurrentApprover)
	}

	// No decision within 24h: the rule fires, but EXEC has no manager.
	// The request flags escalated with the timeout reason and keeps its
	// approver.
	if n := engine.Evaluate(time.Now().Add(25 * time.Hour)); n != 0 {
		t.Errorf("stuck escalation should not count as moved, got %d", n)
	}
	got, err := engine.Get(req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusEscalated {
		t.Errorf("expected escalated status, got %s", got.Status)
	}
	if got.EscalationReason != "timeout" {
		t.Errorf("expected timeout reason, got %q", got.EscalationReason)
	}
	if got.CurrentApprover != exec.ID {
		t.Errorf("approver must stay %s, got %s", exec.ID, got.CurrentApprover)
	}

	// The executive can still decide a stuck request.
	if _, err := engine.Approve(exec.ID, req.ID, "approved after review"); err != nil {
		t.Fatal(err)
	}
}

func TestEscalationMovesUpChain(t *testing.T) {
	engine, agentStore := newTestEngine(t, true)
	ic, mm, sm, _ := buildChain(t, agentStore)

	req, err := engine.Request("proj-1", ic.ID, DecisionBudget, "licenses", "", "", 10000, "low")
	if err != nil {
		t.Fatal(err)
	}
	if req.CurrentApprover != mm.ID {
		t.Fatalf("expected MM approver, got %s", req.CurrentApprover)
	}

	moved, err := engine.Escalate(req.ID, "manual")
	if err != nil {
		t.Fatal(err)
	}
	if moved.CurrentApprover != sm.ID || moved.Escalations != 1 {
		t.Errorf("expected SM approver after escalation, got %+v", moved)
	}
}

func TestApproveAuthorityChecks(t *testing.T) {
	engine, agentStore := newTestEngine(t, true)
	ic, mm, _, _ := buildChain(t, agentStore)

	req, err := engine.Request("proj-1", ic.ID, DecisionBudget, "gear", "", "", 10000, "low")
	if err != nil {
		t.Fatal(err)
	}

	// Only the current approver may decide.
	if _, err := engine.Approve(ic.ID, req.ID, "self-approve"); !errors.Is(err, types.ErrPermissionDenied) {
		t.Errorf("non-approver approve should be denied, got %v", err)
	}

	got, err := engine.Reject(mm.ID, req.ID, "not in budget")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusRejected || got.DecidedAt == nil {
		t.Errorf("unexpected decision state %+v", got)
	}

	// Decided requests are closed.
	if _, err := engine.Approve(mm.ID, req.ID, ""); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("deciding a closed request should fail, got %v", err)
	}
}

func TestFleetFallbackConfigurable(t *testing.T) {
	// An IC with no chain requests a 10k budget decision.
	strict, agentStore := newTestEngine(t, false)
	loner := register(t, agentStore, "loner", types.RoleIndividualContributor, "")
	mgr := register(t, agentStore, "mgr", types.RoleMiddleManagement, "")

	if _, err := strict.Request("proj-1", loner.ID, DecisionBudget, "t", "", "", 10000, ""); !errors.Is(err, types.ErrNoApprover) {
		t.Errorf("strict engine should fail without chain approver, got %v", err)
	}

	fallback := NewEngine(agentStore, nil, true)
	req, err := fallback.Request("proj-1", loner.ID, DecisionBudget, "t", "", "", 10000, "")
	if err != nil {
		t.Fatal(err)
	}
	if req.CurrentApprover != mgr.ID {
		t.Errorf("fallback should pick the qualified fleet agent, got %s", req.CurrentApprover)
	}
}

func TestAuditTrail(t *testing.T) {
	engine, agentStore := newTestEngine(t, true)
	ic, mm, _, _ := buildChain(t, agentStore)

	var actions []string
	engine.OnAudit(func(req *Request, action string) {
		actions = append(actions, action)
	})

	req, err := engine.Request("proj-1", ic.ID, DecisionBudget, "t", "", "", 10000, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Approve(mm.ID, req.ID, "fine"); err != nil {
		t.Fatal(err)
	}

	want := []string{"requested", "approved"}
	if len(actions) != len(want) {
		t.Fatalf("expected %v, got %v", want, actions)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("audit %d: expected %s, got %s", i, want[i], actions[i])
		}
	}
}
