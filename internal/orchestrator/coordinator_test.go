// internal/orchestrator/coordinator_test.go
package orchestrator

import (
	"errors"
	"testing"

	"github.com/agentcoord/internal/agents"
	"github.com/agentcoord/internal/assign"
	"github.com/agentcoord/internal/db"
	"github.com/agentcoord/internal/events"
	"github.com/agentcoord/internal/locks"
	"github.com/agentcoord/internal/resource"
	"github.com/agentcoord/internal/tasks"
	"github.com/agentcoord/internal/types"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	c, err := New(types.DefaultConfig(), conn)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(c.Close)

	if _, err := c.Projects.Create("proj-1", "Payments", "", nil); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return c
}

func registerAgent(t *testing.T, c *Coordinator, id string, role types.Role, skills map[string]int) {
	t.Helper()
	p := agents.NewProfile("proj-1", id, role)
	p.ID = id
	p.SkillLevels = skills
	for skill := range skills {
		p.Skills = append(p.Skills, skill)
	}
	if err := c.Agents.Register(p); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

func TestAssignmentWorkflow(t *testing.T) {
	c := newTestCoordinator(t)
	registerAgent(t, c, "dev-1", types.RoleIndividualContributor, map[string]int{"backend": 8})

	task := tasks.NewTask("proj-1", "Implement webhook retries", "lead-1", tasks.TypeStory, tasks.PriorityHigh)
	task.Description = "Retry failed webhook deliveries with backoff"
	task.RequiredSkills = []string{"backend"}
	task.EstimatedHours = 4
	if err := c.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	// Task content is indexed for context assembly.
	if _, err := c.Chunks.Get("task-" + task.ID); err != nil {
		t.Errorf("task chunk should be indexed: %v", err)
	}

	assigned, err := c.AutoAssignTask(task.ID, assign.HierarchyAware, "lead-1")
	if err != nil {
		t.Fatalf("auto-assign: %v", err)
	}
	if assigned.AssignedTo != "dev-1" {
		t.Fatalf("expected dev-1, got %q", assigned.AssignedTo)
	}

	// Assignee is notified through the message bus.
	inbox := c.Messages.ListMessages("dev-1", true, 10)
	if len(inbox) != 1 || inbox[0].Metadata["task_id"] != task.ID {
		t.Errorf("assignee should have one notification, got %+v", inbox)
	}

	// Assignment lands in the event log as an audit record before the
	// operation returns.
	recs, err := c.Events.Query(events.Filter{ProjectID: "proj-1", Kind: events.KindAssignment})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Level != events.LevelAudit || recs[0].Metadata["task_id"] != task.ID {
		t.Errorf("expected audit assignment record, got %+v", recs)
	}

	// Scheduler sees the assignment as a context switch.
	state := c.Scheduler.Snapshot("dev-1")
	if state == nil || state.State != resource.StateContextSwitch {
		t.Errorf("expected context_switching state, got %+v", state)
	}
}

func TestAutoAssignNoEligibleAgent(t *testing.T) {
	c := newTestCoordinator(t)
	registerAgent(t, c, "dev-1", types.RoleIndividualContributor, map[string]int{"frontend": 5})

	task := tasks.NewTask("proj-1", "Tune query planner", "lead-1", tasks.TypeTask, tasks.PriorityMedium)
	task.RequiredSkills = []string{"database"}
	if err := c.CreateTask(task); err != nil {
		t.Fatal(err)
	}

	if _, err := c.AutoAssignTask(task.ID, assign.SkillBased, "lead-1"); !errors.Is(err, types.ErrCapacityExceeded) {
		t.Errorf("expected capacity exceeded, got %v", err)
	}
}

func TestCompletionWakesDependents(t *testing.T) {
	c := newTestCoordinator(t)
	registerAgent(t, c, "dev-1", types.RoleIndividualContributor, map[string]int{"backend": 7})
	registerAgent(t, c, "dev-2", types.RoleIndividualContributor, map[string]int{"backend": 6})

	task := tasks.NewTask("proj-1", "Define API schema", "lead-1", tasks.TypeTask, tasks.PriorityHigh)
	if err := c.CreateTask(task); err != nil {
		t.Fatal(err)
	}

	if err := c.Scheduler.AwaitDependency("dev-2", task.ID); err != nil {
		t.Fatal(err)
	}

	done := tasks.StatusCompleted
	updated, err := c.UpdateTaskProgress(task.ID, 100, &done, nil)
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if updated.Status != tasks.StatusCompleted {
		t.Fatalf("task should be completed, got %s", updated.Status)
	}

	state := c.Scheduler.Snapshot("dev-2")
	if state == nil || state.State == resource.StateAwaitingDep {
		t.Errorf("dependent agent should be woken, got %+v", state)
	}
}

func TestApprovalDecisionNotifiesRequester(t *testing.T) {
	c := newTestCoordinator(t)
	registerAgent(t, c, "ic-1", types.RoleIndividualContributor, nil)
	registerAgent(t, c, "mm-1", types.RoleMiddleManagement, nil)
	if err := c.Agents.SetReporting("ic-1", "mm-1"); err != nil {
		t.Fatal(err)
	}

	req, err := c.Approvals.Request("proj-1", "ic-1", "budget", "New GPU node", "", "faster CI", 10000, "high")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := c.Approvals.Approve("mm-1", req.ID, "within budget"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	inbox := c.Messages.ListMessages("ic-1", true, 10)
	if len(inbox) != 1 || inbox[0].Metadata["request_id"] != req.ID {
		t.Errorf("requester should be notified of the decision, got %+v", inbox)
	}

	// Approval transitions are audit-level records.
	recs, err := c.Events.Query(events.Filter{ProjectID: "proj-1", Kind: events.KindApproval, Level: events.LevelAudit})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("expected requested+approved audit records, got %d", len(recs))
	}
}

func TestStatusSnapshot(t *testing.T) {
	c := newTestCoordinator(t)
	registerAgent(t, c, "dev-1", types.RoleIndividualContributor, map[string]int{"backend": 7})

	task := tasks.NewTask("proj-1", "Harden auth", "lead-1", tasks.TypeTask, tasks.PriorityHigh)
	if err := c.CreateTask(task); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Locks.Acquire("proj-1", "dev-1", "/auth.go", locks.KindWrite, 0); err != nil {
		t.Fatal(err)
	}

	status, err := c.Status("proj-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.AgentCount != 1 || status.ActiveLocks != 1 || status.TaskCounts["draft"] != 1 {
		t.Errorf("unexpected snapshot %+v", status)
	}

	if _, err := c.Status("nope"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("unknown project should be not found, got %v", err)
	}
}

func TestMetricsSnapshotHistory(t *testing.T) {
	c := newTestCoordinator(t)
	registerAgent(t, c, "dev-1", types.RoleIndividualContributor, nil)
	c.Scheduler.SetLoad("dev-1", 0.4)

	snap := c.TakeSnapshot()
	if len(snap.Agents) != 1 || snap.Agents[0].Load != 0.4 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if c.Metrics.Latest() != snap {
		t.Error("latest snapshot should be the one just taken")
	}
	if got := c.Metrics.Series(10); len(got) != 1 {
		t.Errorf("expected 1 snapshot in series, got %d", len(got))
	}
}
