// internal/resource/scheduler_test.go
package resource

import (
	"errors"
	"testing"
	"time"

	"github.com/agentcoord/internal/agents"
	"github.com/agentcoord/internal/db"
	"github.com/agentcoord/internal/types"
)

func newTestScheduler(t *testing.T) (*Scheduler, *agents.Store) {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	store, err := agents.NewStore(conn)
	if err != nil {
		t.Fatalf("agent store: %v", err)
	}
	return NewScheduler(store, 5*time.Second), store
}

func TestResponseTimePerfectionistReviewer(t *testing.T) {
	sched, store := newTestScheduler(t)

	p := agents.NewProfile("proj-1", "reviewer", types.RoleIndividualContributor)
	p.Personality = agents.PersonalityPerfectionist
	p.Specializations = []string{"code_review"}
	if err := store.Register(p); err != nil {
		t.Fatal(err)
	}
	sched.SetLoad(p.ID, 0.2)

	// base(0.5)=105s for code_review, x1.4 perfectionist, /1.2
	// specialization, x1.1 load, x1.0 available -> ceil 135s.
	resp, err := sched.ComputeResponse(p.ID, "code_review", 0.5, false)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Delay != 135*time.Second {
		t.Errorf("expected 135s, got %s (%s)", resp.Delay, resp.Reason)
	}
	if resp.Reason == "" {
		t.Error("reason must be populated")
	}
}

func TestResponseTimeStateAndCollaboration(t *testing.T) {
	sched, store := newTestScheduler(t)

	p := agents.NewProfile("proj-1", "optimizer", types.RoleIndividualContributor)
	p.Personality = agents.PersonalityCollaborativeOpt
	if err := store.Register(p); err != nil {
		t.Fatal(err)
	}

	// Exclusive computation triples the delay.
	if err := sched.StartTask(p.ID, "bug_fix", time.Hour, true, time.Minute); err != nil {
		t.Fatal(err)
	}
	busy, err := sched.ComputeResponse(p.ID, "analysis", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	// base(0)=45s x1.2 personality x3.0 exclusive = 162s.
	if busy.Delay != 162*time.Second {
		t.Errorf("expected 162s while computing, got %s (%s)", busy.Delay, busy.Reason)
	}

	// Collaboration adds 30s for collaborative optimizers.
	collab, err := sched.ComputeResponse(p.ID, "analysis", 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if collab.Delay != 192*time.Second {
		t.Errorf("expected 192s with collaboration, got %s", collab.Delay)
	}
}

func TestResponseTimeFloor(t *testing.T) {
	sched, store := newTestScheduler(t)

	p := agents.NewProfile("proj-1", "fast", types.RoleIndividualContributor)
	p.Personality = agents.PersonalityRapidExecutor
	if err := store.Register(p); err != nil {
		t.Fatal(err)
	}
	if err := sched.AwaitDependency(p.ID, "dep-1"); err != nil {
		t.Fatal(err)
	}

	// awaiting_dependency multiplies by 0.1; delay still >= 1s.
	resp, err := sched.ComputeResponse(p.ID, "documentation", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Delay < time.Second {
		t.Errorf("delay must be at least 1s, got %s", resp.Delay)
	}
}

func TestStateMachineTransitions(t *testing.T) {
	sched, store := newTestScheduler(t)
	p := agents.NewProfile("proj-1", "worker", types.RoleIndividualContributor)
	if err := store.Register(p); err != nil {
		t.Fatal(err)
	}

	if got := sched.Snapshot(p.ID).State; got != StateAvailable {
		t.Fatalf("fresh agent should be available, got %s", got)
	}

	if err := sched.StartTask(p.ID, "feature_development", time.Hour, false, 2*time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := sched.StartTask(p.ID, "other", time.Hour, true, 0); !errors.Is(err, types.ErrConflict) {
		t.Errorf("double start should conflict, got %v", err)
	}
	if got := sched.Snapshot(p.ID).State; got != StateExclusive {
		t.Errorf("expected exclusive_computation, got %s", got)
	}

	if err := sched.CompleteTask(p.ID); err != nil {
		t.Fatal(err)
	}
	snap := sched.Snapshot(p.ID)
	if snap.State != StateAvailable || snap.Task != nil {
		t.Errorf("completion should clear the task, got %+v", snap)
	}
}

func TestDependencyWait(t *testing.T) {
	sched, store := newTestScheduler(t)
	p := agents.NewProfile("proj-1", "waiter", types.RoleIndividualContributor)
	if err := store.Register(p); err != nil {
		t.Fatal(err)
	}

	if err := sched.AwaitDependency(p.ID, "task-42"); err != nil {
		t.Fatal(err)
	}
	if got := sched.Snapshot(p.ID).State; got != StateAwaitingDep {
		t.Fatalf("expected awaiting_dependency, got %s", got)
	}

	if n := sched.ResolveDependency("unrelated"); n != 0 {
		t.Errorf("unrelated dependency woke %d agents", n)
	}
	if n := sched.ResolveDependency("task-42"); n != 1 {
		t.Fatalf("expected 1 agent woken, got %d", n)
	}
	snap := sched.Snapshot(p.ID)
	if snap.State != StateAvailable {
		t.Errorf("woken agent should be available, got %s", snap.State)
	}
	if snap.Task != nil {
		t.Errorf("available agent should carry no in-flight task, got %+v", snap.Task)
	}

	// With no task in flight there is nothing left to preempt.
	if _, err := sched.Preempt(p.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("preempting an idle agent should be ErrNotFound, got %v", err)
	}
}

func TestContextSwitchSweep(t *testing.T) {
	sched, store := newTestScheduler(t)
	p := agents.NewProfile("proj-1", "switcher", types.RoleIndividualContributor)
	if err := store.Register(p); err != nil {
		t.Fatal(err)
	}

	if err := sched.StartTask(p.ID, "bug_fix", time.Hour, true, 0); err != nil {
		t.Fatal(err)
	}
	sched.NoteAssignmentChange(p.ID)
	if got := sched.Snapshot(p.ID).State; got != StateContextSwitch {
		t.Fatalf("expected context_switching, got %s", got)
	}

	// Before the switch delay nothing is restored.
	if n := sched.SweepStates(time.Now()); n != 0 {
		t.Errorf("premature sweep restored %d agents", n)
	}
	if n := sched.SweepStates(time.Now().Add(6 * time.Second)); n != 1 {
		t.Fatalf("expected 1 restore, got %d", n)
	}
	if got := sched.Snapshot(p.ID).State; got != StateExclusive {
		t.Errorf("agent should return to its prior state, got %s", got)
	}
}

func TestPreempt(t *testing.T) {
	sched, store := newTestScheduler(t)
	p := agents.NewProfile("proj-1", "locked-in", types.RoleIndividualContributor)
	if err := store.Register(p); err != nil {
		t.Fatal(err)
	}

	if err := sched.StartTask(p.ID, "migration", time.Hour, false, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	cost, err := sched.Preempt(p.ID)
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("non-interruptible preempt should be rejected, got %v", err)
	}
	if cost != 10*time.Minute {
		t.Errorf("rejection must still report the cost, got %s", cost)
	}

	if err := sched.CompleteTask(p.ID); err != nil {
		t.Fatal(err)
	}
	if err := sched.StartTask(p.ID, "cleanup", time.Hour, true, 6*time.Minute); err != nil {
		t.Fatal(err)
	}
	cost, err = sched.Preempt(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cost != 6*time.Minute {
		t.Errorf("expected 6m cost, got %s", cost)
	}
	snap := sched.Snapshot(p.ID)
	if snap.State != StateAvailable || snap.Load <= 0 {
		t.Errorf("accepted preempt should free the agent and charge load, got %+v", snap)
	}
}

func TestDelayedDrain(t *testing.T) {
	sched, _ := newTestScheduler(t)

	delivered := make([]string, 0, 2)
	sched.Defer("a", 0, func() { delivered = append(delivered, "now") })
	sched.Defer("a", time.Hour, func() { delivered = append(delivered, "later") })

	if n := sched.Drain(time.Now()); n != 1 {
		t.Fatalf("expected 1 due delivery, got %d", n)
	}
	if len(delivered) != 1 || delivered[0] != "now" {
		t.Errorf("unexpected deliveries %v", delivered)
	}
	if sched.PendingDeliveries() != 1 {
		t.Errorf("one delivery should remain queued")
	}

	if n := sched.Drain(time.Now().Add(2 * time.Hour)); n != 1 {
		t.Fatalf("expected deferred delivery to drain, got %d", n)
	}
	if len(delivered) != 2 || delivered[1] != "later" {
		t.Errorf("unexpected deliveries %v", delivered)
	}
}
