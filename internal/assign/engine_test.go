// internal/assign/engine_test.go
package assign

import (
	"errors"
	"testing"

	"github.com/agentcoord/internal/agents"
	"github.com/agentcoord/internal/db"
	"github.com/agentcoord/internal/tasks"
	"github.com/agentcoord/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *agents.Store) {
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
	return NewEngine(store), store
}

func registerAgent(t *testing.T, store *agents.Store, name string, skills map[string]int, hierarchy int, workload, max float64) *agents.Profile {
	t.Helper()
	p := agents.NewProfile("proj-1", name, types.RoleIndividualContributor)
	for s := range skills {
		p.Skills = append(p.Skills, s)
	}
	p.SkillLevels = skills
	p.HierarchyLevel = hierarchy
	p.CurrentWorkload = workload
	p.MaxWorkload = max
	if err := store.Register(p); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return p
}

func TestHierarchyAwarePrefersCapacity(t *testing.T) {
	engine, store := newTestEngine(t)

	// A is less senior but half loaded; B is more senior but near capacity.
	// For a story (complexity 7) the capacity term dominates.
	a := registerAgent(t, store, "a", map[string]int{"backend": 8}, 60, 20, 40)
	registerAgent(t, store, "b", map[string]int{"backend": 6}, 80, 30, 40)

	task := tasks.NewTask("proj-1", "payments service", "mgr", tasks.TypeStory, tasks.PriorityHigh)
	task.RequiredSkills = []string{"backend"}

	got, err := engine.AutoAssign(task, HierarchyAware)
	if err != nil {
		t.Fatal(err)
	}
	if got != a.ID {
		t.Errorf("expected agent a, got %s", got)
	}
}

func TestDefaultAlgorithmIsHierarchyAware(t *testing.T) {
	engine, store := newTestEngine(t)
	a := registerAgent(t, store, "a", map[string]int{"backend": 8}, 60, 20, 40)
	registerAgent(t, store, "b", map[string]int{"backend": 6}, 80, 30, 40)

	task := tasks.NewTask("proj-1", "t", "mgr", tasks.TypeStory, tasks.PriorityHigh)
	task.RequiredSkills = []string{"backend"}

	got, err := engine.AutoAssign(task, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != a.ID {
		t.Errorf("expected hierarchy_aware default to pick a, got %s", got)
	}

	if _, err := engine.AutoAssign(task, Algorithm("magic")); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for unknown algorithm, got %v", err)
	}
}

func TestSkillBasedTieBreaksOnWorkload(t *testing.T) {
	engine, store := newTestEngine(t)

	// Identical skill levels; the less loaded agent wins even though it
	// sorts later by ID ordering.
	registerAgent(t, store, "busy", map[string]int{"frontend": 7}, 50, 10, 40)
	idle := registerAgent(t, store, "idle", map[string]int{"frontend": 7}, 50, 2, 40)

	task := tasks.NewTask("proj-1", "ui", "mgr", tasks.TypeTask, tasks.PriorityMedium)
	task.RequiredSkills = []string{"frontend"}

	got, err := engine.AutoAssign(task, SkillBased)
	if err != nil {
		t.Fatal(err)
	}
	if got != idle.ID {
		t.Errorf("expected idle agent, got %s", got)
	}
}

func TestSkillBasedRequiresMatch(t *testing.T) {
	engine, store := newTestEngine(t)
	registerAgent(t, store, "frontend-only", map[string]int{"frontend": 9}, 50, 0, 40)

	task := tasks.NewTask("proj-1", "db tuning", "mgr", tasks.TypeTask, tasks.PriorityMedium)
	task.RequiredSkills = []string{"databases"}

	got, err := engine.AutoAssign(task, SkillBased)
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("expected no eligible agent, got %s", got)
	}
}

func TestWorkloadBalancedPicksLightestLoad(t *testing.T) {
	engine, store := newTestEngine(t)
	registerAgent(t, store, "loaded", map[string]int{"ops": 9}, 70, 35, 40)
	light := registerAgent(t, store, "light", map[string]int{"ops": 3}, 30, 5, 40)

	task := tasks.NewTask("proj-1", "deploy", "mgr", tasks.TypeTask, tasks.PriorityMedium)
	task.RequiredSkills = []string{"ops"}

	got, err := engine.AutoAssign(task, WorkloadBalanced)
	if err != nil {
		t.Fatal(err)
	}
	if got != light.ID {
		t.Errorf("expected lightest agent, got %s", got)
	}
}

func TestExperienceWeightedFavorsTrackRecord(t *testing.T) {
	engine, store := newTestEngine(t)

	veteran := registerAgent(t, store, "veteran", map[string]int{"backend": 8}, 80, 0, 40)
	rookie := registerAgent(t, store, "rookie", map[string]int{"backend": 8}, 20, 0, 40)
	if err := store.UpdatePerformance(veteran.ID, agents.Performance{
		CompletionRate: 0.95, QualityScore: 0.9, SpeedFactor: 1.2, TasksCompleted: 120,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdatePerformance(rookie.ID, agents.Performance{
		CompletionRate: 0.5, QualityScore: 0.4, SpeedFactor: 0.8, TasksCompleted: 3,
	}); err != nil {
		t.Fatal(err)
	}

	task := tasks.NewTask("proj-1", "migration", "mgr", tasks.TypeStory, tasks.PriorityHigh)
	task.RequiredSkills = []string{"backend"}

	got, err := engine.AutoAssign(task, ExperienceWeighted)
	if err != nil {
		t.Fatal(err)
	}
	if got != veteran.ID {
		t.Errorf("expected veteran, got %s", got)
	}
}

func TestFullAgentsAreIneligible(t *testing.T) {
	engine, store := newTestEngine(t)
	registerAgent(t, store, "full", map[string]int{"backend": 10}, 90, 40, 40)

	task := tasks.NewTask("proj-1", "t", "mgr", tasks.TypeTask, tasks.PriorityHigh)
	task.RequiredSkills = []string{"backend"}

	got, err := engine.AutoAssign(task, HierarchyAware)
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("agent at max workload must be skipped, got %s", got)
	}
}
