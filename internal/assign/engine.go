// internal/assign/engine.go
package assign

import (
	"fmt"
	"sort"

	"github.com/agentcoord/internal/agents"
	"github.com/agentcoord/internal/tasks"
	"github.com/agentcoord/internal/types"
)

// Algorithm selects the scoring strategy for auto-assignment
type Algorithm string

const (
	SkillBased         Algorithm = "skill_based"
	WorkloadBalanced   Algorithm = "workload_balanced"
	HierarchyAware     Algorithm = "hierarchy_aware"
	ExperienceWeighted Algorithm = "experience_weighted"
)

// DefaultAlgorithm is used when a request names none
const DefaultAlgorithm = HierarchyAware

// Valid reports whether a is a defined algorithm
func (a Algorithm) Valid() bool {
	switch a {
	case SkillBased, WorkloadBalanced, HierarchyAware, ExperienceWeighted:
		return true
	}
	return false
}

// Engine scores candidate agents for a task
type Engine struct {
	agents *agents.Store
}

// NewEngine creates an assignment engine over the agent store
func NewEngine(agentStore *agents.Store) *Engine {
	return &Engine{agents: agentStore}
}

// AutoAssign picks the best eligible agent in the task's project for the
// given algorithm. It returns the chosen agent's ID, or "" when no agent
// is eligible. Ties break deterministically on the lower agent ID, which
// the store's ordered listing already guarantees.
func (e *Engine) AutoAssign(task *tasks.Task, algorithm Algorithm) (string, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	if !algorithm.Valid() {
		return "", types.InvalidArgumentf("unknown assignment algorithm %q", algorithm)
	}

	candidates, err := e.agents.List(task.ProjectID, false)
	if err != nil {
		return "", fmt.Errorf("failed to list candidates: %w", err)
	}

	best := ""
	bestScore := -1.0
	bestWorkload := 0.0
	for _, agent := range candidates {
		// Eligibility: agents at or past max workload never receive work
		if agent.CurrentWorkload >= agent.MaxWorkload {
			continue
		}
		score, ok := score(task, agent, algorithm)
		if !ok {
			continue
		}
		if score > bestScore {
			best = agent.ID
			bestScore = score
			bestWorkload = agent.CurrentWorkload
			continue
		}
		// skill_based ties break on lower workload before agent id
		if algorithm == SkillBased && score == bestScore && agent.CurrentWorkload < bestWorkload {
			best = agent.ID
			bestWorkload = agent.CurrentWorkload
		}
	}
	return best, nil
}

// score returns the agent's score for the task, or ok=false when the
// agent fails the algorithm's own filter.
func score(task *tasks.Task, agent *agents.Profile, algorithm Algorithm) (float64, bool) {
	switch algorithm {
	case SkillBased:
		return scoreSkillBased(task, agent)
	case WorkloadBalanced:
		return scoreWorkloadBalanced(task, agent)
	case HierarchyAware:
		return scoreHierarchyAware(task, agent), true
	case ExperienceWeighted:
		return scoreExperienceWeighted(task, agent), true
	}
	return 0, false
}

// scoreSkillBased averages the agent's level over the required skills;
// a missing skill contributes zero. With required skills present, at
// least one must match.
func scoreSkillBased(task *tasks.Task, agent *agents.Profile) (float64, bool) {
	if len(task.RequiredSkills) == 0 {
		return float64(totalSkill(agent)), true
	}
	sum := 0
	matched := 0
	for _, skill := range task.RequiredSkills {
		level := agent.SkillLevel(skill)
		sum += level
		if level > 0 {
			matched++
		}
	}
	if matched == 0 {
		return 0, false
	}
	return float64(sum) / float64(len(task.RequiredSkills)), true
}

// scoreWorkloadBalanced prefers the lowest load ratio among agents that
// possess any required skill.
func scoreWorkloadBalanced(task *tasks.Task, agent *agents.Profile) (float64, bool) {
	if len(task.RequiredSkills) > 0 {
		any := false
		for _, skill := range task.RequiredSkills {
			if agent.HasSkill(skill) {
				any = true
				break
			}
		}
		if !any {
			return 0, false
		}
	}
	return 1 - agent.LoadRatio(), true
}

// scoreHierarchyAware blends skill match, hierarchy fit for the task's
// complexity, and available capacity, scaled by the task priority.
func scoreHierarchyAware(task *tasks.Task, agent *agents.Profile) float64 {
	c := float64(task.Type.Complexity())

	skillMatch := 1.0
	if len(task.RequiredSkills) > 0 {
		matched := 0
		for _, skill := range task.RequiredSkills {
			if agent.HasSkill(skill) {
				matched++
			}
		}
		skillMatch = float64(matched) / float64(len(task.RequiredSkills))
	}

	hierarchyFit := float64(agent.HierarchyLevel) / (10 * c)
	if hierarchyFit > 1 {
		hierarchyFit = 1
	}

	capacity := 1 - agent.LoadRatio()
	if capacity < 0 {
		capacity = 0
	}

	base := 0.4*skillMatch + 0.3*hierarchyFit + 0.3*capacity
	return base * task.Priority.Factor()
}

// scoreExperienceWeighted combines accumulated skill with outcome
// metrics and seniority, scaled by the agent's speed factor.
func scoreExperienceWeighted(task *tasks.Task, agent *agents.Profile) float64 {
	skillSum := 0
	if len(task.RequiredSkills) > 0 {
		for _, skill := range task.RequiredSkills {
			skillSum += agent.SkillLevel(skill)
		}
	} else {
		skillSum = totalSkill(agent)
	}

	perf := agent.Performance
	speed := perf.SpeedFactor
	if speed <= 0 {
		speed = 1
	}

	score := 0.35*float64(skillSum)/10 +
		0.25*perf.CompletionRate +
		0.25*perf.QualityScore +
		0.15*float64(agent.HierarchyLevel)/100
	return score * speed
}

func totalSkill(agent *agents.Profile) int {
	sum := 0
	// Iterate in sorted order so floating accumulation stays deterministic
	skills := make([]string, 0, len(agent.SkillLevels))
	for s := range agent.SkillLevels {
		skills = append(skills, s)
	}
	sort.Strings(skills)
	for _, s := range skills {
		sum += agent.SkillLevels[s]
	}
	return sum
}
