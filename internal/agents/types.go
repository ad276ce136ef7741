// internal/agents/types.go
package agents

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentcoord/internal/types"
)

// Personality identifiers used by the response-time model
const (
	PersonalityPerfectionist       = "perfectionist"
	PersonalityRapidExecutor       = "rapid_executor"
	PersonalityThoroughAnalyst     = "thorough_analyst"
	PersonalityCollaborativeOpt    = "collaborative_optimizer"
	PersonalityEfficientSpecialist = "efficient_specialist"
)

// Performance tracks per-agent outcome metrics used by
// experience-weighted assignment
type Performance struct {
	CompletionRate float64 `json:"completion_rate"`
	QualityScore   float64 `json:"quality_score"`
	SpeedFactor    float64 `json:"speed_factor"`
	TasksCompleted int     `json:"tasks_completed"`
}

// Profile is an agent's organizational record
type Profile struct {
	ID              string         `json:"id"`
	ProjectID       string         `json:"project_id"`
	Name            string         `json:"name"`
	Role            types.Role     `json:"role"`
	Skills          []string       `json:"skills"`
	SkillLevels     map[string]int `json:"skill_levels"` // skill -> 1..10
	HierarchyLevel  int            `json:"hierarchy_level"` // 1..100
	CurrentWorkload float64        `json:"current_workload"` // hours
	MaxWorkload     float64        `json:"max_workload"`     // hours
	ReportsTo       string         `json:"reports_to,omitempty"`
	DirectReports   []string       `json:"direct_reports,omitempty"`
	Personality     string         `json:"personality,omitempty"`
	Specializations []string       `json:"specializations,omitempty"`
	Performance     Performance    `json:"performance_metrics"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NewProfile creates an agent profile with a generated ID
func NewProfile(projectID, name string, role types.Role) *Profile {
	return &Profile{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Name:        name,
		Role:        role,
		SkillLevels: make(map[string]int),
		MaxWorkload: 40,
		Performance: Performance{
			CompletionRate: 1.0,
			QualityScore:   0.8,
			SpeedFactor:    1.0,
		},
		CreatedAt: time.Now(),
	}
}

// Validate checks field values against the data model invariants
func (p *Profile) Validate() error {
	if p.Name == "" {
		return types.InvalidArgumentf("agent name is required")
	}
	if !types.ValidRole(p.Role) {
		return types.InvalidArgumentf("unknown role %q", p.Role)
	}
	if p.HierarchyLevel < 0 || p.HierarchyLevel > 100 {
		return types.InvalidArgumentf("hierarchy_level must be 0-100, got %d", p.HierarchyLevel)
	}
	if p.MaxWorkload <= 0 {
		return types.InvalidArgumentf("max_workload must be positive")
	}
	if p.CurrentWorkload > p.MaxWorkload {
		return fmt.Errorf("current workload %.1f exceeds max %.1f: %w",
			p.CurrentWorkload, p.MaxWorkload, types.ErrCapacityExceeded)
	}
	for skill, level := range p.SkillLevels {
		if level < 1 || level > 10 {
			return types.InvalidArgumentf("skill %q level must be 1-10, got %d", skill, level)
		}
	}
	return nil
}

// HasSkill reports whether the agent lists the given skill
func (p *Profile) HasSkill(skill string) bool {
	if _, ok := p.SkillLevels[skill]; ok {
		return true
	}
	for _, s := range p.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// SkillLevel returns the agent's level for a skill (0 when absent)
func (p *Profile) SkillLevel(skill string) int {
	return p.SkillLevels[skill]
}

// LoadRatio returns current_workload / max_workload
func (p *Profile) LoadRatio() float64 {
	if p.MaxWorkload <= 0 {
		return 1
	}
	return p.CurrentWorkload / p.MaxWorkload
}

// HasSpecialization reports whether area is one of the agent's specializations
func (p *Profile) HasSpecialization(area string) bool {
	for _, s := range p.Specializations {
		if s == area {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the profile
func (p *Profile) Clone() *Profile {
	out := *p
	out.Skills = append([]string(nil), p.Skills...)
	out.DirectReports = append([]string(nil), p.DirectReports...)
	out.Specializations = append([]string(nil), p.Specializations...)
	out.SkillLevels = make(map[string]int, len(p.SkillLevels))
	for k, v := range p.SkillLevels {
		out.SkillLevels[k] = v
	}
	return &out
}
