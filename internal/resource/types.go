// internal/resource/types.go
package resource

import (
	"time"

	"github.com/agentcoord/internal/agents"
)

// State is an agent's computational availability
type State string

const (
	StateAvailable     State = "available"
	StateExclusive     State = "exclusive_computation"
	StateAwaitingDep   State = "awaiting_dependency"
	StateContextSwitch State = "context_switching"
)

// Valid reports whether s is a defined state
func (s State) Valid() bool {
	switch s {
	case StateAvailable, StateExclusive, StateAwaitingDep, StateContextSwitch:
		return true
	}
	return false
}

// Multiplier returns the response-delay multiplier for the state.
// Awaiting-dependency agents answer almost immediately because the
// blocked computation is idle.
func (s State) Multiplier() float64 {
	switch s {
	case StateExclusive:
		return 3.0
	case StateAwaitingDep:
		return 0.1
	case StateContextSwitch:
		return 1.5
	}
	return 1.0
}

// personalityFactor scales response time by working style
func personalityFactor(p string) float64 {
	switch p {
	case agents.PersonalityPerfectionist:
		return 1.4
	case agents.PersonalityRapidExecutor:
		return 0.7
	case agents.PersonalityThoroughAnalyst:
		return 1.6
	case agents.PersonalityCollaborativeOpt:
		return 1.2
	case agents.PersonalityEfficientSpecialist:
		return 0.9
	}
	return 1.0
}

// specializationBonus divides response time when the task type matches
// one of the agent's specialization areas.
const specializationBonus = 1.2

// collaborationOverhead is added for collaborative optimizers when the
// request needs coordination with other agents.
const collaborationOverhead = 30 * time.Second

// ResponseTemplate bounds base response seconds for a task type.
// base(c) = Low + c*(High-Low) for input complexity c in [0,1].
type ResponseTemplate struct {
	Low  float64
	High float64
}

// Base returns the template's base seconds for the given complexity
func (t ResponseTemplate) Base(complexity float64) float64 {
	if complexity < 0 {
		complexity = 0
	}
	if complexity > 1 {
		complexity = 1
	}
	return t.Low + complexity*(t.High-t.Low)
}

var responseTemplates = map[string]ResponseTemplate{
	"code_review":         {30, 180},
	"bug_fix":             {60, 600},
	"feature_development": {120, 1200},
	"analysis":            {45, 400},
	"documentation":       {20, 240},
	"testing":             {40, 300},
	"planning":            {60, 480},
}

// defaultTemplate covers task types without a dedicated entry
var defaultTemplate = ResponseTemplate{30, 300}

// templateFor returns the response template for a task type
func templateFor(taskType string) ResponseTemplate {
	if t, ok := responseTemplates[taskType]; ok {
		return t
	}
	return defaultTemplate
}

// InflightTask is the computation an agent is currently running
type InflightTask struct {
	ID               string        `json:"id,omitempty"`
	Kind             string        `json:"kind"`
	EstDuration      time.Duration `json:"est_duration"`
	StartedAt        time.Time     `json:"started_at"`
	Interruptible    bool          `json:"interruptible"`
	InterruptionCost time.Duration `json:"interruption_cost"`
	WaitingOn        string        `json:"waiting_on,omitempty"`
}

// AgentState is a snapshot of one agent's scheduler state
type AgentState struct {
	AgentID   string        `json:"agent_id"`
	State     State         `json:"state"`
	PrevState State         `json:"prev_state,omitempty"`
	Since     time.Time     `json:"since"`
	Load      float64       `json:"load"`
	Task      *InflightTask `json:"task,omitempty"`
}

// Response is a computed response-time decision
type Response struct {
	Delay  time.Duration `json:"delay"`
	Reason string        `json:"reason"`
}
