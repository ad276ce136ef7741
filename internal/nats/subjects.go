// internal/nats/subjects.go
package nats

import "time"

// Subject pattern constants for coordination traffic. Patterns with %s
// placeholders are formatted with fmt.Sprintf.
const (
	// SubjectEvent carries one interaction record.
	// Format with (projectID, kind).
	SubjectEvent = "events.%s.%s"

	// SubjectProjectEvents subscribes to every event of one project.
	// Format with (projectID).
	SubjectProjectEvents = "events.%s.>"

	// SubjectAllEvents subscribes to every event of every project
	SubjectAllEvents = "events.>"

	// SubjectAgentState carries agent state transitions.
	// Format with (agentID).
	SubjectAgentState = "agents.%s.state"

	// SubjectAllAgentStates subscribes to all agent state transitions
	SubjectAllAgentStates = "agents.*.state"

	// SubjectLockChange carries file lock transitions for a project.
	// Format with (projectID).
	SubjectLockChange = "locks.%s"

	// SubjectAllLockChanges subscribes to lock transitions everywhere
	SubjectAllLockChanges = "locks.>"

	// SubjectTaskAssigned carries assignment announcements.
	// Format with (projectID).
	SubjectTaskAssigned = "tasks.%s.assigned"

	// SubjectApprovalDecision carries approval outcomes.
	// Format with (projectID).
	SubjectApprovalDecision = "approvals.%s"
)

// EventMessage mirrors one interaction record on the wire
type EventMessage struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"project_id"`
	AgentID   string            `json:"agent_id,omitempty"`
	Kind      string            `json:"kind"`
	Action    string            `json:"action"`
	Content   string            `json:"content,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Level     string            `json:"level"`
	Timestamp time.Time         `json:"timestamp"`
}

// StateMessage announces an agent resource-state transition
type StateMessage struct {
	AgentID   string    `json:"agent_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	TaskID    string    `json:"task_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LockMessage announces a file lock transition
type LockMessage struct {
	LockID    string    `json:"lock_id"`
	ProjectID string    `json:"project_id"`
	Path      string    `json:"path"`
	AgentID   string    `json:"agent_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// AssignmentMessage announces a task assignment
type AssignmentMessage struct {
	TaskID    string    `json:"task_id"`
	ProjectID string    `json:"project_id"`
	AgentID   string    `json:"agent_id"`
	Algorithm string    `json:"algorithm"`
	Timestamp time.Time `json:"timestamp"`
}

// ApprovalMessage announces an approval decision or escalation
type ApprovalMessage struct {
	RequestID  string    `json:"request_id"`
	ProjectID  string    `json:"project_id"`
	ApproverID string    `json:"approver_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
