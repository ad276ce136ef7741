// internal/events/types.go
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an interaction record
type Kind string

// Interaction kind constants
const (
	KindTask       Kind = "task"
	KindAssignment Kind = "assignment"
	KindLock       Kind = "lock"
	KindMessage    Kind = "message"
	KindApproval   Kind = "approval"
	KindResource   Kind = "resource"
	KindProject    Kind = "project"
	KindSystem     Kind = "system"
)

// Severity levels for interaction records
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelAudit = "audit"
)

// Record is one append-only interaction log entry
type Record struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	ProjectID string            `json:"project_id"`
	AgentID   string            `json:"agent_id,omitempty"`
	Kind      Kind              `json:"kind"`
	Action    string            `json:"action"`
	Content   string            `json:"content,omitempty"`
	Context   string            `json:"context,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Level     string            `json:"level"`
	ParentID  string            `json:"parent_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
}

// NewRecord creates a record with a generated id and current timestamp
func NewRecord(projectID, agentID string, kind Kind, action, content string) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		ProjectID: projectID,
		AgentID:   agentID,
		Kind:      kind,
		Action:    action,
		Content:   content,
		Level:     LevelInfo,
	}
}

// Filter narrows log queries. Zero fields match everything.
type Filter struct {
	ProjectID string
	AgentID   string
	Kind      Kind
	Level     string
	From      time.Time
	To        time.Time
	Limit     int
}
