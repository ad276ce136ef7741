// internal/projects/types.go
package projects

import "time"

// Status of a project
type Status string

// Project status constants
const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Project owns its agents, tasks, locks, channels, and content chunks.
// A project is destroyed only by explicit archival.
type Project struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Status      Status            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ArchivedAt  *time.Time        `json:"archived_at,omitempty"`
}
