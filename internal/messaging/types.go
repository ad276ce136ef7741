// internal/messaging/types.go
package messaging

import (
	"time"

	"github.com/agentcoord/internal/types"
)

// SystemSender is the reserved sender id for coordinator-originated
// notices. It bypasses directory validation and has no mailbox.
const SystemSender = "system"

// MessageType classifies a mailbox message
type MessageType string

const (
	TypeDirect        MessageType = "direct"
	TypeTeam          MessageType = "team"
	TypeBroadcast     MessageType = "broadcast"
	TypeCollabRequest MessageType = "collaboration_request"
	TypeCollabReply   MessageType = "collaboration_response"
)

// Priority is recipient-side metadata. It never reorders delivery.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a defined priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// CollabResponse is an agent's answer to a collaboration request
type CollabResponse string

const (
	CollabAccept  CollabResponse = "accept"
	CollabDecline CollabResponse = "decline"
	CollabCounter CollabResponse = "counter"
)

// Valid reports whether r is a defined collaboration response
func (r CollabResponse) Valid() bool {
	switch r {
	case CollabAccept, CollabDecline, CollabCounter:
		return true
	}
	return false
}

// Message is one mailbox entry. Fan-out creates one Message per
// recipient; Seq orders a single recipient's mailbox.
type Message struct {
	Seq       int64             `json:"seq"`
	ID        string            `json:"id"`
	Type      MessageType       `json:"type"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	TeamID    string            `json:"team_id,omitempty"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Priority  Priority          `json:"priority"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Read      bool              `json:"read"`
	Response  CollabResponse    `json:"response,omitempty"`
	SentAt    time.Time         `json:"sent_at"`
	RepliedAt *time.Time        `json:"replied_at,omitempty"`
}

// Team is a named group of agents that receives team messages
type Team struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether agentID belongs to the team
func (t *Team) HasMember(agentID string) bool {
	for _, m := range t.Members {
		if m == agentID {
			return true
		}
	}
	return false
}

func validatePriority(p Priority) (Priority, error) {
	if p == "" {
		return PriorityNormal, nil
	}
	if !p.Valid() {
		return "", types.InvalidArgumentf("unknown message priority %q", p)
	}
	return p, nil
}
