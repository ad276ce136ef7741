// internal/tasks/types.go
package tasks

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentcoord/internal/types"
)

// TaskType classifies a work item
type TaskType string

const (
	TypeEpic     TaskType = "epic"
	TypeStory    TaskType = "story"
	TypeTask     TaskType = "task"
	TypeSubtask  TaskType = "subtask"
	TypeBug      TaskType = "bug"
	TypeResearch TaskType = "research"
)

// complexity per task type, used by hierarchy-aware assignment
var complexity = map[TaskType]int{
	TypeEpic:     10,
	TypeStory:    7,
	TypeBug:      4,
	TypeTask:     5,
	TypeSubtask:  3,
	TypeResearch: 6,
}

// Complexity returns the structural complexity of the task type
func (t TaskType) Complexity() int {
	if c, ok := complexity[t]; ok {
		return c
	}
	return 5
}

// Valid reports whether t is a defined task type
func (t TaskType) Valid() bool {
	_, ok := complexity[t]
	return ok
}

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	StatusDraft      TaskStatus = "draft"
	StatusAssigned   TaskStatus = "assigned"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusReview     TaskStatus = "review"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is a defined status
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusAssigned, StatusInProgress, StatusBlocked,
		StatusReview, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Priority orders tasks for listing and scales assignment scores
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the sort rank of the priority (1 = most urgent)
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	}
	return 3
}

// Factor returns the assignment score multiplier for the priority
func (p Priority) Factor() float64 {
	switch p {
	case PriorityCritical:
		return 1.2
	case PriorityHigh:
		return 1.1
	case PriorityLow:
		return 0.9
	}
	return 1.0
}

// Valid reports whether p is a defined priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Task represents a unit of work in the coordination hierarchy
type Task struct {
	ID                 string            `json:"id"`
	ProjectID          string            `json:"project_id"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Type               TaskType          `json:"type"`
	Status             TaskStatus        `json:"status"`
	Priority           Priority          `json:"priority"`
	CreatedBy          string            `json:"created_by"`
	AssignedTo         string            `json:"assigned_to,omitempty"`
	ParentTaskID       string            `json:"parent_task_id,omitempty"`
	SubtaskIDs         []string          `json:"subtask_ids,omitempty"`
	Dependencies       []string          `json:"dependencies,omitempty"`
	EstimatedHours     float64           `json:"estimated_hours"`
	ActualHours        float64           `json:"actual_hours"`
	DueDate            *time.Time        `json:"due_date,omitempty"`
	RequiredSkills     []string          `json:"required_skills,omitempty"`
	ProgressPercentage int               `json:"progress_percentage"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
}

// NewTask creates a draft task with a generated ID
func NewTask(projectID, title, createdBy string, taskType TaskType, priority Priority) *Task {
	now := time.Now()
	return &Task{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Title:     title,
		Type:      taskType,
		Status:    StatusDraft,
		Priority:  priority,
		CreatedBy: createdBy,
		Metadata:  make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks field values against the data model invariants
func (t *Task) Validate() error {
	if t.Title == "" {
		return types.InvalidArgumentf("task title is required")
	}
	if t.ProjectID == "" {
		return types.InvalidArgumentf("task project_id is required")
	}
	if !t.Type.Valid() {
		return types.InvalidArgumentf("unknown task type %q", t.Type)
	}
	if !t.Status.Valid() {
		return types.InvalidArgumentf("unknown task status %q", t.Status)
	}
	if !t.Priority.Valid() {
		return types.InvalidArgumentf("unknown priority %q", t.Priority)
	}
	if t.ProgressPercentage < 0 || t.ProgressPercentage > 100 {
		return types.InvalidArgumentf("progress must be 0-100, got %d", t.ProgressPercentage)
	}
	if t.Status == StatusCompleted && t.ProgressPercentage != 100 {
		return types.InvalidArgumentf("completed task must have progress 100")
	}
	return nil
}

// Assignment records one assignment decision for the audit trail
type Assignment struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	AgentID    string    `json:"agent_id"`
	AssignedBy string    `json:"assigned_by"`
	Reason     string    `json:"reason"`
	Algorithm  string    `json:"algorithm,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Scope filters listing queries. The zero value lists nothing useful;
// set ProjectID or AllProjects explicitly.
type Scope struct {
	ProjectID   string
	AllProjects bool
	AssignedTo  string
	Status      TaskStatus
	Type        TaskType
}

// Hierarchy describes a task's position in the tree
type Hierarchy struct {
	// Parents is the ancestor chain, root first
	Parents []*Task `json:"parents"`
	Task    *Task   `json:"task"`
	// Children are the immediate subtasks in creation order
	Children          []*Task `json:"children"`
	CompletedChildren int     `json:"completed_children"`
}
