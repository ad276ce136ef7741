// internal/orchestrator/operations.go
package orchestrator

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/agentcoord/internal/approvals"
	"github.com/agentcoord/internal/assign"
	"github.com/agentcoord/internal/events"
	"github.com/agentcoord/internal/locks"
	"github.com/agentcoord/internal/messaging"
	natslib "github.com/agentcoord/internal/nats"
	"github.com/agentcoord/internal/rag"
	"github.com/agentcoord/internal/tasks"
	"github.com/agentcoord/internal/types"
)

// CreateTask stores a new task and indexes its content for context
// assembly.
func (c *Coordinator) CreateTask(task *tasks.Task) error {
	if _, err := c.Projects.Get(task.ProjectID); err != nil {
		return err
	}
	if err := c.Tasks.Create(task); err != nil {
		return err
	}

	chunk := &rag.Chunk{
		ID:        "task-" + task.ID,
		ProjectID: task.ProjectID,
		AgentID:   task.CreatedBy,
		Type:      "task",
		Content:   task.Title + "\n" + task.Description,
		Keywords:  append([]string{strings.ToLower(string(task.Type))}, task.RequiredSkills...),
		Relevance: 0.5,
	}
	if err := c.Chunks.Add(chunk); err != nil {
		log.Printf("[ORCH] Failed to index task %s: %v", task.ID, err)
	}

	c.Events.Log(events.NewRecord(task.ProjectID, task.CreatedBy, events.KindTask, "created", task.Title))
	return nil
}

// AssignTask assigns a task to an explicit agent and runs the
// post-assignment workflow: audit record, assignee notification,
// scheduler update.
func (c *Coordinator) AssignTask(taskID, agentID, assignedBy, reason string) (*tasks.Task, error) {
	task, err := c.Tasks.Assign(taskID, agentID, assignedBy, reason, "manual")
	if err != nil {
		return nil, err
	}
	c.afterAssignment(task, assignedBy, "manual")
	return task, nil
}

// AutoAssignTask picks the best eligible agent with the given
// algorithm and assigns the task to it.
func (c *Coordinator) AutoAssignTask(taskID string, algorithm assign.Algorithm, assignedBy string) (*tasks.Task, error) {
	task, err := c.Tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	agentID, err := c.Assigner.AutoAssign(task, algorithm)
	if err != nil {
		return nil, err
	}
	if agentID == "" {
		return nil, fmt.Errorf("no eligible agent for task %s: %w", taskID, types.ErrCapacityExceeded)
	}
	if algorithm == "" {
		algorithm = assign.DefaultAlgorithm
	}

	assigned, err := c.Tasks.Assign(taskID, agentID, assignedBy,
		"auto-assigned", string(algorithm))
	if err != nil {
		return nil, err
	}
	c.afterAssignment(assigned, assignedBy, string(algorithm))
	return assigned, nil
}

func (c *Coordinator) afterAssignment(task *tasks.Task, assignedBy, algorithm string) {
	// Assignments are audit-critical
	rec := events.NewRecord(task.ProjectID, task.AssignedTo, events.KindAssignment, "assigned", task.Title)
	rec.Level = events.LevelAudit
	rec.Metadata = map[string]string{
		"task_id":     task.ID,
		"assigned_by": assignedBy,
		"algorithm":   algorithm,
	}
	if err := c.Events.LogSync(rec); err != nil {
		log.Printf("[ORCH] Failed to record assignment of %s: %v", task.ID, err)
	}

	_, err := c.Messages.SendDirect(messaging.SystemSender, task.AssignedTo,
		"Task assigned: "+task.Title,
		fmt.Sprintf("You have been assigned task %s (%s priority).", task.ID, task.Priority),
		messaging.PriorityHigh,
		map[string]string{"task_id": task.ID})
	if err != nil {
		log.Printf("[ORCH] Failed to notify assignee %s: %v", task.AssignedTo, err)
	}

	c.Scheduler.NoteAssignmentChange(task.AssignedTo)
	if agent, err := c.Agents.Get(task.AssignedTo); err == nil {
		c.Scheduler.SetLoad(task.AssignedTo, agent.LoadRatio())
	}

	if c.bridge != nil {
		c.bridge.PublishAssignment(natslib.AssignmentMessage{
			TaskID:    task.ID,
			ProjectID: task.ProjectID,
			AgentID:   task.AssignedTo,
			Algorithm: algorithm,
			Timestamp: time.Now(),
		})
	}
}

// UpdateTaskProgress updates a task and, when it completes, wakes
// agents waiting on it as a dependency.
func (c *Coordinator) UpdateTaskProgress(taskID string, progress int, status *tasks.TaskStatus, actualHours *float64) (*tasks.Task, error) {
	task, err := c.Tasks.UpdateProgress(taskID, progress, status, actualHours)
	if err != nil {
		return nil, err
	}

	c.Events.Log(events.NewRecord(task.ProjectID, task.AssignedTo, events.KindTask, "progress_updated",
		fmt.Sprintf("%s at %d%%", task.Title, task.ProgressPercentage)))

	if task.Status == tasks.StatusCompleted {
		if woken := c.Scheduler.ResolveDependency(task.ID); woken > 0 {
			log.Printf("[ORCH] Task %s completion woke %d waiting agents", task.ID, woken)
		}
	}
	return task, nil
}

// notifyApprovalOutcome tells the requester about decisions and
// escalations on their request.
func (c *Coordinator) notifyApprovalOutcome(req *approvals.Request) {
	var subject, body string
	switch req.Status {
	case approvals.StatusApproved:
		subject = "Approved: " + req.Title
		body = fmt.Sprintf("Request %s was approved by %s.", req.ID, req.CurrentApprover)
	case approvals.StatusRejected:
		subject = "Rejected: " + req.Title
		body = fmt.Sprintf("Request %s was rejected by %s.", req.ID, req.CurrentApprover)
	case approvals.StatusEscalated:
		subject = "Escalated: " + req.Title
		body = fmt.Sprintf("Request %s escalated to %s: %s", req.ID, req.CurrentApprover, req.EscalationReason)
	default:
		return
	}
	if _, err := c.Messages.SendDirect(messaging.SystemSender, req.Requester, subject, body,
		messaging.PriorityHigh, map[string]string{"request_id": req.ID}); err != nil {
		log.Printf("[ORCH] Failed to notify requester %s: %v", req.Requester, err)
	}
}

// AddContent validates and stores a content chunk. Chunk content is
// bounded by the configured token maximum.
func (c *Coordinator) AddContent(chunk *rag.Chunk) error {
	if _, err := c.Projects.Get(chunk.ProjectID); err != nil {
		return err
	}
	if max := c.cfg.Context.MaxChunkTokens; max > 0 && rag.CountTokens(chunk.Content) > max {
		return types.InvalidArgumentf("chunk content exceeds %d tokens", max)
	}
	return c.Chunks.Add(chunk)
}

// AssembleContext runs the context assembler, applying the configured
// default budget when the query names none.
func (c *Coordinator) AssembleContext(q rag.Query) (*rag.Selection, error) {
	if q.Budget == 0 {
		q.Budget = c.cfg.Context.DefaultBudget
	}
	return c.Context.Assemble(q)
}

// ProjectStatus is the dashboard snapshot for one project
type ProjectStatus struct {
	ProjectID      string         `json:"project_id"`
	AgentCount     int            `json:"agent_count"`
	TaskCounts     map[string]int `json:"task_counts"`
	ActiveLocks    int            `json:"active_locks"`
	PendingLocks   int            `json:"pending_locks"`
	OpenApprovals  int            `json:"open_approvals"`
	UnreadMessages int            `json:"unread_messages"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// Status builds the dashboard snapshot for a project
func (c *Coordinator) Status(projectID string) (*ProjectStatus, error) {
	if _, err := c.Projects.Get(projectID); err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		ProjectID:   projectID,
		TaskCounts:  make(map[string]int),
		GeneratedAt: time.Now(),
	}

	fleet, err := c.Agents.List(projectID, false)
	if err != nil {
		return nil, err
	}
	status.AgentCount = len(fleet)
	for _, agent := range fleet {
		status.UnreadMessages += c.Messages.UnreadCount(agent.ID)
		status.OpenApprovals += len(c.Approvals.PendingFor(agent.ID))
		for _, lock := range c.Locks.AgentLocks(agent.ID) {
			if lock.ProjectID == projectID && lock.Status == locks.StatusPending {
				status.PendingLocks++
			}
		}
	}

	list, err := c.Tasks.List(tasks.Scope{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	for _, task := range list {
		status.TaskCounts[string(task.Status)]++
	}

	status.ActiveLocks = len(c.Locks.ActiveLocks(projectID))
	return status, nil
}
