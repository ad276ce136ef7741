// internal/tasks/store.go
package tasks

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agentcoord/internal/agents"
	"github.com/agentcoord/internal/types"
)

// Store persists tasks to SQLite and maintains the task hierarchy.
// Structural writes (create, link, progress rollup, assignment) are
// serialized under one mutex; cross-table assignment writes lock the
// task before the agent to keep lock ordering fixed.
type Store struct {
	db     *sql.DB
	agents *agents.Store
	mu     sync.Mutex
}

// NewStore creates a task store and initializes the schema
func NewStore(db *sql.DB, agentStore *agents.Store) (*Store, error) {
	s := &Store{db: db, agents: agentStore}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize tasks schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		priority TEXT NOT NULL DEFAULT 'medium',
		created_by TEXT,
		assigned_to TEXT,
		parent_task_id TEXT,
		subtask_ids TEXT,
		dependencies TEXT,
		estimated_hours REAL NOT NULL DEFAULT 0,
		actual_hours REAL NOT NULL DEFAULT 0,
		due_date TIMESTAMP,
		required_skills TEXT,
		progress INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project_status ON tasks(project_id, status);
	CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to ON tasks(assigned_to);
	CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);

	CREATE TABLE IF NOT EXISTS task_assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		assigned_by TEXT,
		reason TEXT,
		algorithm TEXT,
		assigned_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_task ON task_assignments(task_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create validates and persists a task. When a parent is set the new
// task is appended to the parent's subtask list; creations that would
// place a task under itself are rejected.
func (s *Store) Create(task *Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ParentTaskID != "" {
		parent, err := s.get(task.ParentTaskID)
		if err != nil {
			return fmt.Errorf("parent task %s: %w", task.ParentTaskID, types.ErrNotFound)
		}
		if parent.ProjectID != task.ProjectID {
			return types.InvalidArgumentf("parent task belongs to a different project")
		}
		// Reject a parent that is transitively under the new task
		if err := s.checkParentCycle(task.ID, task.ParentTaskID); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertTx(tx, task); err != nil {
		return err
	}
	if task.ParentTaskID != "" {
		if err := s.appendSubtaskTx(tx, task.ParentTaskID, task.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task creation: %w", err)
	}
	return nil
}

// Get retrieves a task by ID
func (s *Store) Get(id string) (*Task, error) {
	return s.get(id)
}

func (s *Store) get(id string) (*Task, error) {
	row := s.db.QueryRow(selectTaskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return task, nil
}

// List returns tasks matching the scope, ordered by priority rank, then
// due date (nulls last), then creation time.
func (s *Store) List(scope Scope) ([]*Task, error) {
	query := selectTaskColumns + ` FROM tasks WHERE 1=1`
	var args []interface{}

	if !scope.AllProjects {
		query += ` AND project_id = ?`
		args = append(args, scope.ProjectID)
	}
	if scope.AssignedTo != "" {
		query += ` AND assigned_to = ?`
		args = append(args, scope.AssignedTo)
	}
	if scope.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(scope.Status))
	}
	if scope.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(scope.Type))
	}

	query += `
		ORDER BY CASE priority
			WHEN 'critical' THEN 1
			WHEN 'high' THEN 2
			WHEN 'medium' THEN 3
			WHEN 'low' THEN 4
			ELSE 3 END,
		CASE WHEN due_date IS NULL THEN 1 ELSE 0 END,
		due_date,
		created_at`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// LinkDependency records that taskID depends on dependsOn. Edges that
// would close a cycle in the dependency graph are rejected.
func (s *Store) LinkDependency(taskID, dependsOn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if taskID == dependsOn {
		return types.InvalidArgumentf("task cannot depend on itself")
	}
	task, err := s.get(taskID)
	if err != nil {
		return err
	}
	if _, err := s.get(dependsOn); err != nil {
		return err
	}
	for _, d := range task.Dependencies {
		if d == dependsOn {
			return nil // already linked
		}
	}

	// Walk the dependency graph from dependsOn; reaching taskID means a cycle
	if reachable, err := s.dependencyReaches(dependsOn, taskID); err != nil {
		return err
	} else if reachable {
		return types.InvalidArgumentf("dependency %s -> %s creates a cycle", taskID, dependsOn)
	}

	task.Dependencies = append(task.Dependencies, dependsOn)
	deps, _ := json.Marshal(task.Dependencies)
	_, err = s.db.Exec(`UPDATE tasks SET dependencies = ?, updated_at = ? WHERE id = ?`,
		string(deps), time.Now(), taskID)
	if err != nil {
		return fmt.Errorf("failed to link dependency: %w", err)
	}
	return nil
}

// UpdateProgress sets a task's progress (clamped to 0-100) and rolls the
// change up the ancestor chain: each ancestor's progress becomes the mean
// of its children's, and an ancestor whose children are all completed is
// completed itself. Returns the updated task.
func (s *Store) UpdateProgress(taskID string, progress int, status *TaskStatus, actualHours *float64) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(taskID)
	if err != nil {
		return nil, err
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	now := time.Now()
	task.ProgressPercentage = progress
	task.UpdatedAt = now
	if actualHours != nil {
		task.ActualHours = *actualHours
	}
	if status != nil {
		if !status.Valid() {
			return nil, types.InvalidArgumentf("unknown task status %q", *status)
		}
		task.Status = *status
	}
	if progress == 100 && task.Status != StatusCancelled {
		task.Status = StatusCompleted
		if task.CompletedAt == nil {
			task.CompletedAt = &now
		}
	} else if task.Status == StatusCompleted && progress < 100 {
		// Reopening: completion no longer holds
		task.Status = StatusInProgress
		task.CompletedAt = nil
	}

	if err := s.saveProgress(task); err != nil {
		return nil, err
	}
	if err := s.rollUp(task.ParentTaskID); err != nil {
		return nil, err
	}
	return task, nil
}

// rollUp recomputes ancestor progress after a child change. The task
// graph is a tree, so the walk terminates at the root.
func (s *Store) rollUp(parentID string) error {
	for parentID != "" {
		parent, err := s.get(parentID)
		if err != nil {
			return err
		}
		children, err := s.childrenOf(parentID)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			return nil
		}

		sum := 0
		completed := 0
		for _, c := range children {
			sum += c.ProgressPercentage
			if c.Status == StatusCompleted {
				completed++
			}
		}
		mean := (sum + len(children)/2) / len(children) // round half up

		now := time.Now()
		parent.ProgressPercentage = mean
		parent.UpdatedAt = now
		if completed == len(children) {
			parent.ProgressPercentage = 100
			if parent.Status != StatusCompleted {
				parent.Status = StatusCompleted
				parent.CompletedAt = &now
			}
		} else if parent.Status == StatusCompleted {
			parent.Status = StatusInProgress
			parent.CompletedAt = nil
		}

		if err := s.saveProgress(parent); err != nil {
			return err
		}
		parentID = parent.ParentTaskID
	}
	return nil
}

// Assign atomically assigns a task to an agent: the task mutation, the
// agent workload delta, and the assignment history record commit in one
// transaction, so a failure leaves no partial state behind.
func (s *Store) Assign(taskID, agentID, assignedBy, reason, algorithm string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == StatusCompleted || task.Status == StatusCancelled {
		return nil, fmt.Errorf("task %s is %s: %w", taskID, task.Status, types.ErrConflict)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock order: task row first, then agent workload
	now := time.Now()
	if _, err := tx.Exec(`
		UPDATE tasks SET assigned_to = ?, status = ?, updated_at = ? WHERE id = ?
	`, agentID, string(StatusAssigned), now, taskID); err != nil {
		return nil, fmt.Errorf("failed to update task assignment: %w", err)
	}

	if err := s.agents.AddWorkloadTx(tx, agentID, task.EstimatedHours); err != nil {
		return nil, err
	}

	// Release the previous assignee's workload inside the same transaction
	if task.AssignedTo != "" && task.AssignedTo != agentID {
		if err := s.agents.AddWorkloadTx(tx, task.AssignedTo, -task.EstimatedHours); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO task_assignments (task_id, agent_id, assigned_by, reason, algorithm, assigned_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, taskID, agentID, assignedBy, reason, algorithm, now); err != nil {
		return nil, fmt.Errorf("failed to record assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit assignment: %w", err)
	}

	task.AssignedTo = agentID
	task.Status = StatusAssigned
	task.UpdatedAt = now
	return task, nil
}

// AssignmentHistory returns the assignment audit trail for a task
func (s *Store) AssignmentHistory(taskID string) ([]*Assignment, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, agent_id, assigned_by, reason, algorithm, assigned_at
		FROM task_assignments WHERE task_id = ? ORDER BY assigned_at, id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		var a Assignment
		var algo sql.NullString
		if err := rows.Scan(&a.ID, &a.TaskID, &a.AgentID, &a.AssignedBy, &a.Reason, &algo, &a.AssignedAt); err != nil {
			return nil, err
		}
		if algo.Valid {
			a.Algorithm = algo.String
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// GetHierarchy returns the ancestor chain (root first) and immediate
// children of a task with their completion count.
func (s *Store) GetHierarchy(taskID string) (*Hierarchy, error) {
	task, err := s.get(taskID)
	if err != nil {
		return nil, err
	}

	var parents []*Task
	cur := task.ParentTaskID
	seen := map[string]bool{taskID: true}
	for cur != "" {
		if seen[cur] {
			return nil, fmt.Errorf("parent cycle detected at %s: %w", cur, types.ErrInternal)
		}
		seen[cur] = true
		p, err := s.get(cur)
		if err != nil {
			return nil, err
		}
		parents = append([]*Task{p}, parents...)
		cur = p.ParentTaskID
	}

	children, err := s.childrenOf(taskID)
	if err != nil {
		return nil, err
	}
	completed := 0
	for _, c := range children {
		if c.Status == StatusCompleted {
			completed++
		}
	}

	return &Hierarchy{
		Parents:           parents,
		Task:              task,
		Children:          children,
		CompletedChildren: completed,
	}, nil
}

// childrenOf returns the immediate subtasks in creation order
func (s *Store) childrenOf(taskID string) ([]*Task, error) {
	rows, err := s.db.Query(selectTaskColumns+` FROM tasks WHERE parent_task_id = ? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// checkParentCycle walks up from parentID; reaching taskID means the
// proposed parent sits under the task.
func (s *Store) checkParentCycle(taskID, parentID string) error {
	cur := parentID
	seen := map[string]bool{}
	for cur != "" {
		if cur == taskID {
			return types.InvalidArgumentf("parent %s is transitively under task %s", parentID, taskID)
		}
		if seen[cur] {
			return fmt.Errorf("parent cycle detected at %s: %w", cur, types.ErrInternal)
		}
		seen[cur] = true
		p, err := s.get(cur)
		if err != nil {
			return err
		}
		cur = p.ParentTaskID
	}
	return nil
}

// dependencyReaches reports whether target is reachable from start
// through dependency edges.
func (s *Store) dependencyReaches(start, target string) (bool, error) {
	stack := []string{start}
	visited := map[string]bool{}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true, nil
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		t, err := s.get(cur)
		if err != nil {
			return false, err
		}
		stack = append(stack, t.Dependencies...)
	}
	return false, nil
}

func (s *Store) insertTx(tx *sql.Tx, task *Task) error {
	subtasks, _ := json.Marshal(task.SubtaskIDs)
	deps, _ := json.Marshal(task.Dependencies)
	skills, _ := json.Marshal(task.RequiredSkills)
	metadata, _ := json.Marshal(task.Metadata)

	_, err := tx.Exec(`
		INSERT INTO tasks (id, project_id, title, description, type, status, priority,
			created_by, assigned_to, parent_task_id, subtask_ids, dependencies,
			estimated_hours, actual_hours, due_date, required_skills, progress,
			metadata, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID, task.ProjectID, task.Title, task.Description, string(task.Type),
		string(task.Status), string(task.Priority), task.CreatedBy,
		nullable(task.AssignedTo), nullable(task.ParentTaskID), string(subtasks),
		string(deps), task.EstimatedHours, task.ActualHours, task.DueDate,
		string(skills), task.ProgressPercentage, string(metadata),
		task.CreatedAt, task.UpdatedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (s *Store) appendSubtaskTx(tx *sql.Tx, parentID, childID string) error {
	var raw sql.NullString
	if err := tx.QueryRow(`SELECT subtask_ids FROM tasks WHERE id = ?`, parentID).Scan(&raw); err != nil {
		return fmt.Errorf("failed to load parent subtasks: %w", err)
	}
	var ids []string
	if raw.Valid && raw.String != "" {
		json.Unmarshal([]byte(raw.String), &ids)
	}
	ids = append(ids, childID)
	data, _ := json.Marshal(ids)
	if _, err := tx.Exec(`UPDATE tasks SET subtask_ids = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now(), parentID); err != nil {
		return fmt.Errorf("failed to append subtask: %w", err)
	}
	return nil
}

func (s *Store) saveProgress(task *Task) error {
	_, err := s.db.Exec(`
		UPDATE tasks SET status = ?, progress = ?, actual_hours = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, string(task.Status), task.ProgressPercentage, task.ActualHours,
		task.UpdatedAt, task.CompletedAt, task.ID)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

const selectTaskColumns = `SELECT id, project_id, title, description, type, status, priority,
	created_by, assigned_to, parent_task_id, subtask_ids, dependencies,
	estimated_hours, actual_hours, due_date, required_skills, progress,
	metadata, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var taskType, status, priority string
	var createdBy, assignedTo, parentID sql.NullString
	var subtasks, deps, skills, metadata sql.NullString
	var dueDate, completedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Description, &taskType, &status, &priority,
		&createdBy, &assignedTo, &parentID, &subtasks, &deps,
		&t.EstimatedHours, &t.ActualHours, &dueDate, &skills, &t.ProgressPercentage,
		&metadata, &t.CreatedAt, &t.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Type = TaskType(taskType)
	t.Status = TaskStatus(status)
	t.Priority = Priority(priority)
	if createdBy.Valid {
		t.CreatedBy = createdBy.String
	}
	if assignedTo.Valid {
		t.AssignedTo = assignedTo.String
	}
	if parentID.Valid {
		t.ParentTaskID = parentID.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if subtasks.Valid && subtasks.String != "" {
		json.Unmarshal([]byte(subtasks.String), &t.SubtaskIDs)
	}
	if deps.Valid && deps.String != "" {
		json.Unmarshal([]byte(deps.String), &t.Dependencies)
	}
	if skills.Valid && skills.String != "" {
		json.Unmarshal([]byte(skills.String), &t.RequiredSkills)
	}
	if metadata.Valid && metadata.String != "" {
		json.Unmarshal([]byte(metadata.String), &t.Metadata)
	}
	return &t, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
