// internal/approvals/store.go
package approvals

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/agentcoord/internal/types"
)

// Store persists approval requests to sqlite
type Store struct {
	db *sql.DB
}

// NewStore creates the approval store and its schema
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create approvals schema: %w", err)
	}
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS approval_requests (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		requester TEXT NOT NULL,
		decision_type TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		justification TEXT,
		amount REAL NOT NULL DEFAULT 0,
		priority TEXT,
		required_role TEXT NOT NULL,
		current_approver TEXT NOT NULL,
		status TEXT NOT NULL,
		reasoning TEXT,
		escalation_reason TEXT,
		escalations INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		decided_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_approvals_status ON approval_requests(status);
	CREATE INDEX IF NOT EXISTS idx_approvals_approver ON approval_requests(current_approver);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Save upserts the request's current state
func (s *Store) Save(req *Request) error {
	_, err := s.db.Exec(`
		INSERT INTO approval_requests (id, project_id, requester, decision_type,
			title, description, justification, amount, priority, required_role,
			current_approver, status, reasoning, escalation_reason, escalations,
			created_at, updated_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_approver = excluded.current_approver,
			status = excluded.status,
			reasoning = excluded.reasoning,
			escalation_reason = excluded.escalation_reason,
			escalations = excluded.escalations,
			updated_at = excluded.updated_at,
			decided_at = excluded.decided_at
	`, req.ID, req.ProjectID, req.Requester, string(req.DecisionType),
		req.Title, req.Description, req.Justification, req.Amount, req.Priority,
		string(req.RequiredRole), req.CurrentApprover, string(req.Status),
		req.Reasoning, req.EscalationReason, req.Escalations,
		req.CreatedAt, req.UpdatedAt, nullableTime(req.DecidedAt))
	if err != nil {
		return fmt.Errorf("failed to save approval request %s: %w", req.ID, err)
	}
	return nil
}

// LoadPending returns every pending request, oldest first
func (s *Store) LoadPending() ([]*Request, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, requester, decision_type, title, description,
		       justification, amount, priority, required_role, current_approver,
		       status, reasoning, escalation_reason, escalations,
		       created_at, updated_at, decided_at
		FROM approval_requests WHERE status = 'pending' ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending approvals: %w", err)
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		var req Request
		var decision, role, status string
		var decidedAt sql.NullTime
		err := rows.Scan(&req.ID, &req.ProjectID, &req.Requester, &decision,
			&req.Title, &req.Description, &req.Justification, &req.Amount,
			&req.Priority, &role, &req.CurrentApprover, &status,
			&req.Reasoning, &req.EscalationReason, &req.Escalations,
			&req.CreatedAt, &req.UpdatedAt, &decidedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		req.DecisionType = DecisionType(decision)
		req.RequiredRole = types.Role(role)
		req.Status = RequestStatus(status)
		if decidedAt.Valid {
			req.DecidedAt = &decidedAt.Time
		}
		requests = append(requests, &req)
	}
	return requests, rows.Err()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
