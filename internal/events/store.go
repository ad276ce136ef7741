// internal/events/store.go
package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore persists interaction records
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the store and initializes the schema
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		project_id TEXT NOT NULL,
		agent_id TEXT,
		kind TEXT NOT NULL,
		action TEXT NOT NULL,
		content TEXT,
		context TEXT,
		metadata TEXT,
		level TEXT NOT NULL,
		parent_id TEXT,
		session_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_interactions_project_agent ON interactions(project_id, agent_id);
	CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_interactions_kind ON interactions(kind);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Save appends one record
func (s *SQLiteStore) Save(rec *Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO interactions (id, timestamp, project_id, agent_id, kind,
			action, content, context, metadata, level, parent_id, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Timestamp, rec.ProjectID, nullable(rec.AgentID),
		string(rec.Kind), rec.Action, rec.Content, rec.Context,
		string(metadata), rec.Level, nullable(rec.ParentID), nullable(rec.SessionID))
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

// Query returns records matching the filter, newest first
func (s *SQLiteStore) Query(f Filter) ([]*Record, error) {
	var clauses []string
	var args []interface{}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.AgentID != "" {
		clauses = append(clauses, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Level != "" {
		clauses = append(clauses, "level = ?")
		args = append(args, f.Level)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, f.To)
	}

	query := `SELECT id, timestamp, project_id, agent_id, kind, action,
		content, context, metadata, level, parent_id, session_id FROM interactions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return s.scan(query, args...)
}

// Search runs a free-text match over content and action, newest first
func (s *SQLiteStore) Search(projectID, text string, limit int) ([]*Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	pattern := "%" + strings.ToLower(text) + "%"
	query := `
		SELECT id, timestamp, project_id, agent_id, kind, action, content,
		       context, metadata, level, parent_id, session_id
		FROM interactions
		WHERE project_id = ? AND (LOWER(content) LIKE ? OR LOWER(action) LIKE ?)
		ORDER BY timestamp DESC, id DESC
	`
	args := []interface{}{projectID, pattern, pattern}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.scan(query, args...)
}

// Cleanup deletes records older than the retention window. Audit-level
// records are kept regardless.
func (s *SQLiteStore) Cleanup(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.Exec(`
		DELETE FROM interactions WHERE timestamp < ? AND level != ?
	`, cutoff, LevelAudit)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup interactions: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) scan(query string, args ...interface{}) ([]*Record, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var agentID, parentID, sessionID sql.NullString
		var kind, metadata string
		err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.ProjectID, &agentID,
			&kind, &rec.Action, &rec.Content, &rec.Context, &metadata,
			&rec.Level, &parentID, &sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		rec.Kind = Kind(kind)
		if agentID.Valid {
			rec.AgentID = agentID.String
		}
		if parentID.Valid {
			rec.ParentID = parentID.String
		}
		if sessionID.Valid {
			rec.SessionID = sessionID.String
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
