// internal/projects/store.go
package projects

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLiteStore persists projects
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
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		archived_at TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Save inserts or updates a project
func (s *SQLiteStore) Save(p *Project) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var archivedAt interface{}
	if p.ArchivedAt != nil {
		archivedAt = *p.ArchivedAt
	}

	_, err = s.db.Exec(`
		INSERT INTO projects (id, name, description, status, metadata, created_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			status = excluded.status,
			metadata = excluded.metadata,
			archived_at = excluded.archived_at
	`, p.ID, p.Name, p.Description, string(p.Status), string(metadata), p.CreatedAt, archivedAt)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

// LoadAll returns every project ordered by creation time
func (s *SQLiteStore) LoadAll() ([]*Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, status, metadata, created_at, archived_at
		FROM projects ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		var p Project
		var description, metadata sql.NullString
		var status string
		var archivedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.Name, &description, &status, &metadata,
			&p.CreatedAt, &archivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Status = Status(status)
		if description.Valid {
			p.Description = description.String
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &p.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if archivedAt.Valid {
			t := archivedAt.Time
			p.ArchivedAt = &t
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
