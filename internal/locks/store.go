// internal/locks/store.go
package locks

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store persists file locks to sqlite so active and pending locks
// survive a daemon restart.
type Store struct {
	db *sql.DB
}

// NewStore creates the lock store and its schema
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create locks schema: %w", err)
	}
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS file_locks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		timeout_seconds INTEGER NOT NULL,
		acquired_at TIMESTAMP,
		expires_at TIMESTAMP,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_locks_project_path ON file_locks(project_id, path);
	CREATE INDEX IF NOT EXISTS idx_locks_agent ON file_locks(agent_id);
	CREATE INDEX IF NOT EXISTS idx_locks_status ON file_locks(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Save upserts the lock's current state
func (s *Store) Save(lock *FileLock) error {
	metadata, err := json.Marshal(lock.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal lock metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO file_locks (id, project_id, agent_id, path, kind, status,
			timeout_seconds, acquired_at, expires_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at,
			metadata = excluded.metadata
	`, lock.ID, lock.ProjectID, lock.AgentID, lock.Path, string(lock.Kind),
		string(lock.Status), int64(lock.Timeout.Seconds()),
		nullableTime(lock.AcquiredAt), nullableTime(lock.ExpiresAt), string(metadata))
	if err != nil {
		return fmt.Errorf("failed to save lock %s: %w", lock.ID, err)
	}
	return nil
}

// LoadLive returns every active and pending lock, oldest first, so the
// manager can rebuild its queues on startup in enqueue order.
func (s *Store) LoadLive() ([]*FileLock, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, agent_id, path, kind, status,
		       timeout_seconds, acquired_at, expires_at, metadata
		FROM file_locks
		WHERE status IN ('active', 'pending')
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load live locks: %w", err)
	}
	defer rows.Close()

	var locks []*FileLock
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}

// Purge deletes released and expired locks older than the cutoff
func (s *Store) Purge(before time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM file_locks
		WHERE status IN ('released', 'expired') AND created_at < ?
	`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge locks: %w", err)
	}
	return res.RowsAffected()
}

func scanLock(rows *sql.Rows) (*FileLock, error) {
	var lock FileLock
	var kind, status, metadata string
	var timeoutSeconds int64
	var acquiredAt, expiresAt sql.NullTime

	err := rows.Scan(&lock.ID, &lock.ProjectID, &lock.AgentID, &lock.Path,
		&kind, &status, &timeoutSeconds, &acquiredAt, &expiresAt, &metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to scan lock: %w", err)
	}

	lock.Kind = LockKind(kind)
	lock.Status = LockStatus(status)
	lock.Timeout = time.Duration(timeoutSeconds) * time.Second
	if acquiredAt.Valid {
		lock.AcquiredAt = acquiredAt.Time
	}
	if expiresAt.Valid {
		lock.ExpiresAt = expiresAt.Time
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &lock.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal lock metadata: %w", err)
		}
	}
	return &lock, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
