// internal/messaging/store.go
package messaging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store persists mailbox entries and teams to sqlite. The bus is the
// single writer; the store exists for durability and restart recovery.
type Store struct {
	db *sql.DB
}

// NewStore creates the messaging store and its schema
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create messaging schema: %w", err)
	}
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		team_id TEXT,
		subject TEXT,
		body TEXT,
		priority TEXT NOT NULL,
		metadata TEXT,
		read INTEGER NOT NULL DEFAULT 0,
		response TEXT,
		sent_at TIMESTAMP NOT NULL,
		replied_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_recipient ON conversations(recipient, seq);
	CREATE INDEX IF NOT EXISTS idx_conversations_id ON conversations(id);

	CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		members TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Insert stores a delivered message and fills in its mailbox sequence
func (s *Store) Insert(msg *Message) error {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal message metadata: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO conversations (id, type, sender, recipient, team_id,
			subject, body, priority, metadata, read, response, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?)
	`, msg.ID, string(msg.Type), msg.From, msg.To, nullable(msg.TeamID),
		msg.Subject, msg.Body, string(msg.Priority), string(metadata), msg.SentAt)
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
	}
	msg.Seq, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read message seq: %w", err)
	}
	return nil
}

// MarkRead flips the read flag for one mailbox entry
func (s *Store) MarkRead(seq int64) error {
	if _, err := s.db.Exec(`UPDATE conversations SET read = 1 WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// SetResponse records a collaboration response on the request entry
func (s *Store) SetResponse(seq int64, response CollabResponse, at time.Time) error {
	_, err := s.db.Exec(`
		UPDATE conversations SET response = ?, replied_at = ? WHERE seq = ?
	`, string(response), at, seq)
	if err != nil {
		return fmt.Errorf("failed to record response: %w", err)
	}
	return nil
}

// LoadAll returns every mailbox entry in sequence order for restart
// recovery.
func (s *Store) LoadAll() ([]*Message, error) {
	rows, err := s.db.Query(`
		SELECT seq, id, type, sender, recipient, team_id, subject, body,
		       priority, metadata, read, response, sent_at, replied_at
		FROM conversations ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var msgType, priority, response, metadata string
		var teamID sql.NullString
		var read int
		var repliedAt sql.NullTime
		err := rows.Scan(&msg.Seq, &msg.ID, &msgType, &msg.From, &msg.To,
			&teamID, &msg.Subject, &msg.Body, &priority, &metadata,
			&read, &response, &msg.SentAt, &repliedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Type = MessageType(msgType)
		msg.Priority = Priority(priority)
		msg.Response = CollabResponse(response)
		msg.Read = read != 0
		if teamID.Valid {
			msg.TeamID = teamID.String
		}
		if repliedAt.Valid {
			msg.RepliedAt = &repliedAt.Time
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal message metadata: %w", err)
			}
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// SaveTeam upserts a team and its member list
func (s *Store) SaveTeam(team *Team) error {
	members, err := json.Marshal(team.Members)
	if err != nil {
		return fmt.Errorf("failed to marshal team members: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO teams (id, project_id, name, members, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, members = excluded.members
	`, team.ID, team.ProjectID, team.Name, string(members), team.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save team %s: %w", team.ID, err)
	}
	return nil
}

// LoadTeams returns every team
func (s *Store) LoadTeams() ([]*Team, error) {
	rows, err := s.db.Query(`SELECT id, project_id, name, members, created_at FROM teams`)
	if err != nil {
		return nil, fmt.Errorf("failed to load teams: %w", err)
	}
	defer rows.Close()

	var teams []*Team
	for rows.Next() {
		var team Team
		var members string
		if err := rows.Scan(&team.ID, &team.ProjectID, &team.Name, &members, &team.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &team.Members); err != nil {
			return nil, fmt.Errorf("failed to unmarshal team members: %w", err)
		}
		teams = append(teams, &team)
	}
	return teams, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
