// internal/rag/store.go
package rag

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentcoord/internal/types"
)

// ChunkStore persists content chunks and synthesized summaries
type ChunkStore struct {
	db *sql.DB
}

// NewChunkStore creates the chunk store and its schema
func NewChunkStore(db *sql.DB) (*ChunkStore, error) {
	s := &ChunkStore{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create rag schema: %w", err)
	}
	return s, nil
}

func (s *ChunkStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS content_chunks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		agent_id TEXT,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		summary TEXT,
		keywords TEXT,
		relationships TEXT,
		embedding TEXT,
		relevance REAL NOT NULL DEFAULT 0.5,
		access_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		last_accessed TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_project ON content_chunks(project_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_chunks_agent ON content_chunks(agent_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_type ON content_chunks(project_id, type);

	CREATE TABLE IF NOT EXISTS context_summaries (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		tokens INTEGER NOT NULL,
		source_ids TEXT NOT NULL,
		relevance REAL NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Add stores a chunk, assigning an id when absent
func (s *ChunkStore) Add(chunk *Chunk) error {
	if chunk.ID == "" {
		chunk.ID = uuid.New().String()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}
	if chunk.LastAccessed.IsZero() {
		chunk.LastAccessed = chunk.CreatedAt
	}
	if err := chunk.Validate(); err != nil {
		return err
	}

	keywords, _ := json.Marshal(chunk.Keywords)
	relationships, _ := json.Marshal(chunk.Relationships)
	embedding, _ := json.Marshal(chunk.Embedding)

	_, err := s.db.Exec(`
		INSERT INTO content_chunks (id, project_id, agent_id, type, content,
			summary, keywords, relationships, embedding, relevance,
			access_count, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			summary = excluded.summary,
			keywords = excluded.keywords,
			relationships = excluded.relationships,
			embedding = excluded.embedding,
			relevance = excluded.relevance
	`, chunk.ID, chunk.ProjectID, nullable(chunk.AgentID), chunk.Type,
		chunk.Content, chunk.Summary, string(keywords), string(relationships),
		string(embedding), chunk.Relevance, chunk.AccessCount,
		chunk.CreatedAt, chunk.LastAccessed)
	if err != nil {
		return fmt.Errorf("failed to save chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// Get returns one chunk by id
func (s *ChunkStore) Get(id string) (*Chunk, error) {
	chunks, err := s.query(`WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, types.NotFoundf("chunk %s not found", id)
	}
	return chunks[0], nil
}

// ByIDs returns the chunks for the given ids, skipping unknown ones
func (s *ChunkStore) ByIDs(ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.query(`WHERE id IN (`+placeholders[:len(placeholders)-1]+`)`, args...)
}

// Keyword returns the top-k chunks in the project whose content or
// keywords contain any query term, ordered by relevance then id.
func (s *ChunkStore) Keyword(projectID, query string, k int) ([]*Chunk, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}

	var clauses []string
	args := []interface{}{projectID}
	for _, term := range terms {
		clauses = append(clauses, `(LOWER(content) LIKE ? OR LOWER(keywords) LIKE ?)`)
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, k)
	return s.query(
		`WHERE project_id = ? AND (`+strings.Join(clauses, " OR ")+`)
		 ORDER BY relevance DESC, id LIMIT ?`, args...)
}

// Recent returns the newest chunks for the project, optionally limited
// to one agent.
func (s *ChunkStore) Recent(projectID, agentID string, k int) ([]*Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if agentID != "" {
		return s.query(`WHERE project_id = ? AND agent_id = ?
			ORDER BY created_at DESC, id LIMIT ?`, projectID, agentID, k)
	}
	return s.query(`WHERE project_id = ? ORDER BY created_at DESC, id LIMIT ?`, projectID, k)
}

// All returns every chunk in the project ordered by id
func (s *ChunkStore) All(projectID string) ([]*Chunk, error) {
	return s.query(`WHERE project_id = ? ORDER BY id`, projectID)
}

// Touch bumps access statistics for selected chunks
func (s *ChunkStore) Touch(ids []string) error {
	now := time.Now()
	for _, id := range ids {
		_, err := s.db.Exec(`
			UPDATE content_chunks
			SET access_count = access_count + 1, last_accessed = ?
			WHERE id = ?
		`, now, id)
		if err != nil {
			return fmt.Errorf("failed to touch chunk %s: %w", id, err)
		}
	}
	return nil
}

// SaveSummary persists a synthesized summary for reuse
func (s *ChunkStore) SaveSummary(projectID string, summary *Summary) error {
	sources, _ := json.Marshal(summary.SourceIDs)
	_, err := s.db.Exec(`
		INSERT INTO context_summaries (id, project_id, type, content, tokens,
			source_ids, relevance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			tokens = excluded.tokens,
			source_ids = excluded.source_ids,
			relevance = excluded.relevance
	`, summary.ID, projectID, summary.Type, summary.Content, summary.Tokens,
		string(sources), summary.Relevance, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save summary %s: %w", summary.ID, err)
	}
	return nil
}

// Summaries lists a project's persisted summaries, newest first
func (s *ChunkStore) Summaries(projectID string, limit int) ([]*Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, type, content, tokens, source_ids, relevance
		FROM context_summaries
		WHERE project_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*Summary
	for rows.Next() {
		var sum Summary
		var sources string
		if err := rows.Scan(&sum.ID, &sum.Type, &sum.Content, &sum.Tokens,
			&sources, &sum.Relevance); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if sources != "" {
			json.Unmarshal([]byte(sources), &sum.SourceIDs)
		}
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

func (s *ChunkStore) query(where string, args ...interface{}) ([]*Chunk, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, agent_id, type, content, summary, keywords,
		       relationships, embedding, relevance, access_count,
		       created_at, last_accessed
		FROM content_chunks `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var chunk Chunk
		var agentID sql.NullString
		var keywords, relationships, embedding string
		err := rows.Scan(&chunk.ID, &chunk.ProjectID, &agentID, &chunk.Type,
			&chunk.Content, &chunk.Summary, &keywords, &relationships,
			&embedding, &chunk.Relevance, &chunk.AccessCount,
			&chunk.CreatedAt, &chunk.LastAccessed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if agentID.Valid {
			chunk.AgentID = agentID.String
		}
		if keywords != "" {
			json.Unmarshal([]byte(keywords), &chunk.Keywords)
		}
		if relationships != "" {
			json.Unmarshal([]byte(relationships), &chunk.Relationships)
		}
		if embedding != "" {
			json.Unmarshal([]byte(embedding), &chunk.Embedding)
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
