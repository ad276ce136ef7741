// internal/agents/store.go
package agents

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentcoord/internal/types"
)

// Store persists agent profiles to SQLite. Workload mutations are
// serialized per agent through a guarded UPDATE so the
// current_workload <= max_workload invariant holds under concurrency.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes reporting-graph mutations
}

// NewStore creates a new agent store and initializes the schema
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize agents schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		skills TEXT,
		skill_levels TEXT,
		hierarchy_level INTEGER NOT NULL DEFAULT 0,
		current_workload REAL NOT NULL DEFAULT 0,
		max_workload REAL NOT NULL DEFAULT 40,
		reports_to TEXT,
		personality TEXT,
		specializations TEXT,
		performance_metrics TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_project ON agents(project_id);
	CREATE INDEX IF NOT EXISTS idx_agents_reports_to ON agents(reports_to);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Register validates and persists a new agent profile. Registration
// fails if the reporting edge would create a cycle.
func (s *Store) Register(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ReportsTo != "" {
		if p.ReportsTo == p.ID {
			return types.InvalidArgumentf("agent %s cannot report to itself", p.ID)
		}
		if _, err := s.getLocked(p.ReportsTo); err != nil {
			return fmt.Errorf("reports_to agent %s: %w", p.ReportsTo, types.ErrNotFound)
		}
	}

	skills, _ := json.Marshal(p.Skills)
	levels, _ := json.Marshal(p.SkillLevels)
	specs, _ := json.Marshal(p.Specializations)
	perf, _ := json.Marshal(p.Performance)

	_, err := s.db.Exec(`
		INSERT INTO agents (id, project_id, name, role, skills, skill_levels, hierarchy_level,
			current_workload, max_workload, reports_to, personality, specializations,
			performance_metrics, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.ProjectID, p.Name, string(p.Role), string(skills), string(levels),
		p.HierarchyLevel, p.CurrentWorkload, p.MaxWorkload, nullable(p.ReportsTo),
		p.Personality, string(specs), string(perf), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}
	return nil
}

// Get retrieves an agent profile by ID
func (s *Store) Get(id string) (*Profile, error) {
	return s.getLocked(id)
}

func (s *Store) getLocked(id string) (*Profile, error) {
	row := s.db.QueryRow(selectAgentColumns+` FROM agents WHERE id = ?`, id)
	p, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}
	p.DirectReports, err = s.directReports(id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns agents scoped to a project, or the whole fleet when
// allProjects is set.
func (s *Store) List(projectID string, allProjects bool) ([]*Profile, error) {
	query := selectAgentColumns + ` FROM agents ORDER BY id`
	args := []interface{}{}
	if !allProjects {
		query = selectAgentColumns + ` FROM agents WHERE project_id = ? ORDER BY id`
		args = append(args, projectID)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddWorkload applies a workload delta to an agent. Positive deltas are
// rejected with ErrCapacityExceeded when they would push the agent past
// max_workload; negative deltas clamp at zero.
func (s *Store) AddWorkload(agentID string, delta float64) error {
	return s.AddWorkloadTx(nil, agentID, delta)
}

// AddWorkloadTx is AddWorkload inside a caller-owned transaction, used
// by task assignment so the workload delta and the task mutation commit
// atomically.
func (s *Store) AddWorkloadTx(tx *sql.Tx, agentID string, delta float64) error {
	exec := s.db.Exec
	if tx != nil {
		exec = tx.Exec
	}

	res, err := exec(`
		UPDATE agents
		SET current_workload = MAX(0, current_workload + ?)
		WHERE id = ? AND current_workload + ? <= max_workload
	`, delta, agentID, delta)
	if err != nil {
		return fmt.Errorf("failed to update workload: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish capacity from missing agent
		var exists int
		q := s.db.QueryRow
		if tx != nil {
			q = tx.QueryRow
		}
		if err := q(`SELECT 1 FROM agents WHERE id = ?`, agentID).Scan(&exists); err == sql.ErrNoRows {
			return fmt.Errorf("agent %s: %w", agentID, types.ErrNotFound)
		}
		return fmt.Errorf("workload delta %.1f for agent %s: %w", delta, agentID, types.ErrCapacityExceeded)
	}
	return nil
}

// SetReporting changes an agent's manager. The edge is rejected when the
// new manager is transitively below the agent (cycle) and when the chain
// would reach more than one executive root.
func (s *Store) SetReporting(agentID, managerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if managerID == agentID {
		return types.InvalidArgumentf("agent %s cannot report to itself", agentID)
	}
	if _, err := s.getLocked(agentID); err != nil {
		return err
	}
	if managerID != "" {
		if _, err := s.getLocked(managerID); err != nil {
			return err
		}
		// Walk up from the proposed manager; hitting agentID means a cycle
		cur := managerID
		for cur != "" {
			if cur == agentID {
				return types.InvalidArgumentf("reporting edge %s -> %s creates a cycle", agentID, managerID)
			}
			parent, err := s.reportsTo(cur)
			if err != nil {
				return err
			}
			cur = parent
		}
	}

	_, err := s.db.Exec(`UPDATE agents SET reports_to = ? WHERE id = ?`, nullable(managerID), agentID)
	if err != nil {
		return fmt.Errorf("failed to update reporting edge: %w", err)
	}
	return nil
}

// Chain returns the reporting chain above an agent, nearest manager first
func (s *Store) Chain(agentID string) ([]string, error) {
	var chain []string
	cur, err := s.reportsTo(agentID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{agentID: true}
	for cur != "" {
		if seen[cur] {
			return nil, fmt.Errorf("reporting cycle detected at %s: %w", cur, types.ErrInternal)
		}
		seen[cur] = true
		chain = append(chain, cur)
		cur, err = s.reportsTo(cur)
		if err != nil {
			return nil, err
		}
	}
	return chain, nil
}

// UpdatePerformance stores refreshed performance metrics for an agent
func (s *Store) UpdatePerformance(agentID string, perf Performance) error {
	data, _ := json.Marshal(perf)
	res, err := s.db.Exec(`UPDATE agents SET performance_metrics = ? WHERE id = ?`, string(data), agentID)
	if err != nil {
		return fmt.Errorf("failed to update performance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("agent %s: %w", agentID, types.ErrNotFound)
	}
	return nil
}

func (s *Store) reportsTo(agentID string) (string, error) {
	var r sql.NullString
	err := s.db.QueryRow(`SELECT reports_to FROM agents WHERE id = ?`, agentID).Scan(&r)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("agent %s: %w", agentID, types.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if r.Valid {
		return r.String, nil
	}
	return "", nil
}

func (s *Store) directReports(agentID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM agents WHERE reports_to = ? ORDER BY id`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const selectAgentColumns = `SELECT id, project_id, name, role, skills, skill_levels,
	hierarchy_level, current_workload, max_workload, reports_to, personality,
	specializations, performance_metrics, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*Profile, error) {
	var p Profile
	var role string
	var skills, levels, specs, perf sql.NullString
	var reportsTo, personality sql.NullString

	err := row.Scan(
		&p.ID, &p.ProjectID, &p.Name, &role, &skills, &levels,
		&p.HierarchyLevel, &p.CurrentWorkload, &p.MaxWorkload, &reportsTo,
		&personality, &specs, &perf, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Role = types.Role(role)
	if reportsTo.Valid {
		p.ReportsTo = reportsTo.String
	}
	if personality.Valid {
		p.Personality = personality.String
	}
	if skills.Valid && skills.String != "" {
		json.Unmarshal([]byte(skills.String), &p.Skills)
	}
	if levels.Valid && levels.String != "" {
		json.Unmarshal([]byte(levels.String), &p.SkillLevels)
	}
	if p.SkillLevels == nil {
		p.SkillLevels = make(map[string]int)
	}
	if specs.Valid && specs.String != "" {
		json.Unmarshal([]byte(specs.String), &p.Specializations)
	}
	if perf.Valid && perf.String != "" {
		json.Unmarshal([]byte(perf.String), &p.Performance)
	}
	return &p, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
