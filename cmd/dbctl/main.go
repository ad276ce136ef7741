// cmd/dbctl/main.go
//
// dbctl is a small operator tool for inspecting a coordination
// database without going through the daemon.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/agentcoord/internal/db"
)

func main() {
	dbPath := flag.String("db", "data/agentcoord.db", "Path to SQLite database")
	action := flag.String("action", "", "Action to perform: tables, counts, events, agent")
	agentID := flag.String("agent", "", "Agent ID (for action=agent)")
	projectID := flag.String("project", "", "Project ID filter (for action=events)")
	limit := flag.Int("limit", 20, "Row limit (for action=events)")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	if *action == "" {
		fmt.Fprintf(os.Stderr, "Usage: dbctl -db <path> -action <action> [-agent <id>] [-project <id>] [-limit <n>] [-json]\n")
		fmt.Fprintf(os.Stderr, "Actions: tables, counts, events, agent\n")
		os.Exit(1)
	}

	conn, err := db.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	switch *action {
	case "tables":
		err = listTables(conn, *jsonOutput)
	case "counts":
		err = tableCounts(conn, *jsonOutput)
	case "events":
		err = tailEvents(conn, *projectID, *limit, *jsonOutput)
	case "agent":
		if *agentID == "" {
			fmt.Fprintf(os.Stderr, "action=agent requires -agent\n")
			os.Exit(1)
		}
		err = showAgent(conn, *agentID)
	default:
		fmt.Fprintf(os.Stderr, "Unknown action: %s\n", *action)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func listTables(conn *sql.DB, jsonOutput bool) error {
	rows, err := conn.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(names)
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func tableCounts(conn *sql.DB, jsonOutput bool) error {
	rows, err := conn.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return fmt.Errorf("query tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	counts := make(map[string]int64, len(names))
	for _, name := range names {
		var n int64
		if err := conn.QueryRow(`SELECT COUNT(*) FROM "` + name + `"`).Scan(&n); err != nil {
			return fmt.Errorf("count %s: %w", name, err)
		}
		counts[name] = n
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(counts)
	}
	for _, name := range names {
		fmt.Printf("%-28s %d\n", name, counts[name])
	}
	return nil
}

func tailEvents(conn *sql.DB, projectID string, limit int, jsonOutput bool) error {
	query := `SELECT id, timestamp, project_id, agent_id, kind, action, content, level
		FROM interactions`
	args := []interface{}{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := conn.Query(query, args...)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	type row struct {
		ID        string    `json:"id"`
		Timestamp time.Time `json:"timestamp"`
		ProjectID string    `json:"project_id"`
		AgentID   string    `json:"agent_id"`
		Kind      string    `json:"kind"`
		Action    string    `json:"action"`
		Content   string    `json:"content"`
		Level     string    `json:"level"`
	}
	var out []row
	for rows.Next() {
		var r row
		var agent, content sql.NullString
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.ProjectID, &agent, &r.Kind, &r.Action, &content, &r.Level); err != nil {
			return err
		}
		r.AgentID = agent.String
		r.Content = content.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(out)
	}
	for _, r := range out {
		fmt.Printf("%s  %-10s %-16s %-20s %s\n",
			r.Timestamp.Format(time.RFC3339), r.Kind, r.Action, r.AgentID, r.Content)
	}
	return nil
}

func showAgent(conn *sql.DB, agentID string) error {
	var (
		name, role          string
		hierarchy           int
		current, max        float64
		reportsTo, projects sql.NullString
	)
	err := conn.QueryRow(`SELECT name, role, hierarchy_level, current_workload, max_workload, reports_to, project_id
		FROM agents WHERE id = ?`, agentID).
		Scan(&name, &role, &hierarchy, &current, &max, &reportsTo, &projects)
	if err == sql.ErrNoRows {
		return fmt.Errorf("agent %s not found", agentID)
	}
	if err != nil {
		return fmt.Errorf("query agent: %w", err)
	}

	fmt.Printf("id:          %s\n", agentID)
	fmt.Printf("name:        %s\n", name)
	fmt.Printf("role:        %s\n", role)
	fmt.Printf("project:     %s\n", projects.String)
	fmt.Printf("hierarchy:   %d\n", hierarchy)
	fmt.Printf("workload:    %.1f / %.1f hours\n", current, max)
	fmt.Printf("reports to:  %s\n", reportsTo.String)
	return nil
}
