// internal/instance/lock.go
package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentcoord/internal/types"
)

// PIDFile is the JSON payload written next to the data directory while
// a daemon holds it.
type PIDFile struct {
	PID       int       `json:"pid"`
	HTTPAddr  string    `json:"http_addr"`
	StartedAt time.Time `json:"started_at"`
	Hostname  string    `json:"hostname"`
}

// Lock marks a data directory as owned by one running daemon
type Lock struct {
	path string
}

// Acquire claims the data directory. A live PID file from another
// process fails with ErrConflict; a stale one is replaced.
func Acquire(dataDir, httpAddr string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "agentcoordd.pid")

	if existing, err := readPIDFile(path); err == nil {
		if processAlive(existing.PID) {
			return nil, fmt.Errorf("daemon already running with pid %d: %w",
				existing.PID, types.ErrConflict)
		}
		// Stale PID file, the previous daemon died without cleanup.
		os.Remove(path)
	}

	hostname, _ := os.Hostname()
	data, err := json.MarshalIndent(PIDFile{
		PID:       os.Getpid(),
		HTTPAddr:  httpAddr,
		StartedAt: time.Now(),
		Hostname:  hostname,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the PID file
func (l *Lock) Release() {
	os.Remove(l.path)
}

func readPIDFile(path string) (*PIDFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf PIDFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, err
	}
	return &pf, nil
}
