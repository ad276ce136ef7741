// internal/locks/types.go
package locks

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/agentcoord/internal/types"
)

// LockKind is the access mode of a file lock
type LockKind string

const (
	KindRead      LockKind = "read"
	KindWrite     LockKind = "write"
	KindExclusive LockKind = "exclusive"
)

// Valid reports whether k is a defined lock kind
func (k LockKind) Valid() bool {
	switch k {
	case KindRead, KindWrite, KindExclusive:
		return true
	}
	return false
}

// Compatible reports whether two lock kinds may coexist on a path.
// Only read pairs with read.
func Compatible(a, b LockKind) bool {
	return a == KindRead && b == KindRead
}

// LockStatus is the lifecycle state of a lock
type LockStatus string

const (
	StatusActive   LockStatus = "active"
	StatusPending  LockStatus = "pending"
	StatusExpired  LockStatus = "expired"
	StatusReleased LockStatus = "released"
)

// FileLock is one granted or queued lock on a project file path
type FileLock struct {
	ID         string            `json:"id"`
	ProjectID  string            `json:"project_id"`
	AgentID    string            `json:"agent_id"`
	Path       string            `json:"path"`
	Kind       LockKind          `json:"kind"`
	Status     LockStatus        `json:"status"`
	Timeout    time.Duration     `json:"timeout"`
	AcquiredAt time.Time         `json:"acquired_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Active reports whether the lock currently grants access
func (l *FileLock) Active() bool {
	return l.Status == StatusActive
}

// AccessCheck is the result of a check_access query
type AccessCheck struct {
	Allowed       bool        `json:"allowed"`
	BlockingLocks []*FileLock `json:"blocking_locks,omitempty"`
}

// Conflict describes an anomaly detected on a path
type Conflict struct {
	Path        string      `json:"path"`
	Kind        string      `json:"kind"`
	Description string      `json:"description"`
	Locks       []*FileLock `json:"locks,omitempty"`
	DetectedAt  time.Time   `json:"detected_at"`
}

// NormalizePath canonicalizes a lock path so equivalent spellings
// index the same queue.
func NormalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", types.InvalidArgumentf("lock path is required")
	}
	p = filepath.ToSlash(filepath.Clean(p))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p, nil
}
