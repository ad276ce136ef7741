// internal/locks/manager.go
package locks

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcoord/internal/types"
)

// ChangeFunc observes lock transitions. action is one of
// "acquired", "queued", "promoted", "released", "expired", "force_released".
type ChangeFunc func(lock *FileLock, action string)

// Manager serializes file access per project path. All lock state for a
// path lives behind one mutex; the sqlite store is write-through so a
// restart rebuilds the same queues.
type Manager struct {
	mu      sync.Mutex
	byID    map[string]*FileLock
	active  map[string][]*FileLock // project+path -> active locks
	pending map[string][]*FileLock // project+path -> FIFO queue

	store          *Store
	defaultTimeout time.Duration
	workspaceRoot  string
	onChange       ChangeFunc
}

// NewManager creates a lock manager. store may be nil for a purely
// in-memory manager (tests).
func NewManager(store *Store, defaultTimeout time.Duration) *Manager {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Minute
	}
	return &Manager{
		byID:           make(map[string]*FileLock),
		active:         make(map[string][]*FileLock),
		pending:        make(map[string][]*FileLock),
		store:          store,
		defaultTimeout: defaultTimeout,
	}
}

// OnChange registers the transition observer. Must be called before the
// manager is shared across goroutines.
func (m *Manager) OnChange(fn ChangeFunc) {
	m.onChange = fn
}

// SetWorkspaceRoot enables mtime conflict detection against files under
// root/<project>/<path>.
func (m *Manager) SetWorkspaceRoot(root string) {
	m.workspaceRoot = root
}

// Load rebuilds in-memory state from the store after a restart
func (m *Manager) Load() error {
	if m.store == nil {
		return nil
	}
	live, err := m.store.LoadLive()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lock := range live {
		key := lockKey(lock.ProjectID, lock.Path)
		m.byID[lock.ID] = lock
		switch lock.Status {
		case StatusActive:
			m.active[key] = append(m.active[key], lock)
		case StatusPending:
			m.pending[key] = append(m.pending[key], lock)
		}
	}
	log.Printf("[LOCKS] Restored %d live locks", len(live))
	return nil
}

// Acquire grants a lock when the path's active set allows it, otherwise
// queues a pending lock in FIFO order. It never fails on contention.
// An agent re-acquiring a compatible kind is not blocked by its own
// active locks.
func (m *Manager) Acquire(projectID, agentID, rawPath string, kind LockKind, timeout time.Duration) (*FileLock, error) {
	if projectID == "" || agentID == "" {
		return nil, types.InvalidArgumentf("project_id and agent_id are required")
	}
	if !kind.Valid() {
		return nil, types.InvalidArgumentf("unknown lock kind %q", kind)
	}
	path, err := NormalizePath(rawPath)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	now := time.Now()
	lock := &FileLock{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		AgentID:   agentID,
		Path:      path,
		Kind:      kind,
		Timeout:   timeout,
		Metadata:  make(map[string]string),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := lockKey(projectID, path)
	if m.grantable(key, agentID, kind) {
		lock.Status = StatusActive
		lock.AcquiredAt = now
		lock.ExpiresAt = now.Add(timeout)
		m.active[key] = append(m.active[key], lock)
		m.byID[lock.ID] = lock
		m.persist(lock)
		m.emit(lock, "acquired")
		return lock, nil
	}

	// Pending requests carry their own deadline so a dead waiter does
	// not wedge the queue.
	lock.Status = StatusPending
	lock.ExpiresAt = now.Add(timeout)
	m.pending[key] = append(m.pending[key], lock)
	m.byID[lock.ID] = lock
	m.persist(lock)
	m.emit(lock, "queued")
	return lock, nil
}

// grantable reports whether a request may activate immediately. Later
// arrivals never jump other agents' pending entries, so an earlier
// pending write is not starved by a stream of reads. Same-agent
// re-acquisition is free only for compatible kinds; an agent's second
// write on a path queues behind its first like anyone else's.
func (m *Manager) grantable(key, agentID string, kind LockKind) bool {
	for _, p := range m.pending[key] {
		if p.AgentID != agentID {
			return false
		}
	}
	for _, a := range m.active[key] {
		if !Compatible(a.Kind, kind) {
			return false
		}
	}
	return true
}

// Release marks the lock released and promotes waiters. It is
// idempotent: releasing an already-released id returns false without
// error. When agentID is set it must match the holder.
func (m *Manager) Release(lockID, agentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.byID[lockID]
	if !ok {
		return false, types.NotFoundf("lock %s not found", lockID)
	}
	if agentID != "" && lock.AgentID != agentID {
		return false, types.PermissionDeniedf("lock %s is held by %s", lockID, lock.AgentID)
	}
	if lock.Status == StatusReleased || lock.Status == StatusExpired {
		return false, nil
	}

	m.finishLocked(lock, StatusReleased, "released")
	m.promoteLocked(lockKey(lock.ProjectID, lock.Path))
	return true, nil
}

// ForceRelease releases every lock held by the agent and promotes the
// affected queues. Returns the number of locks released.
func (m *Manager) ForceRelease(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	keys := make(map[string]bool)
	for _, lock := range m.byID {
		if lock.AgentID != agentID {
			continue
		}
		if lock.Status != StatusActive && lock.Status != StatusPending {
			continue
		}
		m.finishLocked(lock, StatusReleased, "force_released")
		keys[lockKey(lock.ProjectID, lock.Path)] = true
		released++
	}
	for key := range keys {
		m.promoteLocked(key)
	}
	if released > 0 {
		log.Printf("[LOCKS] Force-released %d locks held by %s", released, agentID)
	}
	return released
}

// CheckAccess reports whether the agent could access the path with the
// given kind right now, and which active locks block it.
func (m *Manager) CheckAccess(projectID, agentID, rawPath string, kind LockKind) (*AccessCheck, error) {
	if !kind.Valid() {
		return nil, types.InvalidArgumentf("unknown lock kind %q", kind)
	}
	path, err := NormalizePath(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	check := &AccessCheck{Allowed: true}
	for _, a := range m.active[lockKey(projectID, path)] {
		if a.AgentID == agentID {
			continue
		}
		if !Compatible(a.Kind, kind) {
			check.Allowed = false
			check.BlockingLocks = append(check.BlockingLocks, cloneLock(a))
		}
	}
	return check, nil
}

// ActiveLocks lists active locks in the project
func (m *Manager) ActiveLocks(projectID string) []*FileLock {
	return m.collect(func(l *FileLock) bool {
		return l.Status == StatusActive && l.ProjectID == projectID
	})
}

// AgentLocks lists the agent's active and pending locks
func (m *Manager) AgentLocks(agentID string) []*FileLock {
	return m.collect(func(l *FileLock) bool {
		return l.AgentID == agentID && (l.Status == StatusActive || l.Status == StatusPending)
	})
}

// PathLocks lists active and pending locks on one path
func (m *Manager) PathLocks(projectID, rawPath string) ([]*FileLock, error) {
	path, err := NormalizePath(rawPath)
	if err != nil {
		return nil, err
	}
	return m.collect(func(l *FileLock) bool {
		return l.ProjectID == projectID && l.Path == path &&
			(l.Status == StatusActive || l.Status == StatusPending)
	}), nil
}

// DetectConflicts reports anomalies on a path: multiple concurrent
// writers, or the file on disk changed after the holders acquired.
func (m *Manager) DetectConflicts(projectID, rawPath string) ([]*Conflict, error) {
	path, err := NormalizePath(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var conflicts []*Conflict
	var writers []*FileLock
	var holders []*FileLock
	for _, a := range m.active[lockKey(projectID, path)] {
		holders = append(holders, cloneLock(a))
		if a.Kind != KindRead {
			writers = append(writers, cloneLock(a))
		}
	}
	if len(writers) > 1 {
		conflicts = append(conflicts, &Conflict{
			Path:        path,
			Kind:        "multiple_writers",
			Description: "more than one write or exclusive lock is active",
			Locks:       writers,
			DetectedAt:  now,
		})
	}

	if m.workspaceRoot != "" && len(holders) > 0 {
		full := filepath.Join(m.workspaceRoot, projectID, filepath.FromSlash(path))
		if info, err := os.Stat(full); err == nil {
			for _, h := range holders {
				if info.ModTime().After(h.AcquiredAt) {
					conflicts = append(conflicts, &Conflict{
						Path:        path,
						Kind:        "external_modification",
						Description: "file modified after lock acquisition",
						Locks:       holders,
						DetectedAt:  now,
					})
					break
				}
			}
		}
	}
	return conflicts, nil
}

// Sweep expires overdue active and pending locks, then promotes. It is
// idempotent and safe to run concurrently with acquire/release.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	keys := make(map[string]bool)
	for _, lock := range m.byID {
		if lock.Status != StatusActive && lock.Status != StatusPending {
			continue
		}
		if lock.ExpiresAt.After(now) {
			continue
		}
		m.finishLocked(lock, StatusExpired, "expired")
		keys[lockKey(lock.ProjectID, lock.Path)] = true
		expired++
	}
	for key := range keys {
		m.promoteLocked(key)
	}
	if expired > 0 {
		log.Printf("[LOCKS] Expired %d locks", expired)
	}
	return expired
}

// Run drives the expiry sweeper until the context is cancelled
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// finishLocked moves a live lock to a terminal status and drops it from
// the active/pending indexes. Callers hold m.mu.
func (m *Manager) finishLocked(lock *FileLock, status LockStatus, action string) {
	key := lockKey(lock.ProjectID, lock.Path)
	switch lock.Status {
	case StatusActive:
		m.active[key] = remove(m.active[key], lock.ID)
	case StatusPending:
		m.pending[key] = remove(m.pending[key], lock.ID)
	}
	lock.Status = status
	m.persist(lock)
	m.emit(lock, action)
}

// promoteLocked activates the longest contiguous run of queue heads
// that is compatible with the active set. A run of pending reads all
// promote together; the first incompatible waiter stops the scan.
func (m *Manager) promoteLocked(key string) {
	for len(m.pending[key]) > 0 {
		head := m.pending[key][0]
		if !m.compatibleWithActive(key, head.Kind) {
			return
		}
		now := time.Now()
		m.pending[key] = m.pending[key][1:]
		head.Status = StatusActive
		head.AcquiredAt = now
		head.ExpiresAt = now.Add(head.Timeout)
		m.active[key] = append(m.active[key], head)
		m.persist(head)
		m.emit(head, "promoted")
	}
}

// compatibleWithActive gates promotion on kind alone. Holder identity
// does not matter: promoting a waiter past the same agent's active
// incompatible lock would put two writers on the path.
func (m *Manager) compatibleWithActive(key string, kind LockKind) bool {
	for _, a := range m.active[key] {
		if !Compatible(a.Kind, kind) {
			return false
		}
	}
	return true
}

func (m *Manager) collect(match func(*FileLock) bool) []*FileLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*FileLock
	for _, lock := range m.byID {
		if match(lock) {
			out = append(out, cloneLock(lock))
		}
	}
	return out
}

func (m *Manager) persist(lock *FileLock) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(lock); err != nil {
		log.Printf("[LOCKS] Failed to persist lock %s: %v", lock.ID, err)
	}
}

func (m *Manager) emit(lock *FileLock, action string) {
	if m.onChange != nil {
		m.onChange(cloneLock(lock), action)
	}
}

func lockKey(projectID, path string) string {
	return projectID + "\x00" + path
}

func remove(locks []*FileLock, id string) []*FileLock {
	for i, l := range locks {
		if l.ID == id {
			return append(locks[:i], locks[i+1:]...)
		}
	}
	return locks
}

func cloneLock(l *FileLock) *FileLock {
	c := *l
	if l.Metadata != nil {
		c.Metadata = make(map[string]string, len(l.Metadata))
		for k, v := range l.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
