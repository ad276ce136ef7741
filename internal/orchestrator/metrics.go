// internal/orchestrator/metrics.go
package orchestrator

import (
	"context"
	"sync"
	"time"
)

// defaultMetricsKeep bounds the snapshot history
const defaultMetricsKeep = 288

// AgentMetrics is one agent's utilization sample
type AgentMetrics struct {
	AgentID     string  `json:"agent_id"`
	State       string  `json:"state"`
	Load        float64 `json:"load"`
	UnreadCount int     `json:"unread_count"`
}

// MetricsSnapshot is one periodic fleet sample
type MetricsSnapshot struct {
	TakenAt           time.Time      `json:"taken_at"`
	Agents            []AgentMetrics `json:"agents"`
	PendingDeliveries int            `json:"pending_deliveries"`
}

// MetricsHistory keeps a bounded window of fleet snapshots
type MetricsHistory struct {
	mu        sync.RWMutex
	snapshots []*MetricsSnapshot
	keep      int
}

// NewMetricsHistory creates a history bounded to keep snapshots
func NewMetricsHistory(keep int) *MetricsHistory {
	if keep <= 0 {
		keep = defaultMetricsKeep
	}
	return &MetricsHistory{keep: keep}
}

// Add appends a snapshot, evicting the oldest past the bound
func (h *MetricsHistory) Add(snap *MetricsSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = append(h.snapshots, snap)
	if len(h.snapshots) > h.keep {
		h.snapshots = h.snapshots[len(h.snapshots)-h.keep:]
	}
}

// Series returns up to limit most recent snapshots, oldest first
func (h *MetricsHistory) Series(limit int) []*MetricsSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.snapshots)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*MetricsSnapshot, n)
	copy(out, h.snapshots[len(h.snapshots)-n:])
	return out
}

// Latest returns the most recent snapshot, or nil
func (h *MetricsHistory) Latest() *MetricsSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.snapshots) == 0 {
		return nil
	}
	return h.snapshots[len(h.snapshots)-1]
}

// TakeSnapshot samples the fleet's current utilization
func (c *Coordinator) TakeSnapshot() *MetricsSnapshot {
	snap := &MetricsSnapshot{
		TakenAt:           time.Now(),
		PendingDeliveries: c.Scheduler.PendingDeliveries(),
	}
	for _, state := range c.Scheduler.States() {
		snap.Agents = append(snap.Agents, AgentMetrics{
			AgentID:     state.AgentID,
			State:       string(state.State),
			Load:        state.Load,
			UnreadCount: c.Messages.UnreadCount(state.AgentID),
		})
	}
	c.Metrics.Add(snap)
	return snap
}

func (c *Coordinator) runMetricsLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 || interval > time.Hour {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.TakeSnapshot()
		}
	}
}
