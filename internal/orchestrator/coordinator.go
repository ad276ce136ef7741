// internal/orchestrator/coordinator.go
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/agentcoord/internal/agents"
	"github.com/agentcoord/internal/approvals"
	"github.com/agentcoord/internal/assign"
	"github.com/agentcoord/internal/events"
	"github.com/agentcoord/internal/locks"
	"github.com/agentcoord/internal/messaging"
	natslib "github.com/agentcoord/internal/nats"
	"github.com/agentcoord/internal/projects"
	"github.com/agentcoord/internal/rag"
	"github.com/agentcoord/internal/resource"
	"github.com/agentcoord/internal/tasks"
	"github.com/agentcoord/internal/types"
)

// Coordinator is the composition root: it owns every coordination
// component and wires their cross-component workflows. On task
// creation content is indexed into the assembler; on assignment the
// assignee is notified and the scheduler updated; on approval
// decisions the requester is notified; on lock release the pending
// queue promotes.
type Coordinator struct {
	cfg *types.Config

	Projects  *projects.Registry
	Agents    *agents.Store
	Tasks     *tasks.Store
	Assigner  *assign.Engine
	Locks     *locks.Manager
	Messages  *messaging.Bus
	Scheduler *resource.Scheduler
	Approvals *approvals.Engine
	Context   *rag.Assembler
	Chunks    *rag.ChunkStore
	Events    *events.Log
	EventBus  *events.Bus

	Metrics *MetricsHistory

	bridge *natslib.Bridge
}

// New builds the full component graph over one sqlite connection
func New(cfg *types.Config, conn *sql.DB) (*Coordinator, error) {
	projectStore, err := projects.NewSQLiteStore(conn)
	if err != nil {
		return nil, fmt.Errorf("projects store: %w", err)
	}
	agentStore, err := agents.NewStore(conn)
	if err != nil {
		return nil, fmt.Errorf("agents store: %w", err)
	}
	taskStore, err := tasks.NewStore(conn, agentStore)
	if err != nil {
		return nil, fmt.Errorf("tasks store: %w", err)
	}
	lockStore, err := locks.NewStore(conn)
	if err != nil {
		return nil, fmt.Errorf("locks store: %w", err)
	}
	msgStore, err := messaging.NewStore(conn)
	if err != nil {
		return nil, fmt.Errorf("messaging store: %w", err)
	}
	approvalStore, err := approvals.NewStore(conn)
	if err != nil {
		return nil, fmt.Errorf("approvals store: %w", err)
	}
	chunkStore, err := rag.NewChunkStore(conn)
	if err != nil {
		return nil, fmt.Errorf("chunk store: %w", err)
	}
	eventStore, err := events.NewSQLiteStore(conn)
	if err != nil {
		return nil, fmt.Errorf("event store: %w", err)
	}

	assembler, err := rag.NewAssembler(chunkStore, nil, cfg.Context.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("assembler: %w", err)
	}

	eventBus := events.NewBus()
	c := &Coordinator{
		cfg:       cfg,
		Projects:  projects.NewRegistry(projectStore),
		Agents:    agentStore,
		Tasks:     taskStore,
		Assigner:  assign.NewEngine(agentStore),
		Locks:     locks.NewManager(lockStore, time.Duration(cfg.Locks.DefaultTimeoutSeconds)*time.Second),
		Messages:  messaging.NewBus(agentStore, msgStore),
		Scheduler: resource.NewScheduler(agentStore, time.Duration(cfg.Resource.ContextSwitchSeconds)*time.Second),
		Chunks:    chunkStore,
		Context:   assembler,
		Events:    events.NewLog(eventStore, eventBus),
		EventBus:  eventBus,
		Metrics:   NewMetricsHistory(defaultMetricsKeep),
	}

	fleetFallback := true
	if cfg.Approvals.FleetFallback != nil {
		fleetFallback = *cfg.Approvals.FleetFallback
	}
	c.Approvals = approvals.NewEngine(agentStore, approvalStore, fleetFallback)
	c.Approvals.SetRules([]approvals.Rule{
		{DecisionType: approvals.DecisionBudget, MaxAge: time.Duration(cfg.Approvals.BudgetReviewHours) * time.Hour},
	})

	c.wireObservers()
	return c, nil
}

// AttachBridge connects the coordinator to NATS. Must be called before
// Start.
func (c *Coordinator) AttachBridge(bridge *natslib.Bridge) {
	c.bridge = bridge
}

// wireObservers connects component observers to the event log, the
// message bus, and the NATS bridge.
func (c *Coordinator) wireObservers() {
	c.Locks.OnChange(func(lock *locks.FileLock, action string) {
		rec := events.NewRecord(lock.ProjectID, lock.AgentID, events.KindLock, action, lock.Path)
		rec.Metadata = map[string]string{"lock_id": lock.ID, "kind": string(lock.Kind)}
		if action == "acquired" {
			// Lock grants are audit-critical
			rec.Level = events.LevelAudit
			c.Events.LogSync(rec)
		} else {
			c.Events.Log(rec)
		}
		if c.bridge != nil {
			c.bridge.PublishLock(natslib.LockMessage{
				LockID:    lock.ID,
				ProjectID: lock.ProjectID,
				Path:      lock.Path,
				AgentID:   lock.AgentID,
				Kind:      string(lock.Kind),
				Status:    string(lock.Status),
				Timestamp: time.Now(),
			})
		}
	})

	c.Messages.OnDeliver(func(msg *messaging.Message) {
		rec := events.NewRecord("", msg.From, events.KindMessage, "delivered", msg.Subject)
		rec.Metadata = map[string]string{
			"message_id": msg.ID,
			"to":         msg.To,
			"type":       string(msg.Type),
		}
		c.Events.Log(rec)
	})

	c.Approvals.OnAudit(func(req *approvals.Request, action string) {
		rec := events.NewRecord(req.ProjectID, req.Requester, events.KindApproval, action, req.Title)
		rec.Level = events.LevelAudit
		rec.Metadata = map[string]string{
			"request_id": req.ID,
			"approver":   req.CurrentApprover,
			"status":     string(req.Status),
		}
		c.Events.LogSync(rec)
		if c.bridge != nil {
			c.bridge.PublishApproval(natslib.ApprovalMessage{
				RequestID:  req.ID,
				ProjectID:  req.ProjectID,
				ApproverID: req.CurrentApprover,
				Status:     string(req.Status),
				Timestamp:  time.Now(),
			})
		}
		c.notifyApprovalOutcome(req)
	})

	c.Scheduler.OnTransition(func(state *resource.AgentState) {
		rec := events.NewRecord("", state.AgentID, events.KindResource, "state_changed", string(state.State))
		c.Events.Log(rec)
		if c.bridge != nil {
			taskID := ""
			if state.Task != nil {
				taskID = state.Task.ID
			}
			c.bridge.PublishState(natslib.StateMessage{
				AgentID:   state.AgentID,
				From:      string(state.PrevState),
				To:        string(state.State),
				TaskID:    taskID,
				Timestamp: time.Now(),
			})
		}
	})

	c.Projects.OnChange(func(p *projects.Project) {
		c.Events.Log(events.NewRecord(p.ID, "", events.KindProject, string(p.Status), p.Name))
	})
}

// Load restores all in-memory state from the sqlite stores
func (c *Coordinator) Load() error {
	if err := c.Projects.Load(); err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	if err := c.Locks.Load(); err != nil {
		return fmt.Errorf("load locks: %w", err)
	}
	if err := c.Messages.Load(); err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if err := c.Approvals.Load(); err != nil {
		return fmt.Errorf("load approvals: %w", err)
	}
	return nil
}

// Start launches the background sweepers. They stop when ctx is
// cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	go c.Locks.Run(ctx, time.Duration(c.cfg.Locks.SweepIntervalSeconds)*time.Second)
	go c.Scheduler.Run(ctx,
		time.Duration(c.cfg.Resource.DrainIntervalSeconds)*time.Second,
		time.Duration(c.cfg.Resource.StateSweepSeconds)*time.Second)
	go c.Approvals.Run(ctx, time.Duration(c.cfg.Approvals.EscalationIntervalSeconds)*time.Second)
	go c.runMetricsLoop(ctx, time.Duration(c.cfg.Resource.MetricsSnapshotSeconds)*time.Second)
	go c.runCleanupLoop(ctx,
		time.Duration(c.cfg.Events.CleanupIntervalHours)*time.Hour,
		time.Duration(c.cfg.Events.RetentionDays)*24*time.Hour)
}

// runCleanupLoop deletes non-audit interaction records past the
// retention window.
func (c *Coordinator) runCleanupLoop(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := c.Events.Cleanup(retention)
			if err != nil {
				log.Printf("[ORCH] Event cleanup failed: %v", err)
			} else if deleted > 0 {
				log.Printf("[ORCH] Event cleanup removed %d records", deleted)
			}
		}
	}
}

// Close flushes the event log
func (c *Coordinator) Close() {
	c.Events.Close()
}
