// internal/approvals/engine.go
package approvals

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcoord/internal/agents"
	"github.com/agentcoord/internal/types"
)

// Directory resolves agents for approver routing. *agents.Store
// satisfies it.
type Directory interface {
	Get(id string) (*agents.Profile, error)
	Chain(id string) ([]string, error)
	List(projectID string, allProjects bool) ([]*agents.Profile, error)
}

// AuditFunc records one approval transition. It is called before the
// operation returns, so the audit trail never lags a reported decision.
type AuditFunc func(req *Request, action string)

// Engine routes decision requests to an approver with sufficient
// authority and escalates them on timeout.
type Engine struct {
	mu       sync.Mutex
	requests map[string]*Request
	rules    []Rule

	directory     Directory
	store         *Store
	fleetFallback bool
	onAudit       AuditFunc
}

// NewEngine creates an approval engine. When fleetFallback is true a
// reporting chain without a qualified approver falls back to scanning
// the whole fleet; when false the request fails with ErrNoApprover.
func NewEngine(directory Directory, store *Store, fleetFallback bool) *Engine {
	return &Engine{
		requests:      make(map[string]*Request),
		directory:     directory,
		store:         store,
		fleetFallback: fleetFallback,
	}
}

// OnAudit registers the audit observer. Must be called before the
// engine is shared across goroutines.
func (e *Engine) OnAudit(fn AuditFunc) {
	e.onAudit = fn
}

// SetRules replaces the escalation rules evaluated by the background
// loop.
func (e *Engine) SetRules(rules []Rule) {
	e.mu.Lock()
	e.rules = append([]Rule(nil), rules...)
	e.mu.Unlock()
}

// Load restores pending requests from the store after a restart
func (e *Engine) Load() error {
	if e.store == nil {
		return nil
	}
	pending, err := e.store.LoadPending()
	if err != nil {
		return err
	}
	e.mu.Lock()
	for _, req := range pending {
		e.requests[req.ID] = req
	}
	e.mu.Unlock()
	log.Printf("[APPROVALS] Restored %d pending requests", len(pending))
	return nil
}

// Request routes a new decision to the lowest-authority approver in
// the requester's reporting chain that can decide it.
func (e *Engine) Request(projectID, requester string, decision DecisionType, title, description, justification string, amount float64, priority string) (*Request, error) {
	if !decision.Valid() {
		return nil, types.InvalidArgumentf("unknown decision type %q", decision)
	}
	if title == "" {
		return nil, types.InvalidArgumentf("approval title is required")
	}
	if amount < 0 {
		return nil, types.InvalidArgumentf("amount must be non-negative")
	}
	if _, err := e.directory.Get(requester); err != nil {
		return nil, err
	}

	required := RequiredAuthority(decision, amount)
	approver, err := e.findApprover(requester, required)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	req := &Request{
		ID:              uuid.New().String(),
		ProjectID:       projectID,
		Requester:       requester,
		DecisionType:    decision,
		Title:           title,
		Description:     description,
		Justification:   justification,
		Amount:          amount,
		Priority:        priority,
		RequiredRole:    required,
		CurrentApprover: approver,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	e.mu.Lock()
	e.requests[req.ID] = req
	e.persist(req)
	e.mu.Unlock()

	e.audit(req, "requested")
	return cloneRequest(req), nil
}

// findApprover walks the requester's reporting chain bottom-up and
// returns the first agent whose role suffices. Outside the chain the
// fleet fallback (when enabled) picks the lowest-authority qualified
// agent.
func (e *Engine) findApprover(requester string, required types.Role) (string, error) {
	chain, err := e.directory.Chain(requester)
	if err != nil {
		return "", fmt.Errorf("failed to walk reporting chain: %w", err)
	}
	for _, id := range chain {
		profile, err := e.directory.Get(id)
		if err != nil {
			return "", err
		}
		if types.HasAuthority(profile.Role, required) {
			return id, nil
		}
	}

	if !e.fleetFallback {
		return "", fmt.Errorf("no approver in chain of %s for %s: %w",
			requester, required, types.ErrNoApprover)
	}

	all, err := e.directory.List("", true)
	if err != nil {
		return "", err
	}
	var best *agents.Profile
	for _, profile := range all {
		if profile.ID == requester || !types.HasAuthority(profile.Role, required) {
			continue
		}
		if best == nil || types.AuthorityRank(profile.Role) < types.AuthorityRank(best.Role) ||
			(types.AuthorityRank(profile.Role) == types.AuthorityRank(best.Role) && profile.ID < best.ID) {
			best = profile
		}
	}
	if best == nil {
		return "", fmt.Errorf("no agent in fleet holds %s authority: %w", required, types.ErrNoApprover)
	}
	return best.ID, nil
}

// Approve records an approval decision by the current approver
func (e *Engine) Approve(approver, requestID, reasoning string) (*Request, error) {
	return e.decide(approver, requestID, reasoning, StatusApproved, "approved")
}

// Reject records a rejection by the current approver
func (e *Engine) Reject(approver, requestID, reasoning string) (*Request, error) {
	return e.decide(approver, requestID, reasoning, StatusRejected, "rejected")
}

func (e *Engine) decide(approver, requestID, reasoning string, status RequestStatus, action string) (*Request, error) {
	profile, err := e.directory.Get(approver)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	req, ok := e.requests[requestID]
	if !ok || (req.Status != StatusPending && req.Status != StatusEscalated) {
		e.mu.Unlock()
		return nil, types.NotFoundf("pending approval %s not found", requestID)
	}
	if req.CurrentApprover != approver {
		e.mu.Unlock()
		return nil, types.PermissionDeniedf("%s is not the current approver of %s", approver, requestID)
	}
	// Authority is re-checked at decision time; a demoted approver
	// must escalate instead of deciding.
	if !types.HasAuthority(profile.Role, req.RequiredRole) {
		e.mu.Unlock()
		return nil, types.PermissionDeniedf("%s no longer holds %s authority", approver, req.RequiredRole)
	}
	now := time.Now()
	req.Status = status
	req.Reasoning = reasoning
	req.UpdatedAt = now
	req.DecidedAt = &now
	e.persist(req)
	e.mu.Unlock()

	e.audit(req, action)
	return cloneRequest(req), nil
}

// Escalate moves the request to the current approver's manager. When
// the approver has no manager the request is marked escalated with the
// given reason and the approver stays in place.
func (e *Engine) Escalate(requestID, reason string) (*Request, error) {
	e.mu.Lock()
	req, ok := e.requests[requestID]
	if !ok || (req.Status != StatusPending && req.Status != StatusEscalated) {
		e.mu.Unlock()
		return nil, types.NotFoundf("pending approval %s not found", requestID)
	}
	approver := req.CurrentApprover
	e.mu.Unlock()

	profile, err := e.directory.Get(approver)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// The request may have been decided while the lock was dropped.
	if req.Status != StatusPending && req.Status != StatusEscalated {
		return nil, types.NotFoundf("pending approval %s not found", requestID)
	}
	now := time.Now()
	if profile.ReportsTo == "" {
		// Top of the chain: flag the request instead of moving it.
		req.Status = StatusEscalated
		req.EscalationReason = reason
		req.UpdatedAt = now
		e.persist(req)
		e.auditLocked(req, "escalation_stuck")
		return nil, fmt.Errorf("approver %s has no manager: %w", approver, types.ErrCannotEscalate)
	}
	req.CurrentApprover = profile.ReportsTo
	req.EscalationReason = reason
	req.Escalations++
	req.UpdatedAt = now
	e.persist(req)
	e.auditLocked(req, "escalated")
	return cloneRequest(req), nil
}

// Get returns one request
func (e *Engine) Get(requestID string) (*Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.requests[requestID]
	if !ok {
		return nil, types.NotFoundf("approval %s not found", requestID)
	}
	return cloneRequest(req), nil
}

// PendingFor lists undecided requests awaiting the approver
func (e *Engine) PendingFor(approver string) []*Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*Request
	for _, req := range e.requests {
		if req.CurrentApprover == approver &&
			(req.Status == StatusPending || req.Status == StatusEscalated) {
			out = append(out, cloneRequest(req))
		}
	}
	return out
}

// Evaluate applies the escalation rules once. Each overdue request
// escalates a single step per evaluation.
func (e *Engine) Evaluate(now time.Time) int {
	e.mu.Lock()
	var overdue []string
	for _, req := range e.requests {
		if req.Status != StatusPending {
			continue
		}
		for _, rule := range e.rules {
			if rule.Matches(req) && now.Sub(req.UpdatedAt) >= rule.MaxAge {
				overdue = append(overdue, req.ID)
				break
			}
		}
	}
	e.mu.Unlock()

	escalated := 0
	for _, id := range overdue {
		if _, err := e.Escalate(id, "timeout"); err == nil {
			escalated++
		}
	}
	if len(overdue) > 0 {
		log.Printf("[APPROVALS] Escalation pass: %d overdue, %d moved", len(overdue), escalated)
	}
	return escalated
}

// Run drives the escalation loop until ctx is cancelled
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || interval > time.Hour {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Evaluate(now)
		}
	}
}

func (e *Engine) persist(req *Request) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(req); err != nil {
		log.Printf("[APPROVALS] Failed to persist request %s: %v", req.ID, err)
	}
}

func (e *Engine) audit(req *Request, action string) {
	if e.onAudit != nil {
		e.onAudit(cloneRequest(req), action)
	}
}

// auditLocked emits while holding e.mu; the observer must not call
// back into the engine.
func (e *Engine) auditLocked(req *Request, action string) {
	if e.onAudit != nil {
		e.onAudit(cloneRequest(req), action)
	}
}

func cloneRequest(req *Request) *Request {
	c := *req
	if req.DecidedAt != nil {
		t := *req.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}
