// internal/resource/scheduler.go
package resource

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/agentcoord/internal/agents"
	"github.com/agentcoord/internal/types"
)

// Profiles resolves agent profiles for timing parameters.
// *agents.Store satisfies it.
type Profiles interface {
	Get(id string) (*agents.Profile, error)
}

// StateFunc observes agent state transitions
type StateFunc func(state *AgentState)

// delayed is one deferred delivery in the queue
type delayed struct {
	agentID  string
	sendTime time.Time
	deliver  func()
}

// Scheduler models per-agent computational availability and decides
// how quickly each agent responds. All per-agent mutations run under
// one mutex; reads return snapshots.
type Scheduler struct {
	mu     sync.Mutex
	states map[string]*AgentState
	queue  []*delayed

	profiles     Profiles
	switchDelay  time.Duration
	onTransition StateFunc
}

// NewScheduler creates a scheduler. switchDelay bounds how long an
// agent stays in context_switching before the sweep restores it.
func NewScheduler(profiles Profiles, switchDelay time.Duration) *Scheduler {
	if switchDelay <= 0 {
		switchDelay = 5 * time.Second
	}
	return &Scheduler{
		states:      make(map[string]*AgentState),
		profiles:    profiles,
		switchDelay: switchDelay,
	}
}

// OnTransition registers the state observer. Must be called before the
// scheduler is shared across goroutines.
func (s *Scheduler) OnTransition(fn StateFunc) {
	s.onTransition = fn
}

// StartTask moves the agent into exclusive_computation
func (s *Scheduler) StartTask(agentID, kind string, est time.Duration, interruptible bool, interruptionCost time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(agentID)
	if state.State == StateExclusive {
		return types.Conflictf("agent %s is already computing", agentID)
	}
	state.Task = &InflightTask{
		Kind:             kind,
		EstDuration:      est,
		StartedAt:        time.Now(),
		Interruptible:    interruptible,
		InterruptionCost: interruptionCost,
	}
	s.transitionLocked(state, StateExclusive)
	return nil
}

// CompleteTask returns the agent to available and clears the task
func (s *Scheduler) CompleteTask(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(agentID)
	if state.Task == nil {
		return types.NotFoundf("agent %s has no task in flight", agentID)
	}
	state.Task = nil
	s.transitionLocked(state, StateAvailable)
	return nil
}

// AwaitDependency parks the agent until the named dependency resolves
func (s *Scheduler) AwaitDependency(agentID, dependencyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(agentID)
	if state.State != StateAvailable && state.State != StateExclusive {
		return types.Conflictf("agent %s cannot wait from state %s", agentID, state.State)
	}
	if state.Task == nil {
		state.Task = &InflightTask{StartedAt: time.Now(), Interruptible: true}
	}
	state.Task.WaitingOn = dependencyID
	s.transitionLocked(state, StateAwaitingDep)
	return nil
}

// ResolveDependency wakes every agent waiting on dependencyID
func (s *Scheduler) ResolveDependency(dependencyID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	woken := 0
	for _, state := range s.states {
		if state.State != StateAwaitingDep || state.Task == nil || state.Task.WaitingOn != dependencyID {
			continue
		}
		// An available agent carries no in-flight task; the waiting
		// task re-enters through StartTask when work resumes.
		state.Task = nil
		s.transitionLocked(state, StateAvailable)
		woken++
	}
	return woken
}

// NoteAssignmentChange briefly puts the agent into context_switching.
// The state sweep restores the prior state after the switch delay.
func (s *Scheduler) NoteAssignmentChange(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(agentID)
	if state.State == StateContextSwitch {
		state.Since = time.Now()
		return
	}
	state.PrevState = state.State
	s.transitionLocked(state, StateContextSwitch)
}

// Preempt asks the agent to abandon its in-flight task. The
// interruption cost in seconds is always reported; a non-interruptible
// task rejects the request.
func (s *Scheduler) Preempt(agentID string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(agentID)
	if state.Task == nil {
		return 0, types.NotFoundf("agent %s has no task to preempt", agentID)
	}
	cost := state.Task.InterruptionCost
	if !state.Task.Interruptible {
		return cost, types.Conflictf("task %s is not interruptible (cost %s)", state.Task.Kind, cost)
	}
	// The abandoned work charges the agent's effective capacity.
	state.Load += cost.Seconds() / 3600
	if state.Load > 1 {
		state.Load = 1
	}
	state.Task = nil
	s.transitionLocked(state, StateAvailable)
	return cost, nil
}

// SetLoad records the agent's computational load in [0,1]
func (s *Scheduler) SetLoad(agentID string, load float64) {
	if load < 0 {
		load = 0
	}
	if load > 1 {
		load = 1
	}
	s.mu.Lock()
	s.stateLocked(agentID).Load = load
	s.mu.Unlock()
}

// Snapshot returns a copy of the agent's current state
func (s *Scheduler) Snapshot(agentID string) *AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.stateLocked(agentID))
}

// States returns a snapshot of every tracked agent
func (s *Scheduler) States() []*AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*AgentState, 0, len(s.states))
	for _, state := range s.states {
		out = append(out, cloneState(state))
	}
	return out
}

// ComputeResponse derives how long the agent takes to answer a request
// of the given task type and input complexity. The returned delay is a
// whole number of seconds, at least 1.
func (s *Scheduler) ComputeResponse(agentID, taskType string, complexity float64, collaborative bool) (*Response, error) {
	profile, err := s.profiles.Get(agentID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	state := s.stateLocked(agentID)
	load := state.Load
	current := state.State
	s.mu.Unlock()

	base := templateFor(taskType).Base(complexity)
	seconds := base

	factor := personalityFactor(profile.Personality)
	seconds *= factor

	specialized := profile.HasSpecialization(taskType)
	if specialized {
		seconds /= specializationBonus
	}

	seconds *= 1 + 0.5*load
	seconds *= current.Multiplier()

	collabExtra := false
	if collaborative && profile.Personality == agents.PersonalityCollaborativeOpt {
		seconds += collaborationOverhead.Seconds()
		collabExtra = true
	}

	delay := time.Duration(math.Ceil(seconds)) * time.Second
	if delay < time.Second {
		delay = time.Second
	}

	reason := fmt.Sprintf("base %.0fs, personality x%.1f", base, factor)
	if specialized {
		reason += fmt.Sprintf(", specialized /%.1f", specializationBonus)
	}
	reason += fmt.Sprintf(", load x%.2f, state %s x%.1f", 1+0.5*load, current, current.Multiplier())
	if collabExtra {
		reason += fmt.Sprintf(", collaboration +%.0fs", collaborationOverhead.Seconds())
	}
	return &Response{Delay: delay, Reason: reason}, nil
}

// Defer queues a delivery to run once delay has elapsed. The drain
// tick executes due deliveries in send-time order.
func (s *Scheduler) Defer(agentID string, delay time.Duration, deliver func()) {
	s.mu.Lock()
	s.queue = append(s.queue, &delayed{
		agentID:  agentID,
		sendTime: time.Now().Add(delay),
		deliver:  deliver,
	})
	s.mu.Unlock()
}

// Drain delivers every queued entry whose send time has passed.
// Deliveries run outside the scheduler lock.
func (s *Scheduler) Drain(now time.Time) int {
	s.mu.Lock()
	var due, rest []*delayed
	for _, d := range s.queue {
		if d.sendTime.After(now) {
			rest = append(rest, d)
		} else {
			due = append(due, d)
		}
	}
	s.queue = rest
	s.mu.Unlock()

	for _, d := range due {
		d.deliver()
	}
	return len(due)
}

// PendingDeliveries reports the delayed-queue depth
func (s *Scheduler) PendingDeliveries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// SweepStates returns agents stuck in context_switching to their prior
// state once the switch delay has elapsed.
func (s *Scheduler) SweepStates(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, state := range s.states {
		if state.State != StateContextSwitch {
			continue
		}
		if now.Sub(state.Since) < s.switchDelay {
			continue
		}
		prev := state.PrevState
		if prev == "" || prev == StateContextSwitch {
			prev = StateAvailable
		}
		state.PrevState = ""
		s.transitionLocked(state, prev)
		restored++
	}
	return restored
}

// Run drives the drain and state-sweep loops until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context, drainEvery, sweepEvery time.Duration) {
	if drainEvery <= 0 || drainEvery > 5*time.Second {
		drainEvery = 5 * time.Second
	}
	if sweepEvery <= 0 || sweepEvery > 10*time.Second {
		sweepEvery = 10 * time.Second
	}
	drain := time.NewTicker(drainEvery)
	sweep := time.NewTicker(sweepEvery)
	defer drain.Stop()
	defer sweep.Stop()
	log.Printf("[SCHED] Loops started (drain %s, sweep %s)", drainEvery, sweepEvery)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-drain.C:
			s.Drain(now)
		case now := <-sweep.C:
			s.SweepStates(now)
		}
	}
}

func (s *Scheduler) stateLocked(agentID string) *AgentState {
	state, ok := s.states[agentID]
	if !ok {
		state = &AgentState{
			AgentID: agentID,
			State:   StateAvailable,
			Since:   time.Now(),
		}
		s.states[agentID] = state
	}
	return state
}

func (s *Scheduler) transitionLocked(state *AgentState, to State) {
	state.State = to
	state.Since = time.Now()
	if s.onTransition != nil {
		s.onTransition(cloneState(state))
	}
}

func cloneState(state *AgentState) *AgentState {
	c := *state
	if state.Task != nil {
		task := *state.Task
		c.Task = &task
	}
	return &c
}
