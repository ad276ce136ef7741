// internal/nats/bridge.go
package nats

import (
	"fmt"
	"log"
	"sync"

	"github.com/agentcoord/internal/events"
)

// Bridge republishes interaction records from the in-process bus onto
// NATS subjects so external tooling can follow coordination traffic
// without a database connection.
type Bridge struct {
	client *Client
	bus    *events.Bus

	mu      sync.Mutex
	running bool
	ch      <-chan events.Record
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewBridge creates a bridge between the record bus and NATS
func NewBridge(client *Client, bus *events.Bus) *Bridge {
	return &Bridge{client: client, bus: bus}
}

// Start subscribes to the bus and begins republishing
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("bridge already running")
	}
	b.ch = b.bus.Subscribe("", nil)
	b.stopCh = make(chan struct{})
	b.running = true

	b.wg.Add(1)
	go b.pump()

	log.Printf("[NATS-BRIDGE] Started")
	return nil
}

func (b *Bridge) pump() {
	defer b.wg.Done()
	for {
		select {
		case rec, ok := <-b.ch:
			if !ok {
				return
			}
			b.publish(&rec)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bridge) publish(rec *events.Record) {
	msg := EventMessage{
		ID:        rec.ID,
		ProjectID: rec.ProjectID,
		AgentID:   rec.AgentID,
		Kind:      string(rec.Kind),
		Action:    rec.Action,
		Content:   rec.Content,
		Metadata:  rec.Metadata,
		Level:     rec.Level,
		Timestamp: rec.Timestamp,
	}
	subject := fmt.Sprintf(SubjectEvent, rec.ProjectID, rec.Kind)
	if err := b.client.PublishJSON(subject, msg); err != nil {
		log.Printf("[NATS-BRIDGE] Failed to publish %s: %v", subject, err)
	}
}

// Stop halts republishing and detaches from the bus
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	ch := b.ch
	b.mu.Unlock()

	b.wg.Wait()
	b.bus.Unsubscribe(ch)
	log.Printf("[NATS-BRIDGE] Stopped")
}

// PublishState announces an agent state transition
func (b *Bridge) PublishState(msg StateMessage) error {
	return b.client.PublishJSON(fmt.Sprintf(SubjectAgentState, msg.AgentID), msg)
}

// PublishLock announces a file lock transition
func (b *Bridge) PublishLock(msg LockMessage) error {
	return b.client.PublishJSON(fmt.Sprintf(SubjectLockChange, msg.ProjectID), msg)
}

// PublishAssignment announces a task assignment
func (b *Bridge) PublishAssignment(msg AssignmentMessage) error {
	return b.client.PublishJSON(fmt.Sprintf(SubjectTaskAssigned, msg.ProjectID), msg)
}

// PublishApproval announces an approval decision
func (b *Bridge) PublishApproval(msg ApprovalMessage) error {
	return b.client.PublishJSON(fmt.Sprintf(SubjectApprovalDecision, msg.ProjectID), msg)
}
