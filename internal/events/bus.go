// internal/events/bus.go
package events

import (
	"sync"
)

// Subscription is one live feed of interaction records
type Subscription struct {
	Ch        chan Record
	Kinds     []Kind // nil/empty = all kinds
	ProjectID string // "" = all projects
}

// Bus fans published records out to subscribers. Sends are
// non-blocking: a full subscriber channel drops the record rather than
// stalling the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*Subscription
}

// NewBus creates an in-process record bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel receiving records for the project (or
// all projects when projectID is empty), filtered by kinds.
func (b *Bus) Subscribe(projectID string, kinds []Kind) <-chan Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		Ch:        make(chan Record, 100),
		Kinds:     kinds,
		ProjectID: projectID,
	}
	b.subscribers = append(b.subscribers, sub)
	return sub.Ch
}

// Unsubscribe removes a subscription and closes its channel
func (b *Bus) Unsubscribe(ch <-chan Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.Ch == ch {
			close(sub.Ch)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends the record to every matching subscriber
func (b *Bus) Publish(rec *Record) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.ProjectID != "" && sub.ProjectID != rec.ProjectID {
			continue
		}
		if !matchesKinds(rec.Kind, sub.Kinds) {
			continue
		}
		select {
		case sub.Ch <- *rec:
		default:
			// Slow subscriber: drop instead of blocking the publisher
		}
	}
}

func matchesKinds(kind Kind, kinds []Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
