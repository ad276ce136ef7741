// internal/events/log.go
package events

import (
	"log"
	"sync"
	"time"
)

// Log is the append-only interaction log. Log is fire-and-forget
// through a buffered writer goroutine; LogSync writes before
// returning, for audit-critical operations (approvals, assignments,
// lock grants).
type Log struct {
	store *SQLiteStore
	bus   *Bus

	queue  chan *Record
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewLog creates the interaction log and starts its writer
func NewLog(store *SQLiteStore, bus *Bus) *Log {
	l := &Log{
		store: store,
		bus:   bus,
		queue: make(chan *Record, 256),
	}
	l.wg.Add(1)
	go l.writer()
	return l
}

func (l *Log) writer() {
	defer l.wg.Done()
	for rec := range l.queue {
		l.write(rec)
	}
}

func (l *Log) write(rec *Record) {
	if err := l.store.Save(rec); err != nil {
		log.Printf("[EVENTLOG] Failed to persist record %s: %v", rec.ID, err)
		return
	}
	if l.bus != nil {
		l.bus.Publish(rec)
	}
}

// Log appends asynchronously. A full queue falls back to a
// synchronous write rather than dropping the record.
func (l *Log) Log(rec *Record) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- rec:
	default:
		l.write(rec)
	}
}

// LogSync appends and waits for the write to land
func (l *Log) LogSync(rec *Record) error {
	if err := l.store.Save(rec); err != nil {
		return err
	}
	if l.bus != nil {
		l.bus.Publish(rec)
	}
	return nil
}

// Query returns records matching the filter, newest first
func (l *Log) Query(f Filter) ([]*Record, error) {
	return l.store.Query(f)
}

// Search runs a free-text match over content and action
func (l *Log) Search(projectID, text string, limit int) ([]*Record, error) {
	return l.store.Search(projectID, text, limit)
}

// Cleanup deletes non-audit records past the retention window
func (l *Log) Cleanup(olderThan time.Duration) (int64, error) {
	return l.store.Cleanup(olderThan)
}

// Close drains the queue and stops the writer
func (l *Log) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.wg.Wait()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()
	l.wg.Wait()
}
