// internal/nats/streams.go
package nats

import (
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// StreamManager manages JetStream streams for coordination traffic
type StreamManager struct {
	js nats.JetStreamContext
}

// NewStreamManager creates a StreamManager over an existing connection
func NewStreamManager(nc *nats.Conn) (*StreamManager, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &StreamManager{js: js}, nil
}

// SetupStreams creates or updates the coordination streams
func (sm *StreamManager) SetupStreams() error {
	streams := []nats.StreamConfig{
		{
			Name:        "EVENTS",
			Description: "Interaction log records",
			Subjects:    []string{"events.>"},
			Storage:     nats.FileStorage,
			MaxAge:      7 * 24 * time.Hour,
			Retention:   nats.LimitsPolicy,
		},
		{
			Name:        "AGENTS",
			Description: "Agent resource-state transitions",
			Subjects:    []string{"agents.>"},
			Storage:     nats.MemoryStorage,
			MaxAge:      10 * time.Minute,
			Retention:   nats.LimitsPolicy,
		},
		{
			Name:        "COORDINATION",
			Description: "Lock transitions, assignments, and approval decisions",
			Subjects:    []string{"locks.>", "tasks.>", "approvals.>"},
			Storage:     nats.MemoryStorage,
			MaxAge:      1 * time.Hour,
			Retention:   nats.LimitsPolicy,
		},
	}

	for _, streamCfg := range streams {
		if err := sm.createOrUpdateStream(streamCfg); err != nil {
			return err
		}
	}

	log.Println("[NATS-STREAMS] All streams configured")
	return nil
}

func (sm *StreamManager) createOrUpdateStream(cfg nats.StreamConfig) error {
	_, err := sm.js.StreamInfo(cfg.Name)
	if err != nil {
		if err == nats.ErrStreamNotFound {
			log.Printf("[NATS-STREAMS] Creating stream %s with subjects %v", cfg.Name, cfg.Subjects)
			if _, err := sm.js.AddStream(&cfg); err != nil {
				return err
			}
			return nil
		}
		return err
	}

	log.Printf("[NATS-STREAMS] Stream %s already exists, updating configuration", cfg.Name)
	if _, err := sm.js.UpdateStream(&cfg); err != nil {
		return err
	}
	return nil
}

// DeleteStream deletes a stream by name
func (sm *StreamManager) DeleteStream(name string) error {
	return sm.js.DeleteStream(name)
}

// GetStreamInfo returns information about a specific stream
func (sm *StreamManager) GetStreamInfo(name string) (*nats.StreamInfo, error) {
	return sm.js.StreamInfo(name)
}
