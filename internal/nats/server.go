// internal/nats/server.go
package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServerConfig holds configuration for the embedded NATS server
type EmbeddedServerConfig struct {
	Port      int    // Port to listen on, 0 picks the default 4222
	JetStream bool   // Enable JetStream
	DataDir   string // Data directory for JetStream storage
}

// EmbeddedServer wraps an in-process NATS server
type EmbeddedServer struct {
	server  *server.Server
	config  EmbeddedServerConfig
	mu      sync.RWMutex
	running bool
}

// NewEmbeddedServer creates a new embedded NATS server instance
func NewEmbeddedServer(config EmbeddedServerConfig) (*EmbeddedServer, error) {
	if config.Port <= 0 {
		config.Port = 4222
	}
	if config.JetStream && config.DataDir == "" {
		return nil, fmt.Errorf("DataDir is required when JetStream is enabled")
	}
	return &EmbeddedServer{config: config}, nil
}

// Start starts the embedded NATS server
func (e *EmbeddedServer) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("server already running")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       e.config.Port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	if e.config.JetStream {
		opts.JetStream = true
		opts.StoreDir = e.config.DataDir
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}
	e.server = ns

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("server not ready for connections")
	}

	e.running = true
	return nil
}

// Shutdown gracefully shuts down the NATS server
func (e *EmbeddedServer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.server == nil {
		return
	}
	e.server.Shutdown()
	e.server.WaitForShutdown()
	e.running = false
	e.server = nil
}

// URL returns the connection URL for the NATS server
func (e *EmbeddedServer) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.server != nil {
		return e.server.ClientURL()
	}
	return fmt.Sprintf("nats://127.0.0.1:%d", e.config.Port)
}

// IsRunning returns whether the server is currently running
func (e *EmbeddedServer) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}
