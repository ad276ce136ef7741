// internal/nats/bridge_test.go
package nats

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/agentcoord/internal/events"
)

func startTestServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	return ns, ns.ClientURL()
}

func TestClientPublishSubscribe(t *testing.T) {
	ns, url := startTestServer(t)
	defer ns.Shutdown()

	pub, err := NewClient(url)
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}
	defer pub.Close()
	sub, err := NewClient(url)
	if err != nil {
		t.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	var mu sync.Mutex
	var received []StateMessage
	_, err = sub.Subscribe(SubjectAllAgentStates, func(msg *Message) {
		var sm StateMessage
		if err := json.Unmarshal(msg.Data, &sm); err != nil {
			t.Errorf("Failed to unmarshal state message: %v", err)
			return
		}
		mu.Lock()
		received = append(received, sm)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatal(err)
	}

	msg := StateMessage{
		AgentID:   "agent-1",
		From:      "available",
		To:        "exclusive_computation",
		TaskID:    "task-1",
		Timestamp: time.Now(),
	}
	if err := pub.PublishJSON(fmt.Sprintf(SubjectAgentState, msg.AgentID), msg); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	if err := pub.Flush(); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("state message never arrived")
		case <-time.After(10 * time.Millisecond):
		}
	}
	mu.Lock()
	got := received[0]
	mu.Unlock()
	if got.AgentID != "agent-1" || got.To != "exclusive_computation" {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestBridgeRepublishesRecords(t *testing.T) {
	ns, url := startTestServer(t)
	defer ns.Shutdown()

	client, err := NewClient(url)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	bus := events.NewBus()
	bridge := NewBridge(client, bus)
	if err := bridge.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	defer bridge.Stop()

	watcher, err := NewClient(url)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Close()

	got := make(chan EventMessage, 1)
	_, err = watcher.Subscribe(fmt.Sprintf(SubjectProjectEvents, "proj-1"), func(msg *Message) {
		var ev EventMessage
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Errorf("Failed to unmarshal event: %v", err)
			return
		}
		select {
		case got <- ev:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if err := watcher.Flush(); err != nil {
		t.Fatal(err)
	}

	rec := events.NewRecord("proj-1", "agent-1", events.KindLock, "acquired", "/src/auth.py")
	bus.Publish(rec)

	select {
	case ev := <-got:
		if ev.Kind != "lock" || ev.Action != "acquired" || ev.ProjectID != "proj-1" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridged event never arrived")
	}
}

func TestEmbeddedServerStartStop(t *testing.T) {
	srv, err := NewEmbeddedServer(EmbeddedServerConfig{Port: 14311})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if srv.IsRunning() {
		t.Error("server should not be running before Start")
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if !srv.IsRunning() {
		t.Error("server should be running after Start")
	}

	client, err := NewClient(srv.URL())
	if err != nil {
		t.Fatalf("Failed to connect to embedded server: %v", err)
	}
	if !client.IsConnected() {
		t.Error("client should be connected")
	}
	client.Close()

	srv.Shutdown()
	if srv.IsRunning() {
		t.Error("server should not be running after Shutdown")
	}
}

func TestEmbeddedServerRequiresDataDirForJetStream(t *testing.T) {
	if _, err := NewEmbeddedServer(EmbeddedServerConfig{Port: 14312, JetStream: true}); err == nil {
		t.Error("expected error when JetStream is enabled without DataDir")
	}
}
