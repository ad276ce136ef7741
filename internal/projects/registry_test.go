// internal/projects/registry_test.go
package projects

import (
	"errors"
	"testing"

	"github.com/agentcoord/internal/db"
	"github.com/agentcoord/internal/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	store, err := NewSQLiteStore(conn)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return NewRegistry(store)
}

func TestCreateGetList(t *testing.T) {
	r := newTestRegistry(t)

	p, err := r.Create("proj-1", "Payments", "billing rework", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != StatusActive {
		t.Errorf("new project should be active, got %s", p.Status)
	}

	if _, err := r.Create("proj-1", "Other", "", nil); !errors.Is(err, types.ErrConflict) {
		t.Errorf("duplicate id should conflict, got %v", err)
	}
	if _, err := r.Create("", "", "", nil); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("empty name should be invalid, got %v", err)
	}

	generated, err := r.Create("", "Search", "", nil)
	if err != nil {
		t.Fatalf("create with generated id: %v", err)
	}
	if generated.ID == "" {
		t.Error("expected generated id")
	}

	got, err := r.Get("proj-1")
	if err != nil || got.Name != "Payments" {
		t.Errorf("get: %v %+v", err, got)
	}
	if _, err := r.Get("nope"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing project should be not found, got %v", err)
	}

	if n := len(r.List(false)); n != 2 {
		t.Errorf("expected 2 projects, got %d", n)
	}
}

func TestArchive(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Create("proj-1", "Payments", "", nil); err != nil {
		t.Fatal(err)
	}
	archived, err := r.Archive("proj-1")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != StatusArchived || archived.ArchivedAt == nil {
		t.Errorf("unexpected archived project %+v", archived)
	}

	if _, err := r.Archive("proj-1"); !errors.Is(err, types.ErrConflict) {
		t.Errorf("double archive should conflict, got %v", err)
	}
	if _, err := r.Archive("nope"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("archive of missing project should be not found, got %v", err)
	}

	if n := len(r.List(false)); n != 0 {
		t.Errorf("archived projects should be hidden by default, got %d", n)
	}
	if n := len(r.List(true)); n != 1 {
		t.Errorf("includeArchived should return 1, got %d", n)
	}
}

func TestRestartRestore(t *testing.T) {
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	store, err := NewSQLiteStore(conn)
	if err != nil {
		t.Fatal(err)
	}
	first := NewRegistry(store)
	if _, err := first.Create("proj-1", "Payments", "", map[string]string{"team": "core"}); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Archive("proj-1"); err != nil {
		t.Fatal(err)
	}

	second := NewRegistry(store)
	if err := second.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := second.Get("proj-1")
	if err != nil {
		t.Fatalf("get after restore: %v", err)
	}
	if got.Status != StatusArchived || got.Metadata["team"] != "core" {
		t.Errorf("restored project mismatch: %+v", got)
	}
}
