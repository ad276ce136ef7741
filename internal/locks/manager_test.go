// internal/locks/manager_test.go
package locks

import (
	"errors"
	"testing"
	"time"

	"github.com/agentcoord/internal/db"
	"github.com/agentcoord/internal/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	store, err := NewStore(conn)
	if err != nil {
		t.Fatalf("lock store: %v", err)
	}
	return NewManager(store, 30*time.Minute)
}

func mustAcquire(t *testing.T, m *Manager, agent, path string, kind LockKind) *FileLock {
	t.Helper()
	lock, err := m.Acquire("proj-1", agent, path, kind, time.Minute)
	if err != nil {
		t.Fatalf("acquire %s %s %s: %v", agent, path, kind, err)
	}
	return lock
}

func TestReadWriteFIFO(t *testing.T) {
	m := newTestManager(t)

	// X, Y, Z share read locks on the same path.
	x := mustAcquire(t, m, "x", "/a.py", KindRead)
	y := mustAcquire(t, m, "y", "/a.py", KindRead)
	z := mustAcquire(t, m, "z", "/a.py", KindRead)
	for _, l := range []*FileLock{x, y, z} {
		if l.Status != StatusActive {
			t.Fatalf("read lock for %s should be active, got %s", l.AgentID, l.Status)
		}
	}

	// W's write must queue behind the readers.
	w := mustAcquire(t, m, "w", "/a.py", KindWrite)
	if w.Status != StatusPending {
		t.Fatalf("write behind readers should be pending, got %s", w.Status)
	}

	// V's read arrives after W's pending write and may not jump it.
	v := mustAcquire(t, m, "v", "/a.py", KindRead)
	if v.Status != StatusPending {
		t.Fatalf("read behind pending write should be pending, got %s", v.Status)
	}

	for _, l := range []*FileLock{x, y, z} {
		if ok, err := m.Release(l.ID, l.AgentID); err != nil || !ok {
			t.Fatalf("release %s: ok=%v err=%v", l.AgentID, ok, err)
		}
	}

	locks, err := m.PathLocks("proj-1", "/a.py")
	if err != nil {
		t.Fatal(err)
	}
	status := make(map[string]LockStatus)
	for _, l := range locks {
		status[l.AgentID] = l.Status
	}
	if status["w"] != StatusActive {
		t.Errorf("w should be promoted to active, got %s", status["w"])
	}
	if status["v"] != StatusPending {
		t.Errorf("v must wait for w, got %s", status["v"])
	}

	// Releasing W finally lets V in.
	if ok, _ := m.Release(w.ID, "w"); !ok {
		t.Fatal("release w failed")
	}
	locks, _ = m.PathLocks("proj-1", "/a.py")
	if len(locks) != 1 || locks[0].AgentID != "v" || locks[0].Status != StatusActive {
		t.Errorf("expected only v active, got %+v", locks)
	}
}

func TestPendingReadRunPromotesTogether(t *testing.T) {
	m := newTestManager(t)

	w := mustAcquire(t, m, "writer", "/b.go", KindWrite)
	r1 := mustAcquire(t, m, "r1", "/b.go", KindRead)
	r2 := mustAcquire(t, m, "r2", "/b.go", KindRead)
	if r1.Status != StatusPending || r2.Status != StatusPending {
		t.Fatal("reads behind a writer must queue")
	}

	if ok, _ := m.Release(w.ID, ""); !ok {
		t.Fatal("release failed")
	}

	locks, _ := m.PathLocks("proj-1", "/b.go")
	active := 0
	for _, l := range locks {
		if l.Status == StatusActive {
			active++
		}
	}
	if active != 2 {
		t.Errorf("both queued reads should promote as a run, got %d active", active)
	}
}

func TestSameAgentReacquisition(t *testing.T) {
	m := newTestManager(t)

	first := mustAcquire(t, m, "solo", "/c.md", KindRead)
	second := mustAcquire(t, m, "solo", "/c.md", KindRead)
	if second.Status != StatusActive {
		t.Errorf("compatible re-acquisition must not block, got %s", second.Status)
	}
	_ = first
}

func TestSameAgentSecondWriteQueues(t *testing.T) {
	m := newTestManager(t)

	first := mustAcquire(t, m, "solo", "/c.md", KindWrite)
	if first.Status != StatusActive {
		t.Fatalf("first write should be active, got %s", first.Status)
	}

	// Incompatible kinds queue even against the agent's own lock, so
	// the path never carries two active writers.
	second := mustAcquire(t, m, "solo", "/c.md", KindWrite)
	if second.Status != StatusPending {
		t.Errorf("second write by the holder should queue, got %s", second.Status)
	}

	conflicts, err := m.DetectConflicts("proj-1", "/c.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 0 {
		t.Errorf("normal operation should report no conflicts, got %+v", conflicts)
	}

	// The queued write promotes once the first releases.
	if _, err := m.Release(first.ID, "solo"); err != nil {
		t.Fatal(err)
	}
	if got := m.byID[second.ID].Status; got != StatusActive {
		t.Errorf("queued write should promote after release, got %s", got)
	}
}

func TestReleaseSemantics(t *testing.T) {
	m := newTestManager(t)
	lock := mustAcquire(t, m, "a", "/d.txt", KindExclusive)

	if _, err := m.Release(lock.ID, "impostor"); !errors.Is(err, types.ErrPermissionDenied) {
		t.Errorf("expected permission denied for wrong holder, got %v", err)
	}
	if ok, err := m.Release(lock.ID, "a"); err != nil || !ok {
		t.Fatalf("release: ok=%v err=%v", ok, err)
	}
	// Idempotent on an already-released id
	if ok, err := m.Release(lock.ID, "a"); err != nil || ok {
		t.Errorf("second release should be a no-op, got ok=%v err=%v", ok, err)
	}
	if _, err := m.Release("missing", ""); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSweepExpiresAndPromotes(t *testing.T) {
	m := newTestManager(t)

	holder, err := m.Acquire("proj-1", "holder", "/e.py", KindWrite, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	waiter := mustAcquire(t, m, "waiter", "/e.py", KindWrite)
	if waiter.Status != StatusPending {
		t.Fatal("second writer should queue")
	}

	// Nothing has expired yet.
	if n := m.Sweep(time.Now()); n != 0 {
		t.Fatalf("premature sweep expired %d locks", n)
	}

	if n := m.Sweep(time.Now().Add(2 * time.Second)); n != 1 {
		t.Fatalf("expected 1 expiry, got %d", n)
	}
	locks, _ := m.PathLocks("proj-1", "/e.py")
	if len(locks) != 1 || locks[0].ID != waiter.ID || locks[0].Status != StatusActive {
		t.Errorf("waiter should hold the lock after expiry, got %+v", locks)
	}
	_ = holder
}

func TestForceRelease(t *testing.T) {
	m := newTestManager(t)
	mustAcquire(t, m, "runaway", "/f1", KindWrite)
	mustAcquire(t, m, "runaway", "/f2", KindWrite)
	blocked := mustAcquire(t, m, "patient", "/f1", KindRead)

	if n := m.ForceRelease("runaway"); n != 2 {
		t.Fatalf("expected 2 released, got %d", n)
	}
	locks, _ := m.PathLocks("proj-1", "/f1")
	if len(locks) != 1 || locks[0].ID != blocked.ID || locks[0].Status != StatusActive {
		t.Errorf("waiter should be promoted after force release, got %+v", locks)
	}
	if got := m.AgentLocks("runaway"); len(got) != 0 {
		t.Errorf("runaway should hold nothing, got %+v", got)
	}
}

func TestCheckAccess(t *testing.T) {
	m := newTestManager(t)
	mustAcquire(t, m, "owner", "/g.py", KindWrite)

	check, err := m.CheckAccess("proj-1", "someone", "/g.py", KindRead)
	if err != nil {
		t.Fatal(err)
	}
	if check.Allowed || len(check.BlockingLocks) != 1 {
		t.Errorf("read should be blocked by the writer: %+v", check)
	}

	check, err = m.CheckAccess("proj-1", "owner", "/g.py", KindWrite)
	if err != nil {
		t.Fatal(err)
	}
	if !check.Allowed {
		t.Error("holder's own lock must not block it")
	}

	check, _ = m.CheckAccess("proj-1", "someone", "/other.py", KindWrite)
	if !check.Allowed {
		t.Error("unlocked path should be accessible")
	}
}

func TestPathNormalization(t *testing.T) {
	m := newTestManager(t)
	mustAcquire(t, m, "a", "src/../a.py", KindWrite)

	// The same file under another spelling hits the same queue.
	dup := mustAcquire(t, m, "b", "/a.py", KindWrite)
	if dup.Status != StatusPending {
		t.Errorf("normalized paths must share a queue, got %s", dup.Status)
	}
}

func TestRestartRestoresQueues(t *testing.T) {
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	store, err := NewStore(conn)
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(store, 30*time.Minute)
	held, err := m.Acquire("proj-1", "a", "/h.py", KindWrite, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Acquire("proj-1", "b", "/h.py", KindWrite, time.Minute); err != nil {
		t.Fatal(err)
	}

	// A fresh manager over the same store sees the same state.
	m2 := NewManager(store, 30*time.Minute)
	if err := m2.Load(); err != nil {
		t.Fatal(err)
	}
	if ok, err := m2.Release(held.ID, "a"); err != nil || !ok {
		t.Fatalf("release on restored manager: ok=%v err=%v", ok, err)
	}
	locks, _ := m2.PathLocks("proj-1", "/h.py")
	if len(locks) != 1 || locks[0].AgentID != "b" || locks[0].Status != StatusActive {
		t.Errorf("restored queue should promote b, got %+v", locks)
	}
}

func TestDetectMultipleWriters(t *testing.T) {
	m := NewManager(nil, time.Minute)

	// Manufacture the should-never-happen state directly.
	a := &FileLock{ID: "l1", ProjectID: "p", AgentID: "a", Path: "/x", Kind: KindWrite, Status: StatusActive, AcquiredAt: time.Now()}
	b := &FileLock{ID: "l2", ProjectID: "p", AgentID: "b", Path: "/x", Kind: KindExclusive, Status: StatusActive, AcquiredAt: time.Now()}
	m.byID[a.ID], m.byID[b.ID] = a, b
	key := lockKey("p", "/x")
	m.active[key] = []*FileLock{a, b}

	conflicts, err := m.DetectConflicts("p", "/x")
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 1 || conflicts[0].Kind != "multiple_writers" {
		t.Errorf("expected multiple_writers conflict, got %+v", conflicts)
	}
}
