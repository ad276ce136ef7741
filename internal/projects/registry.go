// internal/projects/registry.go
package projects

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcoord/internal/types"
)

// Registry is the in-memory project index backed by the sqlite store
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Project
	store    *SQLiteStore
	onChange func(*Project)
}

// NewRegistry creates a project registry
func NewRegistry(store *SQLiteStore) *Registry {
	return &Registry{
		byID:  make(map[string]*Project),
		store: store,
	}
}

// OnChange registers an observer invoked after every project mutation
func (r *Registry) OnChange(fn func(*Project)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Load restores projects from the store
func (r *Registry) Load() error {
	all, err := r.store.LoadAll()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range all {
		r.byID[p.ID] = p
	}
	if len(all) > 0 {
		log.Printf("[PROJECTS] Restored %d projects", len(all))
	}
	return nil
}

// Create registers a new project. An empty id gets a generated one.
func (r *Registry) Create(id, name, description string, metadata map[string]string) (*Project, error) {
	if name == "" {
		return nil, types.InvalidArgumentf("project name is required")
	}
	if id == "" {
		id = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; ok {
		return nil, types.Conflictf("project %s already exists", id)
	}

	p := &Project{
		ID:          id,
		Name:        name,
		Description: description,
		Status:      StatusActive,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}
	if err := r.store.Save(p); err != nil {
		return nil, err
	}
	r.byID[id] = p
	r.notifyLocked(p)

	log.Printf("[PROJECTS] Created project %s (%s)", p.Name, p.ID)
	return r.cloneLocked(p), nil
}

// Get returns a project by id
func (r *Registry) Get(id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, types.NotFoundf("project %s not found", id)
	}
	return r.cloneLocked(p), nil
}

// List returns projects ordered by creation time. Archived projects are
// included only when includeArchived is set.
func (r *Registry) List(includeArchived bool) []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Project
	for _, p := range r.byID {
		if p.Status == StatusArchived && !includeArchived {
			continue
		}
		out = append(out, r.cloneLocked(p))
	}
	sortProjects(out)
	return out
}

// Archive marks a project archived. Archival is the only way a project
// is destroyed; archiving twice is a conflict.
func (r *Registry) Archive(id string) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, types.NotFoundf("project %s not found", id)
	}
	if p.Status == StatusArchived {
		return nil, types.Conflictf("project %s is already archived", id)
	}

	now := time.Now()
	p.Status = StatusArchived
	p.ArchivedAt = &now
	if err := r.store.Save(p); err != nil {
		return nil, err
	}
	r.notifyLocked(p)

	log.Printf("[PROJECTS] Archived project %s", id)
	return r.cloneLocked(p), nil
}

func (r *Registry) notifyLocked(p *Project) {
	if r.onChange != nil {
		r.onChange(r.cloneLocked(p))
	}
}

func (r *Registry) cloneLocked(p *Project) *Project {
	cp := *p
	if p.ArchivedAt != nil {
		t := *p.ArchivedAt
		cp.ArchivedAt = &t
	}
	return &cp
}

func sortProjects(ps []*Project) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}
