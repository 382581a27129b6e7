package taskstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/foundry/internal/model"
)

// MemoryStore is an in-process Store used by tests and the --tracker=memory
// dry-run mode. It is safe for concurrent use.
type MemoryStore struct {
	mu         sync.Mutex
	nextID     int
	units      map[int]*model.WorkUnit
	comments   map[int][]string
	changeSets map[int]*model.ChangeSet
	reviews    map[int]model.ReviewState
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:     1,
		units:      make(map[int]*model.WorkUnit),
		comments:   make(map[int][]string),
		changeSets: make(map[int]*model.ChangeSet),
		reviews:    make(map[int]model.ReviewState),
	}
}

func (m *MemoryStore) ListUnits(ctx context.Context, filter UnitFilter) ([]*model.WorkUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := filter.State
	if state == "" {
		state = model.UnitOpen
	}

	var out []*model.WorkUnit
	for _, u := range m.units {
		if u.State != state {
			continue
		}
		if !hasAllLabels(u, filter.Labels) {
			continue
		}
		if filter.Unassigned && u.Assignee() != "" {
			continue
		}
		out = append(out, cloneUnit(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetUnit(ctx context.Context, id int) (*model.WorkUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.units[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUnit(u), nil
}

func (m *MemoryStore) CreateUnit(ctx context.Context, title, body string, labels []string) (*model.WorkUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	u := &model.WorkUnit{
		ID:        m.nextID,
		Title:     title,
		Body:      body,
		State:     model.UnitOpen,
		Labels:    append([]string(nil), labels...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.nextID++
	m.units[u.ID] = u
	return cloneUnit(u), nil
}

func (m *MemoryStore) UpdateLabels(ctx context.Context, id int, add, remove []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.units[id]
	if !ok {
		return ErrNotFound
	}
	for _, l := range add {
		if !u.HasLabel(l) {
			u.Labels = append(u.Labels, l)
		}
	}
	for _, l := range remove {
		for i, have := range u.Labels {
			if have == l {
				u.Labels = append(u.Labels[:i], u.Labels[i+1:]...)
				break
			}
		}
	}
	u.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) AddComment(ctx context.Context, id int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.units[id]; !ok {
		return ErrNotFound
	}
	m.comments[id] = append(m.comments[id], body)
	return nil
}

// Comments returns the comments recorded on a unit, for test assertions.
func (m *MemoryStore) Comments(id int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.comments[id]...)
}

func (m *MemoryStore) CloseUnit(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.units[id]
	if !ok {
		return ErrNotFound
	}
	u.State = model.UnitClosed
	u.UpdatedAt = time.Now()
	return nil
}

// AddChangeSet registers a change set for tests and dry runs.
func (m *MemoryStore) AddChangeSet(cs *model.ChangeSet, review model.ReviewState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *cs
	m.changeSets[cs.ID] = &cp
	m.reviews[cs.ID] = review
}

func (m *MemoryStore) ListOpenChangeSets(ctx context.Context) ([]*model.ChangeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.ChangeSet
	for _, cs := range m.changeSets {
		if cs.Merged || cs.Closed {
			continue
		}
		cp := *cs
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetReviewState(ctx context.Context, id int) (model.ReviewState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.changeSets[id]; !ok {
		return "", ErrNotFound
	}
	if r, ok := m.reviews[id]; ok {
		return r, nil
	}
	return model.ReviewPending, nil
}

func (m *MemoryStore) Merge(ctx context.Context, id int, strategy model.MergeStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.changeSets[id]
	if !ok {
		return ErrNotFound
	}
	cs.Merged = true
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func hasAllLabels(u *model.WorkUnit, labels []string) bool {
	for _, l := range labels {
		if !u.HasLabel(l) {
			return false
		}
	}
	return true
}

func cloneUnit(u *model.WorkUnit) *model.WorkUnit {
	cp := *u
	cp.Labels = append([]string(nil), u.Labels...)
	return &cp
}
