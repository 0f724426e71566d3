// README: Ride store contract and the in-memory implementation.
package ride

import (
	"context"
	"sync"

	"rideshare/internal/types"
)

// Store is durable keyed storage of rides. Writes are full-record replacements.
type Store interface {
	// Create persists a new ride, assigning its id and initial version.
	Create(ctx context.Context, r *Ride) (types.ID, error)
	// Get returns ErrNotFound when the ride is absent.
	Get(ctx context.Context, id types.ID) (*Ride, error)
	// Replace writes r only if the stored version still equals expected. On success r.Version
	// holds the new version.
	Replace(ctx context.Context, r *Ride, expected int64) (bool, error)
	// Delete removes the ride; deleting an absent ride succeeds.
	Delete(ctx context.Context, id types.ID) error
	// DeleteIf removes the ride only if the stored version equals expected.
	DeleteIf(ctx context.Context, id types.ID, expected int64) (bool, error)
	ListByAccepted(ctx context.Context, accepted bool) ([]*Ride, error)
}

type MemoryStore struct {
	mu    sync.RWMutex
	rides map[types.ID]*Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[types.ID]*Ride)}
}

func (m *MemoryStore) Create(_ context.Context, r *Ride) (types.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = types.NewID()
	}
	r.Version = 1
	m.rides[r.ID] = r.Clone()
	return r.ID, nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) Replace(_ context.Context, r *Ride, expected int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rides[r.ID]
	if !ok || cur.Version != expected {
		return false, nil
	}
	r.Version = expected + 1
	m.rides[r.ID] = r.Clone()
	return true, nil
}

func (m *MemoryStore) Delete(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rides, id)
	return nil
}

func (m *MemoryStore) DeleteIf(_ context.Context, id types.ID, expected int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rides[id]
	if !ok || cur.Version != expected {
		return false, nil
	}
	delete(m.rides, id)
	return true, nil
}

func (m *MemoryStore) ListByAccepted(_ context.Context, accepted bool) ([]*Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Ride, 0, len(m.rides))
	for _, r := range m.rides {
		if r.Accepted == accepted {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}
