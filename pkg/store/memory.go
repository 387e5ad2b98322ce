package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in process. Used by the local chat command and
// tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[Key]Snapshot
	// FailWith, when set, is returned wrapped in ErrUnavailable by every call.
	FailWith error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[Key]Snapshot)}
}

func (m *MemoryStore) fail(op string) error {
	if m.FailWith == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, m.FailWith)
}

func (m *MemoryStore) Load(ctx context.Context, key Key) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("load state"); err != nil {
		return Snapshot{}, err
	}
	snap, ok := m.items[key]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

func (m *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	if !snap.Key.Valid() {
		return fmt.Errorf("save state: invalid key %q", snap.Key.String())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("save state"); err != nil {
		return err
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	m.items[snap.Key] = cloneSnapshot(snap)
	return nil
}

func (m *MemoryStore) ListSession(ctx context.Context, sessionID string) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("list session"); err != nil {
		return nil, err
	}
	var out []Snapshot
	for k, snap := range m.items {
		if k.SessionID == sessionID {
			out = append(out, cloneSnapshot(snap))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete session"); err != nil {
		return 0, err
	}
	n := 0
	for k := range m.items {
		if k.SessionID == sessionID {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneSnapshot(s Snapshot) Snapshot {
	s.State = append([]byte(nil), s.State...)
	return s
}
