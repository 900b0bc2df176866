package store

import (
	"context"
	"sync"

	"plantroom/pkg/domain"
)

// MemoryStore keeps rooms in-process. Contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]Snapshot
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]Snapshot)}
}

// GetRoom returns a copy of the stored room.
func (m *MemoryStore) GetRoom(_ context.Context, id string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.rooms[id]
	if !ok {
		return Snapshot{}, false, nil
	}
	return Snapshot{Room: snap.Room.Clone(), Revision: snap.Revision}, true, nil
}

// PutRoom stores a copy of room when expectedRevision is current.
func (m *MemoryStore) PutRoom(_ context.Context, room domain.Room, expectedRevision string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[room.ID].Revision != expectedRevision {
		return "", ErrRevisionConflict
	}
	rev := newRevision()
	m.rooms[room.ID] = Snapshot{Room: room.Clone(), Revision: rev}
	return rev, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
