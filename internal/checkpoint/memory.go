package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It is not durable and exists for tests
// and one-shot runs.
type MemoryStore struct {
	mu      sync.Mutex
	epochs  map[string]int64
	history map[string][]Checkpoint
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		epochs:  make(map[string]int64),
		history: make(map[string][]Checkpoint),
	}
}

func (m *MemoryStore) Acquire(_ context.Context, runID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epochs[runID]++
	return m.epochs[runID], nil
}

func (m *MemoryStore) Revoke(_ context.Context, runID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	revoked, ok := m.epochs[runID]
	if !ok {
		return 0, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	m.epochs[runID]++

	h := m.history[runID]
	if len(h) > 0 && h[len(h)-1].Status != StatusCompleted {
		latest := copyCheckpoint(h[len(h)-1])
		latest.Seq = int64(len(h)) + 1
		latest.Epoch = m.epochs[runID]
		latest.Status = StatusCancelled
		latest.UpdatedAt = time.Now().UTC()
		m.history[runID] = append(h, latest)
	}
	return revoked, nil
}

func (m *MemoryStore) Save(_ context.Context, cp Checkpoint) (Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.epochs[cp.RunID]; cp.Epoch != current {
		return Checkpoint{}, fmt.Errorf("%w: run %s epoch %d, current %d", ErrStaleEpoch, cp.RunID, cp.Epoch, current)
	}

	cp = copyCheckpoint(cp)
	cp.Seq = int64(len(m.history[cp.RunID])) + 1
	cp.UpdatedAt = time.Now().UTC()
	m.history[cp.RunID] = append(m.history[cp.RunID], cp)
	return copyCheckpoint(cp), nil
}

func (m *MemoryStore) Load(_ context.Context, runID string) (Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.history[runID]
	if len(h) == 0 {
		return Checkpoint{}, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return copyCheckpoint(h[len(h)-1]), nil
}

func (m *MemoryStore) History(_ context.Context, runID string) ([]Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.history[runID]
	out := make([]Checkpoint, len(h))
	for i, cp := range h {
		out[i] = copyCheckpoint(cp)
	}
	return out, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Summary
	for _, h := range m.history {
		if len(h) > 0 {
			out = append(out, Summarize(h[len(h)-1]))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].RunID > out[j].RunID
	})
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func copyCheckpoint(cp Checkpoint) Checkpoint {
	cp.State = cp.State.Clone()
	return cp
}
