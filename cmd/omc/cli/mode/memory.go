package mode

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and embedding. All returned
// states are clones; callers never share memory with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]map[Mode]*State
	slots  map[string]Mode
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]map[Mode]*State),
		slots:  make(map[string]Mode),
	}
}

func (ms *MemoryStore) Save(_ context.Context, state *State) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	byMode, ok := ms.states[state.SessionID]
	if !ok {
		byMode = make(map[Mode]*State)
		ms.states[state.SessionID] = byMode
	}
	byMode[state.Mode] = state.clone()
	return nil
}

func (ms *MemoryStore) Load(_ context.Context, sessionID string, m Mode) (*State, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	state, ok := ms.states[sessionID][m]
	if !ok {
		return nil, nil
	}
	return state.clone(), nil
}

func (ms *MemoryStore) List(_ context.Context, sessionID string) ([]*State, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return sortStates(ms.states[sessionID]), nil
}

func (ms *MemoryStore) ListAll(_ context.Context) ([]*State, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var out []*State
	for _, byMode := range ms.states {
		out = append(out, sortStates(byMode)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActivatedAt.Equal(out[j].ActivatedAt) {
			if out[i].SessionID == out[j].SessionID {
				return out[i].Mode < out[j].Mode
			}
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].ActivatedAt.Before(out[j].ActivatedAt)
	})
	return out, nil
}

func (ms *MemoryStore) Delete(_ context.Context, sessionID string, m Mode) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.states[sessionID], m)
	if ms.slots[sessionID] == m {
		delete(ms.slots, sessionID)
	}
	return nil
}

func (ms *MemoryStore) AcquireSlot(_ context.Context, sessionID string, m Mode) (Mode, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if holder, ok := ms.slots[sessionID]; ok {
		return holder, nil
	}
	ms.slots[sessionID] = m
	return m, nil
}

func (ms *MemoryStore) ReleaseSlot(_ context.Context, sessionID string, m Mode) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.slots[sessionID] == m {
		delete(ms.slots, sessionID)
	}
	return nil
}

func (ms *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	removed := 0
	for sessionID, byMode := range ms.states {
		for m, state := range byMode {
			if state.ActivatedAt.Before(cutoff) {
				delete(byMode, m)
				removed++
			}
		}
		if len(byMode) == 0 {
			delete(ms.states, sessionID)
		}
	}
	for sessionID, holder := range ms.slots {
		if _, ok := ms.states[sessionID][holder]; !ok {
			delete(ms.slots, sessionID)
		}
	}
	return removed, nil
}

func sortStates(byMode map[Mode]*State) []*State {
	var out []*State
	for _, state := range byMode {
		out = append(out, state.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActivatedAt.Equal(out[j].ActivatedAt) {
			return out[i].Mode < out[j].Mode
		}
		return out[i].ActivatedAt.Before(out[j].ActivatedAt)
	})
	return out
}
