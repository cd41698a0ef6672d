package state

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/mithrel/pushline/pkg/api"
)

type memStore struct {
	mu   sync.RWMutex
	byID map[string]api.State
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]api.State)}
}

func (m *memStore) Load(ctx context.Context, id string) (api.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.byID[id]
	if !ok {
		return api.State{}, api.ErrStateNotFound
	}
	return clone(st), nil
}

func (m *memStore) Save(ctx context.Context, st api.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[st.ConnectionID] = clone(st)
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return api.ErrStateNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memStore) List(ctx context.Context) ([]api.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]api.State, 0, len(m.byID))
	for _, st := range m.byID {
		out = append(out, clone(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out, nil
}

func (m *memStore) Close() error { return nil }

func clone(st api.State) api.State {
	if st.MessageID != nil {
		id := *st.MessageID
		st.MessageID = &id
	}
	st.Groups = slices.Clone(st.Groups)
	return st
}
