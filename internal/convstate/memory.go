package convstate

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests.
type Memory struct {
	mu   sync.Mutex
	byID map[string]Context
}

func NewMemory() *Memory {
	return &Memory{byID: map[string]Context{}}
}

func (m *Memory) Insert(ctx context.Context, c Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.CallID] = c
	return nil
}

func (m *Memory) GetByCallID(ctx context.Context, callID string) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[callID]
	if !ok {
		return Context{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) UpdateHistory(ctx context.Context, callID string, history []Turn, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[callID]
	if !ok {
		return ErrNotFound
	}
	c.History = history
	c.UpdatedAt = now
	m.byID[callID] = c
	return nil
}

func (m *Memory) Delete(ctx context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, callID)
	return nil
}
