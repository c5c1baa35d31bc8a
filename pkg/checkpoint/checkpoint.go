// Package checkpoint persists the last delivered update id per bot so polling can
// resume after a restart without replaying acknowledged updates.
package checkpoint

import (
	"context"
	"sync"
)

// Store loads and saves cursors by key (usually the bot username).
type Store interface {
	Load(ctx context.Context, key string) (int, bool, error)
	Save(ctx context.Context, key string, updateID int) error
}

// Memory is an in-process Store. Saved values never move backwards.
type Memory struct {
	mu      sync.RWMutex
	cursors map[string]int
}

func NewMemory() *Memory {
	return &Memory{cursors: make(map[string]int)}
}

func (m *Memory) Load(_ context.Context, key string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.cursors[key]
	return value, ok, nil
}

func (m *Memory) Save(_ context.Context, key string, updateID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.cursors[key]; ok && current >= updateID {
		return nil
	}
	m.cursors[key] = updateID
	return nil
}
