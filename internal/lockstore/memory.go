package lockstore

import (
	"context"
	"sync"
	"time"
)

type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.held[key]; ok && now.Before(exp) {
		return false, nil
	}
	for k, exp := range m.held {
		if !now.Before(exp) {
			delete(m.held, k)
		}
	}
	m.held[key] = now.Add(ttlOrDefault(ttl))
	return true, nil
}

func (m *MemoryLocker) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.held, key)
	m.mu.Unlock()
	return nil
}
