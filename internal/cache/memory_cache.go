package cache

import (
	"context"
	"sync"
	"time"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
)

// MemoryDueCache is a process-local DueCache for single-instance deployments.
type MemoryDueCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	gens    map[string]int64
	now     func() time.Time
}

type memoryEntry struct {
	board     domain.DueBoard
	expiresAt time.Time
}

func NewMemoryDueCache() *MemoryDueCache {
	return &MemoryDueCache{
		entries: make(map[string]memoryEntry),
		gens:    make(map[string]int64),
		now:     time.Now,
	}
}

func (c *MemoryDueCache) Get(_ context.Context, key string) (*domain.DueBoard, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	board := entry.board
	board.Customers = append([]domain.CustomerDue(nil), entry.board.Customers...)
	return &board, true, nil
}

func (c *MemoryDueCache) Set(_ context.Context, key string, value *domain.DueBoard, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	board := *value
	board.Customers = append([]domain.CustomerDue(nil), value.Customers...)
	c.entries[key] = memoryEntry{board: board, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryDueCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryDueCache) Generation(_ context.Context, scope string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[scope], nil
}

func (c *MemoryDueCache) Bump(_ context.Context, scope string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[scope]++
	return c.gens[scope], nil
}
