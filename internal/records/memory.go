// Package records implements catalog.RecordStore on PostgreSQL and in memory.
package records

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/catalog"
)

// Memory is an in-process record store with the same versioning rules as
// Postgres. Items are stored by value, so callers never share state with it.
type Memory struct {
	mu    sync.RWMutex
	items map[string]catalog.Item
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]catalog.Item),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Save(ctx context.Context, item catalog.Item) (catalog.Item, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Item{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if item.ID == "" {
		item.ID = uuid.NewString()
		item.Version = 1
		item.CreatedAt = now
		item.UpdatedAt = now
		m.items[item.ID] = item
		return item, nil
	}

	cur, ok := m.items[item.ID]
	if !ok {
		return catalog.Item{}, fmt.Errorf("item %s: %w", item.ID, catalog.ErrNotFound)
	}
	if cur.Version != item.Version {
		return catalog.Item{}, fmt.Errorf("item %s at version %d, have %d: %w", item.ID, cur.Version, item.Version, catalog.ErrConflict)
	}
	item.Version = cur.Version + 1
	item.CreatedAt = cur.CreatedAt
	item.UpdatedAt = now
	m.items[item.ID] = item
	return item, nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (catalog.Item, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Item{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return catalog.Item{}, fmt.Errorf("item %s: %w", id, catalog.ErrNotFound)
	}
	return item, nil
}

// FindAll returns items oldest first.
func (m *Memory) FindAll(ctx context.Context) ([]catalog.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	items := make([]catalog.Item, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, it)
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (m *Memory) DeleteByID(ctx context.Context, id string, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, catalog.ErrNotFound)
	}
	if cur.Version != version {
		return fmt.Errorf("item %s at version %d, have %d: %w", id, cur.Version, version, catalog.ErrConflict)
	}
	delete(m.items, id)
	return nil
}
