package preferences

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Preferences
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Preferences)}
}

// Get returns the stored preferences for a visitor.
func (r *MemoryRepo) Get(ctx context.Context, visitorID string) (Preferences, error) {
	if err := ctx.Err(); err != nil {
		return Preferences{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.data[visitorID]
	if !ok {
		return Preferences{}, ErrNotFound
	}
	return p, nil
}

// Upsert stores the preferences for a visitor.
func (r *MemoryRepo) Upsert(ctx context.Context, p Preferences) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[p.VisitorID] = p
	return nil
}
