package blobs

import (
	"context"
	"errors"
	"sync"

	"cvalue-web/internal/transport"
)

// Scope tracks the handles created by one preview view so they can be
// released exactly once when the view goes away.
type Scope struct {
	manager *Manager
	owner   string

	mu  sync.Mutex
	ids map[string]struct{}
}

// Materialize creates a handle owned by the scope.
func (s *Scope) Materialize(ctx context.Context, b transport.Blob) (Handle, error) {
	h, err := s.manager.Materialize(ctx, s.owner, b)
	if err != nil {
		return Handle{}, err
	}
	s.mu.Lock()
	s.ids[h.ID] = struct{}{}
	s.mu.Unlock()
	return h, nil
}

// Release revokes one handle of this scope.
func (s *Scope) Release(ctx context.Context, rawURL string) error {
	id, ok := s.manager.HandleID(rawURL)
	if !ok {
		return ErrNotLive
	}
	s.mu.Lock()
	_, owned := s.ids[id]
	delete(s.ids, id)
	s.mu.Unlock()
	if !owned {
		return ErrNotLive
	}
	return s.manager.Release(ctx, s.manager.basePath+"/"+id)
}

// ReleaseAll revokes every outstanding handle of the scope. Calling it again is a no-op.
func (s *Scope) ReleaseAll(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	s.ids = make(map[string]struct{})
	s.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := s.manager.Release(ctx, s.manager.basePath+"/"+id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Live reports the number of outstanding handles in the scope.
func (s *Scope) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Owner returns the scope owner.
func (s *Scope) Owner() string { return s.owner }
