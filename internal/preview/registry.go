package preview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cvalue-web/internal/render"
	"cvalue-web/internal/shared/metrics"
	"cvalue-web/internal/shared/telemetry"
	"cvalue-web/internal/transport"
)

const defaultTTL = 30 * time.Minute

// ErrNotFound is returned for unknown views or views owned by someone else.
var ErrNotFound = errors.New("preview not found")

type entry struct {
	view     *View
	lastSeen time.Time
}

// Registry holds the open views and tears down idle ones.
type Registry struct {
	deps Deps
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	views map[string]*entry
}

// NewRegistry constructs a Registry. Views idle for longer than ttl are closed by Sweep.
func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Registry{
		deps:  deps,
		ttl:   ttl,
		now:   time.Now,
		views: make(map[string]*entry),
	}
}

// Create opens a view for the session. The view is not loaded yet.
func (r *Registry) Create(owner, serviceType string, session transport.UploadSession, device render.Device) (*View, error) {
	if strings.TrimSpace(session.SessionID) == "" {
		return nil, ErrSessionMissing
	}
	v := newView(uuid.NewString(), owner, serviceType, session, device, r.deps)

	r.mu.Lock()
	r.views[v.id] = &entry{view: v, lastSeen: r.now()}
	r.mu.Unlock()

	metrics.PreviewOpened()
	telemetry.Info("preview.opened", map[string]any{
		"preview_id": v.id,
		"visitor_id": owner,
		"session_id": session.SessionID,
		"mobile":     device.Mobile,
	})
	return v, nil
}

// Get returns the owner's view and marks it as recently used.
func (r *Registry) Get(owner, id string) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.views[id]
	if !ok || e.view.Owner() != owner {
		return nil, ErrNotFound
	}
	e.lastSeen = r.now()
	return e.view, nil
}

// Remove closes and forgets the owner's view.
func (r *Registry) Remove(ctx context.Context, owner, id string) error {
	r.mu.Lock()
	e, ok := r.views[id]
	if !ok || e.view.Owner() != owner {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.views, id)
	r.mu.Unlock()

	metrics.PreviewClosed()
	return e.view.Close(ctx)
}

// Sweep closes views idle for longer than the TTL and returns how many were closed.
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.ttl)
	var expired []*View

	r.mu.Lock()
	for id, e := range r.views {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e.view)
			delete(r.views, id)
		}
	}
	r.mu.Unlock()

	for _, v := range expired {
		metrics.PreviewClosed()
		if err := v.Close(ctx); err != nil {
			telemetry.Error("preview.expire.failed", map[string]any{
				"preview_id": v.id,
				"err":        err,
			})
		}
	}
	if len(expired) > 0 {
		telemetry.Info("preview.expired", map[string]any{"count": len(expired)})
	}
	return len(expired)
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(context.WithoutCancel(ctx))
		}
	}
}

// CloseAll closes every view, e.g. on shutdown.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	views := make([]*View, 0, len(r.views))
	for _, e := range r.views {
		views = append(views, e.view)
	}
	r.views = make(map[string]*entry)
	r.mu.Unlock()

	var errs []error
	for _, v := range views {
		metrics.PreviewClosed()
		if err := v.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of open views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
