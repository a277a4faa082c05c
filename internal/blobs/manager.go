package blobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cvalue-web/internal/shared/metrics"
	"cvalue-web/internal/shared/storage/object"
	"cvalue-web/internal/shared/telemetry"
	"cvalue-web/internal/shared/util"
	"cvalue-web/internal/transport"
)

// DefaultBasePath is where blob handles are served.
const DefaultBasePath = "/api/v1/blobs"

var (
	// ErrNotLive is returned when a handle was never issued or is already released.
	ErrNotLive = errors.New("blob handle is not live")
	// ErrEmptyBlob is returned when materializing a blob without data.
	ErrEmptyBlob = errors.New("blob is empty")
)

// Handle is a short-lived URL referencing stored bytes.
type Handle struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	Owner       string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`

	storageKey string
}

// Manager issues and revokes blob handles backed by an object store.
type Manager struct {
	store    object.ObjectStore
	basePath string
	now      func() time.Time

	mu   sync.Mutex
	live map[string]Handle
}

// NewManager constructs a Manager serving handles under basePath.
func NewManager(store object.ObjectStore, basePath string) *Manager {
	basePath = strings.TrimRight(basePath, "/")
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &Manager{
		store:    store,
		basePath: basePath,
		now:      time.Now,
		live:     make(map[string]Handle),
	}
}

// Materialize stores the blob and returns a live handle for it.
func (m *Manager) Materialize(ctx context.Context, owner string, b transport.Blob) (Handle, error) {
	if len(b.Data) == 0 {
		return Handle{}, ErrEmptyBlob
	}
	id := uuid.NewString()
	name, err := util.SanitizeFileName(b.Filename)
	if err != nil {
		name = "document.pdf"
	}
	key := path.Join("blobs", util.HashOwnerKey(owner), id+"_"+name)
	contentType := b.ContentType
	if contentType == "" {
		contentType = transport.PDFContentType
	}

	n, err := m.store.SaveWithKey(ctx, key, contentType, bytes.NewReader(b.Data))
	if err != nil {
		return Handle{}, fmt.Errorf("store blob: %w", err)
	}

	h := Handle{
		ID:          id,
		URL:         m.basePath + "/" + id,
		ContentType: contentType,
		Filename:    b.Filename,
		Size:        n,
		Owner:       owner,
		CreatedAt:   m.now().UTC(),
		storageKey:  key,
	}
	m.mu.Lock()
	m.live[id] = h
	m.mu.Unlock()

	metrics.BlobMaterialized()
	telemetry.Info("blob.materialized", map[string]any{
		"blob_id": id,
		"owner":   owner,
		"bytes":   n,
	})
	return h, nil
}

// HandleID extracts the handle id from a handle URL, ignoring any fragment
// or query such as the viewer's "#toolbar=0" suffix.
func (m *Manager) HandleID(rawURL string) (string, bool) {
	u, _, _ := strings.Cut(rawURL, "#")
	u, _, _ = strings.Cut(u, "?")
	id, ok := strings.CutPrefix(u, m.basePath+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Release revokes a handle. A second release returns ErrNotLive without touching storage.
func (m *Manager) Release(ctx context.Context, rawURL string) error {
	id, ok := m.HandleID(rawURL)
	if !ok {
		return ErrNotLive
	}
	m.mu.Lock()
	h, ok := m.live[id]
	if ok {
		delete(m.live, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotLive
	}

	metrics.BlobReleased()
	if err := m.store.Delete(ctx, h.storageKey); err != nil && !errors.Is(err, object.ErrNotFound) {
		telemetry.Error("blob.release.failed", map[string]any{
			"blob_id": id,
			"owner":   h.Owner,
			"err":     err,
		})
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	telemetry.Info("blob.released", map[string]any{
		"blob_id": id,
		"owner":   h.Owner,
	})
	return nil
}

// Open returns a live handle owned by owner and a reader over its bytes.
// Handles of other owners are reported as ErrNotLive.
func (m *Manager) Open(ctx context.Context, owner, id string) (Handle, io.ReadCloser, error) {
	m.mu.Lock()
	h, ok := m.live[id]
	m.mu.Unlock()
	if !ok || owner == "" || h.Owner != owner {
		return Handle{}, nil, ErrNotLive
	}
	rc, err := m.store.Open(ctx, h.storageKey)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return Handle{}, nil, ErrNotLive
		}
		return Handle{}, nil, fmt.Errorf("open blob %s: %w", id, err)
	}
	return h, rc, nil
}

// Live reports the number of outstanding handles.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// NewScope creates a scope whose handles are released together.
func (m *Manager) NewScope(owner string) *Scope {
	return &Scope{manager: m, owner: owner, ids: make(map[string]struct{})}
}
