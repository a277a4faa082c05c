package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"cvalue-web/internal/blobs"
	"cvalue-web/internal/payment"
	"cvalue-web/internal/render"
	"cvalue-web/internal/shared/telemetry"
	"cvalue-web/internal/transport"
)

// downloadConcurrency bounds parallel artifact downloads of one view.
const downloadConcurrency = 2

var (
	// ErrSessionMissing means the view was opened without an upload session.
	ErrSessionMissing = errors.New("upload session is missing")
	// ErrClosed is returned by operations on a closed view.
	ErrClosed = errors.New("preview is closed")
	// ErrUnknownArtifact is returned for artifact names the session does not carry.
	ErrUnknownArtifact = errors.New("unknown artifact")
	// ErrNotReady is returned when an artifact has not been loaded yet.
	ErrNotReady = errors.New("preview is not ready")
	// ErrStale means a newer selection superseded this one.
	ErrStale = errors.New("superseded by a newer selection")
	// ErrPaymentRequired is returned when downloading an unpaid artifact.
	ErrPaymentRequired = errors.New("payment required")
)

// Status is the lifecycle state of a view.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
	StatusClosed  Status = "closed"
)

// Downloader fetches generated documents.
type Downloader interface {
	Download(ctx context.Context, sessionID, filename string) (transport.Blob, error)
}

// Renderer turns a loaded document into a presentation.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (render.Preview, error)
}

// Deps are the collaborators shared by every view.
type Deps struct {
	Downloader Downloader
	Renderer   Renderer
	Blobs      *blobs.Manager
	Authorizer payment.Authorizer
	Amount     int
	Currency   string
	// DownloadPath builds the paid download URL for an artifact.
	DownloadPath func(viewID, artifact string) string
}

type artifactState struct {
	transport.Artifact
	handle blobs.Handle
	data   []byte
}

// ArtifactView is the client-facing state of one artifact.
type ArtifactView struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	URL         string `json:"url,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Paid        bool   `json:"paid"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// Snapshot is the serialisable state of a view.
type Snapshot struct {
	ID          string          `json:"id"`
	ServiceType string          `json:"serviceType"`
	SessionID   string          `json:"sessionId"`
	Status      Status          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Retry       bool            `json:"retry"`
	Mobile      bool            `json:"mobile"`
	Selected    string          `json:"selected,omitempty"`
	Artifacts   []ArtifactView  `json:"artifacts"`
	Preview     *render.Preview `json:"preview,omitempty"`
	Payment     payment.Status  `json:"payment"`
}

// View is the preview screen of one upload session. It owns the blob
// handles created for the session and releases them exactly once.
type View struct {
	id          string
	serviceType string
	session     transport.UploadSession
	device      render.Device
	deps        Deps
	scope       *blobs.Scope
	gate        *payment.Gate

	life   context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	status       Status
	message      string
	artifacts    []artifactState
	loadEpoch    uint64
	selected     string
	renderEpoch  uint64
	renderCancel context.CancelFunc
	preview      *render.Preview
	paid         map[string]bool
	closed       bool
}

func newView(id, owner, serviceType string, session transport.UploadSession, device render.Device, deps Deps) *View {
	life, cancel := context.WithCancel(context.Background())
	v := &View{
		id:          id,
		serviceType: serviceType,
		session:     session,
		device:      device,
		deps:        deps,
		scope:       deps.Blobs.NewScope(owner),
		gate:        payment.NewGate(deps.Authorizer, deps.Amount, deps.Currency),
		life:        life,
		cancel:      cancel,
		status:      StatusLoading,
		paid:        make(map[string]bool),
	}
	if len(session.Artifacts) > 0 {
		v.selected = session.Artifacts[0].Name
	}
	return v
}

// ID returns the view id.
func (v *View) ID() string { return v.id }

// Owner returns the visitor that opened the view.
func (v *View) Owner() string { return v.scope.Owner() }

// LiveHandles reports the blob handles the view currently holds.
func (v *View) LiveHandles() int { return v.scope.Live() }

// bind derives a context that ends with either ctx or the view.
func (v *View) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(v.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Load downloads every artifact of the session, materializes each through
// the view's scope and renders the selected one.
func (v *View) Load(ctx context.Context) error {
	if v.session.SessionID == "" {
		return ErrSessionMissing
	}
	if len(v.session.Artifacts) == 0 {
		return v.fail(fmt.Errorf("%w: session has no artifacts", transport.ErrEmptyContent))
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.loadEpoch++
	epoch := v.loadEpoch
	v.status = StatusLoading
	v.message = ""
	v.mu.Unlock()

	ctx, done := v.bind(ctx)
	defer done()

	results := make([]transport.Blob, len(v.session.Artifacts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for i, a := range v.session.Artifacts {
		g.Go(func() error {
			blob, err := v.deps.Downloader.Download(gctx, v.session.SessionID, a.Filename)
			if err != nil {
				return err
			}
			results[i] = blob
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if cerr := v.current(epoch); cerr != nil {
			return cerr
		}
		return v.fail(err)
	}

	if err := v.current(epoch); err != nil {
		return err
	}
	loaded := make([]artifactState, 0, len(results))
	for i, blob := range results {
		h, err := v.scope.Materialize(ctx, blob)
		if err != nil {
			v.discard(ctx, loaded)
			if cerr := v.current(epoch); cerr != nil {
				return cerr
			}
			return v.fail(err)
		}
		loaded = append(loaded, artifactState{Artifact: v.session.Artifacts[i], handle: h, data: blob.Data})
	}

	v.mu.Lock()
	if v.closed || epoch != v.loadEpoch {
		closed := v.closed
		v.mu.Unlock()
		v.discard(ctx, loaded)
		if closed {
			return ErrClosed
		}
		return ErrStale
	}
	prev := v.artifacts
	v.artifacts = loaded
	v.status = StatusReady
	selected := v.selected
	v.mu.Unlock()
	v.discard(ctx, prev)

	telemetry.Info("preview.loaded", map[string]any{
		"preview_id": v.id,
		"session_id": v.session.SessionID,
		"artifacts":  len(loaded),
	})

	_, err := v.Select(ctx, selected)
	return err
}

// Select renders an artifact. A newer call cancels an older in-flight one,
// whose result is then discarded with ErrStale.
func (v *View) Select(ctx context.Context, name string) (render.Preview, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return render.Preview{}, ErrClosed
	}
	if _, ok := v.session.Artifact(name); !ok {
		v.mu.Unlock()
		return render.Preview{}, ErrUnknownArtifact
	}
	v.selected = name
	state, ok := v.loaded(name)
	if !ok {
		v.mu.Unlock()
		return render.Preview{}, ErrNotReady
	}
	if v.renderCancel != nil {
		v.renderCancel()
	}
	v.renderEpoch++
	epoch := v.renderEpoch
	rctx, done := v.bind(ctx)
	v.renderCancel = done
	v.preview = nil
	v.mu.Unlock()

	p, err := v.deps.Renderer.Render(rctx, render.Request{
		Capability: v.device,
		HandleURL:  state.handle.URL,
		Data:       state.data,
		SessionID:  v.session.SessionID,
		Filename:   state.Filename,
	})
	done()

	v.mu.Lock()
	defer v.mu.Unlock()
	if epoch != v.renderEpoch {
		return render.Preview{}, ErrStale
	}
	v.renderCancel = nil
	if v.closed {
		return render.Preview{}, ErrClosed
	}
	if err != nil {
		v.status = StatusFailed
		v.message = Message(err)
		telemetry.Warn("preview.render.failed", map[string]any{
			"preview_id": v.id,
			"artifact":   name,
			"err":        err,
		})
		return render.Preview{}, err
	}
	v.status = StatusReady
	v.message = ""
	v.preview = &p
	return p, nil
}

// Retry releases every handle, clears loaded state and loads from scratch.
// Payments already made are kept.
func (v *View) Retry(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.renderCancel != nil {
		v.renderCancel()
		v.renderCancel = nil
	}
	v.renderEpoch++
	v.loadEpoch++
	v.artifacts = nil
	v.preview = nil
	v.mu.Unlock()

	v.releaseAll(ctx)
	return v.Load(ctx)
}

// Pay runs the payment gate for an artifact. On success the artifact is
// marked paid and its download URL is returned.
func (v *View) Pay(ctx context.Context, artifact string, form payment.Form) (string, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return "", ErrClosed
	}
	if _, ok := v.loaded(artifact); !ok {
		v.mu.Unlock()
		if _, known := v.session.Artifact(artifact); !known {
			return "", ErrUnknownArtifact
		}
		return "", ErrNotReady
	}
	v.mu.Unlock()

	if st := v.gate.Status().State; st != payment.StateFormOpen {
		if err := v.gate.Open(); err != nil {
			return "", err
		}
	}

	var url string
	err := v.gate.Submit(ctx, form, func(context.Context) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.closed {
			return ErrClosed
		}
		v.paid[artifact] = true
		url = v.downloadURL(artifact)
		return nil
	})
	if err != nil {
		return "", err
	}
	telemetry.Info("preview.artifact.paid", map[string]any{
		"preview_id": v.id,
		"artifact":   artifact,
	})
	return url, nil
}

// CancelPayment closes the payment form and discards what was typed.
func (v *View) CancelPayment() error {
	return v.gate.Close()
}

// Download opens a paid artifact for streaming.
func (v *View) Download(ctx context.Context, artifact string) (blobs.Handle, io.ReadCloser, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return blobs.Handle{}, nil, ErrClosed
	}
	state, ok := v.loaded(artifact)
	paid := v.paid[artifact]
	v.mu.Unlock()
	if !ok {
		if _, known := v.session.Artifact(artifact); !known {
			return blobs.Handle{}, nil, ErrUnknownArtifact
		}
		return blobs.Handle{}, nil, ErrNotReady
	}
	if !paid {
		return blobs.Handle{}, nil, ErrPaymentRequired
	}
	return v.deps.Blobs.Open(ctx, v.scope.Owner(), state.handle.ID)
}

// Close cancels in-flight work and releases every handle of the view.
// Closing twice is a no-op.
func (v *View) Close(ctx context.Context) error {
	v.cancel()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.status = StatusClosed
	v.renderEpoch++
	v.renderCancel = nil
	v.artifacts = nil
	v.preview = nil
	v.mu.Unlock()

	_ = v.gate.Close()
	err := v.scope.ReleaseAll(context.WithoutCancel(ctx))
	telemetry.Info("preview.closed", map[string]any{
		"preview_id": v.id,
		"session_id": v.session.SessionID,
	})
	return err
}

// Snapshot returns the current state of the view.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap := Snapshot{
		ID:          v.id,
		ServiceType: v.serviceType,
		SessionID:   v.session.SessionID,
		Status:      v.status,
		Error:       v.message,
		Retry:       v.status == StatusFailed,
		Mobile:      v.device.Mobile,
		Selected:    v.selected,
		Artifacts:   make([]ArtifactView, 0, len(v.session.Artifacts)),
		Payment:     v.gate.Status(),
	}
	for _, a := range v.session.Artifacts {
		av := ArtifactView{Name: a.Name, Filename: a.Filename, Paid: v.paid[a.Name]}
		if state, ok := v.loaded(a.Name); ok {
			av.URL = state.handle.URL
			av.Size = state.handle.Size
		}
		if av.Paid {
			av.DownloadURL = v.downloadURL(a.Name)
		}
		snap.Artifacts = append(snap.Artifacts, av)
	}
	if v.preview != nil {
		p := *v.preview
		snap.Preview = &p
	}
	return snap
}

func (v *View) loaded(name string) (artifactState, bool) {
	for _, a := range v.artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return artifactState{}, false
}

func (v *View) downloadURL(artifact string) string {
	if v.deps.DownloadPath != nil {
		return v.deps.DownloadPath(v.id, artifact)
	}
	return "/" + v.id + "/download/" + artifact
}

// current reports ErrClosed or ErrStale when a load started at epoch has
// been overtaken.
func (v *View) current(epoch uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if epoch != v.loadEpoch {
		return ErrStale
	}
	return nil
}

// discard releases handles materialized by a load whose result was dropped.
func (v *View) discard(ctx context.Context, states []artifactState) {
	for _, st := range states {
		if err := v.scope.Release(context.WithoutCancel(ctx), st.handle.URL); err != nil && !errors.Is(err, blobs.ErrNotLive) {
			telemetry.Error("preview.release.failed", map[string]any{
				"preview_id": v.id,
				"err":        err,
			})
		}
	}
}

func (v *View) releaseAll(ctx context.Context) {
	if err := v.scope.ReleaseAll(context.WithoutCancel(ctx)); err != nil {
		telemetry.Error("preview.release.failed", map[string]any{
			"preview_id": v.id,
			"err":        err,
		})
	}
}

func (v *View) fail(err error) error {
	v.mu.Lock()
	if !v.closed {
		v.status = StatusFailed
		v.message = Message(err)
	}
	v.mu.Unlock()
	telemetry.Warn("preview.load.failed", map[string]any{
		"preview_id": v.id,
		"session_id": v.session.SessionID,
		"kind":       string(transport.KindOf(err)),
		"err":        err,
	})
	return err
}

// Message maps a preview error to the text shown to the user.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, render.ErrEmptyDocument):
		return "The server returned an empty document."
	case errors.Is(err, render.ErrMalformedDocument):
		return "Server did not return a valid document."
	case errors.Is(err, render.ErrNoPages):
		return "The document has no pages."
	case transport.KindOf(err) != "":
		return transport.UserMessage(err)
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The server took too long to respond. Please try again."
	}
	return "Failed to load preview. Please try again."
}
