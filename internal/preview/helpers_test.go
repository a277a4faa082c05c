package preview

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"cvalue-web/internal/blobs"
	"cvalue-web/internal/payment"
	"cvalue-web/internal/render"
	"cvalue-web/internal/render/rendertest"
	"cvalue-web/internal/shared/storage/object"
	"cvalue-web/internal/shared/storage/object/local"
	"cvalue-web/internal/transport"
)

type countingStore struct {
	object.ObjectStore

	mu      sync.Mutex
	saves   map[string]int
	deletes map[string]int

	// hold parks the next holdLeft successful saves until releaseSaves.
	hold     chan struct{}
	holding  chan string
	holdLeft int
}

func newCountingStore(t *testing.T) *countingStore {
	return &countingStore{
		ObjectStore: local.New(t.TempDir()),
		saves:       make(map[string]int),
		deletes:     make(map[string]int),
	}
}

func (s *countingStore) SaveWithKey(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	n, err := s.ObjectStore.SaveWithKey(ctx, key, contentType, r)
	if err != nil {
		return n, err
	}
	var hold chan struct{}
	s.mu.Lock()
	s.saves[key]++
	if s.holdLeft > 0 {
		s.holdLeft--
		hold = s.hold
	}
	s.mu.Unlock()
	if hold != nil {
		s.holding <- key
		<-hold
	}
	return n, nil
}

func (s *countingStore) holdSaves(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = make(chan struct{})
	s.holding = make(chan string, n)
	s.holdLeft = n
}

func (s *countingStore) releaseSaves() {
	close(s.hold)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deletes[key]++
	s.mu.Unlock()
	return s.ObjectStore.Delete(ctx, key)
}

// assertReleasedOnce checks every saved key was deleted exactly once.
func (s *countingStore) assertReleasedOnce(t *testing.T, wantSaves int) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) != wantSaves {
		t.Fatalf("expected %d materialized blobs, got %d", wantSaves, len(s.saves))
	}
	for key := range s.saves {
		if s.deletes[key] != 1 {
			t.Fatalf("blob %s released %d times", key, s.deletes[key])
		}
	}
	if len(s.deletes) != len(s.saves) {
		t.Fatalf("unexpected deletes %v", s.deletes)
	}
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

type fakeUpstream struct {
	mu           sync.Mutex
	docs         map[string][]byte
	contentTypes map[string]string
	statuses     map[string]int
	block        map[string]bool
	started      chan string
	imagesStatus int
	downloads    int
	imageCalls   int
}

func newFakeUpstream(t *testing.T) (*fakeUpstream, *httptest.Server) {
	f := &fakeUpstream{
		docs: map[string][]byte{
			"classic.pdf": rendertest.PDF(2, 612, 792),
			"modern.pdf":  rendertest.PDF(1, 612, 792),
		},
		contentTypes: map[string]string{},
		statuses:     map[string]int{},
		block:        map[string]bool{},
		started:      make(chan string, 8),
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeUpstream) set(fn func(f *fakeUpstream)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeUpstream) counts() (downloads, images int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads, f.imageCalls
}

func (f *fakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health-check":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	case "/upload-resume":
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"abc123","classic_resume_url":"classic.pdf","modern_resume_url":"modern.pdf"}`))
	case "/download":
		name := r.URL.Query().Get("filename")
		f.mu.Lock()
		f.downloads++
		doc, ok := f.docs[name]
		ct := f.contentTypes[name]
		status := f.statuses[name]
		block := f.block[name]
		f.mu.Unlock()

		if block {
			f.started <- name
			<-r.Context().Done()
			return
		}
		if status != 0 {
			http.Error(w, `{"detail":"boom"}`, status)
			return
		}
		if !ok {
			http.Error(w, `{"detail":"File not found"}`, http.StatusNotFound)
			return
		}
		if ct == "" {
			ct = transport.PDFContentType
		}
		w.Header().Set("Content-Type", ct)
		_, _ = w.Write(doc)
	case "/images":
		f.mu.Lock()
		f.imageCalls++
		status := f.imagesStatus
		f.mu.Unlock()
		if status != 0 {
			http.Error(w, `{"detail":"render failed"}`, status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []string{"data:image/jpeg;base64,AAAA", "data:image/jpeg;base64,BBBB"},
		})
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	upstream *fakeUpstream
	client   *transport.Client
	store    *countingStore
	blobs    *blobs.Manager
	registry *Registry
}

func newTestEnv(t *testing.T, strategy render.Strategy) *testEnv {
	t.Helper()
	up, srv := newFakeUpstream(t)
	client := transport.New(transport.Options{BaseURL: srv.URL})
	store := newCountingStore(t)
	manager := blobs.NewManager(store, blobs.DefaultBasePath)
	deps := Deps{
		Downloader: client,
		Renderer: &render.Renderer{
			Images:     client,
			Rasterizer: render.NewLocalRasterizer(10, 1),
			Strategy:   strategy,
		},
		Blobs:        manager,
		Authorizer:   payment.SimulatedAuthorizer{},
		Amount:       10,
		Currency:     "USD",
		DownloadPath: DownloadPath("/api/v1"),
	}
	return &testEnv{
		upstream: up,
		client:   client,
		store:    store,
		blobs:    manager,
		registry: NewRegistry(deps, 0),
	}
}

func resumeSession() transport.UploadSession {
	return transport.UploadSession{
		SessionID: "abc123",
		Artifacts: []transport.Artifact{
			{Name: transport.ArtifactClassic, Filename: "classic.pdf"},
			{Name: transport.ArtifactModern, Filename: "modern.pdf"},
		},
	}
}

var (
	desktop = render.DetectDevice("Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)", 1440)
	mobile  = render.DetectDevice("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", 390)
)

func (e *testEnv) open(t *testing.T, device render.Device) *View {
	t.Helper()
	v, err := e.registry.Create("visitor-0001", "cv", resumeSession(), device)
	if err != nil {
		t.Fatalf("create view: %v", err)
	}
	return v
}

func validCard() payment.Form {
	return payment.Form{CardNumber: "4242 4242 4242 4242", ExpiryDate: "12/99", CVV: "123", CardholderName: "Sara Ali"}
}

func mustEqual[T comparable](t *testing.T, got, want T, what string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s: got %v, want %v", what, got, want)
	}
}

