package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeUpstream struct {
	mu        sync.Mutex
	hits      map[string]int
	lastForm  map[string]string
	lastQuery map[string]string
	lastJSON  map[string]any
	bypass    string

	health   int
	upload   string
	download func(w http.ResponseWriter)
	images   func(w http.ResponseWriter)
}

func newFakeUpstream(t *testing.T) (*fakeUpstream, *httptest.Server) {
	t.Helper()
	f := &fakeUpstream{hits: map[string]int{}, health: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeUpstream) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeUpstream) form(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm[key]
}

func (f *fakeUpstream) query(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery[key]
}

func (f *fakeUpstream) jsonField(key string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastJSON[key]
}

func (f *fakeUpstream) bypassValue() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bypass
}

func (f *fakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.bypass = r.Header.Get("ngrok-skip-browser-warning")
	f.mu.Unlock()

	switch r.URL.Path {
	case "/health-check":
		w.WriteHeader(f.health)
	case "/upload-resume", "/generate-cover-letter":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form := map[string]string{}
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		if fh := r.MultipartForm.File["file"]; len(fh) == 1 {
			form["file"] = fh[0].Filename
			form["file_type"] = fh[0].Header.Get("Content-Type")
		}
		f.mu.Lock()
		f.lastForm = form
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, f.upload)
	case "/download":
		f.mu.Lock()
		f.lastQuery = map[string]string{
			"session_id": r.URL.Query().Get("session_id"),
			"filename":   r.URL.Query().Get("filename"),
		}
		f.mu.Unlock()
		f.download(w)
	case "/images":
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		f.lastJSON = payload
		f.mu.Unlock()
		f.images(w)
	default:
		http.NotFound(w, r)
	}
}

func pdfFile(body string) File {
	return File{Name: "resume.pdf", ContentType: PDFContentType, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{
		BaseURL:         srv.URL,
		BypassHeader:    "ngrok-skip-browser-warning",
		DownloadTimeout: 2 * time.Second,
		UploadTimeout:   2 * time.Second,
		HealthTimeout:   time.Second,
	})
}

func TestUploadReturnsOrderedArtifactsAndReportsProgress(t *testing.T) {
	up, srv := newFakeUpstream(t)
	up.upload = `{"session_id":"s-1","classic_resume_url":"classic_s-1.pdf","modern_resume_url":"modern_s-1.pdf"}`
	client := newTestClient(srv)

	var (
		progressMu sync.Mutex
		progress   []int
	)
	session, err := client.Upload(context.Background(), pdfFile("%PDF-1.4 body"), func(p int) {
		progressMu.Lock()
		progress = append(progress, p)
		progressMu.Unlock()
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if session.SessionID != "s-1" {
		t.Fatalf("unexpected session id %q", session.SessionID)
	}
	refs := session.ArtifactRefs()
	if len(refs) != 2 || refs[0] != "classic_s-1.pdf" || refs[1] != "modern_s-1.pdf" {
		t.Fatalf("unexpected artifact refs %v", refs)
	}
	if up.count("/health-check") != 1 {
		t.Fatalf("expected health check before upload")
	}
	if up.form("file") != "resume.pdf" || up.form("file_type") != PDFContentType {
		t.Fatalf("unexpected multipart form file=%q type=%q", up.form("file"), up.form("file_type"))
	}
	if up.bypassValue() != "true" {
		t.Fatalf("expected bypass header to be attached")
	}
	progressMu.Lock()
	defer progressMu.Unlock()
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("expected progress ending at 100, got %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress decreased: %v", progress)
		}
	}
}

func TestUploadRejectsNonPDFWithoutNetwork(t *testing.T) {
	up, srv := newFakeUpstream(t)
	client := newTestClient(srv)

	_, err := client.Upload(context.Background(), File{Name: "cv.docx", ContentType: "application/msword", Size: 10, Body: strings.NewReader("x")}, nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(UserMessage(err), "PDF files only") {
		t.Fatalf("unexpected message %q", UserMessage(err))
	}
	if up.count("/health-check")+up.count("/upload-resume") != 0 {
		t.Fatalf("expected no network calls")
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	up, srv := newFakeUpstream(t)
	client := New(Options{BaseURL: srv.URL, MaxUploadBytes: 4})

	_, err := client.Upload(context.Background(), File{Name: "big.pdf", ContentType: PDFContentType, Size: 0, Body: strings.NewReader("%PDF-too-big")}, nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if up.count("/upload-resume") != 0 {
		t.Fatalf("expected no upload call")
	}
}

func TestUploadHealthCheckFailureIsUnavailable(t *testing.T) {
	up, srv := newFakeUpstream(t)
	up.health = http.StatusBadGateway
	client := newTestClient(srv)

	_, err := client.Upload(context.Background(), pdfFile("%PDF-1.4"), nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if up.count("/upload-resume") != 0 {
		t.Fatalf("expected upload to be skipped")
	}
	if UserMessage(err) != "Server is currently unavailable. Please try again later." {
		t.Fatalf("unexpected message %q", UserMessage(err))
	}
}

func TestUploadRejectsResponseMissingSession(t *testing.T) {
	up, srv := newFakeUpstream(t)
	up.upload = `{"session_id":"","classic_resume_url":"a.pdf","modern_resume_url":"b.pdf"}`
	client := newTestClient(srv)

	_, err := client.Upload(context.Background(), pdfFile("%PDF-1.4"), nil)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected invalid response, got %v", err)
	}
}

func TestGenerateCoverLetterAcceptsFilenameVariants(t *testing.T) {
	variants := []string{
		`{"session_id":"s-2","file_name":"cl.pdf"}`,
		`{"session_id":"s-2","filename":"cl.pdf"}`,
		`{"session_id":"s-2","cover_letter_filename":"cl.pdf"}`,
	}
	for _, body := range variants {
		up, srv := newFakeUpstream(t)
		up.upload = body
		client := newTestClient(srv)

		session, err := client.GenerateCoverLetter(context.Background(), pdfFile("%PDF-1.4"), CoverLetterFields{
			Company:        "Acme",
			Location:       "Riyadh",
			JobTitle:       "Engineer",
			JobDescription: strings.Repeat("d", 60),
		}, nil)
		if err != nil {
			t.Fatalf("%s: %v", body, err)
		}
		a, ok := session.Artifact(ArtifactCoverLetter)
		if !ok || a.Filename != "cl.pdf" {
			t.Fatalf("%s: unexpected artifacts %v", body, session.Artifacts)
		}
		if up.form("job_title") != "Engineer" || up.form("company") != "Acme" {
			t.Fatalf("unexpected form company=%q job_title=%q", up.form("company"), up.form("job_title"))
		}
	}

	up, srv := newFakeUpstream(t)
	up.upload = `{"session_id":"s-2"}`
	client := newTestClient(srv)
	if _, err := client.GenerateCoverLetter(context.Background(), pdfFile("%PDF-1.4"), CoverLetterFields{}, nil); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected invalid response without filename, got %v", err)
	}
}

func TestDownloadValidatesContentTypeAndBody(t *testing.T) {
	up, srv := newFakeUpstream(t)
	client := newTestClient(srv)

	up.download = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.4 data")
	}
	blob, err := client.Download(context.Background(), "s-1", "classic s-1.pdf")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(blob.Data) != "%PDF-1.4 data" || blob.Filename != "classic s-1.pdf" {
		t.Fatalf("unexpected blob %+v", blob)
	}
	if up.query("filename") != "classic s-1.pdf" || up.query("session_id") != "s-1" {
		t.Fatalf("unexpected query filename=%q session=%q", up.query("filename"), up.query("session_id"))
	}

	up.download = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>tunnel warning</html>")
	}
	if _, err := client.Download(context.Background(), "s-1", "a.pdf"); !errors.Is(err, ErrContentType) {
		t.Fatalf("expected content type error, got %v", err)
	}

	up.download = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/pdf")
	}
	if _, err := client.Download(context.Background(), "s-1", "a.pdf"); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected empty content error, got %v", err)
	}

	up.download = func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"file not found"}`)
	}
	if _, err := client.Download(context.Background(), "s-1", "a.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}

	up.download = func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	_, err = client.Download(context.Background(), "s-1", "a.pdf")
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected status error, got %v", err)
	}
	if !strings.Contains(UserMessage(err), "500") {
		t.Fatalf("expected status in message, got %q", UserMessage(err))
	}
}

func TestDownloadRejectsPlaceholderFilenames(t *testing.T) {
	up, srv := newFakeUpstream(t)
	client := newTestClient(srv)
	for _, name := range []string{"", "undefined", "null"} {
		if _, err := client.Download(context.Background(), "s-1", name); !errors.Is(err, ErrValidation) {
			t.Fatalf("%q: expected validation error, got %v", name, err)
		}
	}
	if up.count("/download") != 0 {
		t.Fatalf("expected no download calls")
	}
}

func TestDownloadTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	client := New(Options{BaseURL: srv.URL, DownloadTimeout: 50 * time.Millisecond})

	_, err := client.Download(context.Background(), "s-1", "a.pdf")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls.Load())
	}
}

func TestDownloadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	client := New(Options{BaseURL: url, DownloadTimeout: time.Second})

	_, err := client.Download(context.Background(), "s-1", "a.pdf")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}
}

func TestPreviewImagesResponseShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want []string
	}{
		{name: "bare array", body: `["/img/1.jpg","/img/2.jpg"]`, want: []string{"/img/1.jpg", "/img/2.jpg"}},
		{name: "images key", body: `{"images":["https://cdn/x.jpg"]}`, want: []string{"https://cdn/x.jpg"}},
		{name: "other key", body: `{"count":1,"pages":["data:image/jpeg;base64,AAA"]}`, want: []string{"data:image/jpeg;base64,AAA"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up, srv := newFakeUpstream(t)
			up.images = func(w http.ResponseWriter) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tc.body)
			}
			client := newTestClient(srv)

			images, err := client.PreviewImages(context.Background(), "s-1", []string{"classic.pdf"})
			if err != nil {
				t.Fatalf("preview images: %v", err)
			}
			if len(images) != len(tc.want) {
				t.Fatalf("expected %d images, got %d", len(tc.want), len(images))
			}
			for i, img := range images {
				want := tc.want[i]
				if strings.HasPrefix(want, "/") {
					want = srv.URL + want
				}
				if img.Page != i+1 || img.Source != want {
					t.Fatalf("image %d: got %+v want %s", i, img, want)
				}
			}
			if up.jsonField("filename") != "classic.pdf" || up.jsonField("session_id") != "s-1" {
				t.Fatalf("unexpected request body filename=%v session=%v", up.jsonField("filename"), up.jsonField("session_id"))
			}
		})
	}
}

func TestPreviewImagesErrors(t *testing.T) {
	up, srv := newFakeUpstream(t)
	client := newTestClient(srv)

	up.images = func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":"Resume not found for session"}`)
	}
	if _, err := client.PreviewImages(context.Background(), "s-1", []string{"a.pdf"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found from detail, got %v", err)
	}

	up.images = func(w http.ResponseWriter) {
		_, _ = io.WriteString(w, `{"images":[]}`)
	}
	if _, err := client.PreviewImages(context.Background(), "s-1", []string{"a.pdf"}); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected empty content, got %v", err)
	}
}

func TestUserMessageByStatusClass(t *testing.T) {
	cases := map[int]string{
		http.StatusUnprocessableEntity: "could not process",
		http.StatusServiceUnavailable:  "Server error: 503",
		http.StatusForbidden:           "Server error: 403",
	}
	for status, want := range cases {
		err := &Error{Kind: KindStatus, Op: "download", Status: status}
		if got := UserMessage(err); !strings.Contains(got, want) {
			t.Fatalf("status %d: got %q want substring %q", status, got, want)
		}
	}
	if got := UserMessage(errors.New("boom")); got != "Upload failed. Please try again." {
		t.Fatalf("unexpected generic message %q", got)
	}
}

func TestHTTPStatusByKind(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&Error{Kind: KindValidation}, http.StatusBadRequest},
		{&Error{Kind: KindNotFound, Status: 404}, http.StatusNotFound},
		{&Error{Kind: KindUnavailable}, http.StatusServiceUnavailable},
		{&Error{Kind: KindTimeout}, http.StatusGatewayTimeout},
		{&Error{Kind: KindContentType}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
