package render

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"cvalue-web/internal/render/rendertest"
	"cvalue-web/internal/transport"
)

type staticCapability bool

func (c staticCapability) SupportsEmbeddedViewer() bool { return bool(c) }

type fakeImages struct {
	calls     int
	filenames []string
	images    []transport.PreviewImage
	err       error
}

func (f *fakeImages) PreviewImages(ctx context.Context, sessionID string, filenames []string) ([]transport.PreviewImage, error) {
	f.calls++
	f.filenames = filenames
	return f.images, f.err
}

func TestInspect(t *testing.T) {
	if _, err := Inspect(nil); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	if _, err := Inspect([]byte("<html>not a pdf</html>")); !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("expected ErrMalformedDocument, got %v", err)
	}
	if _, err := Inspect(rendertest.PDF(0, 612, 792)); !errors.Is(err, ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
	n, err := Inspect(rendertest.PDF(3, 612, 792))
	if err != nil || n != 3 {
		t.Fatalf("expected 3 pages, got %d (%v)", n, err)
	}
}

func TestRenderDesktopEmbedsViewer(t *testing.T) {
	images := &fakeImages{}
	r := &Renderer{Images: images, Strategy: StrategyServer}

	p, err := r.Render(context.Background(), Request{
		Capability: staticCapability(true),
		HandleURL:  "/api/v1/blobs/abc",
		Data:       rendertest.PDF(1, 612, 792),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if p.Mode != ModeEmbedded || p.ViewerURL != "/api/v1/blobs/abc#toolbar=0&navpanes=0&view=FitH" {
		t.Fatalf("unexpected preview %+v", p)
	}
	if images.calls != 0 {
		t.Fatalf("desktop path must not fetch images")
	}
}

func TestRenderTerminalContentErrorsBeforeAnyPath(t *testing.T) {
	images := &fakeImages{}
	r := &Renderer{Images: images, Strategy: StrategyServer}
	for _, data := range [][]byte{nil, []byte("PK\x03\x04zip")} {
		_, err := r.Render(context.Background(), Request{Capability: staticCapability(false), Data: data})
		if !errors.Is(err, ErrEmptyDocument) && !errors.Is(err, ErrMalformedDocument) {
			t.Fatalf("expected content error, got %v", err)
		}
	}
	if images.calls != 0 {
		t.Fatalf("content errors must not reach the image service")
	}
}

func TestRenderMobileServerImages(t *testing.T) {
	images := &fakeImages{images: []transport.PreviewImage{{Page: 1, Source: "https://img/1.jpg"}}}
	r := &Renderer{Images: images, Strategy: StrategyServer}

	p, err := r.Render(context.Background(), Request{
		Capability: staticCapability(false),
		HandleURL:  "/api/v1/blobs/abc",
		Data:       rendertest.PDF(1, 612, 792),
		SessionID:  "s-1",
		Filename:   "classic.pdf",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if p.Mode != ModeImages || len(p.Images) != 1 {
		t.Fatalf("unexpected preview %+v", p)
	}
	if len(images.filenames) != 1 || images.filenames[0] != "classic.pdf" {
		t.Fatalf("unexpected filenames %v", images.filenames)
	}

	images.err = &transport.Error{Kind: transport.KindNotFound, Op: "preview_images"}
	if _, err := r.Render(context.Background(), Request{Capability: staticCapability(false), Data: rendertest.PDF(1, 612, 792), SessionID: "s-1", Filename: "classic.pdf"}); !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected image service error to surface, got %v", err)
	}
}

func TestRenderMobileClientCapsPages(t *testing.T) {
	r := &Renderer{Rasterizer: NewLocalRasterizer(10, 1), Strategy: StrategyClient}

	p, err := r.Render(context.Background(), Request{
		Capability: staticCapability(false),
		HandleURL:  "/api/v1/blobs/abc",
		Data:       rendertest.PDF(12, 200, 100),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if p.Mode != ModeImages {
		t.Fatalf("expected images mode, got %+v", p)
	}
	if len(p.Images) != 10 || !p.Truncated || p.PageCount != 12 {
		t.Fatalf("expected 10 of 12 pages truncated, got %d images truncated=%v count=%d", len(p.Images), p.Truncated, p.PageCount)
	}
	for i, img := range p.Images {
		if img.Page != i+1 {
			t.Fatalf("pages out of order: %d at %d", img.Page, i)
		}
		if !strings.HasPrefix(img.Source, "data:image/jpeg;base64,") {
			t.Fatalf("expected jpeg data url, got %.30s", img.Source)
		}
	}
}

func TestRenderMobileClientFallsBackOnRasterFailure(t *testing.T) {
	r := &Renderer{Rasterizer: NewLocalRasterizer(10, 1), Strategy: StrategyClient}

	p, err := r.Render(context.Background(), Request{
		Capability: staticCapability(false),
		HandleURL:  "/api/v1/blobs/abc",
		Data:       []byte("%PDF-1.4\nthis is not really a pdf"),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if p.Mode != ModeFallback || p.FallbackURL != "/api/v1/blobs/abc" {
		t.Fatalf("expected fallback preview, got %+v", p)
	}
}

func TestPageSequenceIsNotRestartable(t *testing.T) {
	seq, err := NewLocalRasterizer(2, 1).Rasterize(context.Background(), rendertest.PDF(3, 200, 100))
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if seq.Len() != 2 || seq.Total() != 3 || !seq.Truncated() {
		t.Fatalf("unexpected sequence bounds len=%d total=%d", seq.Len(), seq.Total())
	}
	for want := 1; want <= 2; want++ {
		img, err := seq.Next(context.Background())
		if err != nil {
			t.Fatalf("page %d: %v", want, err)
		}
		if img.Page != want {
			t.Fatalf("expected page %d, got %d", want, img.Page)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := seq.Next(context.Background()); !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF after exhaustion, got %v", err)
		}
	}
}

func TestPageSequenceHonorsCancellation(t *testing.T) {
	seq, err := NewLocalRasterizer(5, 1).Rasterize(context.Background(), rendertest.PDF(3, 200, 100))
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := seq.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
