package render

import (
	"context"
	"errors"
	"io"

	"cvalue-web/internal/shared/telemetry"
	"cvalue-web/internal/transport"
)

// Mode is how a document is presented.
type Mode string

const (
	ModeEmbedded Mode = "embedded"
	ModeImages   Mode = "images"
	ModeFallback Mode = "fallback"
)

// Strategy selects how mobile previews are produced.
type Strategy string

const (
	StrategyServer Strategy = "server"
	StrategyClient Strategy = "client"
)

// ViewerFragment hides the embedded viewer's chrome.
const ViewerFragment = "#toolbar=0&navpanes=0&view=FitH"

// ImageSource produces page images remotely.
type ImageSource interface {
	PreviewImages(ctx context.Context, sessionID string, filenames []string) ([]transport.PreviewImage, error)
}

// Request describes one artifact to render.
type Request struct {
	Capability Capability
	HandleURL  string
	Data       []byte
	SessionID  string
	Filename   string
}

// Preview is the rendered presentation of a document.
type Preview struct {
	Mode        Mode                     `json:"mode"`
	ViewerURL   string                   `json:"viewerUrl,omitempty"`
	Images      []transport.PreviewImage `json:"images,omitempty"`
	PageCount   int                      `json:"pageCount,omitempty"`
	Truncated   bool                     `json:"truncated,omitempty"`
	FallbackURL string                   `json:"fallbackUrl,omitempty"`
}

// Renderer picks a presentation based on device capability.
type Renderer struct {
	Images     ImageSource
	Rasterizer Rasterizer
	Strategy   Strategy
}

// Render validates the document and produces a Preview. Content errors are
// terminal; image-service errors are returned for the caller to offer a retry;
// local rasterization failures degrade to an open-in-new-tab fallback.
func (r *Renderer) Render(ctx context.Context, req Request) (Preview, error) {
	pages, err := Inspect(req.Data)
	if err != nil {
		return Preview{}, err
	}

	if req.Capability == nil || req.Capability.SupportsEmbeddedViewer() {
		return Preview{Mode: ModeEmbedded, ViewerURL: req.HandleURL + ViewerFragment, PageCount: max(pages, 0)}, nil
	}

	if r.Strategy == StrategyClient && r.Rasterizer != nil {
		return r.rasterize(ctx, req)
	}

	if r.Images == nil {
		return Preview{Mode: ModeFallback, FallbackURL: req.HandleURL}, nil
	}
	images, err := r.Images.PreviewImages(ctx, req.SessionID, []string{req.Filename})
	if err != nil {
		return Preview{}, err
	}
	return Preview{Mode: ModeImages, Images: images, PageCount: len(images)}, nil
}

func (r *Renderer) rasterize(ctx context.Context, req Request) (Preview, error) {
	fallback := Preview{Mode: ModeFallback, FallbackURL: req.HandleURL}

	seq, err := r.Rasterizer.Rasterize(ctx, req.Data)
	if err != nil {
		if ctx.Err() != nil {
			return Preview{}, ctx.Err()
		}
		if errors.Is(err, ErrNoPages) {
			return Preview{}, err
		}
		telemetry.Warn("render.rasterize.fallback", map[string]any{"filename": req.Filename, "err": err})
		return fallback, nil
	}

	images := make([]transport.PreviewImage, 0, seq.Len())
	for {
		img, err := seq.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return Preview{}, ctx.Err()
			}
			telemetry.Warn("render.rasterize.fallback", map[string]any{"filename": req.Filename, "err": err})
			return fallback, nil
		}
		images = append(images, img)
	}
	return Preview{
		Mode:      ModeImages,
		Images:    images,
		PageCount: seq.Total(),
		Truncated: seq.Truncated(),
	}, nil
}
