package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"math"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"cvalue-web/internal/shared/metrics"
	"cvalue-web/internal/transport"
)

const (
	DefaultMaxPages    = 10
	DefaultScale       = 1.5
	DefaultJPEGQuality = 80

	// US Letter in points, used when a page declares no MediaBox.
	defaultPageWidth  = 612
	defaultPageHeight = 792

	// Canvas bounds per page. Larger pages are drawn at a reduced scale.
	maxCanvasSide   = 4096
	maxCanvasPixels = 4 << 20
)

// Rasterizer turns a PDF into a lazy sequence of page images.
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte) (*PageSequence, error)
}

// LocalRasterizer draws page text layout into JPEG images in-process.
type LocalRasterizer struct {
	MaxPages int
	Scale    float64
	Quality  int
}

// NewLocalRasterizer returns a rasterizer with the given limits, defaulting zero values.
func NewLocalRasterizer(maxPages int, scale float64) *LocalRasterizer {
	return &LocalRasterizer{MaxPages: maxPages, Scale: scale}
}

// Rasterize opens the document and returns its page sequence. Nothing is
// drawn until Next is called.
func (r *LocalRasterizer) Rasterize(ctx context.Context, data []byte) (*PageSequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := openDocument(data)
	if err != nil {
		return nil, err
	}
	total, err := pageCount(doc)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, ErrNoPages
	}

	limit := r.MaxPages
	if limit <= 0 {
		limit = DefaultMaxPages
	}
	scale := r.Scale
	if scale <= 0 {
		scale = DefaultScale
	}
	quality := r.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	yield := total
	if yield > limit {
		yield = limit
	}
	return &PageSequence{
		doc:     doc,
		total:   total,
		yield:   yield,
		next:    1,
		scale:   scale,
		quality: quality,
	}, nil
}

// PageSequence yields rendered pages 1..min(total, limit) in order. It cannot
// be rewound; once exhausted Next keeps returning io.EOF.
type PageSequence struct {
	doc     *pdf.Reader
	total   int
	yield   int
	next    int
	scale   float64
	quality int
}

// Total is the number of pages in the document.
func (s *PageSequence) Total() int { return s.total }

// Len is the number of pages the sequence will produce.
func (s *PageSequence) Len() int { return s.yield }

// Truncated reports whether the document has more pages than are produced.
func (s *PageSequence) Truncated() bool { return s.total > s.yield }

// Next renders the next page, returning io.EOF when the sequence is done.
func (s *PageSequence) Next(ctx context.Context) (transport.PreviewImage, error) {
	if s.next > s.yield {
		return transport.PreviewImage{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return transport.PreviewImage{}, err
	}
	num := s.next
	s.next++

	start := time.Now()
	src, err := s.renderPage(num)
	metrics.ObserveRasterDuration(time.Since(start))
	if err != nil {
		s.next = s.yield + 1
		return transport.PreviewImage{}, fmt.Errorf("render page %d: %w", num, err)
	}
	return transport.PreviewImage{Page: num, Source: src}, nil
}

func (s *PageSequence) renderPage(num int) (src string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("draw page: %v", rec)
		}
	}()

	page := s.doc.Page(num)
	if page.V.IsNull() {
		return "", errors.New("page missing")
	}
	width, height := mediaBox(page.V)
	scale, cw, ch := canvasSize(width, height, s.scale)
	img := image.NewRGBA(image.Rect(0, 0, cw, ch))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	content := page.Content()
	rule := color.Gray{Y: 200}
	for _, r := range content.Rect {
		strokeRect(img, rule,
			int(r.Min.X*scale), int((height-r.Max.Y)*scale),
			int(r.Max.X*scale), int((height-r.Min.Y)*scale))
	}

	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
	for _, t := range content.Text {
		if t.S == "" {
			continue
		}
		d.Dot = fixed.P(int(t.X*scale), int((height-t.Y)*scale))
		d.DrawString(t.S)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// canvasSize fits a width x height point page into the canvas bounds,
// lowering scale when needed. It returns the scale used and the pixel size.
func canvasSize(width, height, scale float64) (float64, int, int) {
	scale = math.Min(scale, maxCanvasSide/width)
	scale = math.Min(scale, maxCanvasSide/height)
	if area := width * height * scale * scale; area > maxCanvasPixels {
		scale *= math.Sqrt(maxCanvasPixels / area)
	}
	cw := int(math.Min(math.Ceil(width*scale), maxCanvasSide))
	ch := int(math.Min(math.Ceil(height*scale), maxCanvasSide))
	return scale, max(cw, 1), max(ch, 1)
}

// mediaBox returns the page size in points, following inherited boxes.
func mediaBox(v pdf.Value) (float64, float64) {
	for node, depth := v, 0; !node.IsNull() && depth < 32; node, depth = node.Key("Parent"), depth+1 {
		box := node.Key("MediaBox")
		if box.Len() != 4 {
			continue
		}
		w := box.Index(2).Float64() - box.Index(0).Float64()
		h := box.Index(3).Float64() - box.Index(1).Float64()
		if w > 0 && h > 0 {
			return w, h
		}
	}
	return defaultPageWidth, defaultPageHeight
}

func strokeRect(img *image.RGBA, c color.Color, x0, y0, x1, y1 int) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for x := x0; x <= x1; x++ {
		img.Set(x, y0, c)
		img.Set(x, y1, c)
	}
	for y := y0; y <= y1; y++ {
		img.Set(x0, y, c)
		img.Set(x1, y, c)
	}
}
