package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	uploadsStartedTotal   atomic.Uint64
	uploadsCompletedTotal atomic.Uint64
	uploadsFailedTotal    atomic.Uint64

	downloadsTotal       atomic.Uint64
	downloadsFailedTotal atomic.Uint64

	blobsMaterializedTotal atomic.Uint64
	blobsReleasedTotal     atomic.Uint64
	blobsLive              atomic.Int64

	paymentsSucceededTotal atomic.Uint64
	paymentsDeclinedTotal  atomic.Uint64
	paymentsFailedTotal    atomic.Uint64

	previewsOpen atomic.Int64

	upstreamDuration = newHistogram([]float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000})
	rasterDuration   = newHistogram([]float64{10, 25, 50, 100, 250, 500, 1000, 2500})
)

// IncUploadStarted increments the upload started counter.
func IncUploadStarted() { uploadsStartedTotal.Add(1) }

// IncUploadCompleted increments the upload completed counter.
func IncUploadCompleted() { uploadsCompletedTotal.Add(1) }

// IncUploadFailed increments the upload failed counter.
func IncUploadFailed() { uploadsFailedTotal.Add(1) }

// IncDownload counts a document download from the upstream API.
func IncDownload(ok bool) {
	if ok {
		downloadsTotal.Add(1)
		return
	}
	downloadsFailedTotal.Add(1)
}

// BlobMaterialized tracks a newly created blob handle.
func BlobMaterialized() {
	blobsMaterializedTotal.Add(1)
	blobsLive.Add(1)
}

// BlobReleased tracks a released blob handle.
func BlobReleased() {
	blobsReleasedTotal.Add(1)
	blobsLive.Add(-1)
}

// LiveBlobs reports the number of outstanding blob handles.
func LiveBlobs() int64 { return blobsLive.Load() }

// Payment outcomes.
const (
	PaymentSucceeded = "succeeded"
	PaymentDeclined  = "declined"
	PaymentFailed    = "failed"
)

// IncPayment counts a payment attempt by outcome.
func IncPayment(outcome string) {
	switch outcome {
	case PaymentSucceeded:
		paymentsSucceededTotal.Add(1)
	case PaymentDeclined:
		paymentsDeclinedTotal.Add(1)
	default:
		paymentsFailedTotal.Add(1)
	}
}

// PreviewOpened tracks a newly opened preview view.
func PreviewOpened() { previewsOpen.Add(1) }

// PreviewClosed tracks a closed preview view.
func PreviewClosed() { previewsOpen.Add(-1) }

// ObserveUpstreamDuration records an upstream call latency.
func ObserveUpstreamDuration(d time.Duration) {
	upstreamDuration.Observe(durationMs(d))
}

// ObserveRasterDuration records the time spent rasterizing one page.
func ObserveRasterDuration(d time.Duration) {
	rasterDuration.Observe(durationMs(d))
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "uploads_started_total", "Total uploads sent upstream", uploadsStartedTotal.Load())
	writeCounter(&buf, "uploads_completed_total", "Total uploads that produced a session", uploadsCompletedTotal.Load())
	writeCounter(&buf, "uploads_failed_total", "Total uploads that failed", uploadsFailedTotal.Load())
	writeCounter(&buf, "downloads_total", "Total documents downloaded", downloadsTotal.Load())
	writeCounter(&buf, "downloads_failed_total", "Total document downloads that failed", downloadsFailedTotal.Load())
	writeCounter(&buf, "blobs_materialized_total", "Total blob handles created", blobsMaterializedTotal.Load())
	writeCounter(&buf, "blobs_released_total", "Total blob handles released", blobsReleasedTotal.Load())
	writeGauge(&buf, "blobs_live", "Blob handles currently live", blobsLive.Load())
	writeCounter(&buf, "payments_succeeded_total", "Total successful payments", paymentsSucceededTotal.Load())
	writeCounter(&buf, "payments_declined_total", "Total declined payments", paymentsDeclinedTotal.Load())
	writeCounter(&buf, "payments_failed_total", "Total failed payments", paymentsFailedTotal.Load())
	writeGauge(&buf, "previews_open", "Preview views currently open", previewsOpen.Load())
	writeHistogram(&buf, "upstream_duration_ms", "Upstream API call duration in milliseconds", upstreamDuration.Snapshot())
	writeHistogram(&buf, "raster_page_duration_ms", "Local page rasterization duration in milliseconds", rasterDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe records value in the first bucket that holds it; Render accumulates.
func (h *histogram) Observe(value float64) {
	if value < 0 {
		value = 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeGauge(buf *bytes.Buffer, name, help string, value int64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s gauge\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
