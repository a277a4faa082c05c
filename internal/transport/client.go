package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"cvalue-web/internal/shared/metrics"
	"cvalue-web/internal/shared/telemetry"
)

const (
	defaultDownloadTimeout    = 30 * time.Second
	defaultUploadTimeout      = 60 * time.Second
	defaultCoverLetterTimeout = 120 * time.Second
	defaultHealthTimeout      = 10 * time.Second
	defaultMaxUploadBytes     = 30 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	ImagesURL string

	// BypassHeader is attached to every request when set, e.g. a tunnel's
	// interstitial-skip header.
	BypassHeader      string
	BypassHeaderValue string

	DownloadTimeout    time.Duration
	UploadTimeout      time.Duration
	CoverLetterTimeout time.Duration
	HealthTimeout      time.Duration
	MaxUploadBytes     int64

	HTTPClient *http.Client
}

// Client talks to the document generation API. It never retries.
type Client struct {
	baseURL   string
	imagesURL string

	bypassHeader      string
	bypassHeaderValue string

	downloadTimeout    time.Duration
	uploadTimeout      time.Duration
	coverLetterTimeout time.Duration
	healthTimeout      time.Duration
	maxUploadBytes     int64

	httpClient *http.Client
}

// New constructs a Client, filling unset options with defaults.
func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	images := strings.TrimRight(strings.TrimSpace(opts.ImagesURL), "/")
	if images == "" {
		images = base
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	value := opts.BypassHeaderValue
	if value == "" {
		value = "true"
	}
	return &Client{
		baseURL:            base,
		imagesURL:          images,
		bypassHeader:       strings.TrimSpace(opts.BypassHeader),
		bypassHeaderValue:  value,
		downloadTimeout:    orDefault(opts.DownloadTimeout, defaultDownloadTimeout),
		uploadTimeout:      orDefault(opts.UploadTimeout, defaultUploadTimeout),
		coverLetterTimeout: orDefault(opts.CoverLetterTimeout, defaultCoverLetterTimeout),
		healthTimeout:      orDefault(opts.HealthTimeout, defaultHealthTimeout),
		maxUploadBytes:     orDefaultInt(opts.MaxUploadBytes, defaultMaxUploadBytes),
		httpClient:         httpClient,
	}
}

// MaxUploadBytes reports the upload size ceiling.
func (c *Client) MaxUploadBytes() int64 { return c.maxUploadBytes }

// HealthCheck probes the upstream liveness endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	const op = "health_check"
	resp, err := c.send(ctx, op, c.healthTimeout, outgoing{
		method: http.MethodGet,
		url:    c.baseURL + "/health-check",
		header: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return err
	}
	if !resp.ok() {
		return statusError(op, resp)
	}
	return nil
}

type outgoing struct {
	method string
	url    string
	body   io.Reader
	length int64
	header http.Header
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

// detail extracts a short reason from an error body.
func (r *response) detail() string {
	var payload struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.body, &payload); err == nil {
		if s, ok := payload.Detail.(string); ok && s != "" {
			return s
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	text := strings.TrimSpace(string(r.body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		text = http.StatusText(r.status)
	}
	return text
}

// send runs one request under its own timeout and reads the whole body.
func (c *Client) send(ctx context.Context, op string, timeout time.Duration, out outgoing) (*response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, out.method, out.url, out.body)
	if err != nil {
		return nil, validationError(op, "build request: %v", err)
	}
	if out.length > 0 {
		req.ContentLength = out.length
	}
	for k, v := range out.header {
		req.Header[k] = v
	}
	if c.bypassHeader != "" {
		req.Header.Set(c.bypassHeader, c.bypassHeaderValue)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstreamDuration(time.Since(start))
		telemetry.Warn("upstream.call.failed", map[string]any{
			"op":          op,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"err":         err,
		})
		return nil, classify(op, callCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	metrics.ObserveUpstreamDuration(elapsed)
	if err != nil {
		return nil, classify(op, callCtx, err)
	}
	telemetry.Info("upstream.call", map[string]any{
		"op":          op,
		"status":      resp.StatusCode,
		"bytes":       len(body),
		"duration_ms": float64(elapsed.Microseconds()) / 1000.0,
	})
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}
