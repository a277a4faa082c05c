package transport

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"cvalue-web/internal/shared/metrics"
)

// Download fetches a generated PDF and verifies it really is one.
func (c *Client) Download(ctx context.Context, sessionID, filename string) (Blob, error) {
	const op = "download"
	if strings.TrimSpace(sessionID) == "" {
		return Blob{}, validationError(op, "session id is missing")
	}
	if !validFilename(filename) {
		return Blob{}, validationError(op, "filename is missing or invalid")
	}

	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("filename", filename)

	resp, err := c.send(ctx, op, c.downloadTimeout, outgoing{
		method: http.MethodGet,
		url:    c.baseURL + "/download?" + q.Encode(),
		header: http.Header{"Accept": {PDFContentType}},
	})
	if err != nil {
		metrics.IncDownload(false)
		return Blob{}, err
	}
	if !resp.ok() {
		metrics.IncDownload(false)
		return Blob{}, statusError(op, resp)
	}
	if !strings.Contains(strings.ToLower(resp.header.Get("Content-Type")), PDFContentType) {
		metrics.IncDownload(false)
		return Blob{}, &Error{Kind: KindContentType, Op: op, Err: errContentType(resp.header.Get("Content-Type"))}
	}
	if len(resp.body) == 0 {
		metrics.IncDownload(false)
		return Blob{}, &Error{Kind: KindEmptyContent, Op: op}
	}
	metrics.IncDownload(true)
	return Blob{Data: resp.body, ContentType: PDFContentType, Filename: filename}, nil
}

func validFilename(name string) bool {
	switch strings.TrimSpace(name) {
	case "", "undefined", "null":
		return false
	}
	return true
}

type contentTypeError string

func (e contentTypeError) Error() string {
	if e == "" {
		return "server did not return a PDF (no content type)"
	}
	return "server did not return a PDF (got " + string(e) + ")"
}

func errContentType(got string) error { return contentTypeError(got) }
