package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"
)

type resumeUploadResponse struct {
	SessionID        string `json:"session_id"`
	ClassicResumeURL string `json:"classic_resume_url"`
	ModernResumeURL  string `json:"modern_resume_url"`
}

type coverLetterUploadResponse struct {
	SessionID           string `json:"session_id"`
	FileName            string `json:"file_name"`
	Filename            string `json:"filename"`
	CoverLetterFilename string `json:"cover_letter_filename"`
}

func (r coverLetterUploadResponse) artifactFilename() string {
	for _, v := range []string{r.FileName, r.Filename, r.CoverLetterFilename} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ValidateFile checks the PDF-only and size preconditions shared by all uploads.
func ValidateFile(f File, maxBytes int64) error {
	const op = "validate_file"
	if f.Body == nil {
		return validationError(op, "Please select a file to upload.")
	}
	if !strings.EqualFold(strings.TrimSpace(f.ContentType), PDFContentType) {
		return validationError(op, "Invalid file type: %s. Please upload PDF files only.", f.Name)
	}
	if maxBytes > 0 && f.Size > maxBytes {
		return validationError(op, "File too large: %s. Maximum size is %dMB.", f.Name, maxBytes/(1<<20))
	}
	return nil
}

// Upload sends a resume for enhancement and returns the classic and modern artifacts.
func (c *Client) Upload(ctx context.Context, f File, progress ProgressFunc) (UploadSession, error) {
	const op = "upload_resume"
	body, err := c.postMultipart(ctx, op, "/upload-resume", c.uploadTimeout, f, nil, progress)
	if err != nil {
		return UploadSession{}, err
	}
	if err := validateBody(op, resumeUploadSchema, body); err != nil {
		return UploadSession{}, err
	}
	var parsed resumeUploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return UploadSession{}, &Error{Kind: KindInvalidResponse, Op: op, Err: err}
	}
	return UploadSession{
		SessionID: parsed.SessionID,
		Artifacts: []Artifact{
			{Name: ArtifactClassic, Filename: parsed.ClassicResumeURL},
			{Name: ArtifactModern, Filename: parsed.ModernResumeURL},
		},
	}, nil
}

// GenerateCoverLetter uploads a resume with job details and returns the cover letter artifact.
func (c *Client) GenerateCoverLetter(ctx context.Context, f File, fields CoverLetterFields, progress ProgressFunc) (UploadSession, error) {
	const op = "generate_cover_letter"
	extra := [][2]string{
		{"company", fields.Company},
		{"location", fields.Location},
		{"job_title", fields.JobTitle},
		{"job_description", fields.JobDescription},
	}
	body, err := c.postMultipart(ctx, op, "/generate-cover-letter", c.coverLetterTimeout, f, extra, progress)
	if err != nil {
		return UploadSession{}, err
	}
	if err := validateBody(op, coverLetterUploadSchema, body); err != nil {
		return UploadSession{}, err
	}
	var parsed coverLetterUploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return UploadSession{}, &Error{Kind: KindInvalidResponse, Op: op, Err: err}
	}
	return UploadSession{
		SessionID: parsed.SessionID,
		Artifacts: []Artifact{{Name: ArtifactCoverLetter, Filename: parsed.artifactFilename()}},
	}, nil
}

func (c *Client) postMultipart(ctx context.Context, op, path string, timeout time.Duration, f File, fields [][2]string, progress ProgressFunc) ([]byte, error) {
	if err := ValidateFile(f, c.maxUploadBytes); err != nil {
		return nil, err
	}

	payload, contentType, err := buildMultipart(f, fields, c.maxUploadBytes)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}

	if err := c.HealthCheck(ctx); err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: op, Err: err}
	}

	resp, err := c.send(ctx, op, timeout, outgoing{
		method: http.MethodPost,
		url:    c.baseURL + path,
		body:   newProgressReader(payload, progress),
		length: int64(len(payload)),
		header: http.Header{
			"Accept":       {"application/json"},
			"Content-Type": {contentType},
		},
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, statusError(op, resp)
	}
	if len(bytes.TrimSpace(resp.body)) == 0 {
		return nil, &Error{Kind: KindInvalidResponse, Op: op, Err: fmt.Errorf("no data received from server")}
	}
	return resp.body, nil
}

// buildMultipart encodes the body once so its length is known for progress.
func buildMultipart(f File, fields [][2]string, maxBytes int64) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(f.Name)))
	h.Set("Content-Type", PDFContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	n, err := io.Copy(part, io.LimitReader(f.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	if n > maxBytes {
		return nil, "", fmt.Errorf("File too large: %s. Maximum size is %dMB.", f.Name, maxBytes/(1<<20))
	}
	if n == 0 {
		return nil, "", fmt.Errorf("File is empty: %s.", f.Name)
	}

	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

// progressReader reports the share of the body handed to the HTTP transport.
type progressReader struct {
	r     *bytes.Reader
	total int64
	fn    ProgressFunc

	mu   sync.Mutex
	read int64
	last int
}

func newProgressReader(payload []byte, fn ProgressFunc) io.Reader {
	if fn == nil {
		return bytes.NewReader(payload)
	}
	return &progressReader{r: bytes.NewReader(payload), total: int64(len(payload)), fn: fn, last: -1}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.mu.Lock()
	p.read += int64(n)
	pct := 100
	if p.total > 0 {
		pct = int(p.read * 100 / p.total)
	}
	report := pct > p.last
	if report {
		p.last = pct
	}
	p.mu.Unlock()
	if report {
		p.fn(pct)
	}
	return n, err
}
