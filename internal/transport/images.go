package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type imagesRequest struct {
	SessionID string   `json:"session_id"`
	Filenames []string `json:"filenames"`
	Filename  string   `json:"filename,omitempty"`
}

// PreviewImages asks the images service for rendered pages of the given artifacts.
func (c *Client) PreviewImages(ctx context.Context, sessionID string, filenames []string) ([]PreviewImage, error) {
	const op = "preview_images"
	if strings.TrimSpace(sessionID) == "" {
		return nil, validationError(op, "session id is missing")
	}
	if len(filenames) == 0 {
		return nil, validationError(op, "no filenames requested")
	}
	for _, name := range filenames {
		if !validFilename(name) {
			return nil, validationError(op, "filename is missing or invalid")
		}
	}

	reqBody := imagesRequest{SessionID: sessionID, Filenames: filenames}
	if len(filenames) == 1 {
		reqBody.Filename = filenames[0]
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, validationError(op, "encode request: %v", err)
	}

	resp, err := c.send(ctx, op, c.downloadTimeout, outgoing{
		method: http.MethodPost,
		url:    c.imagesURL + "/images",
		body:   bytes.NewReader(payload),
		length: int64(len(payload)),
		header: http.Header{
			"Accept":       {"application/json"},
			"Content-Type": {"application/json"},
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound || strings.Contains(strings.ToLower(detailOf(resp.body)), "not found") {
		return nil, &Error{Kind: KindNotFound, Op: op, Status: resp.status, Err: fmt.Errorf("document not found for preview")}
	}
	if !resp.ok() {
		return nil, statusError(op, resp)
	}

	sources, err := decodeImages(resp.body)
	if err != nil {
		return nil, &Error{Kind: KindInvalidResponse, Op: op, Err: err}
	}
	if len(sources) == 0 {
		return nil, &Error{Kind: KindEmptyContent, Op: op, Err: fmt.Errorf("no preview images found")}
	}

	images := make([]PreviewImage, 0, len(sources))
	for i, src := range sources {
		images = append(images, PreviewImage{Page: i + 1, Source: c.resolveImageSource(src)})
	}
	return images, nil
}

func (c *Client) resolveImageSource(src string) string {
	if strings.HasPrefix(src, "/") && !strings.HasPrefix(src, "//") {
		return c.imagesURL + src
	}
	return src
}

func detailOf(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	s, _ := payload.Detail.(string)
	return s
}

// decodeImages accepts a bare string array, {"images": [...]}, or an object
// holding a string array under any other key (checked in key order).
func decodeImages(body []byte) ([]string, error) {
	var list []string
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	if raw, ok := obj["images"]; ok {
		if err := json.Unmarshal(raw, &list); err == nil {
			return list, nil
		}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var candidate []string
		if err := json.Unmarshal(obj[k], &candidate); err == nil && candidate != nil {
			return candidate, nil
		}
	}
	return nil, nil
}
