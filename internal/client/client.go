// Package client talks to a running DocScrub server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dharsanguruparan/DocScrub/internal/model"
)

// Submission is a record as returned by the server.
type Submission struct {
	model.Submission
	OutputURL *string `json:"output_url,omitempty"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
}

// Client is a thin wrapper over the HTTP API. Requests are retried on
// connection errors and 5xx responses.
type Client struct {
	base string
	http *retryablehttp.Client
}

// New returns a Client for the server at baseURL. log may be nil.
func New(baseURL string, log *slog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 60 * time.Second
	rc.Logger = nil
	if log != nil {
		rc.Logger = log
	}
	// A 5xx after an upload may still have created a submission, so POSTs are
	// only retried when the request never reached the server.
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err == nil && resp != nil && resp.Request != nil && resp.Request.Method == http.MethodPost {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: rc}
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/health", nil, "", &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("server reports not ok")
	}
	return nil
}

// Submit uploads the PDF at path with the given replacements.
func (c *Client) Submit(ctx context.Context, path string, pairs model.Replacements) (*Submission, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rawPairs, err := pairs.ObjectJSON()
	if err != nil {
		return nil, fmt.Errorf("encode replacements: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("replacements_json", string(rawPairs)); err != nil {
		return nil, err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(doc); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out Submission
	if err := c.doJSON(ctx, http.MethodPost, "/api/submissions", body.Bytes(), mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one submission.
func (c *Client) Get(ctx context.Context, id string) (*Submission, error) {
	var out Submission
	if err := c.doJSON(ctx, http.MethodGet, "/api/submissions/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List fetches a page of submissions, newest first.
func (c *Client) List(ctx context.Context, limit, offset int) ([]Submission, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var out []Submission
	if err := c.doJSON(ctx, http.MethodGet, "/api/submissions?"+q.Encode(), nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rate stores a rating on a submission.
func (c *Client) Rate(ctx context.Context, id string, rating int, note *string) (*Submission, error) {
	body, err := json.Marshal(map[string]any{"rating": rating, "note": note})
	if err != nil {
		return nil, err
	}
	var out Submission
	if err := c.doJSON(ctx, http.MethodPost, "/api/submissions/"+url.PathEscape(id)+"/rate", body, "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Wait polls until the submission reaches a terminal status.
func (c *Client) Wait(ctx context.Context, id string, every time.Duration) (*Submission, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		sub, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub.Status.Terminal() {
			return sub, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Download writes the processed document to w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/submissions/"+url.PathEscape(id)+"/download", nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read download: %w", err)
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	var payload any
	if body != nil {
		payload = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		var detail struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &detail) != nil || detail.Detail == "" {
			detail.Detail = strings.TrimSpace(string(raw))
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: detail.Detail}
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
