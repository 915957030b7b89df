// Package cloud talks to the two remote endpoints: a key/JSON-document store
// and a binary file store, both guarded by the same bearer token.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxErrorBody caps how much of a failed response ends up in a StatusError.
const maxErrorBody = 512

// Client issues requests against the KV and file endpoints.
type Client struct {
	kv   *url.URL
	file *url.URL
	auth Authenticator
	http *http.Client
	now  func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAuth sets the token source.
func WithAuth(auth Authenticator) Option {
	return func(c *Client) { c.auth = auth }
}

// New returns a client for the given endpoint URLs.
func New(kvEndpoint, fileEndpoint string, opts ...Option) (*Client, error) {
	kv, err := parseEndpoint(kvEndpoint)
	if err != nil {
		return nil, fmt.Errorf("kv endpoint: %w", err)
	}
	file, err := parseEndpoint(fileEndpoint)
	if err != nil {
		return nil, fmt.Errorf("file endpoint: %w", err)
	}
	// asset references are recognised by this path, so it must be specific
	if strings.Trim(file.Path, "/") == "" {
		return nil, fmt.Errorf("file endpoint: %w: %q", ErrNoFilePath, fileEndpoint)
	}

	c := &Client{
		kv:   kv,
		file: file,
		http: http.DefaultClient,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func parseEndpoint(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u, nil
}

// GetValue fetches the JSON document stored under key. A cache-busting
// parameter is added so intermediaries never serve a stale copy.
func (c *Client) GetValue(ctx context.Context, key string) (json.RawMessage, error) {
	u := withQuery(c.kv, "key", key, "t", strconv.FormatInt(c.now().UnixNano(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err := checkStatus("get "+key, resp); err != nil {
		return nil, err
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("%w: %q", ErrContentType, resp.Header.Get("Content-Type"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, ErrNotFound
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode %s: invalid JSON body", key)
	}
	return body, nil
}

type putRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// PutValue stores value under key. A 404 is accepted the same way the read
// path accepts it: the endpoint has nothing to say about the key.
func (c *Client) PutValue(ctx context.Context, key string, value json.RawMessage) error {
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(putRequest{Key: key, Value: value}); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.kv.String(), &payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus("put "+key, resp)
}

type uploadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Error   string `json:"error,omitempty"`
}

// UploadFile stores data under key and returns the public URL reported by the
// endpoint.
func (c *Client) UploadFile(ctx context.Context, key, contentType string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, withQuery(c.file, "key", key), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus("upload "+key, resp); err != nil {
		return "", err
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if !out.Success || out.URL == "" {
		return "", fmt.Errorf("%w: %s %s", ErrRejected, key, out.Error)
	}
	return out.URL, nil
}

// DownloadFile returns the bytes stored under key.
func (c *Client) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, withQuery(c.file, "key", key), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := checkStatus("download "+key, resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// FileURL is the URL under which the file endpoint serves key.
func (c *Client) FileURL(key string) string {
	return withQuery(c.file, "key", key)
}

// AssetPattern matches references to the file endpoint inside serialized
// collections. The first submatch is the (query-escaped) asset key.
func (c *Client) AssetPattern() *regexp.Regexp {
	return AssetPattern(c.file.Path)
}

// AssetPattern builds the reference pattern for a file endpoint served at path.
func AssetPattern(path string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(path) + `\?key=([^"'\s&\\<>()]+)`)
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.auth != nil {
		token, err := c.auth.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func withQuery(base *url.URL, kv ...string) string {
	u := *base
	q := u.Query()
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	u.RawQuery = q.Encode()
	return u.String()
}
