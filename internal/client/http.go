package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Credentials authenticate API calls. Token takes precedence over Basic
// credentials when both are set.
type Credentials struct {
	Token    string
	User     string
	Password string
}

// HTTPClient makes REST calls to the HOS API.
type HTTPClient struct {
	baseURL string
	creds   Credentials
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8000").
func NewHTTPClient(baseURL string, creds Credentials, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetStats fetches /api/stats.
func (c *HTTPClient) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.get(ctx, "/api/stats", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetLogs fetches /api/logs?limit=N. The server returns the most recent
// records first.
func (c *HTTPClient) GetLogs(ctx context.Context, limit int) ([]LogRecord, error) {
	path := "/api/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []LogRecord
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRules fetches the OTC rules document as raw JSON.
func (c *HTTPClient) GetRules(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.get(ctx, "/api/otc_rules", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveRules posts {"rules": doc} to /api/otc_rules.
func (c *HTTPClient) SaveRules(ctx context.Context, doc json.RawMessage) error {
	body := map[string]json.RawMessage{"rules": doc}
	return c.post(ctx, "/api/otc_rules", body, nil)
}

// Health fetches /api/health.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Advice submits a symptom as multipart form data to /api/advice.
func (c *HTTPClient) Advice(ctx context.Context, req AdviceRequest) (*AdviceResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("symptom", req.Symptom); err != nil {
		return nil, err
	}
	if req.ImagePath != "" {
		if err := writeFilePart(w, "image", req.ImagePath); err != nil {
			return nil, err
		}
	}
	if req.Location != nil {
		loc, err := json.Marshal(req.Location)
		if err != nil {
			return nil, err
		}
		if err := w.WriteField("location", string(loc)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/advice", &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	var out AdviceResponse
	if err := c.do(httpReq, "/api/advice", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeFilePart(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *HTTPClient) do(req *http.Request, path string, out interface{}) error {
	c.setAuth(req.Header)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{
			Method: req.Method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

func (c *HTTPClient) setAuth(h http.Header) {
	c.creds.apply(h)
}

func (c Credentials) apply(h http.Header) {
	switch {
	case c.Token != "":
		h.Set("Authorization", "Bearer "+c.Token)
	case c.User != "" && c.Password != "":
		raw := c.User + ":" + c.Password
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(raw)))
	}
}

// WebSocketURL derives the notification channel URL from an HTTP base
// URL: http://host → ws://host/ws/logs, https://host → wss://host/ws/logs.
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/logs"
	u.RawQuery = ""
	return u.String(), nil
}
