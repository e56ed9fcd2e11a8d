package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"transitdocs/internal/config"
	"transitdocs/internal/model"
)

// Package analysis wraps the HTTP contract to the external document-analysis
// service. The client holds no state between calls beyond its http.Client.

const (
	// DefaultImportQuery selects unread messages with attachments from the
	// last 30 days.
	DefaultImportQuery = "is:unread has:attachment newer_than:30d"
	// DefaultImportMax caps a single import run.
	DefaultImportMax = 25
)

// AuthURL is the OAuth handoff returned by the analysis backend. State is an
// opaque token the caller must round-trip to ImportFromGmail.
type AuthURL struct {
	URL   string `json:"auth_url"`
	State string `json:"state"`
}

// ImportResult reports how many attachments the backend imported.
type ImportResult struct {
	Imported int `json:"imported"`
}

// Client is the remote analysis service surface consumed by this service.
type Client interface {
	// AnalyzeDocument submits a base64 data URL plus filename, optionally
	// with a free-text instruction, and returns the classification tuple.
	AnalyzeDocument(ctx context.Context, fileData, filename, instruction string) (*model.Analysis, error)
	// GmailAuthURL retrieves an authorization URL and opaque state token.
	GmailAuthURL(ctx context.Context, userID string) (*AuthURL, error)
	// ImportFromGmail triggers a server-side import for the given state.
	// Empty query or non-positive maxResults fall back to the defaults.
	ImportFromGmail(ctx context.Context, state, query string, maxResults int) (*ImportResult, error)
	// Health fetches the backend's liveness payload.
	Health(ctx context.Context) (map[string]any, error)
}

// HTTPClient implements Client against a configured base URL.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a client from config. The timeout bounds every call,
// including document analysis, which can take tens of seconds on large PDFs.
func NewHTTPClient(cfg config.AnalysisConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

var _ Client = (*HTTPClient)(nil)

type analyzeRequest struct {
	FileData    string `json:"file_data"`
	Filename    string `json:"filename"`
	Instruction string `json:"instruction,omitempty"`
}

func (c *HTTPClient) AnalyzeDocument(ctx context.Context, fileData, filename, instruction string) (*model.Analysis, error) {
	body := analyzeRequest{FileData: fileData, Filename: filename, Instruction: instruction}
	var out model.Analysis
	if err := c.postJSON(ctx, "/analyze-document", body, &out, func(status int, msg string) error {
		return NewAnalysisError(status, msg)
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GmailAuthURL(ctx context.Context, userID string) (*AuthURL, error) {
	u := c.baseURL + "/gmail/auth-url?user_id=" + url.QueryEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get gmail auth url: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewAuthURLError(resp.StatusCode, errorField(raw))
	}
	var out AuthURL
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse auth url response: %w", err)
	}
	return &out, nil
}

type importRequest struct {
	State      string `json:"state"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (c *HTTPClient) ImportFromGmail(ctx context.Context, state, query string, maxResults int) (*ImportResult, error) {
	if query == "" {
		query = DefaultImportQuery
	}
	if maxResults <= 0 {
		maxResults = DefaultImportMax
	}
	body := importRequest{State: state, Query: query, MaxResults: maxResults}
	var out ImportResult
	if err := c.postJSON(ctx, "/gmail/import", body, &out, func(status int, msg string) error {
		return NewImportError(status, msg)
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Health(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse health response: %w", err)
	}
	return out, nil
}

// postJSON posts body to path and decodes a 200 response into out. On non-2xx
// it builds the operation's typed error from the body's "error" field.
func (c *HTTPClient) postJSON(ctx context.Context, path string, body, out any, mkErr func(status int, msg string) error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return mkErr(resp.StatusCode, errorField(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w, body: %s", err, string(raw))
	}
	return nil
}

// errorField pulls the "error" field out of an error body, if it is JSON.
func errorField(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Error
}
