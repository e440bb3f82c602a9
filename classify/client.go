// Package classify calls the remote relevance service: given a page's
// content and the session focus, it answers Relevant or Irrelevant.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrQuotaExhausted is returned when the service rejects the request
// with HTTP 429. Callers treat it as a latched limit, not a transient
// failure.
var ErrQuotaExhausted = errors.New("classify: quota exhausted")

// Assessment is the service's verdict on a page.
type Assessment string

const (
	Relevant   Assessment = "Relevant"
	Irrelevant Assessment = "Irrelevant"
)

// Request carries everything the service needs for one verdict.
type Request struct {
	URL             string `json:"url"`
	Title           string `json:"title"`
	MetaDescription string `json:"meta_description"`
	MetaKeywords    string `json:"meta_keywords"`
	PageTextSnippet string `json:"page_text_snippet"`
	SessionFocus    string `json:"session_focus"`
}

// Config configures the Client.
type Config struct {
	// Endpoint is the service base URL, e.g. "https://api.example.com".
	Endpoint string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Timeout bounds one classification round trip. Default 20s.
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client is a thin HTTP client for the classification endpoint.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		client:   hc,
	}
}

type classifyResponse struct {
	Assessment string `json:"assessment"`
}

// Classify sends one page for assessment. On HTTP 429 it returns
// ErrQuotaExhausted; any other non-2xx status is a hard error.
func (c *Client) Classify(ctx context.Context, req Request) (Assessment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("classify: marshal request: %w", err)
	}

	url := c.endpoint + "/v1/classify"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("classify: POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrQuotaExhausted
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("classify: HTTP %d from %s: %s", resp.StatusCode, url, string(respBody))
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("classify: decode response: %w", err)
	}

	switch Assessment(result.Assessment) {
	case Relevant, Irrelevant:
		return Assessment(result.Assessment), nil
	default:
		return "", fmt.Errorf("classify: unknown assessment %q", result.Assessment)
	}
}
