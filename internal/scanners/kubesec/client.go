package kubesec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	defaultScanTimeout = 30 * time.Second
	userAgent          = "nkpsec/v1"

	// maxResponseSize caps how much of the API response is read. Kubesec
	// responses are small; anything larger indicates a misbehaving endpoint.
	maxResponseSize = 4 << 20
)

// Rule is a single kubesec scoring rule hit.
type Rule struct {
	ID       string `json:"id"`
	Selector string `json:"selector"`
	Reason   string `json:"reason"`
	Points   int    `json:"points"`
}

// Scoring groups rule hits by section.
type Scoring struct {
	Critical []Rule `json:"critical,omitempty"`
	Passed   []Rule `json:"passed,omitempty"`
	Advise   []Rule `json:"advise,omitempty"`
}

// Result is the kubesec v2 API result for one manifest document.
type Result struct {
	Object  string  `json:"object"`
	Valid   bool    `json:"valid"`
	Message string  `json:"message"`
	Score   int     `json:"score"`
	Scoring Scoring `json:"scoring"`
}

// Client talks to a kubesec v2 scan endpoint.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
	endpoint   string
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Timeout bounds a single scan request. Zero means 30s.
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// NewClient creates a kubesec API client. Returns an error if the
// endpoint URL is invalid.
func NewClient(logger *zap.Logger, endpoint string, opts ClientOptions) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("kubesec endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid kubesec endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("kubesec endpoint must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("kubesec endpoint must include a host")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = defaultScanTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger.Named("kubesec-client"),
		endpoint:   endpoint,
	}, nil
}

// ScanManifest submits a YAML manifest and returns one result per document.
func (c *Client) ScanManifest(ctx context.Context, manifest []byte) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(manifest))
	if err != nil {
		return nil, fmt.Errorf("create kubesec request: %w", err)
	}
	req.Header.Set("Content-Type", "text/yaml")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kubesec scan request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read kubesec response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kubesec returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var results []Result
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode kubesec response: %w", err)
	}

	c.logger.Debug("Kubesec scan complete",
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
