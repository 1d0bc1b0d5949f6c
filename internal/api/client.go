// Package api is the HTTP client for the widget backend: tenant config,
// question answering and health.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"zunkiree/internal/domain"
)

const maxBodyBytes = 1 << 20

// ErrMalformedResponse is returned when a 2xx body cannot be used.
var ErrMalformedResponse = errors.New("malformed response")

// StatusError is returned for non-2xx responses. Message carries the
// human-readable text from the error body, if there was one.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

var _ domain.WidgetAPI = (*Client)(nil)

// Client implements domain.WidgetAPI.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *slog.Logger
}

type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client // overrides Timeout when set
	Logger     *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "zunkiree-widget"
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    cfg.HTTPClient,
		logger:    cfg.Logger,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchConfig loads the tenant widget configuration.
func (c *Client) FetchConfig(ctx context.Context, siteID string) (*domain.WidgetConfig, error) {
	endpoint := c.baseURL + "/api/v1/widget/config/" + url.PathEscape(siteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build config request: %w", err)
	}

	var cfg domain.WidgetConfig
	if err := c.do(req, &cfg); err != nil {
		return nil, fmt.Errorf("fetch widget config: %w", err)
	}
	return &cfg, nil
}

type queryBody struct {
	Answer      *string         `json:"answer"`
	Suggestions []string        `json:"suggestions"`
	Sources     []domain.Source `json:"sources"`
}

// Query asks the backend a question.
func (c *Client) Query(ctx context.Context, q domain.QueryRequest) (*domain.QueryResponse, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/query", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	var body queryBody
	if err := c.do(req, &body); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if body.Answer == nil {
		return nil, fmt.Errorf("query: %w: missing answer", ErrMalformedResponse)
	}
	c.logger.Debug("query answered", "latency", time.Since(start), "suggestions", len(body.Suggestions))

	return &domain.QueryResponse{
		Answer:      *body.Answer,
		Suggestions: body.Suggestions,
		Sources:     body.Sources,
	}, nil
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	var hs HealthStatus
	if err := c.do(req, &hs); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	return &hs, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
		c.logger.Warn("backend returned error", "url", req.URL.Path, "status", resp.StatusCode)
		return serr
	}

	// Every endpoint answers with an object; null or [] would decode to zero values.
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: body is not a JSON object", ErrMalformedResponse)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// errorMessage pulls a human-readable message out of an error body. It
// understands {"detail": "..."}, {"detail": {"message": "..."}},
// {"message": "..."} and {"error": "..."}.
func errorMessage(data []byte) string {
	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body.Detail, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
