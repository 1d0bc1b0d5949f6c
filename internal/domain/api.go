package domain

import (
	"context"
	"time"
)

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	SiteID   string `json:"site_id"`
	Question string `json:"question"`
}

// QueryResponse is a successful answer from the query endpoint.
type QueryResponse struct {
	Answer      string   `json:"answer"`
	Suggestions []string `json:"suggestions,omitempty"`
	Sources     []Source `json:"sources,omitempty"`
}

// WidgetAPI is the network boundary consumed by the conversation controller.
type WidgetAPI interface {
	FetchConfig(ctx context.Context, siteID string) (*WidgetConfig, error)
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
}

// QueryRecord is one resolved query, kept for local diagnostics only.
type QueryRecord struct {
	ID        string        `json:"id"`
	SiteID    string        `json:"site_id"`
	Question  string        `json:"question"`
	Answer    string        `json:"answer"`
	IsError   bool          `json:"is_error"`
	ErrorText string        `json:"error_text,omitempty"`
	Latency   time.Duration `json:"latency"`
	CreatedAt time.Time     `json:"created_at"`
}

// QueryLogger records resolved queries. It is never read back into a
// conversation.
type QueryLogger interface {
	LogQuery(ctx context.Context, rec QueryRecord) error
}

// Viewport is the host's visible area. OnResize registers a listener and
// returns the function that releases it.
type Viewport interface {
	Width() int
	OnResize(fn func(width int)) (release func())
}
