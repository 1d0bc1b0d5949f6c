// Package conversation is the widget's question/answer state machine: visual
// mode, transcript, pending input, loading guard and tenant config.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"zunkiree/internal/api"
	"zunkiree/internal/bus"
	"zunkiree/internal/dock"
	"zunkiree/internal/dom"
	"zunkiree/internal/domain"
	"zunkiree/internal/layout"
	"zunkiree/internal/metrics"
)

// VisualMode selects the collapsed bar or the expanded panel.
type VisualMode string

const (
	ModeCollapsed VisualMode = "collapsed"
	ModeExpanded  VisualMode = "expanded"
)

// DefaultApology is shown when a query fails and the backend gave no message.
const DefaultApology = "Sorry, I couldn't get an answer right now. Please try again."

// PanelClass marks the element mounted into the dock panel.
const PanelClass = "zk-panel"

const eventSource = "conversation"

// Config wires a Controller. API is required; everything else is optional.
type Config struct {
	API         domain.WidgetAPI
	SiteID      string
	Layout      *layout.HostManager
	Dock        *dock.Controller
	Events      *bus.EventBus
	QueryLog    domain.QueryLogger
	MaxMessages int // 0 keeps the whole transcript
	Logger      *slog.Logger
}

// State is a copy of everything a presentation layer can observe.
type State struct {
	Mode         VisualMode
	Messages     []domain.Message
	PendingInput string
	Loading      bool
	Config       domain.WidgetConfig
	ConfigLoaded bool
	Interacted   bool
	Docked       bool
}

// Controller is safe for concurrent use. Its lock is held only for state
// transitions, never across the config fetch or the query.
type Controller struct {
	api         domain.WidgetAPI
	siteID      string
	layout      *layout.HostManager
	dock        *dock.Controller
	events      *bus.EventBus
	queryLog    domain.QueryLogger
	maxMessages int
	logger      *slog.Logger

	initOnce sync.Once

	mu           sync.Mutex
	mode         VisualMode
	messages     []domain.Message
	pending      string
	loading      bool
	config       domain.WidgetConfig
	configLoaded bool
	interacted   bool
	docked       bool
	dockGen      int
	panel        *dom.Element
}

func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxMessages < 0 {
		cfg.MaxMessages = 0
	}
	return &Controller{
		api:         cfg.API,
		siteID:      cfg.SiteID,
		layout:      cfg.Layout,
		dock:        cfg.Dock,
		events:      cfg.Events,
		queryLog:    cfg.QueryLog,
		maxMessages: cfg.MaxMessages,
		logger:      cfg.Logger,
		mode:        ModeCollapsed,
		config:      domain.DefaultWidgetConfig(),
	}
}

// Initialize fetches the tenant config once. Any failure substitutes the
// default config; Initialize itself never fails.
func (c *Controller) Initialize(ctx context.Context) {
	c.initOnce.Do(func() { c.loadConfig(ctx) })
}

func (c *Controller) loadConfig(ctx context.Context) {
	cfg, err := c.fetchConfig(ctx)
	fallback := err != nil
	if fallback {
		c.logger.Warn("widget config unavailable, using defaults", "site", c.siteID, "error", err)
		metrics.ConfigFallbacks.Inc()
		d := domain.DefaultWidgetConfig()
		cfg = &d
	}

	c.mu.Lock()
	c.config = cfg.Clone()
	c.configLoaded = true
	c.mu.Unlock()

	c.logger.Info("widget config loaded", "site", c.siteID, "brand", cfg.BrandName, "fallback", fallback)
	c.emit(event(bus.EventConfigLoaded, map[string]any{"fallback": fallback, "brand": cfg.BrandName}))
}

func (c *Controller) fetchConfig(ctx context.Context) (cfg *domain.WidgetConfig, err error) {
	defer func() {
		if r := recover(); r != nil {
			cfg, err = nil, fmt.Errorf("config fetch panicked: %v", r)
		}
	}()
	cfg, err = c.api.FetchConfig(ctx, c.siteID)
	if err == nil && cfg == nil {
		err = errors.New("empty config")
	}
	return cfg, err
}

// Open expands the panel.
func (c *Controller) Open() {
	c.mu.Lock()
	evs := c.expandLocked()
	c.mu.Unlock()
	c.emit(evs...)
}

// Close collapses the panel, leaving dock mode first. The transcript is kept.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.mode == ModeCollapsed {
		c.mu.Unlock()
		return
	}
	evs := c.undockLocked()
	c.mode = ModeCollapsed
	c.interacted = true
	evs = append(evs, event(bus.EventModeChanged, map[string]any{"mode": string(ModeCollapsed)}))
	c.mu.Unlock()
	c.emit(evs...)
}

func (c *Controller) expandLocked() []bus.Event {
	if c.mode == ModeExpanded {
		return nil
	}
	c.mode = ModeExpanded
	c.interacted = true
	return []bus.Event{event(bus.EventModeChanged, map[string]any{"mode": string(ModeExpanded)})}
}

// SetInput replaces the pending input.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	if c.pending == text {
		c.mu.Unlock()
		return
	}
	c.pending = text
	c.mu.Unlock()
	c.emit(event(bus.EventInputChanged, map[string]any{"input": text}))
}

// SuggestionClick puts text into the input and opens the panel. It does not
// submit.
func (c *Controller) SuggestionClick(text string) {
	c.mu.Lock()
	var evs []bus.Event
	if c.pending != text {
		c.pending = text
		evs = append(evs, event(bus.EventInputChanged, map[string]any{"input": text}))
	}
	evs = append(evs, c.expandLocked()...)
	c.mu.Unlock()
	c.emit(evs...)
}

// SubmitPending submits the current pending input.
func (c *Controller) SubmitPending(ctx context.Context) bool {
	c.mu.Lock()
	q := c.pending
	c.mu.Unlock()
	return c.Submit(ctx, q)
}

// Submit sends question to the backend and appends the answer, or a
// synthetic error message, to the transcript. It returns false without
// touching any state when question is blank or another query is in flight.
// Errors never escape; loading is always cleared before Submit returns.
func (c *Controller) Submit(ctx context.Context, question string) bool {
	if strings.TrimSpace(question) == "" {
		return false
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		c.logger.Debug("submit ignored, query in flight")
		return false
	}
	evs := c.expandLocked()
	user := domain.NewUserMessage(question)
	c.messages = append(c.messages, user)
	evs = append(evs, appendedEvent(user))
	if n := c.pruneErrorsLocked(); n > 0 {
		evs = append(evs, event(bus.EventMessagesPruned, map[string]any{"count": n, "reason": "stale_error"}))
	}
	evs = append(evs, c.trimLocked()...)
	if c.pending != "" {
		c.pending = ""
		evs = append(evs, event(bus.EventInputChanged, map[string]any{"input": ""}))
	}
	c.loading = true
	evs = append(evs, event(bus.EventLoadingChanged, map[string]any{"loading": true}))
	metrics.MessagesInHistory.Set(int64(len(c.messages)))
	c.mu.Unlock()

	finished := false
	finish := func() {
		if !finished {
			finished = true
			c.finishLoading()
		}
	}
	defer finish()
	metrics.Loading.Set(1)
	metrics.QueriesTotal.Inc()
	c.emit(evs...)

	start := time.Now()
	resp, err := c.query(ctx, question)
	latency := time.Since(start)
	metrics.QueryLatency.ObserveDuration(latency)

	var reply domain.Message
	if err != nil {
		c.logger.Warn("query failed", "site", c.siteID, "latency", latency, "error", err)
		metrics.QueryFailures.Inc()
		reply = domain.NewErrorMessage(errorText(err))
	} else {
		c.logger.Info("query answered", "site", c.siteID, "latency", latency, "suggestions", len(resp.Suggestions))
		reply = domain.NewAssistantMessage(resp.Answer, resp.Suggestions, resp.Sources)
	}

	c.mu.Lock()
	c.messages = append(c.messages, reply)
	evs = append([]bus.Event{appendedEvent(reply)}, c.trimLocked()...)
	metrics.MessagesInHistory.Set(int64(len(c.messages)))
	c.mu.Unlock()
	c.emit(evs...)
	finish()

	c.logQuery(ctx, question, reply, err, latency)
	return true
}

func (c *Controller) query(ctx context.Context, question string) (resp *domain.QueryResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("query panicked: %v", r)
		}
	}()
	resp, err = c.api.Query(ctx, domain.QueryRequest{SiteID: c.siteID, Question: question})
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	return resp, err
}

func (c *Controller) finishLoading() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
	metrics.Loading.Set(0)
	c.emit(event(bus.EventLoadingChanged, map[string]any{"loading": false}))
}

// errorText is the backend's own message for a non-2xx response when it sent
// one, otherwise the fixed apology.
func errorText(err error) string {
	var serr *api.StatusError
	if errors.As(err, &serr) && strings.TrimSpace(serr.Message) != "" {
		return serr.Message
	}
	return DefaultApology
}

func (c *Controller) pruneErrorsLocked() int {
	kept := c.messages[:0]
	for _, m := range c.messages {
		if !m.IsError {
			kept = append(kept, m)
		}
	}
	n := len(c.messages) - len(kept)
	clear(c.messages[len(kept):])
	c.messages = kept
	return n
}

func (c *Controller) trimLocked() []bus.Event {
	if c.maxMessages <= 0 || len(c.messages) <= c.maxMessages {
		return nil
	}
	n := len(c.messages) - c.maxMessages
	c.messages = append([]domain.Message(nil), c.messages[n:]...)
	return []bus.Event{event(bus.EventMessagesPruned, map[string]any{"count": n, "reason": "limit"})}
}

func (c *Controller) logQuery(ctx context.Context, question string, reply domain.Message, qerr error, latency time.Duration) {
	if c.queryLog == nil {
		return
	}
	rec := domain.QueryRecord{
		ID:        reply.ID,
		SiteID:    c.siteID,
		Question:  question,
		IsError:   reply.IsError,
		Latency:   latency,
		CreatedAt: reply.CreatedAt,
	}
	if qerr != nil {
		rec.ErrorText = qerr.Error()
	} else {
		rec.Answer = reply.Content
	}
	if err := c.queryLog.LogQuery(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warn("failed to record query", "error", err)
	}
}

// CurrentSuggestions returns the suggestions of the most recent assistant
// message that has any, else the config's quick actions, else an empty list.
func (c *Controller) CurrentSuggestions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.Role == domain.RoleAssistant && len(m.Suggestions) > 0 {
			return append([]string{}, m.Suggestions...)
		}
	}
	return append([]string{}, c.config.QuickActions...)
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]domain.Message, len(c.messages))
	for i, m := range c.messages {
		msgs[i] = m.Clone()
	}
	return State{
		Mode:         c.mode,
		Messages:     msgs,
		PendingInput: c.pending,
		Loading:      c.loading,
		Config:       c.config.Clone(),
		ConfigLoaded: c.configLoaded,
		Interacted:   c.interacted,
		Docked:       c.docked,
	}
}

func (c *Controller) emit(evs ...bus.Event) {
	if c.events == nil {
		return
	}
	for _, e := range evs {
		c.events.Emit(e)
	}
}

func event(typ string, payload map[string]any) bus.Event {
	return bus.Event{Type: typ, Source: eventSource, Payload: payload}
}

func appendedEvent(m domain.Message) bus.Event {
	return event(bus.EventMessageAppended, map[string]any{
		"id":       m.ID,
		"role":     string(m.Role),
		"is_error": m.IsError,
	})
}
