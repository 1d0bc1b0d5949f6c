// Package browser drives a real page in Chrome so the layout and dock code
// can be exercised against actual CSS layout.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"zunkiree/internal/dom"
)

// Bridge starts Chrome instances that share one profile directory.
type Bridge struct {
	profileDir   string
	headless     bool
	userAgent    string
	pollInterval time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

// BridgeConfig holds configuration for the browser bridge.
type BridgeConfig struct {
	ProfileDir   string // Chrome user data directory; empty uses ~/.zunkiree/chrome-profile
	Headless     bool
	UserAgent    string
	PollInterval time.Duration // Watch sampling period
	Timeout      time.Duration // per browser round trip
	Logger       *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".zunkiree", "chrome-profile")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		profileDir:   cfg.ProfileDir,
		headless:     cfg.Headless,
		userAgent:    cfg.UserAgent,
		pollInterval: cfg.PollInterval,
		timeout:      cfg.Timeout,
		logger:       cfg.Logger,
	}
}

// NewContext creates a new chromedp context with the bridge's Chrome profile.
// The caller MUST call cancel() when done.
func (b *Bridge) NewContext(parentCtx context.Context) (context.Context, context.CancelFunc) {
	if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
		b.logger.Error("failed to create profile dir", "dir", b.profileDir, "err", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
	)
	if b.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.userAgent))
	}
	if b.headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	cancelAll := func() {
		taskCancel()
		allocCancel()
	}

	return taskCtx, cancelAll
}

// Open loads url at the given viewport size and mirrors the page body into
// an in-memory document. Close the page when done.
func (b *Bridge) Open(ctx context.Context, url string, width, height int) (*Page, error) {
	tab, cancel := b.NewContext(ctx)
	// The first Run allocates the browser and tab; later runs may use
	// derived contexts without closing the tab.
	if err := chromedp.Run(tab); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	p := &Page{
		tab:          tab,
		cancel:       cancel,
		window:       dom.NewWindow(width, height),
		pollInterval: b.pollInterval,
		timeout:      b.timeout,
		logger:       b.logger,
	}

	var nodes []Node
	err := p.run(ctx,
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(snapshotScript, &nodes),
	)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	p.doc = BuildDocument(p.window, nodes)
	b.logger.Debug("page loaded", "url", url, "elements", len(nodes))
	return p, nil
}
