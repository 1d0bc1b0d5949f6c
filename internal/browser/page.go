package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"zunkiree/internal/dom"
	"zunkiree/internal/layout"
)

// Page is one open tab. Its Window implements domain.Viewport, so a dock
// controller attached to it sees the real browser's resizes.
type Page struct {
	tab          context.Context
	cancel       context.CancelFunc
	window       *dom.Window
	doc          *dom.Document
	pollInterval time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

// Measurement is the rendered geometry after a Sync, in CSS pixels.
type Measurement struct {
	Viewport int  `json:"viewport"`
	Host     int  `json:"host"`
	Panel    int  `json:"panel"`
	Active   bool `json:"active"`
}

func (p *Page) Window() *dom.Window     { return p.window }
func (p *Page) Document() *dom.Document { return p.doc }

// Close shuts the tab and its browser.
func (p *Page) Close() { p.cancel() }

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(p.tab, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tctx, actions...)
}

// SetWidth emulates a new viewport width and resizes the Window to what the
// page reports, which notifies resize listeners.
func (p *Page) SetWidth(ctx context.Context, width int) error {
	height := p.window.Height()
	if err := p.run(ctx, chromedp.EmulateViewport(int64(width), int64(height))); err != nil {
		return fmt.Errorf("emulate viewport %d: %w", width, err)
	}
	return p.refresh(ctx)
}

func (p *Page) refresh(ctx context.Context) error {
	var dims []int
	if err := p.run(ctx, chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &dims)); err != nil {
		return fmt.Errorf("read viewport: %w", err)
	}
	if len(dims) != 2 {
		return fmt.Errorf("read viewport: unexpected result %v", dims)
	}
	p.window.Resize(dims[0], dims[1])
	return nil
}

// Watch samples the page's viewport every poll interval until ctx is done,
// so manual resizes of a visible browser reach the Window. onTick, if set,
// runs after every sample.
func (p *Page) Watch(ctx context.Context, onTick func()) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if onTick != nil {
				onTick()
			}
		}
	}
}

// Sync applies the host manager's current structure to the real page and
// measures the result.
func (p *Page) Sync(ctx context.Context, host *layout.HostManager) (Measurement, error) {
	state := syncState{
		Bootstrapped: host.Bootstrapped(),
		StyleID:      layout.StyleID,
		RootID:       layout.RootID,
		HostID:       layout.HostContentID,
		PanelID:      layout.DockPanelID,
		ActiveClass:  layout.ActiveClass,
		CSS:          layout.Stylesheet,
	}
	if root := host.Root(); root != nil {
		state.Active = root.HasClass(layout.ActiveClass)
	}
	script, err := syncScript(state)
	if err != nil {
		return Measurement{}, err
	}
	var m Measurement
	if err := p.run(ctx, chromedp.Evaluate(script, &m)); err != nil {
		return Measurement{}, fmt.Errorf("sync layout: %w", err)
	}
	return m, nil
}
