// Package dock toggles the layout root between the hidden and the visible
// docked state and forces dock mode off when the viewport becomes too narrow.
package dock

import (
	"log/slog"
	"sync"

	"zunkiree/internal/dom"
	"zunkiree/internal/domain"
	"zunkiree/internal/layout"
)

// DefaultMinWidth is the narrowest viewport, in CSS pixels, that can host a
// docked panel.
const DefaultMinWidth = 768

// Host exposes the layout root. A nil root means the layout is not
// bootstrapped.
type Host interface {
	Root() *dom.Element
}

// Config configures a Controller.
type Config struct {
	Host     Host
	Viewport domain.Viewport
	MinWidth int // default DefaultMinWidth
	Logger   *slog.Logger
}

// Controller owns the dock state. States are inactive and active; the
// controller starts inactive and can be entered and exited any number of
// times.
type Controller struct {
	host     Host
	viewport domain.Viewport
	minWidth int
	logger   *slog.Logger

	mu          sync.Mutex
	active      bool
	root        *dom.Element
	release     func()
	onForceExit func()
}

func New(cfg Config) *Controller {
	if cfg.MinWidth <= 0 {
		cfg.MinWidth = DefaultMinWidth
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		host:     cfg.Host,
		viewport: cfg.Viewport,
		minWidth: cfg.MinWidth,
		logger:   cfg.Logger,
	}
}

// MinWidth returns the width threshold.
func (c *Controller) MinWidth() int { return c.minWidth }

// CanDock reports whether the viewport is currently wide enough.
func (c *Controller) CanDock() bool {
	return c.viewport == nil || c.viewport.Width() >= c.minWidth
}

// Active reports the dock state.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// EnterDock marks the layout root dock-active and watches the viewport.
// When the viewport drops below the minimum width the controller exits dock
// mode and calls onForceExit once. EnterDock does nothing and returns false
// when the layout root is missing. It also refuses, beyond that root guard,
// when the viewport is already narrower than MinWidth, so a dock that would
// be forced closed on the next resize is never entered. While already active
// it returns true and keeps the original callback.
func (c *Controller) EnterDock(onForceExit func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return true
	}
	root := c.host.Root()
	if root == nil {
		c.logger.Debug("enter dock ignored: layout not bootstrapped")
		return false
	}
	if !c.CanDock() {
		c.logger.Debug("enter dock ignored: viewport too narrow",
			"width", c.viewport.Width(), "min", c.minWidth)
		return false
	}

	root.AddClass(layout.ActiveClass)
	c.root = root
	c.active = true
	c.onForceExit = onForceExit
	if c.viewport != nil {
		c.release = c.viewport.OnResize(c.handleResize)
	}
	c.logger.Debug("dock entered")
	return true
}

// ExitDock removes the dock marker and releases the resize listener. It is
// safe to call in any state.
func (c *Controller) ExitDock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exitLocked()
}

func (c *Controller) exitLocked() bool {
	if c.release != nil {
		c.release()
		c.release = nil
	}
	if c.root != nil {
		c.root.RemoveClass(layout.ActiveClass)
		c.root = nil
	}
	c.onForceExit = nil
	if !c.active {
		return false
	}
	c.active = false
	c.logger.Debug("dock exited")
	return true
}

func (c *Controller) handleResize(width int) {
	if width >= c.minWidth {
		return
	}

	c.mu.Lock()
	notify := c.onForceExit
	if !c.exitLocked() {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.Info("dock force-exited: viewport too narrow", "width", width, "min", c.minWidth)
	if notify != nil {
		notify()
	}
}
