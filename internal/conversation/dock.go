package conversation

import (
	"zunkiree/internal/bus"
	"zunkiree/internal/metrics"
)

// Dock opens the panel and moves it into the docked side region. It returns
// false when no dock is configured or the dock controller refuses, in which
// case the panel stays floating.
func (c *Controller) Dock() bool {
	if c.dock == nil || c.layout == nil {
		return false
	}

	c.mu.Lock()
	if c.docked {
		c.mu.Unlock()
		return true
	}
	evs := c.expandLocked()
	c.layout.Bootstrap()
	c.dockGen++
	gen := c.dockGen
	if !c.dock.EnterDock(func() { c.handleForcedExit(gen) }) {
		c.mu.Unlock()
		c.logger.Info("dock refused", "min_width", c.dock.MinWidth())
		c.emit(evs...)
		return false
	}
	c.mountPanelLocked()
	c.docked = true
	evs = append(evs, event(bus.EventDockEntered, nil))
	c.mu.Unlock()

	metrics.DockEntered.Inc()
	c.emit(evs...)
	return true
}

// Undock leaves dock mode. The panel stays expanded.
func (c *Controller) Undock() bool {
	c.mu.Lock()
	evs := c.undockLocked()
	c.mu.Unlock()
	c.emit(evs...)
	return len(evs) > 0
}

func (c *Controller) undockLocked() []bus.Event {
	if !c.docked {
		return nil
	}
	c.dock.ExitDock()
	c.unmountPanelLocked()
	c.docked = false
	return []bus.Event{event(bus.EventDockExited, map[string]any{"forced": false})}
}

// handleForcedExit runs after the dock controller has already left dock mode
// because the viewport became too narrow. gen ties the callback to the dock
// session that registered it.
func (c *Controller) handleForcedExit(gen int) {
	c.mu.Lock()
	if !c.docked || gen != c.dockGen {
		c.mu.Unlock()
		return
	}
	c.unmountPanelLocked()
	c.docked = false
	c.mu.Unlock()

	c.logger.Info("dock exited, viewport too narrow")
	metrics.DockForcedExits.Inc()
	c.emit(
		event(bus.EventDockExited, map[string]any{"forced": true}),
		event(bus.EventDockForcedExit, nil),
	)
}

func (c *Controller) mountPanelLocked() {
	slot, ok := c.layout.DockPanel()
	if !ok {
		return
	}
	panel := c.layout.Document().CreateElement("div")
	panel.AddClass(PanelClass)
	panel.SetAttribute("data-brand", c.config.BrandName)
	panel.SetAttribute("data-color", c.config.PrimaryColor)
	slot.AppendChild(panel)
	c.panel = panel
}

func (c *Controller) unmountPanelLocked() {
	if c.panel != nil {
		c.panel.Remove()
		c.panel = nil
	}
}

// Teardown leaves dock mode and restores the host layout. The transcript and
// visual mode are kept.
func (c *Controller) Teardown() {
	c.mu.Lock()
	evs := c.undockLocked()
	if c.layout != nil {
		c.layout.Destroy()
	}
	c.mu.Unlock()
	c.emit(evs...)
}
