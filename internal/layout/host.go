// Package layout restructures a host document so a dock panel can sit
// beside the original page content, and undoes that restructuring exactly.
package layout

import (
	"log/slog"

	"zunkiree/internal/dom"
)

// Fixed identifiers of everything the manager adds to the page.
const (
	StyleID       = "zk-dock-styles"
	RootID        = "zk-dock-root"
	HostContentID = "zk-host-content"
	DockPanelID   = "zk-dock-panel"

	// ActiveClass on the root is the only signal the presentation layer
	// uses to reveal the dock panel.
	ActiveClass = "zk-dock-active"
)

// Stylesheet is injected once per bootstrap. The panel is zero width until
// the root carries ActiveClass.
const Stylesheet = `#zk-dock-root{display:flex;flex-direction:row;width:100%;min-height:100vh}
#zk-host-content{flex:1 1 auto;min-width:0;overflow:auto}
#zk-dock-panel{flex:0 0 auto;width:0;overflow:hidden;transition:width .25s ease}
#zk-dock-root.zk-dock-active #zk-dock-panel{width:400px;border-left:1px solid rgba(0,0,0,.1)}`

// HostManager owns the root container, the host-content wrapper, the dock
// panel container and the injected stylesheet. Whatever is mounted inside
// the dock panel belongs to the caller.
//
// HostManager is not safe for concurrent use; all calls are expected from
// the goroutine that owns the document.
type HostManager struct {
	doc    *dom.Document
	logger *slog.Logger

	bootstrapped bool
	style        *dom.Element
	root         *dom.Element
	host         *dom.Element
	panel        *dom.Element
}

func NewHostManager(doc *dom.Document, logger *slog.Logger) *HostManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostManager{doc: doc, logger: logger}
}

// Bootstrap wraps every existing body child in the host-content container
// and adds an empty dock panel beside it. A second call is a no-op.
func (m *HostManager) Bootstrap() {
	if m.bootstrapped {
		return
	}

	// A stylesheet already present under the fixed ID is reused and left in
	// place on Destroy; only one we injected is removed.
	if m.doc.GetElementByID(StyleID) == nil {
		style := m.doc.CreateElement("style")
		style.SetID(StyleID)
		style.SetText(Stylesheet)
		m.doc.Head().AppendChild(style)
		m.style = style
	}

	root := m.doc.CreateElement("div")
	root.SetID(RootID)
	host := m.doc.CreateElement("div")
	host.SetID(HostContentID)
	panel := m.doc.CreateElement("div")
	panel.SetID(DockPanelID)
	root.AppendChild(host)
	root.AppendChild(panel)

	body := m.doc.Body()
	moved := body.Children()
	for _, child := range moved {
		host.AppendChild(child)
	}
	body.AppendChild(root)

	m.root, m.host, m.panel = root, host, panel
	m.bootstrapped = true
	m.logger.Debug("layout bootstrapped", "moved", len(moved))
}

// Destroy returns the wrapped children to the body in their original order,
// then removes the root and the stylesheet. It is a no-op when not
// bootstrapped and may be called any number of times.
func (m *HostManager) Destroy() {
	if !m.bootstrapped {
		return
	}

	body := m.doc.Body()
	restored := m.host.Children()
	if m.root.Parent() == body {
		for _, child := range restored {
			body.InsertBefore(child, m.root)
		}
	} else {
		for _, child := range restored {
			body.AppendChild(child)
		}
	}
	m.root.Remove()
	if m.style != nil {
		m.style.Remove()
	}

	m.style, m.root, m.host, m.panel = nil, nil, nil, nil
	m.bootstrapped = false
	m.logger.Debug("layout destroyed", "restored", len(restored))
}

// Bootstrapped reports whether the layout currently wraps the page.
func (m *HostManager) Bootstrapped() bool { return m.bootstrapped }

// Root returns the root container, or nil when not bootstrapped.
func (m *HostManager) Root() *dom.Element {
	if !m.bootstrapped {
		return nil
	}
	return m.root
}

// HostContent returns the wrapper holding the original page content.
func (m *HostManager) HostContent() (*dom.Element, bool) {
	if !m.bootstrapped {
		return nil, false
	}
	return m.host, true
}

// DockPanel returns the mount point for a docked panel.
func (m *HostManager) DockPanel() (*dom.Element, bool) {
	if !m.bootstrapped {
		return nil, false
	}
	return m.panel, true
}

// Document returns the managed document.
func (m *HostManager) Document() *dom.Document { return m.doc }
