package browser

import (
	"encoding/json"
	"fmt"

	"zunkiree/internal/dom"
)

// Node is one element of a page snapshot.
type Node struct {
	Tag      string   `json:"tag"`
	ID       string   `json:"id,omitempty"`
	Classes  []string `json:"classes,omitempty"`
	Children []Node   `json:"children,omitempty"`
}

// snapshotScript returns the element tree of document.body, three levels
// deep, without script and style elements.
const snapshotScript = `(function() {
	var skip = {SCRIPT: 1, STYLE: 1, NOSCRIPT: 1, TEMPLATE: 1};
	function walk(el, depth) {
		var kids = [];
		if (depth < 3) {
			for (var i = 0; i < el.children.length; i++) {
				if (!skip[el.children[i].tagName]) kids.push(walk(el.children[i], depth + 1));
			}
		}
		return {tag: el.tagName.toLowerCase(), id: el.id || '', classes: Array.from(el.classList), children: kids};
	}
	var out = [];
	for (var i = 0; i < document.body.children.length; i++) {
		var c = document.body.children[i];
		if (!skip[c.tagName]) out.push(walk(c, 0));
	}
	return out;
})()`

// BuildDocument creates a document whose body holds the snapshot nodes.
func BuildDocument(win *dom.Window, nodes []Node) *dom.Document {
	doc := dom.NewDocument(win)
	for _, n := range nodes {
		doc.Body().AppendChild(buildElement(doc, n))
	}
	return doc
}

func buildElement(doc *dom.Document, n Node) *dom.Element {
	tag := n.Tag
	if tag == "" {
		tag = "div"
	}
	el := doc.CreateElement(tag)
	if n.ID != "" {
		el.SetID(n.ID)
	}
	for _, c := range n.Classes {
		el.AddClass(c)
	}
	for _, child := range n.Children {
		el.AppendChild(buildElement(doc, child))
	}
	return el
}

type syncState struct {
	Bootstrapped bool   `json:"bootstrapped"`
	Active       bool   `json:"active"`
	StyleID      string `json:"styleId"`
	RootID       string `json:"rootId"`
	HostID       string `json:"hostId"`
	PanelID      string `json:"panelId"`
	ActiveClass  string `json:"activeClass"`
	CSS          string `json:"css"`
}

// syncBody bootstraps or destroys the dock layout on the live page, toggles
// the active class, and returns a Measurement. The panel transition is
// disabled so the widths read back are final.
const syncBody = `(function(s) {
	var d = document;
	var root = d.getElementById(s.rootId);
	if (s.bootstrapped && !root) {
		if (!d.getElementById(s.styleId)) {
			var st = d.createElement('style');
			st.id = s.styleId;
			st.setAttribute('data-zk-injected', '1');
			st.textContent = s.css;
			d.head.appendChild(st);
		}
		root = d.createElement('div');
		root.id = s.rootId;
		var host = d.createElement('div');
		host.id = s.hostId;
		var panel = d.createElement('div');
		panel.id = s.panelId;
		panel.style.transition = 'none';
		while (d.body.firstChild) host.appendChild(d.body.firstChild);
		root.appendChild(host);
		root.appendChild(panel);
		d.body.appendChild(root);
	}
	if (!s.bootstrapped && root) {
		var wrapped = d.getElementById(s.hostId);
		while (wrapped && wrapped.firstChild) d.body.insertBefore(wrapped.firstChild, root);
		root.remove();
		var injected = d.getElementById(s.styleId);
		if (injected && injected.getAttribute('data-zk-injected')) injected.remove();
		root = null;
	}
	if (root) {
		if (s.active) root.classList.add(s.activeClass); else root.classList.remove(s.activeClass);
	}
	var h = d.getElementById(s.hostId), p = d.getElementById(s.panelId);
	return {
		viewport: window.innerWidth,
		host: h ? Math.round(h.getBoundingClientRect().width) : window.innerWidth,
		panel: p ? Math.round(p.getBoundingClientRect().width) : 0,
		active: !!(root && root.classList.contains(s.activeClass))
	};
})`

func syncScript(s syncState) (string, error) {
	arg, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode sync state: %w", err)
	}
	return syncBody + "(" + string(arg) + ")", nil
}
