// Package dom is a small in-memory model of a hosting document: an element
// tree with IDs, classes and attributes, plus a Window carrying the viewport
// width. It covers what the widget runtime needs to restructure a page and
// nothing more.
package dom

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Element is a node in the document tree. Moving an element between parents
// keeps its identity; nothing is ever copied.
type Element struct {
	tag      string
	id       string
	text     string
	classes  []string
	attrs    map[string]string
	parent   *Element
	children []*Element
}

// NewElement creates a detached element.
func NewElement(tag string) *Element {
	return &Element{tag: strings.ToLower(tag), attrs: make(map[string]string)}
}

func (e *Element) Tag() string { return e.tag }
func (e *Element) ID() string { return e.id }
func (e *Element) SetID(id string) { e.id = id }
func (e *Element) Text() string { return e.text }
func (e *Element) SetText(t string) { e.text = t }
func (e *Element) Parent() *Element { return e.parent }
func (e *Element) ChildCount() int { return len(e.children) }

// Contains reports whether other is e or one of its descendants.
func (e *Element) Contains(other *Element) bool {
	for n := other; n != nil; n = n.parent {
		if n == e {
			return true
		}
	}
	return false
}

// Children returns a snapshot of the child list.
func (e *Element) Children() []*Element {
	out := make([]*Element, len(e.children))
	copy(out, e.children)
	return out
}

// Attribute returns the attribute value and whether it is set.
func (e *Element) Attribute(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *Element) SetAttribute(name, value string) { e.attrs[name] = value }
func (e *Element) RemoveAttribute(name string) { delete(e.attrs, name) }

// AddClass adds a class token; adding an existing token is a no-op.
func (e *Element) AddClass(name string) {
	if e.HasClass(name) {
		return
	}
	e.classes = append(e.classes, name)
}

// RemoveClass removes a class token if present.
func (e *Element) RemoveClass(name string) {
	for i, c := range e.classes {
		if c == name {
			e.classes = append(e.classes[:i], e.classes[i+1:]...)
			return
		}
	}
}

func (e *Element) HasClass(name string) bool {
	for _, c := range e.classes {
		if c == name {
			return true
		}
	}
	return false
}

// Classes returns a snapshot of the class list.
func (e *Element) Classes() []string {
	return append([]string(nil), e.classes...)
}

// AppendChild moves child to the end of e's children, detaching it from any
// previous parent first.
func (e *Element) AppendChild(child *Element) {
	e.InsertBefore(child, nil)
}

// InsertBefore moves child directly before ref. A nil ref appends. It panics
// if ref is not a child of e or if the move would create a cycle.
func (e *Element) InsertBefore(child, ref *Element) {
	if child == nil {
		return
	}
	if child.Contains(e) {
		panic(fmt.Sprintf("dom: inserting <%s> into its own descendant", child.tag))
	}
	if ref != nil && ref.parent != e {
		panic("dom: reference node is not a child")
	}
	if child == ref {
		return
	}
	child.Remove()
	if ref == nil {
		e.children = append(e.children, child)
		child.parent = e
		return
	}
	idx := e.indexOf(ref)
	e.children = append(e.children, nil)
	copy(e.children[idx+1:], e.children[idx:])
	e.children[idx] = child
	child.parent = e
}

// RemoveChild detaches child if it belongs to e.
func (e *Element) RemoveChild(child *Element) {
	if child == nil || child.parent != e {
		return
	}
	idx := e.indexOf(child)
	e.children = append(e.children[:idx], e.children[idx+1:]...)
	child.parent = nil
}

// Remove detaches e from its parent.
func (e *Element) Remove() {
	if e.parent != nil {
		e.parent.RemoveChild(e)
	}
}

func (e *Element) indexOf(child *Element) int {
	for i, c := range e.children {
		if c == child {
			return i
		}
	}
	return -1
}

// Find returns the first element in e's subtree (e included) matching fn.
func (e *Element) Find(fn func(*Element) bool) *Element {
	if fn(e) {
		return e
	}
	for _, c := range e.children {
		if found := c.Find(fn); found != nil {
			return found
		}
	}
	return nil
}

// WriteOutline writes an indented tag outline of the subtree, used by the
// preview command and in test failure output.
func (e *Element) WriteOutline(w io.Writer) error {
	return e.writeOutline(w, 0)
}

func (e *Element) writeOutline(w io.Writer, depth int) error {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString("<" + e.tag)
	if e.id != "" {
		sb.WriteString(" id=\"" + e.id + "\"")
	}
	if len(e.classes) > 0 {
		sb.WriteString(" class=\"" + strings.Join(e.classes, " ") + "\"")
	}
	keys := make([]string, 0, len(e.attrs))
	for k := range e.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" " + k + "=\"" + e.attrs[k] + "\"")
	}
	sb.WriteString(">\n")
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}
	for _, c := range e.children {
		if err := c.writeOutline(w, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Outline returns WriteOutline as a string.
func (e *Element) Outline() string {
	var sb strings.Builder
	_ = e.WriteOutline(&sb)
	return sb.String()
}
