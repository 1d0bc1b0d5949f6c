package dom

import (
	"strings"
	"testing"
)

func TestAppendChild_ReparentsWithoutCopy(t *testing.T) {
	a := NewElement("div")
	b := NewElement("section")
	p := NewElement("p")

	a.AppendChild(p)
	b.AppendChild(p)

	if a.ChildCount() != 0 {
		t.Errorf("old parent should be empty, has %d children", a.ChildCount())
	}
	if got := b.Children(); len(got) != 1 || got[0] != p {
		t.Fatalf("expected p moved into b, got %v", got)
	}
	if p.Parent() != b {
		t.Error("parent pointer not updated")
	}
}

func TestInsertBefore_Order(t *testing.T) {
	parent := NewElement("div")
	x, y, z := NewElement("x"), NewElement("y"), NewElement("z")
	parent.AppendChild(x)
	parent.AppendChild(z)
	parent.InsertBefore(y, z)

	var tags []string
	for _, c := range parent.Children() {
		tags = append(tags, c.Tag())
	}
	if strings.Join(tags, ",") != "x,y,z" {
		t.Errorf("order = %v", tags)
	}
}

func TestInsertBefore_CyclePanics(t *testing.T) {
	outer := NewElement("div")
	inner := NewElement("span")
	outer.AppendChild(inner)

	defer func() {
		if recover() == nil {
			t.Error("expected panic when inserting an ancestor into its descendant")
		}
	}()
	inner.AppendChild(outer)
}

func TestClasses(t *testing.T) {
	e := NewElement("div")
	e.AddClass("a")
	e.AddClass("a")
	e.AddClass("b")
	if got := e.Classes(); len(got) != 2 {
		t.Errorf("duplicate class added: %v", got)
	}
	e.RemoveClass("a")
	if e.HasClass("a") || !e.HasClass("b") {
		t.Errorf("classes after remove: %v", e.Classes())
	}
	e.RemoveClass("missing")
}

func TestGetElementByID(t *testing.T) {
	doc := NewDocument(nil)
	el := doc.CreateElement("div")
	el.SetID("target")
	if doc.GetElementByID("target") != nil {
		t.Error("detached element should not be found")
	}
	doc.Body().AppendChild(el)
	if doc.GetElementByID("target") != el {
		t.Error("connected element not found")
	}
	if doc.GetElementByID("") != nil {
		t.Error("empty id must not match")
	}
}

func TestWindow_ResizeNotifiesAndReleases(t *testing.T) {
	w := NewWindow(1024, 768)
	var seen []int
	release := w.OnResize(func(width int) { seen = append(seen, width) })

	w.Resize(900, 768)
	w.Resize(900, 768) // unchanged, no event
	release()
	release()
	w.Resize(500, 768)

	if len(seen) != 1 || seen[0] != 900 {
		t.Errorf("events = %v", seen)
	}
	if w.ListenerCount() != 0 {
		t.Errorf("listener leaked: %d", w.ListenerCount())
	}
	if w.Width() != 500 {
		t.Errorf("width = %d", w.Width())
	}
}

func TestWindow_ListenerReleasedDuringDispatchIsSkipped(t *testing.T) {
	w := NewWindow(1024, 768)
	var releaseSecond func()
	calledSecond := false
	w.OnResize(func(int) { releaseSecond() })
	releaseSecond = w.OnResize(func(int) { calledSecond = true })

	w.Resize(800, 600)
	if calledSecond {
		t.Error("released listener was still called")
	}
}

func TestOutline(t *testing.T) {
	doc := NewDocument(nil)
	div := doc.CreateElement("DIV")
	div.SetID("main")
	div.AddClass("wide")
	div.SetAttribute("data-x", "1")
	doc.Body().AppendChild(div)

	out := doc.Body().Outline()
	if !strings.Contains(out, `<div id="main" class="wide" data-x="1">`) {
		t.Errorf("outline = %q", out)
	}
}
