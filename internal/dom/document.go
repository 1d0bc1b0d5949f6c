package dom

// Document is a host page: an <html> root with <head> and <body>, and the
// Window it is displayed in.
type Document struct {
	html   *Element
	head   *Element
	body   *Element
	window *Window
}

// NewDocument creates an empty document shown in win. A nil win gets a
// default 1280x800 window.
func NewDocument(win *Window) *Document {
	if win == nil {
		win = NewWindow(1280, 800)
	}
	html := NewElement("html")
	head := NewElement("head")
	body := NewElement("body")
	html.AppendChild(head)
	html.AppendChild(body)
	return &Document{html: html, head: head, body: body, window: win}
}

func (d *Document) Root() *Element { return d.html }
func (d *Document) Head() *Element { return d.head }
func (d *Document) Body() *Element { return d.body }
func (d *Document) Window() *Window { return d.window }

// CreateElement creates a detached element owned by the caller.
func (d *Document) CreateElement(tag string) *Element {
	return NewElement(tag)
}

// GetElementByID returns the first connected element with the given ID.
func (d *Document) GetElementByID(id string) *Element {
	if id == "" {
		return nil
	}
	return d.html.Find(func(e *Element) bool { return e.id == id })
}
