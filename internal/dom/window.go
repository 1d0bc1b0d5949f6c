package dom

import (
	"sort"
	"sync"
)

// Window holds the viewport size and resize listeners. It satisfies
// domain.Viewport and is safe for concurrent use.
type Window struct {
	mu        sync.Mutex
	width     int
	height    int
	nextID    int
	listeners map[int]func(width int)
}

func NewWindow(width, height int) *Window {
	return &Window{
		width:     width,
		height:    height,
		listeners: make(map[int]func(int)),
	}
}

func (w *Window) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *Window) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

// OnResize registers fn and returns its release function. Releasing twice
// is harmless.
func (w *Window) OnResize(fn func(width int)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners, id)
	}
}

// ListenerCount reports how many resize listeners are registered.
func (w *Window) ListenerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.listeners)
}

// Resize changes the viewport and notifies listeners in registration order.
// Listeners run without the window lock held, so they may release
// themselves or each other.
func (w *Window) Resize(width, height int) {
	w.mu.Lock()
	if w.width == width && w.height == height {
		w.mu.Unlock()
		return
	}
	w.width = width
	w.height = height
	ids := make([]int, 0, len(w.listeners))
	for id := range w.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	w.mu.Unlock()

	for _, id := range ids {
		w.mu.Lock()
		fn, ok := w.listeners[id]
		w.mu.Unlock()
		if ok {
			fn(width)
		}
	}
}
