package tui

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"zunkiree/internal/api"
	"zunkiree/internal/bus"
	"zunkiree/internal/conversation"
	"zunkiree/internal/dock"
	"zunkiree/internal/dom"
	"zunkiree/internal/layout"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	conv   *conversation.Controller
	win    *dom.Window
	host   *layout.HostManager
	events *bus.EventBus
}

func newFixture(t *testing.T) (*fixture, Model) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/widget/config/"):
			_, _ = w.Write([]byte(`{"brand_name":"Acme","primary_color":"#ff6600","placeholder_text":"Ask Acme","welcome_message":"Hi there","quick_actions":["Opening hours","Prices"]}`))
		case r.URL.Path == "/api/v1/query":
			_, _ = w.Write([]byte(`{"answer":"9–5","suggestions":["Location?"],"sources":[{"title":"Hours page","url":"https://acme.test/hours"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	win := dom.NewWindow(1280, 800)
	doc := dom.NewDocument(win)
	doc.Body().AppendChild(doc.CreateElement("main"))
	host := layout.NewHostManager(doc, testLogger())
	events := bus.NewEventBus(testLogger())
	conv := conversation.New(conversation.Config{
		API:    api.NewClient(api.ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, Logger: testLogger()}),
		SiteID: "acme",
		Layout: host,
		Dock:   dock.New(dock.Config{Host: host, Viewport: win, Logger: testLogger()}),
		Events: events,
		Logger: testLogger(),
	})
	conv.Initialize(context.Background())

	m := New(context.Background(), Config{
		Conversation:    conv,
		Host:            host,
		Window:          win,
		Events:          events,
		PixelsPerColumn: 8,
		PanelColumns:    40,
		Logger:          testLogger(),
	})
	m, _ = update(t, m, readyMsg{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 40})
	return &fixture{conv: conv, win: win, host: host, events: events}, m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return nm, cmd
}

func press(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func typed(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestModel_WindowSizeDrivesViewport(t *testing.T) {
	f, m := newFixture(t)
	if f.win.Width() != 160*8 {
		t.Errorf("viewport width = %d", f.win.Width())
	}
	update(t, m, tea.WindowSizeMsg{Width: 90, Height: 30})
	if f.win.Width() != 720 || f.win.Height() != 600 {
		t.Errorf("viewport = %dx%d", f.win.Width(), f.win.Height())
	}
}

func TestModel_CollapsedBar(t *testing.T) {
	_, m := newFixture(t)
	view := m.View()
	for _, want := range []string{"Acme", "Ask Acme", "Opening hours", "<main>"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q\n%s", want, view)
		}
	}
}

func TestModel_OpenAndAsk(t *testing.T) {
	f, m := newFixture(t)

	m, _ = update(t, m, press(tea.KeyEnter))
	if f.conv.Snapshot().Mode != conversation.ModeExpanded {
		t.Fatal("enter on the bar should expand")
	}
	if !strings.Contains(m.View(), "Hi there") {
		t.Errorf("welcome not shown:\n%s", m.View())
	}

	m, _ = update(t, m, typed("What are your hours?"))
	if got := f.conv.Snapshot().PendingInput; got != "What are your hours?" {
		t.Errorf("pending input = %q", got)
	}

	m, cmd := update(t, m, press(tea.KeyEnter))
	if cmd == nil {
		t.Fatal("enter should start a query")
	}
	m, _ = update(t, m, cmd())

	st := f.conv.Snapshot()
	if len(st.Messages) != 2 || st.Messages[1].Content != "9–5" {
		t.Fatalf("messages = %+v", st.Messages)
	}
	if m.input.Value() != "" || st.PendingInput != "" {
		t.Error("input not cleared after the answer")
	}
	view := m.View()
	for _, want := range []string{"What are your hours?", "9–5", "Hours page", "Location?"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q\n%s", want, view)
		}
	}
}

func TestModel_TypingDuringQueryKeepsQuestion(t *testing.T) {
	f, m := newFixture(t)
	m, _ = update(t, m, press(tea.KeyEnter))
	m, _ = update(t, m, typed("What are your hours?"))
	m, cmd := update(t, m, press(tea.KeyEnter))
	if cmd == nil {
		t.Fatal("enter should start a query")
	}
	if got := f.conv.Snapshot().PendingInput; got != "" {
		t.Errorf("pending input after enter = %q", got)
	}

	m, _ = update(t, m, typed("x"))
	m, _ = update(t, m, cmd())

	st := f.conv.Snapshot()
	if len(st.Messages) != 2 || st.Messages[0].Content != "What are your hours?" {
		t.Fatalf("messages = %+v", st.Messages)
	}
	if m.input.Value() != "x" || st.PendingInput != "x" {
		t.Errorf("input = %q pending = %q, want the text typed during the query", m.input.Value(), st.PendingInput)
	}
}

func TestModel_BlankEnterDoesNothing(t *testing.T) {
	f, m := newFixture(t)
	m, _ = update(t, m, press(tea.KeyEnter))
	_, cmd := update(t, m, press(tea.KeyEnter))
	if cmd != nil {
		t.Error("blank input should not query")
	}
	if len(f.conv.Snapshot().Messages) != 0 {
		t.Error("no message expected")
	}
}

func TestModel_TypingOpensPanel(t *testing.T) {
	f, m := newFixture(t)
	update(t, m, typed("h"))
	st := f.conv.Snapshot()
	if st.Mode != conversation.ModeExpanded || st.PendingInput != "h" {
		t.Errorf("mode=%s pending=%q", st.Mode, st.PendingInput)
	}
}

func TestModel_TabCyclesSuggestions(t *testing.T) {
	f, m := newFixture(t)
	m, _ = update(t, m, press(tea.KeyEnter))

	m, _ = update(t, m, press(tea.KeyTab))
	if m.input.Value() != "Opening hours" || f.conv.Snapshot().PendingInput != "Opening hours" {
		t.Errorf("first tab: input=%q", m.input.Value())
	}
	m, _ = update(t, m, press(tea.KeyTab))
	if m.input.Value() != "Prices" {
		t.Errorf("second tab: input=%q", m.input.Value())
	}
}

func TestModel_DockAndForcedExit(t *testing.T) {
	f, m := newFixture(t)
	m, _ = update(t, m, press(tea.KeyEnter))

	m, _ = update(t, m, press(tea.KeyCtrlD))
	if !f.conv.Snapshot().Docked || !m.docked() {
		t.Fatal("ctrl+d should dock on a wide terminal")
	}
	if !strings.Contains(m.View(), "Acme (docked)") {
		t.Errorf("docked header missing:\n%s", m.View())
	}

	// 60 columns is 480px, below the breakpoint.
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 30})
	st := f.conv.Snapshot()
	if st.Docked || m.docked() {
		t.Error("narrow resize should force an undock")
	}
	if st.Mode != conversation.ModeExpanded {
		t.Error("panel should stay open")
	}
	if !strings.Contains(m.View(), "dock closed") {
		t.Errorf("notice missing:\n%s", m.View())
	}

	m, _ = update(t, m, press(tea.KeyCtrlD))
	if f.conv.Snapshot().Docked {
		t.Error("dock should be refused on a narrow terminal")
	}
	if !strings.Contains(m.View(), "cannot dock") {
		t.Errorf("refusal notice missing:\n%s", m.View())
	}
}

func TestModel_CtrlDTogglesDock(t *testing.T) {
	f, m := newFixture(t)
	m, _ = update(t, m, press(tea.KeyCtrlD))
	m, _ = update(t, m, press(tea.KeyCtrlD))
	if f.conv.Snapshot().Docked || f.win.ListenerCount() != 0 {
		t.Error("second ctrl+d should undock")
	}
	if f.conv.Snapshot().Mode != conversation.ModeExpanded {
		t.Error("undock keeps the panel open")
	}
}

func TestModel_EscCollapsesKeepingTranscript(t *testing.T) {
	f, m := newFixture(t)
	m, _ = update(t, m, typed("hello"))
	m, cmd := update(t, m, press(tea.KeyEnter))
	m, _ = update(t, m, cmd())

	m, _ = update(t, m, press(tea.KeyEsc))
	st := f.conv.Snapshot()
	if st.Mode != conversation.ModeCollapsed || len(st.Messages) != 2 {
		t.Errorf("mode=%s messages=%d", st.Mode, len(st.Messages))
	}
	m, _ = update(t, m, press(tea.KeyCtrlO))
	if !strings.Contains(m.View(), "hello") {
		t.Errorf("transcript lost on reopen:\n%s", m.View())
	}
}

func TestModel_ForcedExitEvent(t *testing.T) {
	_, m := newFixture(t)
	m, _ = update(t, m, eventMsg{event: bus.Event{Type: bus.EventDockForcedExit}})
	if m.notice == "" {
		t.Error("forced exit event should set a notice")
	}
	m, _ = update(t, m, eventMsg{event: bus.Event{Type: bus.EventDockEntered}})
	if m.notice != "" {
		t.Error("dock entered should clear the notice")
	}
}

func TestModel_CtrlCQuits(t *testing.T) {
	_, m := newFixture(t)
	m, cmd := update(t, m, press(tea.KeyCtrlC))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should quit")
	}
	if m.View() != "" {
		t.Error("view should be empty after quit")
	}
}
