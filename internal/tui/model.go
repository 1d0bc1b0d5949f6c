// Package tui is the full-screen terminal front end of the widget. The
// terminal stands in for the browser viewport: its width drives the dock
// breakpoint and the host page is drawn beside or behind the panel.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"zunkiree/internal/bus"
	"zunkiree/internal/conversation"
	"zunkiree/internal/dom"
	"zunkiree/internal/layout"
)

const (
	defaultPixelsPerColumn = 8
	defaultPanelColumns    = 44
	pixelsPerRow           = 20
)

// Config wires a Model. Conversation is required.
type Config struct {
	Conversation    *conversation.Controller
	Host            *layout.HostManager
	Window          *dom.Window // resized on every terminal resize
	Events          *bus.EventBus
	PixelsPerColumn int
	PanelColumns    int
	Logger          *slog.Logger
}

type readyMsg struct{}

type answeredMsg struct{ accepted bool }

type eventMsg struct{ event bus.Event }

// Model is the bubbletea model. All widget state lives in the conversation
// controller; the model only keeps terminal geometry and the input line.
type Model struct {
	ctx    context.Context
	conv   *conversation.Controller
	host   *layout.HostManager
	window *dom.Window
	logger *slog.Logger

	pixelsPerColumn int
	panelColumns    int

	width, height int
	input         textinput.Model
	spinner       spinner.Model
	theme         theme
	nextSugg      int
	notice        string
	ready         bool
	quitting      bool
}

func New(ctx context.Context, cfg Config) Model {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PixelsPerColumn <= 0 {
		cfg.PixelsPerColumn = defaultPixelsPerColumn
	}
	if cfg.PanelColumns <= 0 {
		cfg.PanelColumns = defaultPanelColumns
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points

	st := cfg.Conversation.Snapshot()
	ti.Placeholder = st.Config.PlaceholderText
	th := newTheme(st.Config.PrimaryColor)
	sp.Style = th.accent

	return Model{
		ctx:             ctx,
		conv:            cfg.Conversation,
		host:            cfg.Host,
		window:          cfg.Window,
		logger:          cfg.Logger,
		pixelsPerColumn: cfg.PixelsPerColumn,
		panelColumns:    cfg.PanelColumns,
		width:           80,
		height:          24,
		input:           ti,
		spinner:         sp,
		theme:           th,
	}
}

func (m Model) Init() tea.Cmd {
	conv, ctx := m.conv, m.ctx
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		func() tea.Msg {
			conv.Initialize(ctx)
			return readyMsg{}
		},
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case readyMsg:
		m.ready = true
		st := m.conv.Snapshot()
		m.theme = newTheme(st.Config.PrimaryColor)
		m.spinner.Style = m.theme.accent
		m.input.Placeholder = st.Config.PlaceholderText
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(10, min(m.panelColumns, m.width)-6)
		wasDocked := m.conv.Snapshot().Docked
		if m.window != nil {
			m.window.Resize(msg.Width*m.pixelsPerColumn, msg.Height*pixelsPerRow)
		}
		if wasDocked && !m.conv.Snapshot().Docked {
			m.notice = "terminal too narrow, dock closed"
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case answeredMsg:
		if msg.accepted {
			m.nextSugg = 0
		}
		if v := m.input.Value(); v != m.conv.Snapshot().PendingInput {
			m.conv.SetInput(v)
		}
		return m, nil

	case eventMsg:
		switch msg.event.Type {
		case bus.EventDockForcedExit:
			m.notice = "terminal too narrow, dock closed"
		case bus.EventDockEntered:
			m.notice = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.conv.Snapshot()

	key := msg.String()
	if msg.Type == tea.KeyRunes {
		key = "" // pasted text is never a binding
	}
	switch key {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if st.Mode == conversation.ModeExpanded {
			m.conv.Close()
			m.notice = ""
		}
		return m, nil

	case "ctrl+o":
		m.conv.Open()
		return m, m.input.Focus()

	case "ctrl+d":
		switch {
		case st.Docked:
			m.conv.Undock()
			m.notice = ""
		case m.conv.Dock():
			m.notice = ""
		default:
			m.logger.Debug("dock refused", "columns", m.width)
			m.notice = "cannot dock, terminal too narrow"
		}
		return m, m.input.Focus()

	case "tab":
		sugg := m.conv.CurrentSuggestions()
		if len(sugg) == 0 || !st.Config.SuggestionsVisible() {
			return m, nil
		}
		s := sugg[m.nextSugg%len(sugg)]
		m.nextSugg++
		m.conv.SuggestionClick(s)
		m.input.SetValue(s)
		m.input.CursorEnd()
		return m, m.input.Focus()

	case "enter":
		if st.Mode == conversation.ModeCollapsed {
			m.conv.Open()
			return m, m.input.Focus()
		}
		if st.Loading || strings.TrimSpace(m.input.Value()) == "" {
			return m, nil
		}
		q := m.input.Value()
		m.input.Reset()
		m.conv.SetInput("")
		return m, m.submit(q)
	}

	// Typing into the collapsed bar opens the panel.
	if st.Mode == conversation.ModeCollapsed && msg.Type == tea.KeyRunes {
		m.conv.Open()
	}
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.conv.SetInput(v)
	}
	return m, cmd
}

// submit sends q as captured at enter. Anything typed while the query runs
// stays in the input line and is handed back to the controller once the
// answer arrives.
func (m Model) submit(q string) tea.Cmd {
	conv, ctx := m.conv, m.ctx
	return func() tea.Msg {
		return answeredMsg{accepted: conv.Submit(ctx, q)}
	}
}

// Run drives the model until ctrl+c or ctx is cancelled. Bus events are
// forwarded to the program so asynchronous state changes redraw the screen.
func Run(ctx context.Context, cfg Config, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(New(ctx, cfg), opts...)

	if cfg.Events != nil {
		id := cfg.Events.On("*", func(e bus.Event) {
			// Handlers may run inside Update; Send must not block the loop.
			go p.Send(eventMsg{event: e})
		})
		defer cfg.Events.Off("*", id)
	}

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

// docked reports whether the host layout carries the active marker.
func (m Model) docked() bool {
	if m.host == nil {
		return false
	}
	root := m.host.Root()
	return root != nil && root.HasClass(layout.ActiveClass)
}
