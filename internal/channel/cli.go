// Package channel is the line-oriented terminal front end of the widget.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"zunkiree/internal/bus"
	"zunkiree/internal/conversation"
	"zunkiree/internal/dom"
	"zunkiree/internal/domain"
)

// CLI is an interactive REPL over a conversation controller.
type CLI struct {
	conv    *conversation.Controller
	window  *dom.Window
	events  *bus.EventBus
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
	plain   bool
	styles  cliStyles
	outMu   sync.Mutex
	shown   map[string]bool
	spinner spinner.Spinner

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
	thinkDone chan struct{}
}

type CLIConfig struct {
	Conversation *conversation.Controller
	Window       *dom.Window // target of /resize; optional
	Events       *bus.EventBus
	Logger       *slog.Logger
	In           io.Reader
	Out          io.Writer
	Plain        bool // no spinner, no styling
}

type cliStyles struct {
	user, brand, err, hint lipgloss.Style
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := lipgloss.NewRenderer(cfg.Out)
	styles := cliStyles{
		user:  r.NewStyle().Bold(true),
		brand: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		err:   r.NewStyle().Foreground(lipgloss.Color("9")),
		hint:  r.NewStyle().Faint(true),
	}
	if cfg.Plain {
		styles = cliStyles{}
	}
	return &CLI{
		conv:    cfg.Conversation,
		window:  cfg.Window,
		events:  cfg.Events,
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     cfg.Out,
		plain:   cfg.Plain,
		styles:  styles,
		shown:   make(map[string]bool),
		spinner: spinner.MiniDot,
	}
}

func (c *CLI) Name() string { return "cli" }

const prompt = "You> "

// Start loads the widget config, then runs the REPL until /quit, EOF or
// context cancellation.
func (c *CLI) Start(ctx context.Context) error {
	c.conv.Initialize(ctx)

	if c.events != nil {
		id := c.events.On(bus.EventDockForcedExit, func(bus.Event) {
			c.println(c.styles.hint.Render("(viewport too narrow, dock closed)"))
		})
		defer c.events.Off(bus.EventDockForcedExit, id)
	}

	st := c.conv.Snapshot()
	c.println(c.styles.brand.Render(st.Config.BrandName) + c.styles.hint.Render(" - type a question, /help for commands, /quit to exit"))
	c.renderCollapsed(st)
	c.print(prompt)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			return <-scanErr
		}

		line = strings.TrimSpace(line)
		if line == "" {
			c.print(prompt)
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}
		if strings.HasPrefix(line, "/") {
			c.handleCommand(ctx, line)
		} else {
			c.conv.SetInput(line)
			c.submit(ctx)
		}
		c.print(prompt)
	}
}

func (c *CLI) handleCommand(ctx context.Context, line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		c.println("/open /close /dock /undock /resize <width> /suggestions /use <n> /send /status /events [n] /quit")
	case "/open":
		c.conv.Open()
		c.renderPanel(c.conv.Snapshot())
	case "/close":
		c.conv.Close()
		c.renderCollapsed(c.conv.Snapshot())
	case "/dock":
		if c.conv.Dock() {
			c.println(c.styles.hint.Render("docked"))
		} else {
			c.println(c.styles.err.Render("cannot dock here (viewport too narrow or no host page)"))
		}
	case "/undock":
		if c.conv.Undock() {
			c.println(c.styles.hint.Render("undocked"))
		}
	case "/resize":
		w, err := strconv.Atoi(arg)
		if err != nil || w <= 0 || c.window == nil {
			c.println(c.styles.err.Render("usage: /resize <width>"))
			return
		}
		c.window.Resize(w, c.window.Height())
		c.println(c.styles.hint.Render(fmt.Sprintf("viewport %dpx", w)))
	case "/suggestions":
		c.renderSuggestions(c.conv.Snapshot().Config, c.conv.CurrentSuggestions())
	case "/use":
		n, err := strconv.Atoi(arg)
		sugg := c.conv.CurrentSuggestions()
		if err != nil || n < 1 || n > len(sugg) {
			c.println(c.styles.err.Render(fmt.Sprintf("usage: /use <1-%d>", len(sugg))))
			return
		}
		c.conv.SuggestionClick(sugg[n-1])
		c.println(c.styles.hint.Render("input: " + sugg[n-1] + " (/send to ask)"))
	case "/send":
		c.submit(ctx)
	case "/status":
		st := c.conv.Snapshot()
		c.println(fmt.Sprintf("mode=%s docked=%v messages=%d loading=%v input=%q",
			st.Mode, st.Docked, len(st.Messages), st.Loading, st.PendingInput))
	case "/events":
		n := 10
		if arg != "" {
			v, err := strconv.Atoi(arg)
			if err != nil || v <= 0 {
				c.println(c.styles.err.Render("usage: /events [n]"))
				return
			}
			n = v
		}
		c.renderEvents(n)
	default:
		c.println(c.styles.err.Render("unknown command " + cmd + ", try /help"))
	}
}

func (c *CLI) submit(ctx context.Context) {
	c.startThinking()
	accepted := c.conv.SubmitPending(ctx)
	c.stopThinking()
	if !accepted {
		return
	}
	st := c.conv.Snapshot()
	c.renderNew(st)
	if last := st.Messages[len(st.Messages)-1]; !last.IsError && len(last.Suggestions) > 0 {
		c.renderSuggestions(st.Config, last.Suggestions)
	}
}

// renderEvents prints the last n runtime events, oldest first.
func (c *CLI) renderEvents(n int) {
	if c.events == nil {
		c.println(c.styles.hint.Render("no event bus"))
		return
	}
	evs := c.events.Replay("*", time.Time{})
	if len(evs) > n {
		evs = evs[len(evs)-n:]
	}
	for _, e := range evs {
		keys := make([]string, 0, len(e.Payload))
		for k := range e.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(e.Timestamp.Format("15:04:05.000") + " " + e.Type)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Payload[k])
		}
		c.println(c.styles.hint.Render(b.String()))
	}
}

func (c *CLI) renderCollapsed(st conversation.State) {
	placeholder := st.Config.PlaceholderText
	c.println(c.styles.hint.Render("[" + st.Config.BrandName + "] " + placeholder))
	if len(st.Messages) == 0 {
		c.renderSuggestions(st.Config, c.conv.CurrentSuggestions())
	}
}

func (c *CLI) renderPanel(st conversation.State) {
	if w := st.Config.Welcome(); w != "" && len(st.Messages) == 0 {
		c.println(c.styles.brand.Render(st.Config.BrandName+":") + " " + w)
	}
	for _, m := range st.Messages {
		c.renderMessage(st.Config, m)
		c.shown[m.ID] = true
	}
}

// renderNew prints the messages not printed yet, in transcript order.
func (c *CLI) renderNew(st conversation.State) {
	for _, m := range st.Messages {
		if c.shown[m.ID] {
			continue
		}
		c.shown[m.ID] = true
		if m.Role == domain.RoleUser {
			continue // already echoed by the terminal
		}
		c.renderMessage(st.Config, m)
	}
}

func (c *CLI) renderMessage(cfg domain.WidgetConfig, m domain.Message) {
	switch {
	case m.Role == domain.RoleUser:
		c.println(c.styles.user.Render("You:") + " " + m.Content)
	case m.IsError:
		c.println(c.styles.err.Render("! " + m.Content))
	default:
		c.println(c.styles.brand.Render(cfg.BrandName+":") + " " + m.Content)
		if cfg.SourcesVisible() {
			for _, s := range m.Sources {
				line := "  - " + s.Title
				if s.URL != "" {
					line += " <" + s.URL + ">"
				}
				c.println(c.styles.hint.Render(line))
			}
		}
	}
}

func (c *CLI) renderSuggestions(cfg domain.WidgetConfig, sugg []string) {
	if !cfg.SuggestionsVisible() || len(sugg) == 0 {
		return
	}
	parts := make([]string, len(sugg))
	for i, s := range sugg {
		parts[i] = fmt.Sprintf("%d) %s", i+1, s)
	}
	c.println(c.styles.hint.Render("Suggestions: " + strings.Join(parts, "  ")))
}

func (c *CLI) print(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprint(c.out, s)
}

func (c *CLI) println(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintln(c.out, s)
}

func (c *CLI) startThinking() {
	if c.plain {
		return
	}
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	c.thinkDone = make(chan struct{})
	stop, done := c.thinkStop, c.thinkDone
	go func() {
		defer close(done)
		frames := c.spinner.Frames
		ticker := time.NewTicker(c.spinner.FPS)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				c.print("\r\033[K")
				return
			case <-ticker.C:
				c.print(fmt.Sprintf("\r%s Thinking...", frames[i%len(frames)]))
			}
		}
	}()
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	if !c.thinking {
		c.thinkMu.Unlock()
		return
	}
	c.thinking = false
	close(c.thinkStop)
	done := c.thinkDone
	c.thinkMu.Unlock()
	<-done
}
