package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"zunkiree/internal/conversation"
	"zunkiree/internal/domain"
)

const fallbackAccent = "#2563eb"

type theme struct {
	accent    lipgloss.Style
	bar       lipgloss.Style
	panel     lipgloss.Style
	header    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	errorText lipgloss.Style
	hint      lipgloss.Style
	page      lipgloss.Style
}

func newTheme(primary string) theme {
	if strings.TrimSpace(primary) == "" {
		primary = fallbackAccent
	}
	accent := lipgloss.Color(primary)
	return theme{
		accent:    lipgloss.NewStyle().Foreground(accent),
		bar:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1),
		panel:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent),
		header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(accent).Padding(0, 1),
		user:      lipgloss.NewStyle().Bold(true),
		assistant: lipgloss.NewStyle().Foreground(accent).Bold(true),
		errorText: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		hint:      lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		page:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	st := m.conv.Snapshot()
	width := max(m.width, 30)
	height := max(m.height, 10)

	if st.Mode == conversation.ModeCollapsed {
		bar := m.renderBar(st, width)
		page := m.renderPage(width, height-lipgloss.Height(bar))
		return lipgloss.JoinVertical(lipgloss.Left, page, bar)
	}

	panelWidth := min(m.panelColumns, width)
	if m.docked() {
		page := m.renderPage(width-panelWidth, height)
		panel := m.renderPanel(st, panelWidth, height)
		return lipgloss.JoinHorizontal(lipgloss.Top, page, panel)
	}

	panelHeight := min(height, max(12, height*2/3))
	page := m.renderPage(width, height-panelHeight)
	panel := m.renderPanel(st, panelWidth, panelHeight)
	return lipgloss.JoinVertical(lipgloss.Left, page,
		lipgloss.PlaceHorizontal(width, lipgloss.Right, panel))
}

// renderBar draws the collapsed launcher. The pulse runs until the user
// first interacts with the widget.
func (m Model) renderBar(st conversation.State, width int) string {
	var b strings.Builder
	if !st.Interacted {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(m.theme.assistant.Render(st.Config.BrandName))
	b.WriteString("  " + m.theme.hint.Render(st.Config.PlaceholderText))
	if len(st.Messages) == 0 {
		if line := m.suggestionLine(st.Config); line != "" {
			b.WriteString("\n" + line)
		}
	}
	return m.theme.bar.Width(width - 2).Render(b.String())
}

// renderPage draws the host page content as an element outline.
func (m Model) renderPage(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	var lines []string
	if m.host != nil {
		parent := m.host.Document().Body()
		if content, ok := m.host.HostContent(); ok {
			parent = content
		}
		for _, child := range parent.Children() {
			lines = append(lines, strings.Split(strings.TrimRight(child.Outline(), "\n"), "\n")...)
		}
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return m.theme.page.
		Width(width).Height(height).
		MaxWidth(width).MaxHeight(height).
		Render(strings.Join(lines, "\n"))
}

func (m Model) renderPanel(st conversation.State, width, height int) string {
	inner := max(10, width-2)

	title := st.Config.BrandName
	if st.Docked {
		title += " (docked)"
	}
	header := m.theme.header.Width(inner).MaxWidth(inner).Render(title)

	var footer []string
	if line := m.suggestionLine(st.Config); line != "" {
		footer = append(footer, line)
	}
	if st.Loading {
		footer = append(footer, m.spinner.View()+" "+m.theme.hint.Render("Thinking..."))
	}
	if m.notice != "" {
		footer = append(footer, m.theme.errorText.Render(m.notice))
	}
	footer = append(footer, m.input.View())
	foot := lipgloss.NewStyle().MaxWidth(inner).Render(strings.Join(footer, "\n"))

	avail := max(1, height-2-lipgloss.Height(header)-lipgloss.Height(foot))
	transcript := m.renderTranscript(st, inner, avail)

	body := lipgloss.JoinVertical(lipgloss.Left, header, transcript, foot)
	return m.theme.panel.Width(inner).Height(max(1, height-2)).Render(body)
}

// renderTranscript keeps the newest lines that fit.
func (m Model) renderTranscript(st conversation.State, width, height int) string {
	var blocks []string
	if w := st.Config.Welcome(); w != "" && len(st.Messages) == 0 {
		blocks = append(blocks, m.renderMessage(st.Config, domain.NewAssistantMessage(w, nil, nil), width))
	}
	for _, msg := range st.Messages {
		blocks = append(blocks, m.renderMessage(st.Config, msg, width))
	}
	lines := strings.Split(strings.Join(blocks, "\n"), "\n")
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return lipgloss.NewStyle().Height(height).Render(strings.Join(lines, "\n"))
}

func (m Model) renderMessage(cfg domain.WidgetConfig, msg domain.Message, width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	switch {
	case msg.Role == domain.RoleUser:
		return wrap.Render(m.theme.user.Render("You: ") + msg.Content)
	case msg.IsError:
		return wrap.Render(m.theme.errorText.Render("! " + msg.Content))
	}
	out := wrap.Render(m.theme.assistant.Render(cfg.BrandName+": ") + msg.Content)
	if cfg.SourcesVisible() {
		for _, s := range msg.Sources {
			out += "\n" + wrap.Render(m.theme.hint.Render("  - "+s.Title))
		}
	}
	return out
}

func (m Model) suggestionLine(cfg domain.WidgetConfig) string {
	if !cfg.SuggestionsVisible() {
		return ""
	}
	sugg := m.conv.CurrentSuggestions()
	if len(sugg) == 0 {
		return ""
	}
	return m.theme.hint.Render("tab: " + strings.Join(sugg, " | "))
}
