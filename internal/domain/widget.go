package domain

// Tone values accepted by the backend for generated answers.
const (
	ToneFormal   = "formal"
	ToneNeutral  = "neutral"
	ToneFriendly = "friendly"
)

// WidgetConfig is the tenant presentation and runtime configuration, fetched
// once per session. Unknown wire fields are ignored; absent optional fields
// decode to nil or empty values.
type WidgetConfig struct {
	BrandName       string   `json:"brand_name"`
	PrimaryColor    string   `json:"primary_color"`
	PlaceholderText string   `json:"placeholder_text"`
	WelcomeMessage  *string  `json:"welcome_message"`
	QuickActions    []string `json:"quick_actions"`
	Tone            string   `json:"tone,omitempty"`
	FallbackMessage *string  `json:"fallback_message,omitempty"`
	ShowSources     *bool    `json:"show_sources,omitempty"`
	ShowSuggestions *bool    `json:"show_suggestions,omitempty"`
}

// DefaultWidgetConfig returns the configuration substituted whenever the
// config fetch fails, so the widget always has presentable copy.
func DefaultWidgetConfig() WidgetConfig {
	return WidgetConfig{
		BrandName:       "Assistant",
		PrimaryColor:    "#2563eb",
		PlaceholderText: "Ask a question...",
		Tone:            ToneNeutral,
	}
}

// Welcome returns the welcome message, or "" when none is configured.
func (c WidgetConfig) Welcome() string {
	if c.WelcomeMessage == nil {
		return ""
	}
	return *c.WelcomeMessage
}

// SourcesVisible reports whether answer citations should be displayed.
// Absent means visible.
func (c WidgetConfig) SourcesVisible() bool {
	return c.ShowSources == nil || *c.ShowSources
}

// SuggestionsVisible reports whether suggestion chips should be displayed.
// Absent means visible.
func (c WidgetConfig) SuggestionsVisible() bool {
	return c.ShowSuggestions == nil || *c.ShowSuggestions
}

// Clone returns a deep copy.
func (c WidgetConfig) Clone() WidgetConfig {
	c.QuickActions = append([]string(nil), c.QuickActions...)
	if c.WelcomeMessage != nil {
		w := *c.WelcomeMessage
		c.WelcomeMessage = &w
	}
	if c.FallbackMessage != nil {
		f := *c.FallbackMessage
		c.FallbackMessage = &f
	}
	if c.ShowSources != nil {
		v := *c.ShowSources
		c.ShowSources = &v
	}
	if c.ShowSuggestions != nil {
		v := *c.ShowSuggestions
		c.ShowSuggestions = &v
	}
	return c
}
