package config

import "os"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Widget: WidgetConfig{
			APIURL:         "http://localhost:8000",
			SiteID:         "demo",
			TimeoutSeconds: 30,
			MaxMessages:    0,
		},
		Dock: DockConfig{
			MinViewportWidth: 768,
			ViewportWidth:    1280,
			ViewportHeight:   800,
			PixelsPerColumn:  8,
			PanelColumns:     44,
		},
		QueryLog: QueryLogConfig{
			Enabled: true,
			DBPath:  "~/.zunkiree/queries.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
		Browser: BrowserConfig{
			Headless:       true,
			PollIntervalMs: 250,
			TimeoutSeconds: 30,
		},
	}
}

// Environment variables that override the file, typically set through .env.
const (
	EnvAPIURL   = "ZUNKIREE_API_URL"
	EnvSiteID   = "ZUNKIREE_SITE_ID"
	EnvLogLevel = "ZUNKIREE_LOG_LEVEL"
)

// ApplyEnv overrides config values from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.Widget.APIURL = v
	}
	if v := os.Getenv(EnvSiteID); v != "" {
		cfg.Widget.SiteID = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.General.LogLevel = v
	}
}
