package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration of the widget runtime.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Widget   WidgetConfig   `json:"widget" yaml:"widget"`
	Dock     DockConfig     `json:"dock" yaml:"dock"`
	QueryLog QueryLogConfig `json:"queryLog" yaml:"queryLog"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Browser  BrowserConfig  `json:"browser" yaml:"browser"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
}

// WidgetConfig points the runtime at a tenant on the backend.
type WidgetConfig struct {
	APIURL         string `json:"apiUrl" yaml:"apiUrl"`
	SiteID         string `json:"siteId" yaml:"siteId"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	MaxMessages    int    `json:"maxMessages" yaml:"maxMessages"` // 0 = unbounded transcript
	UserAgent      string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
}

type DockConfig struct {
	MinViewportWidth int `json:"minViewportWidth" yaml:"minViewportWidth"` // CSS px
	ViewportWidth    int `json:"viewportWidth" yaml:"viewportWidth"`       // initial width of the simulated page
	ViewportHeight   int `json:"viewportHeight" yaml:"viewportHeight"`
	PixelsPerColumn  int `json:"pixelsPerColumn" yaml:"pixelsPerColumn"` // terminal column to CSS px
	PanelColumns     int `json:"panelColumns" yaml:"panelColumns"`       // docked panel width in the TUI
}

type QueryLogConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// BrowserConfig configures the headless Chrome preview.
type BrowserConfig struct {
	Headless       bool   `json:"headless" yaml:"headless"`
	ProfileDir     string `json:"profileDir,omitempty" yaml:"profileDir,omitempty"`
	PollIntervalMs int    `json:"pollIntervalMs" yaml:"pollIntervalMs"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

// DefaultConfigDir returns the default config directory (~/.zunkiree).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zunkiree"
	}
	return filepath.Join(home, ".zunkiree")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// isYAML reports whether path should be read and written as YAML.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads the config file at path on top of Defaults. ${VAR} and
// ${VAR:-default} are expanded before parsing, and ApplyEnv runs after it.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	ApplyEnv(cfg)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.QueryLog.DBPath = ExpandPath(cfg.QueryLog.DBPath)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg to path, as YAML for .yaml/.yml and JSON otherwise.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Widget.APIURL == "" {
		errs = append(errs, "widget.apiUrl is required")
	} else if u, err := url.Parse(cfg.Widget.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("widget.apiUrl must be an http(s) URL: %s", cfg.Widget.APIURL))
	}
	if strings.TrimSpace(cfg.Widget.SiteID) == "" {
		errs = append(errs, "widget.siteId is required")
	}
	if cfg.Widget.TimeoutSeconds < 1 || cfg.Widget.TimeoutSeconds > 300 {
		errs = append(errs, "widget.timeoutSeconds must be between 1 and 300")
	}
	if cfg.Widget.MaxMessages < 0 {
		errs = append(errs, "widget.maxMessages must be >= 0")
	}

	if cfg.Dock.MinViewportWidth < 1 {
		errs = append(errs, "dock.minViewportWidth must be >= 1")
	}
	if cfg.Dock.ViewportWidth < 1 || cfg.Dock.ViewportHeight < 1 {
		errs = append(errs, "dock.viewportWidth and dock.viewportHeight must be >= 1")
	}
	if cfg.Dock.PixelsPerColumn < 1 {
		errs = append(errs, "dock.pixelsPerColumn must be >= 1")
	}
	if cfg.Dock.PanelColumns < 20 {
		errs = append(errs, "dock.panelColumns must be >= 20")
	}

	if cfg.QueryLog.Enabled && cfg.QueryLog.DBPath == "" {
		errs = append(errs, "queryLog.dbPath is required when the query log is enabled")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Addr == "" {
			errs = append(errs, "metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
			errs = append(errs, "metrics.endpoint must start with /")
		}
	}

	if cfg.Browser.PollIntervalMs < 50 {
		errs = append(errs, "browser.pollIntervalMs must be >= 50")
	}
	if cfg.Browser.TimeoutSeconds < 1 {
		errs = append(errs, "browser.timeoutSeconds must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// LoadOrDefault loads path when it exists. A missing file yields Defaults
// with the environment applied; found reports which case happened.
func LoadOrDefault(path string) (cfg *Config, found bool, err error) {
	if _, statErr := os.Stat(ExpandPath(path)); statErr != nil {
		if !os.IsNotExist(statErr) {
			return nil, false, fmt.Errorf("cannot stat config file %s: %w", path, statErr)
		}
		cfg = Defaults()
		ApplyEnv(cfg)
		cfg.QueryLog.DBPath = ExpandPath(cfg.QueryLog.DBPath)
		if err := Validate(cfg); err != nil {
			return nil, false, fmt.Errorf("config validation: %w", err)
		}
		return cfg, false, nil
	}
	cfg, err = Load(path)
	return cfg, err == nil, err
}
