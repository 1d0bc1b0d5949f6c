package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv keeps ambient ZUNKIREE_* variables out of a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvAPIURL, EnvSiteID, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_LogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
	for _, lvl := range []string{"debug", "INFO", "warn", "error"} {
		cfg.General.LogLevel = lvl
		if err := Validate(cfg); err != nil {
			t.Errorf("level %q should be valid: %v", lvl, err)
		}
	}
}

func TestValidate_APIURL(t *testing.T) {
	for _, bad := range []string{"", "localhost:8000", "ftp://example.com", "http://"} {
		cfg := Defaults()
		cfg.Widget.APIURL = bad
		if err := Validate(cfg); err == nil {
			t.Errorf("expected error for apiUrl %q", bad)
		}
	}
	cfg := Defaults()
	cfg.Widget.APIURL = "https://api.zunkiree.test"
	if err := Validate(cfg); err != nil {
		t.Errorf("https URL should be valid: %v", err)
	}
}

func TestValidate_SiteIDRequired(t *testing.T) {
	cfg := Defaults()
	cfg.Widget.SiteID = "  "
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for blank siteId")
	}
}

func TestValidate_TimeoutBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Widget.TimeoutSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for timeout 0")
	}
	cfg.Widget.TimeoutSeconds = 300
	if err := Validate(cfg); err != nil {
		t.Fatalf("timeout 300 should be valid: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Widget.MaxMessages = -1
	cfg.Dock.PixelsPerColumn = 0
	cfg.Metrics.Enabled = true
	cfg.Metrics.Endpoint = "metrics"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"widget.maxMessages", "dock.pixelsPerColumn", "metrics.endpoint"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestValidate_QueryLogNeedsPath(t *testing.T) {
	cfg := Defaults()
	cfg.QueryLog.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for enabled query log without path")
	}
	cfg.QueryLog.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled query log needs no path: %v", err)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTripJSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	original := Defaults()
	original.Widget.SiteID = "acme"
	original.Widget.MaxMessages = 50

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Widget.SiteID != "acme" || loaded.Widget.MaxMessages != 50 {
		t.Fatalf("unexpected widget section: %+v", loaded.Widget)
	}
}

func TestLoadSave_RoundTripYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := Defaults()
	original.Dock.MinViewportWidth = 900

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "minViewportWidth: 900") {
		t.Fatalf("expected YAML output, got:\n%s", data)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Dock.MinViewportWidth != 900 {
		t.Fatalf("minViewportWidth = %d", loaded.Dock.MinViewportWidth)
	}
}

func TestLoad_PartialYAMLKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "widget:\n  apiUrl: https://api.acme.test\n  siteId: acme\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Widget.APIURL != "https://api.acme.test" || cfg.Widget.SiteID != "acme" {
		t.Errorf("widget = %+v", cfg.Widget)
	}
	if cfg.Widget.TimeoutSeconds != 30 || cfg.Dock.MinViewportWidth != 768 {
		t.Error("defaults should fill unspecified fields")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"widget": {"siteId": ""}}`), 0o644)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "widget.siteId") {
		t.Fatalf("expected siteId validation error, got %v", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSiteID, "from-env")
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"widget": {"siteId": "from-file"}}`), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Widget.SiteID != "from-env" {
		t.Errorf("siteId = %q", cfg.Widget.SiteID)
	}
}

func TestLoad_ExpandsHomePaths(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"queryLog": {"enabled": true, "dbPath": "~/q/queries.db"}}`), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.QueryLog.DBPath != filepath.Join(home, "q", "queries.db") {
		t.Errorf("dbPath = %q", cfg.QueryLog.DBPath)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIURL, "https://api.env.test")

	cfg, found, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("found should be false")
	}
	if cfg.Widget.APIURL != "https://api.env.test" {
		t.Errorf("apiUrl = %q", cfg.Widget.APIURL)
	}
	if strings.HasPrefix(cfg.QueryLog.DBPath, "~/") {
		t.Errorf("dbPath not expanded: %q", cfg.QueryLog.DBPath)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()
	v, err := GetByPath(cfg, "widget.siteId")
	if err != nil || v != "demo" {
		t.Fatalf("widget.siteId = %v, %v", v, err)
	}
	v, err = GetByPath(cfg, "dock.minViewportWidth")
	if err != nil || v != float64(768) {
		t.Fatalf("dock.minViewportWidth = %v, %v", v, err)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	if _, err := GetByPath(cfg, "widget.nope"); err == nil {
		t.Fatal("expected error for unknown key")
	}
	if _, err := GetByPath(cfg, "widget.siteId.deeper"); err == nil {
		t.Fatal("expected error traversing into a string")
	}
}

func TestSetByPath_Conversions(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "metrics.enabled", "true"); err != nil {
		t.Fatal(err)
	}
	if err := SetByPath(cfg, "widget.maxMessages", "40"); err != nil {
		t.Fatal(err)
	}
	if err := SetByPath(cfg, "widget.siteId", "acme"); err != nil {
		t.Fatal(err)
	}
	if !cfg.Metrics.Enabled || cfg.Widget.MaxMessages != 40 || cfg.Widget.SiteID != "acme" {
		t.Errorf("unexpected config: metrics=%v widget=%+v", cfg.Metrics.Enabled, cfg.Widget)
	}
}

func TestSetByPath_OptionalKey(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "general.logFile", "/tmp/zk.log"); err != nil {
		t.Fatal(err)
	}
	if cfg.General.LogFile != "/tmp/zk.log" {
		t.Errorf("logFile = %q", cfg.General.LogFile)
	}
}

func TestSetByPath_Rejects(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "", "x"); err == nil {
		t.Error("expected error for empty path")
	}
	if err := SetByPath(cfg, "widget.bogus", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := SetByPath(cfg, "widget.maxMessages", "many"); err == nil {
		t.Error("expected type error")
	}
	if cfg.Widget.MaxMessages != 0 {
		t.Error("failed set must not modify the config")
	}
}

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, want := range []string{"general.logLevel", "widget.apiUrl", "dock.panelColumns", "queryLog.dbPath", "metrics.addr", "browser.pollIntervalMs"} {
		if _, ok := paths[want]; !ok {
			t.Errorf("missing path %s", want)
		}
	}
	sorted := SortedPaths(Defaults())
	if len(sorted) != len(paths) || sorted[0] > sorted[len(sorted)-1] {
		t.Error("SortedPaths should return every path in order")
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_SITE_TOKEN", "tok-abc123")
	result := ExpandEnvVars(`{"siteId": "${TEST_SITE_TOKEN}"}`)
	expected := `{"siteId": "tok-abc123"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	// Ensure the var is unset
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`)
	expected := `{"port": "8080"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_SetVarOverridesDefault(t *testing.T) {
	t.Setenv("MY_PORT", "9090")
	result := ExpandEnvVars(`{"port": "${MY_PORT:-8080}"}`)
	expected := `{"port": "9090"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_MultipleVars(t *testing.T) {
	t.Setenv("HOST", "localhost")
	t.Setenv("PORT", "3000")
	result := ExpandEnvVars(`"${HOST}:${PORT}"`)
	expected := `"localhost:3000"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")
	result := ExpandEnvVars(`"${EMPTY_VAR:-fallback}"`)
	expected := `"fallback"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_NoVarsInInput(t *testing.T) {
	input := `{"key": "value", "number": 42}`
	result := ExpandEnvVars(input)
	if result != input {
		t.Fatalf("expected no change, got %q", result)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	result := ExpandEnvVars(input)
	if result != input {
		t.Fatalf("expected no change for bare $VAR, got %q", result)
	}
}

// --- Defaults ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.Widget.MaxMessages != 0 {
		t.Error("transcript should be unbounded by default")
	}
	if cfg.Dock.MinViewportWidth != 768 {
		t.Errorf("minViewportWidth = %d", cfg.Dock.MinViewportWidth)
	}
}
