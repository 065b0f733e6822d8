package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if len(cfg.CalendarURLs) == 0 {
		t.Error("expected default calendar URLs")
	}
	if cfg.SubmitMinSuccess <= 0 || cfg.SubmitMinSuccess > cfg.SubmitTotal {
		t.Errorf("expected 0 < submit_min_success <= submit_total, got %d/%d", cfg.SubmitMinSuccess, cfg.SubmitTotal)
	}
	if cfg.HTTPTimeoutSeconds <= 0 {
		t.Error("expected positive http timeout")
	}
	if !strings.Contains(cfg.CacheDir, "chronoproof") {
		t.Errorf("cache dir should contain chronoproof: %s", cfg.CacheDir)
	}
	if !strings.Contains(cfg.LogPath, "chronoproof") {
		t.Errorf("log path should contain chronoproof: %s", cfg.LogPath)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if path == "" {
		t.Error("ConfigPath returned empty string")
	}
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if len(cfg.CalendarURLs) == 0 {
		t.Error("expected default calendar URLs on missing config file")
	}
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	content := `
calendar_urls = ["https://cal-a.example.com", "https://cal-b.example.com"]
whitelist_urls = ["https://cal-a.example.com"]
submit_min_success = 1
submit_total = 2
submit_budget_seconds = 15
http_timeout_seconds = 5
cache_dir = "/custom/path/cache"
cache_backend = "bolt"
log_path = "/custom/path/chronoproof.log"
audit_log_path = "/custom/path/audit.log"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.CalendarURLs) != 2 {
		t.Errorf("expected 2 calendar urls, got %d", len(cfg.CalendarURLs))
	}
	if cfg.CalendarURLs[0] != "https://cal-a.example.com" {
		t.Errorf("expected first calendar https://cal-a.example.com, got %s", cfg.CalendarURLs[0])
	}
	if cfg.SubmitMinSuccess != 1 || cfg.SubmitTotal != 2 {
		t.Errorf("expected 1/2 submit thresholds, got %d/%d", cfg.SubmitMinSuccess, cfg.SubmitTotal)
	}
	if cfg.SubmitBudget() != 15*time.Second {
		t.Errorf("expected 15s submit budget, got %v", cfg.SubmitBudget())
	}
	if cfg.CacheBackend != CacheBackendBolt {
		t.Errorf("expected bolt cache backend, got %s", cfg.CacheBackend)
	}
	if cfg.LogPath != "/custom/path/chronoproof.log" {
		t.Errorf("expected custom log path, got %s", cfg.LogPath)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	content := `
submit_min_success = 1
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SubmitMinSuccess != 1 {
		t.Errorf("expected submit_min_success 1, got %d", cfg.SubmitMinSuccess)
	}
	if len(cfg.CalendarURLs) == 0 {
		t.Error("calendar_urls should keep its default value")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	content := `
this is not valid toml {{{
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestValidateEmptyCalendarURLs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CalendarURLs = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty calendar_urls")
	}
}

func TestValidateBadCalendarScheme(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CalendarURLs = []string{"ftp://cal.example.com"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-http(s) calendar scheme")
	}
}

func TestValidateSubmitThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SubmitMinSuccess = 5
	cfg.SubmitTotal = 2
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when submit_min_success exceeds submit_total")
	}
}

func TestValidateUnknownCacheBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheBackend = "memcached"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown cache backend")
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{
		CacheDir:     filepath.Join(tmpDir, "subdir1", "cache"),
		CacheBackend: CacheBackendDir,
		LogPath:      filepath.Join(tmpDir, "subdir2", "chronoproof.log"),
		AuditLogPath: filepath.Join(tmpDir, "subdir3", "audit.log"),
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "subdir1", "cache")); os.IsNotExist(err) {
		t.Error("cache dir was not created")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "subdir2")); os.IsNotExist(err) {
		t.Error("subdir2 was not created")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "subdir3")); os.IsNotExist(err) {
		t.Error("subdir3 was not created")
	}
}

func TestEnsureDirectoriesEmptyPaths(t *testing.T) {
	cfg := &Config{}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Errorf("EnsureDirectories failed with empty paths: %v", err)
	}
}

func TestConfigWithComments(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	content := `
# This is a comment
calendar_urls = ["https://cal.example.com"] # inline comment
submit_total = 1 # another inline comment
# cache_dir = "/commented/out"
cache_dir = "/actual/path/cache"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SubmitTotal != 1 {
		t.Errorf("expected submit_total 1, got %d", cfg.SubmitTotal)
	}
	if cfg.CacheDir != "/actual/path/cache" {
		t.Errorf("expected cache dir /actual/path/cache, got %s", cfg.CacheDir)
	}
}

func TestFindConfigFileReturnsEmptyWhenAbsent(t *testing.T) {
	tmpDir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "no-such-config-home"))
	os.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "no-such-data-home"))

	if got := FindConfigFile(); got != "" {
		t.Errorf("expected no config file to be found, got %s", got)
	}
}
