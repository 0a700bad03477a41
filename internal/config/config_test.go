package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.Pipeline.MinWorkstreams != 3 {
		t.Errorf("MinWorkstreams = %d, want 3", cfg.Pipeline.MinWorkstreams)
	}
	if cfg.Pipeline.ChecklistParallelism != 4 {
		t.Errorf("ChecklistParallelism = %d, want 4", cfg.Pipeline.ChecklistParallelism)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %d, want 8080", cfg.Web.Port)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Web.Host = %q, want 127.0.0.1", cfg.Web.Host)
	}
	if !cfg.AI.Enabled {
		t.Error("AI should be enabled by default")
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := writeTempConfig(t, `
[general]
database_path = "/data/tracker.db"
log_level = "debug"

[ai]
model = "gpt-4o"
input_price_per_million = 2.5

[pipeline]
enable_timeline = false
checklist_parallelism = 8

[web]
port = 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.DatabasePath != "/data/tracker.db" {
		t.Errorf("DatabasePath = %q, want /data/tracker.db", cfg.General.DatabasePath)
	}
	if cfg.General.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.General.LogLevel)
	}
	if cfg.AI.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", cfg.AI.Model)
	}
	if cfg.AI.InputPrice != 2.5 {
		t.Errorf("InputPrice = %v, want 2.5", cfg.AI.InputPrice)
	}
	if cfg.Pipeline.EnableTimeline {
		t.Error("EnableTimeline should be false")
	}
	if !cfg.Pipeline.EnableChecklists {
		t.Error("EnableChecklists should keep its default")
	}
	if cfg.Pipeline.ChecklistParallelism != 8 {
		t.Errorf("ChecklistParallelism = %d, want 8", cfg.Pipeline.ChecklistParallelism)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %d, want default 8080", cfg.Web.Port)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTempConfig(t, "[general\ndatabase_path = ")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
[general]
database_path = "/from/file.db"

[ai]
model = "file-model"
`)
	t.Setenv("TRACKER_DB_PATH", "/from/env.db")
	t.Setenv("TRACKER_AI_MODEL", "env-model")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TRACKER_WEB_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.DatabasePath != "/from/env.db" {
		t.Errorf("DatabasePath = %q, want /from/env.db", cfg.General.DatabasePath)
	}
	if cfg.AI.Model != "env-model" {
		t.Errorf("Model = %q, want env-model", cfg.AI.Model)
	}
	if cfg.AI.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want sk-test", cfg.AI.APIKey)
	}
	if cfg.Web.Port != 9999 {
		t.Errorf("Web.Port = %d, want 9999", cfg.Web.Port)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("TRACKER_LOG_LEVEL=warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(root)
	// godotenv never overrides variables that are already set
	t.Setenv("TRACKER_LOG_LEVEL", "")
	os.Unsetenv("TRACKER_LOG_LEVEL")

	cfg, err := Load(filepath.Join(root, "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.General.LogLevel)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestInboxConfig_DebounceDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"500ms", 500 * time.Millisecond},
		{"", 2 * time.Second},
		{"soon", 2 * time.Second},
		{"-1s", 2 * time.Second},
	}
	for _, tt := range tests {
		got := InboxConfig{Debounce: tt.input}.DebounceDuration()
		if got != tt.want {
			t.Errorf("DebounceDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFindLocalConfig(t *testing.T) {
	root := t.TempDir()
	subdir := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	localConfig := filepath.Join(root, LocalConfigName)
	if err := os.WriteFile(localConfig, []byte("[web]\nport = 7000"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Chdir(subdir)

	found := FindLocalConfig()
	// Temp dirs may sit behind a symlink, compare resolved paths
	gotResolved, _ := filepath.EvalSymlinks(found)
	wantResolved, _ := filepath.EvalSymlinks(localConfig)
	if gotResolved != wantResolved {
		t.Errorf("FindLocalConfig() = %q, want %q", found, localConfig)
	}

	cfg, err := LoadWithLocalFallback("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 7000 {
		t.Errorf("Web.Port = %d, want 7000", cfg.Web.Port)
	}
}

func TestLoadWithLocalFallback_ExplicitPath(t *testing.T) {
	path := writeTempConfig(t, "[web]\nport = 7100\n")

	cfg, err := LoadWithLocalFallback(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 7100 {
		t.Errorf("Web.Port = %d, want 7100", cfg.Web.Port)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
