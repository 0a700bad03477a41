package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	AI            AIConfig            `toml:"ai"`
	Pipeline      PipelineConfig      `toml:"pipeline"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Inbox         InboxConfig         `toml:"inbox"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath string `toml:"database_path" env:"TRACKER_DB_PATH"`
	LogLevel     string `toml:"log_level" env:"TRACKER_LOG_LEVEL"`
	LogFormat    string `toml:"log_format" env:"TRACKER_LOG_FORMAT"`
}

// AIConfig holds chat completion API settings. Prices are USD per million
// tokens.
type AIConfig struct {
	Enabled     bool    `toml:"enabled" env:"TRACKER_AI_ENABLED"`
	APIKey      string  `toml:"api_key" env:"OPENAI_API_KEY"`
	Model       string  `toml:"model" env:"TRACKER_AI_MODEL"`
	BaseURL     string  `toml:"base_url" env:"TRACKER_AI_BASE_URL"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
	MaxRetries  int     `toml:"max_retries"`
	InputPrice  float64 `toml:"input_price_per_million"`
	OutputPrice float64 `toml:"output_price_per_million"`
}

// PipelineConfig selects which optional import stages run
type PipelineConfig struct {
	MinWorkstreams       int  `toml:"min_workstreams"`
	ChecklistParallelism int  `toml:"checklist_parallelism"`
	EnableTimeline       bool `toml:"enable_timeline"`
	EnableDependencies   bool `toml:"enable_dependencies"`
	EnableResources      bool `toml:"enable_resources"`
	EnableChecklists     bool `toml:"enable_checklists"`
	// UseReferenceDependencies maps declared workstream dependencies when
	// no AI analyzer is available
	UseReferenceDependencies bool `toml:"use_reference_dependencies"`
}

// NotificationsConfig holds import notification settings
type NotificationsConfig struct {
	Desktop    bool   `toml:"desktop"`
	WebhookURL string `toml:"webhook_url" env:"TRACKER_WEBHOOK_URL"`
}

// WebConfig holds HTTP API settings
type WebConfig struct {
	Port int    `toml:"port" env:"TRACKER_WEB_PORT"`
	Host string `toml:"host" env:"TRACKER_WEB_HOST"`
}

// InboxConfig holds settings for the watched import directory
type InboxConfig struct {
	Dir       string `toml:"dir" env:"TRACKER_INBOX_DIR"`
	ProjectID string `toml:"project_id"`
	Cron      string `toml:"cron"`
	Debounce  string `toml:"debounce"`
}

// DebounceDuration parses Debounce, falling back to two seconds
func (c InboxConfig) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Debounce)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".project-tracker", "tracker.db"),
			LogLevel:     "info",
			LogFormat:    "text",
		},
		AI: AIConfig{
			Enabled:     true,
			Model:       "gpt-4o-mini",
			MaxTokens:   4000,
			Temperature: 0.2,
			MaxRetries:  2,
			InputPrice:  0.15,
			OutputPrice: 0.60,
		},
		Pipeline: PipelineConfig{
			MinWorkstreams:           3,
			ChecklistParallelism:     4,
			EnableTimeline:           true,
			EnableDependencies:       true,
			EnableResources:          true,
			EnableChecklists:         true,
			UseReferenceDependencies: true,
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Inbox: InboxConfig{
			Dir:       filepath.Join(home, ".project-tracker", "inbox"),
			ProjectID: "default",
			Debounce:  "2s",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// Environment variables, including those from a .env file in the working
// directory, override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	// Expand paths
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Inbox.Dir = ExpandPath(cfg.Inbox.Dir)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// LocalConfigName is the per-directory config file looked up by
// FindLocalConfig
const LocalConfigName = ".project-tracker.toml"

// FindLocalConfig walks up from the working directory and returns the
// first LocalConfigName found, or an empty string.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadWithLocalFallback loads path when given, otherwise the nearest local
// config, otherwise the default config path.
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "project-tracker", "config.toml")
}
