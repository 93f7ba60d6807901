package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default endpoints of the two Konachan mirrors
const (
	DefaultSafeURL   = "https://konachan.net"
	DefaultUnsafeURL = "https://konachan.com"
)

// Config holds all configuration options for konadl
type Config struct {
	Booru         BooruConfig        `yaml:"booru" json:"booru"`
	Download      DownloadConfig     `yaml:"download" json:"download"`
	Retry         RetryConfig        `yaml:"retry" json:"retry"`
	RateLimit     RateLimitConfig    `yaml:"rate_limit" json:"rate_limit"`
	State         StateConfig        `yaml:"state" json:"state"`
	Metrics       MetricsConfig      `yaml:"metrics" json:"metrics"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
}

// BooruConfig describes the image board being crawled
type BooruConfig struct {
	SafeURL   string `yaml:"safe_url" json:"safe_url"`
	UnsafeURL string `yaml:"unsafe_url" json:"unsafe_url"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	Proxy     string `yaml:"proxy" json:"proxy"`
	Tags      string `yaml:"tags" json:"tags"`
	Limit     int    `yaml:"limit" json:"limit"`
	Unsafe    bool   `yaml:"unsafe" json:"unsafe"`
	Account   string `yaml:"account" json:"account"`
}

// DownloadConfig holds pagination and per-page download settings
type DownloadConfig struct {
	Directory        string        `yaml:"directory" json:"directory"`
	Workers          int           `yaml:"workers" json:"workers"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	BatchTimeout     time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	PageDelay        time.Duration `yaml:"page_delay" json:"page_delay"`
	StartPage        int           `yaml:"start_page" json:"start_page"`
	EndPage          int           `yaml:"end_page" json:"end_page"`
	StopAfterSkipped int           `yaml:"stop_after_skipped" json:"stop_after_skipped"`
	Smart            bool          `yaml:"smart" json:"smart"`
}

// RetryConfig holds the two retry policies used by the fetcher
type RetryConfig struct {
	Listing RetryPolicyConfig `yaml:"listing" json:"listing"`
	Content RetryPolicyConfig `yaml:"content" json:"content"`
}

// RetryPolicyConfig describes one exponential backoff policy
type RetryPolicyConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
	Jitter      bool          `yaml:"jitter" json:"jitter"`
}

// RateLimitConfig holds request pacing configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// StateConfig selects where resume cursors and statistics are kept
type StateConfig struct {
	Backend      string `yaml:"backend" json:"backend"`
	ProgressFile string `yaml:"progress_file" json:"progress_file"`
	StatsFile    string `yaml:"stats_file" json:"stats_file"`
	Database     string `yaml:"database" json:"database"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// State backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	dataDir := DataDirectory()
	return &Config{
		Booru: BooruConfig{
			SafeURL:   DefaultSafeURL,
			UnsafeURL: DefaultUnsafeURL,
			UserAgent: "konadl/1.0 (+https://konachan.net)",
			Limit:     100,
		},
		Download: DownloadConfig{
			Directory: "downloads",
			Workers:   5,
			Timeout:   10 * time.Second,
			PageDelay: time.Second,
		},
		Retry: RetryConfig{
			Listing: RetryPolicyConfig{
				MaxAttempts: 20,
				BaseDelay:   4 * time.Second,
				MaxDelay:    60 * time.Second,
				Multiplier:  2.0,
				Jitter:      true,
			},
			Content: RetryPolicyConfig{
				MaxAttempts: 10,
				BaseDelay:   2 * time.Second,
				MaxDelay:    30 * time.Second,
				Multiplier:  2.0,
				Jitter:      true,
			},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             5,
		},
		State: StateConfig{
			Backend:      BackendJSON,
			ProgressFile: filepath.Join(dataDir, "progress.json"),
			StatsFile:    filepath.Join(dataDir, "stats.json"),
			Database:     filepath.Join(dataDir, "konadl.db"),
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnComplete: true,
			OnError:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DataDirectory returns the directory that holds konadl's persistent state,
// following the XDG base directory layout.
func DataDirectory() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "konadl")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "konadl")
	}
	return "."
}

// BaseURL returns the endpoint matching the requested rating mode
func (b BooruConfig) BaseURL() string {
	if b.Unsafe {
		return b.UnsafeURL
	}
	return b.SafeURL
}

// ApplySmart resolves smart mode: start from page 1 and stop after five
// skipped pages unless either value was set explicitly.
func (d *DownloadConfig) ApplySmart() {
	if !d.Smart {
		return
	}
	if d.StartPage == 0 {
		d.StartPage = 1
	}
	if d.StopAfterSkipped == 0 {
		d.StopAfterSkipped = 5
	}
}

// LoadFromEnv loads configuration from KONADL_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("KONADL_SAFE_URL", &c.Booru.SafeURL)
	str("KONADL_UNSAFE_URL", &c.Booru.UnsafeURL)
	str("KONADL_USER_AGENT", &c.Booru.UserAgent)
	str("KONADL_PROXY", &c.Booru.Proxy)
	str("KONADL_TAGS", &c.Booru.Tags)
	str("KONADL_ACCOUNT", &c.Booru.Account)
	num("KONADL_LIMIT", &c.Booru.Limit)
	flag("KONADL_UNSAFE", &c.Booru.Unsafe)

	str("KONADL_DIR", &c.Download.Directory)
	num("KONADL_WORKERS", &c.Download.Workers)
	dur("KONADL_TIMEOUT", &c.Download.Timeout)
	dur("KONADL_PAGE_DELAY", &c.Download.PageDelay)
	num("KONADL_STOP_AFTER_SKIPPED", &c.Download.StopAfterSkipped)

	str("KONADL_STATE_BACKEND", &c.State.Backend)
	str("KONADL_PROGRESS_FILE", &c.State.ProgressFile)
	str("KONADL_STATS_FILE", &c.State.StatsFile)
	str("KONADL_DATABASE", &c.State.Database)

	str("KONADL_METRICS_ADDR", &c.Metrics.ListenAddr)
	flag("KONADL_NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)
	str("KONADL_LOG_LEVEL", &c.Logging.Level)
	str("KONADL_LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for a config file in standard locations
func findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".konadl.yaml",
		".konadl.yml",
		filepath.Join(home, ".config", "konadl", "config.yaml"),
		filepath.Join(home, ".config", "konadl", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	for name, raw := range map[string]string{"safe_url": c.Booru.SafeURL, "unsafe_url": c.Booru.UnsafeURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("booru %s must be an absolute URL, got %q", name, raw))
		}
	}
	if c.Booru.Proxy != "" {
		if u, err := url.Parse(c.Booru.Proxy); err != nil || u.Scheme == "" {
			errs = append(errs, fmt.Errorf("invalid proxy URL %q", c.Booru.Proxy))
		}
	}
	if c.Booru.Limit <= 0 {
		errs = append(errs, errors.New("limit must be positive"))
	}

	if c.Download.Directory == "" {
		errs = append(errs, errors.New("download directory is required"))
	}
	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.Download.BatchTimeout < 0 || c.Download.PageDelay < 0 {
		errs = append(errs, errors.New("batch timeout and page delay cannot be negative"))
	}
	if c.Download.StartPage < 0 || c.Download.EndPage < 0 || c.Download.StopAfterSkipped < 0 {
		errs = append(errs, errors.New("start, end and stop-after-skipped cannot be negative"))
	}

	for name, p := range map[string]RetryPolicyConfig{"listing": c.Retry.Listing, "content": c.Retry.Content} {
		if p.MaxAttempts < 1 {
			errs = append(errs, fmt.Errorf("%s retry needs at least one attempt", name))
		}
		if p.MaxDelay < p.BaseDelay {
			errs = append(errs, fmt.Errorf("%s retry max delay is below base delay", name))
		}
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate limit values cannot be negative"))
	}

	switch c.State.Backend {
	case BackendJSON:
		if c.State.ProgressFile == "" || c.State.StatsFile == "" {
			errs = append(errs, errors.New("json state backend needs progress and stats files"))
		}
	case BackendSQLite:
		if c.State.Database == "" {
			errs = append(errs, errors.New("sqlite state backend needs a database path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state backend %q", c.State.Backend))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "disabled": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeCommandLineFlags merges explicitly set command line flags into the
// configuration. Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["tags"].(string); ok {
		c.Booru.Tags = v
	}
	if v, ok := flags["start"].(int); ok {
		c.Download.StartPage = v
	}
	if v, ok := flags["end"].(int); ok {
		c.Download.EndPage = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Download.Workers = v
	}
	if v, ok := flags["dir"].(string); ok && v != "" {
		c.Download.Directory = v
	}
	if v, ok := flags["limit"].(int); ok && v > 0 {
		c.Booru.Limit = v
	}
	if v, ok := flags["timeout"].(time.Duration); ok && v > 0 {
		c.Download.Timeout = v
	}
	if v, ok := flags["unsafe"].(bool); ok {
		c.Booru.Unsafe = v
	}
	if v, ok := flags["proxy"].(string); ok {
		c.Booru.Proxy = v
	}
	if v, ok := flags["stop-after-skipped"].(int); ok {
		c.Download.StopAfterSkipped = v
	}
	if v, ok := flags["smart"].(bool); ok {
		c.Download.Smart = v
	}
	if v, ok := flags["account"].(string); ok {
		c.Booru.Account = v
	}
	if v, ok := flags["metrics-addr"].(string); ok {
		c.Metrics.ListenAddr = v
	}
	if v, ok := flags["state-backend"].(string); ok && v != "" {
		c.State.Backend = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment (.env included) > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".konadl.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)
	cfg.Download.ApplySmart()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
