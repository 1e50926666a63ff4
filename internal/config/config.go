// Package config resolves warden's configuration: defaults, then an optional
// YAML file named by WARDEN_CONFIG, then WARDEN_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hejijunhao/warden/internal/model"
)

// Version is the warden release version.
const Version = "0.3.0"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all warden configuration.
type Config struct {
	Targets         []model.Target    `yaml:"targets"`
	APIKeys         map[string]string `yaml:"api_keys"` // provider -> token for targets without their own
	Cycle           CycleConfig       `yaml:"cycle"`
	Store           StoreConfig       `yaml:"store"`
	Analyzer        AnalyzerConfig    `yaml:"analyzer"`
	Issues          IssueConfig       `yaml:"issues"`
	Alerts          AlertConfig       `yaml:"alerts"`
	Server          ServerConfig      `yaml:"server"`
	Log             LogConfig         `yaml:"log"`
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"`

	// Path of the YAML file the configuration was read from, if any.
	Path string `yaml:"-"`
}

// CycleConfig controls scheduling and the core's decisions.
type CycleConfig struct {
	Schedule          string        `yaml:"schedule"` // cron spec or "@every 15m"
	RunOnStart        bool          `yaml:"run_on_start"`
	Lookback          time.Duration `yaml:"lookback"`
	MaxParallel       int           `yaml:"max_parallel"`
	IssueThreshold    string        `yaml:"issue_threshold"`
	AlertThreshold    string        `yaml:"alert_threshold"`
	LogEventTTL       time.Duration `yaml:"log_event_ttl"`
	IssueTTL          time.Duration `yaml:"issue_ttl"`
	FingerprintBucket time.Duration `yaml:"fingerprint_bucket"`
	FingerprintPrefix int           `yaml:"fingerprint_prefix"`
}

// StoreConfig selects the idempotence backend. An empty driver runs without
// a store.
type StoreConfig struct {
	Driver    string `yaml:"driver"` // "memory", "redis", "sqlite3", "postgres"
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
}

// AnalyzerConfig selects the chat model. An empty provider uses only the
// heuristic analyzer.
type AnalyzerConfig struct {
	Provider     string        `yaml:"provider"` // "openai", "anthropic"
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	PromptBudget int           `yaml:"prompt_budget"`
	MaxTokens    int           `yaml:"max_tokens"`
	Verbosity    string        `yaml:"verbosity"` // "minimal", "standard", "full"
	DedupWindow  time.Duration `yaml:"dedup_window"`
}

// IssueConfig configures the issue tracker.
type IssueConfig struct {
	Provider   string   `yaml:"provider"` // "github" or "none"
	Token      string   `yaml:"token"`
	Endpoint   string   `yaml:"endpoint"`
	Repository string   `yaml:"repository"` // default "owner/repo"
	Labels     []string `yaml:"labels"`
}

// AlertConfig configures alert channels. Every configured channel receives
// every alert.
type AlertConfig struct {
	Stdout      bool          `yaml:"stdout"`
	Pretty      bool          `yaml:"pretty"`
	SlackURL    string        `yaml:"slack_webhook_url"`
	FilePath    string        `yaml:"file"`
	FileMaxSize int64         `yaml:"file_max_size"`
	Verbosity   string        `yaml:"verbosity"`
	Email       EmailConfig   `yaml:"email"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EmailConfig configures the SMTP channel. An empty host disables it.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Async    bool     `yaml:"async"` // queue mail instead of sending within the cycle
}

// ServerConfig configures the status server. An empty address disables it.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures process logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Defaults returns the configuration used before any file or environment
// override is applied.
func Defaults() Config {
	return Config{
		Cycle: CycleConfig{
			Schedule:       "@every 15m",
			Lookback:       15 * time.Minute,
			MaxParallel:    1,
			IssueThreshold: "medium",
			AlertThreshold: "high",
			LogEventTTL:    24 * time.Hour,
			IssueTTL:       7 * 24 * time.Hour,
		},
		Store:    StoreConfig{Driver: "memory", Namespace: "warden"},
		Analyzer: AnalyzerConfig{Timeout: 60 * time.Second, Verbosity: "standard", DedupWindow: 5 * time.Minute},
		Issues:   IssueConfig{Provider: "github", Labels: []string{"warden"}},
		Alerts:   AlertConfig{Verbosity: "standard", FileMaxSize: 10 << 20, Timeout: 10 * time.Second},
		Server:   ServerConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info", Format: "json"},

		ShutdownTimeout: 10 * time.Second,
	}
}

// Load resolves configuration from defaults, the YAML file named by
// WARDEN_CONFIG and WARDEN_* environment variables, in that order.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("WARDEN_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// loadFile decodes a YAML file over cfg. Unknown fields are rejected.
func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	c.Path = path
	return nil
}

func (c *Config) applyEnv() {
	c.Cycle.Schedule = getenv("WARDEN_SCHEDULE", c.Cycle.Schedule)
	c.Cycle.RunOnStart = getenvBool("WARDEN_RUN_ON_START", c.Cycle.RunOnStart)
	c.Cycle.Lookback = getenvDuration("WARDEN_LOOKBACK", c.Cycle.Lookback)
	c.Cycle.MaxParallel = getenvInt("WARDEN_MAX_PARALLEL", c.Cycle.MaxParallel)
	c.Cycle.IssueThreshold = getenv("WARDEN_ISSUE_THRESHOLD", c.Cycle.IssueThreshold)
	c.Cycle.AlertThreshold = getenv("WARDEN_ALERT_THRESHOLD", c.Cycle.AlertThreshold)
	c.Cycle.LogEventTTL = getenvDuration("WARDEN_LOG_EVENT_TTL", c.Cycle.LogEventTTL)
	c.Cycle.IssueTTL = getenvDuration("WARDEN_ISSUE_TTL", c.Cycle.IssueTTL)
	c.Cycle.FingerprintBucket = getenvDuration("WARDEN_FINGERPRINT_BUCKET", c.Cycle.FingerprintBucket)
	c.Cycle.FingerprintPrefix = getenvInt("WARDEN_FINGERPRINT_PREFIX", c.Cycle.FingerprintPrefix)

	c.Store.Driver = getenv("WARDEN_STORE_DRIVER", c.Store.Driver)
	c.Store.URL = getenv("WARDEN_STORE_URL", c.Store.URL)
	c.Store.Namespace = getenv("WARDEN_STORE_NAMESPACE", c.Store.Namespace)

	c.Analyzer.Provider = getenv("WARDEN_LLM_PROVIDER", c.Analyzer.Provider)
	c.Analyzer.APIKey = getenv("WARDEN_LLM_API_KEY", c.Analyzer.APIKey)
	c.Analyzer.Model = getenv("WARDEN_LLM_MODEL", c.Analyzer.Model)
	c.Analyzer.BaseURL = getenv("WARDEN_LLM_BASE_URL", c.Analyzer.BaseURL)
	c.Analyzer.Timeout = getenvDuration("WARDEN_LLM_TIMEOUT", c.Analyzer.Timeout)
	c.Analyzer.PromptBudget = getenvInt("WARDEN_PROMPT_BUDGET", c.Analyzer.PromptBudget)
	c.Analyzer.Verbosity = getenv("WARDEN_VERBOSITY", c.Analyzer.Verbosity)
	c.Analyzer.DedupWindow = getenvDuration("WARDEN_DEDUP_WINDOW", c.Analyzer.DedupWindow)

	c.Issues.Provider = getenv("WARDEN_ISSUE_PROVIDER", c.Issues.Provider)
	c.Issues.Token = getenv("WARDEN_GITHUB_TOKEN", c.Issues.Token)
	c.Issues.Endpoint = getenv("WARDEN_GITHUB_ENDPOINT", c.Issues.Endpoint)
	c.Issues.Repository = getenv("WARDEN_GITHUB_REPOSITORY", c.Issues.Repository)
	c.Issues.Labels = getenvList("WARDEN_ISSUE_LABELS", c.Issues.Labels)

	c.Alerts.Stdout = getenvBool("WARDEN_ALERT_STDOUT", c.Alerts.Stdout)
	c.Alerts.Pretty = getenvBool("WARDEN_ALERT_PRETTY", c.Alerts.Pretty)
	c.Alerts.SlackURL = getenv("WARDEN_SLACK_WEBHOOK_URL", c.Alerts.SlackURL)
	c.Alerts.FilePath = getenv("WARDEN_ALERT_FILE", c.Alerts.FilePath)
	c.Alerts.Verbosity = getenv("WARDEN_ALERT_VERBOSITY", c.Alerts.Verbosity)
	c.Alerts.Email.Host = getenv("WARDEN_SMTP_HOST", c.Alerts.Email.Host)
	c.Alerts.Email.Port = getenvInt("WARDEN_SMTP_PORT", c.Alerts.Email.Port)
	c.Alerts.Email.Username = getenv("WARDEN_SMTP_USERNAME", c.Alerts.Email.Username)
	c.Alerts.Email.Password = getenv("WARDEN_SMTP_PASSWORD", c.Alerts.Email.Password)
	c.Alerts.Email.From = getenv("WARDEN_SMTP_FROM", c.Alerts.Email.From)
	c.Alerts.Email.To = getenvList("WARDEN_ALERT_EMAIL_TO", c.Alerts.Email.To)
	c.Alerts.Email.Async = getenvBool("WARDEN_SMTP_ASYNC", c.Alerts.Email.Async)

	c.Server.Addr = getenv("WARDEN_SERVER_ADDR", c.Server.Addr)
	c.Log.Level = getenv("WARDEN_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenv("WARDEN_LOG_FORMAT", c.Log.Format)
	c.ShutdownTimeout = getenvDuration("WARDEN_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	for provider, key := range map[string]string{
		"vercel": "WARDEN_VERCEL_TOKEN",
		"flyio":  "WARDEN_FLY_TOKEN",
	} {
		if v := os.Getenv(key); v != "" {
			if c.APIKeys == nil {
				c.APIKeys = make(map[string]string)
			}
			c.APIKeys[provider] = v
		}
	}

	if len(c.Targets) == 0 {
		if t, ok := targetFromEnv(); ok {
			c.Targets = []model.Target{t}
		}
	}
}

// targetFromEnv builds the single-target shortcut from WARDEN_TARGET_*.
func targetFromEnv() (model.Target, bool) {
	project := os.Getenv("WARDEN_TARGET_PROJECT")
	if project == "" {
		return model.Target{}, false
	}
	t := model.Target{
		Name:       os.Getenv("WARDEN_TARGET_NAME"),
		Provider:   getenv("WARDEN_TARGET_PROVIDER", "vercel"),
		Project:    project,
		Service:    os.Getenv("WARDEN_TARGET_SERVICE"),
		APIKey:     os.Getenv("WARDEN_TARGET_API_KEY"),
		Endpoint:   os.Getenv("WARDEN_TARGET_ENDPOINT"),
		Repository: os.Getenv("WARDEN_TARGET_REPOSITORY"),
	}
	if team := os.Getenv("WARDEN_TARGET_TEAM_ID"); team != "" {
		t.Extra = map[string]string{"team_id": team}
	}
	return t, true
}

// Thresholds returns the parsed issue and alert thresholds. Call after
// Validate; unparseable values fall back to the defaults.
func (c Config) Thresholds() (issue, alert model.Severity) {
	issue, err := model.ParseSeverity(c.Cycle.IssueThreshold)
	if err != nil {
		issue = model.SeverityMedium
	}
	alert, err = model.ParseSeverity(c.Cycle.AlertThreshold)
	if err != nil {
		alert = model.SeverityHigh
	}
	return issue, alert
}

// TrackerEnabled reports whether issues are filed.
func (c Config) TrackerEnabled() bool {
	return c.Issues.Provider != "" && c.Issues.Provider != "none"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// getenvList splits a comma-separated value, dropping empty items.
func getenvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
