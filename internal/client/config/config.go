package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/htgen/internal/client/worker"
	"golang.org/x/text/language"
)

// Config holds runtime settings for the htgen client.
//
// Units: OnlineCheckInterval and RequestTimeout are time.Duration values;
// HistoryQuotaBytes is the byte budget of the stored history (0 disables it).
type Config struct {
	ServerBaseURL       string
	ListenAddr          string
	DatabasePath        string
	CacheVersion        string
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	HistoryQuotaBytes   int64
	QueuePolicy         string
	LogLevel            string
	DefaultLanguage     string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8000"
	c.ListenAddr = "127.0.0.1:8080"
	c.DatabasePath = "htgen.db"
	c.CacheVersion = "1"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 30 * time.Second
	c.HistoryQuotaBytes = 5 << 20
	c.QueuePolicy = string(worker.PolicyReplaceLatest)
	c.LogLevel = "info"
	c.DefaultLanguage = languageFromLocale(os.Getenv("LANG"))
}

// languageFromLocale maps a POSIX locale such as "de_DE.UTF-8" to its base
// language ("de"). Anything unparseable falls back to English.
func languageFromLocale(locale string) string {
	locale, _, _ = strings.Cut(locale, ".")
	locale, _, _ = strings.Cut(locale, "@")
	locale = strings.ReplaceAll(locale, "_", "-")
	if locale == "" || locale == "C" || locale == "POSIX" {
		return "en"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	return base.String()
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server url %q must be absolute", c.ServerBaseURL)
	}
	if c.OnlineCheckInterval <= 0 {
		return fmt.Errorf("online check interval must be positive, got %s", c.OnlineCheckInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.CacheVersion == "" {
		return fmt.Errorf("cache version must not be empty")
	}
	if _, err := worker.ParsePolicy(c.QueuePolicy); err != nil {
		return err
	}
	if _, err := language.Parse(c.DefaultLanguage); err != nil {
		return fmt.Errorf("default language %q: %w", c.DefaultLanguage, err)
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
