package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LANG", "de_DE.UTF-8")

	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8000", c.ServerBaseURL)
	assert.Equal(t, "127.0.0.1:8080", c.ListenAddr)
	assert.Equal(t, "htgen.db", c.DatabasePath)
	assert.Equal(t, "1", c.CacheVersion)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, int64(5<<20), c.HistoryQuotaBytes)
	assert.Equal(t, "replace-latest", c.QueuePolicy)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "de", c.DefaultLanguage)
	assert.NoError(t, c.Validate())
}

func TestLanguageFromLocale(t *testing.T) {
	tests := map[string]string{
		"":             "en",
		"C":            "en",
		"POSIX":        "en",
		"fr_FR.UTF-8":  "fr",
		"pt_BR":        "pt",
		"sr_RS@latin":  "sr",
		"not a locale": "en",
	}
	for in, want := range tests {
		assert.Equal(t, want, languageFromLocale(in), "locale %q", in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"relative url", func(c *Config) { c.ServerBaseURL = "/api" }, "must be absolute"},
		{"zero interval", func(c *Config) { c.OnlineCheckInterval = 0 }, "online check interval"},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }, "request timeout"},
		{"empty cache version", func(c *Config) { c.CacheVersion = "" }, "cache version"},
		{"bad policy", func(c *Config) { c.QueuePolicy = "drop-all" }, "drop-all"},
		{"bad language", func(c *Config) { c.DefaultLanguage = "!!" }, "default language"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"cmd"}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8000", cfg.ServerBaseURL)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeTemp(t, "cfg.toml", `
server_base_url = "http://file.example"
listen_addr = "127.0.0.1:9999"
`)

	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"cmd", "generate", "cat.png", "-c", path, "-s", "http://flag.example"}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://flag.example", cfg.ServerBaseURL)
	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
}

func TestLoadConfig_InvalidResult(t *testing.T) {
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"cmd", "-p", "sometimes"}

	cfg, err := LoadConfig()
	require.Error(t, err)
	assert.Nil(t, cfg)
}
