package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/htgen/internal/flagx"
	"github.com/dmitrijs2005/htgen/internal/timex"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig is a DTO used exclusively for decoding config files. It relies
// on timex.Duration so intervals may be written as "3s" (or, in JSON, as
// integer nanoseconds). Zero values leave the current setting alone.
type fileConfig struct {
	ServerBaseURL       string         `json:"server_base_url" toml:"server_base_url" yaml:"server_base_url"`
	ListenAddr          string         `json:"listen_addr" toml:"listen_addr" yaml:"listen_addr"`
	DatabasePath        string         `json:"database_path" toml:"database_path" yaml:"database_path"`
	CacheVersion        string         `json:"cache_version" toml:"cache_version" yaml:"cache_version"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval" toml:"online_check_interval" yaml:"online_check_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout" toml:"request_timeout" yaml:"request_timeout"`
	HistoryQuotaBytes   *int64         `json:"history_quota_bytes" toml:"history_quota_bytes" yaml:"history_quota_bytes"`
	QueuePolicy         string         `json:"queue_policy" toml:"queue_policy" yaml:"queue_policy"`
	LogLevel            string         `json:"log_level" toml:"log_level" yaml:"log_level"`
	DefaultLanguage     string         `json:"default_language" toml:"default_language" yaml:"default_language"`
}

// decodeFile picks the decoder from the file extension.
func decodeFile(path string, fc *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, fc)
	case ".toml":
		err = toml.Unmarshal(data, fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		return fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseFile overlays cfg with values from the file named by -c/-config.
// Without that flag it does nothing.
func parseFile(cfg *Config) error {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return nil
	}

	var fc fileConfig
	if err := decodeFile(path, &fc); err != nil {
		return err
	}

	setString(&cfg.ServerBaseURL, fc.ServerBaseURL)
	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.DatabasePath, fc.DatabasePath)
	setString(&cfg.CacheVersion, fc.CacheVersion)
	setString(&cfg.QueuePolicy, fc.QueuePolicy)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.DefaultLanguage, fc.DefaultLanguage)
	if fc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = fc.OnlineCheckInterval.Duration
	}
	if fc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = fc.RequestTimeout.Duration
	}
	if fc.HistoryQuotaBytes != nil {
		cfg.HistoryQuotaBytes = *fc.HistoryQuotaBytes
	}
	return nil
}
