// Package config loads runtime configuration for the htgen client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults). The default language
//     is derived from $LANG.
//  2. Optional config file selected via -c, -config or --config. The format
//     follows the extension: .json, .toml, .yaml or .yml.
//  3. Command-line flags (see Flags), which override earlier values.
//
// Supported flags
//
//	-s, --server string         base URL of the generation service
//	-a, --listen string         local origin server address
//	-d, --db string             SQLite database path
//	-i, --interval int          online check interval (seconds)
//	-T, --timeout int           upstream request timeout (seconds)
//	-q, --quota int             history quota in bytes
//	-v, --cache-version string  static asset cache version
//	-p, --queue-policy string   replace-latest or append-all
//	-L, --log-level string      debug, info, warn or error
//
// # File schema
//
// Intervals use timex.Duration, so they may be strings like "3s" (JSON also
// accepts integer nanoseconds):
//
//	server_base_url = "https://htgen.example"
//	listen_addr = "127.0.0.1:8080"
//	database_path = "/var/lib/htgen/htgen.db"
//	cache_version = "2"
//	online_check_interval = "5s"
//	request_timeout = "30s"
//	history_quota_bytes = 5242880
//	queue_policy = "append-all"
//	log_level = "debug"
//	default_language = "de"
package config
