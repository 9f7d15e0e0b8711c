package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/htgen/internal/flagx"
)

// Flag describes one configuration flag. Each flag has a one-letter short
// form and a long form.
type Flag struct {
	Short string
	Long  string
	Usage string
}

// Flags lists the configuration flags understood by parseFlags, so command
// frameworks can register the same names for help output.
var Flags = []Flag{
	{"s", "server", "base URL of the hashtag generation service"},
	{"a", "listen", "address the local origin server listens on"},
	{"d", "db", "path to the local SQLite database"},
	{"i", "interval", "online check interval (in seconds)"},
	{"T", "timeout", "upstream request timeout (in seconds)"},
	{"q", "quota", "history storage quota in bytes (0 disables it)"},
	{"v", "cache-version", "static asset cache version"},
	{"p", "queue-policy", "offline queue policy: replace-latest or append-all"},
	{"L", "log-level", "log level: debug, info, warn or error"},
}

func flagArgs() []string {
	names := make([]string, 0, len(Flags)*3)
	for _, f := range Flags {
		names = append(names, "-"+f.Short, "-"+f.Long, "--"+f.Long)
	}
	return names
}

// parseFlags populates Config fields from command-line flags.
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, so subcommand flags and arguments pass through.
// Interval and timeout flags are applied only when given.
func parseFlags(cfg *Config) error {
	args := flagx.FilterArgs(os.Args[1:], flagArgs())

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	str := func(dst *string, f Flag) {
		fs.StringVar(dst, f.Short, *dst, f.Usage)
		fs.StringVar(dst, f.Long, *dst, f.Usage)
	}
	str(&cfg.ServerBaseURL, Flags[0])
	str(&cfg.ListenAddr, Flags[1])
	str(&cfg.DatabasePath, Flags[2])
	str(&cfg.CacheVersion, Flags[6])
	str(&cfg.QueuePolicy, Flags[7])
	str(&cfg.LogLevel, Flags[8])

	var interval, timeout int
	fs.IntVar(&interval, Flags[3].Short, 0, Flags[3].Usage)
	fs.IntVar(&interval, Flags[3].Long, 0, Flags[3].Usage)
	fs.IntVar(&timeout, Flags[4].Short, 0, Flags[4].Usage)
	fs.IntVar(&timeout, Flags[4].Long, 0, Flags[4].Usage)
	fs.Int64Var(&cfg.HistoryQuotaBytes, Flags[5].Short, cfg.HistoryQuotaBytes, Flags[5].Usage)
	fs.Int64Var(&cfg.HistoryQuotaBytes, Flags[5].Long, cfg.HistoryQuotaBytes, Flags[5].Usage)

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case Flags[3].Short, Flags[3].Long:
			cfg.OnlineCheckInterval = time.Duration(interval) * time.Second
		case Flags[4].Short, Flags[4].Long:
			cfg.RequestTimeout = time.Duration(timeout) * time.Second
		}
	})
	return nil
}
