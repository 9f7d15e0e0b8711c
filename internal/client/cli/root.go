package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dmitrijs2005/htgen/internal/client/config"
	"github.com/dmitrijs2005/htgen/internal/logging"
	"github.com/spf13/cobra"
)

// RootOptions carries state shared by every subcommand. Config and Log are
// filled in by the root PersistentPreRunE.
type RootOptions struct {
	Config *config.Config
	Log    logging.Logger
}

// open builds an App for one command invocation.
func (o *RootOptions) open(cmd *cobra.Command) (*App, error) {
	return NewApp(cmd.Context(), o.Config, o.Log, cmd.OutOrStdout())
}

// NewRootCommand creates the htgen command tree.
//
// Configuration flags are registered on the root for help output only; the
// values themselves are read by config.LoadConfig from the process
// arguments.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "htgen",
		Short:         "Generate hashtags for images, online or offline",
		Long:          "htgen sends images to a hashtag generation service, keeps a local history,\nserves cached assets while offline and replays queued requests on reconnect.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			opts.Config = cfg
			opts.Log = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, "text")
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("config", "c", "", "path to a config file (.json, .toml, .yaml)")
	for _, f := range config.Flags {
		pf.StringP(f.Long, f.Short, "", f.Usage)
	}

	cmd.AddCommand(
		NewGenerateCommand(opts),
		NewHistoryCommand(opts),
		NewDeleteCommand(opts),
		NewDrainCommand(opts),
		NewStatusCommand(opts),
		NewServeCommand(opts),
		NewREPLCommand(opts),
		NewVersionCommand(version),
	)
	return cmd
}

// Execute runs the command tree and reports the error, if any, on stderr.
func Execute(ctx context.Context, version string) int {
	if err := NewRootCommand(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// withApp opens an App, runs f and closes the App again.
func withApp(opts *RootOptions, cmd *cobra.Command, f func(context.Context, *App) error) error {
	app, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			opts.Log.Warn(cmd.Context(), "close", "error", cerr)
		}
	}()
	return f(cmd.Context(), app)
}

func NewGenerateCommand(opts *RootOptions) *cobra.Command {
	var language, topic string

	cmd := &cobra.Command{
		Use:   "generate <image>",
		Short: "Generate hashtags for an image",
		Long: `Upload an image and print the generated hashtags.

A repeated request for the same image, language and topic is answered from
the local history. While the service is unreachable the upload is queued and
replayed by "htgen drain" or a running "htgen serve".`,
		Example: "  htgen generate cat.png -l de -t pets",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				return a.Generate(ctx, args[0], language, topic)
			})
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "language of the hashtags (default from $LANG)")
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "optional topic to steer the hashtags")
	return cmd
}

func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "history",
		Aliases: []string{"ls"},
		Short:   "List past generations, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				return a.History(ctx)
			})
		},
	}
}

func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <timestamp>",
		Short: "Remove a history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid timestamp %q", args[0])
			}
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				if !yes && stdinIsTerminal() && !Confirm(a.reader, fmt.Sprintf("Delete entry %d?", ts), a.out) {
					a.printf("Aborted.\n")
					return nil
				}
				return a.Delete(ctx, ts)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func NewDrainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Replay requests queued while offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				return a.Drain(ctx)
			})
		},
	}
}

func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the service and show the offline queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				a.conn.Check(ctx)
				return a.Status(ctx)
			})
		},
	}
}

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local origin server and the connectivity watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Log = logging.New(cmd.ErrOrStderr(), opts.Config.LogLevel, "json")
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				return a.Serve(ctx)
			})
		},
	}
}

func NewREPLCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(ctx context.Context, a *App) error {
				a.Run(ctx, cmd.InOrStdin())
				return nil
			})
		},
	}
}

func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// version needs no configuration
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "htgen %s\n", version)
		},
	}
}
