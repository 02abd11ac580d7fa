// Package cli implements the settle command line tool.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/petrijr/settle/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
}

// NewRootCommand creates the root command for the settle CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	d := config.Defaults()

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Run a command over many inputs, with bounded concurrency and retries",
		Long: `settle runs a shell command once per input line, at most N at a time,
retrying failures, and reports every success and every failure.

Settings come from flags, SETTLE_* environment variables, and an optional
config file (settle.yaml in the working directory, or --config).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().String("format", d.Format, "output format (json|yaml)")
	cmd.PersistentFlags().String("log-level", d.LogLevel, "log level (debug|info|warn|error)")
	cmd.PersistentFlags().String("history", d.History, "history sink (memory | sqlite:PATH | redis://ADDR)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// load resolves the configuration for cmd.
func (o *RootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}
