package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/petrijr/settle/internal/config"
	"github.com/petrijr/settle/internal/history"
)

type historyRecord struct {
	At      time.Time `json:"at" yaml:"at"`
	Type    string    `json:"type" yaml:"type"`
	Index   int       `json:"index" yaml:"index"`
	Attempt int       `json:"attempt,omitempty" yaml:"attempt,omitempty"`
	Detail  string    `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <run-id>",
		Short: "Show the recorded events of a run",
		Long: `Show the events recorded for a run by "settle run --history ...".

Example:
  settle history 0b5c3f1e-... --history sqlite:./settle.db
  settle history nightly --history redis://localhost:6379/0 --format yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(cmd, rootOpts, args[0])
		},
	}
}

func showHistory(cmd *cobra.Command, opts *RootOptions, runID string) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}

	kind, _, err := config.ParseHistory(cfg.History)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid history", err)
	}
	if kind == config.HistoryNone || kind == config.HistoryMemory {
		return NewExitError(ExitCommandError, "history requires a persistent sink: --history sqlite:PATH or redis://ADDR")
	}

	store, closeStore, err := openHistory(cfg.History)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history", err)
	}
	defer func() { _ = closeStore() }()

	events, err := store.ListEvents(cmd.Context(), runID)
	if errors.Is(err, history.ErrRunNotFound) {
		return WrapExitError(ExitFailure, "no history for run "+runID, err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	records := make([]historyRecord, 0, len(events))
	for _, ev := range events {
		records = append(records, historyRecord{
			At:      ev.At.UTC(),
			Type:    string(ev.Type),
			Index:   ev.Index,
			Attempt: ev.Attempt,
			Detail:  ev.Detail,
		})
	}
	if err := encode(cmd.OutOrStdout(), cfg.Format, records); err != nil {
		return WrapExitError(ExitCommandError, "failed to write history", err)
	}
	return nil
}
