package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petrijr/settle"
	"github.com/petrijr/settle/internal/config"
	"github.com/petrijr/settle/pkg/worker"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Exec  string
	RunID string
}

type runReport struct {
	RunID   string        `json:"run_id" yaml:"run_id"`
	Items   int           `json:"items" yaml:"items"`
	Omitted bool          `json:"omitted,omitempty" yaml:"omitted,omitempty"`
	Values  []string      `json:"values" yaml:"values"`
	Errors  []itemFailure `json:"errors" yaml:"errors"`
}

type itemFailure struct {
	Index int    `json:"index" yaml:"index"`
	Item  string `json:"item" yaml:"item"`
	Error string `json:"error" yaml:"error"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}
	d := config.Defaults()

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a shell command for every input line",
		Long: `Run a shell command once for every non-empty line of file (or stdin).

The command is run as "$SHELL -c CMD _ ITEM", so the item is "$1". It is
also available as $SETTLE_ITEM, with its zero-based position in
$SETTLE_INDEX. A command's trimmed stdout is its value. A non-zero exit
status, or running longer than --timeout, is a failure and is retried
according to --attempts.

Example:
  settle run urls.txt -c 'curl -fsS "$1" | wc -c' -n 8 --attempts 2 --delay 1s
  ls *.png | settle run -c 'optipng -quiet "$1"' --omit-result`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runItems(cmd, opts, path)
		},
	}

	cmd.Flags().StringVarP(&opts.Exec, "exec", "c", "", "shell command to run per item (required)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run identifier (default: random UUID)")
	cmd.Flags().IntP("concurrency", "n", d.Concurrency, "maximum items processed at once")
	cmd.Flags().Int("attempts", d.Attempts, "retries after an item's first failure")
	cmd.Flags().Duration("delay", d.Delay, "wait before each retry")
	cmd.Flags().Duration("timeout", d.Timeout, "limit for each attempt (0 = none)")
	cmd.Flags().Bool("omit-result", d.OmitResult, "do not collect values and errors")
	cmd.Flags().String("shell", d.Shell, "shell used to run the command")
	_ = cmd.MarkFlagRequired("exec")

	return cmd
}

func runItems(cmd *cobra.Command, opts *RunOptions, path string) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	items, err := readItems(cmd.InOrStdin(), path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read items", err)
	}

	store, closeStore, err := openHistory(cfg.History)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history", err)
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			logger.Error("error closing history", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := &settle.BasicMetrics{}
	mapOpts := []settle.Option{
		settle.WithConcurrency(cfg.Concurrency),
		settle.WithOnFail(cfg.Attempts, cfg.Delay),
		settle.WithLogger(logger),
		settle.WithObserver(metrics),
		settle.WithRunID(opts.RunID),
	}
	if cfg.OmitResult {
		mapOpts = append(mapOpts, settle.WithOmitResult())
	}
	if store != nil {
		mapOpts = append(mapOpts, settle.WithHistory(store))
	}

	w := worker.WithTimeout(worker.Shell(worker.ShellConfig{
		Shell:  cfg.Shell,
		Script: opts.Exec,
	}), cfg.Timeout)

	h, err := settle.Map(ctx, items, w, mapOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid run options", err)
	}

	// Wait on the parent context: an interrupt only drops queued items,
	// the run still finishes and reports.
	res, err := h.Wait(parentCtx)
	if err != nil {
		h.Stop()
		return WrapExitError(ExitCommandError, "run aborted", err)
	}

	report := runReport{
		RunID:   h.RunID(),
		Items:   len(items),
		Omitted: res == nil,
		Values:  []string{},
		Errors:  []itemFailure{},
	}
	if res != nil {
		report.Values = append(report.Values, res.Values...)
		for _, e := range res.Errors {
			report.Errors = append(report.Errors, itemFailure{Index: e.Index, Item: e.Item, Error: e.Message})
		}
	}
	if err := encode(cmd.OutOrStdout(), cfg.Format, report); err != nil {
		return WrapExitError(ExitCommandError, "failed to write result", err)
	}

	snap := metrics.Snapshot()
	logger.Info("run finished",
		"run_id", h.RunID(),
		"resolved", snap.ItemsResolved,
		"rejected", snap.ItemsRejected,
		"retries", snap.Retries,
	)
	if snap.ItemsRejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d items failed", snap.ItemsRejected, len(items)))
	}
	if dropped := len(items) - int(snap.ItemsResolved+snap.ItemsRejected); dropped > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d items were not run", dropped, len(items)))
	}
	return nil
}

// readItems returns the non-empty lines of path, or of stdin when path is
// empty or "-".
func readItems(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var items []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		items = append(items, line)
	}
	return items, sc.Err()
}
