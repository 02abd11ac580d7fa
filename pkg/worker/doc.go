// Package worker provides ready-made api.Worker implementations and
// decorators for use with settle.Map.
//
// # Shell
//
// Shell runs an external command once per attempt. The item is passed as
// the command's first positional argument and in $SETTLE_ITEM; its index
// is in $SETTLE_INDEX. Trimmed stdout becomes the value, a non-zero exit
// status a failure:
//
//	w := worker.Shell(worker.ShellConfig{Script: `gzip -k "$1"`})
//	h, err := settle.Map(ctx, files, w, settle.WithConcurrency(4))
//
// # Decorators
//
// WithTimeout bounds each attempt. The engine itself never interrupts a
// worker; a timed-out attempt fails with context.DeadlineExceeded and is
// retried like any other failure.
//
// Func lifts a plain function that needs neither the context nor the
// index.
package worker
