package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/settle/pkg/api"
)

// Recorder is an api.Observer that appends one RunEvent per lifecycle
// transition to a Store. Store failures are logged and otherwise ignored.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

var _ api.Observer = (*Recorder)(nil)

// NewRecorder returns a Recorder writing to store. A nil logger uses
// slog.Default().
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if store == nil {
		store = NoopStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

func (r *Recorder) append(ctx context.Context, ev api.RunEvent) {
	ev.At = time.Now()
	// Records are written even when the run's context has ended.
	if err := r.store.AppendEvent(context.WithoutCancel(ctx), ev); err != nil {
		r.logger.WarnContext(ctx, "history append failed",
			slog.String("run_id", ev.RunID),
			slog.String("type", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}

func (r *Recorder) OnRunStart(ctx context.Context, run api.RunInfo) {
	r.append(ctx, api.RunEvent{
		RunID: run.ID,
		Type:  api.RunEventStarted,
		Index: -1,
		Detail: fmt.Sprintf("items=%d concurrency=%d attempts=%d delay=%s",
			run.Items, run.Options.Concurrency, run.Options.OnFail.Attempts, run.Options.OnFail.Delay),
	})
}

func (r *Recorder) OnItemStart(ctx context.Context, run api.RunInfo, index int, attempt int) {
	r.append(ctx, api.RunEvent{RunID: run.ID, Type: api.RunEventItemStarted, Index: index, Attempt: attempt})
}

func (r *Recorder) OnItemResolved(ctx context.Context, run api.RunInfo, index int, d time.Duration) {
	r.append(ctx, api.RunEvent{
		RunID:  run.ID,
		Type:   api.RunEventItemResolved,
		Index:  index,
		Detail: d.String(),
	})
}

func (r *Recorder) OnItemRetry(ctx context.Context, run api.RunInfo, index int, attempt int, err error) {
	r.append(ctx, api.RunEvent{
		RunID:   run.ID,
		Type:    api.RunEventItemRetry,
		Index:   index,
		Attempt: attempt,
		Detail:  errString(err),
	})
}

func (r *Recorder) OnItemRejected(ctx context.Context, run api.RunInfo, index int, err error) {
	r.append(ctx, api.RunEvent{
		RunID:  run.ID,
		Type:   api.RunEventItemRejected,
		Index:  index,
		Detail: errString(err),
	})
}

func (r *Recorder) OnRunStopped(ctx context.Context, run api.RunInfo, dropped int) {
	r.append(ctx, api.RunEvent{
		RunID:  run.ID,
		Type:   api.RunEventStopped,
		Index:  -1,
		Detail: fmt.Sprintf("dropped=%d", dropped),
	})
}

func (r *Recorder) OnRunComplete(ctx context.Context, run api.RunInfo, summary api.RunSummary) {
	r.append(ctx, api.RunEvent{
		RunID: run.ID,
		Type:  api.RunEventCompleted,
		Index: -1,
		Detail: fmt.Sprintf("resolved=%d rejected=%d dropped=%d duration=%s",
			summary.Resolved, summary.Rejected, summary.Dropped, summary.Duration),
	})
}

// OnListenerPanic is not recorded; listener faults are not part of a
// run's history.
func (r *Recorder) OnListenerPanic(ctx context.Context, run api.RunInfo, event api.EventType, recovered any) {
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
