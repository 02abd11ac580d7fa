// Package history provides append-only sinks for run lifecycle records.
package history

import (
	"context"
	"errors"

	"github.com/petrijr/settle/pkg/api"
)

// ErrRunNotFound is returned by ListEvents when no record exists for a run.
var ErrRunNotFound = errors.New("run not found")

// Store is an append-only history store for run events.
type Store interface {
	AppendEvent(ctx context.Context, ev api.RunEvent) error
	ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error)
}

// NoopStore discards all events.
type NoopStore struct{}

func (NoopStore) AppendEvent(ctx context.Context, ev api.RunEvent) error { return nil }
func (NoopStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	return nil, ErrRunNotFound
}
