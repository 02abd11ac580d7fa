package history

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/petrijr/settle/pkg/api"
)

// MemoryStore keeps events in process memory, grouped by run.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]api.RunEvent
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string][]api.RunEvent),
	}
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[ev.RunID] = append(s.runs[ev.RunID], ev)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return slices.Clone(events), nil
}
