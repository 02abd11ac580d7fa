package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/settle/pkg/api"
)

// RedisStore is a Store backed by Redis. Each run is one list:
//
//	<prefix>run:<id>   => RPUSH'd JSON records, oldest first
//	<prefix>idx:runs   => SET of recorded run IDs
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

type redisEvent struct {
	RunID   string `json:"run_id"`
	At      int64  `json:"at"`
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Attempt int    `json:"attempt"`
	Detail  string `json:"detail,omitempty"`
}

// NewRedisStore creates a RedisStore. prefix defaults to "settle:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "settle:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keyRun(id string) string {
	return s.prefix + "run:" + id
}

func (s *RedisStore) keyRuns() string {
	return s.prefix + "idx:runs"
}

func (s *RedisStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	data, err := json.Marshal(redisEvent{
		RunID:   ev.RunID,
		At:      at.UnixNano(),
		Type:    string(ev.Type),
		Index:   ev.Index,
		Attempt: ev.Attempt,
		Detail:  ev.Detail,
	})
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.keyRun(ev.RunID), data)
	pipe.SAdd(ctx, s.keyRuns(), ev.RunID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	raw, err := s.client.LRange(ctx, s.keyRun(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrRunNotFound
	}

	out := make([]api.RunEvent, 0, len(raw))
	for _, r := range raw {
		var rec redisEvent
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, err
		}
		out = append(out, api.RunEvent{
			RunID:   rec.RunID,
			At:      time.Unix(0, rec.At),
			Type:    api.RunEventType(rec.Type),
			Index:   rec.Index,
			Attempt: rec.Attempt,
			Detail:  rec.Detail,
		})
	}
	return out, nil
}

// Runs lists the IDs of every recorded run.
func (s *RedisStore) Runs(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.keyRuns()).Result()
}
