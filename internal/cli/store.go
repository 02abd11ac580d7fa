package cli

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/settle/internal/config"
	"github.com/petrijr/settle/internal/history"
)

// openHistory opens the sink selected by sink. It returns a nil store when
// no history is configured. closeFn is never nil.
func openHistory(sink string) (store history.Store, closeFn func() error, err error) {
	noop := func() error { return nil }

	kind, target, err := config.ParseHistory(sink)
	if err != nil {
		return nil, noop, err
	}

	switch kind {
	case config.HistoryNone:
		return nil, noop, nil
	case config.HistoryMemory:
		return history.NewMemoryStore(), noop, nil
	case config.HistorySQLite:
		s, err := history.OpenSQLite(target)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite history %s: %w", target, err)
		}
		return s, s.Close, nil
	case config.HistoryRedis:
		opts, err := redis.ParseURL(target)
		if err != nil {
			return nil, noop, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		return history.NewRedisStore(client, ""), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported history kind %q", kind)
	}
}
