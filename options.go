package settle

import (
	"log/slog"
	"time"

	"github.com/petrijr/settle/internal/history"
	"github.com/petrijr/settle/pkg/api"
)

// Option configures a call to Map.
type Option func(*config)

type registration struct {
	event   EventType
	handler any
}

type config struct {
	partial   api.PartialOptions
	observers []api.Observer
	logger    *slog.Logger
	history   history.Store
	runID     string
	handlers  []registration
}

func newConfig(opts []Option) *config {
	cfg := &config{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithConcurrency sets the maximum number of items processed at once.
// Values below 1 make Map fail with a RangeError.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.partial.Concurrency = &n
	}
}

// WithOnFail sets how many times a failed item is retried and how long to
// wait before each retry.
func WithOnFail(attempts int, delay time.Duration) Option {
	return func(c *config) {
		c.partial.Attempts = &attempts
		c.partial.Delay = &delay
	}
}

// WithRetry applies a policy built with Retry.
func WithRetry(r RetryBuilder) Option {
	p := r.Policy()
	return WithOnFail(p.Attempts, p.Delay)
}

// WithOmitResult disables result collection. Wait then yields a nil
// Result and no complete event is emitted.
func WithOmitResult() Option {
	return func(c *config) {
		omit := true
		c.partial.OmitResult = &omit
	}
}

// WithOptions overlays the fields set in p.
func WithOptions(p PartialOptions) Option {
	return func(c *config) {
		if p.Concurrency != nil {
			c.partial.Concurrency = p.Concurrency
		}
		if p.Attempts != nil {
			c.partial.Attempts = p.Attempts
		}
		if p.Delay != nil {
			c.partial.Delay = p.Delay
		}
		if p.OmitResult != nil {
			c.partial.OmitResult = p.OmitResult
		}
	}
}

// WithObserver attaches an Observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithLogger logs the run's lifecycle to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithHistory records the run's lifecycle to store.
func WithHistory(store HistoryStore) Option {
	return func(c *config) {
		c.history = store
	}
}

// WithRunID names the run. By default a random UUID is used.
func WithRunID(id string) Option {
	return func(c *config) {
		c.runID = id
	}
}

// OnEvent registers handler for event before the run starts, so that no
// event can be missed. The handler's type parameters must match the ones
// Map is called with.
func OnEvent[T, R any](event EventType, handler Handler[T, R]) Option {
	return func(c *config) {
		c.handlers = append(c.handlers, registration{event: event, handler: handler})
	}
}

func (c *config) options() Options {
	return api.MergeOptions(c.partial, api.DefaultOptions())
}

func (c *config) observer() Observer {
	obs := make([]api.Observer, 0, len(c.observers)+2)
	obs = append(obs, c.observers...)
	if c.logger != nil {
		obs = append(obs, api.NewLoggingObserver(c.logger))
	}
	if c.history != nil {
		obs = append(obs, history.NewRecorder(c.history, c.logger))
	}
	return api.NewCompositeObserver(obs...)
}
