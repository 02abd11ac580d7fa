package settle

import (
	"context"
	"slices"
)

// MapFunc is a Map preconfigured with default options.
type MapFunc[T, R any] func(ctx context.Context, items []T, worker Worker[T, R], opts ...Option) (*Handle[T, R], error)

// NewMapFunc returns a MapFunc that applies defaults before the options of
// each call, so per-call options win.
//
//	fetch := settle.NewMapFunc[string, []byte](settle.WithConcurrency(8), settle.WithOnFail(2, time.Second))
//	h, err := fetch(ctx, urls, download, settle.WithConcurrency(2))
func NewMapFunc[T, R any](defaults ...Option) MapFunc[T, R] {
	defaults = slices.Clone(defaults)
	return func(ctx context.Context, items []T, worker Worker[T, R], opts ...Option) (*Handle[T, R], error) {
		all := make([]Option, 0, len(defaults)+len(opts))
		all = append(all, defaults...)
		all = append(all, opts...)
		return Map(ctx, items, worker, all...)
	}
}
