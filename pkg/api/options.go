package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidOptions is wrapped by every options validation error.
var ErrInvalidOptions = errors.New("invalid options")

var validate = validator.New()

// OnFail controls how failed items are retried.
type OnFail struct {
	// Attempts is the number of retries after the first failed attempt.
	// 0 means an item is tried exactly once.
	Attempts int `validate:"gte=0"`

	// Delay is waited between a failed attempt and its retry.
	Delay time.Duration `validate:"gte=0"`
}

// Options configures one run.
type Options struct {
	// Concurrency is the maximum number of items processed at once.
	Concurrency int `validate:"gte=1"`

	OnFail OnFail

	// OmitResult discards values and errors instead of aggregating them.
	// The run then resolves to a nil Result and no complete event fires.
	OmitResult bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Concurrency: 1,
		OnFail: OnFail{
			Attempts: 0,
			Delay:    0,
		},
		OmitResult: false,
	}
}

// PartialOptions holds the fields a caller explicitly set. Nil fields keep
// the base value in MergeOptions.
type PartialOptions struct {
	Concurrency *int
	Attempts    *int
	Delay       *time.Duration
	OmitResult  *bool
}

// MergeOptions overlays the set fields of p on base.
func MergeOptions(p PartialOptions, base Options) Options {
	out := base
	if p.Concurrency != nil {
		out.Concurrency = *p.Concurrency
	}
	if p.Attempts != nil {
		out.OnFail.Attempts = *p.Attempts
	}
	if p.Delay != nil {
		out.OnFail.Delay = *p.Delay
	}
	if p.OmitResult != nil {
		out.OmitResult = *p.OmitResult
	}
	return out
}

// RangeError reports an option below its allowed minimum.
type RangeError struct {
	Field string
	Min   string
	Value any
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s must be at least %s", e.Field, e.Min)
}

func (e *RangeError) Unwrap() error {
	return ErrInvalidOptions
}

// Validate checks the option invariants. Out-of-range values are rejected,
// never clamped.
func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, &RangeError{
			Field: strings.ToLower(fe.Field()),
			Min:   fe.Param(),
			Value: fe.Value(),
		})
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}
