// Package stream turns paginated APIs into lazy, backpressure-aware record
// sequences and merges several of them into one.
//
// # Overview
//
// A source exposes an Accessor that fetches the first Page; every Page
// knows how to fetch its successor. Instances walks that chain on demand:
//
//	for instance, err := range stream.Instances(ctx, accessor, opts) {
//	    if err != nil {
//	        return err
//	    }
//	    handle(instance)
//	}
//
// Nothing is fetched until the loop asks for an element, and a follow-up
// page is fetched only once every instance of the current one has been
// consumed. A slow consumer therefore throttles the upstream API directly.
//
// Merge fans several such sequences into one, interleaving by readiness
// and stopping at the first failure.
package stream

import (
	"context"
	"iter"
	"time"

	"github.com/ajitpratap0/tap-twilio/pkg/errors"
)

// PageOptions are the options passed to every page fetch of one walk.
// The zero value is the empty option set.
type PageOptions struct {
	// PageSize is a hint for the number of instances per page; zero leaves
	// the choice to the API.
	PageSize int
}

// PageOptionsFromConfig builds the options for one walk from a configured
// page size. Non-positive sizes are treated as absent.
func PageOptionsFromConfig(pageSize int) PageOptions {
	var opts PageOptions
	if pageSize > 0 {
		opts.PageSize = pageSize
	}
	return opts
}

// Page is one batch of results plus the capability to fetch the next one.
type Page[T any] interface {
	// Instances returns the page's records in API order.
	Instances() []T
	// NextPage fetches the following page. A nil page with a nil error
	// means there are no further pages.
	NextPage(ctx context.Context, opts PageOptions) (Page[T], error)
}

// Accessor is one queryable collection on the upstream API.
type Accessor[T any] interface {
	// Page fetches the first page. A nil page with a nil error means the
	// collection is empty.
	Page(ctx context.Context, opts PageOptions) (Page[T], error)
}

// AccessorFunc adapts a function to the Accessor interface.
type AccessorFunc[T any] func(ctx context.Context, opts PageOptions) (Page[T], error)

// Page calls f.
func (f AccessorFunc[T]) Page(ctx context.Context, opts PageOptions) (Page[T], error) {
	return f(ctx, opts)
}

// Observer is notified about every page fetch of a walk together with
// the time the fetch took.
type Observer interface {
	PageFetched(instances int, elapsed time.Duration)
	PageFailed(err error, elapsed time.Duration)
}

type walkConfig struct {
	observer Observer
}

// WalkOption configures Instances.
type WalkOption func(*walkConfig)

// WithObserver registers o for the walk.
func WithObserver(o Observer) WalkOption {
	return func(c *walkConfig) {
		c.observer = o
	}
}

// Instances returns the instances of every page reachable from accessor,
// in page order. The sequence is finite and single-use in the sense that
// each range over it performs fresh fetches starting at the first page.
//
// A fetch failure is yielded once as a non-nil error, after which the
// sequence ends; instances of the failed page or any later page are never
// produced. Failures are reported as ErrorTypeUpstreamFetch errors that
// unwrap to the original cause.
func Instances[T any](ctx context.Context, accessor Accessor[T], opts PageOptions, options ...WalkOption) iter.Seq2[T, error] {
	cfg := walkConfig{}
	for _, opt := range options {
		opt(&cfg)
	}

	return func(yield func(T, error) bool) {
		var current Page[T]

		for {
			var (
				next Page[T]
				err  error
			)
			start := time.Now()
			if current == nil {
				next, err = accessor.Page(ctx, opts)
			} else {
				next, err = current.NextPage(ctx, opts)
			}
			elapsed := time.Since(start)

			if err != nil {
				if cfg.observer != nil {
					cfg.observer.PageFailed(err, elapsed)
				}
				var zero T
				yield(zero, errors.Wrap(err, errors.ErrorTypeUpstreamFetch, "failed to fetch page"))
				return
			}

			if next == nil {
				return
			}
			current = next

			instances := current.Instances()
			if cfg.observer != nil {
				cfg.observer.PageFetched(len(instances), elapsed)
			}
			for _, instance := range instances {
				if !yield(instance, nil) {
					return
				}
			}
		}
	}
}

// Map applies fn to every element of seq. An error from fn is yielded
// once and ends the sequence, just like an error from seq itself.
func Map[T, U any](seq iter.Seq2[T, error], fn func(T) (U, error)) iter.Seq2[U, error] {
	return func(yield func(U, error) bool) {
		for v, err := range seq {
			if err != nil {
				var zero U
				yield(zero, err)
				return
			}

			u, err := fn(v)
			if err != nil {
				var zero U
				yield(zero, err)
				return
			}

			if !yield(u, nil) {
				return
			}
		}
	}
}

// Collect drains seq into a slice. It returns the elements produced before
// the first error together with that error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
