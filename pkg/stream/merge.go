package stream

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

// Merge combines seqs into a single sequence. Elements are interleaved in
// the order they become ready; within one source the original order is
// kept. Each source is drained by its own goroutine that hands elements
// over through an unbuffered channel, so a source never runs more than one
// element ahead of the consumer.
//
// The first error from any source is yielded as the last element of the
// merged sequence, after the remaining sources have been cancelled through
// the context passed to them. Elements handed over before the failure are
// still yielded ahead of it. When the consumer stops early every source
// is cancelled and Merge waits for all goroutines before returning.
//
// Sources that need to observe cancellation should be built from the
// context handed to build; see MergeFunc.
func Merge[T any](ctx context.Context, seqs ...iter.Seq2[T, error]) iter.Seq2[T, error] {
	builders := make([]func(context.Context) iter.Seq2[T, error], len(seqs))
	for i, seq := range seqs {
		builders[i] = func(context.Context) iter.Seq2[T, error] { return seq }
	}
	return MergeFunc(ctx, builders...)
}

// MergeFunc is Merge for sources that are constructed against the merge's
// internal context, which is cancelled on the first failure or when the
// consumer stops.
func MergeFunc[T any](ctx context.Context, builders ...func(context.Context) iter.Seq2[T, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		out := make(chan T)

		for _, build := range builders {
			seq := build(gctx)
			g.Go(func() error {
				for v, err := range seq {
					if err != nil {
						return err
					}
					select {
					case out <- v:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			})
		}

		done := make(chan error, 1)
		go func() {
			done <- g.Wait()
			close(out)
		}()

		// Values already handed over are delivered even after a failure.
		for v := range out {
			if !yield(v, nil) {
				cancel()
				// Unblock producers until the group has finished.
				for range out {
				}
				<-done
				return
			}
		}

		if err := <-done; err != nil {
			var zero T
			yield(zero, err)
		}
	}
}
