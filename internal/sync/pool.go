package sync

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunPool calls fn for every item with at most workers calls in flight and records each
// outcome in report as it completes. Items not started before ctx is cancelled are
// recorded as failed.
func RunPool[T any](ctx context.Context, workers int, items []T, report *Report, name func(T) string, fn func(ctx context.Context, item T) Outcome) {
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, item := range items {
		if err := gctx.Err(); err != nil {
			report.Record(failed(name(item), err))
			continue
		}
		g.Go(func() error {
			out := fn(gctx, item)
			if out.Item == "" {
				out.Item = name(item)
			}
			report.Record(out)
			return nil
		})
	}
	// workers report through report and never fail the group
	g.Wait()
}
