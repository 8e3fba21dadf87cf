// Package runner provides a uniform abstraction for long-lived tasks.
package runner

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Runnable is a task with one blocking entry point returning a terminal
// result.
type Runnable interface {
	Run(ctx context.Context) error
}

// Run launches every runnable on its own goroutine and waits for all of
// them to finish. The first failure cancels the shared context handed to
// the others and is the error returned.
func Run(ctx context.Context, runnables ...Runnable) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range runnables {
		g.Go(func() error {
			return r.Run(ctx)
		})
	}
	return g.Wait()
}
