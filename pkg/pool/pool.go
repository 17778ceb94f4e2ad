package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the fan-out used when a caller passes a non-positive worker count.
const DefaultWorkers = 10

// Result pairs the output of one task with its error.
type Result[R any] struct {
	Value R
	Err   error
}

// Map runs fn over inputs with at most workers concurrent calls.
// Results keep the order of inputs. A failing call does not cancel the others;
// its error is stored in the matching Result.
func Map[T, R any](ctx context.Context, workers int, inputs []T, fn func(context.Context, T) (R, error)) []Result[R] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]Result[R], len(inputs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			v, err := fn(ctx, in)
			results[i] = Result[R]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
