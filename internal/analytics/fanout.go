package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// unitResult is the outcome of one fanned-out unit of work.
type unitResult[T any] struct {
	key string
	val T
	err error
}

// fanOut runs fn once per key with at most limit calls in flight
// and returns the outcomes in key order. A failing unit does not
// cancel its siblings; callers decide what to drop.
func fanOut[T any](
	ctx context.Context, limit int, keys []string,
	fn func(ctx context.Context, key string) (T, error),
) []unitResult[T] {
	results := make([]unitResult[T], len(keys))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, key := range keys {
		g.Go(func() error {
			res := unitResult[T]{key: key}
			if err := ctx.Err(); err != nil {
				res.err = err
			} else {
				res.val, res.err = fn(ctx, key)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// perAgent runs fn for each agent of q concurrently and returns
// the successful results in agent order. Failed agents are
// logged and excluded.
func perAgent[T any](
	ctx context.Context, e *Engine, op string, q Query,
	fn func(ctx context.Context, agentID string) (T, error),
) ([]T, error) {
	agents, err := e.agentIDs(ctx, q)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, r := range fanOut(ctx, e.opts.AgentConcurrency, agents, fn) {
		if r.err != nil {
			e.degraded(op, q.forAgent(r.key), r.err)
			continue
		}
		out = append(out, r.val)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
