// Package schedule dispatches the timeline reconciler across identity
// groups (component C6). Groups are independent, so this is embarrassingly
// data-parallel; the only decision is whether the batch is big enough to
// pay for worker-pool setup.
package schedule

import (
	"context"
	"runtime"

	"github.com/alitto/pond/v2"

	"chronoset/internal/group"
	"chronoset/internal/reconcile"
)

// Threshold constants from §4.6's suggested starting points, tuned for the
// host rather than derived from any caller input.
const (
	groupThreshold = 25
	rowThreshold   = 5000
)

// Run applies fn to every group, in input order, sequentially below the
// threshold and over a bounded worker pool above it. The first error from
// any group aborts outstanding work and is returned; no partial plan slice
// is exposed on failure.
func Run(ctx context.Context, groups []*group.Entry, totalRows int, fn func(*group.Entry) (reconcile.Plan, error)) ([]reconcile.Plan, error) {
	if len(groups) <= groupThreshold && totalRows <= rowThreshold {
		return runSequential(groups, fn)
	}
	return runParallel(ctx, groups, fn)
}

func runSequential(groups []*group.Entry, fn func(*group.Entry) (reconcile.Plan, error)) ([]reconcile.Plan, error) {
	plans := make([]reconcile.Plan, len(groups))
	for i, g := range groups {
		plan, err := fn(g)
		if err != nil {
			return nil, err
		}
		plans[i] = plan
	}
	return plans, nil
}

func runParallel(ctx context.Context, groups []*group.Entry, fn func(*group.Entry) (reconcile.Plan, error)) ([]reconcile.Plan, error) {
	pool := pond.NewResultPool[reconcile.Plan](runtime.GOMAXPROCS(0))
	defer pool.StopAndWait()

	tasks := pool.NewGroupContext(ctx)
	for _, g := range groups {
		g := g
		tasks.SubmitErr(func() (reconcile.Plan, error) {
			return fn(g)
		})
	}
	return tasks.Wait()
}
