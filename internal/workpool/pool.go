// Package workpool splits an index range into contiguous chunks and runs them
// on a bounded number of goroutines.
package workpool

import (
	"golang.org/x/sync/errgroup"
)

// Range calls fn(lo, hi) over disjoint chunks covering [0, n). With workers <= 1
// or a small n it runs inline on the calling goroutine. The first error wins.
func Range(workers, n int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 1 || n < 2*workers {
		return fn(0, n)
	}

	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			return fn(lo, hi)
		})
	}
	return g.Wait()
}
