package kdtree

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RadiusQueryBatch evaluates radius queries for the points indexed by
// queries, batchSize query points per round, so that at most one round of
// results is live at a time. Within a round the queries run on up to
// workers goroutines; the tree is read-only so this is race-free. After
// each round completes, handle is called serially with the offset of the
// round's first query and the per-query neighbor lists.
//
// Batching bounds peak memory, nothing more: it is not a synchronization
// or communication boundary.
func (t *Tree) RadiusQueryBatch(
	queries []int, r float64, batchSize, workers int,
	handle func(offset int, results [][]int) error,
) error {
	if batchSize <= 0 {
		return fmt.Errorf("kdtree: batch size must be positive, got %d", batchSize)
	}
	if workers < 1 {
		workers = 1
	}

	results := make([][]int, 0, batchSize)

	for offset := 0; offset < len(queries); offset += batchSize {
		end := offset + batchSize
		if end > len(queries) {
			end = len(queries)
		}
		round := queries[offset:end]
		results = results[:len(round)]

		var g errgroup.Group
		g.SetLimit(workers)
		chunk := (len(round) + workers - 1) / workers
		for lo := 0; lo < len(round); lo += chunk {
			hi := lo + chunk
			if hi > len(round) {
				hi = len(round)
			}
			lo, hi := lo, hi
			g.Go(func() error {
				for i := lo; i < hi; i++ {
					results[i] = t.RadiusQuery(t.pts[round[i]], r, nil)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if err := handle(offset, results); err != nil {
			return err
		}
		for i := range results {
			results[i] = nil
		}
	}

	return nil
}
