package kdtree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megahalos/mega/geom"
)

func randomPoints(n int, width float64, seed int64) []geom.Vec {
	rng := rand.New(rand.NewSource(seed))
	pts := make([]geom.Vec, n)
	for i := range pts {
		for d := 0; d < 3; d++ {
			pts[i][d] = rng.Float64() * width
		}
	}
	return pts
}

func bruteRadius(pts []geom.Vec, p geom.Vec, r float64) []int {
	var out []int
	for i, q := range pts {
		if q.Dist(p) <= r {
			out = append(out, i)
		}
	}
	return out
}

func TestRadiusQueryMatchesBruteForce(t *testing.T) {
	pts := randomPoints(500, 10, 42)
	tree := New(pts)

	for _, r := range []float64{0.1, 0.5, 2.0} {
		for qi := 0; qi < 50; qi++ {
			got := tree.RadiusQuery(pts[qi], r, nil)
			sort.Ints(got)
			want := bruteRadius(pts, pts[qi], r)
			require.Equal(t, want, got, "radius %g query %d", r, qi)
		}
	}
}

func TestRadiusQueryIncludesSelf(t *testing.T) {
	pts := randomPoints(100, 10, 7)
	tree := New(pts)
	for i := range pts {
		got := tree.RadiusQuery(pts[i], 1e-9, nil)
		assert.Contains(t, got, i)
	}
}

func TestEmptyTree(t *testing.T) {
	tree := New(nil)
	assert.Equal(t, 0, tree.Len())
	assert.Empty(t, tree.RadiusQuery(geom.Vec{0, 0, 0}, 1, nil))
}

func TestRadiusQueryBatch(t *testing.T) {
	pts := randomPoints(300, 10, 13)
	tree := New(pts)

	queries := make([]int, len(pts))
	for i := range queries {
		queries[i] = i
	}

	const r = 0.8
	got := make([][]int, len(pts))
	err := tree.RadiusQueryBatch(queries, r, 64, 4,
		func(offset int, results [][]int) error {
			// Each round holds at most batchSize results.
			require.LessOrEqual(t, len(results), 64)
			for i, res := range results {
				cp := append([]int(nil), res...)
				sort.Ints(cp)
				got[offset+i] = cp
			}
			return nil
		})
	require.NoError(t, err)

	for i := range pts {
		want := bruteRadius(pts, pts[i], r)
		assert.Equal(t, want, got[i], "query %d", i)
	}
}

func TestRadiusQueryBatchRejectsBadBatchSize(t *testing.T) {
	tree := New(randomPoints(10, 1, 1))
	err := tree.RadiusQueryBatch([]int{0}, 1, 0, 1,
		func(int, [][]int) error { return nil })
	assert.Error(t, err)
}
