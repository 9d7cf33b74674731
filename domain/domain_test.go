package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megahalos/mega/geom"
	"github.com/megahalos/mega/snapio"
)

func randomSnapshot(t *testing.T, n int, boxsize float64, seed int64) *snapio.Snapshot {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	id := make([]int64, n)
	pos := make([]geom.Vec, n)
	vel := make([]geom.Vec, n)
	for i := 0; i < n; i++ {
		id[i] = int64(i)
		for d := 0; d < 3; d++ {
			pos[i][d] = rng.Float64() * boxsize
			vel[i][d] = rng.NormFloat64() * 100
		}
	}
	s, err := snapio.Prepare("test", id, pos, vel, boxsize, 0)
	require.NoError(t, err)
	return s
}

func TestEveryParticleOwnedOnce(t *testing.T) {
	s := randomSnapshot(t, 400, 100, 3)

	for _, nranks := range []int{1, 2, 4} {
		domains, err := Decompose(s, nranks, 2.0)
		require.NoError(t, err)
		require.Len(t, domains, nranks)

		seen := map[int64]int{}
		for _, d := range domains {
			for i := 0; i < d.NOwned; i++ {
				seen[d.ID[i]]++
				assert.Equal(t, d.Rank, d.Owner[i])
				assert.GreaterOrEqual(t, d.Pos[i][0], d.Lo)
				assert.Less(t, d.Pos[i][0], d.Hi)
			}
		}
		require.Len(t, seen, s.Npart, "nranks=%d", nranks)
		for id, count := range seen {
			assert.Equal(t, 1, count, "particle %d owned %d times", id, count)
		}
	}
}

func TestGhostsWithinMargin(t *testing.T) {
	s := randomSnapshot(t, 400, 100, 11)
	const margin = 3.0

	domains, err := Decompose(s, 4, margin)
	require.NoError(t, err)

	for _, d := range domains {
		for i := d.NOwned; i < d.Len(); i++ {
			require.True(t, d.IsGhost(i))
			x := d.Pos[i][0]
			assert.GreaterOrEqual(t, x, d.Lo-margin)
			assert.Less(t, x, d.Hi+margin)
			// A ghost is never inside its holder's owned slab unless it is
			// a shifted periodic image in y or z.
			if d.Owner[i] == d.Rank {
				shifted := d.Pos[i][1] < 0 || d.Pos[i][1] >= s.Boxsize ||
					d.Pos[i][2] < 0 || d.Pos[i][2] >= s.Boxsize ||
					x < d.Lo || x >= d.Hi
				assert.True(t, shifted, "identity copy duplicated as ghost")
			}
		}
	}
}

func TestPeriodicImageGhosts(t *testing.T) {
	// Two particles across the periodic x boundary of a single-rank box.
	id := []int64{1, 2}
	pos := []geom.Vec{{0.5, 50, 50}, {99.5, 50, 50}}
	vel := []geom.Vec{{0, 0, 0}, {0, 0, 0}}
	s, err := snapio.Prepare("pair", id, pos, vel, 100, 0)
	require.NoError(t, err)

	domains, err := Decompose(s, 1, 2.0)
	require.NoError(t, err)
	d := domains[0]

	assert.Equal(t, 2, d.NOwned)
	// Particle 2's image at x = -0.5 and particle 1's at x = 100.5 must
	// both appear as ghosts.
	var foundLow, foundHigh bool
	for i := d.NOwned; i < d.Len(); i++ {
		if d.ID[i] == 2 && d.Pos[i][0] < 0 {
			foundLow = true
		}
		if d.ID[i] == 1 && d.Pos[i][0] > 100 {
			foundHigh = true
		}
	}
	assert.True(t, foundLow, "missing low-side periodic ghost")
	assert.True(t, foundHigh, "missing high-side periodic ghost")
}

func TestDecomposeRejectsBadArgs(t *testing.T) {
	s := randomSnapshot(t, 10, 100, 1)

	_, err := Decompose(s, 0, 1)
	assert.Error(t, err)

	_, err = Decompose(s, 1, 0)
	assert.Error(t, err)

	// Margin must stay below half a slab.
	_, err = Decompose(s, 4, 13)
	assert.Error(t, err)
}
