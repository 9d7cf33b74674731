package fof

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megahalos/mega/domain"
	"github.com/megahalos/mega/geom"
	"github.com/megahalos/mega/kdtree"
	"github.com/megahalos/mega/snapio"
)

// cluster appends n particles gaussian-distributed around center with the
// given spatial scale.
func cluster(
	rng *rand.Rand, id []int64, pos, vel []geom.Vec,
	n int, center geom.Vec, scale float64, velCenter geom.Vec,
) ([]int64, []geom.Vec, []geom.Vec) {
	base := int64(len(id))
	for i := 0; i < n; i++ {
		id = append(id, base+int64(i))
		var p, v geom.Vec
		for d := 0; d < 3; d++ {
			p[d] = center[d] + rng.NormFloat64()*scale
			v[d] = velCenter[d] + rng.NormFloat64()*10
		}
		pos = append(pos, p)
		vel = append(vel, v)
	}
	return id, pos, vel
}

func findAll(
	t *testing.T, s *snapio.Snapshot, nranks int, linkl float64,
) []Provisional {
	t.Helper()

	domains, err := domain.Decompose(s, nranks, linkl)
	require.NoError(t, err)

	results := make([]*Result, nranks)
	for r, d := range domains {
		cells := geom.BinParticles(d.Pos, s.Boxsize, d.Len()/8+1)
		tree := kdtree.New(d.Pos)
		results[r], err = Find(d, tree, cells, linkl, 100, 2)
		require.NoError(t, err)
	}

	provs, err := Reconcile(domains, results)
	require.NoError(t, err)
	return provs
}

func TestTwoIsolatedClusters(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	var id []int64
	var pos, vel []geom.Vec
	id, pos, vel = cluster(rng, id, pos, vel, 40, geom.Vec{20, 50, 50}, 0.3, geom.Vec{})
	id, pos, vel = cluster(rng, id, pos, vel, 40, geom.Vec{80, 50, 50}, 0.3, geom.Vec{})

	s, err := snapio.Prepare("two", id, pos, vel, 100, 0)
	require.NoError(t, err)

	// Linking length far below the 60-unit cluster separation.
	provs := findAll(t, s, 1, 2.0)
	require.Len(t, provs, 2)
	assert.Len(t, provs[0].Members, 40)
	assert.Len(t, provs[1].Members, 40)
}

func TestBoundaryHaloReconciledAcrossRanks(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	var id []int64
	var pos, vel []geom.Vec
	// One halo centred exactly on the slab boundary between ranks 0 and 1.
	id, pos, vel = cluster(rng, id, pos, vel, 60, geom.Vec{50, 50, 50}, 0.5, geom.Vec{})
	// A second halo safely inside rank 0.
	id, pos, vel = cluster(rng, id, pos, vel, 30, geom.Vec{20, 20, 20}, 0.5, geom.Vec{})

	s, err := snapio.Prepare("boundary", id, pos, vel, 100, 0)
	require.NoError(t, err)

	want := findAll(t, s, 1, 3.0)
	got := findAll(t, s, 2, 3.0)
	require.Len(t, want, 2)
	require.Len(t, got, 2)

	// The boundary halo must come out as a single component with the union
	// of both ranks' contributions, identical to the single-rank result.
	for i := range want {
		assert.Equal(t, want[i].Members, got[i].Members)
	}
}

func TestPeriodicBoundaryHalo(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	var id []int64
	var pos, vel []geom.Vec
	// Halo wrapped across the periodic x boundary.
	for i := 0; i < 30; i++ {
		id = append(id, int64(i))
		x := rng.NormFloat64() * 0.4
		if x < 0 {
			x += 100
		}
		pos = append(pos, geom.Vec{x, 50, 50})
		vel = append(vel, geom.Vec{})
	}

	s, err := snapio.Prepare("wrap", id, pos, vel, 100, 0)
	require.NoError(t, err)

	provs := findAll(t, s, 1, 3.0)
	require.Len(t, provs, 1)
	assert.Len(t, provs[0].Members, 30)
}

func TestOwnerOfRecord(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	var id []int64
	var pos, vel []geom.Vec
	id, pos, vel = cluster(rng, id, pos, vel, 20, geom.Vec{80, 50, 50}, 0.5, geom.Vec{})

	s, err := snapio.Prepare("owner", id, pos, vel, 100, 0)
	require.NoError(t, err)

	provs := findAll(t, s, 4, 2.0)
	require.Len(t, provs, 1)
	// The halo sits in rank 3's slab [75, 100); the owner of record is the
	// rank owning its minimum particle ID.
	assert.Equal(t, 3, provs[0].Rank)
}

func TestSingleParticlesUnassigned(t *testing.T) {
	id := []int64{1, 2, 3}
	pos := []geom.Vec{{10, 10, 10}, {50, 50, 50}, {90, 90, 90}}
	vel := make([]geom.Vec, 3)

	s, err := snapio.Prepare("singles", id, pos, vel, 100, 0)
	require.NoError(t, err)

	provs := findAll(t, s, 1, 1.0)
	assert.Empty(t, provs)
}
