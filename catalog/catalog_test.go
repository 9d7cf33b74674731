package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/megahalos/mega/fof"
	"github.com/megahalos/mega/geom"
	"github.com/megahalos/mega/snapio"
)

// testSnapshot builds a snapshot whose particle i sits at a distinct
// position so centre-of-mass results are easy to predict.
func testSnapshot(t *testing.T, npart int) *snapio.Snapshot {
	t.Helper()
	id := make([]int64, npart)
	pos := make([]geom.Vec, npart)
	vel := make([]geom.Vec, npart)
	for i := 0; i < npart; i++ {
		id[i] = int64(i)
		pos[i] = geom.Vec{float64(i), 50, 50}
		vel[i] = geom.Vec{float64(i) * 10, 0, 0}
	}
	s, err := snapio.Prepare("snap_000", id, pos, vel, 100, 0)
	require.NoError(t, err)
	return s
}

func ids(lo, hi int64) []int64 {
	out := make([]int64, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

func TestSubThresholdWithoutProgenitorDropped(t *testing.T) {
	s := testSnapshot(t, 40)
	groups := []fof.Provisional{
		{Rank: 0, Members: ids(0, 8)},
		{Rank: 0, Members: ids(10, 25)},
	}

	cat, err := Build(zap.NewNop(), s, 1, groups, nil, 10)
	require.NoError(t, err)

	require.Len(t, cat.Halos, 1)
	assert.Equal(t, 15, cat.Halos[0].Npart)
}

func TestSubThresholdWithProgenitorKept(t *testing.T) {
	s := testSnapshot(t, 40)
	prior := &Catalog{
		Snap: 0, Name: "prior",
		Halos: []Halo{{ID: 0, Snap: 0, Members: ids(0, 12), Npart: 12}},
	}
	groups := []fof.Provisional{
		{Rank: 0, Members: ids(0, 8)},
	}

	cat, err := Build(zap.NewNop(), s, 1, groups, prior, 10)
	require.NoError(t, err)

	require.Len(t, cat.Halos, 1)
	assert.Equal(t, 8, cat.Halos[0].Npart)
}

func TestNoExemptionAtOrAboveBand(t *testing.T) {
	s := testSnapshot(t, 40)
	prior := &Catalog{
		Snap: 0, Name: "prior",
		Halos: []Halo{{ID: 0, Snap: 0, Members: ids(0, 12), Npart: 12}},
	}
	groups := []fof.Provisional{
		{Rank: 0, Members: ids(0, 8)},
	}

	cat, err := Build(zap.NewNop(), s, 1, groups, prior, 20)
	require.NoError(t, err)
	assert.Empty(t, cat.Halos)
}

func TestDoubleMembershipRejected(t *testing.T) {
	s := testSnapshot(t, 40)
	groups := []fof.Provisional{
		{Rank: 0, Members: ids(0, 12)},
		{Rank: 1, Members: ids(11, 25)},
	}

	_, err := Build(zap.NewNop(), s, 1, groups, nil, 10)
	assert.Error(t, err)
}

func TestDeterministicIDOrder(t *testing.T) {
	s := testSnapshot(t, 40)
	// Groups arrive out of order; IDs must follow the smallest member.
	groups := []fof.Provisional{
		{Rank: 1, Members: ids(20, 35)},
		{Rank: 0, Members: ids(0, 12)},
	}

	cat, err := Build(zap.NewNop(), s, 1, groups, nil, 10)
	require.NoError(t, err)

	require.Len(t, cat.Halos, 2)
	assert.Equal(t, int64(0), cat.Halos[0].ID)
	assert.Equal(t, int64(0), cat.Halos[0].Members[0])
	assert.Equal(t, int64(1), cat.Halos[1].ID)
	assert.Equal(t, int64(20), cat.Halos[1].Members[0])
	assert.Equal(t, 0, cat.Halos[0].Rank)
	assert.Equal(t, 1, cat.Halos[1].Rank)
}

func TestCentreOfMass(t *testing.T) {
	s := testSnapshot(t, 40)
	groups := []fof.Provisional{
		{Rank: 0, Members: ids(0, 11)},
	}

	cat, err := Build(zap.NewNop(), s, 1, groups, nil, 10)
	require.NoError(t, err)

	require.Len(t, cat.Halos, 1)
	h := cat.Halos[0]
	assert.InDelta(t, 5, h.Pos[0], 1e-12)
	assert.InDelta(t, 50, h.Pos[1], 1e-12)
	assert.InDelta(t, 50, h.Vel[0], 1e-12)
	assert.InDelta(t, 0, h.Vel[1], 1e-12)
}

func TestCentreOfMassPeriodic(t *testing.T) {
	id := []int64{0, 1}
	pos := []geom.Vec{{99.5, 50, 50}, {0.5, 50, 50}}
	vel := []geom.Vec{{0, 0, 0}, {0, 0, 0}}
	s, err := snapio.Prepare("snap_001", id, pos, vel, 100, 0)
	require.NoError(t, err)

	cat, err := Build(zap.NewNop(), s, 1,
		[]fof.Provisional{{Rank: 0, Members: []int64{0, 1}}}, nil, 2)
	require.NoError(t, err)

	require.Len(t, cat.Halos, 1)
	// The unwrapped mean is at the seam and wraps to zero.
	assert.InDelta(t, 0, cat.Halos[0].Pos[0], 1e-9)
	assert.InDelta(t, 50, cat.Halos[0].Pos[1], 1e-12)
}

func TestMemberIndex(t *testing.T) {
	cat := &Catalog{
		Snap: 0, Name: "snap_000",
		Halos: []Halo{
			{ID: 0, Members: ids(0, 5), Npart: 5},
			{ID: 1, Members: ids(10, 14), Npart: 4},
		},
	}
	ix := NewMemberIndex(cat)

	assert.Equal(t, 9, ix.Len())
	h, ok := ix.HaloOf(3)
	assert.True(t, ok)
	assert.Equal(t, int64(0), h)
	h, ok = ix.HaloOf(12)
	assert.True(t, ok)
	assert.Equal(t, int64(1), h)
	_, ok = ix.HaloOf(7)
	assert.False(t, ok)
}

func TestCatalogRoundTrip(t *testing.T) {
	s := testSnapshot(t, 40)
	cat, err := Build(zap.NewNop(), s, 1,
		[]fof.Provisional{{Rank: 0, Members: ids(0, 12)}}, nil, 10)
	require.NoError(t, err)

	base := t.TempDir() + "/halos"
	require.NoError(t, cat.Write(base))

	got, err := Read(base, "snap_000")
	require.NoError(t, err)
	assert.Equal(t, cat, got)
}
