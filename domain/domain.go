// Package domain partitions a snapshot's particles across ranks. Each rank
// owns a contiguous slab of the box along x plus read-only ghost copies of
// every particle (or periodic image of a particle) within a margin of its
// slab. Ghosts let a rank find halos that straddle its boundaries without
// talking to its neighbors during the linking loop; the finder reconciles
// boundary-spanning components afterwards by ghost identity.
package domain

import (
	"fmt"

	"github.com/megahalos/mega/geom"
	"github.com/megahalos/mega/snapio"
)

// Domain is one rank's view of a snapshot: its owned particles followed by
// its ghost copies. Ghost positions may lie outside [0, boxsize) when they
// are periodic images; this keeps the local point set spatially contiguous
// for the index.
type Domain struct {
	Rank   int
	NRanks int

	Boxsize float64
	Lo, Hi  float64 // owned slab [Lo, Hi) along x

	ID    []int64
	Pos   []geom.Vec
	Vel   []geom.Vec
	Owner []int // owning rank per entry; ghosts may repeat the local rank

	// Entries [0, NOwned) are owned; the rest are ghosts.
	NOwned int
}

// IsGhost reports whether local index i is a ghost copy.
func (d *Domain) IsGhost(i int) bool { return i >= d.NOwned }

// Len returns the number of local entries, owned plus ghost.
func (d *Domain) Len() int { return len(d.ID) }

// OwnerOf returns the rank owning a particle at position p, given the box
// geometry. Every particle has exactly one owner.
func OwnerOf(p geom.Vec, boxsize float64, nranks int) int {
	slab := boxsize / float64(nranks)
	r := int(p[0] / slab)
	if r < 0 {
		r = 0
	}
	if r >= nranks {
		r = nranks - 1
	}
	return r
}

// Decompose splits the snapshot into nranks Domains with the given ghost
// margin. The margin is derived from the largest linking length the finder
// will use; it must be smaller than half a slab so ghosts only come from
// adjacent regions.
func Decompose(s *snapio.Snapshot, nranks int, margin float64) ([]*Domain, error) {
	if nranks < 1 {
		return nil, fmt.Errorf("domain: need at least one rank, got %d", nranks)
	}
	if margin <= 0 {
		return nil, fmt.Errorf("domain: margin must be positive, got %g", margin)
	}
	slab := s.Boxsize / float64(nranks)
	if margin >= slab/2 {
		return nil, fmt.Errorf(
			"domain: ghost margin %g too large for slab width %g "+
				"(%d ranks over box %g)", margin, slab, nranks, s.Boxsize,
		)
	}

	domains := make([]*Domain, nranks)
	for r := 0; r < nranks; r++ {
		domains[r] = &Domain{
			Rank:    r,
			NRanks:  nranks,
			Boxsize: s.Boxsize,
			Lo:      float64(r) * slab,
			Hi:      float64(r+1) * slab,
		}
	}

	// Owned particles keep snapshot order within a rank.
	owners := make([]int, s.Npart)
	for i := 0; i < s.Npart; i++ {
		r := OwnerOf(s.Pos[i], s.Boxsize, nranks)
		owners[i] = r
		d := domains[r]
		d.ID = append(d.ID, s.ID[i])
		d.Pos = append(d.Pos, s.Pos[i])
		d.Vel = append(d.Vel, s.Vel[i])
		d.Owner = append(d.Owner, r)
	}
	for _, d := range domains {
		d.NOwned = len(d.ID)
	}

	// Ghosts: every periodic image of every particle that falls within
	// margin of a rank's slab, excluding the owned identity image. Images
	// shifted across the box boundary make single-rank runs periodic too.
	for i := 0; i < s.Npart; i++ {
		for sx := -1; sx <= 1; sx++ {
			for sy := -1; sy <= 1; sy++ {
				for sz := -1; sz <= 1; sz++ {
					img := s.Pos[i]
					img[0] += float64(sx) * s.Boxsize
					img[1] += float64(sy) * s.Boxsize
					img[2] += float64(sz) * s.Boxsize

					if img[1] < -margin || img[1] >= s.Boxsize+margin ||
						img[2] < -margin || img[2] >= s.Boxsize+margin {
						continue
					}

					for r := 0; r < nranks; r++ {
						d := domains[r]
						if img[0] < d.Lo-margin || img[0] >= d.Hi+margin {
							continue
						}
						if sx == 0 && sy == 0 && sz == 0 && owners[i] == r {
							continue // the owned copy itself
						}
						d.ID = append(d.ID, s.ID[i])
						d.Pos = append(d.Pos, img)
						d.Vel = append(d.Vel, s.Vel[i])
						d.Owner = append(d.Owner, owners[i])
					}
				}
			}
		}
	}

	return domains, nil
}
