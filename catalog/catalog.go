// Package catalog turns refined provisional halos into the authoritative
// per-snapshot halo catalog: it applies the minimum-size policy, assigns
// deterministic IDs, computes centre-of-mass phase-space coordinates and
// owns the catalog's on-disk form.
package catalog

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/megahalos/mega/fof"
	"github.com/megahalos/mega/geom"
	"github.com/megahalos/mega/snapio"
)

// Below this threshold value the size filter admits sub-threshold halos
// that have a verified progenitor in the prior catalog. At or above it the
// filter is unconditional.
const progenitorExemptBand = 20

// Halo is a finalized halo. Members holds the particle IDs in increasing
// order. Pos and Vel are the centre-of-mass position (wrapped into the
// box) and velocity. Rank records the owning process of record.
type Halo struct {
	ID      int64
	Snap    int
	Members []int64
	Npart   int
	Pos     geom.Vec
	Vel     geom.Vec
	Rank    int
}

// Catalog is the finalized halo population of one snapshot. Halos are
// ordered by ID, and IDs run 0..len(Halos)-1.
type Catalog struct {
	Snap  int
	Name  string
	Halos []Halo
}

// Build finalizes the reconciled, refined provisional halos of one
// snapshot. Groups smaller than threshold are discarded, except that when
// threshold < 20 a small group survives if it shares at least one particle
// with a halo of the prior snapshot's catalog. prior may be nil for the
// first snapshot. Surviving halos get IDs assigned in order of their
// smallest member particle ID, making the catalog independent of rank
// count and group arrival order.
func Build(
	log *zap.Logger, s *snapio.Snapshot, snap int,
	groups []fof.Provisional, prior *Catalog, threshold int,
) (*Catalog, error) {
	if threshold < 1 {
		return nil, fmt.Errorf(
			"catalog: part threshold must be at least 1, got %d", threshold,
		)
	}

	seen := make(map[int64]struct{})
	for _, g := range groups {
		for _, pid := range g.Members {
			if _, dup := seen[pid]; dup {
				return nil, fmt.Errorf(
					"catalog: particle %d assigned to more than one halo in %s",
					pid, s.Name,
				)
			}
			seen[pid] = struct{}{}
		}
	}

	var priorIdx *MemberIndex
	if prior != nil {
		priorIdx = NewMemberIndex(prior)
	}

	kept := groups[:0:0]
	dropped := 0
	for _, g := range groups {
		if len(g.Members) >= threshold {
			kept = append(kept, g)
			continue
		}
		if threshold < progenitorExemptBand && hasProgenitor(g, priorIdx) {
			kept = append(kept, g)
			continue
		}
		dropped++
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Members[0] < kept[j].Members[0]
	})

	cat := &Catalog{Snap: snap, Name: s.Name, Halos: make([]Halo, len(kept))}
	for i, g := range kept {
		pos, vel, err := centreOfMass(s, g.Members)
		if err != nil {
			return nil, err
		}
		cat.Halos[i] = Halo{
			ID:      int64(i),
			Snap:    snap,
			Members: g.Members,
			Npart:   len(g.Members),
			Pos:     pos,
			Vel:     vel,
			Rank:    g.Rank,
		}
	}

	n10, n100, n1000 := 0, 0, 0
	for i := range cat.Halos {
		n := cat.Halos[i].Npart
		if n >= 10 {
			n10++
		}
		if n >= 100 {
			n100++
		}
		if n >= 1000 {
			n1000++
		}
	}
	log.Info("built halo catalog",
		zap.String("snapshot", s.Name),
		zap.Int("halos", len(cat.Halos)),
		zap.Int("dropped", dropped),
		zap.Int("npart>=10", n10),
		zap.Int("npart>=100", n100),
		zap.Int("npart>=1000", n1000),
	)

	return cat, nil
}

// hasProgenitor reports whether any member of g belonged to a halo in the
// prior snapshot.
func hasProgenitor(g fof.Provisional, prior *MemberIndex) bool {
	if prior == nil {
		return false
	}
	for _, pid := range g.Members {
		if _, ok := prior.HaloOf(pid); ok {
			return true
		}
	}
	return false
}

// centreOfMass computes the mean position and velocity of the given
// members. Positions are unwrapped first so halos straddling the periodic
// boundary do not average across the box, then the mean is wrapped back in.
func centreOfMass(
	s *snapio.Snapshot, members []int64,
) (pos, vel geom.Vec, err error) {
	ps := make([]geom.Vec, len(members))
	vs := make([]geom.Vec, len(members))
	for i, pid := range members {
		j := sort.Search(len(s.ID), func(k int) bool { return s.ID[k] >= pid })
		if j == len(s.ID) || s.ID[j] != pid {
			return pos, vel, fmt.Errorf(
				"catalog: halo member %d not in snapshot %s", pid, s.Name,
			)
		}
		ps[i] = s.Pos[j]
		vs[i] = s.Vel[j]
	}
	geom.Unwrap(ps, s.Boxsize)

	axis := make([]float64, len(members))
	for d := 0; d < 3; d++ {
		for i := range ps {
			axis[i] = ps[i][d]
		}
		pos[d] = stat.Mean(axis, nil)
		for i := range vs {
			axis[i] = vs[i][d]
		}
		vel[d] = stat.Mean(axis, nil)
	}
	return geom.WrapVec(pos, s.Boxsize), vel, nil
}
