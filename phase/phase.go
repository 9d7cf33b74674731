// Package phase refines provisional halos in phase space. Position-only
// linking can spuriously merge kinematically distinct structures; the
// refiner re-links halo members with a combined position+velocity
// criterion while shrinking the velocity-linking coefficient alpha_v, and
// stops when either the membership partition stabilizes or alpha_v falls
// below its floor.
package phase

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/megahalos/mega/cosmo"
	"github.com/megahalos/mega/geom"
)

// Schedule is the refinement schedule for alpha_v.
type Schedule struct {
	Ini       float64
	Min       float64
	Decrement float64
}

// MaxIter returns the upper bound on refinement iterations. alpha_v
// strictly decreases every round, so the loop cannot run longer than this.
func (s Schedule) MaxIter() int {
	return int(math.Ceil((s.Ini - s.Min) / s.Decrement))
}

func (s Schedule) validate() error {
	if s.Decrement <= 0 {
		return fmt.Errorf("phase: decrement must be positive, got %g", s.Decrement)
	}
	if s.Min <= 0 || s.Ini <= s.Min {
		return fmt.Errorf(
			"phase: need ini_alpha_v > min_alpha_v > 0, got %g, %g",
			s.Ini, s.Min,
		)
	}
	return nil
}

// Candidate is one provisional halo handed to the refiner: parallel
// slices of particle IDs, positions and velocities. The refiner does not
// mutate them.
type Candidate struct {
	ID  []int64
	Pos []geom.Vec
	Vel []geom.Vec
}

// Result is the outcome of refining one candidate.
type Result struct {
	// Groups is the final membership partition: one sorted ID list per
	// surviving structure. Particles split into singletons are dropped.
	Groups [][]int64

	Iterations  int
	Converged   bool // partition stabilized before alpha_v hit its floor
	FinalAlphaV float64
}

// state is the refiner's explicit state: the current coefficient and the
// current component partition (groups of candidate-local indices).
type state struct {
	alphaV float64
	parts  [][]int
}

// Refine runs the phase-space refinement state machine over one candidate.
// spatialLink is the within-host linking length (sub_llcoeff times the
// mean separation); boxsize unwraps periodic candidates; the cosmology and
// redshift feed the hubble-flow term added to velocities before the
// dispersion is measured. Positions are comoving Mpc, velocities km/s.
//
// Each iteration re-links every current component: a pair stays linked iff
// its spatial separation is at most spatialLink AND its velocity
// separation is at most alpha_v times the component's velocity dispersion.
// Components only ever split.
func Refine(
	cand Candidate, sched Schedule, spatialLink, boxsize float64,
	cos *cosmo.FlatLCDM, redshift float64,
) (*Result, error) {
	if err := sched.validate(); err != nil {
		return nil, err
	}
	if len(cand.ID) != len(cand.Pos) || len(cand.ID) != len(cand.Vel) {
		return nil, fmt.Errorf(
			"phase: candidate slices disagree: %d ids, %d positions, %d velocities",
			len(cand.ID), len(cand.Pos), len(cand.Vel),
		)
	}

	// Work on an unwrapped copy so periodic candidates are contiguous.
	pos := make([]geom.Vec, len(cand.Pos))
	copy(pos, cand.Pos)
	geom.Unwrap(pos, boxsize)

	all := make([]int, len(cand.ID))
	for i := range all {
		all[i] = i
	}

	st := state{alphaV: sched.Ini, parts: [][]int{all}}
	maxIter := sched.MaxIter()
	iterations := 0
	converged := false

	for iterations < maxIter {
		st.alphaV -= sched.Decrement
		if st.alphaV < sched.Min {
			// Convergence exhaustion: accept the last membership.
			break
		}

		next := relink(cand, pos, st.parts, st.alphaV, spatialLink, cos, redshift)
		iterations++

		if samePartition(st.parts, next) {
			st.parts = next
			converged = true
			break
		}
		st.parts = next
	}

	res := &Result{
		Iterations:  iterations,
		Converged:   converged,
		FinalAlphaV: st.alphaV,
	}
	for _, part := range st.parts {
		if len(part) < 2 {
			continue
		}
		ids := make([]int64, len(part))
		for i, idx := range part {
			ids[i] = cand.ID[idx]
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		res.Groups = append(res.Groups, ids)
	}
	sort.Slice(res.Groups, func(i, j int) bool {
		return res.Groups[i][0] < res.Groups[j][0]
	})

	return res, nil
}

// relink recomputes connected components within each current component
// under the dual position+velocity criterion at the given alpha_v.
func relink(
	cand Candidate, pos []geom.Vec, parts [][]int,
	alphaV, spatialLink float64, cos *cosmo.FlatLCDM, redshift float64,
) [][]int {
	var next [][]int
	for _, part := range parts {
		if len(part) < 2 {
			next = append(next, part)
			continue
		}
		next = append(next, splitComponent(
			cand, pos, part, alphaV, spatialLink, cos, redshift,
		)...)
	}
	return next
}

func splitComponent(
	cand Candidate, pos []geom.Vec, part []int,
	alphaV, spatialLink float64, cos *cosmo.FlatLCDM, redshift float64,
) [][]int {
	vel := effectiveVelocities(cand, pos, part, cos, redshift)
	vlink := alphaV * dispersion(vel)

	// Brute-force pair linking: candidate components are tiny relative to
	// the snapshot, and the criterion needs both spaces anyway.
	uf := newUnionFind(len(part))
	sl2 := spatialLink * spatialLink
	vl2 := vlink * vlink
	for i := 0; i < len(part); i++ {
		for j := i + 1; j < len(part); j++ {
			dx := pos[part[i]].Sub(pos[part[j]])
			if dx.Dot(dx) > sl2 {
				continue
			}
			dv := vel[i].Sub(vel[j])
			if dv.Dot(dv) > vl2 {
				continue
			}
			uf.union(i, j)
		}
	}

	members := map[int][]int{}
	for i := range part {
		root := uf.find(i)
		members[root] = append(members[root], part[i])
	}

	groups := make([][]int, 0, len(members))
	roots := make([]int, 0, len(members))
	for root := range members {
		roots = append(roots, root)
	}
	sort.Ints(roots)
	for _, root := range roots {
		groups = append(groups, members[root])
	}
	return groups
}

// effectiveVelocities returns the component's velocities with the hubble
// flow about the component centre added: H(z) * (x - x̄) * (1+z)^{-1/2}.
func effectiveVelocities(
	cand Candidate, pos []geom.Vec, part []int,
	cos *cosmo.FlatLCDM, redshift float64,
) []geom.Vec {
	var center geom.Vec
	for _, idx := range part {
		center = center.Add(pos[idx])
	}
	center = center.Scale(1 / float64(len(part)))

	hz := cos.H(redshift) / math.Sqrt(1+redshift)
	vel := make([]geom.Vec, len(part))
	for i, idx := range part {
		flow := pos[idx].Sub(center).Scale(hz)
		vel[i] = cand.Vel[idx].Add(flow)
	}
	return vel
}

// dispersion returns the 3D velocity dispersion: the root of the summed
// per-axis variances.
func dispersion(vel []geom.Vec) float64 {
	if len(vel) < 2 {
		return 0
	}
	axis := make([]float64, len(vel))
	sum := 0.0
	for d := 0; d < 3; d++ {
		for i, v := range vel {
			axis[i] = v[d]
		}
		sum += stat.Variance(axis, nil)
	}
	return math.Sqrt(sum)
}

// samePartition reports whether two partitions contain the same groups.
// Groups are built in deterministic index order, so elementwise comparison
// suffices.
func samePartition(a, b [][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}
