// Package fof finds provisional halos by spatial friends-of-friends
// linking: two particles are linked when their separation is at most the
// linking length, and connected components under that relation form
// provisional halos. Each rank links its owned+ghost particles locally;
// Reconcile then merges boundary-spanning components across ranks by ghost
// identity.
package fof

import (
	"sort"

	"github.com/megahalos/mega/domain"
	"github.com/megahalos/mega/geom"
	"github.com/megahalos/mega/kdtree"
)

// Result holds one rank's provisional components as local particle
// indices. Components made only of ghosts are skipped; their owning ranks
// find them independently.
type Result struct {
	Rank   int
	Groups [][]int
}

// Find runs the FOF pass over a rank's local particles. Queries are seeded
// cell by cell from the pre-binned grid and evaluated through the index in
// rounds of batchSize, parallel across workers. Particles whose query
// returns only themselves stay unassigned.
func Find(
	d *domain.Domain, tree *kdtree.Tree, cells *geom.CellGrid,
	linkl float64, batchSize, workers int,
) (*Result, error) {
	uf := newUnionFind(d.Len())

	for _, cell := range cells.Cells {
		if len(cell) == 0 {
			continue
		}
		err := tree.RadiusQueryBatch(cell, linkl, batchSize, workers,
			func(offset int, results [][]int) error {
				for i, neighbors := range results {
					self := cell[offset+i]
					for _, n := range neighbors {
						if n != self {
							uf.union(self, n)
						}
					}
				}
				return nil
			})
		if err != nil {
			return nil, err
		}
	}

	members := map[int][]int{}
	for i := 0; i < d.Len(); i++ {
		root := uf.find(i)
		if root == i && uf.size[i] == 1 {
			continue // single-particle, never a halo seed
		}
		members[root] = append(members[root], i)
	}

	res := &Result{Rank: d.Rank}
	roots := make([]int, 0, len(members))
	for root := range members {
		roots = append(roots, root)
	}
	sort.Ints(roots)
	for _, root := range roots {
		group := members[root]
		if !containsOwned(d, group) {
			continue
		}
		res.Groups = append(res.Groups, group)
	}

	return res, nil
}

func containsOwned(d *domain.Domain, group []int) bool {
	for _, i := range group {
		if !d.IsGhost(i) {
			return true
		}
	}
	return false
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
