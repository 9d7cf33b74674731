// Package kdtree implements the balanced spatial index used by the halo
// finder. A Tree is built once per snapshot per rank over that rank's
// owned+ghost particles and is strictly read-only afterwards, so queries
// may run concurrently without locking.
package kdtree

import (
	"sort"

	"github.com/megahalos/mega/geom"
)

// leafSize is the bucket size below which nodes stop splitting.
const leafSize = 16

type node struct {
	axis        int // -1 marks a leaf
	split       float64
	left, right int
	start, end  int // leaf range into Tree.order
	min, max    geom.Vec
}

// Tree is a balanced k-d tree over a fixed point set. Query results are
// indices into the point slice the tree was built from.
type Tree struct {
	pts   []geom.Vec
	order []int
	nodes []node
	root  int
}

// New builds a Tree over pts. The tree keeps a reference to pts; callers
// must not mutate the slice while the tree is in use.
func New(pts []geom.Vec) *Tree {
	t := &Tree{
		pts:   pts,
		order: make([]int, len(pts)),
	}
	for i := range t.order {
		t.order[i] = i
	}
	if len(pts) > 0 {
		t.root = t.build(0, len(pts))
	} else {
		t.root = -1
	}
	return t
}

// Len returns the number of indexed points.
func (t *Tree) Len() int { return len(t.pts) }

func (t *Tree) build(start, end int) int {
	min, max := t.bounds(start, end)

	if end-start <= leafSize {
		t.nodes = append(t.nodes, node{
			axis: -1, start: start, end: end, min: min, max: max,
		})
		return len(t.nodes) - 1
	}

	// Split along the widest extent for balanced spatial boxes.
	axis := 0
	for d := 1; d < 3; d++ {
		if max[d]-min[d] > max[axis]-min[axis] {
			axis = d
		}
	}

	sub := t.order[start:end]
	sort.Slice(sub, func(i, j int) bool {
		return t.pts[sub[i]][axis] < t.pts[sub[j]][axis]
	})
	mid := start + (end-start)/2

	n := node{
		axis:  axis,
		split: t.pts[t.order[mid]][axis],
		min:   min,
		max:   max,
	}
	idx := len(t.nodes)
	t.nodes = append(t.nodes, n)

	left := t.build(start, mid)
	right := t.build(mid, end)
	t.nodes[idx].left = left
	t.nodes[idx].right = right
	return idx
}

func (t *Tree) bounds(start, end int) (min, max geom.Vec) {
	min = t.pts[t.order[start]]
	max = min
	for _, oi := range t.order[start+1 : end] {
		p := t.pts[oi]
		for d := 0; d < 3; d++ {
			if p[d] < min[d] {
				min[d] = p[d]
			}
			if p[d] > max[d] {
				max[d] = p[d]
			}
		}
	}
	return min, max
}

// RadiusQuery appends to buf the indices of all points within r of p,
// including p itself if indexed, and returns the extended slice. Passing a
// reused buf[:0] avoids per-query allocation.
func (t *Tree) RadiusQuery(p geom.Vec, r float64, buf []int) []int {
	if t.root < 0 {
		return buf
	}
	return t.query(t.root, p, r, r*r, buf)
}

func (t *Tree) query(ni int, p geom.Vec, r, r2 float64, buf []int) []int {
	n := &t.nodes[ni]

	if !boxIntersects(n.min, n.max, p, r) {
		return buf
	}

	if n.axis == -1 {
		for _, oi := range t.order[n.start:n.end] {
			d := t.pts[oi].Sub(p)
			if d.Dot(d) <= r2 {
				buf = append(buf, oi)
			}
		}
		return buf
	}

	buf = t.query(n.left, p, r, r2, buf)
	buf = t.query(n.right, p, r, r2, buf)
	return buf
}

// boxIntersects reports whether the ball (p, r) overlaps the axis-aligned
// box [min, max].
func boxIntersects(min, max, p geom.Vec, r float64) bool {
	d2 := 0.0
	for i := 0; i < 3; i++ {
		if p[i] < min[i] {
			dx := min[i] - p[i]
			d2 += dx * dx
		} else if p[i] > max[i] {
			dx := p[i] - max[i]
			d2 += dx * dx
		}
	}
	return d2 <= r*r
}
