package mgraph

import (
	"sort"

	"github.com/megahalos/mega/snapio"
)

// TreeNode is one identity of a halo in the split tree. The canonical
// identity has Split 0; a halo with extra progenitors grows one secondary
// identity per surplus edge, numbered from 1 in decreasing edge weight.
type TreeNode struct {
	ID    NodeID
	Split int
	Npart int
}

// TreeEdge is the single progenitor edge of one tree identity. Prog is
// always the progenitor halo's canonical identity.
type TreeEdge struct {
	Prog   NodeID
	Desc   NodeID
	Split  int
	Weight int
}

// Tree is the single-progenitor view of a merger graph: every identity has
// at most one incoming edge, and only first-snapshot or newly formed halos
// have none.
type Tree struct {
	Snaps []int
	Nodes []TreeNode
	Edges []TreeEdge
}

// SplitTree derives the tree from the graph. For each halo the
// highest-weight incoming edge stays with the canonical identity; every
// other incoming edge is moved onto a fresh split identity of the same
// halo. Weight ties break toward the lower progenitor halo ID so repeated
// runs produce identical trees. Descendant relationships are untouched:
// outgoing edges always leave the canonical identity.
func SplitTree(g *Graph) *Tree {
	t := &Tree{Snaps: append([]int(nil), g.Snaps...)}

	for _, snap := range g.Snaps {
		for _, n := range g.NodesAt(snap) {
			in := append([]int(nil), n.Progs...)
			sort.Slice(in, func(a, b int) bool {
				ea, eb := g.Edges[in[a]], g.Edges[in[b]]
				if ea.Weight != eb.Weight {
					return ea.Weight > eb.Weight
				}
				return ea.Prog.Halo < eb.Prog.Halo
			})

			t.Nodes = append(t.Nodes, TreeNode{
				ID: n.ID, Split: 0, Npart: n.Npart,
			})
			for k, ei := range in {
				if k > 0 {
					t.Nodes = append(t.Nodes, TreeNode{
						ID: n.ID, Split: k, Npart: n.Npart,
					})
				}
				e := g.Edges[ei]
				t.Edges = append(t.Edges, TreeEdge{
					Prog:   e.Prog,
					Desc:   n.ID,
					Split:  k,
					Weight: e.Weight,
				})
			}
		}
	}

	return t
}

// NodesAt returns the tree identities for one snapshot, ordered by halo ID
// then split index.
func (t *Tree) NodesAt(snap int) []TreeNode {
	var out []TreeNode
	for _, n := range t.Nodes {
		if n.ID.Snap == snap {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID.Halo != out[j].ID.Halo {
			return out[i].ID.Halo < out[j].ID.Halo
		}
		return out[i].Split < out[j].Split
	})
	return out
}

// EdgesFrom returns the tree edges whose progenitor lives in the given
// snapshot, ordered by progenitor then descendant identity.
func (t *Tree) EdgesFrom(snap int) []TreeEdge {
	var out []TreeEdge
	for _, e := range t.Edges {
		if e.Prog.Snap == snap {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Prog.Halo != b.Prog.Halo {
			return a.Prog.Halo < b.Prog.Halo
		}
		if a.Desc.Halo != b.Desc.Halo {
			return a.Desc.Halo < b.Desc.Halo
		}
		return a.Split < b.Split
	})
	return out
}

// Write stores the tree at its save path under the given basename.
func (t *Tree) Write(base string) error {
	return snapio.EncodeFile(SavePath(base), t)
}

// ReadTree loads a tree from the given basename.
func ReadTree(base string) (*Tree, error) {
	t := &Tree{}
	if err := snapio.DecodeFile(SavePath(base), t); err != nil {
		return nil, err
	}
	return t, nil
}
