// Package mgraph assembles per-pair direct links into the full merger
// graph of a run, and derives the single-progenitor tree from it. The
// graph keeps the true topology: halos may have many progenitors and many
// descendants.
package mgraph

import (
	"fmt"
	"sort"

	"github.com/megahalos/mega/catalog"
	"github.com/megahalos/mega/linker"
	"github.com/megahalos/mega/snapio"
)

// NodeID names a halo across the whole run: the snapshot index plus the
// halo's catalog ID within that snapshot.
type NodeID struct {
	Snap int
	Halo int64
}

// Edge is one progenitor-to-descendant relationship carried over from a
// direct-link table.
type Edge struct {
	Prog   NodeID
	Desc   NodeID
	Weight int
}

// Node is a halo decorated with its incoming and outgoing edges, stored as
// indices into the graph's edge list.
type Node struct {
	ID    NodeID
	Npart int
	Progs []int
	Descs []int
}

// Graph is the merger graph of a full run. It is immutable once built;
// the tree derivation reads it without modification.
type Graph struct {
	Snaps []int
	Nodes map[NodeID]*Node
	Edges []Edge
}

// Build assembles the merger graph from the catalogs of consecutive
// snapshots and the link tables between them. Catalogs must be ordered by
// snapshot, tables[i] must connect cats[i] to cats[i+1], and every link
// endpoint must name a cataloged halo.
func Build(cats []*catalog.Catalog, tables []*linker.LinkTable) (*Graph, error) {
	if len(cats) < 2 {
		return nil, fmt.Errorf(
			"mgraph: need at least 2 catalogs, got %d", len(cats),
		)
	}
	if len(tables) != len(cats)-1 {
		return nil, fmt.Errorf(
			"mgraph: %d catalogs need %d link tables, got %d",
			len(cats), len(cats)-1, len(tables),
		)
	}

	g := &Graph{Nodes: make(map[NodeID]*Node)}
	for i, cat := range cats {
		if i > 0 && cat.Snap != cats[i-1].Snap+1 {
			return nil, fmt.Errorf(
				"mgraph: catalogs for snapshots %d and %d are not adjacent",
				cats[i-1].Snap, cat.Snap,
			)
		}
		g.Snaps = append(g.Snaps, cat.Snap)
		for j := range cat.Halos {
			h := &cat.Halos[j]
			id := NodeID{Snap: cat.Snap, Halo: h.ID}
			g.Nodes[id] = &Node{ID: id, Npart: h.Npart}
		}
	}

	for i, table := range tables {
		if table.ProgSnap != cats[i].Snap || table.DescSnap != cats[i+1].Snap {
			return nil, fmt.Errorf(
				"mgraph: link table %d connects snapshots %d-%d, want %d-%d",
				i, table.ProgSnap, table.DescSnap, cats[i].Snap, cats[i+1].Snap,
			)
		}
		for _, l := range table.Links {
			prog := NodeID{Snap: table.ProgSnap, Halo: l.ProgID}
			desc := NodeID{Snap: table.DescSnap, Halo: l.DescID}
			pn, ok := g.Nodes[prog]
			if !ok {
				return nil, fmt.Errorf(
					"mgraph: link names unknown progenitor %v", prog,
				)
			}
			dn, ok := g.Nodes[desc]
			if !ok {
				return nil, fmt.Errorf(
					"mgraph: link names unknown descendant %v", desc,
				)
			}
			g.Edges = append(g.Edges, Edge{
				Prog: prog, Desc: desc, Weight: l.Weight,
			})
			pn.Descs = append(pn.Descs, len(g.Edges)-1)
			dn.Progs = append(dn.Progs, len(g.Edges)-1)
		}
	}

	return g, nil
}

// NodesAt returns the graph's nodes for one snapshot, ordered by halo ID.
func (g *Graph) NodesAt(snap int) []*Node {
	var out []*Node
	for id, n := range g.Nodes {
		if id.Snap == snap {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Halo < out[j].ID.Halo
	})
	return out
}

// SavePath returns the on-disk location of a whole-run artifact.
func SavePath(base string) string {
	return base + ".dat"
}

// Write stores the graph at its save path under the given basename.
func (g *Graph) Write(base string) error {
	return snapio.EncodeFile(SavePath(base), g)
}

// ReadGraph loads a graph from the given basename.
func ReadGraph(base string) (*Graph, error) {
	g := &Graph{}
	if err := snapio.DecodeFile(SavePath(base), g); err != nil {
		return nil, err
	}
	return g, nil
}
