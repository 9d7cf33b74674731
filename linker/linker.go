// Package linker connects the halo catalogs of two adjacent snapshots.
// Every pair of halos that shares particles yields one directed
// progenitor-to-descendant link weighted by the shared-particle count.
package linker

import (
	"fmt"
	"sort"

	"github.com/megahalos/mega/catalog"
	"github.com/megahalos/mega/snapio"
)

// DirectLink records that Weight particles of progenitor halo ProgID end
// up in descendant halo DescID one snapshot later.
type DirectLink struct {
	ProgID int64
	DescID int64
	Weight int
}

// LinkTable holds every direct link between one adjacent snapshot pair.
// Links are ordered by progenitor ID, then descendant ID.
type LinkTable struct {
	ProgSnap int
	DescSnap int
	ProgName string
	DescName string
	Links    []DirectLink
}

// Link joins the two catalogs on particle ID. Each progenitor halo's
// members are probed against the descendant catalog's member index; every
// descendant that captured at least one shared particle gets a link whose
// weight is the exact shared count.
func Link(prog, desc *catalog.Catalog) (*LinkTable, error) {
	if desc.Snap != prog.Snap+1 {
		return nil, fmt.Errorf(
			"linker: snapshots %d and %d are not adjacent",
			prog.Snap, desc.Snap,
		)
	}

	descIdx := catalog.NewMemberIndex(desc)
	table := &LinkTable{
		ProgSnap: prog.Snap,
		DescSnap: desc.Snap,
		ProgName: prog.Name,
		DescName: desc.Name,
	}

	for i := range prog.Halos {
		h := &prog.Halos[i]
		shared := make(map[int64]int)
		for _, pid := range h.Members {
			if descID, ok := descIdx.HaloOf(pid); ok {
				shared[descID]++
			}
		}

		descIDs := make([]int64, 0, len(shared))
		for descID := range shared {
			descIDs = append(descIDs, descID)
		}
		sort.Slice(descIDs, func(a, b int) bool {
			return descIDs[a] < descIDs[b]
		})
		for _, descID := range descIDs {
			table.Links = append(table.Links, DirectLink{
				ProgID: h.ID,
				DescID: descID,
				Weight: shared[descID],
			})
		}
	}

	return table, nil
}

// SavePath returns the on-disk location of a link table: the configured
// basename suffixed with the progenitor snapshot name.
func SavePath(base, progName string) string {
	return base + "_" + progName + ".dat"
}

// Write stores the link table at its save path under the given basename.
func (t *LinkTable) Write(base string) error {
	return snapio.EncodeFile(SavePath(base, t.ProgName), t)
}

// Read loads the link table whose progenitor snapshot has the given name.
func Read(base, progName string) (*LinkTable, error) {
	t := &LinkTable{}
	if err := snapio.DecodeFile(SavePath(base, progName), t); err != nil {
		return nil, err
	}
	return t, nil
}
