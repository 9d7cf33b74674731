package catalog

// MemberIndex answers "which halo does this particle belong to" for one
// catalog. The linker and the size filter both probe it heavily, so the
// whole membership is flattened into a single map.
type MemberIndex struct {
	locs map[int64]int64
}

// NewMemberIndex indexes every member of every halo in c.
func NewMemberIndex(c *Catalog) *MemberIndex {
	n := 0
	for i := range c.Halos {
		n += c.Halos[i].Npart
	}
	ix := &MemberIndex{locs: make(map[int64]int64, n)}
	for i := range c.Halos {
		for _, pid := range c.Halos[i].Members {
			ix.locs[pid] = c.Halos[i].ID
		}
	}
	return ix
}

// HaloOf returns the ID of the halo containing the given particle, if any.
func (ix *MemberIndex) HaloOf(pid int64) (int64, bool) {
	id, ok := ix.locs[pid]
	return id, ok
}

// Len returns the number of indexed particles.
func (ix *MemberIndex) Len() int {
	return len(ix.locs)
}
