package fof

import (
	"fmt"
	"sort"

	"github.com/megahalos/mega/domain"
)

// Provisional is a reconciled provisional halo: the union of every rank's
// contribution to one boundary-spanning component, expressed as sorted
// particle IDs. Rank is the owner of record, the rank owning the smallest
// member ID.
type Provisional struct {
	Rank    int
	Members []int64
}

// Reconcile merges per-rank FOF components into global provisional halos.
// A component on one rank that contains a ghost copy of a particle owned
// elsewhere is merged with the owner's component containing that particle;
// ghost identity (the shared particle ID) is the join key, so no rank ever
// inspects another rank's mutable state.
func Reconcile(domains []*domain.Domain, results []*Result) ([]Provisional, error) {
	owner := map[int64]int{}
	for _, d := range domains {
		for i := 0; i < d.NOwned; i++ {
			owner[d.ID[i]] = d.Rank
		}
	}

	// Union-find over particle IDs, compacted through a slot table.
	slot := map[int64]int{}
	var pids []int64
	slotOf := func(pid int64) int {
		s, ok := slot[pid]
		if !ok {
			s = len(pids)
			slot[pid] = s
			pids = append(pids, pid)
		}
		return s
	}

	type pending struct{ a, b int64 }
	var joins []pending
	for _, res := range results {
		if res.Rank < 0 || res.Rank >= len(domains) {
			return nil, fmt.Errorf("fof: result for unknown rank %d", res.Rank)
		}
		d := domains[res.Rank]
		for _, group := range res.Groups {
			first := d.ID[group[0]]
			slotOf(first)
			for _, i := range group[1:] {
				joins = append(joins, pending{first, d.ID[i]})
				slotOf(d.ID[i])
			}
		}
	}

	uf := newUnionFind(len(pids))
	for _, j := range joins {
		uf.union(slot[j.a], slot[j.b])
	}

	members := map[int][]int64{}
	for s, pid := range pids {
		root := uf.find(s)
		members[root] = append(members[root], pid)
	}

	provs := make([]Provisional, 0, len(members))
	for _, pidList := range members {
		// Ghost copies of one particle collapsed to a single slot above,
		// so members are already distinct IDs.
		if len(pidList) < 2 {
			continue
		}
		sort.Slice(pidList, func(i, j int) bool { return pidList[i] < pidList[j] })
		ownerRank, ok := owner[pidList[0]]
		if !ok {
			return nil, fmt.Errorf("fof: particle %d has no owner", pidList[0])
		}
		provs = append(provs, Provisional{Rank: ownerRank, Members: pidList})
	}

	sort.Slice(provs, func(i, j int) bool {
		return provs[i].Members[0] < provs[j].Members[0]
	})

	return provs, nil
}
