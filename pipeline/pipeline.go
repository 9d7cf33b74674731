// Package pipeline drives the halo-finding and merger-history stages over
// a run's snapshots. A run is sequential across snapshots; within one
// snapshot the work is split across ranks, each owning a disjoint slab of
// the box plus ghost copies. Ranks are goroutines here: they communicate
// only at two collective points, the post-linking reconcile exchange and
// the pre-catalog barrier, always by message passing.
package pipeline

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/megahalos/mega/catalog"
	"github.com/megahalos/mega/config"
	"github.com/megahalos/mega/cosmo"
	"github.com/megahalos/mega/domain"
	"github.com/megahalos/mega/fof"
	"github.com/megahalos/mega/geom"
	"github.com/megahalos/mega/kdtree"
	"github.com/megahalos/mega/linker"
	"github.com/megahalos/mega/mgraph"
	"github.com/megahalos/mega/phase"
	"github.com/megahalos/mega/snapio"
)

// Pipeline holds the validated configuration and the run-wide resources
// shared by every stage.
type Pipeline struct {
	cfg     *config.File
	log     *zap.Logger
	cos     *cosmo.FlatLCDM
	snaps   []string
	ranks   int
	workers int
}

// New builds a Pipeline from a validated parameter file. ranks sets the
// number of domain partitions in distributed mode; serial mode always runs
// a single rank. workers bounds the goroutines used for spatial queries
// within each rank.
func New(cfg *config.File, log *zap.Logger, ranks, workers int) (*Pipeline, error) {
	if cfg.Flags.UseSerial {
		ranks = 1
	}
	if ranks < 1 {
		return nil, fmt.Errorf("pipeline: need at least 1 rank, got %d", ranks)
	}
	if workers < 1 {
		workers = 1
	}

	cos, err := cosmo.New(
		cfg.Cosmology.H0, cfg.Cosmology.Om0,
		cfg.Cosmology.Ob0, cfg.Cosmology.Tcmb0,
	)
	if err != nil {
		return nil, err
	}

	snaps, err := snapio.ReadSnapList(cfg.Inputs.SnapList)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:     cfg,
		log:     log,
		cos:     cos,
		snaps:   snaps,
		ranks:   ranks,
		workers: workers,
	}, nil
}

// Snapshots returns the run's snapshot names, oldest first.
func (p *Pipeline) Snapshots() []string { return p.snaps }

// Run executes every enabled stage for one snapshot index. Halo finding
// runs on the snapshot itself; direct linking connects the previous
// snapshot to this one; the whole-run graph and tree stages run once,
// after the final snapshot.
func (p *Pipeline) Run(snapIdx int) error {
	if snapIdx < 0 || snapIdx >= len(p.snaps) {
		return fmt.Errorf(
			"pipeline: snapshot index %d out of range [0, %d)",
			snapIdx, len(p.snaps),
		)
	}

	if p.cfg.Flags.Halo {
		if err := p.FindHalos(snapIdx); err != nil {
			return err
		}
	}
	if p.cfg.Flags.GraphDirect && snapIdx > 0 {
		if err := p.LinkDirect(snapIdx - 1); err != nil {
			return err
		}
	}

	if snapIdx != len(p.snaps)-1 {
		return nil
	}
	if p.cfg.Flags.Graph {
		if err := p.BuildGraph(); err != nil {
			return err
		}
	}
	if p.cfg.Flags.TreeHalos {
		if err := p.BuildTree(); err != nil {
			return err
		}
	}
	return nil
}

// FindHalos runs the per-snapshot finding stages: decomposition, spatial
// indexing, FOF linking, boundary reconciliation, phase-space refinement
// and catalog construction. The finished catalog is written to the halo
// save path.
func (p *Pipeline) FindHalos(snapIdx int) error {
	start := time.Now()
	name := p.snaps[snapIdx]

	s, err := snapio.ReadSnapshot(p.cfg.Inputs.Data, name)
	if err != nil {
		return err
	}

	linkl := p.cfg.Parameters.LLCoeff * s.MeanSep
	domains, err := domain.Decompose(s, p.ranks, linkl)
	if err != nil {
		return err
	}
	p.log.Debug("decomposed snapshot",
		zap.String("snapshot", name),
		zap.Int("ranks", p.ranks),
		zap.Float64("linking-length", linkl),
	)

	// Per-rank FOF pass. The channel is the reconcile exchange: each rank
	// hands its component membership to the collective join below.
	resCh := make(chan *fof.Result, p.ranks)
	var g errgroup.Group
	for _, d := range domains {
		d := d
		g.Go(func() error {
			target := d.Len() / p.cfg.Parameters.NCells
			if target < 1 {
				target = 1
			}
			cells := geom.BinParticles(d.Pos, s.Boxsize, target)
			tree := kdtree.New(d.Pos)
			res, err := fof.Find(
				d, tree, cells, linkl,
				p.cfg.Parameters.BatchSize, p.workers,
			)
			if err != nil {
				return err
			}
			resCh <- res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	close(resCh)

	results := make([]*fof.Result, 0, p.ranks)
	for res := range resCh {
		results = append(results, res)
	}

	provs, err := fof.Reconcile(domains, results)
	if err != nil {
		return err
	}
	p.log.Debug("reconciled provisional halos",
		zap.String("snapshot", name),
		zap.Int("provisional", len(provs)),
	)

	refined, err := p.refine(s, provs)
	if err != nil {
		return err
	}

	var prior *catalog.Catalog
	if snapIdx > 0 {
		prior, err = catalog.Read(p.cfg.Inputs.HaloSavePath, p.snaps[snapIdx-1])
		if err != nil {
			return fmt.Errorf(
				"pipeline: snapshot %s needs the prior catalog: %w", name, err,
			)
		}
	}

	cat, err := catalog.Build(
		p.log, s, snapIdx, refined, prior, p.cfg.Parameters.PartThreshold,
	)
	if err != nil {
		return err
	}
	if err := cat.Write(p.cfg.Inputs.HaloSavePath); err != nil {
		return err
	}

	p.log.Info("halo stage complete",
		zap.String("snapshot", name),
		zap.Int("halos", len(cat.Halos)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// refine runs phase-space refinement over the reconciled provisional
// halos. Each rank refines the halos it owns; refinement is local per
// candidate, so the only synchronization is the barrier before the catalog
// stage.
func (p *Pipeline) refine(
	s *snapio.Snapshot, provs []fof.Provisional,
) ([]fof.Provisional, error) {
	sched := phase.Schedule{
		Ini:       p.cfg.Parameters.IniAlphaV,
		Min:       p.cfg.Parameters.MinAlphaV,
		Decrement: p.cfg.Parameters.Decrement,
	}
	spatial := p.cfg.Parameters.SubLLCoeff * s.MeanSep

	byRank := make([][]fof.Provisional, p.ranks)
	for _, prov := range provs {
		byRank[prov.Rank] = append(byRank[prov.Rank], prov)
	}

	// One message per rank: refinement may split a provisional halo into
	// several, so ranks batch their results before the exchange.
	outCh := make(chan []fof.Provisional, p.ranks)
	var g errgroup.Group
	for r := 0; r < p.ranks; r++ {
		r := r
		g.Go(func() error {
			var out []fof.Provisional
			for _, prov := range byRank[r] {
				cand, err := p.candidate(s, prov.Members)
				if err != nil {
					return err
				}
				res, err := phase.Refine(
					cand, sched, spatial, s.Boxsize, p.cos, s.Redshift,
				)
				if err != nil {
					return err
				}
				if !res.Converged {
					p.log.Debug("refinement schedule exhausted",
						zap.String("snapshot", s.Name),
						zap.Int64("seed-particle", prov.Members[0]),
						zap.Int("iterations", res.Iterations),
					)
				}
				for _, group := range res.Groups {
					out = append(out, fof.Provisional{Rank: r, Members: group})
				}
			}
			outCh <- out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(outCh)

	refined := make([]fof.Provisional, 0, len(provs))
	for out := range outCh {
		refined = append(refined, out...)
	}
	sort.Slice(refined, func(i, j int) bool {
		return refined[i].Members[0] < refined[j].Members[0]
	})
	return refined, nil
}

// candidate gathers the phase-space coordinates of a provisional halo's
// members from the ID-sorted snapshot.
func (p *Pipeline) candidate(
	s *snapio.Snapshot, members []int64,
) (phase.Candidate, error) {
	cand := phase.Candidate{
		ID:  members,
		Pos: make([]geom.Vec, len(members)),
		Vel: make([]geom.Vec, len(members)),
	}
	for i, pid := range members {
		j := sort.Search(len(s.ID), func(k int) bool { return s.ID[k] >= pid })
		if j == len(s.ID) || s.ID[j] != pid {
			return cand, fmt.Errorf(
				"pipeline: provisional member %d not in snapshot %s",
				pid, s.Name,
			)
		}
		cand.Pos[i] = s.Pos[j]
		cand.Vel[i] = s.Vel[j]
	}
	return cand, nil
}

// LinkDirect links the catalog of snapshot progIdx to the catalog of the
// next snapshot and writes the link table to the direct-graph save path.
func (p *Pipeline) LinkDirect(progIdx int) error {
	if progIdx < 0 || progIdx >= len(p.snaps)-1 {
		return fmt.Errorf(
			"pipeline: no snapshot follows index %d", progIdx,
		)
	}

	prog, err := catalog.Read(p.cfg.Inputs.HaloSavePath, p.snaps[progIdx])
	if err != nil {
		return err
	}
	desc, err := catalog.Read(p.cfg.Inputs.HaloSavePath, p.snaps[progIdx+1])
	if err != nil {
		return err
	}

	table, err := linker.Link(prog, desc)
	if err != nil {
		return err
	}
	if err := table.Write(p.cfg.Inputs.DirectGraphSavePath); err != nil {
		return err
	}

	p.log.Info("direct link stage complete",
		zap.String("progenitor", prog.Name),
		zap.String("descendant", desc.Name),
		zap.Int("links", len(table.Links)),
	)
	return nil
}

// BuildGraph assembles every snapshot's catalog and link table into the
// whole-run merger graph and writes it to the graph save path.
func (p *Pipeline) BuildGraph() error {
	cats := make([]*catalog.Catalog, len(p.snaps))
	for i, name := range p.snaps {
		cat, err := catalog.Read(p.cfg.Inputs.HaloSavePath, name)
		if err != nil {
			return err
		}
		cats[i] = cat
	}

	tables := make([]*linker.LinkTable, len(p.snaps)-1)
	for i := 0; i < len(p.snaps)-1; i++ {
		table, err := linker.Read(p.cfg.Inputs.DirectGraphSavePath, p.snaps[i])
		if err != nil {
			return err
		}
		tables[i] = table
	}

	g, err := mgraph.Build(cats, tables)
	if err != nil {
		return err
	}
	if err := g.Write(p.cfg.Inputs.GraphSavePath); err != nil {
		return err
	}

	p.log.Info("graph stage complete",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
	)
	return nil
}

// BuildTree derives the single-progenitor tree from the stored graph and
// writes the tree-halo catalogs, the tree link tables and the tree itself,
// as enabled by the tree stage flags.
func (p *Pipeline) BuildTree() error {
	g, err := mgraph.ReadGraph(p.cfg.Inputs.GraphSavePath)
	if err != nil {
		return err
	}
	tr := mgraph.SplitTree(g)

	for i, name := range p.snaps {
		nodes := tr.NodesAt(i)
		path := catalog.SavePath(p.cfg.Inputs.TreeHaloSavePath, name)
		if err := snapio.EncodeFile(path, nodes); err != nil {
			return err
		}
	}

	if p.cfg.Flags.TreeDirect {
		for i := 0; i < len(p.snaps)-1; i++ {
			edges := tr.EdgesFrom(i)
			path := linker.SavePath(p.cfg.Inputs.DirectTreeSavePath, p.snaps[i])
			if err := snapio.EncodeFile(path, edges); err != nil {
				return err
			}
		}
	}

	if p.cfg.Flags.Tree {
		if err := tr.Write(p.cfg.Inputs.TreeSavePath); err != nil {
			return err
		}
	}

	p.log.Info("tree stage complete",
		zap.Int("identities", len(tr.Nodes)),
		zap.Int("edges", len(tr.Edges)),
	)
	return nil
}
