// Package snapio holds the prepared-snapshot container consumed by the
// halo finder and the on-disk codec shared by every pipeline artifact.
//
// A prepared snapshot stores particle IDs, positions and velocities sorted
// by ID, along with the box geometry the finder needs. Raw simulation
// formats are converted into this form once, up front.
package snapio

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/megahalos/mega/geom"
)

// Snapshot is a prepared, ID-sorted particle snapshot.
type Snapshot struct {
	Name     string
	Boxsize  float64
	Redshift float64
	Npart    int

	// MeanSep is the mean interparticle separation,
	// boxsize / npart^(1/3). Linking lengths are multiples of it.
	MeanSep float64

	ID  []int64
	Pos []geom.Vec
	Vel []geom.Vec
}

// Prepare builds a Snapshot from raw particle arrays: it sorts the
// particles by ID and computes the mean interparticle separation.
func Prepare(
	name string, id []int64, pos, vel []geom.Vec,
	boxsize, redshift float64,
) (*Snapshot, error) {
	if len(id) == 0 {
		return nil, fmt.Errorf("snapio: snapshot %s has no particles", name)
	}
	if len(pos) != len(id) || len(vel) != len(id) {
		return nil, fmt.Errorf(
			"snapio: snapshot %s: %d ids, %d positions, %d velocities",
			name, len(id), len(pos), len(vel),
		)
	}
	if boxsize <= 0 {
		return nil, fmt.Errorf(
			"snapio: snapshot %s: boxsize must be positive, got %g",
			name, boxsize,
		)
	}

	order := make([]int, len(id))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return id[order[i]] < id[order[j]]
	})

	s := &Snapshot{
		Name:     name,
		Boxsize:  boxsize,
		Redshift: redshift,
		Npart:    len(id),
		MeanSep:  boxsize / math.Cbrt(float64(len(id))),
		ID:       make([]int64, len(id)),
		Pos:      make([]geom.Vec, len(id)),
		Vel:      make([]geom.Vec, len(id)),
	}
	for i, o := range order {
		s.ID[i] = id[o]
		s.Pos[i] = pos[o]
		s.Vel[i] = vel[o]
	}

	for i := 1; i < len(s.ID); i++ {
		if s.ID[i] == s.ID[i-1] {
			return nil, fmt.Errorf(
				"snapio: snapshot %s: duplicate particle ID %d",
				name, s.ID[i],
			)
		}
	}

	return s, nil
}

// InputPath returns the on-disk location of a prepared snapshot.
func InputPath(dir, name string) string {
	return filepath.Join(dir, "mega_inputs_"+name+".dat")
}

// Write stores the snapshot at the prepared-input location under dir.
func (s *Snapshot) Write(dir string) error {
	return EncodeFile(InputPath(dir, s.Name), s)
}

// ReadSnapshot loads the prepared snapshot with the given name from dir.
func ReadSnapshot(dir, name string) (*Snapshot, error) {
	s := &Snapshot{}
	if err := DecodeFile(InputPath(dir, name), s); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadSnapList reads a snapshot-list file: one snapshot name per line,
// oldest first. Blank lines and lines starting with # are skipped.
func ReadSnapList(fname string) ([]string, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("snapio: reading snapshot list: %w", err)
	}
	defer f.Close()

	var snaps []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		snaps = append(snaps, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("snapio: reading snapshot list: %w", err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("snapio: snapshot list %s is empty", fname)
	}
	return snaps, nil
}
