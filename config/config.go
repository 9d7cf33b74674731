// Package config reads and validates mega parameter files. A parameter
// file is a gcfg/INI-style file with four sections: [inputs], [cosmology],
// [flags] and [parameters]. All validation happens here, before any
// compute resource is allocated.
package config

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gcfg.v1"
)

const ExampleParamFile = `[inputs]

# Directory containing the prepared snapshot input files.
data = path/to/input/dir

# File listing one snapshot name per line, oldest first.
snap-list = path/to/snaplist.txt

# Output basenames for each pipeline stage. A snapshot or run suffix is
# appended to each.
halo-save-path         = path/to/halos/halos
direct-graph-save-path = path/to/graphs/Mgraph
graph-save-path        = path/to/graphs/FullMgraphs
tree-halo-save-path    = path/to/trees/halos
direct-tree-save-path  = path/to/trees/Mtree
tree-save-path         = path/to/trees/FullMtrees
profiling-path         = path/to/profiles/prof
analytics-path         = path/to/analytics

[cosmology]

h0    = 70.0
om0   = 0.3
ob0   = 0.05
tcmb0 = 2.725

[flags]

# Stage enable flags. Enabling a stage requires every earlier stage to be
# enabled as well.
halo       = 1
graphdirect = 1
graph      = 1
treehalos  = 0
treedirect = 0
tree       = 0

# Subhalo stages are experimental and must remain disabled.
subs           = 0
subgraphdirect = 0
subgraph       = 0

# Exactly one execution mode must be enabled.
useserial = 1
usempi    = 0

verbose = 0
profile = 0

[parameters]

# Number of query points evaluated per spatial index traversal pass.
batchsize = 2000000

# Phase-space refinement schedule for the velocity linking coefficient.
ini-alpha-v = 10.0
min-alpha-v = 0.8
decrement   = 0.05

# Spatial linking length coefficients (host and within-host).
llcoeff     = 0.2
sub-llcoeff = 0.1

# Minimum halo particle count.
part-threshold = 10

# Spatial pre-binning granularity: cells ~ particles / n-cells.
n-cells = 1000`

// ErrFlagCascade reports a stage flag enabled while a stage it depends on
// is disabled.
var ErrFlagCascade = errors.New("stage flag enabled without its dependencies")

// InputsConfig holds the filesystem paths consumed and produced by the run.
type InputsConfig struct {
	Data     string
	SnapList string `gcfg:"snap-list"`

	HaloSavePath        string `gcfg:"halo-save-path"`
	DirectGraphSavePath string `gcfg:"direct-graph-save-path"`
	GraphSavePath       string `gcfg:"graph-save-path"`
	TreeHaloSavePath    string `gcfg:"tree-halo-save-path"`
	DirectTreeSavePath  string `gcfg:"direct-tree-save-path"`
	TreeSavePath        string `gcfg:"tree-save-path"`
	ProfilingPath       string `gcfg:"profiling-path"`
	AnalyticsPath       string `gcfg:"analytics-path"`
}

func (con *InputsConfig) ValidData() bool     { return con.Data != "" }
func (con *InputsConfig) ValidSnapList() bool { return con.SnapList != "" }
func (con *InputsConfig) ValidHaloSavePath() bool {
	return con.HaloSavePath != ""
}

// CosmologyConfig holds the scalar cosmology parameters. They feed unit
// conversions downstream of the finder, not the linking algorithm itself.
type CosmologyConfig struct {
	H0    float64
	Om0   float64
	Ob0   float64
	Tcmb0 float64
}

func (con *CosmologyConfig) ValidH0() bool  { return con.H0 > 0 }
func (con *CosmologyConfig) ValidOm0() bool { return con.Om0 > 0 && con.Om0 <= 1 }
func (con *CosmologyConfig) ValidOb0() bool {
	return con.Ob0 >= 0 && con.Ob0 <= con.Om0
}

// FlagsConfig holds the stage enable flags and execution-mode switches.
type FlagsConfig struct {
	Halo        bool
	GraphDirect bool `gcfg:"graphdirect"`
	Graph       bool
	TreeHalos   bool `gcfg:"treehalos"`
	TreeDirect  bool `gcfg:"treedirect"`
	Tree        bool

	Subs           bool
	SubGraphDirect bool `gcfg:"subgraphdirect"`
	SubGraph       bool `gcfg:"subgraph"`

	UseSerial bool `gcfg:"useserial"`
	UseMPI    bool `gcfg:"usempi"`

	Verbose bool
	Profile bool
}

// stages lists the host-halo pipeline stages in dependency order.
func (con *FlagsConfig) stages() []struct {
	name string
	on   bool
} {
	return []struct {
		name string
		on   bool
	}{
		{"halo", con.Halo},
		{"graphdirect", con.GraphDirect},
		{"graph", con.Graph},
		{"treehalos", con.TreeHalos},
		{"treedirect", con.TreeDirect},
		{"tree", con.Tree},
	}
}

// CheckCascade verifies that every enabled stage has all earlier stages
// enabled, that exactly one execution mode is selected, and that the
// experimental subhalo stages stay disabled.
func (con *FlagsConfig) CheckCascade() error {
	stages := con.stages()
	for i := 1; i < len(stages); i++ {
		if !stages[i].on {
			continue
		}
		for j := 0; j < i; j++ {
			if !stages[j].on {
				return fmt.Errorf("%w: %s=1 requires %s=1",
					ErrFlagCascade, stages[i].name, stages[j].name)
			}
		}
	}

	if con.Subs || con.SubGraphDirect || con.SubGraph {
		return fmt.Errorf(
			"%w: subhalo stages (subs, subgraphdirect, subgraph) are "+
				"experimental and must be disabled", ErrFlagCascade,
		)
	}

	if con.UseSerial == con.UseMPI {
		return fmt.Errorf(
			"%w: exactly one of useserial and usempi must be enabled",
			ErrFlagCascade,
		)
	}

	return nil
}

// ParametersConfig holds the numeric tuning for the core engine.
type ParametersConfig struct {
	BatchSize int `gcfg:"batchsize"`

	IniAlphaV float64 `gcfg:"ini-alpha-v"`
	MinAlphaV float64 `gcfg:"min-alpha-v"`
	Decrement float64

	LLCoeff    float64 `gcfg:"llcoeff"`
	SubLLCoeff float64 `gcfg:"sub-llcoeff"`

	PartThreshold int `gcfg:"part-threshold"`
	NCells        int `gcfg:"n-cells"`
}

func (con *ParametersConfig) ValidBatchSize() bool { return con.BatchSize > 0 }
func (con *ParametersConfig) ValidAlphaSchedule() bool {
	return con.IniAlphaV > con.MinAlphaV &&
		con.MinAlphaV > 0 && con.Decrement > 0
}
func (con *ParametersConfig) ValidLLCoeff() bool { return con.LLCoeff > 0 }
func (con *ParametersConfig) ValidSubLLCoeff() bool {
	return con.SubLLCoeff > 0 && con.SubLLCoeff <= con.LLCoeff
}
func (con *ParametersConfig) ValidPartThreshold() bool {
	return con.PartThreshold >= 2
}
func (con *ParametersConfig) ValidNCells() bool { return con.NCells > 0 }

// File is a fully parsed parameter file.
type File struct {
	Inputs     InputsConfig
	Cosmology  CosmologyConfig
	Flags      FlagsConfig
	Parameters ParametersConfig
}

// ReadFile parses and validates the named parameter file.
func ReadFile(fname string) (*File, error) {
	f := &File{}
	if err := gcfg.ReadFileInto(f, fname); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", fname, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// ReadString parses and validates a parameter file held in a string.
func ReadString(contents string) (*File, error) {
	f := &File{}
	if err := gcfg.ReadStringInto(f, contents); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate rejects inconsistent parameter files. It reports every invalid
// field it finds, not just the first.
func (f *File) Validate() error {
	var bad []string

	checks := []struct {
		name string
		ok   bool
	}{
		{"inputs.data", f.Inputs.ValidData()},
		{"inputs.snap-list", f.Inputs.ValidSnapList()},
		{"inputs.halo-save-path", f.Inputs.ValidHaloSavePath()},
		{"cosmology.h0", f.Cosmology.ValidH0()},
		{"cosmology.om0", f.Cosmology.ValidOm0()},
		{"cosmology.ob0", f.Cosmology.ValidOb0()},
		{"parameters.batchsize", f.Parameters.ValidBatchSize()},
		{"parameters.ini/min-alpha-v, decrement",
			f.Parameters.ValidAlphaSchedule()},
		{"parameters.llcoeff", f.Parameters.ValidLLCoeff()},
		{"parameters.sub-llcoeff", f.Parameters.ValidSubLLCoeff()},
		{"parameters.part-threshold", f.Parameters.ValidPartThreshold()},
		{"parameters.n-cells", f.Parameters.ValidNCells()},
	}
	for _, c := range checks {
		if !c.ok {
			bad = append(bad, c.name)
		}
	}

	if f.Flags.GraphDirect && f.Inputs.DirectGraphSavePath == "" {
		bad = append(bad, "inputs.direct-graph-save-path")
	}
	if f.Flags.Graph && f.Inputs.GraphSavePath == "" {
		bad = append(bad, "inputs.graph-save-path")
	}
	if f.Flags.TreeHalos && f.Inputs.TreeHaloSavePath == "" {
		bad = append(bad, "inputs.tree-halo-save-path")
	}
	if f.Flags.TreeDirect && f.Inputs.DirectTreeSavePath == "" {
		bad = append(bad, "inputs.direct-tree-save-path")
	}
	if f.Flags.Tree && f.Inputs.TreeSavePath == "" {
		bad = append(bad, "inputs.tree-save-path")
	}
	if f.Flags.Profile && f.Inputs.ProfilingPath == "" {
		bad = append(bad, "inputs.profiling-path")
	}

	if len(bad) > 0 {
		return fmt.Errorf(
			"config: missing or invalid fields: %s", strings.Join(bad, ", "),
		)
	}

	return f.Flags.CheckCascade()
}
