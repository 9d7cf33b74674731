// Command mega runs the halo finding and merger history pipeline for one
// snapshot of a simulation, as configured by a parameter file.
package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/megahalos/mega/config"
	"github.com/megahalos/mega/pipeline"
)

// fileGroup holds the files whose lifetime is the whole run.
type fileGroup struct {
	prof *os.File
}

func (fg *fileGroup) close() {
	if fg.prof != nil {
		pprof.StopCPUProfile()
		fg.prof.Close()
	}
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mega",
		Short:         "phase-space halo finder and merger history engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var threads, ranks int

	run := &cobra.Command{
		Use:   "run <param file> <snap index>",
		Short: "run every enabled pipeline stage for one snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapIdx, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("snap index %q is not an integer", args[1])
			}
			return runPipeline(args[0], snapIdx, ranks, threads)
		},
	}
	run.Flags().IntVar(
		&threads, "threads", runtime.NumCPU(),
		"worker goroutines per rank for spatial queries",
	)
	run.Flags().IntVar(
		&ranks, "ranks", 1,
		"domain partitions in distributed (usempi) mode",
	)

	example := &cobra.Command{
		Use:   "example-config",
		Short: "print an example parameter file to stdout",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.ExampleParamFile)
		},
	}

	root.AddCommand(run, example)
	return root
}

func runPipeline(paramFile string, snapIdx, ranks, threads int) error {
	cfg, err := config.ReadFile(paramFile)
	if err != nil {
		return err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Flags.Verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := zcfg.Build()
	if err != nil {
		return err
	}
	defer log.Sync()

	fg := &fileGroup{}
	defer fg.close()
	if cfg.Flags.Profile {
		path := fmt.Sprintf("%s_%d.prof", cfg.Inputs.ProfilingPath, snapIdx)
		fg.prof, err = os.Create(path)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(fg.prof); err != nil {
			return err
		}
	}

	p, err := pipeline.New(cfg, log, ranks, threads)
	if err != nil {
		return err
	}
	return p.Run(snapIdx)
}
