package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "kmtricks",
	Short: "partitioned, minimizer-based k-mer counting and merging",
	Long: fmt.Sprintf(`kmtricks - partitioned, minimizer-based k-mer counting and merging

A run is pinned to one runconfig.Config for its lifetime: 'repart' trains
the m-mer repartition table, 'count' partitions and counts the samples
of a file of files (all of them, or only the one named by --sample),
'merge' builds the joint matrix across samples, and 'pipeline' drives all
three end to end through a worker pool. 'infos' and 'dump' inspect a run's
on-disk state.

Version: %s
`, VERSION),
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}

func init() {
	defaultThreads := runtime.NumCPU()
	if defaultThreads > 2 {
		defaultThreads = 2
	}

	RootCmd.PersistentFlags().IntP("threads", "j", defaultThreads, "number of CPUs to use")
	RootCmd.PersistentFlags().BoolP("verbose", "", false, "print verbose information")
	RootCmd.PersistentFlags().StringP("run-dir", "d", ".", "run directory holding config/repartition/state and partition storage")
}

// VERSION is the module's release tag, reported in the root command's
// help text.
const VERSION = "0.1.0"
