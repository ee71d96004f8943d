package cmd

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tlemane/kmtricks-sub004/fof"
	"github.com/tlemane/kmtricks-sub004/kmer"
	"github.com/tlemane/kmtricks-sub004/kmerge"
	"github.com/tlemane/kmtricks-sub004/kmio"
	"github.com/tlemane/kmtricks-sub004/runconfig"
)

// mergeCmd represents
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "merge every sample's counted partitions into a joint matrix",
	Long: `merge every sample's counted partitions into a joint matrix

For every partition, opens each sample's counted file as a kmerge.Cursor
and heap-merges them into one row per distinct key, keeping only rows
that clear the --min-samples solidity filter, and writes matrix/
partition_<p>.mat under --run-dir.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		runtime.GOMAXPROCS(opt.NumCPUs)

		runDir := getFlagString(cmd, "run-dir")
		cfg, layout := loadRunConfig(runDir)

		ff, err := fof.Parse(getFlagString(cmd, "fof"))
		checkError(err)

		flavor := parseFlavor(getFlagString(cmd, "flavor"))
		minSamples := getFlagPositiveInt(cmd, "min-samples")
		solidity := kmerge.AtLeastNSamples(minSamples)

		checkError(os.MkdirAll(layout.MatrixDir(), 0o755))

		for p := 0; p < cfg.P; p++ {
			n, err := mergePartition(cfg, layout, ff.Samples, p, solidity, flavor)
			checkError(err)
			if opt.Verbose {
				log.Infof("partition %d: wrote %d rows", p, n)
			}
		}
	},
}

// mergePartition opens partition p's counted file for every sample,
// merges them, and writes the resulting matrix file.
func mergePartition(cfg *runconfig.Config, layout runconfig.Layout, samples []fof.Sample, p int, solidity kmerge.Solidity, flavor kmerge.Flavor) (int64, error) {
	spec, err := kmer.NewSpec(cfg.K)
	if err != nil {
		return 0, err
	}
	keyWidth := 8 * spec.Words // KmerMode counted files key every word, not just the low 64 bits

	cursors := make([]*kmerge.Cursor, 0, len(samples))
	files := make([]*os.File, 0, len(samples))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	for _, sample := range samples {
		f, err := os.Open(layout.CountedFile(sample.ID, p))
		if err != nil {
			return 0, err
		}
		files = append(files, f)
		if _, err := kmio.ReadHeader(f, kmio.MagicCounted); err != nil {
			return 0, err
		}
		cursors = append(cursors, kmerge.NewCursor(sample.ID, f, uint64(sample.MinCount), cfg.CountWidth, keyWidth))
	}

	out, err := os.Create(layout.MatrixFile(p))
	if err != nil {
		return 0, err
	}
	defer out.Close()

	return kmerge.Merge(cursors, solidity, flavor, out, cfg.W)
}

func init() {
	RootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringP("fof", "f", "", "file of files listing input samples")
	mergeCmd.Flags().StringP("flavor", "", "count", "output flavor: count, presence or bloom")
	mergeCmd.Flags().IntP("min-samples", "n", 1, "minimum number of samples a k-mer must be solid in")
}

func parseFlavor(s string) kmerge.Flavor {
	switch s {
	case "presence":
		return kmerge.FlavorPresence
	case "bloom":
		return kmerge.FlavorBloom
	default:
		return kmerge.FlavorCount
	}
}
