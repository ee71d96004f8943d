package cmd

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tlemane/kmtricks-sub004/fof"
	"github.com/tlemane/kmtricks-sub004/repart"
	"github.com/tlemane/kmtricks-sub004/runconfig"
)

// repartCmd represents
var repartCmd = &cobra.Command{
	Use:   "repart",
	Short: "train and persist a repartition table",
	Long: `train and persist a repartition table

Samples a fraction of the reads named in a file of files, tallies m-mer
frequency, and bin-packs the 4^m possible m-mers across P partitions by
descending frequency (longest-processing-time list scheduling), writing
config.kmtc and repartition.kmtc under --run-dir.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		runtime.GOMAXPROCS(opt.NumCPUs)

		fofPath := getFlagString(cmd, "fof")
		ff, err := fof.Parse(fofPath)
		checkError(err)
		if len(ff.Samples) == 0 {
			checkError(errNoSamples)
		}
		if opt.Verbose {
			if n, err := countFofLines(fofPath); err == nil {
				log.Infof("file of files has %d lines, %d samples", n, len(ff.Samples))
			}
		}

		k := getFlagPositiveInt(cmd, "kmer-len")
		m := getFlagPositiveInt(cmd, "minimizer-len")
		p := getFlagPositiveInt(cmd, "partitions")
		fraction := getFlagFloat64(cmd, "sample-fraction")
		runDir := getFlagString(cmd, "run-dir")

		cfg, err := runconfig.Derive(len(ff.Samples), 0,
			runconfig.WithK(k), runconfig.WithM(m),
			runconfig.WithPartitionCap(p), runconfig.WithRunDir(runDir))
		checkError(err)
		cfg.P = p

		warnIfRunDirNonEmpty(runDir)

		layout := cfg.Layout()
		checkError(layout.EnsureDirs(sampleIDs(ff.Samples), cfg.P))

		if opt.Verbose {
			log.Infof("training repartition table: k=%d m=%d p=%d fraction=%.3f", k, m, p, fraction)
		}

		src := newFastxSampleSource(ff.Samples, k)
		table, _, err := repart.Train(src, k, m, p, fraction)
		checkError(err)

		configFile, err := os.Create(layout.ConfigFile())
		checkError(err)
		err = cfg.WriteTo(configFile)
		configFile.Close()
		checkError(err)

		repartFile, err := os.Create(layout.RepartitionFile())
		checkError(err)
		_, err = table.WriteTo(repartFile)
		repartFile.Close()
		checkError(err)

		if opt.Verbose {
			log.Infof("wrote %s and %s", layout.ConfigFile(), layout.RepartitionFile())
		}
	},
}

func init() {
	RootCmd.AddCommand(repartCmd)

	repartCmd.Flags().StringP("fof", "f", "", "file of files listing input samples")
	repartCmd.Flags().IntP("kmer-len", "k", 31, "kmer length")
	repartCmd.Flags().IntP("minimizer-len", "m", 10, "minimizer (m-mer) length")
	repartCmd.Flags().IntP("partitions", "p", 4, "number of partitions")
	repartCmd.Flags().Float64P("sample-fraction", "", repart.DefaultSampleFraction, "fraction of reads sampled to train the table")
}

func sampleIDs(samples []fof.Sample) []string {
	ids := make([]string, len(samples))
	for i, s := range samples {
		ids[i] = s.ID
	}
	return ids
}
