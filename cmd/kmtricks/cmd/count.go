package cmd

import (
	"context"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tlemane/kmtricks-sub004/fof"
	"github.com/tlemane/kmtricks-sub004/kcount"
	"github.com/tlemane/kmtricks-sub004/kmio"
	"github.com/tlemane/kmtricks-sub004/partition"
	"github.com/tlemane/kmtricks-sub004/repart"
	"github.com/tlemane/kmtricks-sub004/runconfig"
)

// coutCmd represents
var coutCmd = &cobra.Command{
	Use:   "count",
	Short: "partition and count k-mers of one or more samples",
	Long: `partition and count k-mers of one or more samples

Splits every sample named in --fof into per-partition super-k-mer files
under --run-dir, then counts each partition's canonical k-mers into a
counted file plus an abundance histogram.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		runtime.GOMAXPROCS(opt.NumCPUs)

		runDir := getFlagString(cmd, "run-dir")
		cfg, layout := loadRunConfig(runDir)
		table := loadRepartTable(layout)

		ff, err := fof.Parse(getFlagString(cmd, "fof"))
		checkError(err)

		mode := parseMode(getFlagString(cmd, "mode"))
		threshold := getFlagUint64(cmd, "min-count")

		only := getFlagString(cmd, "sample")

		for _, sample := range ff.Samples {
			if only != "" && sample.ID != only {
				continue
			}
			if opt.Verbose {
				log.Infof("partitioning sample %s", sample.ID)
			}
			checkError(partition.Run(context.Background(), sample, table, *cfg))
			checkError(countSample(cfg, layout, sample, mode, threshold))
		}
	},
}

func countSample(cfg *runconfig.Config, layout runconfig.Layout, sample fof.Sample, mode kcount.Mode, threshold uint64) error {
	if err := os.MkdirAll(layout.CountedDir(sample.ID), 0o755); err != nil {
		return err
	}
	hist := histoForSample()
	for p := 0; p < cfg.P; p++ {
		in, err := os.Open(layout.SuperkFile(sample.ID, p))
		if err != nil {
			return err
		}
		if _, err := kmio.ReadHeader(in, kmio.MagicSuperk); err != nil {
			in.Close()
			return err
		}

		out, err := os.Create(layout.CountedFile(sample.ID, p))
		if err != nil {
			in.Close()
			return err
		}

		h, err := kcount.CountPartition([]io.Reader{in}, cfg.K, mode, cfg.CountWidth, threshold, cfg.MemoryBudget, out, cfg.W)
		in.Close()
		cerr := out.Close()
		if err != nil {
			return err
		}
		if cerr != nil {
			return cerr
		}
		mergeHistogram(hist, h)
	}
	outFile, err := os.Create(layout.HistogramFile(sample.ID))
	if err != nil {
		return err
	}
	defer outFile.Close()
	return hist.WriteTo(outFile)
}

func init() {
	RootCmd.AddCommand(coutCmd)

	coutCmd.Flags().StringP("fof", "f", "", "file of files listing input samples")
	coutCmd.Flags().StringP("sample", "s", "", "only count the sample with this id (default: all samples in the fof)")
	coutCmd.Flags().StringP("mode", "", "kmer", "output flavor: kmer, hash or bloom")
	coutCmd.Flags().Uint64P("min-count", "c", 0, "minimum abundance to keep a k-mer")
}

func parseMode(s string) kcount.Mode {
	switch s {
	case "hash":
		return kcount.HashMode
	case "bloom":
		return kcount.BloomMode
	default:
		return kcount.KmerMode
	}
}

func loadRunConfig(runDir string) (*runconfig.Config, runconfig.Layout) {
	probe := (&runconfig.Config{RunDir: runDir}).Layout()
	cfgFile, err := os.Open(probe.ConfigFile())
	checkError(err)
	defer cfgFile.Close()
	cfg, err := runconfig.ReadConfigFrom(cfgFile)
	checkError(err)
	return cfg, cfg.Layout()
}

func loadRepartTable(layout runconfig.Layout) *repart.Table {
	f, err := os.Open(layout.RepartitionFile())
	checkError(err)
	defer f.Close()
	table, err := repart.ReadTableFrom(f)
	checkError(err)
	return table
}
