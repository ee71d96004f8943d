package cmd

import (
	"context"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tlemane/kmtricks-sub004/fof"
	"github.com/tlemane/kmtricks-sub004/kmerge"
	"github.com/tlemane/kmtricks-sub004/partition"
	"github.com/tlemane/kmtricks-sub004/repart"
	"github.com/tlemane/kmtricks-sub004/runconfig"
	"github.com/tlemane/kmtricks-sub004/sched"
)

// pipelineCmd represents
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "run repart, partition, count and merge for a whole file of files",
	Long: `run repart, partition, count and merge for a whole file of files

Trains and persists the repartition table, then drives a sched.Pool
through every sample's partition+count and every partition's merge,
saving state.kmtc as each stage completes. A rerun does not read
state.kmtc back: it retrains the table and runs every stage again.

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
		runDir := getFlagString(cmd, "run-dir")
		fraction := getFlagFloat64(cmd, "sample-fraction")
		mode := parseMode(getFlagString(cmd, "mode"))
		flavor := parseFlavor(getFlagString(cmd, "flavor"))
		threshold := getFlagUint64(cmd, "min-count")
		minSamples := getFlagPositiveInt(cmd, "min-samples")
		solidity := kmerge.AtLeastNSamples(minSamples)

		cfg, err := runconfig.Derive(len(ff.Samples), 0,
			runconfig.WithK(k), runconfig.WithM(m),
			runconfig.WithPartitionCap(p), runconfig.WithRunDir(runDir))
		checkError(err)
		cfg.P = p

		warnIfRunDirNonEmpty(runDir)

		layout := cfg.Layout()
		checkError(layout.EnsureDirs(sampleIDs(ff.Samples), cfg.P))

		state := sched.NewState(layout.StateFile(), len(ff.Samples), cfg.P)

		if opt.Verbose {
			log.Infof("training repartition table: k=%d m=%d p=%d", k, m, p)
		}
		src := newFastxSampleSource(ff.Samples, k)
		table, _, err := repart.Train(src, k, m, p, fraction)
		checkError(err)

		cfgFile, err := os.Create(layout.ConfigFile())
		checkError(err)
		err = cfg.WriteTo(cfgFile)
		cfgFile.Close()
		checkError(err)
		state.ConfigDone()

		repartFile, err := os.Create(layout.RepartitionFile())
		checkError(err)
		_, err = table.WriteTo(repartFile)
		repartFile.Close()
		checkError(err)
		state.RepartDone()
		checkError(state.Save())

		pool := sched.NewPool(opt.NumCPUs)
		stop := sched.NotifyStop(pool)
		defer stop()

		// Build every Task up front, wiring Deps by pointer, before any
		// Add() call: Pool.Add both registers a task's dependency
		// callbacks and (once deps are empty) enqueues it for a worker
		// to pick up, so a task must be Add()ed only after every task
		// that depends on it has already registered — otherwise a fast
		// worker could finish a dependency before its dependent's
		// callback was attached, and that dependent would never run.
		partitionTasks := make([]*sched.Task, len(ff.Samples))
		countTasks := make([]*sched.Task, len(ff.Samples))
		for i, sample := range ff.Samples {
			i, sample := i, sample
			partitionTasks[i] = &sched.Task{
				Name:     "partition:" + sample.ID,
				Priority: 2,
				Run: func() error {
					if opt.Verbose {
						log.Infof("partitioning %s", sample.ID)
					}
					return partition.Run(context.Background(), sample, table, *cfg)
				},
				Finalize: func() error {
					state.SuperkDone(i)
					return state.Save()
				},
			}
			countTasks[i] = &sched.Task{
				Name:     "count:" + sample.ID,
				Priority: 1,
				Deps:     []*sched.Task{partitionTasks[i]},
				Run: func() error {
					if opt.Verbose {
						log.Infof("counting %s", sample.ID)
					}
					return countSample(cfg, layout, sample, mode, threshold)
				},
				Finalize: func() error {
					for pp := 0; pp < cfg.P; pp++ {
						state.CountDone(i, pp)
					}
					return state.Save()
				},
			}
		}

		mergeTasks := make([]*sched.Task, cfg.P)
		for p := 0; p < cfg.P; p++ {
			p := p
			mergeTasks[p] = &sched.Task{
				Name:     "merge:partition",
				Priority: 0,
				Deps:     countTasks,
				Run: func() error {
					if opt.Verbose {
						log.Infof("merging partition %d", p)
					}
					_, err := mergePartition(cfg, layout, ff.Samples, p, solidity, flavor)
					return err
				},
				Finalize: func() error {
					state.MergeDone(p)
					return state.Save()
				},
			}
		}

		// Add leaves-last: every dependent is registered before the
		// task it depends on is handed to the pool.
		for _, t := range mergeTasks {
			pool.Add(t)
		}
		for _, t := range countTasks {
			pool.Add(t)
		}
		for _, t := range partitionTasks {
			pool.Add(t)
		}

		checkError(pool.JoinAll())
	},
}

func init() {
	RootCmd.AddCommand(pipelineCmd)

	pipelineCmd.Flags().StringP("fof", "f", "", "file of files listing input samples")
	pipelineCmd.Flags().IntP("kmer-len", "k", 31, "kmer length")
	pipelineCmd.Flags().IntP("minimizer-len", "m", 10, "minimizer (m-mer) length")
	pipelineCmd.Flags().IntP("partitions", "p", 4, "number of partitions")
	pipelineCmd.Flags().Float64P("sample-fraction", "", repart.DefaultSampleFraction, "fraction of reads sampled to train the repartition table")
	pipelineCmd.Flags().StringP("mode", "", "kmer", "counted output flavor: kmer, hash or bloom")
	pipelineCmd.Flags().StringP("flavor", "", "count", "merged output flavor: count, presence or bloom")
	pipelineCmd.Flags().IntP("min-samples", "n", 1, "minimum number of samples a k-mer must be solid in")
	pipelineCmd.Flags().Uint64P("min-count", "c", 0, "minimum abundance to keep a k-mer")
}
