package cmd

import (
	"fmt"

	humanize "github.com/dustin/go-humanize"
	"github.com/shenwei356/stable"
	"github.com/spf13/cobra"

	"github.com/tlemane/kmtricks-sub004/fof"
	"github.com/tlemane/kmtricks-sub004/sched"
)

// infosCmd represents
var infosCmd = &cobra.Command{
	Use:     "infos",
	Aliases: []string{"info"},
	Short:   "print a run's config and pipeline state",
	Long: `print a run's config and pipeline state

Reads config.kmtc and state.kmtc under --run-dir and renders them as
plain tables: one row of run parameters, then, when --fof is given, one
row per sample showing whether its partitioning is done and how many of
its partitions have been counted out of the total.

`,
	Run: func(cmd *cobra.Command, args []string) {
		runDir := getFlagString(cmd, "run-dir")
		cfg, layout := loadRunConfig(runDir)

		style := &stable.TableStyle{
			Name:      "plain",
			HeaderRow: stable.RowStyle{Begin: "", Sep: "  ", End: ""},
			DataRow:   stable.RowStyle{Begin: "", Sep: "  ", End: ""},
			Padding:   "",
		}

		cfgTbl := stable.New()
		cfgTbl.HeaderWithFormat([]stable.Column{
			{Header: "k", Align: stable.AlignRight},
			{Header: "m", Align: stable.AlignRight},
			{Header: "partitions", Align: stable.AlignRight},
			{Header: "stripe-width", Align: stable.AlignRight},
			{Header: "count-width", Align: stable.AlignRight},
			{Header: "memory-budget", Align: stable.AlignRight},
			{Header: "run-dir", Align: stable.AlignLeft},
		})
		cfgTbl.AddRow([]interface{}{
			cfg.K, cfg.M, humanize.Comma(int64(cfg.P)),
			humanize.Comma(int64(cfg.W)), cfg.CountWidth, humanize.Bytes(uint64(cfg.MemoryBudget)), cfg.RunDir,
		})
		fmt.Print(string(cfgTbl.Render(style)))

		fofPath := getFlagString(cmd, "fof")
		if fofPath == "" {
			return
		}
		ff, err := fof.Parse(fofPath)
		checkError(err)

		state, err := sched.Load(layout.StateFile(), len(ff.Samples), cfg.P)
		checkError(err)

		stateTbl := stable.New()
		stateTbl.HeaderWithFormat([]stable.Column{
			{Header: "sample", Align: stable.AlignLeft},
			{Header: "partitioned", Align: stable.AlignLeft},
			{Header: "counted", Align: stable.AlignRight},
			{Header: "total", Align: stable.AlignRight},
		})
		for i, sample := range ff.Samples {
			counted := 0
			for p := 0; p < cfg.P; p++ {
				if state.IsCountDone(i, p) {
					counted++
				}
			}
			stateTbl.AddRow([]interface{}{
				sample.ID,
				boolStr("yes", "no", state.IsSuperkDone(i)),
				counted,
				cfg.P,
			})
		}
		fmt.Print(string(stateTbl.Render(style)))
	},
}

func boolStr(t, f string, v bool) string {
	if v {
		return t
	}
	return f
}

func init() {
	RootCmd.AddCommand(infosCmd)

	infosCmd.Flags().StringP("fof", "f", "", "file of files listing input samples (required to show per-sample state)")
}
