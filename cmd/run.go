package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warlab/hr-datamart/internal/feed"
	"github.com/warlab/hr-datamart/internal/pipeline"
)

var runDataDate string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one integration run over the staged data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dataDate := time.Now().UTC()
		if runDataDate != "" {
			dataDate, err = time.Parse("2006-01-02", runDataDate)
			if err != nil {
				return eris.Wrapf(err, "parse data date %q", runDataDate)
			}
		}

		p := pipeline.New(st, feed.DefaultRegistry(), pipeline.Options{
			Workers:        cfg.Pipeline.Workers,
			SnapshotMonths: cfg.Pipeline.SnapshotMonths,
		})

		result, err := p.Run(ctx, dataDate)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("integration run finished",
			zap.String("run_id", result.Run.RunID),
			zap.Bool("passed", result.Report.Passed),
			zap.Int("inserted", result.Stats.Inserted),
			zap.Int("closed", result.Stats.Closed),
			zap.Int("deleted", result.Stats.Deleted),
			zap.Int("unchanged", result.Stats.Unchanged),
		)

		raw, err := result.Report.Render()
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, string(raw))

		if !result.Report.Passed {
			return eris.New("run completed with failed invariants")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runDataDate, "data-date", "", "business date of the delivery, YYYY-MM-DD (default today)")
	rootCmd.AddCommand(runCmd)
}
