package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/warlab/hr-datamart/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the latest run's completion report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.LatestRun(ctx)
		if err != nil {
			return eris.Wrap(err, "latest run")
		}
		if run == nil {
			fmt.Fprintln(os.Stderr, "No runs recorded.")
			return nil
		}

		fmt.Fprintf(os.Stdout, "run: %s\nbatch: %s\ndata_date: %s\nstatus: %s\n",
			run.RunID, run.BatchID, run.DataDate.Format("2006-01-02"), run.Status)
		switch run.Status {
		case model.RunStatusFailed:
			fmt.Fprintf(os.Stdout, "error: %s\n", run.Error)
		case model.RunStatusComplete:
			fmt.Fprintln(os.Stdout, "---")
			fmt.Fprint(os.Stdout, string(run.Report))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
