package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warlab/hr-datamart/internal/feed"
)

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "List the registered source feeds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatFeeds(os.Stdout, feed.DefaultRegistry().All())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(feedsCmd)
}

func formatFeeds(out io.Writer, specs []feed.Spec) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FEED\tSOURCE_TABLE\tSUBTYPE\tSPINE\tATTRS")
	_, _ = fmt.Fprintln(w, "----\t------------\t-------\t-----\t-----")
	for _, s := range specs {
		subtype := ""
		if s.FilterCol != "" {
			subtype = s.FilterValue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\n",
			s.Name, s.SourceTable, subtype, s.Spine, len(s.AttrCols))
	}
	_ = w.Flush()
}
