package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warlab/hr-datamart/internal/feed"
	"github.com/warlab/hr-datamart/internal/loader"
	"github.com/warlab/hr-datamart/internal/refdata"
)

var loadDir string

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Stage delivered CSV files into the staging tables",
	Long:  "Looks for <feed>.csv, <dimension>.csv and rescinds.csv in the data directory and replaces the corresponding staging tables. Missing files are skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dir := loadDir
		if dir == "" {
			dir = cfg.Data.Dir
		}

		reg := feed.DefaultRegistry()
		l := loader.New(st, reg)
		staged := 0

		for _, name := range reg.Names() {
			path := filepath.Join(dir, name+".csv")
			if _, err := os.Stat(path); os.IsNotExist(err) {
				zap.L().Warn("feed file missing, skipping", zap.String("feed", name), zap.String("path", path))
				continue
			}
			n, err := l.LoadFeedCSV(ctx, name, path)
			if err != nil {
				return err
			}
			staged += n
		}

		for _, spec := range refdata.Dimensions() {
			path := filepath.Join(dir, spec.Name+".csv")
			if _, err := os.Stat(path); os.IsNotExist(err) {
				zap.L().Warn("dimension file missing, skipping", zap.String("dimension", spec.Name), zap.String("path", path))
				continue
			}
			n, err := l.LoadDimensionCSV(ctx, spec, path)
			if err != nil {
				return err
			}
			staged += n
		}

		rescindPath := filepath.Join(dir, "rescinds.csv")
		if _, err := os.Stat(rescindPath); err == nil {
			n, err := l.LoadRescindsCSV(ctx, rescindPath)
			if err != nil {
				return err
			}
			staged += n
		}

		zap.L().Info("staging load complete", zap.String("dir", dir), zap.Int("records", staged))
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadDir, "dir", "", "data directory (default from config)")
	rootCmd.AddCommand(loadCmd)
}
