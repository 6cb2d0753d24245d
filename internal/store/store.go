// Package store persists the staging tables, the bitemporal version store,
// movement facts, snapshots and the run log, behind one interface with
// postgres and sqlite backends.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/warlab/hr-datamart/internal/model"
	"github.com/warlab/hr-datamart/internal/refdata"
)

// Store is the persistence boundary of the pipeline.
type Store interface {
	Migrate(ctx context.Context) error
	Close() error

	// Staging. Loads replace a table wholesale; staged rows are immutable
	// between loads.
	ReplaceSourceRecords(ctx context.Context, feedName string, records []model.SourceRecord) error
	SourceRecords(ctx context.Context, feedName string) ([]model.SourceRecord, error)
	ReplaceRescinds(ctx context.Context, rescinds []model.Rescind) error
	Rescinds(ctx context.Context) ([]model.Rescind, error)
	ReplaceDimension(ctx context.Context, dimension string, entries []refdata.Entry) error
	DimensionEntries(ctx context.Context, dimension string) ([]refdata.Entry, error)

	// Version store. MergeVersions reconciles an assembled batch against the
	// live rows in a single transaction; re-running the same batch is a no-op.
	MergeVersions(ctx context.Context, runID string, batch []model.EntityVersion) (MergeStats, error)
	CurrentTimelines(ctx context.Context) (map[string][]model.EntityVersion, error)

	// Facts and snapshots are derived tables, replaced per run.
	ReplaceChangeFacts(ctx context.Context, runID string, facts []model.ChangeFact) error
	ChangeFacts(ctx context.Context, entityID string) ([]model.ChangeFact, error)
	ReplaceSnapshotWindow(ctx context.Context, runID string, dates []time.Time, rows []model.SnapshotRow) error
	SnapshotRows(ctx context.Context, date time.Time) ([]model.SnapshotRow, error)

	// Run log.
	StartRun(ctx context.Context, run model.Run) error
	CompleteRun(ctx context.Context, runID string, report []byte) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	LatestRun(ctx context.Context) (*model.Run, error)

	// TableCounts reports row counts of the derived tables for post-run
	// validation.
	TableCounts(ctx context.Context) (map[string]int, error)
}

// MergeStats summarizes one MergeVersions call.
type MergeStats struct {
	Inserted  int `json:"inserted"`
	Closed    int `json:"closed"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// Total returns the number of batch versions accounted for.
func (s MergeStats) Total() int {
	return s.Inserted + s.Closed + s.Unchanged
}

// Config selects and configures a backend.
type Config struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
	Schema string `yaml:"schema" mapstructure:"schema"`
}

// New opens the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg)
	case "sqlite", "":
		return NewSQLite(cfg.DSN)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
