package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warlab/hr-datamart/internal/model"
	"github.com/warlab/hr-datamart/internal/refdata"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStagingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []model.SourceRecord{
		{
			EntityID:       "E1",
			EffectiveDate:  model.MustDate("2024-03-01"),
			EntryTimestamp: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
			SequenceNumber: 2,
			TransactionWID: "W1",
			Attrs:          map[string]string{model.AttrJobProfile: "JP1"},
		},
	}
	require.NoError(t, s.ReplaceSourceRecords(ctx, "worker_job", records))

	got, err := s.SourceRecords(ctx, "worker_job")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, records[0].EntityID, got[0].EntityID)
	assert.Equal(t, records[0].EffectiveDate, got[0].EffectiveDate)
	assert.True(t, records[0].EntryTimestamp.Equal(got[0].EntryTimestamp))
	assert.Equal(t, records[0].Attrs, got[0].Attrs)

	// Replace empties and reloads.
	require.NoError(t, s.ReplaceSourceRecords(ctx, "worker_job", nil))
	got, err = s.SourceRecords(ctx, "worker_job")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteRescindsAndDimensions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rescinds := []model.Rescind{
		{TransactionWID: "W1", SourceTable: "worker_job_events", RescindedMoment: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, s.ReplaceRescinds(ctx, rescinds))
	gotRescinds, err := s.Rescinds(ctx)
	require.NoError(t, err)
	require.Len(t, gotRescinds, 1)
	assert.Equal(t, "W1", gotRescinds[0].TransactionWID)

	entries := []refdata.Entry{
		{SurrogateKey: 1, NaturalKey: "C1", ValidFrom: model.DimensionEpoch, ValidTo: model.OpenEndDate},
	}
	require.NoError(t, s.ReplaceDimension(ctx, refdata.DimCompany, entries))
	gotEntries, err := s.DimensionEntries(ctx, refdata.DimCompany)
	require.NoError(t, err)
	require.Len(t, gotEntries, 1)
	assert.Equal(t, int64(1), gotEntries[0].SurrogateKey)
	assert.Equal(t, model.DimensionEpoch, gotEntries[0].ValidFrom)
}

func TestSQLiteMergeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	initial := []model.EntityVersion{
		mkVersion("E1", "2024-01-01", "", map[string]string{"a": "1"}, true),
	}
	stats, err := s.MergeVersions(ctx, "run-1", initial)
	require.NoError(t, err)
	assert.Equal(t, MergeStats{Inserted: 1}, stats)

	// Re-running the same batch is a no-op.
	stats, err = s.MergeVersions(ctx, "run-2", initial)
	require.NoError(t, err)
	assert.Equal(t, MergeStats{Unchanged: 1}, stats)

	// A new version closes the current one.
	next := []model.EntityVersion{
		mkVersion("E1", "2024-01-01", "2024-02-29", map[string]string{"a": "1"}, false),
		mkVersion("E1", "2024-03-01", "", map[string]string{"a": "2"}, true),
	}
	stats, err = s.MergeVersions(ctx, "run-3", next)
	require.NoError(t, err)
	assert.Equal(t, MergeStats{Inserted: 1, Closed: 1}, stats)

	timelines, err := s.CurrentTimelines(ctx)
	require.NoError(t, err)
	require.Len(t, timelines["E1"], 2)
	versions := timelines["E1"]
	assert.Equal(t, model.MustDate("2024-01-01"), versions[0].EffectiveFrom)
	assert.Equal(t, model.MustDate("2024-02-29"), versions[0].EffectiveTo)
	assert.False(t, versions[0].IsCurrent)
	assert.True(t, versions[1].IsCurrent)
	assert.True(t, model.IsOpenEnded(versions[1].EffectiveTo))

	// Content change supersedes in place.
	changed := []model.EntityVersion{
		next[0],
		mkVersion("E1", "2024-03-01", "", map[string]string{"a": "3"}, true),
	}
	stats, err = s.MergeVersions(ctx, "run-4", changed)
	require.NoError(t, err)
	assert.Equal(t, MergeStats{Inserted: 1, Unchanged: 1}, stats)

	timelines, err = s.CurrentTimelines(ctx)
	require.NoError(t, err)
	require.Len(t, timelines["E1"], 2)
	assert.Equal(t, "3", timelines["E1"][1].Attrs["a"])

	// A vanished key soft-deletes; the survivor reopens.
	stats, err = s.MergeVersions(ctx, "run-5", []model.EntityVersion{
		mkVersion("E1", "2024-01-01", "", map[string]string{"a": "1"}, true),
	})
	require.NoError(t, err)
	assert.Equal(t, MergeStats{Closed: 1, Deleted: 1}, stats)

	timelines, err = s.CurrentTimelines(ctx)
	require.NoError(t, err)
	require.Len(t, timelines["E1"], 1)
	assert.True(t, timelines["E1"][0].IsCurrent)

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["entity_version"])
}

func TestSQLiteMergeExactlyOneCurrentPerEntity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := []model.EntityVersion{
		mkVersion("E1", "2024-01-01", "2024-02-29", map[string]string{"a": "1"}, false),
		mkVersion("E1", "2024-03-01", "", map[string]string{"a": "2"}, true),
		mkVersion("E2", "2024-01-01", "", map[string]string{"a": "3"}, true),
	}
	_, err := s.MergeVersions(ctx, "run-1", batch)
	require.NoError(t, err)

	timelines, err := s.CurrentTimelines(ctx)
	require.NoError(t, err)
	for entity, versions := range timelines {
		currents := 0
		for _, v := range versions {
			if v.IsCurrent {
				currents++
			}
		}
		assert.Equal(t, 1, currents, "entity %s", entity)
	}
}

func TestSQLiteChangeFactsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	facts := []model.ChangeFact{
		{
			EntityID:           "E1",
			EffectiveDate:      model.MustDate("2024-03-01"),
			PriorEffectiveDate: model.MustDate("2024-01-01"),
			Attrs:              map[string]string{"a": "2"},
			PriorAttrs:         map[string]string{"a": "1"},
			Metrics:            map[string]int{"job_change_count": 1},
		},
	}
	require.NoError(t, s.ReplaceChangeFacts(ctx, "run-1", facts))

	got, err := s.ChangeFacts(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Metrics["job_change_count"])
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "1", got[0].PriorAttrs["a"])
}

func TestSQLiteSnapshotReplaceIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	date := model.MustDate("2024-03-31")
	key := int64(7)
	rows := []model.SnapshotRow{
		{SnapshotDate: date, EntityID: "E1", CompanyKey: &key, Status: "Active", Headcount: 1},
		{SnapshotDate: date, EntityID: "E2", Status: "On Leave", Headcount: 1},
	}

	require.NoError(t, s.ReplaceSnapshotWindow(ctx, "run-1", []time.Time{date}, rows))
	first, err := s.SnapshotRows(ctx, date)
	require.NoError(t, err)

	require.NoError(t, s.ReplaceSnapshotWindow(ctx, "run-1", []time.Time{date}, rows))
	second, err := s.SnapshotRows(ctx, date)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, second, 2)
	require.NotNil(t, second[0].CompanyKey)
	assert.Equal(t, int64(7), *second[0].CompanyKey)
	assert.Nil(t, second[1].CompanyKey)
}

func TestSQLiteRunLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := model.Run{
		RunID:     "run-1",
		BatchID:   "batch_20240301T090000",
		DataDate:  model.MustDate("2024-03-01"),
		StartedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.StartRun(ctx, run))
	require.NoError(t, s.CompleteRun(ctx, "run-1", []byte("status: ok")))

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, model.RunStatusComplete, latest.Status)
	assert.Equal(t, "status: ok", string(latest.Report))
	require.NotNil(t, latest.CompletedAt)

	run2 := run
	run2.RunID = "run-2"
	run2.StartedAt = run.StartedAt.Add(time.Hour)
	require.NoError(t, s.StartRun(ctx, run2))
	require.NoError(t, s.FailRun(ctx, "run-2", "staging load failed"))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, "staging load failed", runs[0].Error)

	assert.Error(t, s.CompleteRun(ctx, "run-9", nil))
	assert.Error(t, s.FailRun(ctx, "run-9", "x"))
}
