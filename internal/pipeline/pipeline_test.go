package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warlab/hr-datamart/internal/feed"
	"github.com/warlab/hr-datamart/internal/model"
	"github.com/warlab/hr-datamart/internal/refdata"
	"github.com/warlab/hr-datamart/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func jobRecord(entity, wid, effective string, seq int, attrs map[string]string) model.SourceRecord {
	return model.SourceRecord{
		EntityID:       entity,
		EffectiveDate:  model.MustDate(effective),
		EntryTimestamp: model.MustDate(effective).Add(9 * time.Hour),
		SequenceNumber: seq,
		TransactionWID: wid,
		Attrs:          attrs,
	}
}

func stageWorker(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.ReplaceSourceRecords(ctx, "worker_job", []model.SourceRecord{
		jobRecord("E1", "W1", "2024-01-01", 1, map[string]string{
			model.AttrJobProfile:   "JP1",
			model.AttrWorkerStatus: "Active",
		}),
		jobRecord("E1", "W2", "2024-03-01", 1, map[string]string{
			model.AttrJobProfile:   "JP2",
			model.AttrWorkerStatus: "Active",
		}),
	}))
	require.NoError(t, st.ReplaceSourceRecords(ctx, "worker_org_company", []model.SourceRecord{
		jobRecord("E1", "W3", "2024-01-01", 1, map[string]string{
			model.AttrCompany: "C1",
		}),
	}))
	require.NoError(t, st.ReplaceDimension(ctx, refdata.DimCompany, []refdata.Entry{
		{SurrogateKey: 100, NaturalKey: "C1", ValidFrom: model.DimensionEpoch, ValidTo: model.OpenEndDate},
	}))
}

func TestRunEndToEnd(t *testing.T) {
	st := newStore(t)
	stageWorker(t, st)
	ctx := context.Background()

	p := New(st, feed.DefaultRegistry(), Options{Workers: 2, SnapshotMonths: 2})
	result, err := p.Run(ctx, model.MustDate("2024-03-15"))
	require.NoError(t, err)

	assert.Equal(t, store.MergeStats{Inserted: 2}, result.Stats)
	assert.True(t, result.Report.Passed)

	timelines, err := st.CurrentTimelines(ctx)
	require.NoError(t, err)
	require.Len(t, timelines["E1"], 2)
	assert.Equal(t, "JP1", timelines["E1"][0].Attr(model.AttrJobProfile))
	assert.Equal(t, "C1", timelines["E1"][0].Attr(model.AttrCompany))
	// The org feed never redelivers, so its contribution carries forward.
	assert.Equal(t, "C1", timelines["E1"][1].Attr(model.AttrCompany))

	facts, err := st.ChangeFacts(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 1, facts[0].Metrics["job_change_count"])
	assert.Equal(t, result.Run.RunID, facts[0].RunID)

	// February month-end falls inside the January version's window.
	rows, err := st.SnapshotRows(ctx, model.MustDate("2024-02-29"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].CompanyKey)
	assert.Equal(t, int64(100), *rows[0].CompanyKey)

	latest, err := st.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, model.RunStatusComplete, latest.Status)
	assert.Contains(t, string(latest.Report), "passed: true")
}

func TestRunIsIdempotent(t *testing.T) {
	st := newStore(t)
	stageWorker(t, st)
	ctx := context.Background()

	p := New(st, feed.DefaultRegistry(), Options{Workers: 2, SnapshotMonths: 2})
	_, err := p.Run(ctx, model.MustDate("2024-03-15"))
	require.NoError(t, err)

	result, err := p.Run(ctx, model.MustDate("2024-03-15"))
	require.NoError(t, err)
	assert.Equal(t, store.MergeStats{Unchanged: 2}, result.Stats)
	assert.True(t, result.Report.Passed)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunAppliesRescinds(t *testing.T) {
	st := newStore(t)
	stageWorker(t, st)
	ctx := context.Background()

	// Cancel the March job event before running.
	require.NoError(t, st.ReplaceRescinds(ctx, []model.Rescind{
		{TransactionWID: "W2", SourceTable: "worker_job_events", RescindedMoment: model.MustDate("2024-03-05")},
	}))

	p := New(st, feed.DefaultRegistry(), Options{Workers: 2, SnapshotMonths: 2})
	result, err := p.Run(ctx, model.MustDate("2024-03-15"))
	require.NoError(t, err)
	assert.Equal(t, store.MergeStats{Inserted: 1}, result.Stats)

	timelines, err := st.CurrentTimelines(ctx)
	require.NoError(t, err)
	require.Len(t, timelines["E1"], 1)
	assert.Equal(t, "JP1", timelines["E1"][0].Attr(model.AttrJobProfile))

	facts, err := st.ChangeFacts(ctx, "E1")
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestRunFailsOnIndistinguishableRecords(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	// Same entity, date, entry moment and sequence: no winner exists.
	require.NoError(t, st.ReplaceSourceRecords(ctx, "worker_job", []model.SourceRecord{
		jobRecord("E9", "W8", "2024-02-01", 1, map[string]string{model.AttrJobProfile: "JP1"}),
		jobRecord("E9", "W9", "2024-02-01", 1, map[string]string{model.AttrJobProfile: "JP2"}),
	}))

	p := New(st, feed.DefaultRegistry(), Options{Workers: 2, SnapshotMonths: 2})
	_, err := p.Run(ctx, model.MustDate("2024-03-15"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indistinguishable")

	latest, err := st.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, model.RunStatusFailed, latest.Status)
	assert.Contains(t, latest.Error, "indistinguishable")
}
