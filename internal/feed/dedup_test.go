package feed

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warlab/hr-datamart/internal/hrerr"
	"github.com/warlab/hr-datamart/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func rec(entity, wid string, effective string, entry string, seq int) model.SourceRecord {
	return model.SourceRecord{
		EntityID:       entity,
		EffectiveDate:  model.MustDate(effective),
		EntryTimestamp: mustTime(entry),
		SequenceNumber: seq,
		TransactionWID: wid,
		Attrs:          map[string]string{model.AttrActionCode: "CHG_JOB"},
	}
}

func mustTime(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func jobSpec() Spec {
	s, _ := DefaultRegistry().Get("worker_job")
	return s
}

func TestDeduplicateLatestEntryWins(t *testing.T) {
	records := []model.SourceRecord{
		rec("E1", "W1", "2024-03-01", "2024-03-01T09:00:00", 1),
		rec("E1", "W2", "2024-03-01", "2024-03-02T09:00:00", 5),
	}

	ws, err := Deduplicate(jobSpec(), records, nil)
	require.NoError(t, err)

	winner, ok := ws.WinnerOn("E1", model.MustDate("2024-03-01"))
	require.True(t, ok)
	assert.Equal(t, "W2", winner.TransactionWID)
	assert.Equal(t, 1, ws.Len())
}

func TestDeduplicateEntryTieBreaksToLowestSequence(t *testing.T) {
	records := []model.SourceRecord{
		rec("E1", "W1", "2024-03-01", "2024-03-01T09:00:00", 3),
		rec("E1", "W2", "2024-03-01", "2024-03-01T09:00:00", 1),
		rec("E1", "W3", "2024-03-01", "2024-03-01T09:00:00", 2),
	}

	ws, err := Deduplicate(jobSpec(), records, nil)
	require.NoError(t, err)

	winner, ok := ws.WinnerOn("E1", model.MustDate("2024-03-01"))
	require.True(t, ok)
	assert.Equal(t, "W2", winner.TransactionWID)
}

func TestDeduplicateResidualTieFailsRun(t *testing.T) {
	records := []model.SourceRecord{
		rec("E1", "W1", "2024-03-01", "2024-03-01T09:00:00", 1),
		rec("E1", "W2", "2024-03-01", "2024-03-01T09:00:00", 1),
	}

	_, err := Deduplicate(jobSpec(), records, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, hrerr.ErrDataIntegrity))
	assert.True(t, hrerr.IsFatal(err))
}

func TestDeduplicateDropsRescinded(t *testing.T) {
	spec := jobSpec()
	records := []model.SourceRecord{
		rec("E1", "W1", "2024-03-01", "2024-03-01T09:00:00", 1),
		rec("E1", "W2", "2024-03-01", "2024-03-05T09:00:00", 1),
	}
	rescinds := NewRescindSet([]model.Rescind{
		{TransactionWID: "W2", SourceTable: spec.SourceTable, RescindedMoment: mustTime("2024-03-06T00:00:00")},
	})

	ws, err := Deduplicate(spec, records, rescinds)
	require.NoError(t, err)

	// The rescinded later record loses everywhere, not just in its own batch.
	winner, ok := ws.WinnerOn("E1", model.MustDate("2024-03-01"))
	require.True(t, ok)
	assert.Equal(t, "W1", winner.TransactionWID)
}

func TestDeduplicateRescindOnlyGroupVanishes(t *testing.T) {
	spec := jobSpec()
	records := []model.SourceRecord{
		rec("E1", "W1", "2024-03-01", "2024-03-01T09:00:00", 1),
	}
	rescinds := NewRescindSet([]model.Rescind{
		{TransactionWID: "W1", SourceTable: spec.SourceTable},
	})

	ws, err := Deduplicate(spec, records, rescinds)
	require.NoError(t, err)
	assert.Empty(t, ws.Entities())
}

func TestDeduplicateRescindScopedToSourceTable(t *testing.T) {
	spec := jobSpec()
	records := []model.SourceRecord{
		rec("E1", "W1", "2024-03-01", "2024-03-01T09:00:00", 1),
	}
	rescinds := NewRescindSet([]model.Rescind{
		{TransactionWID: "W1", SourceTable: "worker_comp_events"},
	})

	ws, err := Deduplicate(spec, records, rescinds)
	require.NoError(t, err)
	assert.Equal(t, 1, ws.Len())
}

func TestDeduplicateOrderIndependent(t *testing.T) {
	forward := []model.SourceRecord{
		rec("E1", "W1", "2024-03-01", "2024-03-01T09:00:00", 2),
		rec("E1", "W2", "2024-03-01", "2024-03-02T09:00:00", 9),
		rec("E1", "W3", "2024-04-01", "2024-04-01T09:00:00", 1),
		rec("E2", "W4", "2024-03-01", "2024-03-01T09:00:00", 1),
	}
	reversed := make([]model.SourceRecord, len(forward))
	for i, r := range forward {
		reversed[len(forward)-1-i] = r
	}

	a, err := Deduplicate(jobSpec(), forward, nil)
	require.NoError(t, err)
	b, err := Deduplicate(jobSpec(), reversed, nil)
	require.NoError(t, err)

	require.Equal(t, a.Entities(), b.Entities())
	for _, id := range a.Entities() {
		require.Equal(t, a.Dates(id), b.Dates(id))
		for _, d := range a.Dates(id) {
			wa, _ := a.WinnerOn(id, d)
			wb, _ := b.WinnerOn(id, d)
			assert.Equal(t, wa.TransactionWID, wb.TransactionWID)
		}
	}
}

func TestMaxQualifyingDate(t *testing.T) {
	records := []model.SourceRecord{
		rec("E1", "W1", "2024-01-15", "2024-01-15T09:00:00", 1),
		rec("E1", "W2", "2024-02-01", "2024-02-01T09:00:00", 1),
		rec("E1", "W3", "2024-03-10", "2024-03-10T09:00:00", 1),
	}
	ws, err := Deduplicate(jobSpec(), records, nil)
	require.NoError(t, err)

	d, ok := ws.MaxQualifyingDate("E1", model.MustDate("2024-03-01"))
	require.True(t, ok)
	assert.Equal(t, model.MustDate("2024-02-01"), d)

	// Exact hit qualifies.
	d, ok = ws.MaxQualifyingDate("E1", model.MustDate("2024-02-01"))
	require.True(t, ok)
	assert.Equal(t, model.MustDate("2024-02-01"), d)

	// Before the first winner nothing qualifies.
	_, ok = ws.MaxQualifyingDate("E1", model.MustDate("2024-01-01"))
	assert.False(t, ok)

	_, ok = ws.MaxQualifyingDate("E9", model.MustDate("2024-03-01"))
	assert.False(t, ok)
}

func TestDefaultRegistryOrderAndFilters(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{
		"worker_job",
		"worker_org_cost_center",
		"worker_org_company",
		"worker_org_supervisory",
		"worker_comp",
	}, r.Names())

	cc, ok := r.Get("worker_org_cost_center")
	require.True(t, ok)
	assert.Equal(t, "Organization_Type", cc.FilterCol)
	assert.Equal(t, "Cost_Center", cc.FilterValue)
	assert.True(t, cc.Spine)
	assert.Len(t, r.SpineFeeds(), 5)
}
