package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warlab/hr-datamart/internal/hrerr"
	"github.com/warlab/hr-datamart/internal/model"
	"github.com/warlab/hr-datamart/internal/refdata"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestMonthEnds(t *testing.T) {
	dates := MonthEnds(model.MustDate("2024-03-15"), 4)
	assert.Equal(t, []time.Time{
		model.MustDate("2023-12-31"),
		model.MustDate("2024-01-31"),
		model.MustDate("2024-02-29"),
		model.MustDate("2024-03-31"),
	}, dates)
}

func testCatalog() *refdata.Catalog {
	c := refdata.NewCatalog()
	c.Add(refdata.DimCompany, []refdata.Entry{
		{SurrogateKey: 100, NaturalKey: "C1", ValidFrom: model.DimensionEpoch, ValidTo: model.OpenEndDate},
	})
	c.Add(refdata.DimCostCenter, []refdata.Entry{
		{SurrogateKey: 200, NaturalKey: "CC1", ValidFrom: model.DimensionEpoch, ValidTo: model.OpenEndDate},
	})
	return c
}

func activeVersion(entity, from, to string, extra map[string]string) model.EntityVersion {
	attrs := map[string]string{
		model.AttrWorkerStatus: "Active",
		model.AttrCompany:      "C1",
		model.AttrCostCenter:   "CC1",
	}
	for k, v := range extra {
		attrs[k] = v
	}
	effectiveTo := model.OpenEndDate
	if to != "" {
		effectiveTo = model.MustDate(to)
	}
	return model.EntityVersion{
		EntityID:      entity,
		EffectiveFrom: model.MustDate(from),
		EffectiveTo:   effectiveTo,
		Attrs:         attrs,
	}
}

func TestRestateMembershipAndKeys(t *testing.T) {
	rec := hrerr.NewRecorder()
	engine := NewEngine(testCatalog(), rec, 3)

	timelines := map[string][]model.EntityVersion{
		"E1": {activeVersion("E1", "2024-01-15", "", nil)},
	}
	dates, rows := engine.Restate(timelines, model.MustDate("2024-03-15"))

	require.Len(t, dates, 3)
	// Hired mid-January, so the version window already contains 2024-01-31.
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, "E1", r.EntityID)
		assert.Equal(t, "Active", r.Status)
		assert.Equal(t, 1, r.Headcount)
		require.NotNil(t, r.CompanyKey)
		assert.Equal(t, int64(100), *r.CompanyKey)
		require.NotNil(t, r.CostCenterKey)
		assert.Equal(t, int64(200), *r.CostCenterKey)
		assert.Nil(t, r.LocationKey)
	}
	assert.Zero(t, rec.TotalReferenceGaps())
}

func TestRestateExcludesBeforeHireAndAfterTermination(t *testing.T) {
	rec := hrerr.NewRecorder()
	engine := NewEngine(testCatalog(), rec, 4)

	timelines := map[string][]model.EntityVersion{
		"E1": {
			activeVersion("E1", "2024-02-01", "2024-03-14", nil),
			activeVersion("E1", "2024-03-15", "", map[string]string{
				model.AttrWorkerStatus: "Terminated",
				model.AttrTerminated:   "1",
			}),
		},
	}
	_, rows := engine.Restate(timelines, model.MustDate("2024-04-15"))

	// January: before hire. February: active. March and April: terminated.
	require.Len(t, rows, 1)
	assert.Equal(t, model.MustDate("2024-02-29"), rows[0].SnapshotDate)
}

func TestRestateIncludesLeave(t *testing.T) {
	rec := hrerr.NewRecorder()
	engine := NewEngine(testCatalog(), rec, 1)

	timelines := map[string][]model.EntityVersion{
		"E1": {activeVersion("E1", "2024-01-01", "", map[string]string{
			model.AttrWorkerStatus: "On Leave",
		})},
	}
	_, rows := engine.Restate(timelines, model.MustDate("2024-03-15"))

	require.Len(t, rows, 1)
	assert.Equal(t, "On Leave", rows[0].Status)
}

func TestRestateUnresolvedKeyCountsGap(t *testing.T) {
	rec := hrerr.NewRecorder()
	engine := NewEngine(testCatalog(), rec, 1)

	timelines := map[string][]model.EntityVersion{
		"E1": {activeVersion("E1", "2024-01-01", "", map[string]string{
			model.AttrCompany: "C9",
		})},
	}
	_, rows := engine.Restate(timelines, model.MustDate("2024-03-15"))

	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].CompanyKey)
	assert.Equal(t, map[string]int{refdata.DimCompany: 1}, rec.ReferenceGaps())
}

func TestRestateDeterministic(t *testing.T) {
	engine := NewEngine(testCatalog(), hrerr.NewRecorder(), 6)
	timelines := map[string][]model.EntityVersion{
		"E2": {activeVersion("E2", "2023-11-01", "", nil)},
		"E1": {activeVersion("E1", "2024-01-01", "", nil)},
	}

	datesA, rowsA := engine.Restate(timelines, model.MustDate("2024-03-15"))
	datesB, rowsB := engine.Restate(timelines, model.MustDate("2024-03-15"))

	assert.Equal(t, datesA, datesB)
	assert.Equal(t, rowsA, rowsB)
}

func TestVersionOnBoundaries(t *testing.T) {
	v := activeVersion("E1", "2024-02-01", "2024-02-29", nil)
	versions := []model.EntityVersion{v}

	_, ok := versionOn(versions, model.MustDate("2024-01-31"))
	assert.False(t, ok)
	got, ok := versionOn(versions, model.MustDate("2024-02-01"))
	assert.True(t, ok)
	assert.Equal(t, v.EffectiveFrom, got.EffectiveFrom)
	_, ok = versionOn(versions, model.MustDate("2024-02-29"))
	assert.True(t, ok)
	_, ok = versionOn(versions, model.MustDate("2024-03-01"))
	assert.False(t, ok)
}
