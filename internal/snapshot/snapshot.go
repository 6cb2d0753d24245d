// Package snapshot restates the rolling month-end headcount table from the
// version store.
package snapshot

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/warlab/hr-datamart/internal/hrerr"
	"github.com/warlab/hr-datamart/internal/model"
	"github.com/warlab/hr-datamart/internal/movement"
	"github.com/warlab/hr-datamart/internal/refdata"
)

// DefaultMonths is the restatement window when none is configured.
const DefaultMonths = 24

// Engine derives snapshot membership rows for a window of month-end dates.
// The whole window is rebuilt from the version store every run, so late
// corrections restate history instead of leaving stale month-ends behind.
type Engine struct {
	catalog *refdata.Catalog
	rec     *hrerr.Recorder
	months  int
	log     *zap.Logger
}

// NewEngine creates a restatement engine over the given dimension catalog.
func NewEngine(catalog *refdata.Catalog, rec *hrerr.Recorder, months int) *Engine {
	if months <= 0 {
		months = DefaultMonths
	}
	return &Engine{
		catalog: catalog,
		rec:     rec,
		months:  months,
		log:     zap.L().With(zap.String("component", "snapshot")),
	}
}

// MonthEnds returns the trailing n month-end dates up to and including the
// month containing asOf, ascending.
func MonthEnds(asOf time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	d := model.DateOf(asOf)
	for i := n - 1; i >= 0; i-- {
		out[i] = model.MonthEnd(d)
		d = time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	}
	return out
}

// Restate computes the full snapshot window from the live timelines. A worker
// is a member on a date when a version window contains the date and the
// categorized status is active or on leave. Reference keys resolve as of the
// snapshot date; misses stay nil and count as gaps.
func (e *Engine) Restate(timelines map[string][]model.EntityVersion, asOf time.Time) ([]time.Time, []model.SnapshotRow) {
	dates := MonthEnds(asOf, e.months)

	entities := make([]string, 0, len(timelines))
	for id := range timelines {
		entities = append(entities, id)
	}
	sort.Strings(entities)

	var rows []model.SnapshotRow
	for _, date := range dates {
		for _, id := range entities {
			v, ok := versionOn(timelines[id], date)
			if !ok {
				continue
			}
			status := movement.Categorize(v.Attrs, date)
			if !movement.ActiveOrLeave(status) {
				continue
			}
			rows = append(rows, model.SnapshotRow{
				SnapshotDate:      date,
				EntityID:          id,
				CompanyKey:        e.resolve(refdata.DimCompany, v.Attr(model.AttrCompany), date),
				CostCenterKey:     e.resolve(refdata.DimCostCenter, v.Attr(model.AttrCostCenter), date),
				LocationKey:       e.resolve(refdata.DimLocation, v.Attr(model.AttrLocation), date),
				JobProfileKey:     e.resolve(refdata.DimJobProfile, v.Attr(model.AttrJobProfile), date),
				SupervisoryOrgKey: e.resolve(refdata.DimSupervisoryOrg, v.Attr(model.AttrSupervisoryOrg), date),
				Status:            string(status),
				Headcount:         1,
			})
		}
	}
	e.log.Info("restated snapshot window",
		zap.Int("dates", len(dates)),
		zap.Int("rows", len(rows)))
	return dates, rows
}

func (e *Engine) resolve(dimension, naturalKey string, asOf time.Time) *int64 {
	return e.catalog.Resolve(dimension, naturalKey, asOf, e.rec)
}

// versionOn floor-searches the version whose window contains the date.
// versions must be sorted by effective_from.
func versionOn(versions []model.EntityVersion, date time.Time) (model.EntityVersion, bool) {
	i := sort.Search(len(versions), func(i int) bool { return versions[i].EffectiveFrom.After(date) })
	if i == 0 {
		return model.EntityVersion{}, false
	}
	v := versions[i-1]
	if date.After(v.EffectiveTo) {
		return model.EntityVersion{}, false
	}
	return v, true
}
