package feed

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/warlab/hr-datamart/internal/hrerr"
	"github.com/warlab/hr-datamart/internal/model"
)

// WinnerSet is the deduplicated view of one feed: at most one surviving
// record per (entity, effective date), with each entity's winner dates kept
// sorted for floor searches.
type WinnerSet struct {
	Feed    string
	dates   map[string][]time.Time
	winners map[string]map[time.Time]model.SourceRecord
}

// Entities returns the sorted entity ids present in the set.
func (w *WinnerSet) Entities() []string {
	out := make([]string, 0, len(w.dates))
	for id := range w.dates {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dates returns an entity's winner dates in ascending order.
func (w *WinnerSet) Dates(entityID string) []time.Time {
	return w.dates[entityID]
}

// WinnerOn retrieves the winner at exactly the given date.
func (w *WinnerSet) WinnerOn(entityID string, date time.Time) (model.SourceRecord, bool) {
	rec, ok := w.winners[entityID][date]
	return rec, ok
}

// MaxQualifyingDate returns the latest winner date <= target for the entity.
// ok is false when no winner date qualifies.
func (w *WinnerSet) MaxQualifyingDate(entityID string, target time.Time) (time.Time, bool) {
	dates := w.dates[entityID]
	// First index strictly after target; the qualifying date precedes it.
	i := sort.Search(len(dates), func(i int) bool { return dates[i].After(target) })
	if i == 0 {
		return time.Time{}, false
	}
	return dates[i-1], true
}

// Len returns the total number of winners across entities.
func (w *WinnerSet) Len() int {
	n := 0
	for _, d := range w.dates {
		n += len(d)
	}
	return n
}

// Deduplicate resolves one feed's staged records down to a single winner per
// (entity, effective date). Rescinded records are dropped before selection.
// Among survivors the latest entry timestamp wins; entry-timestamp ties break
// to the lowest sequence number; a residual tie is upstream corruption and
// fails the run. Selection looks only at record fields, so input order does
// not affect the result.
func Deduplicate(spec Spec, records []model.SourceRecord, rescinds *RescindSet) (*WinnerSet, error) {
	type groupKey struct {
		entityID string
		date     time.Time
	}
	groups := make(map[groupKey][]model.SourceRecord)
	for _, rec := range records {
		if rec.Rescinded || (rescinds != nil && rescinds.Contains(spec.SourceTable, rec.TransactionWID)) {
			continue
		}
		k := groupKey{rec.EntityID, model.DateOf(rec.EffectiveDate)}
		groups[k] = append(groups[k], rec)
	}

	ws := &WinnerSet{
		Feed:    spec.Name,
		dates:   make(map[string][]time.Time),
		winners: make(map[string]map[time.Time]model.SourceRecord),
	}
	for k, group := range groups {
		winner := group[0]
		ties := 1
		for _, rec := range group[1:] {
			switch {
			case rec.EntryTimestamp.After(winner.EntryTimestamp):
				winner, ties = rec, 1
			case rec.EntryTimestamp.Equal(winner.EntryTimestamp) && rec.SequenceNumber < winner.SequenceNumber:
				winner, ties = rec, 1
			case rec.EntryTimestamp.Equal(winner.EntryTimestamp) && rec.SequenceNumber == winner.SequenceNumber:
				ties++
			}
		}
		if ties > 1 {
			return nil, eris.Wrapf(hrerr.ErrDataIntegrity,
				"feed: %s has %d indistinguishable records for entity %s effective %s",
				spec.Name, ties, k.entityID, k.date.Format("2006-01-02"))
		}
		if ws.winners[k.entityID] == nil {
			ws.winners[k.entityID] = make(map[time.Time]model.SourceRecord)
		}
		ws.winners[k.entityID][k.date] = winner
		ws.dates[k.entityID] = append(ws.dates[k.entityID], k.date)
	}
	for id := range ws.dates {
		sort.Slice(ws.dates[id], func(a, b int) bool { return ws.dates[id][a].Before(ws.dates[id][b]) })
	}
	return ws, nil
}
