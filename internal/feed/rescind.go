package feed

import "github.com/warlab/hr-datamart/internal/model"

// RescindSet indexes cancellation rows by (source table, transaction WID).
// A record whose WID appears here for its feed's source table is obsolete
// everywhere, not only in the batch that delivered the rescind.
type RescindSet struct {
	byTable map[string]map[string]struct{}
}

// NewRescindSet builds the index from staged rescind rows.
func NewRescindSet(rows []model.Rescind) *RescindSet {
	s := &RescindSet{byTable: make(map[string]map[string]struct{})}
	for _, r := range rows {
		wids, ok := s.byTable[r.SourceTable]
		if !ok {
			wids = make(map[string]struct{})
			s.byTable[r.SourceTable] = wids
		}
		wids[r.TransactionWID] = struct{}{}
	}
	return s
}

// Contains reports whether the transaction has been rescinded for the table.
func (s *RescindSet) Contains(sourceTable, wid string) bool {
	wids, ok := s.byTable[sourceTable]
	if !ok {
		return false
	}
	_, ok = wids[wid]
	return ok
}

// Len returns the total number of indexed rescinds.
func (s *RescindSet) Len() int {
	n := 0
	for _, wids := range s.byTable {
		n += len(wids)
	}
	return n
}
