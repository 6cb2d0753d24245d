// Package hrerr defines the error taxonomy of the integration engine:
// structural invariant violations that abort a run, and data-content gaps
// that are counted and surfaced in the completion report.
package hrerr

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// Fatal sentinels. Wrap with eris and detect with eris.Is.
var (
	// ErrDataIntegrity: deduplication could not produce a unique winner
	// despite the tie-break rules. Indicates upstream corruption; the run
	// aborts rather than guessing.
	ErrDataIntegrity = eris.New("data integrity violation")

	// ErrFanout: an as-of stage produced more output rows than spine entries.
	// The two-phase as-of invariant was violated; aborting is mandatory
	// because silent fan-out multiplies every downstream fact.
	ErrFanout = eris.New("as-of fanout violation")
)

// IsFatal reports whether err carries one of the abort-the-run sentinels.
func IsFatal(err error) bool {
	return eris.Is(err, ErrDataIntegrity) || eris.Is(err, ErrFanout)
}

// Recorder accumulates recoverable data-quality events across a run. Safe for
// concurrent use by the per-entity workers.
type Recorder struct {
	mu                 sync.Mutex
	referenceGaps      map[string]int // dimension -> unresolved lookups
	orderingViolations map[string]int // field -> non-comparable pairs
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		referenceGaps:      make(map[string]int),
		orderingViolations: make(map[string]int),
	}
}

// ReferenceGap records a natural key that failed to resolve against a
// reference dimension as of a lookup date. The row keeps a null FK; the run
// continues.
func (r *Recorder) ReferenceGap(dimension string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.referenceGaps[dimension]++
}

// OrderingViolation records an ordered comparison that met non-comparable
// encodings. The affected metric defaults to zero; the run continues.
func (r *Recorder) OrderingViolation(field string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orderingViolations[field]++
}

// ReferenceGaps returns per-dimension unresolved lookup counts.
func (r *Recorder) ReferenceGaps() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyCounts(r.referenceGaps)
}

// OrderingViolations returns per-field non-comparable pair counts.
func (r *Recorder) OrderingViolations() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyCounts(r.orderingViolations)
}

// TotalReferenceGaps sums gap counts across dimensions.
func (r *Recorder) TotalReferenceGaps() int {
	return sumCounts(r.ReferenceGaps())
}

// TotalOrderingViolations sums violation counts across fields.
func (r *Recorder) TotalOrderingViolations() int {
	return sumCounts(r.OrderingViolations())
}

// Keys returns the sorted key set of a count map, for deterministic reports.
func Keys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sumCounts(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}
