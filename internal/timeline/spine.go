// Package timeline turns per-feed winner sets into contiguous bitemporal
// version histories: spine construction, as-of resolution, and assembly.
package timeline

import (
	"sort"
	"time"

	"github.com/warlab/hr-datamart/internal/feed"
)

// Entities returns the sorted union of entity ids across winner sets.
func Entities(sets []*feed.WinnerSet) []string {
	seen := make(map[string]struct{})
	for _, ws := range sets {
		for _, id := range ws.Entities() {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// BuildSpine returns the sorted unique union of one entity's winner dates
// across the given feeds. Every date here becomes a version boundary.
func BuildSpine(entityID string, sets []*feed.WinnerSet) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, ws := range sets {
		for _, d := range ws.Dates(entityID) {
			seen[d] = struct{}{}
		}
	}
	spine := make([]time.Time, 0, len(seen))
	for d := range seen {
		spine = append(spine, d)
	}
	sort.Slice(spine, func(a, b int) bool { return spine[a].Before(spine[b]) })
	return spine
}
