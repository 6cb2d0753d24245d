package store

import (
	"sort"
	"time"

	"github.com/warlab/hr-datamart/internal/model"
)

// versionKey identifies a version row: the batch and the live store are
// reconciled on (entity, effective_from).
type versionKey struct {
	entityID string
	from     time.Time
}

// mergePlan is the backend-independent diff of one assembled batch against
// the live version rows. Both backends execute the same plan; only the SQL
// dialect differs.
type mergePlan struct {
	inserts    []model.EntityVersion // new keys, plus replacements for superseded rows
	updates    []model.EntityVersion // same fingerprint, window or currency moved
	supersedes []versionKey          // live rows replaced by a changed fingerprint
	deletes    []versionKey          // live rows whose key vanished from the batch
	stats      MergeStats
}

// planMerge diffs a batch against the live rows. The batch is the full
// assembled universe, so a live key absent from it means the underlying
// records were rescinded or withdrawn and the row soft-deletes. A matching
// fingerprint never rewrites content, which is what makes re-running a merge
// a no-op.
func planMerge(live, batch []model.EntityVersion) mergePlan {
	liveByKey := make(map[versionKey]model.EntityVersion, len(live))
	for _, v := range live {
		liveByKey[versionKey{v.EntityID, v.EffectiveFrom}] = v
	}
	batchKeys := make(map[versionKey]struct{}, len(batch))

	var plan mergePlan
	for _, v := range batch {
		key := versionKey{v.EntityID, v.EffectiveFrom}
		batchKeys[key] = struct{}{}

		existing, ok := liveByKey[key]
		if !ok {
			plan.inserts = append(plan.inserts, v)
			plan.stats.Inserted++
			continue
		}
		if existing.Fingerprint == v.Fingerprint {
			if existing.EffectiveTo.Equal(v.EffectiveTo) && existing.IsCurrent == v.IsCurrent {
				plan.stats.Unchanged++
				continue
			}
			plan.updates = append(plan.updates, v)
			plan.stats.Closed++
			continue
		}
		plan.supersedes = append(plan.supersedes, key)
		plan.inserts = append(plan.inserts, v)
		plan.stats.Inserted++
	}

	for key := range liveByKey {
		if _, ok := batchKeys[key]; !ok {
			plan.deletes = append(plan.deletes, key)
			plan.stats.Deleted++
		}
	}

	sortVersions(plan.inserts)
	sortVersions(plan.updates)
	sortKeys(plan.supersedes)
	sortKeys(plan.deletes)
	return plan
}

// entityOrder returns the distinct entity ids a plan touches, sorted. The
// postgres backend takes advisory locks in this order so concurrent merges
// cannot deadlock.
func (p mergePlan) entityOrder() []string {
	seen := make(map[string]struct{})
	for _, v := range p.inserts {
		seen[v.EntityID] = struct{}{}
	}
	for _, v := range p.updates {
		seen[v.EntityID] = struct{}{}
	}
	for _, k := range p.supersedes {
		seen[k.entityID] = struct{}{}
	}
	for _, k := range p.deletes {
		seen[k.entityID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p mergePlan) empty() bool {
	return len(p.inserts) == 0 && len(p.updates) == 0 && len(p.supersedes) == 0 && len(p.deletes) == 0
}

type tableCount struct {
	table string
	query string
}

// tableCountQueries lists the derived tables validated after a run, in a
// fixed order. prefix is the schema qualifier, empty for sqlite.
func tableCountQueries(prefix string) []tableCount {
	return []tableCount{
		{"entity_version", `SELECT COUNT(*) FROM ` + prefix + `entity_version WHERE superseded_at IS NULL AND deleted_at IS NULL`},
		{"change_fact", `SELECT COUNT(*) FROM ` + prefix + `change_fact`},
		{"snapshot", `SELECT COUNT(*) FROM ` + prefix + `snapshot`},
	}
}

func sortVersions(vs []model.EntityVersion) {
	sort.Slice(vs, func(a, b int) bool {
		if vs[a].EntityID != vs[b].EntityID {
			return vs[a].EntityID < vs[b].EntityID
		}
		return vs[a].EffectiveFrom.Before(vs[b].EffectiveFrom)
	})
}

func sortKeys(ks []versionKey) {
	sort.Slice(ks, func(a, b int) bool {
		if ks[a].entityID != ks[b].entityID {
			return ks[a].entityID < ks[b].entityID
		}
		return ks[a].from.Before(ks[b].from)
	})
}
