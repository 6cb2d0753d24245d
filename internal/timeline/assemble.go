package timeline

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/warlab/hr-datamart/internal/feed"
	"github.com/warlab/hr-datamart/internal/hrerr"
	"github.com/warlab/hr-datamart/internal/model"
)

// Assembler builds an entity's version history from deduplicated winner sets.
// Resolution is strictly two-phase: for each feed, first compute the single
// max qualifying date at or before the target, then retrieve the winner at
// exactly that date. Range predicates never touch retrieval, so a feed can
// contribute at most one record per target; the assembler still asserts the
// cardinality afterwards and fails the run on any violation rather than let
// inflated rows reach the store.
type Assembler struct {
	sets []*feed.WinnerSet
}

// NewAssembler creates an assembler over spine-contributing winner sets.
// Set order fixes attribute merge order; contributed key sets are disjoint
// across feeds so order only matters if a catalog bug maps two feeds onto
// the same key.
func NewAssembler(sets []*feed.WinnerSet) *Assembler {
	return &Assembler{sets: sets}
}

// Spine returns the entity's version boundary dates.
func (a *Assembler) Spine(entityID string) []time.Time {
	return BuildSpine(entityID, a.sets)
}

// Assemble produces the entity's versions, one per spine date, each carrying
// the composite of every feed's as-of winner. Windows are contiguous:
// effective_to is the eve of the next spine date, open-ended on the last.
func (a *Assembler) Assemble(entityID string) ([]model.EntityVersion, error) {
	spine := a.Spine(entityID)
	if len(spine) == 0 {
		return nil, nil
	}

	versions := make([]model.EntityVersion, 0, len(spine))
	for i, target := range spine {
		attrs := make(map[string]string)
		for _, ws := range a.sets {
			contributed, err := resolveAsOf(ws, entityID, target, attrs)
			if err != nil {
				return nil, err
			}
			if contributed > 1 {
				return nil, eris.Wrapf(hrerr.ErrFanout,
					"timeline: feed %s contributed %d records for entity %s as of %s",
					ws.Feed, contributed, entityID, target.Format("2006-01-02"))
			}
		}

		effectiveTo := model.OpenEndDate
		if i < len(spine)-1 {
			effectiveTo = model.PrevDay(spine[i+1])
		}
		versions = append(versions, model.EntityVersion{
			EntityID:      entityID,
			EffectiveFrom: target,
			EffectiveTo:   effectiveTo,
			Attrs:         attrs,
			Fingerprint:   Fingerprint(attrs),
			IsCurrent:     i == len(spine)-1,
		})
	}

	if len(versions) > len(spine) {
		return nil, eris.Wrapf(hrerr.ErrFanout,
			"timeline: entity %s assembled %d versions from %d spine dates",
			entityID, len(versions), len(spine))
	}
	return versions, nil
}

// resolveAsOf merges one feed's as-of contribution into attrs and returns how
// many records were retrieved. Phase 1 floor-searches the qualifying date;
// phase 2 retrieves by exact equality on that date only.
func resolveAsOf(ws *feed.WinnerSet, entityID string, target time.Time, attrs map[string]string) (int, error) {
	qualifying, ok := ws.MaxQualifyingDate(entityID, target)
	if !ok {
		// Feed has nothing at or before the target; the version simply
		// lacks this feed's attributes.
		return 0, nil
	}
	rec, ok := ws.WinnerOn(entityID, qualifying)
	if !ok {
		return 0, eris.Wrapf(hrerr.ErrFanout,
			"timeline: feed %s qualified %s for entity %s but retrieval found no winner",
			ws.Feed, qualifying.Format("2006-01-02"), entityID)
	}
	for k, v := range rec.Attrs {
		attrs[k] = v
	}
	return 1, nil
}
