package movement

import (
	"go.uber.org/zap"

	"github.com/warlab/hr-datamart/internal/hrerr"
	"github.com/warlab/hr-datamart/internal/model"
)

// Engine turns version histories into change facts.
type Engine struct {
	rec *hrerr.Recorder
	log *zap.Logger
}

// NewEngine creates an engine recording recoverable gaps into rec.
func NewEngine(rec *hrerr.Recorder) *Engine {
	return &Engine{
		rec: rec,
		log: zap.L().With(zap.String("component", "movement")),
	}
}

// Detect scores every indicator for each consecutive version pair of one
// entity. versions must be ordered by effective_from, as the assembler and
// store deliver them. The prior version is always the sequence predecessor;
// the first version has none and produces no fact. Every metric column is
// present in each fact, zeros included.
func (e *Engine) Detect(versions []model.EntityVersion) []model.ChangeFact {
	if len(versions) < 2 {
		return nil
	}
	facts := make([]model.ChangeFact, 0, len(versions)-1)
	for i := 1; i < len(versions); i++ {
		prev, curr := versions[i-1], versions[i]
		ev := &Eval{
			Prev: prev,
			Curr: curr,
			// The prior status is taken on the eve of the change, so the
			// pay-through rule sees the worker as they were, not as the new
			// version rewrites them.
			PrevStatus: Categorize(prev.Attrs, model.PrevDay(curr.EffectiveFrom)),
			CurrStatus: Categorize(curr.Attrs, curr.EffectiveFrom),
			rec:        e.rec,
		}
		gateOpen := ActiveOrLeave(ev.PrevStatus) && ActiveOrLeave(ev.CurrStatus)

		metrics := make(map[string]int, len(Indicators))
		for _, ind := range Indicators {
			if ind.Gated && !gateOpen {
				metrics[ind.Name] = 0
				continue
			}
			metrics[ind.Name] = ind.Score(ev)
		}
		facts = append(facts, model.ChangeFact{
			EntityID:           curr.EntityID,
			EffectiveDate:      curr.EffectiveFrom,
			PriorEffectiveDate: prev.EffectiveFrom,
			Attrs:              curr.Attrs,
			PriorAttrs:         prev.Attrs,
			Metrics:            metrics,
		})
	}
	return facts
}
