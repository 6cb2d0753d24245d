// Package pipeline orchestrates a full integration run: dedup, spine and
// version assembly, merge, change detection, snapshot restatement and the
// quality report.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warlab/hr-datamart/internal/feed"
	"github.com/warlab/hr-datamart/internal/hrerr"
	"github.com/warlab/hr-datamart/internal/model"
	"github.com/warlab/hr-datamart/internal/movement"
	"github.com/warlab/hr-datamart/internal/quality"
	"github.com/warlab/hr-datamart/internal/refdata"
	"github.com/warlab/hr-datamart/internal/snapshot"
	"github.com/warlab/hr-datamart/internal/store"
	"github.com/warlab/hr-datamart/internal/timeline"
)

// Options tune a run.
type Options struct {
	Workers        int
	SnapshotMonths int
}

// Result is what a completed run hands back to the caller.
type Result struct {
	Run    model.RunContext
	Stats  store.MergeStats
	Report quality.Report
}

// Pipeline wires the engines around one store.
type Pipeline struct {
	st   store.Store
	reg  *feed.Registry
	opts Options
	log  *zap.Logger
}

// New creates a pipeline.
func New(st store.Store, reg *feed.Registry, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.SnapshotMonths <= 0 {
		opts.SnapshotMonths = snapshot.DefaultMonths
	}
	return &Pipeline{
		st:   st,
		reg:  reg,
		opts: opts,
		log:  zap.L().With(zap.String("component", "pipeline")),
	}
}

// Run executes one end-to-end integration run over the staged data. Every
// derived table is rebuilt from staging, so re-running after an aborted or
// corrected run converges on the same state. The run log records the outcome
// either way.
func (p *Pipeline) Run(ctx context.Context, dataDate time.Time) (*Result, error) {
	run := model.NewRunContext(dataDate)
	p.log.Info("run starting",
		zap.String("run_id", run.RunID),
		zap.String("batch_id", run.BatchID),
		zap.Time("data_date", run.DataDate))

	if err := p.st.StartRun(ctx, model.Run{
		RunID:     run.RunID,
		BatchID:   run.BatchID,
		DataDate:  run.DataDate,
		StartedAt: run.StartedAt,
	}); err != nil {
		return nil, err
	}

	result, err := p.execute(ctx, run)
	if err != nil {
		if failErr := p.st.FailRun(ctx, run.RunID, err.Error()); failErr != nil {
			p.log.Error("recording run failure failed", zap.Error(failErr))
		}
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, run model.RunContext) (*Result, error) {
	rec := hrerr.NewRecorder()

	// Rescinds apply system-wide before any winner is chosen.
	rescindRows, err := p.st.Rescinds(ctx)
	if err != nil {
		return nil, err
	}
	rescinds := feed.NewRescindSet(rescindRows)

	sets := make([]*feed.WinnerSet, 0)
	for _, spec := range p.reg.SpineFeeds() {
		records, err := p.st.SourceRecords(ctx, spec.Name)
		if err != nil {
			return nil, err
		}
		ws, err := feed.Deduplicate(spec, records, rescinds)
		if err != nil {
			return nil, err
		}
		p.log.Debug("feed deduplicated",
			zap.String("feed", spec.Name),
			zap.Int("staged", len(records)),
			zap.Int("winners", ws.Len()))
		sets = append(sets, ws)
	}

	catalog, err := p.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	batch, err := p.assemble(ctx, sets)
	if err != nil {
		return nil, err
	}

	stats, err := p.st.MergeVersions(ctx, run.RunID, batch)
	if err != nil {
		return nil, err
	}

	timelines, err := p.st.CurrentTimelines(ctx)
	if err != nil {
		return nil, err
	}

	engine := movement.NewEngine(rec)
	var facts []model.ChangeFact
	for _, id := range sortedKeys(timelines) {
		facts = append(facts, engine.Detect(timelines[id])...)
	}
	if err := p.st.ReplaceChangeFacts(ctx, run.RunID, facts); err != nil {
		return nil, err
	}

	snapEngine := snapshot.NewEngine(catalog, rec, p.opts.SnapshotMonths)
	dates, rows := snapEngine.Restate(timelines, run.DataDate)
	if err := p.st.ReplaceSnapshotWindow(ctx, run.RunID, dates, rows); err != nil {
		return nil, err
	}

	counts, err := p.st.TableCounts(ctx)
	if err != nil {
		return nil, err
	}
	report := quality.NewChecker().Check(run, timelines, counts, stats, rec)
	rendered, err := report.Render()
	if err != nil {
		return nil, err
	}
	if err := p.st.CompleteRun(ctx, run.RunID, rendered); err != nil {
		return nil, err
	}

	p.log.Info("run complete",
		zap.String("run_id", run.RunID),
		zap.Bool("passed", report.Passed),
		zap.Int("inserted", stats.Inserted),
		zap.Int("facts", len(facts)),
		zap.Int("snapshot_rows", len(rows)),
		zap.Int("reference_gaps", rec.TotalReferenceGaps()),
		zap.Int("ordering_violations", rec.TotalOrderingViolations()))

	return &Result{Run: run, Stats: stats, Report: report}, nil
}

// assemble builds the full version batch, one entity at a time across the
// worker pool. Entities are independent until the merge.
func (p *Pipeline) assemble(ctx context.Context, sets []*feed.WinnerSet) ([]model.EntityVersion, error) {
	assembler := timeline.NewAssembler(sets)
	entities := timeline.Entities(sets)

	var mu sync.Mutex
	var batch []model.EntityVersion

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, id := range entities {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "pipeline: assembly canceled")
			}
			versions, err := assembler.Assemble(id)
			if err != nil {
				return err
			}
			mu.Lock()
			batch = append(batch, versions...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batch, nil
}

func (p *Pipeline) loadCatalog(ctx context.Context) (*refdata.Catalog, error) {
	catalog := refdata.NewCatalog()
	for _, spec := range refdata.Dimensions() {
		entries, err := p.st.DimensionEntries(ctx, spec.Name)
		if err != nil {
			return nil, err
		}
		catalog.Add(spec.Name, entries)
	}
	if bad := catalog.ValidateAnchors(); len(bad) > 0 {
		p.log.Warn("dimensions not anchored at epoch", zap.Strings("dimensions", bad))
	}
	return catalog, nil
}

func sortedKeys(timelines map[string][]model.EntityVersion) []string {
	out := make([]string, 0, len(timelines))
	for id := range timelines {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
