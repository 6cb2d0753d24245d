package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/warlab/hr-datamart/internal/db"
	"github.com/warlab/hr-datamart/internal/model"
	"github.com/warlab/hr-datamart/internal/refdata"
)

// PostgresStore implements Store on pgx. It is the production backend; bulk
// paths use the COPY protocol and dimension loads go through the temp-table
// upsert helper.
type PostgresStore struct {
	pool   db.Pool
	schema string
	log    *zap.Logger
}

// NewPostgres connects a pooled postgres store.
func NewPostgres(ctx context.Context, cfg Config) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return NewPostgresWithPool(pool, cfg.Schema), nil
}

// NewPostgresWithPool wraps an existing pool. Tests inject pgxmock here.
func NewPostgresWithPool(pool db.Pool, schema string) *PostgresStore {
	if schema == "" {
		schema = "hr"
	}
	return &PostgresStore{
		pool:   pool,
		schema: schema,
		log:    zap.L().With(zap.String("component", "store")),
	}
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[1]s.stg_source_record (
	feed            TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	effective_date  DATE NOT NULL,
	entry_timestamp TIMESTAMPTZ NOT NULL,
	sequence_number INTEGER NOT NULL,
	transaction_wid TEXT NOT NULL,
	attrs           JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS %[1]s.stg_rescind (
	transaction_wid  TEXT NOT NULL,
	source_table     TEXT NOT NULL,
	rescinded_moment TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS %[1]s.stg_dimension (
	dimension     TEXT NOT NULL,
	surrogate_key BIGINT NOT NULL,
	natural_key   TEXT NOT NULL,
	valid_from    DATE NOT NULL,
	valid_to      DATE NOT NULL,
	PRIMARY KEY (dimension, natural_key, valid_from)
);

CREATE TABLE IF NOT EXISTS %[1]s.entity_version (
	id            UUID PRIMARY KEY,
	entity_id     TEXT NOT NULL,
	effective_from DATE NOT NULL,
	effective_to  DATE NOT NULL,
	attrs         JSONB NOT NULL,
	fingerprint   TEXT NOT NULL,
	is_current    BOOLEAN NOT NULL,
	run_id        TEXT NOT NULL,
	loaded_at     TIMESTAMPTZ NOT NULL,
	superseded_at TIMESTAMPTZ,
	deleted_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS %[1]s.change_fact (
	entity_id            TEXT NOT NULL,
	effective_date       DATE NOT NULL,
	prior_effective_date DATE NOT NULL,
	attrs                JSONB NOT NULL,
	prior_attrs          JSONB NOT NULL,
	metrics              JSONB NOT NULL,
	run_id               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS %[1]s.snapshot (
	snapshot_date       DATE NOT NULL,
	entity_id           TEXT NOT NULL,
	company_key         BIGINT,
	cost_center_key     BIGINT,
	location_key        BIGINT,
	job_profile_key     BIGINT,
	supervisory_org_key BIGINT,
	status              TEXT NOT NULL,
	headcount           INTEGER NOT NULL,
	run_id              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS %[1]s.run_log (
	run_id       TEXT PRIMARY KEY,
	batch_id     TEXT NOT NULL,
	data_date    DATE NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	error        TEXT,
	report       TEXT
);

CREATE INDEX IF NOT EXISTS idx_stg_source_record_feed ON %[1]s.stg_source_record(feed);
CREATE UNIQUE INDEX IF NOT EXISTS idx_entity_version_live
	ON %[1]s.entity_version(entity_id, effective_from)
	WHERE superseded_at IS NULL AND deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_change_fact_entity ON %[1]s.change_fact(entity_id, effective_date);
CREATE INDEX IF NOT EXISTS idx_snapshot_date ON %[1]s.snapshot(snapshot_date);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(postgresMigration, s.schema))
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ReplaceSourceRecords(ctx context.Context, feedName string, records []model.SourceRecord) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %[1]s.stg_source_record WHERE feed = $1`, s.schema), feedName); err != nil {
		return eris.Wrapf(err, "postgres: clear staging for %s", feedName)
	}
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		attrs, err := json.Marshal(r.Attrs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal attrs")
		}
		rows = append(rows, []any{
			feedName, r.EntityID, r.EffectiveDate, r.EntryTimestamp.UTC(),
			r.SequenceNumber, r.TransactionWID, attrs,
		})
	}
	n, err := db.CopyFromSchema(ctx, s.pool, s.schema, "stg_source_record",
		[]string{"feed", "entity_id", "effective_date", "entry_timestamp", "sequence_number", "transaction_wid", "attrs"},
		rows)
	if err != nil {
		return err
	}
	s.log.Debug("staged source records", zap.String("feed", feedName), zap.Int64("rows", n))
	return nil
}

func (s *PostgresStore) SourceRecords(ctx context.Context, feedName string) ([]model.SourceRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT entity_id, effective_date, entry_timestamp,
		sequence_number, transaction_wid, attrs
		FROM %[1]s.stg_source_record WHERE feed = $1`, s.schema), feedName)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: select staging for %s", feedName)
	}
	defer rows.Close()

	var out []model.SourceRecord
	for rows.Next() {
		var r model.SourceRecord
		var attrs []byte
		if err := rows.Scan(&r.EntityID, &r.EffectiveDate, &r.EntryTimestamp,
			&r.SequenceNumber, &r.TransactionWID, &attrs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan staging row")
		}
		if err := json.Unmarshal(attrs, &r.Attrs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal attrs")
		}
		r.EffectiveDate = model.DateOf(r.EffectiveDate)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate staging rows")
}

func (s *PostgresStore) ReplaceRescinds(ctx context.Context, rescinds []model.Rescind) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %[1]s.stg_rescind`, s.schema)); err != nil {
		return eris.Wrap(err, "postgres: clear rescinds")
	}
	rows := make([][]any, 0, len(rescinds))
	for _, r := range rescinds {
		rows = append(rows, []any{r.TransactionWID, r.SourceTable, r.RescindedMoment.UTC()})
	}
	_, err := db.CopyFromSchema(ctx, s.pool, s.schema, "stg_rescind",
		[]string{"transaction_wid", "source_table", "rescinded_moment"}, rows)
	return err
}

func (s *PostgresStore) Rescinds(ctx context.Context) ([]model.Rescind, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT transaction_wid, source_table, rescinded_moment FROM %[1]s.stg_rescind`, s.schema))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select rescinds")
	}
	defer rows.Close()

	var out []model.Rescind
	for rows.Next() {
		var r model.Rescind
		if err := rows.Scan(&r.TransactionWID, &r.SourceTable, &r.RescindedMoment); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rescind")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate rescinds")
}

// ReplaceDimension upserts on (dimension, natural key, valid_from). Dimension
// files are externally deduplicated full extracts, so re-delivery only
// refreshes windows in place.
func (s *PostgresStore) ReplaceDimension(ctx context.Context, dimension string, entries []refdata.Entry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{dimension, e.SurrogateKey, e.NaturalKey, e.ValidFrom, e.ValidTo})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        s.schema + ".stg_dimension",
		Columns:      []string{"dimension", "surrogate_key", "natural_key", "valid_from", "valid_to"},
		ConflictKeys: []string{"dimension", "natural_key", "valid_from"},
	}, rows)
	return err
}

func (s *PostgresStore) DimensionEntries(ctx context.Context, dimension string) ([]refdata.Entry, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT surrogate_key, natural_key, valid_from, valid_to FROM %[1]s.stg_dimension WHERE dimension = $1`, s.schema),
		dimension)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: select dimension %s", dimension)
	}
	defer rows.Close()

	var out []refdata.Entry
	for rows.Next() {
		var e refdata.Entry
		if err := rows.Scan(&e.SurrogateKey, &e.NaturalKey, &e.ValidFrom, &e.ValidTo); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dimension entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate dimension entries")
}

func (s *PostgresStore) MergeVersions(ctx context.Context, runID string, batch []model.EntityVersion) (MergeStats, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return MergeStats{}, eris.Wrap(err, "postgres: begin merge")
	}
	defer tx.Rollback(ctx)

	// Lock entities in sorted order before reading live rows; concurrent
	// merges over overlapping universes then serialize without deadlocking.
	for _, id := range batchEntityOrder(batch) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
			return MergeStats{}, eris.Wrapf(err, "postgres: lock entity %s", id)
		}
	}

	live, err := s.liveVersions(ctx, tx)
	if err != nil {
		return MergeStats{}, err
	}
	plan := planMerge(live, batch)
	if plan.empty() {
		return plan.stats, eris.Wrap(tx.Commit(ctx), "postgres: commit merge")
	}
	now := time.Now().UTC()

	for _, key := range plan.supersedes {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %[1]s.entity_version SET superseded_at = $1
			 WHERE entity_id = $2 AND effective_from = $3 AND superseded_at IS NULL AND deleted_at IS NULL`, s.schema),
			now, key.entityID, key.from,
		); err != nil {
			return MergeStats{}, eris.Wrap(err, "postgres: supersede version")
		}
	}
	for _, key := range plan.deletes {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %[1]s.entity_version SET deleted_at = $1
			 WHERE entity_id = $2 AND effective_from = $3 AND superseded_at IS NULL AND deleted_at IS NULL`, s.schema),
			now, key.entityID, key.from,
		); err != nil {
			return MergeStats{}, eris.Wrap(err, "postgres: soft-delete version")
		}
	}
	for _, v := range plan.updates {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %[1]s.entity_version SET effective_to = $1, is_current = $2, run_id = $3
			 WHERE entity_id = $4 AND effective_from = $5 AND superseded_at IS NULL AND deleted_at IS NULL`, s.schema),
			v.EffectiveTo, v.IsCurrent, runID, v.EntityID, v.EffectiveFrom,
		); err != nil {
			return MergeStats{}, eris.Wrap(err, "postgres: adjust version window")
		}
	}
	if len(plan.inserts) > 0 {
		rows := make([][]any, 0, len(plan.inserts))
		for _, v := range plan.inserts {
			attrs, err := json.Marshal(v.Attrs)
			if err != nil {
				return MergeStats{}, eris.Wrap(err, "postgres: marshal version attrs")
			}
			rows = append(rows, []any{
				uuid.New().String(), v.EntityID, v.EffectiveFrom, v.EffectiveTo,
				attrs, v.Fingerprint, v.IsCurrent, runID, now,
			})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{s.schema, "entity_version"},
			[]string{"id", "entity_id", "effective_from", "effective_to", "attrs", "fingerprint", "is_current", "run_id", "loaded_at"},
			pgx.CopyFromRows(rows)); err != nil {
			return MergeStats{}, eris.Wrap(err, "postgres: insert versions")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return MergeStats{}, eris.Wrap(err, "postgres: commit merge")
	}
	s.log.Info("merged versions",
		zap.String("run_id", runID),
		zap.Int("inserted", plan.stats.Inserted),
		zap.Int("closed", plan.stats.Closed),
		zap.Int("deleted", plan.stats.Deleted),
		zap.Int("unchanged", plan.stats.Unchanged))
	return plan.stats, nil
}

type pgxQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) liveVersions(ctx context.Context, q pgxQueryer) ([]model.EntityVersion, error) {
	rows, err := q.Query(ctx,
		fmt.Sprintf(`SELECT entity_id, effective_from, effective_to, attrs, fingerprint, is_current, run_id
		 FROM %[1]s.entity_version
		 WHERE superseded_at IS NULL AND deleted_at IS NULL
		 ORDER BY entity_id, effective_from`, s.schema))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select live versions")
	}
	defer rows.Close()

	var out []model.EntityVersion
	for rows.Next() {
		var v model.EntityVersion
		var attrs []byte
		if err := rows.Scan(&v.EntityID, &v.EffectiveFrom, &v.EffectiveTo,
			&attrs, &v.Fingerprint, &v.IsCurrent, &v.RunID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan version")
		}
		if err := json.Unmarshal(attrs, &v.Attrs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal version attrs")
		}
		v.EffectiveFrom = model.DateOf(v.EffectiveFrom)
		v.EffectiveTo = model.DateOf(v.EffectiveTo)
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate versions")
}

func (s *PostgresStore) CurrentTimelines(ctx context.Context) (map[string][]model.EntityVersion, error) {
	live, err := s.liveVersions(ctx, s.pool)
	if err != nil {
		return nil, err
	}
	timelines := make(map[string][]model.EntityVersion)
	for _, v := range live {
		timelines[v.EntityID] = append(timelines[v.EntityID], v)
	}
	return timelines, nil
}

func (s *PostgresStore) ReplaceChangeFacts(ctx context.Context, runID string, facts []model.ChangeFact) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace facts")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %[1]s.change_fact`, s.schema)); err != nil {
		return eris.Wrap(err, "postgres: clear facts")
	}
	rows := make([][]any, 0, len(facts))
	for _, f := range facts {
		attrs, err := json.Marshal(f.Attrs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal fact attrs")
		}
		prior, err := json.Marshal(f.PriorAttrs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal fact prior attrs")
		}
		metrics, err := json.Marshal(f.Metrics)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal fact metrics")
		}
		rows = append(rows, []any{
			f.EntityID, f.EffectiveDate, f.PriorEffectiveDate, attrs, prior, metrics, runID,
		})
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{s.schema, "change_fact"},
			[]string{"entity_id", "effective_date", "prior_effective_date", "attrs", "prior_attrs", "metrics", "run_id"},
			pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrap(err, "postgres: insert facts")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace facts")
}

func (s *PostgresStore) ChangeFacts(ctx context.Context, entityID string) ([]model.ChangeFact, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT entity_id, effective_date, prior_effective_date, attrs, prior_attrs, metrics, run_id
		 FROM %[1]s.change_fact WHERE entity_id = $1 ORDER BY effective_date`, s.schema), entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: select facts for %s", entityID)
	}
	defer rows.Close()

	var out []model.ChangeFact
	for rows.Next() {
		var f model.ChangeFact
		var attrs, prior, metrics []byte
		if err := rows.Scan(&f.EntityID, &f.EffectiveDate, &f.PriorEffectiveDate,
			&attrs, &prior, &metrics, &f.RunID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact")
		}
		if err := json.Unmarshal(attrs, &f.Attrs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal fact attrs")
		}
		if err := json.Unmarshal(prior, &f.PriorAttrs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal fact prior attrs")
		}
		if err := json.Unmarshal(metrics, &f.Metrics); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal fact metrics")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate facts")
}

func (s *PostgresStore) ReplaceSnapshotWindow(ctx context.Context, runID string, dates []time.Time, snapRows []model.SnapshotRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace snapshots")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %[1]s.snapshot WHERE snapshot_date = ANY($1)`, s.schema), dates); err != nil {
		return eris.Wrap(err, "postgres: clear snapshot window")
	}
	rows := make([][]any, 0, len(snapRows))
	for _, r := range snapRows {
		rows = append(rows, []any{
			r.SnapshotDate, r.EntityID, r.CompanyKey, r.CostCenterKey, r.LocationKey,
			r.JobProfileKey, r.SupervisoryOrgKey, r.Status, r.Headcount, runID,
		})
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{s.schema, "snapshot"},
			[]string{"snapshot_date", "entity_id", "company_key", "cost_center_key", "location_key",
				"job_profile_key", "supervisory_org_key", "status", "headcount", "run_id"},
			pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrap(err, "postgres: insert snapshot rows")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace snapshots")
}

func (s *PostgresStore) SnapshotRows(ctx context.Context, date time.Time) ([]model.SnapshotRow, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT snapshot_date, entity_id, company_key, cost_center_key, location_key,
		        job_profile_key, supervisory_org_key, status, headcount, run_id
		 FROM %[1]s.snapshot WHERE snapshot_date = $1 ORDER BY entity_id`, s.schema), date)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select snapshot rows")
	}
	defer rows.Close()

	var out []model.SnapshotRow
	for rows.Next() {
		var r model.SnapshotRow
		if err := rows.Scan(&r.SnapshotDate, &r.EntityID, &r.CompanyKey, &r.CostCenterKey,
			&r.LocationKey, &r.JobProfileKey, &r.SupervisoryOrgKey, &r.Status, &r.Headcount, &r.RunID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot row")
		}
		r.SnapshotDate = model.DateOf(r.SnapshotDate)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate snapshot rows")
}

func (s *PostgresStore) StartRun(ctx context.Context, run model.Run) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %[1]s.run_log (run_id, batch_id, data_date, status, started_at) VALUES ($1, $2, $3, $4, $5)`, s.schema),
		run.RunID, run.BatchID, run.DataDate, string(model.RunStatusRunning), run.StartedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, report []byte) error {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %[1]s.run_log SET status = $1, completed_at = $2, report = $3 WHERE run_id = $4`, s.schema),
		string(model.RunStatusComplete), time.Now().UTC(), string(report), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %[1]s.run_log SET status = $1, completed_at = $2, error = $3 WHERE run_id = $4`, s.schema),
		string(model.RunStatusFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT run_id, batch_id, data_date, status, started_at, completed_at, error, report
		 FROM %[1]s.run_log ORDER BY started_at DESC LIMIT $1`, s.schema), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var r model.Run
		var errMsg, report *string
		if err := rows.Scan(&r.RunID, &r.BatchID, &r.DataDate, &r.Status,
			&r.StartedAt, &r.CompletedAt, &errMsg, &report); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		if report != nil {
			r.Report = []byte(*report)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *PostgresStore) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, tc := range tableCountQueries(s.schema + ".") {
		var n int
		if err := s.pool.QueryRow(ctx, tc.query).Scan(&n); err != nil {
			return nil, eris.Wrapf(err, "postgres: count %s", tc.table)
		}
		counts[tc.table] = n
	}
	return counts, nil
}

// batchEntityOrder returns the sorted distinct entity ids of a batch.
func batchEntityOrder(batch []model.EntityVersion) []string {
	seen := make(map[string]struct{}, len(batch))
	for _, v := range batch {
		seen[v.EntityID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
