package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/warlab/hr-datamart/internal/model"
	"github.com/warlab/hr-datamart/internal/refdata"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the embedded
// backend for local runs and integration tests; dates are stored as ISO text
// so comparisons stay lexicographic.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "file:hrdm.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// An in-memory database exists per connection; cap the pool so every
	// statement sees the same one.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS stg_source_record (
	feed            TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	effective_date  TEXT NOT NULL,
	entry_timestamp TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	transaction_wid TEXT NOT NULL,
	attrs           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stg_rescind (
	transaction_wid  TEXT NOT NULL,
	source_table     TEXT NOT NULL,
	rescinded_moment TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stg_dimension (
	dimension     TEXT NOT NULL,
	surrogate_key INTEGER NOT NULL,
	natural_key   TEXT NOT NULL,
	valid_from    TEXT NOT NULL,
	valid_to      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_version (
	id            TEXT PRIMARY KEY,
	entity_id     TEXT NOT NULL,
	effective_from TEXT NOT NULL,
	effective_to  TEXT NOT NULL,
	attrs         TEXT NOT NULL,
	fingerprint   TEXT NOT NULL,
	is_current    INTEGER NOT NULL,
	run_id        TEXT NOT NULL,
	loaded_at     TEXT NOT NULL,
	superseded_at TEXT,
	deleted_at    TEXT
);

CREATE TABLE IF NOT EXISTS change_fact (
	entity_id            TEXT NOT NULL,
	effective_date       TEXT NOT NULL,
	prior_effective_date TEXT NOT NULL,
	attrs                TEXT NOT NULL,
	prior_attrs          TEXT NOT NULL,
	metrics              TEXT NOT NULL,
	run_id               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot (
	snapshot_date       TEXT NOT NULL,
	entity_id           TEXT NOT NULL,
	company_key         INTEGER,
	cost_center_key     INTEGER,
	location_key        INTEGER,
	job_profile_key     INTEGER,
	supervisory_org_key INTEGER,
	status              TEXT NOT NULL,
	headcount           INTEGER NOT NULL,
	run_id              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_log (
	run_id       TEXT PRIMARY KEY,
	batch_id     TEXT NOT NULL,
	data_date    TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	error        TEXT,
	report       TEXT
);

CREATE INDEX IF NOT EXISTS idx_stg_source_record_feed ON stg_source_record(feed);
CREATE INDEX IF NOT EXISTS idx_stg_dimension_dim ON stg_dimension(dimension);
CREATE INDEX IF NOT EXISTS idx_entity_version_entity ON entity_version(entity_id, effective_from);
CREATE INDEX IF NOT EXISTS idx_change_fact_entity ON change_fact(entity_id, effective_date);
CREATE INDEX IF NOT EXISTS idx_snapshot_date ON snapshot(snapshot_date);
CREATE INDEX IF NOT EXISTS idx_run_log_started ON run_log(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const (
	dayFormat    = "2006-01-02"
	momentFormat = time.RFC3339Nano
)

func parseDay(v string) (time.Time, error) {
	t, err := time.Parse(dayFormat, v)
	return t, eris.Wrapf(err, "sqlite: parse date %q", v)
}

func parseMoment(v string) (time.Time, error) {
	t, err := time.Parse(momentFormat, v)
	return t, eris.Wrapf(err, "sqlite: parse timestamp %q", v)
}

func (s *SQLiteStore) ReplaceSourceRecords(ctx context.Context, feedName string, records []model.SourceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace source records")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stg_source_record WHERE feed = ?`, feedName); err != nil {
		return eris.Wrapf(err, "sqlite: clear staging for %s", feedName)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO stg_source_record
		(feed, entity_id, effective_date, entry_timestamp, sequence_number, transaction_wid, attrs)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare staging insert")
	}
	defer stmt.Close()

	for _, r := range records {
		attrs, err := json.Marshal(r.Attrs)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal attrs")
		}
		if _, err := stmt.ExecContext(ctx,
			feedName, r.EntityID, r.EffectiveDate.Format(dayFormat),
			r.EntryTimestamp.UTC().Format(momentFormat), r.SequenceNumber,
			r.TransactionWID, string(attrs),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert staging row for %s", feedName)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace source records")
}

func (s *SQLiteStore) SourceRecords(ctx context.Context, feedName string) ([]model.SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id, effective_date, entry_timestamp,
		sequence_number, transaction_wid, attrs
		FROM stg_source_record WHERE feed = ?`, feedName)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: select staging for %s", feedName)
	}
	defer rows.Close()

	var out []model.SourceRecord
	for rows.Next() {
		var r model.SourceRecord
		var effective, entry, attrs string
		if err := rows.Scan(&r.EntityID, &effective, &entry, &r.SequenceNumber, &r.TransactionWID, &attrs); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan staging row")
		}
		if r.EffectiveDate, err = parseDay(effective); err != nil {
			return nil, err
		}
		if r.EntryTimestamp, err = parseMoment(entry); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &r.Attrs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal attrs")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate staging rows")
}

func (s *SQLiteStore) ReplaceRescinds(ctx context.Context, rescinds []model.Rescind) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace rescinds")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stg_rescind`); err != nil {
		return eris.Wrap(err, "sqlite: clear rescinds")
	}
	for _, r := range rescinds {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stg_rescind (transaction_wid, source_table, rescinded_moment) VALUES (?, ?, ?)`,
			r.TransactionWID, r.SourceTable, r.RescindedMoment.UTC().Format(momentFormat),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert rescind")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace rescinds")
}

func (s *SQLiteStore) Rescinds(ctx context.Context) ([]model.Rescind, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT transaction_wid, source_table, rescinded_moment FROM stg_rescind`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select rescinds")
	}
	defer rows.Close()

	var out []model.Rescind
	for rows.Next() {
		var r model.Rescind
		var moment string
		if err := rows.Scan(&r.TransactionWID, &r.SourceTable, &moment); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rescind")
		}
		if r.RescindedMoment, err = parseMoment(moment); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate rescinds")
}

func (s *SQLiteStore) ReplaceDimension(ctx context.Context, dimension string, entries []refdata.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace dimension")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stg_dimension WHERE dimension = ?`, dimension); err != nil {
		return eris.Wrapf(err, "sqlite: clear dimension %s", dimension)
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stg_dimension (dimension, surrogate_key, natural_key, valid_from, valid_to)
			 VALUES (?, ?, ?, ?, ?)`,
			dimension, e.SurrogateKey, e.NaturalKey,
			e.ValidFrom.Format(dayFormat), e.ValidTo.Format(dayFormat),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert dimension %s", dimension)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace dimension")
}

func (s *SQLiteStore) DimensionEntries(ctx context.Context, dimension string) ([]refdata.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT surrogate_key, natural_key, valid_from, valid_to FROM stg_dimension WHERE dimension = ?`,
		dimension)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: select dimension %s", dimension)
	}
	defer rows.Close()

	var out []refdata.Entry
	for rows.Next() {
		var e refdata.Entry
		var from, to string
		if err := rows.Scan(&e.SurrogateKey, &e.NaturalKey, &from, &to); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dimension entry")
		}
		if e.ValidFrom, err = parseDay(from); err != nil {
			return nil, err
		}
		if e.ValidTo, err = parseDay(to); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate dimension entries")
}

func (s *SQLiteStore) MergeVersions(ctx context.Context, runID string, batch []model.EntityVersion) (MergeStats, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MergeStats{}, eris.Wrap(err, "sqlite: begin merge")
	}
	defer tx.Rollback()

	live, err := s.liveVersions(ctx, tx)
	if err != nil {
		return MergeStats{}, err
	}
	plan := planMerge(live, batch)
	if plan.empty() {
		return plan.stats, eris.Wrap(tx.Commit(), "sqlite: commit merge")
	}
	now := time.Now().UTC().Format(momentFormat)

	for _, key := range plan.supersedes {
		if _, err := tx.ExecContext(ctx,
			`UPDATE entity_version SET superseded_at = ?
			 WHERE entity_id = ? AND effective_from = ? AND superseded_at IS NULL AND deleted_at IS NULL`,
			now, key.entityID, key.from.Format(dayFormat),
		); err != nil {
			return MergeStats{}, eris.Wrap(err, "sqlite: supersede version")
		}
	}
	for _, key := range plan.deletes {
		if _, err := tx.ExecContext(ctx,
			`UPDATE entity_version SET deleted_at = ?
			 WHERE entity_id = ? AND effective_from = ? AND superseded_at IS NULL AND deleted_at IS NULL`,
			now, key.entityID, key.from.Format(dayFormat),
		); err != nil {
			return MergeStats{}, eris.Wrap(err, "sqlite: soft-delete version")
		}
	}
	for _, v := range plan.updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE entity_version SET effective_to = ?, is_current = ?, run_id = ?
			 WHERE entity_id = ? AND effective_from = ? AND superseded_at IS NULL AND deleted_at IS NULL`,
			v.EffectiveTo.Format(dayFormat), boolInt(v.IsCurrent), runID,
			v.EntityID, v.EffectiveFrom.Format(dayFormat),
		); err != nil {
			return MergeStats{}, eris.Wrap(err, "sqlite: adjust version window")
		}
	}
	for _, v := range plan.inserts {
		attrs, err := json.Marshal(v.Attrs)
		if err != nil {
			return MergeStats{}, eris.Wrap(err, "sqlite: marshal version attrs")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entity_version
			 (id, entity_id, effective_from, effective_to, attrs, fingerprint, is_current, run_id, loaded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), v.EntityID,
			v.EffectiveFrom.Format(dayFormat), v.EffectiveTo.Format(dayFormat),
			string(attrs), v.Fingerprint, boolInt(v.IsCurrent), runID, now,
		); err != nil {
			return MergeStats{}, eris.Wrap(err, "sqlite: insert version")
		}
	}

	return plan.stats, eris.Wrap(tx.Commit(), "sqlite: commit merge")
}

type sqlQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) liveVersions(ctx context.Context, q sqlQueryer) ([]model.EntityVersion, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT entity_id, effective_from, effective_to, attrs, fingerprint, is_current, run_id
		 FROM entity_version
		 WHERE superseded_at IS NULL AND deleted_at IS NULL
		 ORDER BY entity_id, effective_from`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select live versions")
	}
	defer rows.Close()

	var out []model.EntityVersion
	for rows.Next() {
		var v model.EntityVersion
		var from, to, attrs string
		var current int
		if err := rows.Scan(&v.EntityID, &from, &to, &attrs, &v.Fingerprint, &current, &v.RunID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan version")
		}
		if v.EffectiveFrom, err = parseDay(from); err != nil {
			return nil, err
		}
		if v.EffectiveTo, err = parseDay(to); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &v.Attrs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal version attrs")
		}
		v.IsCurrent = current != 0
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate versions")
}

func (s *SQLiteStore) CurrentTimelines(ctx context.Context) (map[string][]model.EntityVersion, error) {
	live, err := s.liveVersions(ctx, s.db)
	if err != nil {
		return nil, err
	}
	timelines := make(map[string][]model.EntityVersion)
	for _, v := range live {
		timelines[v.EntityID] = append(timelines[v.EntityID], v)
	}
	return timelines, nil
}

func (s *SQLiteStore) ReplaceChangeFacts(ctx context.Context, runID string, facts []model.ChangeFact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace facts")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM change_fact`); err != nil {
		return eris.Wrap(err, "sqlite: clear facts")
	}
	for _, f := range facts {
		attrs, err := json.Marshal(f.Attrs)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal fact attrs")
		}
		prior, err := json.Marshal(f.PriorAttrs)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal fact prior attrs")
		}
		metrics, err := json.Marshal(f.Metrics)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal fact metrics")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO change_fact
			 (entity_id, effective_date, prior_effective_date, attrs, prior_attrs, metrics, run_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.EntityID, f.EffectiveDate.Format(dayFormat), f.PriorEffectiveDate.Format(dayFormat),
			string(attrs), string(prior), string(metrics), runID,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert fact")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace facts")
}

func (s *SQLiteStore) ChangeFacts(ctx context.Context, entityID string) ([]model.ChangeFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, effective_date, prior_effective_date, attrs, prior_attrs, metrics, run_id
		 FROM change_fact WHERE entity_id = ? ORDER BY effective_date`, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: select facts for %s", entityID)
	}
	defer rows.Close()

	var out []model.ChangeFact
	for rows.Next() {
		var f model.ChangeFact
		var effective, prior, attrs, priorAttrs, metrics string
		if err := rows.Scan(&f.EntityID, &effective, &prior, &attrs, &priorAttrs, &metrics, &f.RunID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact")
		}
		if f.EffectiveDate, err = parseDay(effective); err != nil {
			return nil, err
		}
		if f.PriorEffectiveDate, err = parseDay(prior); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &f.Attrs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal fact attrs")
		}
		if err := json.Unmarshal([]byte(priorAttrs), &f.PriorAttrs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal fact prior attrs")
		}
		if err := json.Unmarshal([]byte(metrics), &f.Metrics); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal fact metrics")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate facts")
}

func (s *SQLiteStore) ReplaceSnapshotWindow(ctx context.Context, runID string, dates []time.Time, rowsIn []model.SnapshotRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace snapshots")
	}
	defer tx.Rollback()

	for _, d := range dates {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot WHERE snapshot_date = ?`, d.Format(dayFormat)); err != nil {
			return eris.Wrap(err, "sqlite: clear snapshot date")
		}
	}
	for _, r := range rowsIn {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot
			 (snapshot_date, entity_id, company_key, cost_center_key, location_key,
			  job_profile_key, supervisory_org_key, status, headcount, run_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.SnapshotDate.Format(dayFormat), r.EntityID,
			r.CompanyKey, r.CostCenterKey, r.LocationKey, r.JobProfileKey, r.SupervisoryOrgKey,
			r.Status, r.Headcount, runID,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert snapshot row")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace snapshots")
}

func (s *SQLiteStore) SnapshotRows(ctx context.Context, date time.Time) ([]model.SnapshotRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot_date, entity_id, company_key, cost_center_key, location_key,
		        job_profile_key, supervisory_org_key, status, headcount, run_id
		 FROM snapshot WHERE snapshot_date = ? ORDER BY entity_id`, date.Format(dayFormat))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select snapshot rows")
	}
	defer rows.Close()

	var out []model.SnapshotRow
	for rows.Next() {
		var r model.SnapshotRow
		var day string
		if err := rows.Scan(&day, &r.EntityID, &r.CompanyKey, &r.CostCenterKey, &r.LocationKey,
			&r.JobProfileKey, &r.SupervisoryOrgKey, &r.Status, &r.Headcount, &r.RunID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot row")
		}
		if r.SnapshotDate, err = parseDay(day); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate snapshot rows")
}

func (s *SQLiteStore) StartRun(ctx context.Context, run model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (run_id, batch_id, data_date, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.BatchID, run.DataDate.Format(dayFormat),
		string(model.RunStatusRunning), run.StartedAt.UTC().Format(momentFormat),
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, report []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = ?, completed_at = ?, report = ? WHERE run_id = ?`,
		string(model.RunStatusComplete), time.Now().UTC().Format(momentFormat), string(report), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = ?, completed_at = ?, error = ? WHERE run_id = ?`,
		string(model.RunStatusFailed), time.Now().UTC().Format(momentFormat), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, batch_id, data_date, status, started_at, completed_at, error, report
		 FROM run_log ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *SQLiteStore) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, tc := range tableCountQueries("") {
		var n int
		if err := s.db.QueryRowContext(ctx, tc.query).Scan(&n); err != nil {
			return nil, eris.Wrapf(err, "sqlite: count %s", tc.table)
		}
		counts[tc.table] = n
	}
	return counts, nil
}

// helpers

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var dataDate, startedAt string
	var completedAt, errMsg, report sql.NullString

	if err := row.Scan(&r.RunID, &r.BatchID, &dataDate, &r.Status, &startedAt, &completedAt, &errMsg, &report); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	var err error
	if r.DataDate, err = parseDay(dataDate); err != nil {
		return nil, err
	}
	if r.StartedAt, err = parseMoment(startedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseMoment(completedAt.String)
		if err != nil {
			return nil, err
		}
		r.CompletedAt = &t
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if report.Valid {
		r.Report = []byte(report.String)
	}
	return &r, nil
}
