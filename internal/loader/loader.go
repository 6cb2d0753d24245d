// Package loader copies delivered flat files into the staging tables.
// Parsing is deliberately dumb: map columns, parse dates and numbers, and
// stage everything; winner selection and validation happen downstream.
package loader

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/warlab/hr-datamart/internal/feed"
	"github.com/warlab/hr-datamart/internal/model"
	"github.com/warlab/hr-datamart/internal/refdata"
	"github.com/warlab/hr-datamart/internal/store"
)

// Rescind file columns.
const (
	rescindWIDCol    = "workday_id"
	rescindTableCol  = "idp_table"
	rescindMomentCol = "rescinded_moment"
)

var momentLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Loader stages CSV deliveries.
type Loader struct {
	st  store.Store
	reg *feed.Registry
	log *zap.Logger
}

// New creates a loader over the given store and feed registry.
func New(st store.Store, reg *feed.Registry) *Loader {
	return &Loader{
		st:  st,
		reg: reg,
		log: zap.L().With(zap.String("component", "loader")),
	}
}

// LoadFeedCSV stages one feed file, replacing the feed's staging table.
// Returns the number of staged records; subtype-filtered rows don't count.
func (l *Loader) LoadFeedCSV(ctx context.Context, feedName, path string) (int, error) {
	spec, ok := l.reg.Get(feedName)
	if !ok {
		return 0, eris.Errorf("loader: unknown feed %q", feedName)
	}

	var records []model.SourceRecord
	err := readCSV(path, func(line int, row map[string]string) error {
		if spec.FilterCol != "" && row[spec.FilterCol] != spec.FilterValue {
			return nil
		}
		effective, err := time.Parse("2006-01-02", row[spec.EffectiveCol])
		if err != nil {
			return eris.Wrapf(err, "line %d: effective date", line)
		}
		entry, err := parseMoment(row[spec.EntryCol])
		if err != nil {
			return eris.Wrapf(err, "line %d: entry timestamp", line)
		}
		seq, err := strconv.Atoi(row[spec.SeqCol])
		if err != nil {
			return eris.Wrapf(err, "line %d: sequence number", line)
		}
		attrs := make(map[string]string, len(spec.AttrCols))
		for col, attr := range spec.AttrCols {
			if v := row[col]; v != "" {
				attrs[attr] = v
			}
		}
		records = append(records, model.SourceRecord{
			EntityID:       row[spec.EntityCol],
			EffectiveDate:  model.DateOf(effective),
			EntryTimestamp: entry,
			SequenceNumber: seq,
			TransactionWID: row[spec.WIDCol],
			Attrs:          attrs,
		})
		return nil
	})
	if err != nil {
		return 0, eris.Wrapf(err, "loader: read feed %s from %s", feedName, path)
	}
	if err := l.st.ReplaceSourceRecords(ctx, feedName, records); err != nil {
		return 0, err
	}
	l.log.Info("staged feed", zap.String("feed", feedName), zap.Int("records", len(records)))
	return len(records), nil
}

// LoadRescindsCSV stages the cancellation file, replacing all rescinds.
func (l *Loader) LoadRescindsCSV(ctx context.Context, path string) (int, error) {
	var rescinds []model.Rescind
	err := readCSV(path, func(line int, row map[string]string) error {
		moment, err := parseMoment(row[rescindMomentCol])
		if err != nil {
			return eris.Wrapf(err, "line %d: rescinded moment", line)
		}
		rescinds = append(rescinds, model.Rescind{
			TransactionWID:  row[rescindWIDCol],
			SourceTable:     row[rescindTableCol],
			RescindedMoment: moment,
		})
		return nil
	})
	if err != nil {
		return 0, eris.Wrapf(err, "loader: read rescinds from %s", path)
	}
	if err := l.st.ReplaceRescinds(ctx, rescinds); err != nil {
		return 0, err
	}
	l.log.Info("staged rescinds", zap.Int("records", len(rescinds)))
	return len(rescinds), nil
}

// LoadDimensionCSV stages one reference dimension extract. A missing
// valid_to means the window is open-ended.
func (l *Loader) LoadDimensionCSV(ctx context.Context, spec refdata.DimensionSpec, path string) (int, error) {
	var entries []refdata.Entry
	err := readCSV(path, func(line int, row map[string]string) error {
		key, err := strconv.ParseInt(row[spec.KeyCol], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "line %d: surrogate key", line)
		}
		from, err := time.Parse("2006-01-02", row[spec.ValidFromCol])
		if err != nil {
			return eris.Wrapf(err, "line %d: valid from", line)
		}
		to := model.OpenEndDate
		if v := row[spec.ValidToCol]; v != "" {
			if to, err = time.Parse("2006-01-02", v); err != nil {
				return eris.Wrapf(err, "line %d: valid to", line)
			}
		}
		entries = append(entries, refdata.Entry{
			SurrogateKey: key,
			NaturalKey:   row[spec.NaturalCol],
			ValidFrom:    model.DateOf(from),
			ValidTo:      model.DateOf(to),
		})
		return nil
	})
	if err != nil {
		return 0, eris.Wrapf(err, "loader: read dimension %s from %s", spec.Name, path)
	}
	if err := l.st.ReplaceDimension(ctx, spec.Name, entries); err != nil {
		return 0, err
	}
	l.log.Info("staged dimension", zap.String("dimension", spec.Name), zap.Int("entries", len(entries)))
	return len(entries), nil
}

// readCSV streams a headered CSV, handing each row to fn as a column map.
func readCSV(path string, fn func(line int, row map[string]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrap(err, "open")
	}
	defer f.Close()

	r := csv.NewReader(f)

	header, err := r.Read()
	if err != nil {
		return eris.Wrap(err, "read header")
	}
	columns := append([]string(nil), header...)

	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "line %d", line+1)
		}
		line++
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		if err := fn(line, row); err != nil {
			return err
		}
	}
}

func parseMoment(v string) (time.Time, error) {
	for _, layout := range momentLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized timestamp %q", v)
}
