// Package store holds the write-once relational store of alignment,
// sequence and run-date tables.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"blastsum/internal/logging"
	"blastsum/internal/metrics"
	"blastsum/internal/models"
	"blastsum/internal/utils"
)

// Store appends records to the three tables through gorm
type Store struct {
	db      *gorm.DB
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewStore wraps db. m may be nil.
func NewStore(db *gorm.DB, m *metrics.Metrics, logger zerolog.Logger) *Store {
	return &Store{db: db, metrics: m, logger: logger}
}

// SchemaReport says which tables were created and which already existed
// with a compatible shape
type SchemaReport struct {
	Created []string `json:"created" yaml:"created"`
	Reused  []string `json:"reused" yaml:"reused"`
}

// CreateSchema creates the missing tables. A table that exists with
// different columns is a SchemaError and nothing further is created.
func (s *Store) CreateSchema(ctx context.Context) (SchemaReport, error) {
	var report SchemaReport
	db := s.db.WithContext(ctx)
	migrator := db.Migrator()

	// check every existing table before creating anything
	var missing []TableSchema
	for _, table := range Tables {
		if !migrator.HasTable(table.Name) {
			missing = append(missing, table)
			continue
		}

		columns, err := migrator.ColumnTypes(table.Name)
		if err != nil {
			return report, utils.NewSchemaError("", 0, "table %s: reading columns: %v", table.Name, err)
		}
		names := make([]string, len(columns))
		for i, c := range columns {
			names[i] = strings.ToLower(c.Name())
		}
		if !sameColumns(names, table.Columns) {
			return report, utils.NewSchemaError("", 0, "table %s exists with columns [%s], want [%s]",
				table.Name, strings.Join(names, ","), strings.Join(table.Columns, ","))
		}

		report.Reused = append(report.Reused, table.Name)
		s.logger.Warn().Str("table", table.Name).Msg("Table already exists, appending to it")
	}

	for _, table := range missing {
		if err := db.Exec(table.Create).Error; err != nil {
			return report, utils.NewSchemaError("", 0, "create table %s: %v", table.Name, err)
		}
		for _, ddl := range table.Indexes {
			if err := db.Exec(ddl).Error; err != nil {
				return report, utils.NewSchemaError("", 0, "create index on %s: %v", table.Name, err)
			}
		}
		report.Created = append(report.Created, table.Name)
		s.logger.Info().Str("table", table.Name).Msg("Table created")
	}

	return report, nil
}

func sameColumns(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	a := append([]string(nil), got...)
	b := append([]string(nil), want...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Row is a record staged for loading, with the batch and staging line it
// came from
type Row[T any] struct {
	Record T
	Batch  string
	Line   int
}

// AppendResult summarizes one table append. Violations holds one
// IntegrityError per row that collided with an existing key.
type AppendResult struct {
	Table      string  `json:"table" yaml:"table"`
	Loaded     int     `json:"loaded" yaml:"loaded"`
	Violations []error `json:"-" yaml:"-"`
}

// AppendAlignments loads blast_data rows
func (s *Store) AppendAlignments(ctx context.Context, rows []Row[models.AlignmentRecord]) (AppendResult, error) {
	return appendRows(ctx, s, models.AlignmentRecord{}.TableName(), rows, func(r models.AlignmentRecord) string { return r.QSeqID })
}

// AppendSequences loads seq_data rows
func (s *Store) AppendSequences(ctx context.Context, rows []Row[models.SequenceRecord]) (AppendResult, error) {
	return appendRows(ctx, s, models.SequenceRecord{}.TableName(), rows, func(r models.SequenceRecord) string { return r.ID })
}

// AppendRunDates loads seq_year rows
func (s *Store) AppendRunDates(ctx context.Context, rows []Row[models.RunDateRecord]) (AppendResult, error) {
	return appendRows(ctx, s, models.RunDateRecord{}.TableName(), rows, func(r models.RunDateRecord) string { return r.SeqFileID })
}

// appendRows inserts rows in one transaction with a savepoint around each
// insert. A duplicate key rolls back to the savepoint, is recorded as a
// violation, and loading continues; any other failure aborts the table.
func appendRows[T any](ctx context.Context, s *Store, table string, rows []Row[T], key func(T) string) (AppendResult, error) {
	result := AppendResult{Table: table}
	const sp = "blastsum_row"

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			row := &rows[i]

			if err := tx.SavePoint(sp).Error; err != nil {
				return errors.Wrapf(err, "savepoint on %s", table)
			}

			if err := tx.Table(table).Create(&row.Record).Error; err != nil {
				if rbErr := tx.RollbackTo(sp).Error; rbErr != nil {
					return errors.Wrapf(rbErr, "rollback to savepoint on %s", table)
				}
				if relErr := tx.Exec(fmt.Sprintf("RELEASE SAVEPOINT %s", sp)).Error; relErr != nil {
					return errors.Wrapf(relErr, "release savepoint on %s", table)
				}
				if !isDuplicateKey(err) {
					return errors.Wrapf(err, "insert into %s at staged line %d", table, row.Line)
				}

				violation := utils.NewIntegrityError(table, key(row.Record), row.Batch, err)
				result.Violations = append(result.Violations, violation)
				if s.metrics != nil {
					s.metrics.IntegrityErrorsTotal.WithLabelValues(table).Inc()
				}
				log := logging.WithContextFields(s.logger, logging.LogContext{Table: table, Batch: row.Batch})
				log.Warn().
					Str("key", key(row.Record)).
					Msg("Primary key collision, row skipped")
				continue
			}

			if err := tx.Exec(fmt.Sprintf("RELEASE SAVEPOINT %s", sp)).Error; err != nil {
				return errors.Wrapf(err, "release savepoint on %s", table)
			}
			result.Loaded++
		}
		return nil
	})
	if err != nil {
		return AppendResult{Table: table}, err
	}

	if s.metrics != nil {
		s.metrics.RowsLoadedTotal.WithLabelValues(table).Add(float64(result.Loaded))
	}
	s.logger.Info().
		Str("table", table).
		Int("loaded", result.Loaded).
		Int("violations", len(result.Violations)).
		Msg("Table appended")

	return result, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// Counts returns the row count of every table
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		var n int64
		if err := s.db.WithContext(ctx).Table(table.Name).Count(&n).Error; err != nil {
			return nil, errors.Wrapf(err, "count %s", table.Name)
		}
		counts[table.Name] = n
	}
	return counts, nil
}

// OrphanReport counts rows whose logical reference has no target
type OrphanReport struct {
	// SequencesWithoutHit are seq_data rows with no blast_data row; these
	// are the non-hitters and expected
	SequencesWithoutHit int64 `json:"sequences_without_hit" yaml:"sequences_without_hit"`
	// HitsWithoutSequence are blast_data rows with no seq_data row
	HitsWithoutSequence int64 `json:"hits_without_sequence" yaml:"hits_without_sequence"`
	// RunDatesWithoutBatch are seq_year rows whose batch has no alignment row
	RunDatesWithoutBatch int64 `json:"run_dates_without_batch" yaml:"run_dates_without_batch"`
}

// Orphans checks the logical references between the tables
func (s *Store) Orphans(ctx context.Context) (OrphanReport, error) {
	var report OrphanReport
	db := s.db.WithContext(ctx)

	queries := []struct {
		dest *int64
		sql  string
	}{
		{&report.SequencesWithoutHit, `SELECT COUNT(*) FROM seq_data s WHERE NOT EXISTS (SELECT 1 FROM blast_data b WHERE b.qseqid = s.gnl_num)`},
		{&report.HitsWithoutSequence, `SELECT COUNT(*) FROM blast_data b WHERE NOT EXISTS (SELECT 1 FROM seq_data s WHERE s.gnl_num = b.qseqid)`},
		{&report.RunDatesWithoutBatch, `SELECT COUNT(*) FROM seq_year y WHERE NOT EXISTS (SELECT 1 FROM blast_data b WHERE b.seqfile = y.seqfile_id)`},
	}
	for _, q := range queries {
		if err := db.Raw(q.sql).Scan(q.dest).Error; err != nil {
			return report, errors.Wrap(err, "orphan check")
		}
	}
	return report, nil
}
