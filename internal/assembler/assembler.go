// Package assembler merges the raw batch files into the relational store.
//
// A run stages its intermediates in a fresh directory under the work dir:
// one tagged copy of every alignment file, the concatenated alignment and
// sequence files, the sequences in id,bases form and the run-date table.
// The schema is created once, each table is appended in one transaction,
// and the staged files are removed again.
package assembler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"blastsum/internal/batch"
	"blastsum/internal/capacity"
	"blastsum/internal/config"
	"blastsum/internal/loader"
	"blastsum/internal/logging"
	"blastsum/internal/metrics"
	"blastsum/internal/models"
	"blastsum/internal/store"
	"blastsum/internal/tracing"
	"blastsum/internal/utils"
)

// StageAssemble labels assembly metrics, skips and spans
const StageAssemble = "assemble"

// Result describes one assembly run
type Result struct {
	RunID      uuid.UUID             `json:"run_id" yaml:"run_id"`
	StagingDir string                `json:"staging_dir" yaml:"staging_dir"`
	Capacity   *capacity.UsageInfo   `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Batches    []string              `json:"batches" yaml:"batches"`
	Sources    []Source              `json:"sources" yaml:"sources"`
	Schema     store.SchemaReport    `json:"schema" yaml:"schema"`
	Tables     []store.AppendResult  `json:"tables" yaml:"tables"`
	Violations []error               `json:"-" yaml:"-"`
	Skipped    []utils.Skip          `json:"skipped" yaml:"skipped"`
	Orphans    store.OrphanReport    `json:"orphans" yaml:"orphans"`
	Kept       []string              `json:"kept,omitempty" yaml:"kept,omitempty"`
	Counts     map[string]int64      `json:"counts" yaml:"counts"`
	ByBatch    map[string]BatchCount `json:"-" yaml:"-"`
}

// Source is one input file that went into the store
type Source struct {
	Batch  string `json:"batch" yaml:"batch"`
	Path   string `json:"path" yaml:"path"`
	SHA256 string `json:"sha256" yaml:"sha256"`
}

// BatchCount is the number of staged rows contributed by one batch
type BatchCount struct {
	Alignments int
	Sequences  int
}

// Assembler builds the relational store from discovered batches
type Assembler struct {
	workDir           string
	keepIntermediates bool
	marker            string

	loader  *loader.Loader
	store   *store.Store
	guard   *capacity.Guard
	metrics *metrics.Metrics
	tracer  *tracing.Tracer
	logger  zerolog.Logger

	newRunID func() uuid.UUID
}

// NewAssembler wires an assembler. guard may be nil to skip the capacity
// check.
func NewAssembler(cfg *config.AppConfig, st *store.Store, guard *capacity.Guard, m *metrics.Metrics, tracer *tracing.Tracer, logger zerolog.Logger) *Assembler {
	return &Assembler{
		workDir:           cfg.Store.WorkDir,
		keepIntermediates: cfg.Store.KeepIntermediates,
		marker:            cfg.RunDate.Marker,
		loader:            loader.NewLoader(cfg.Input.AlignmentDelimiter),
		store:             st,
		guard:             guard,
		metrics:           m,
		tracer:            tracer,
		logger:            logger,
		newRunID:          uuid.New,
	}
}

// Assemble stages every batch in d, creates the schema and appends the three
// tables. A batch whose files do not parse is skipped; an incompatible
// existing table, a full work volume or a failed append aborts the run.
// Staged files are removed on every path unless intermediates are kept.
func (a *Assembler) Assemble(ctx context.Context, d batch.Discovery) (res *Result, err error) {
	start := time.Now()
	ctx, span := a.tracer.StartSpan(ctx, StageAssemble)
	defer span.End()
	defer func() {
		if err != nil {
			tracing.SetSpanError(ctx, err)
		}
	}()

	res = &Result{
		RunID:   a.newRunID(),
		ByBatch: make(map[string]BatchCount),
	}
	log := logging.WithContextFields(logging.WithTrace(ctx, a.logger), logging.LogContext{RunID: res.RunID.String()})

	if a.guard != nil {
		usage, err := a.guard.Check(a.workDir)
		if err != nil {
			return res, err
		}
		res.Capacity = &usage
	}

	stg, err := newStaging(a.workDir, res.RunID.String())
	if err != nil {
		return res, err
	}
	res.StagingDir = stg.dir
	defer func() {
		if a.keepIntermediates {
			res.Kept = append([]string(nil), stg.files...)
			log.Info().Str("dir", stg.dir).Int("files", len(stg.files)).Msg("Intermediates kept")
			return
		}
		if cerr := stg.cleanup(); cerr != nil {
			log.Error().Err(cerr).Str("dir", stg.dir).Msg("Failed to remove intermediates")
			if err == nil {
				err = cerr
			}
			return
		}
		log.Debug().Str("dir", stg.dir).Int("files", len(stg.files)).Msg("Intermediates removed")
	}()

	for _, problem := range d.Problems {
		res.Skipped = append(res.Skipped, a.skip("", problem))
	}

	origins, err := a.stage(ctx, stg, d.Batches, res)
	if err != nil {
		return res, err
	}

	res.Schema, err = a.store.CreateSchema(ctx)
	if err != nil {
		return res, err
	}

	if err := a.load(ctx, stg, origins, res); err != nil {
		return res, err
	}

	res.Orphans, err = a.store.Orphans(ctx)
	if err != nil {
		return res, err
	}
	res.Counts, err = a.store.Counts(ctx)
	if err != nil {
		return res, err
	}

	tracing.AddAttributes(ctx,
		attribute.Int("batches.assembled", len(res.Batches)),
		attribute.Int("batches.skipped", len(res.Skipped)),
		attribute.Int("integrity.violations", len(res.Violations)),
	)
	a.metrics.ObserveStage(StageAssemble, start)
	log.Info().
		Str("stage", StageAssemble).
		Int("batches", len(res.Batches)).
		Int("skipped", len(res.Skipped)).
		Int("violations", len(res.Violations)).
		Dur("duration", time.Since(start)).
		Msg("Stage completed")

	return res, nil
}

// stage writes the intermediates and returns the batch id of every staged
// sequence in order
func (a *Assembler) stage(ctx context.Context, stg *staging, batches []batch.Batch, res *Result) ([]string, error) {
	var tagged, sequences, seqBatches []string
	var runDates []models.RunDateRecord

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		loaded, err := a.loadBatch(ctx, b)
		if err != nil {
			res.Skipped = append(res.Skipped, a.skip(b.ID, err))
			continue
		}

		name := TaggedName(b.AlignmentFile)
		if err := stg.writeTagged(name, loaded.Alignments); err != nil {
			return nil, err
		}
		tagged = append(tagged, stg.path(name))
		sequences = append(sequences, b.SequenceFile)
		seqBatches = append(seqBatches, b.ID)

		if b.RunDateFile != "" {
			rec, err := loader.LoadRunDates(b.RunDateFile, a.marker, b.ID)
			if err != nil {
				res.Skipped = append(res.Skipped, a.skip(b.ID, err))
			} else {
				runDates = append(runDates, rec)
			}
		}

		for _, path := range []string{b.AlignmentFile, b.SequenceFile, b.RunDateFile} {
			if path == "" {
				continue
			}
			sum, err := utils.FileSHA256(path)
			if err != nil {
				return nil, err
			}
			res.Sources = append(res.Sources, Source{Batch: b.ID, Path: path, SHA256: sum})
		}

		res.Batches = append(res.Batches, b.ID)
		res.ByBatch[b.ID] = BatchCount{Alignments: len(loaded.Alignments), Sequences: len(loaded.Sequences)}
		a.metrics.BatchProcessed(StageAssemble)
	}

	if _, err := stg.concat(ConcatAlignments, tagged); err != nil {
		return nil, err
	}

	blocks, err := stg.concat(ConcatSequences, sequences)
	if err != nil {
		return nil, err
	}
	var origins []string
	for i, n := range blocks {
		for j := 0; j < n; j++ {
			origins = append(origins, seqBatches[i])
		}
	}

	if _, err := stg.tabulate(ConcatSequences, TabularSequences); err != nil {
		return nil, err
	}
	if err := stg.writeRunDates(StagedRunDates, runDates); err != nil {
		return nil, err
	}

	a.logger.Debug().
		Str("dir", stg.dir).
		Int("alignment_files", len(tagged)).
		Int("sequences", len(origins)).
		Int("run_dates", len(runDates)).
		Msg("Intermediates staged")

	return origins, nil
}

func (a *Assembler) loadBatch(ctx context.Context, b batch.Batch) (*loader.Loaded, error) {
	ctx, span := a.tracer.StartSpanWithAttributes(ctx, "batch", tracing.BatchAttrs(StageAssemble, b.ID)...)
	defer span.End()

	loaded, err := a.loader.Load(b)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, err
	}
	return loaded, nil
}

// load reads the staged tables back and appends them in load order
func (a *Assembler) load(ctx context.Context, stg *staging, origins []string, res *Result) error {
	alignments, err := readStagedAlignments(stg.path(ConcatAlignments))
	if err != nil {
		return err
	}
	a.rejected(models.AlignmentRecord{}.TableName(), alignments.Rejected, res)
	ar, err := a.store.AppendAlignments(ctx, alignments.Rows)
	if err != nil {
		return err
	}
	a.appended(ar, res)

	sequences, err := readStagedSequences(stg.path(TabularSequences), origins)
	if err != nil {
		return err
	}
	a.rejected(models.SequenceRecord{}.TableName(), sequences.Rejected, res)
	ar, err = a.store.AppendSequences(ctx, sequences.Rows)
	if err != nil {
		return err
	}
	a.appended(ar, res)

	runDates, err := readStagedRunDates(stg.path(StagedRunDates))
	if err != nil {
		return err
	}
	a.rejected(models.RunDateRecord{}.TableName(), runDates.Rejected, res)
	ar, err = a.store.AppendRunDates(ctx, runDates.Rows)
	if err != nil {
		return err
	}
	a.appended(ar, res)
	return nil
}

func (a *Assembler) appended(ar store.AppendResult, res *Result) {
	res.Tables = append(res.Tables, ar)
	res.Violations = append(res.Violations, ar.Violations...)
	for _, v := range ar.Violations {
		res.Skipped = append(res.Skipped, utils.NewSkip(StageAssemble, "", v))
	}
}

func (a *Assembler) rejected(table string, errs []error, res *Result) {
	for _, err := range errs {
		a.metrics.RowsSkippedTotal.WithLabelValues(table).Inc()
		res.Skipped = append(res.Skipped, a.skip("", err))
	}
}

func (a *Assembler) skip(batchID string, err error) utils.Skip {
	s := utils.NewSkip(StageAssemble, batchID, err)
	a.metrics.BatchSkipped(StageAssemble, string(s.Kind))
	log := logging.WithContextFields(a.logger, logging.LogContext{Stage: StageAssemble, Batch: s.Batch, File: s.File})
	log.Warn().
		Str("kind", string(s.Kind)).
		Err(err).
		Msg("Skipped")
	return s
}
