package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"blastsum/internal/batch"
	"blastsum/internal/config"
	"blastsum/internal/identity"
	"blastsum/internal/loader"
	"blastsum/internal/logging"
	"blastsum/internal/metrics"
	"blastsum/internal/models"
	"blastsum/internal/reducer"
	"blastsum/internal/summary"
	"blastsum/internal/tracing"
	"blastsum/internal/utils"
)

const (
	StageSummary = "summary"
	StageReduce  = "reduce"
)

// Pipeline runs the per-batch summary and the corpus reduction
type Pipeline struct {
	input  config.InputConfig
	output config.OutputConfig

	threshold float64
	loader    *loader.Loader
	calc      *identity.Calculator
	metrics   *metrics.Metrics
	tracer    *tracing.Tracer
	logger    zerolog.Logger

	// Now stamps output file names
	Now func() time.Time
}

// NewPipeline wires a pipeline from cfg
func NewPipeline(cfg *config.AppConfig, m *metrics.Metrics, tracer *tracing.Tracer, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		input:     cfg.Input,
		output:    cfg.Output,
		threshold: cfg.Reduction.HighIdentityThreshold,
		loader:    loader.NewLoader(cfg.Input.AlignmentDelimiter),
		calc:      identity.NewCalculator(cfg.Output.FileIDPrefix),
		metrics:   m,
		tracer:    tracer,
		logger:    logger,
		Now:       time.Now,
	}
}

// SummaryResult describes one summary pass
type SummaryResult struct {
	ArtifactPath string                `json:"artifact"`
	Rows         []models.BatchSummary `json:"-"`
	Skipped      []utils.Skip          `json:"skipped"`
}

// ReduceResult describes one reduction pass
type ReduceResult struct {
	Reduction reducer.Reduction `json:"reduction"`
	HighPath  string            `json:"high_path"`
	LowPath   string            `json:"low_path"`
	Skipped   []utils.Skip      `json:"skipped"`
}

// RunResult is a full summary plus reduction run
type RunResult struct {
	Summary *SummaryResult `json:"summary"`
	Reduce  *ReduceResult  `json:"reduce"`
}

// Run summarizes every batch, then reduces the artifact it wrote
func (p *Pipeline) Run(ctx context.Context, d batch.Discovery) (*RunResult, error) {
	sum, err := p.Summarize(ctx, d)
	if err != nil {
		return nil, err
	}

	red, err := p.ReduceArtifact(ctx, sum.ArtifactPath)
	if err != nil {
		return &RunResult{Summary: sum}, err
	}

	return &RunResult{Summary: sum, Reduce: red}, nil
}

// Summarize loads each batch in order and appends its summary row to a new
// artifact. Batches that fail to load or have nothing to summarize are
// skipped and reported; discovery problems are reported the same way.
// Cancellation is honoured between batches.
func (p *Pipeline) Summarize(ctx context.Context, d batch.Discovery) (*SummaryResult, error) {
	start := time.Now()
	ctx, span := p.tracer.StartSpan(ctx, StageSummary)
	defer span.End()

	path := filepath.Join(p.output.Dir, summary.FileName(p.output.SummaryPrefix, p.output.DateLayout, p.Now()))
	w, err := summary.NewWriter(path)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, err
	}

	res := &SummaryResult{ArtifactPath: path}
	for _, problem := range d.Problems {
		res.Skipped = append(res.Skipped, p.skip(StageSummary, "", problem))
	}

	for _, b := range d.Batches {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		row, err := p.summarizeBatch(ctx, b)
		if err == nil {
			err = w.Append(row)
		}
		if err != nil {
			res.Skipped = append(res.Skipped, p.skip(StageSummary, b.ID, err))
			continue
		}

		res.Rows = append(res.Rows, row)
		p.metrics.BatchProcessed(StageSummary)
		log := logging.WithTrace(ctx, p.logger)
		log.Debug().
			Str("batch", b.ID).
			Int("hits", row.NumHits).
			Int("qseqs", row.NumQSeqs).
			Float64("overall_ident", row.OverallIdent).
			Msg("Batch summarized")
	}

	tracing.AddAttributes(ctx,
		attribute.Int("batches.summarized", len(res.Rows)),
		attribute.Int("batches.skipped", len(res.Skipped)),
	)
	p.metrics.ObserveStage(StageSummary, start)
	log := logging.WithTrace(ctx, p.logger)
	log.Info().
		Str("stage", StageSummary).
		Str("artifact", path).
		Int("processed", len(res.Rows)).
		Int("skipped", len(res.Skipped)).
		Dur("duration", time.Since(start)).
		Msg("Stage completed")

	return res, nil
}

func (p *Pipeline) summarizeBatch(ctx context.Context, b batch.Batch) (models.BatchSummary, error) {
	ctx, span := p.tracer.StartSpanWithAttributes(ctx, "batch", tracing.BatchAttrs(StageSummary, b.ID)...)
	defer span.End()

	loaded, err := p.loader.Load(b)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return models.BatchSummary{}, err
	}

	row, err := p.calc.Summarize(b.ID, loaded.Alignments, loaded.Sequences)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return models.BatchSummary{}, err
	}
	return row, nil
}

// ReduceArtifact reads a summary artifact, reduces it and writes the high
// and low residual files next to it. Rows that fail validation are skipped
// and reported; a header mismatch aborts the reduction.
func (p *Pipeline) ReduceArtifact(ctx context.Context, artifactPath string) (*ReduceResult, error) {
	start := time.Now()
	ctx, span := p.tracer.StartSpan(ctx, StageReduce)
	defer span.End()

	read, err := summary.ReadFile(artifactPath, p.output.FileIDPrefix)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		p.metrics.BatchSkipped(StageReduce, kindLabel(err))
		return nil, err
	}

	res := &ReduceResult{}
	for _, rejected := range read.Rejected {
		res.Skipped = append(res.Skipped, p.skip(StageReduce, "", rejected))
	}

	res.Reduction = reducer.Reduce(read.Rows, p.threshold)

	now := p.Now()
	res.HighPath = filepath.Join(p.output.Dir, summary.FileName(p.output.HighPrefix, p.output.DateLayout, now))
	res.LowPath = filepath.Join(p.output.Dir, summary.FileName(p.output.LowPrefix, p.output.DateLayout, now))
	if err := reducer.WriteResiduals(res.Reduction, res.HighPath, res.LowPath); err != nil {
		tracing.SetSpanError(ctx, err)
		return res, err
	}

	p.metrics.PartitionSize.WithLabelValues("high").Set(float64(res.Reduction.High.Count))
	p.metrics.PartitionSize.WithLabelValues("low").Set(float64(res.Reduction.Low.Count))
	p.metrics.ObserveStage(StageReduce, start)

	tracing.AddAttributes(ctx,
		attribute.Int("partition.high", res.Reduction.High.Count),
		attribute.Int("partition.low", res.Reduction.Low.Count),
	)
	p.logger.Info().
		Str("stage", StageReduce).
		Int("batches", res.Reduction.All.Count).
		Int("high", res.Reduction.High.Count).
		Int("low", res.Reduction.Low.Count).
		Float64("threshold", p.threshold).
		Msg("Stage completed")

	return res, nil
}

func (p *Pipeline) skip(stage, batchID string, err error) utils.Skip {
	s := utils.NewSkip(stage, batchID, err)
	p.metrics.BatchSkipped(stage, string(s.Kind))
	log := logging.WithContextFields(p.logger, logging.LogContext{Stage: stage, Batch: s.Batch, File: s.File})
	log.Warn().
		Str("kind", string(s.Kind)).
		Err(err).
		Msg("Skipped")
	return s
}

func kindLabel(err error) string {
	if kind, ok := utils.KindOf(err); ok {
		return string(kind)
	}
	return string(utils.KindIO)
}
