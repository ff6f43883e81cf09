package assembler

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"blastsum/internal/batch"
	"blastsum/internal/capacity"
	"blastsum/internal/config"
	"blastsum/internal/metrics"
	"blastsum/internal/models"
	"blastsum/internal/store"
	"blastsum/internal/test"
	"blastsum/internal/tracing"
	"blastsum/internal/utils"
)

type fixedProbe struct {
	usedPercent float64
}

func (p fixedProbe) GetUsage(path string) (capacity.UsageInfo, error) {
	return capacity.UsageInfo{Path: path, UsedPercent: p.usedPercent}, nil
}

type fixture struct {
	in, work string
	db       *gorm.DB
	metrics  *metrics.Metrics
	asm      *Assembler
}

func newFixture(t *testing.T, keep bool, guard *capacity.Guard) *fixture {
	t.Helper()

	cfg, err := config.NewConfigLoader().Load()
	require.NoError(t, err)

	f := &fixture{in: t.TempDir(), work: t.TempDir(), db: test.GetTestDB(t), metrics: metrics.NewMetrics()}
	cfg.Input.Dir = f.in
	cfg.Store.WorkDir = f.work
	cfg.Store.KeepIntermediates = keep

	tracer, err := tracing.NewTracer(tracing.ServiceName, false, "")
	require.NoError(t, err)

	st := store.NewStore(f.db, f.metrics, zerolog.Nop())
	f.asm = NewAssembler(cfg, st, guard, f.metrics, tracer, zerolog.Nop())
	f.asm.newRunID = func() uuid.UUID { return uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8") }
	return f
}

func (f *fixture) discover(t *testing.T) batch.Discovery {
	t.Helper()
	d, err := batch.Discover(config.InputConfig{
		Dir: f.in, AlignmentExt: ".csv", SequenceExt: ".fa", RunDatePrefix: "xml", BatchPattern: `(\d{3})`,
	})
	require.NoError(t, err)
	return d
}

func writeTwoBatches(t *testing.T, dir string) {
	test.WriteBatch(t, dir, test.Batch{
		ID: "001",
		Hits: []test.Hit{
			{QSeqID: "gnl|ti|1", PIdent: 99, NIdent: 99, Length: 100, QLen: 100},
			{QSeqID: "gnl|ti|2", PIdent: 97, NIdent: 97, Length: 100, QLen: 110},
		},
		Seqs: []test.Seq{
			{ID: "gnl|ti|1", Desc: "name:trace1", Bases: "ACGT"},
			{ID: "gnl|ti|2", Bases: "GGCC"},
			{ID: "gnl|ti|3", Bases: "TTAA"},
		},
		RunDates: []string{"2002", "2000", "2001"},
	})
	test.WriteBatch(t, dir, test.Batch{
		ID:       "002",
		Hits:     []test.Hit{{QSeqID: "gnl|ti|4", PIdent: 90, NIdent: 90, Length: 100, QLen: 100}},
		Seqs:     []test.Seq{{ID: "gnl|ti|4", Bases: "AAAA"}},
		RunDates: []string{},
	})
}

func TestAssemble_LoadsEveryTable(t *testing.T) {
	f := newFixture(t, false, nil)
	writeTwoBatches(t, f.in)

	res, err := f.asm.Assemble(context.Background(), f.discover(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"001", "002"}, res.Batches)
	assert.Equal(t, []string{"blast_data", "seq_data", "seq_year"}, res.Schema.Created)
	assert.Equal(t, map[string]int64{"blast_data": 3, "seq_data": 4, "seq_year": 2}, res.Counts)
	assert.Empty(t, res.Violations)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, BatchCount{Alignments: 2, Sequences: 3}, res.ByBatch["001"])
	require.Len(t, res.Sources, 6)
	assert.Equal(t, filepath.Join(f.in, "trc_001.csv"), res.Sources[0].Path)
	assert.Len(t, res.Sources[0].SHA256, 64)

	// gnl|ti|3 is a non-hitter
	assert.Equal(t, int64(1), res.Orphans.SequencesWithoutHit)
	assert.Zero(t, res.Orphans.HitsWithoutSequence)
	assert.Zero(t, res.Orphans.RunDatesWithoutBatch)

	var hit models.AlignmentRecord
	require.NoError(t, f.db.Where("qseqid = ?", "gnl|ti|4").First(&hit).Error)
	assert.Equal(t, "002", hit.SeqFile)
	assert.Equal(t, int64(100), hit.QLen)

	var seq models.SequenceRecord
	require.NoError(t, f.db.Where("gnl_num = ?", "gnl|ti|1").First(&seq).Error)
	assert.Equal(t, "ACGT", seq.Bases)

	var dated, undated models.RunDateRecord
	require.NoError(t, f.db.Where("seqfile_id = ?", "001").First(&dated).Error)
	require.True(t, dated.HasDates())
	assert.Equal(t, "2000", *dated.MinDate)
	assert.Equal(t, "2002", *dated.MaxDate)
	require.NoError(t, f.db.Where("seqfile_id = ?", "002").First(&undated).Error)
	assert.Nil(t, undated.MinDate)
	assert.Nil(t, undated.MaxDate)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.BatchesProcessedTotal.WithLabelValues(StageAssemble)))
}

func TestAssemble_RemovesOnlyIntermediates(t *testing.T) {
	f := newFixture(t, false, nil)
	writeTwoBatches(t, f.in)
	require.NoError(t, os.WriteFile(filepath.Join(f.work, "notes.txt"), []byte("keep me"), 0644))

	before, err := os.ReadDir(f.in)
	require.NoError(t, err)

	res, err := f.asm.Assemble(context.Background(), f.discover(t))
	require.NoError(t, err)

	assert.NoDirExists(t, res.StagingDir)
	assert.FileExists(t, filepath.Join(f.work, "notes.txt"))

	after, err := os.ReadDir(f.in)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestAssemble_KeepIntermediates(t *testing.T) {
	f := newFixture(t, true, nil)
	writeTwoBatches(t, f.in)

	res, err := f.asm.Assemble(context.Background(), f.discover(t))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.work, "blastsum-staging-6ba7b810-9dad-11d1-80b4-00c04fd430c8"), res.StagingDir)
	for _, name := range []string{"trc_001_.csv", "trc_002_.csv", ConcatAlignments, ConcatSequences, TabularSequences, StagedRunDates} {
		assert.FileExists(t, filepath.Join(res.StagingDir, name))
	}
	assert.Len(t, res.Kept, 6)

	tagged, err := os.ReadFile(filepath.Join(res.StagingDir, "trc_002_.csv"))
	require.NoError(t, err)
	assert.Equal(t, "gnl|ti|4,1,100,0,0,90,90,100,100,002\n", string(tagged))

	years, err := os.ReadFile(filepath.Join(res.StagingDir, StagedRunDates))
	require.NoError(t, err)
	assert.Equal(t, "001,2000,2002\n002,NULL,NULL\n", string(years))
}

func TestAssemble_DuplicateKeyAcrossBatches(t *testing.T) {
	f := newFixture(t, false, nil)
	test.WriteBatch(t, f.in, test.Batch{
		ID:   "001",
		Hits: []test.Hit{{QSeqID: "dup", PIdent: 99, NIdent: 99, Length: 100, QLen: 100}},
		Seqs: []test.Seq{{ID: "dup", Bases: "ACGT"}},
	})
	test.WriteBatch(t, f.in, test.Batch{
		ID: "002",
		Hits: []test.Hit{
			{QSeqID: "dup", PIdent: 80, NIdent: 80, Length: 100, QLen: 100},
			{QSeqID: "other", PIdent: 80, NIdent: 80, Length: 100, QLen: 100},
		},
		Seqs: []test.Seq{{ID: "dup", Bases: "TTTT"}, {ID: "other", Bases: "CCCC"}},
	})

	res, err := f.asm.Assemble(context.Background(), f.discover(t))
	require.NoError(t, err)

	require.Len(t, res.Violations, 2)
	for _, v := range res.Violations {
		var pe *utils.PipelineError
		require.True(t, errors.As(v, &pe))
		assert.Equal(t, utils.KindIntegrity, pe.Kind)
		assert.Equal(t, "dup", pe.Key)
		assert.Equal(t, "002", pe.Batch)
	}
	assert.Equal(t, int64(2), res.Counts["blast_data"])
	assert.Equal(t, int64(2), res.Counts["seq_data"])

	// the first batch's row is the one kept
	var seq models.SequenceRecord
	require.NoError(t, f.db.Where("gnl_num = ?", "dup").First(&seq).Error)
	assert.Equal(t, "ACGT", seq.Bases)
}

func TestAssemble_SkipsMalformedBatch(t *testing.T) {
	f := newFixture(t, false, nil)
	writeTwoBatches(t, f.in)
	test.WriteFile(t, f.in, "trc_003.csv", "x1,1,2\n")
	test.WriteFile(t, f.in, "trc_003.fa", ">x1\nACGT\n")
	test.WriteFile(t, f.in, "trc_004.fa", ">y1\nACGT\n")

	res, err := f.asm.Assemble(context.Background(), f.discover(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"001", "002"}, res.Batches)
	require.Len(t, res.Skipped, 2)
	for _, s := range res.Skipped {
		assert.Equal(t, utils.KindParse, s.Kind)
		assert.Equal(t, StageAssemble, s.Stage)
	}
	assert.Equal(t, int64(3), res.Counts["blast_data"])
}

func TestAssemble_LogsCarryRunAndBatch(t *testing.T) {
	f := newFixture(t, false, nil)
	var buf bytes.Buffer
	f.asm.logger = zerolog.New(&buf)
	writeTwoBatches(t, f.in)
	test.WriteFile(t, f.in, "trc_003.csv", "x1,1,2\n")
	test.WriteFile(t, f.in, "trc_003.fa", ">x1\nACGT\n")

	_, err := f.asm.Assemble(context.Background(), f.discover(t))
	require.NoError(t, err)

	var skipped, removed map[string]interface{}
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &line))
		switch line["message"] {
		case "Skipped":
			skipped = line
		case "Intermediates removed":
			removed = line
		}
	}

	require.NotNil(t, skipped)
	assert.Equal(t, StageAssemble, skipped["stage"])
	assert.Equal(t, "003", skipped["batch"])
	assert.Equal(t, "parse", skipped["kind"])
	require.NotNil(t, removed)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", removed["run_id"])
}

func TestAssemble_IncompatibleStoreAborts(t *testing.T) {
	f := newFixture(t, false, nil)
	writeTwoBatches(t, f.in)
	require.NoError(t, f.db.Exec(`CREATE TABLE seq_year (seqfile_id TEXT, year TEXT)`).Error)

	res, err := f.asm.Assemble(context.Background(), f.discover(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrSchema))
	assert.NoDirExists(t, res.StagingDir)
	assert.False(t, f.db.Migrator().HasTable("blast_data"))
}

func TestAssemble_CapacityAbort(t *testing.T) {
	f := newFixture(t, false, capacity.NewGuard(fixedProbe{usedPercent: 99.5}, 98))
	writeTwoBatches(t, f.in)

	res, err := f.asm.Assemble(context.Background(), f.discover(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, capacity.ErrInsufficientCapacity))
	assert.Empty(t, res.StagingDir)

	entries, err := os.ReadDir(f.work)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.False(t, f.db.Migrator().HasTable("blast_data"))
}

func TestAssemble_CapacityOK(t *testing.T) {
	f := newFixture(t, false, capacity.NewGuard(fixedProbe{usedPercent: 40}, 98))
	writeTwoBatches(t, f.in)

	res, err := f.asm.Assemble(context.Background(), f.discover(t))
	require.NoError(t, err)
	require.NotNil(t, res.Capacity)
	assert.Equal(t, "ok", res.Capacity.Status)
}

func TestAssemble_Cancelled(t *testing.T) {
	f := newFixture(t, false, nil)
	writeTwoBatches(t, f.in)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.asm.Assemble(ctx, f.discover(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, res.StagingDir)
}

func TestTaggedName(t *testing.T) {
	assert.Equal(t, "trc_001_.csv", TaggedName("/data/trc_001.csv"))
	assert.Equal(t, "trc_001_.csv", TaggedName("trc_001.csv.gz"))
}

func TestConcat_AddsMissingNewline(t *testing.T) {
	dir := t.TempDir()
	a := test.WriteFile(t, dir, "a.fa", ">s1\nAC")
	b := test.WriteFile(t, dir, "b.fa", ">s2\nGT\n>s3\nTT\n")

	stg, err := newStaging(dir, "x")
	require.NoError(t, err)

	blocks, err := stg.concat(ConcatSequences, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, blocks)

	data, err := os.ReadFile(stg.path(ConcatSequences))
	require.NoError(t, err)
	assert.Equal(t, ">s1\nAC\n>s2\nGT\n>s3\nTT\n", string(data))

	n, err := stg.tabulate(ConcatSequences, TabularSequences)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := readStagedSequences(stg.path(TabularSequences), []string{"001", "002", "002"})
	require.NoError(t, err)
	require.Len(t, rows.Rows, 3)
	assert.Equal(t, "002", rows.Rows[2].Batch)
	assert.Equal(t, "TT", rows.Rows[2].Record.Bases)

	require.NoError(t, stg.cleanup())
	assert.NoDirExists(t, stg.dir)
	assert.FileExists(t, a)
}

func TestReadStagedAlignments_RejectsBadRows(t *testing.T) {
	dir := t.TempDir()
	path := test.WriteFile(t, dir, ConcatAlignments,
		"q1,1,100,0,0,99,99,100,100,001\n"+
			"q2,1,100,0,0,99,99,100\n"+
			"q3,1,100,0,0,abc,99,100,100,001\n"+
			"q4,1,100,0,0,99,99,100,100,\n")

	got, err := readStagedAlignments(path)
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "001", got.Rows[0].Batch)
	assert.Equal(t, 1, got.Rows[0].Line)
	require.Len(t, got.Rejected, 3)
	for _, r := range got.Rejected {
		assert.True(t, errors.Is(r, utils.ErrParse))
	}
}

func TestReadStagedRunDates(t *testing.T) {
	dir := t.TempDir()
	path := test.WriteFile(t, dir, StagedRunDates, "001,2000,2002\n002,NULL,NULL\n003,2001,NULL\n")

	got, err := readStagedRunDates(path)
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)
	assert.True(t, got.Rows[0].Record.HasDates())
	assert.False(t, got.Rows[1].Record.HasDates())
	require.Len(t, got.Rejected, 1)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriteRows_StopsAtFirstFailedRecord(t *testing.T) {
	big := strings.Repeat("A", 8192)
	calls := 0

	err := writeRows(failingWriter{}, 5, func(i int) []string {
		calls++
		return []string{"gnl|ti|1", big}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, calls)
}
