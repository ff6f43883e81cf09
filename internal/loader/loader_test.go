package loader

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blastsum/internal/batch"
	"blastsum/internal/test"
	"blastsum/internal/utils"
)

func TestReadAlignments(t *testing.T) {
	input := "pan001.1,1,120,2,0,98.5,118,120,150\n\npan001.2,5,60,0,1,100,56,56,56\n"

	records, err := ReadAlignments(strings.NewReader(input), "trc_001.csv", ",")
	require.NoError(t, err)
	require.Len(t, records, 2)

	r := records[0]
	assert.Equal(t, "pan001.1", r.QSeqID)
	assert.Equal(t, int64(1), r.QStart)
	assert.Equal(t, int64(120), r.QEnd)
	assert.Equal(t, int64(2), r.Mismatch)
	assert.Equal(t, int64(0), r.GapOpen)
	assert.Equal(t, 98.5, r.PIdent)
	assert.Equal(t, int64(118), r.NIdent)
	assert.Equal(t, int64(120), r.Length)
	assert.Equal(t, int64(150), r.QLen)
}

func TestReadAlignments_TabDelimited(t *testing.T) {
	input := "gnl|ti|1\t1\t50\t0\t0\t99.0\t49\t50\t50\n"

	records, err := ReadAlignments(strings.NewReader(input), "trc_001.tsv", "\t")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "gnl|ti|1", records[0].QSeqID)
}

func TestReadAlignments_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"too few fields", "a,1,2,3\n", "expected 9 fields, got 4"},
		{"too many fields", "a,1,2,3,4,5,6,7,8,9\n", "expected 9 fields, got 10"},
		{"not numeric", "a,1,x,0,0,99,1,1,1\n", "qend must be a non-negative integer"},
		{"negative", "a,1,2,-1,0,99,1,1,1\n", "mismatch must be a non-negative integer"},
		{"pident out of range", "a,1,2,0,0,101,1,1,1\n", "pident must be a decimal"},
		{"zero qlen", "a,1,2,0,0,99,1,1,0\n", "qlen must be positive"},
		{"nident too large", "a,1,2,0,0,99,151,120,150\n", "nident 151 exceeds both length 120 and qlen 150"},
		{"duplicate qseqid", "a,1,2,0,0,99,1,1,1\na,1,2,0,0,99,1,1,1\n", `qseqid "a" already seen on line 1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadAlignments(strings.NewReader(tt.input), "bad.csv", ",")
			require.Error(t, err)
			assert.True(t, errors.Is(err, utils.ErrParse))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadAlignments_ErrorLine(t *testing.T) {
	input := "a,1,2,0,0,99,1,1,1\nb,1,2,0,0,99,1,1,1\nc,1,2\n"
	_, err := ReadAlignments(strings.NewReader(input), "bad.csv", ",")

	var pe *utils.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Line)
	assert.Equal(t, "bad.csv", pe.File)
}

func TestParseSequences(t *testing.T) {
	data := []byte(">id1 desc\nACGT\nAC\r\n>id2\tother\nTTTT\n")

	records, err := ParseSequences(data, "trc_001.fa")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "id1", records[0].ID)
	assert.Equal(t, "ACGTAC", records[0].Bases)
	assert.Equal(t, "id2", records[1].ID)
	assert.Equal(t, "TTTT", records[1].Bases)
}

func TestParseSequences_Empty(t *testing.T) {
	records, err := ParseSequences([]byte("\n\n"), "empty.fa")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseSequences_Malformed(t *testing.T) {
	_, err := ParseSequences([]byte("ACGT\n>id1\nACGT\n"), "nohdr.fa")
	assert.True(t, errors.Is(err, utils.ErrParse))

	_, err = ParseSequences([]byte(">id1\nACGT\n> \nTTTT\n"), "noid.fa")
	require.True(t, errors.Is(err, utils.ErrParse))
	var pe *utils.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Line)
}

func TestLoadSequences_MissingFile(t *testing.T) {
	_, err := LoadSequences(filepath.Join(t.TempDir(), "absent.fa"))
	assert.True(t, errors.Is(err, utils.ErrIO))
}

func TestLoadSequences_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trc_001.fa.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	_, err = gw.Write([]byte(test.SequenceFile(0, test.Seq{ID: "id1", Bases: "ACGT"})))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())

	records, err := LoadSequences(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ACGT", records[0].Bases)
}

func TestLoadRunDates(t *testing.T) {
	dir := t.TempDir()
	content := "<RUN>\n<RUN_DATE>2002-01-01</RUN_DATE>\n<RUN_DATE>2000-05-05</RUN_DATE>\n<RUN_DATE>2002-07-07</RUN_DATE>\n</RUN>\n"
	path := test.WriteFile(t, dir, "xml_trc_001", content)

	rec, err := LoadRunDates(path, "<RUN_DATE>", "001")
	require.NoError(t, err)
	assert.Equal(t, "001", rec.SeqFileID)
	require.True(t, rec.HasDates())
	assert.Equal(t, "2000", *rec.MinDate)
	assert.Equal(t, "2002", *rec.MaxDate)
}

func TestLoadRunDates_NoMarker(t *testing.T) {
	path := test.WriteFile(t, t.TempDir(), "xml_trc_012", "<RUN>\n<CENTER>WUGSC</CENTER>\n</RUN>\n")

	rec, err := LoadRunDates(path, "<RUN_DATE>", "012")
	require.NoError(t, err)
	assert.False(t, rec.HasDates())
	assert.Nil(t, rec.MinDate)
	assert.Nil(t, rec.MaxDate)
}

func TestLoadRunDates_MarkerWithoutYear(t *testing.T) {
	path := test.WriteFile(t, t.TempDir(), "xml_trc_013", "<RUN_DATE>unknown</RUN_DATE>\n")

	_, err := LoadRunDates(path, "<RUN_DATE>", "013")
	assert.True(t, errors.Is(err, utils.ErrParse))
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	test.WriteBatch(t, dir, test.Batch{
		ID: "001",
		Hits: []test.Hit{
			{QSeqID: "pan001.1", PIdent: 98.5, NIdent: 118, Length: 120, QLen: 150},
		},
		Seqs: []test.Seq{
			{ID: "pan001.1", Desc: "trace", Bases: strings.Repeat("A", 150)},
			{ID: "pan001.2", Bases: strings.Repeat("C", 90)},
		},
	})

	loaded, err := NewLoader(",").Load(batch.Batch{
		ID:            "001",
		AlignmentFile: filepath.Join(dir, "trc_001.csv"),
		SequenceFile:  filepath.Join(dir, "trc_001.fa"),
	})
	require.NoError(t, err)
	require.Len(t, loaded.Alignments, 1)
	assert.Equal(t, "001", loaded.Alignments[0].SeqFile)
	require.Len(t, loaded.Sequences, 2)
	assert.Len(t, loaded.Sequences[0].Bases, 150)
}

func TestLoadKeys(t *testing.T) {
	path := test.WriteFile(t, t.TempDir(), "trc_001.csv", "id1,1,2\n\n,9,9\nid1,3,4\n")

	keys, err := LoadKeys(path, ",")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "id1")
	assert.Contains(t, keys, "")
}
