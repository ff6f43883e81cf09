package batch

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blastsum/internal/config"
	"blastsum/internal/test"
	"blastsum/internal/utils"
)

func TestNamer_BatchID(t *testing.T) {
	namer, err := NewNamer(`(\d{3})`)
	require.NoError(t, err)

	id, err := namer.BatchID("/data/trc_042.csv")
	require.NoError(t, err)
	assert.Equal(t, "042", id)

	_, err = namer.BatchID("/data/readme.csv")
	assert.True(t, errors.Is(err, utils.ErrParse))

	whole, err := NewNamer(`\d+`)
	require.NoError(t, err)
	id, err = whole.BatchID("trc_7.fa")
	require.NoError(t, err)
	assert.Equal(t, "7", id)

	_, err = NewNamer(`(`)
	assert.Error(t, err)
}

func TestPair_ByIDNotPosition(t *testing.T) {
	namer, _ := NewNamer(`(\d{3})`)

	// Sorted positions would pair 001 with 002; ids must win
	d := Pair(namer,
		[]string{"trc_001.csv", "trc_003.csv"},
		[]string{"trc_002.fa", "trc_003.fa", "trc_001.fa"},
		[]string{"xml_trc_003"},
	)

	require.Len(t, d.Batches, 2)
	assert.Equal(t, Batch{ID: "001", AlignmentFile: "trc_001.csv", SequenceFile: "trc_001.fa"}, d.Batches[0])
	assert.Equal(t, Batch{ID: "003", AlignmentFile: "trc_003.csv", SequenceFile: "trc_003.fa", RunDateFile: "xml_trc_003"}, d.Batches[1])

	require.Len(t, d.Problems, 1)
	assert.True(t, errors.Is(d.Problems[0], utils.ErrParse))
	assert.Contains(t, d.Problems[0].Error(), "batch 002 has no alignment file")
}

func TestPair_DuplicateIDDropsBatch(t *testing.T) {
	namer, _ := NewNamer(`(\d{3})`)

	d := Pair(namer,
		[]string{"trc_005.csv", "run2_005.csv", "trc_006.csv"},
		[]string{"trc_005.fa", "trc_006.fa"},
		nil,
	)

	require.Len(t, d.Batches, 1)
	assert.Equal(t, "006", d.Batches[0].ID)

	// the duplicate itself, then the orphaned sequence file
	require.Len(t, d.Problems, 2)
	for _, p := range d.Problems {
		assert.True(t, errors.Is(p, utils.ErrParse))
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	test.WriteBatch(t, dir, test.Batch{ID: "002", RunDates: []string{"2001"}})
	test.WriteBatch(t, dir, test.Batch{ID: "001"})
	test.WriteFile(t, dir, "notes.txt", "unrelated")

	d, err := Discover(config.InputConfig{
		Dir:           dir,
		AlignmentExt:  ".csv",
		SequenceExt:   ".fa",
		RunDatePrefix: "xml",
		BatchPattern:  `(\d{3})`,
	})
	require.NoError(t, err)
	assert.Empty(t, d.Problems)
	require.Len(t, d.Batches, 2)
	assert.Equal(t, "001", d.Batches[0].ID)
	assert.Empty(t, d.Batches[0].RunDateFile)
	assert.Equal(t, "002", d.Batches[1].ID)
	assert.NotEmpty(t, d.Batches[1].RunDateFile)
}

func testInput(dir string) config.InputConfig {
	return config.InputConfig{
		Dir:            dir,
		AlignmentExt:   ".csv",
		SequenceExt:    ".fa",
		RunDatePrefix:  "xml",
		BatchPattern:   `(\d{3})`,
		IgnoreSuffixes: []string{".partial", "_non_hitters.fa"},
	}
}

func TestDiscover_IgnoresDerivedFiles(t *testing.T) {
	dir := t.TempDir()
	test.WriteBatch(t, dir, test.Batch{ID: "001"})

	d, err := Discover(testInput(dir))
	require.NoError(t, err)
	require.Len(t, d.Batches, 1)

	test.WriteFile(t, dir, "trc_001_non_hitters.fa", ">gnl|ti|9\nACGT\n")
	test.WriteFile(t, dir, "trc_001_non_hitters.fa.partial", ">gnl|ti|9\n")

	d, err = Discover(testInput(dir))
	require.NoError(t, err)
	assert.Empty(t, d.Problems)
	require.Len(t, d.Batches, 1)
	assert.Equal(t, "001", d.Batches[0].ID)
	assert.Equal(t, "trc_001.fa", filepath.Base(d.Batches[0].SequenceFile))
}

func TestList_GzippedInputs(t *testing.T) {
	dir := t.TempDir()
	test.WriteFile(t, dir, "trc_004.csv.gz", "")
	test.WriteFile(t, dir, "trc_004.fa.gz", "")
	test.WriteFile(t, dir, "trc_005_non_hitters.fa.gz", "")

	l, err := List(testInput(dir))
	require.NoError(t, err)
	require.Len(t, l.Alignments, 1)
	require.Len(t, l.Sequences, 1)
	assert.Equal(t, "trc_004.csv.gz", filepath.Base(l.Alignments[0]))
	assert.Equal(t, "trc_004.fa.gz", filepath.Base(l.Sequences[0]))
}

func TestDiscover_MissingDir(t *testing.T) {
	_, err := Discover(config.InputConfig{Dir: "/nonexistent/blastsum", BatchPattern: `(\d{3})`})
	assert.True(t, errors.Is(err, utils.ErrIO))
}
