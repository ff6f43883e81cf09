package seqstats

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"blastsum/internal/loader"
	"blastsum/internal/utils"
)

// DefaultGenomeSize is the estimated genome length coverage is reported against
const DefaultGenomeSize int64 = 3000000000

// FileStats describes the sequences of one file. Mean is the integer mean.
type FileStats struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
	Mean  int64  `json:"mean" yaml:"mean"`
	Min   int64  `json:"min" yaml:"min"`
	Max   int64  `json:"max" yaml:"max"`
	Total int64  `json:"total" yaml:"total"`
}

// CorpusStats summarizes every counted file
type CorpusStats struct {
	Files          int     `json:"files" yaml:"files"`
	MinFileSize    int     `json:"min_file_size" yaml:"min_file_size"`
	MaxFileSize    int     `json:"max_file_size" yaml:"max_file_size"`
	MeanFileSize   int     `json:"mean_file_size" yaml:"mean_file_size"`
	MedianFileSize float64 `json:"median_file_size" yaml:"median_file_size"`
	TotalSeqs      int     `json:"total_seqs" yaml:"total_seqs"`
	MinSeqLen      int64   `json:"min_seqlen" yaml:"min_seqlen"`
	MaxSeqLen      int64   `json:"max_seqlen" yaml:"max_seqlen"`
	MeanSeqLen     int64   `json:"mean_seqlen" yaml:"mean_seqlen"`
	TotalBases     int64   `json:"total_bases" yaml:"total_bases"`
	GenomeCoverage float64 `json:"genome_coverage" yaml:"genome_coverage"`
}

// Report is the per-file table plus the corpus summary
type Report struct {
	Files   []FileStats  `json:"files" yaml:"files"`
	Corpus  CorpusStats  `json:"corpus" yaml:"corpus"`
	Skipped []utils.Skip `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// ListFiles returns the names in dir ending in ext, sorted
func ListFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, utils.NewIOError(dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// File computes the statistics of one sequence file. A file without any
// sequence is an EmptyBatchError.
func File(path string) (FileStats, error) {
	records, err := loader.LoadSequences(path)
	if err != nil {
		return FileStats{}, err
	}
	if len(records) == 0 {
		return FileStats{}, utils.NewEmptyBatchError(filepath.Base(path), "no sequences in %s", path)
	}

	st := FileStats{Name: filepath.Base(path), Count: len(records), Min: math.MaxInt64}
	for _, r := range records {
		n := int64(len(r.Bases))
		st.Total += n
		if n < st.Min {
			st.Min = n
		}
		if n > st.Max {
			st.Max = n
		}
	}
	st.Mean = st.Total / int64(st.Count)
	return st, nil
}

// Corpus aggregates per-file statistics. Coverage is rounded to two places.
func Corpus(files []FileStats, genomeSize int64) CorpusStats {
	var c CorpusStats
	if len(files) == 0 {
		return c
	}

	c.Files = len(files)
	c.MinFileSize = files[0].Count
	c.MaxFileSize = files[0].Count
	c.MinSeqLen = files[0].Min
	c.MaxSeqLen = files[0].Max

	sizes := make([]int, len(files))
	for i, f := range files {
		sizes[i] = f.Count
		c.TotalSeqs += f.Count
		c.TotalBases += f.Total
		if f.Count < c.MinFileSize {
			c.MinFileSize = f.Count
		}
		if f.Count > c.MaxFileSize {
			c.MaxFileSize = f.Count
		}
		if f.Min < c.MinSeqLen {
			c.MinSeqLen = f.Min
		}
		if f.Max > c.MaxSeqLen {
			c.MaxSeqLen = f.Max
		}
	}

	c.MeanFileSize = c.TotalSeqs / c.Files
	c.MedianFileSize = Median(sizes)
	if c.TotalSeqs > 0 {
		c.MeanSeqLen = c.TotalBases / int64(c.TotalSeqs)
	}
	if genomeSize > 0 {
		c.GenomeCoverage = math.Round(float64(c.TotalBases)/float64(genomeSize)*100) / 100
	}
	return c
}

// Median returns the middle value of values, or the mean of the two middle
// values for an even count. values is not modified.
func Median(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

// Collect computes the report for paths. Files that cannot be read or hold
// no sequences are skipped and listed.
func Collect(paths []string, genomeSize int64) Report {
	var r Report
	for _, p := range paths {
		st, err := File(p)
		if err != nil {
			r.Skipped = append(r.Skipped, utils.NewSkip("seqstats", "", err))
			continue
		}
		r.Files = append(r.Files, st)
	}
	r.Corpus = Corpus(r.Files, genomeSize)
	return r
}
