// Package nonhit extracts the query sequences that produced no alignment hit.
package nonhit

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"blastsum/internal/batch"
	"blastsum/internal/loader"
	"blastsum/internal/logging"
	"blastsum/internal/metrics"
	"blastsum/internal/utils"
)

// FilterStats counts the outcome of one filter pass
type FilterStats struct {
	Keys    int `json:"keys" yaml:"keys"`
	Kept    int `json:"kept" yaml:"kept"`
	Dropped int `json:"dropped" yaml:"dropped"`
}

// HeaderID returns the id of a header line: the text after the block
// delimiter up to the first space, tab or line break. An empty id is a
// literal key like any other.
func HeaderID(line string) string {
	id := strings.TrimPrefix(line, string(loader.BlockDelimiter))
	if i := strings.IndexAny(id, " \t\r\n"); i >= 0 {
		id = id[:i]
	}
	return id
}

// Filter copies the blocks of r whose header id is not in keys to w,
// byte for byte and in their original order. Content before the first
// header that is not blank is a ParseError, detected before anything is
// written.
func Filter(keys map[string]struct{}, r io.Reader, w io.Writer, name string) (FilterStats, error) {
	stats := FilterStats{Keys: len(keys)}
	br := bufio.NewReaderSize(r, 64*1024)
	bw := bufio.NewWriter(w)

	inBlock := false
	keep := false
	lineNo := 0

	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			lineNo++
			switch {
			case line[0] == loader.BlockDelimiter:
				inBlock = true
				_, hit := keys[HeaderID(line)]
				keep = !hit
				if keep {
					stats.Kept++
				} else {
					stats.Dropped++
				}
			case !inBlock:
				if strings.TrimSpace(line) != "" {
					return stats, utils.NewParseError(name, lineNo, "content before the first %q", loader.BlockDelimiter)
				}
				continue
			}

			if keep {
				if _, werr := bw.WriteString(line); werr != nil {
					return stats, utils.NewIOError(name, werr)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, utils.NewIOError(name, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return stats, utils.NewIOError(name, err)
	}
	return stats, nil
}

// OutputName is the non-hitter file for a sequence file: its base name
// without sequenceExt, followed by suffix
func OutputName(sequenceFile, sequenceExt, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(sequenceFile), ".gz")
	return strings.TrimSuffix(base, sequenceExt) + suffix
}

// Filterer writes one non-hitter file per batch into outDir
type Filterer struct {
	outDir      string
	sequenceExt string
	suffix      string
	delimiter   string
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewFilterer creates a filterer. m may be nil.
func NewFilterer(outDir, sequenceExt, suffix, delimiter string, m *metrics.Metrics, logger zerolog.Logger) *Filterer {
	return &Filterer{
		outDir:      outDir,
		sequenceExt: sequenceExt,
		suffix:      suffix,
		delimiter:   delimiter,
		metrics:     m,
		logger:      logger,
	}
}

// FilterBatch writes the non-hitters of b and returns the output path. The
// output is staged under a temporary name and only renamed into place once
// the whole sequence file has been read.
func (f *Filterer) FilterBatch(b batch.Batch) (string, FilterStats, error) {
	keys, err := loader.LoadKeys(b.AlignmentFile, f.delimiter)
	if err != nil {
		return "", FilterStats{}, err
	}

	in, err := loader.Open(b.SequenceFile)
	if err != nil {
		return "", FilterStats{}, err
	}
	defer in.Close()

	outPath := filepath.Join(f.outDir, OutputName(b.SequenceFile, f.sequenceExt, f.suffix))
	tmpPath := outPath + ".partial"

	out, err := os.Create(tmpPath)
	if err != nil {
		return "", FilterStats{}, utils.NewIOError(tmpPath, err)
	}

	stats, err := Filter(keys, in, out, b.SequenceFile)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = utils.NewIOError(tmpPath, cerr)
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", stats, err
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return "", stats, utils.NewIOError(outPath, err)
	}

	if f.metrics != nil {
		f.metrics.SequencesTotal.WithLabelValues("kept").Add(float64(stats.Kept))
		f.metrics.SequencesTotal.WithLabelValues("dropped").Add(float64(stats.Dropped))
	}

	log := logging.WithContextFields(f.logger, logging.LogContext{Batch: b.ID, File: b.SequenceFile})
	log.Info().
		Str("output", outPath).
		Int("keys", stats.Keys).
		Int("kept", stats.Kept).
		Int("dropped", stats.Dropped).
		Msg("Non-hitters written")

	return outPath, stats, nil
}
