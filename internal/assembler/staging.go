package assembler

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"blastsum/internal/loader"
	"blastsum/internal/models"
	"blastsum/internal/store"
	"blastsum/internal/utils"
)

// Intermediate file names inside the staging directory
const (
	ConcatAlignments = "concat_blast_data.csv"
	ConcatSequences  = "concat_fasta_data.fa"
	TabularSequences = "concat_fasta_data.csv"
	StagedRunDates   = "seq_year.csv"
)

// NullSentinel stands for a missing run date in the staged seq_year file
const NullSentinel = "NULL"

const (
	taggedSuffix       = "_.csv"
	stagingDirPrefix   = "blastsum-staging-"
	stagedAlignmentLen = 10
)

// staging tracks the intermediates written for one assembly run. Only files
// recorded here are removed afterwards.
type staging struct {
	dir   string
	files []string
}

func newStaging(workDir, runID string) (*staging, error) {
	dir := filepath.Join(workDir, stagingDirPrefix+runID)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, utils.NewIOError(dir, err)
	}
	return &staging{dir: dir}, nil
}

func (s *staging) path(name string) string {
	return filepath.Join(s.dir, name)
}

// create opens a new intermediate file and tracks it
func (s *staging) create(name string) (*os.File, error) {
	path := s.path(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, utils.NewIOError(path, err)
	}
	s.files = append(s.files, path)
	return f, nil
}

// cleanup removes the tracked files, then the directory if it is empty
func (s *staging) cleanup() error {
	var firstErr error
	for i := len(s.files) - 1; i >= 0; i-- {
		if err := os.Remove(s.files[i]); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = utils.NewIOError(s.files[i], err)
		}
	}
	if err := os.Remove(s.dir); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = utils.NewIOError(s.dir, err)
	}
	return firstErr
}

// TaggedName is the staged name of an alignment file: its base name without
// extensions plus "_.csv"
func TaggedName(alignmentFile string) string {
	base := strings.TrimSuffix(filepath.Base(alignmentFile), ".gz")
	return strings.TrimSuffix(base, filepath.Ext(base)) + taggedSuffix
}

// writeTagged stages validated alignment records with the batch id appended
// as a tenth column
func (s *staging) writeTagged(name string, records []models.AlignmentRecord) error {
	return s.writeCSV(name, len(records), func(i int) []string {
		r := records[i]
		return []string{
			r.QSeqID,
			strconv.FormatInt(r.QStart, 10),
			strconv.FormatInt(r.QEnd, 10),
			strconv.FormatInt(r.Mismatch, 10),
			strconv.FormatInt(r.GapOpen, 10),
			strconv.FormatFloat(r.PIdent, 'f', -1, 64),
			strconv.FormatInt(r.NIdent, 10),
			strconv.FormatInt(r.Length, 10),
			strconv.FormatInt(r.QLen, 10),
			r.SeqFile,
		}
	})
}

// concat copies every source into name, in order, adding a newline after a
// source that lacks one. It returns the number of sequence blocks each
// source contributed.
func (s *staging) concat(name string, sources []string) ([]int, error) {
	out, err := s.create(name)
	if err != nil {
		return nil, err
	}

	blocks := make([]int, len(sources))
	for i, src := range sources {
		data, err := readAll(src)
		if err != nil {
			out.Close()
			return nil, err
		}
		blocks[i] = bytes.Count(data, []byte{loader.BlockDelimiter})

		if _, err := out.Write(data); err != nil {
			out.Close()
			return nil, utils.NewIOError(out.Name(), err)
		}
		if len(data) > 0 && data[len(data)-1] != '\n' {
			if _, err := out.Write([]byte{'\n'}); err != nil {
				out.Close()
				return nil, utils.NewIOError(out.Name(), err)
			}
		}
	}

	if err := out.Close(); err != nil {
		return nil, utils.NewIOError(out.Name(), err)
	}
	return blocks, nil
}

// tabulate converts the concatenated sequence file into id,bases rows
func (s *staging) tabulate(fastaName, csvName string) (int, error) {
	data, err := readAll(s.path(fastaName))
	if err != nil {
		return 0, err
	}
	records, err := loader.ParseSequences(data, s.path(fastaName))
	if err != nil {
		return 0, err
	}

	err = s.writeCSV(csvName, len(records), func(i int) []string {
		return []string{records[i].ID, records[i].Bases}
	})
	return len(records), err
}

// writeRunDates stages seq_year rows; a missing year range is written as NULL
func (s *staging) writeRunDates(name string, records []models.RunDateRecord) error {
	return s.writeCSV(name, len(records), func(i int) []string {
		r := records[i]
		minDate, maxDate := NullSentinel, NullSentinel
		if r.HasDates() {
			minDate, maxDate = *r.MinDate, *r.MaxDate
		}
		return []string{r.SeqFileID, minDate, maxDate}
	})
}

// writeCSV creates an intermediate holding n rows produced by row
func (s *staging) writeCSV(name string, n int, row func(i int) []string) error {
	f, err := s.create(name)
	if err != nil {
		return err
	}
	if err := writeRows(f, n, row); err != nil {
		f.Close()
		return utils.NewIOError(f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return utils.NewIOError(f.Name(), err)
	}
	return nil
}

// writeRows stops at the first record that cannot be written
func writeRows(w io.Writer, n int, row func(i int) []string) error {
	cw := csv.NewWriter(w)
	for i := 0; i < n; i++ {
		if err := cw.Write(row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readAll(path string) ([]byte, error) {
	f, err := loader.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, utils.NewIOError(path, err)
	}
	return data, nil
}

// staged is one parsed intermediate table. Rejected holds a ParseError per
// line that could not be turned into a row.
type staged[T any] struct {
	Rows     []store.Row[T]
	Rejected []error
}

// readStaged parses a staged CSV, handing each record to parse
func readStaged[T any](path string, width int, parse func(fields []string, line int) (store.Row[T], error)) (staged[T], error) {
	var out staged[T]

	f, err := os.Open(path)
	if err != nil {
		return out, utils.NewIOError(path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				out.Rejected = append(out.Rejected, utils.NewParseError(path, pe.Line, "%v", pe.Err))
				continue
			}
			return out, utils.NewIOError(path, err)
		}
		line, _ := cr.FieldPos(0)

		if len(fields) != width {
			out.Rejected = append(out.Rejected, utils.NewParseError(path, line, "expected %d fields, got %d", width, len(fields)))
			continue
		}
		row, err := parse(fields, line)
		if err != nil {
			out.Rejected = append(out.Rejected, err)
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func readStagedAlignments(path string) (staged[models.AlignmentRecord], error) {
	return readStaged(path, stagedAlignmentLen, func(fields []string, line int) (store.Row[models.AlignmentRecord], error) {
		rec, err := loader.ParseAlignment(fields[:stagedAlignmentLen-1], path, line)
		if err != nil {
			return store.Row[models.AlignmentRecord]{}, err
		}
		rec.SeqFile = fields[stagedAlignmentLen-1]
		if rec.SeqFile == "" {
			return store.Row[models.AlignmentRecord]{}, utils.NewParseError(path, line, "empty batch tag")
		}
		return store.Row[models.AlignmentRecord]{Record: rec, Batch: rec.SeqFile, Line: line}, nil
	})
}

// readStagedSequences parses id,bases rows. origins holds the batch id of
// each row in staging order.
func readStagedSequences(path string, origins []string) (staged[models.SequenceRecord], error) {
	return readStaged(path, 2, func(fields []string, line int) (store.Row[models.SequenceRecord], error) {
		row := store.Row[models.SequenceRecord]{
			Record: models.SequenceRecord{ID: fields[0], Bases: fields[1]},
			Line:   line,
		}
		if line-1 < len(origins) {
			row.Batch = origins[line-1]
		}
		if fields[0] == "" {
			return row, utils.NewParseError(path, line, "empty sequence id")
		}
		return row, nil
	})
}

func readStagedRunDates(path string) (staged[models.RunDateRecord], error) {
	return readStaged(path, 3, func(fields []string, line int) (store.Row[models.RunDateRecord], error) {
		rec := models.RunDateRecord{SeqFileID: fields[0]}
		if fields[0] == "" {
			return store.Row[models.RunDateRecord]{}, utils.NewParseError(path, line, "empty seqfile_id")
		}
		if fields[1] != NullSentinel {
			minDate := fields[1]
			rec.MinDate = &minDate
		}
		if fields[2] != NullSentinel {
			maxDate := fields[2]
			rec.MaxDate = &maxDate
		}
		if rec.HasDates() != (rec.MinDate != nil || rec.MaxDate != nil) {
			return store.Row[models.RunDateRecord]{}, utils.NewParseError(path, line, "min_date and max_date must both be set or both be %s", NullSentinel)
		}
		return store.Row[models.RunDateRecord]{Record: rec, Batch: fields[0], Line: line}, nil
	})
}
