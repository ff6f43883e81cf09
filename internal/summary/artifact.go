package summary

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"blastsum/internal/models"
	"blastsum/internal/utils"
)

// Header is the column layout of the summary artifact and its residual files
var Header = []string{
	"file_id", "aln_ident", "qseq_ident", "aln_len", "qseqret",
	"qseqall", "num_qseqs", "num_hits", "hitfreq", "overall_ident",
}

// FileName builds a date stamped artifact name such as
// blastn_summary_03_14_2016.dat
func FileName(prefix, layout string, now time.Time) string {
	return prefix + now.Format(layout) + ".dat"
}

// Writer appends rows to a summary artifact. The file is opened for each
// append and closed again before returning.
type Writer struct {
	path string
	rows int
}

// NewWriter truncates path and writes the header line
func NewWriter(path string) (*Writer, error) {
	if err := WriteFile(path, nil); err != nil {
		return nil, err
	}
	return &Writer{path: path}, nil
}

// Path returns the artifact path
func (w *Writer) Path() string {
	return w.path
}

// Rows returns the number of rows appended so far
func (w *Writer) Rows() int {
	return w.rows
}

// Append writes one summary row
func (w *Writer) Append(s models.BatchSummary) error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return utils.NewIOError(w.path, err)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(formatRow(s)); err != nil {
		f.Close()
		return utils.NewIOError(w.path, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return utils.NewIOError(w.path, err)
	}
	if err := f.Close(); err != nil {
		return utils.NewIOError(w.path, err)
	}

	w.rows++
	return nil
}

// WriteFile writes a complete artifact: header plus rows
func WriteFile(path string, rows []models.BatchSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return utils.NewIOError(path, err)
	}

	if err := writeRows(f, rows); err != nil {
		f.Close()
		return utils.NewIOError(path, err)
	}
	if err := f.Close(); err != nil {
		return utils.NewIOError(path, err)
	}
	return nil
}

// writeRows writes the header and rows, stopping at the first failed write
func writeRows(w io.Writer, rows []models.BatchSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, s := range rows {
		if err := cw.Write(formatRow(s)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatRow(s models.BatchSummary) []string {
	return []string{
		s.FileID,
		formatFloat(s.AlnIdent),
		formatFloat(s.QSeqIdent),
		formatFloat(s.AlnLen),
		formatFloat(s.QSeqRet),
		formatFloat(s.QSeqAll),
		strconv.Itoa(s.NumQSeqs),
		strconv.Itoa(s.NumHits),
		formatFloat(s.HitFreq),
		formatFloat(s.OverallIdent),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadResult holds the rows of an artifact that passed validation. Rejected
// holds one SchemaError per row that did not.
type ReadResult struct {
	Rows     []models.BatchSummary
	Rejected []error
}

// ReadFile reads an artifact. A header that differs from Header rejects the
// whole artifact; a row with a missing or malformed column rejects only that
// row. The batch id is file_id with fileIDPrefix removed.
func ReadFile(path, fileIDPrefix string) (ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReadResult{}, utils.NewIOError(path, err)
	}
	defer f.Close()

	return Read(f, path, fileIDPrefix)
}

// Read parses an artifact from r; name is used in errors
func Read(r io.Reader, name, fileIDPrefix string) (ReadResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return ReadResult{}, utils.NewSchemaError(name, 1, "missing header")
	}
	if err != nil {
		return ReadResult{}, readError(name, err)
	}
	if !equalHeader(header) {
		return ReadResult{}, utils.NewSchemaError(name, 1, "header %q does not match %q",
			strings.Join(header, ","), strings.Join(Header, ","))
	}

	var res ReadResult
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, readError(name, err)
		}
		line, _ := cr.FieldPos(0)

		row, err := parseRow(fields, name, line, fileIDPrefix)
		if err != nil {
			res.Rejected = append(res.Rejected, err)
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func readError(name string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return utils.NewSchemaError(name, pe.Line, "%v", pe.Err)
	}
	return utils.NewIOError(name, err)
}

func equalHeader(header []string) bool {
	if len(header) != len(Header) {
		return false
	}
	for i := range header {
		if strings.TrimSpace(header[i]) != Header[i] {
			return false
		}
	}
	return true
}

func parseRow(fields []string, name string, line int, fileIDPrefix string) (models.BatchSummary, error) {
	if len(fields) != len(Header) {
		return models.BatchSummary{}, utils.NewSchemaError(name, line,
			"expected %d columns, got %d", len(Header), len(fields))
	}

	var floats [7]float64
	var ints [2]int
	fi, ii := 0, 0
	for col := 1; col < len(Header); col++ {
		raw := strings.TrimSpace(fields[col])
		if raw == "" {
			return models.BatchSummary{}, utils.NewSchemaError(name, line, "column %s is missing", Header[col])
		}
		if Header[col] == "num_qseqs" || Header[col] == "num_hits" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return models.BatchSummary{}, utils.NewSchemaError(name, line, "column %s: %q is not an integer", Header[col], raw)
			}
			ints[ii] = v
			ii++
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.BatchSummary{}, utils.NewSchemaError(name, line, "column %s: %q is not a number", Header[col], raw)
		}
		floats[fi] = v
		fi++
	}

	fileID := strings.TrimSpace(fields[0])
	if fileID == "" {
		return models.BatchSummary{}, utils.NewSchemaError(name, line, "column file_id is missing")
	}

	return models.BatchSummary{
		BatchID:      strings.TrimPrefix(fileID, fileIDPrefix),
		FileID:       fileID,
		AlnIdent:     floats[0],
		QSeqIdent:    floats[1],
		AlnLen:       floats[2],
		QSeqRet:      floats[3],
		QSeqAll:      floats[4],
		NumQSeqs:     ints[0],
		NumHits:      ints[1],
		HitFreq:      floats[5],
		OverallIdent: floats[6],
	}, nil
}
