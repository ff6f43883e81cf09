package loader

import (
	"encoding/csv"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/pkg/errors"

	"blastsum/internal/models"
	"blastsum/internal/utils"
)

// AlignmentFields is the positional layout of an alignment result line
var AlignmentFields = []string{"qseqid", "qstart", "qend", "mismatch", "gapopen", "pident", "nident", "length", "qlen"}

// LoadAlignments parses every line of an alignment result file. The file is
// rejected as a whole on the first malformed line or repeated qseqid.
func LoadAlignments(path, delimiter string) ([]models.AlignmentRecord, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadAlignments(f, path, delimiter)
}

// ReadAlignments parses alignment lines from r; name is used in errors
func ReadAlignments(r io.Reader, name, delimiter string) ([]models.AlignmentRecord, error) {
	comma, size := utf8.DecodeRuneInString(delimiter)
	if size == 0 || size != len(delimiter) {
		return nil, errors.Errorf("alignment delimiter must be a single character, got %q", delimiter)
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var records []models.AlignmentRecord
	seen := make(map[string]int)

	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, utils.NewParseError(name, pe.Line, "%v", pe.Err)
			}
			return nil, utils.NewIOError(name, err)
		}
		line, _ := cr.FieldPos(0)

		rec, err := ParseAlignment(fields, name, line)
		if err != nil {
			return nil, err
		}
		if first, dup := seen[rec.QSeqID]; dup {
			return nil, utils.NewParseError(name, line, "qseqid %q already seen on line %d", rec.QSeqID, first)
		}
		seen[rec.QSeqID] = line
		records = append(records, rec)
	}

	return records, nil
}

// ParseAlignment validates the nine positional fields of one alignment line
func ParseAlignment(fields []string, name string, line int) (models.AlignmentRecord, error) {
	if len(fields) != len(AlignmentFields) {
		return models.AlignmentRecord{}, utils.NewParseError(name, line,
			"expected %d fields, got %d", len(AlignmentFields), len(fields))
	}

	var ints [7]int64
	for i, idx := range []int{1, 2, 3, 4, 6, 7, 8} {
		v, err := strconv.ParseInt(fields[idx], 10, 64)
		if err != nil || v < 0 {
			return models.AlignmentRecord{}, utils.NewParseError(name, line,
				"%s must be a non-negative integer, got %q", AlignmentFields[idx], fields[idx])
		}
		ints[i] = v
	}

	pident, err := strconv.ParseFloat(fields[5], 64)
	if err != nil || pident < 0 || pident > 100 {
		return models.AlignmentRecord{}, utils.NewParseError(name, line,
			"pident must be a decimal between 0 and 100, got %q", fields[5])
	}

	if fields[0] == "" {
		return models.AlignmentRecord{}, utils.NewParseError(name, line, "empty qseqid")
	}

	rec := models.AlignmentRecord{
		QSeqID:   fields[0],
		QStart:   ints[0],
		QEnd:     ints[1],
		Mismatch: ints[2],
		GapOpen:  ints[3],
		PIdent:   pident,
		NIdent:   ints[4],
		Length:   ints[5],
		QLen:     ints[6],
	}
	if rec.QLen == 0 {
		return models.AlignmentRecord{}, utils.NewParseError(name, line, "qlen must be positive")
	}
	if rec.NIdent > rec.Length && rec.NIdent > rec.QLen {
		return models.AlignmentRecord{}, utils.NewParseError(name, line,
			"nident %d exceeds both length %d and qlen %d", rec.NIdent, rec.Length, rec.QLen)
	}
	return rec, nil
}

// LoadKeys returns the set of qseqids (first field) in an alignment file.
// Only the key column is inspected, so lines need not be well formed.
func LoadKeys(path, delimiter string) (map[string]struct{}, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	comma, _ := utf8.DecodeRuneInString(delimiter)
	cr := csv.NewReader(f)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.LazyQuotes = true

	keys := make(map[string]struct{})
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, utils.NewParseError(path, pe.Line, "%v", pe.Err)
			}
			return nil, utils.NewIOError(path, err)
		}
		keys[fields[0]] = struct{}{}
	}
	return keys, nil
}
