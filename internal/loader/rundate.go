package loader

import (
	"bufio"
	"regexp"
	"strings"

	"blastsum/internal/models"
	"blastsum/internal/utils"
)

var yearPattern = regexp.MustCompile(`\d{4}`)

// LoadRunDates scans a run-date metadata file. Each line containing marker
// contributes its first four digit year; a file without any marker yields
// the null pair.
func LoadRunDates(path, marker, batchID string) (models.RunDateRecord, error) {
	rec := models.RunDateRecord{SeqFileID: batchID}

	f, err := Open(path)
	if err != nil {
		return rec, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var minYear, maxYear string
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()
		if !strings.Contains(text, marker) {
			continue
		}
		year := yearPattern.FindString(text)
		if year == "" {
			return rec, utils.NewParseError(path, lineNo, "%s without a four digit year", marker)
		}
		if minYear == "" || year < minYear {
			minYear = year
		}
		if year > maxYear {
			maxYear = year
		}
	}
	if err := sc.Err(); err != nil {
		return rec, utils.NewIOError(path, err)
	}

	if minYear != "" {
		rec.MinDate = &minYear
		rec.MaxDate = &maxYear
	}
	return rec, nil
}
