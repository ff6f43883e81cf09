package test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"blastsum/internal/database"
)

// GetTestDB creates a file-backed SQLite store under the test's temp dir.
// The connection is closed when the test finishes.
func GetTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")
	manager, err := database.NewDatabaseManagerFromDialector("sqlite", sqlite.Open(path), zerolog.Nop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = manager.Close()
	})

	return manager.GetGormDB()
}

// WriteFile writes content to dir/name and returns the full path
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// Hit describes one alignment line in a fixture
type Hit struct {
	QSeqID string
	PIdent float64
	NIdent int64
	Length int64
	QLen   int64
}

// AlignmentLine renders a nine-field alignment record
func AlignmentLine(h Hit) string {
	return fmt.Sprintf("%s,1,%d,0,0,%g,%d,%d,%d", h.QSeqID, h.Length, h.PIdent, h.NIdent, h.Length, h.QLen)
}

// AlignmentFile renders hits one per line
func AlignmentFile(hits ...Hit) string {
	var b strings.Builder
	for _, h := range hits {
		b.WriteString(AlignmentLine(h))
		b.WriteString("\n")
	}
	return b.String()
}

// Seq describes one block in a fixture sequence file
type Seq struct {
	ID    string
	Desc  string
	Bases string
}

// SequenceFile renders blocks with bases folded at width (0 means no folding)
func SequenceFile(width int, seqs ...Seq) string {
	var b strings.Builder
	for _, s := range seqs {
		b.WriteString(">")
		b.WriteString(s.ID)
		if s.Desc != "" {
			b.WriteString(" ")
			b.WriteString(s.Desc)
		}
		b.WriteString("\n")

		bases := s.Bases
		for width > 0 && len(bases) > width {
			b.WriteString(bases[:width])
			b.WriteString("\n")
			bases = bases[width:]
		}
		b.WriteString(bases)
		b.WriteString("\n")
	}
	return b.String()
}

// Batch is a complete set of input files for one batch id
type Batch struct {
	ID       string
	Hits     []Hit
	Seqs     []Seq
	RunDates []string // years; nil means no run-date file, empty means a file with no marker
}

// WriteBatch writes trc_<id>.csv, trc_<id>.fa and, when RunDates is non-nil,
// xml_trc_<id>. It returns the directory for chaining.
func WriteBatch(t *testing.T, dir string, b Batch) string {
	t.Helper()

	WriteFile(t, dir, "trc_"+b.ID+".csv", AlignmentFile(b.Hits...))
	WriteFile(t, dir, "trc_"+b.ID+".fa", SequenceFile(60, b.Seqs...))

	if b.RunDates != nil {
		var x strings.Builder
		x.WriteString("<EXPERIMENT>\n")
		for _, year := range b.RunDates {
			fmt.Fprintf(&x, "  <RUN_DATE>%s-03-14T00:00:00</RUN_DATE>\n", year)
		}
		x.WriteString("</EXPERIMENT>\n")
		WriteFile(t, dir, "xml_trc_"+b.ID, x.String())
	}

	return dir
}
