package batch

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"blastsum/internal/config"
	"blastsum/internal/utils"
)

const gzipSuffix = ".gz"

// Batch is one matched set of input files sharing a batch id
type Batch struct {
	ID            string
	AlignmentFile string
	SequenceFile  string
	RunDateFile   string // optional
}

// Namer derives batch ids from file names
type Namer struct {
	re *regexp.Regexp
}

// NewNamer compiles pattern. The first capture group is the id; a pattern
// without groups uses the whole match.
func NewNamer(pattern string) (*Namer, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid batch pattern %q", pattern)
	}
	return &Namer{re: re}, nil
}

// BatchID returns the id embedded in the base name of path
func (n *Namer) BatchID(path string) (string, error) {
	name := filepath.Base(path)
	m := n.re.FindStringSubmatch(name)
	if m == nil {
		return "", utils.NewParseError(path, 0, "no batch id matching %q in file name", n.re.String())
	}
	if len(m) > 1 {
		return m[1], nil
	}
	return m[0], nil
}

// Discovery is the result of pairing file listings. Problems holds one
// ParseError per file that could not be placed in a batch.
type Discovery struct {
	Batches  []Batch
	Problems []error
}

// Pair matches alignment, sequence and run-date files by batch id. A batch
// needs both an alignment and a sequence file; an id that appears twice in
// one family is ambiguous and the whole batch is dropped.
func Pair(namer *Namer, alignments, sequences, runDates []string) Discovery {
	var d Discovery

	alnByID := index(namer, alignments, "alignment", &d)
	seqByID := index(namer, sequences, "sequence", &d)
	dateByID := index(namer, runDates, "run-date", &d)

	for id, aln := range alnByID {
		seq, ok := seqByID[id]
		if !ok {
			d.Problems = append(d.Problems, utils.NewParseError(aln, 0, "batch %s has no sequence file", id))
			continue
		}
		d.Batches = append(d.Batches, Batch{
			ID:            id,
			AlignmentFile: aln,
			SequenceFile:  seq,
			RunDateFile:   dateByID[id],
		})
	}

	for id, seq := range seqByID {
		if _, ok := alnByID[id]; !ok {
			d.Problems = append(d.Problems, utils.NewParseError(seq, 0, "batch %s has no alignment file", id))
		}
	}
	for id, path := range dateByID {
		if _, ok := alnByID[id]; !ok {
			d.Problems = append(d.Problems, utils.NewParseError(path, 0, "batch %s has no alignment file", id))
		}
	}

	sort.Slice(d.Batches, func(i, j int) bool { return d.Batches[i].ID < d.Batches[j].ID })
	sort.SliceStable(d.Problems, func(i, j int) bool { return d.Problems[i].Error() < d.Problems[j].Error() })
	return d
}

// index maps batch id to path for one family, dropping ids seen more than once
func index(namer *Namer, paths []string, family string, d *Discovery) map[string]string {
	byID := make(map[string]string, len(paths))
	dup := make(map[string]bool)

	for _, path := range paths {
		id, err := namer.BatchID(path)
		if err != nil {
			d.Problems = append(d.Problems, err)
			continue
		}
		if prev, ok := byID[id]; ok {
			d.Problems = append(d.Problems, utils.NewParseError(path, 0,
				"batch %s already has %s file %s", id, family, filepath.Base(prev)))
			dup[id] = true
			continue
		}
		byID[id] = path
	}

	for id := range dup {
		delete(byID, id)
	}
	return byID
}

// Listing holds the files of each family found in a directory
type Listing struct {
	Alignments []string
	Sequences  []string
	RunDates   []string
}

// List reads cfg.Dir (not recursively) and sorts its files into families
// by extension and prefix. A gzipped file counts as its inner extension;
// names ending in one of cfg.IgnoreSuffixes are left out.
func List(cfg config.InputConfig) (Listing, error) {
	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return Listing{}, utils.NewIOError(cfg.Dir, err)
	}

	var l Listing
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(cfg.Dir, name)
		if ignored(name, cfg.IgnoreSuffixes) {
			continue
		}

		switch {
		case cfg.RunDatePrefix != "" && strings.HasPrefix(name, cfg.RunDatePrefix):
			l.RunDates = append(l.RunDates, path)
		case hasExt(name, cfg.AlignmentExt):
			l.Alignments = append(l.Alignments, path)
		case hasExt(name, cfg.SequenceExt):
			l.Sequences = append(l.Sequences, path)
		}
	}
	return l, nil
}

func hasExt(name, ext string) bool {
	if ext == "" {
		return false
	}
	return strings.HasSuffix(strings.TrimSuffix(name, gzipSuffix), ext)
}

func ignored(name string, suffixes []string) bool {
	base := strings.TrimSuffix(name, gzipSuffix)
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(base, s) {
			return true
		}
	}
	return false
}

// Discover lists cfg.Dir and pairs what it finds
func Discover(cfg config.InputConfig) (Discovery, error) {
	namer, err := NewNamer(cfg.BatchPattern)
	if err != nil {
		return Discovery{}, err
	}

	l, err := List(cfg)
	if err != nil {
		return Discovery{}, err
	}

	return Pair(namer, l.Alignments, l.Sequences, l.RunDates), nil
}
