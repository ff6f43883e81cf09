package report

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"blastsum/internal/assembler"
	"blastsum/internal/models"
	"blastsum/internal/nonhit"
	"blastsum/internal/reducer"
	"blastsum/internal/seqstats"
	"blastsum/internal/utils"
)

// NonHitterFile is one written non-hitter sequence file
type NonHitterFile struct {
	Batch string             `yaml:"batch"`
	Path  string             `yaml:"path"`
	Stats nonhit.FilterStats `yaml:"stats"`
}

// Document is the archived record of one command run. Sections that the
// command did not produce are omitted.
type Document struct {
	Command     string                `yaml:"command"`
	GeneratedAt time.Time             `yaml:"generated_at"`
	Artifact    string                `yaml:"artifact,omitempty"`
	Batches     []models.BatchSummary `yaml:"batches,omitempty"`
	Reduction   *reducer.Reduction    `yaml:"reduction,omitempty"`
	Residuals   []string              `yaml:"residuals,omitempty"`
	NonHitters  []NonHitterFile       `yaml:"non_hitters,omitempty"`
	Assembly    *assembler.Result     `yaml:"assembly,omitempty"`
	SeqStats    *seqstats.Report      `yaml:"seqstats,omitempty"`
	Skipped     []utils.Skip          `yaml:"skipped,omitempty"`
}

// WriteYAML writes doc to path. An empty path writes nothing.
func WriteYAML(path string, doc Document) error {
	if path == "" {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return utils.NewIOError(path, err)
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		f.Close()
		return utils.NewIOError(path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return utils.NewIOError(path, err)
	}
	if err := f.Close(); err != nil {
		return utils.NewIOError(path, err)
	}
	return nil
}
