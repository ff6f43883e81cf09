package loader

import (
	"blastsum/internal/batch"
	"blastsum/internal/models"
)

// Loaded is the parsed content of one batch
type Loaded struct {
	Batch      batch.Batch
	Alignments []models.AlignmentRecord
	Sequences  []models.SequenceRecord
}

// Loader reads the alignment and sequence files of a batch
type Loader struct {
	delimiter string
}

// NewLoader creates a loader for alignment files split on delimiter
func NewLoader(delimiter string) *Loader {
	return &Loader{delimiter: delimiter}
}

// Load parses both files of b. Either failing rejects the batch.
func (l *Loader) Load(b batch.Batch) (*Loaded, error) {
	alignments, err := LoadAlignments(b.AlignmentFile, l.delimiter)
	if err != nil {
		return nil, err
	}

	sequences, err := LoadSequences(b.SequenceFile)
	if err != nil {
		return nil, err
	}

	for i := range alignments {
		alignments[i].SeqFile = b.ID
	}

	return &Loaded{Batch: b, Alignments: alignments, Sequences: sequences}, nil
}
