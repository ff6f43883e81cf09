package utils

import "github.com/pkg/errors"

// Skip records one unit of work that did not make it into the output
type Skip struct {
	Stage  string    `json:"stage" yaml:"stage"`
	Batch  string    `json:"batch,omitempty" yaml:"batch,omitempty"`
	File   string    `json:"file,omitempty" yaml:"file,omitempty"`
	Kind   ErrorKind `json:"kind" yaml:"kind"`
	Reason string    `json:"reason" yaml:"reason"`
}

// NewSkip describes err as a skip in stage. Errors outside the taxonomy are
// reported with the io kind.
func NewSkip(stage, batch string, err error) Skip {
	s := Skip{Stage: stage, Batch: batch, Kind: KindIO, Reason: err.Error()}

	if kind, ok := KindOf(err); ok {
		s.Kind = kind
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		s.File = pe.File
		if s.Batch == "" {
			s.Batch = pe.Batch
		}
	}
	return s
}
