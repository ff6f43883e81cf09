package utils

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind classifies pipeline failures by how far they propagate
type ErrorKind string

const (
	KindIO         ErrorKind = "io"
	KindParse      ErrorKind = "parse"
	KindEmptyBatch ErrorKind = "empty_batch"
	KindSchema     ErrorKind = "schema"
	KindIntegrity  ErrorKind = "integrity"
)

// Sentinel errors, one per kind, for errors.Is checks
var (
	ErrIO         = errors.New("io error")
	ErrParse      = errors.New("parse error")
	ErrEmptyBatch = errors.New("empty batch")
	ErrSchema     = errors.New("schema error")
	ErrIntegrity  = errors.New("integrity error")
)

var sentinels = map[ErrorKind]error{
	KindIO:         ErrIO,
	KindParse:      ErrParse,
	KindEmptyBatch: ErrEmptyBatch,
	KindSchema:     ErrSchema,
	KindIntegrity:  ErrIntegrity,
}

// PipelineError carries the kind of a failure together with the file, line
// or key it concerns
type PipelineError struct {
	Kind  ErrorKind
	File  string
	Table string
	Line  int
	Key   string
	Batch string
	Err   error
}

// Error returns the error message with its context
func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Batch != "" {
		fmt.Fprintf(&b, " batch=%s", e.Batch)
	}
	if e.File != "" {
		fmt.Fprintf(&b, " file=%s", e.File)
	}
	if e.Table != "" {
		fmt.Fprintf(&b, " table=%s", e.Table)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " line=%d", e.Line)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key=%q", e.Key)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind
func (e *PipelineError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// NewIOError wraps a failure to open, read or write a file
func NewIOError(file string, err error) *PipelineError {
	return &PipelineError{Kind: KindIO, File: file, Err: err}
}

// NewParseError reports a malformed record at the given line (0 when the
// failure is not tied to a line)
func NewParseError(file string, line int, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: KindParse, File: file, Line: line, Err: errors.Errorf(format, args...)}
}

// NewEmptyBatchError reports a batch that cannot be summarized
func NewEmptyBatchError(batch string, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: KindEmptyBatch, Batch: batch, Err: errors.Errorf(format, args...)}
}

// NewSchemaError reports missing or extra columns
func NewSchemaError(file string, line int, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: KindSchema, File: file, Line: line, Err: errors.Errorf(format, args...)}
}

// NewIntegrityError reports a primary-key collision for key in table
func NewIntegrityError(table, key, batch string, err error) *PipelineError {
	return &PipelineError{Kind: KindIntegrity, Table: table, Key: key, Batch: batch, Err: err}
}

// KindOf returns the kind of the first PipelineError in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
