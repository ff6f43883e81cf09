package logging

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LevelCounter implements zerolog.Hook and counts emitted events at or
// above warn level
type LevelCounter struct {
	warnings atomic.Int64
	errors   atomic.Int64
}

// NewLevelCounter creates an empty counter
func NewLevelCounter() *LevelCounter {
	return &LevelCounter{}
}

// Run implements the zerolog.Hook interface
func (h *LevelCounter) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	switch {
	case level == zerolog.WarnLevel:
		h.warnings.Add(1)
	case level >= zerolog.ErrorLevel && level < zerolog.NoLevel:
		h.errors.Add(1)
	}
}

// Warnings returns the number of warn events seen
func (h *LevelCounter) Warnings() int64 {
	return h.warnings.Load()
}

// Errors returns the number of error and fatal events seen
func (h *LevelCounter) Errors() int64 {
	return h.errors.Load()
}
