package trellis

import (
	"errors"

	"github.com/jward/trellis/internal/config"
	"github.com/jward/trellis/internal/extract"
	"github.com/jward/trellis/internal/pathnorm"
	"github.com/jward/trellis/internal/store"
)

// Error types returned by the Engine, re-exported from where they originate
// so callers can classify with errors.As without importing internal packages.
type (
	ExtractionError = extract.ExtractionError
	StorageError    = store.StorageError
	ConfigError     = config.ConfigError
)

var (
	ErrSchemaMismatch = store.ErrSchemaMismatch
	ErrOutsideRoot    = pathnorm.ErrOutsideRoot
	ErrWriterClosed   = store.ErrWriterClosed

	// ErrInvalidPosition is returned when a line or character does not
	// address the file.
	ErrInvalidPosition = errors.New("invalid position")
)
