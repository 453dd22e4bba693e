// Package mapping loads the mapping table and the column-to-field
// redirection file that drive a repopulation run.
package mapping

import (
	"errors"
	"fmt"
)

// Causes wrapped by LoadError and ConfigError. Match them with errors.Is.
var (
	ErrNoRows           = errors.New("no data rows")
	ErrRowWidth         = errors.New("row width does not match header")
	ErrEmptyColumn      = errors.New("empty column name")
	ErrDuplicateColumn  = errors.New("duplicate column name")
	ErrUnknownColumn    = errors.New("unknown column")
	ErrEmptyKey         = errors.New("empty key value")
	ErrDuplicateKey     = errors.New("duplicate key value")
	ErrMalformedLine    = errors.New("malformed line")
	ErrUnknownField     = errors.New("unknown field")
	ErrConflictingField = errors.New("field mapped from more than one column")
	ErrConflictingKey   = errors.New("more than one key column")
)

// LoadError reports a mapping table that cannot be trusted. It always aborts the run.
type LoadError struct {
	Path string
	Line int // 1-based; 0 when the error is not tied to a line
	Err  error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("mapping table %s: line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("mapping table %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConfigError reports an unusable redirection file or a redirection that
// does not fit the mapping table.
type ConfigError struct {
	Path string
	Line int
	Err  error
}

func (e *ConfigError) Error() string {
	name := e.Path
	if name == "" {
		name = "(inline)"
	}
	if e.Line > 0 {
		return fmt.Sprintf("redirection %s: line %d: %v", name, e.Line, e.Err)
	}
	return fmt.Sprintf("redirection %s: %v", name, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
