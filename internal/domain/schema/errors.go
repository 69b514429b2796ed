package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds for this package.
var (
	ErrMissingColumns = errors.New("missing required columns")
	ErrInvalidValue   = errors.New("invalid feature value")
)

// MissingColumnsError lists the canonical columns a table lacks.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingColumns, strings.Join(e.Missing, ", "))
}

func (e *MissingColumnsError) Unwrap() error { return ErrMissingColumns }

// ValueError reports a cell that could not be read as a number.
// Row is 1-based over data records.
type ValueError struct {
	Row    int
	Column string
	Value  string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s: row %d column %s: %q", ErrInvalidValue, e.Row, e.Column, e.Value)
}

func (e *ValueError) Unwrap() error { return ErrInvalidValue }
