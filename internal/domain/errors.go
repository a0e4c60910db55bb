package domain

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrDatasetNotFound is returned when no input file exists for an asset/range.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrInsufficientData is returned when an evaluation has nothing to score.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrParse is wrapped by every ParseError.
	ErrParse = errors.New("parse error")
)

// ParseError reports a malformed timestamp or numeric field.
type ParseError struct {
	Field string
	Value string
	Row   int // 1-based data row, 0 when not read from a file
	Err   error
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("parse %s %q (row %d): %v", e.Field, e.Value, e.Row, e.Err)
	}
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

// Is lets errors.Is match ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DatasetError identifies which asset and range a file-level failure belongs to.
type DatasetError struct {
	Asset Asset
	Range string
	Path  string
	Err   error
}

func (e *DatasetError) Error() string {
	if e.Range == "" {
		return fmt.Sprintf("dataset %s (%s): %v", e.Asset, e.Path, e.Err)
	}
	return fmt.Sprintf("dataset %s %s (%s): %v", e.Asset, e.Range, e.Path, e.Err)
}

func (e *DatasetError) Unwrap() error {
	return e.Err
}
