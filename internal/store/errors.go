package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateID  = errors.New("record id already exists")
	ErrInvalidField = errors.New("field contains a reserved character")
)

// ParseError describes a stored line that could not be decoded. Stores skip
// such lines instead of failing the read.
type ParseError struct {
	Kind   Kind
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s record at line %d: %s", e.Kind, e.Line, e.Reason)
}

// StorageError wraps an I/O or database failure.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
