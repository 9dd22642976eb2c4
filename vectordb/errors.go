package vectordb

import (
	"errors"
	"fmt"
)

var (
	// ErrUpsertUnsupported is returned when a table has no merge key to upsert on.
	ErrUpsertUnsupported = errors.New("upsert unsupported")
	// ErrStoreIO wraps storage failures other than table absence.
	ErrStoreIO = errors.New("store i/o")
	// ErrEmptyBatch is returned when creating a table from no rows.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrDimensionMismatch is returned when a vector does not match the table dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrDuplicateID is returned when an insert hits an existing id on a merge-keyed table.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrInvalidTable is returned for table names that are not plain identifiers.
	ErrInvalidTable = errors.New("invalid table name")
)

// StoreError wraps errors with operation context.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("vectordb: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vectordb: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Wrap attaches operation context to err; nil stays nil.
func Wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Table: table, Err: err}
}

// WrapIO marks err as a storage failure.
func WrapIO(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Table: table, Err: fmt.Errorf("%w: %w", ErrStoreIO, err)}
}
