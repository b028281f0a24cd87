package domain

import "fmt"

// RowFailure describes a single row that could not be persisted.
type RowFailure struct {
	Table string
	SQL   string
	Row   []any
	Err   error
}

func (f RowFailure) Error() string {
	return fmt.Sprintf("insert into %s %v: %v", f.Table, f.Row, f.Err)
}

func (f RowFailure) Unwrap() error {
	return f.Err
}

// SaveResult reports the outcome of saving one article with its labels.
type SaveResult struct {
	Article  string
	Inserted bool
	Labels   int
	Failures []RowFailure
}
