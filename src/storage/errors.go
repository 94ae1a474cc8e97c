package storage

import "fmt"

// WriteError marks a persistence failure during a refresh. Fatal for that
// attempt: callers must stamp it as a failure, never swallow it into a
// success path.
type WriteError struct {
	Op  string // e.g. "price bars", "fundamentals"
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write (%s): %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
