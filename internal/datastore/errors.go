package datastore

import "fmt"

// WriteError wraps a failed store write with the operation and the path it
// addressed. Callers unwrap to reach the underlying store error.
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write failed: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
