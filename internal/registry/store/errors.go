package store

import "fmt"

// NotFoundError indicates the addressed document was not found.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document not found: %s", e.Path)
}
