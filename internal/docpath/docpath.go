// Package docpath builds and validates document store paths.
//
// Every path is rooted at a fixed four-segment prefix
// (namespace, appID, "users", profileID). Collection names may be nested
// ("courses/<courseId>/lessons"); after splitting, the segment count past
// the root must be odd, otherwise the path would terminate at a document
// and be unusable for list/query operations.
package docpath

import (
	"errors"
	"fmt"
	"strings"
)

// usersSegment is the fixed third root segment.
const usersSegment = "users"

var (
	// ErrMissingProfileID is returned when no profile id was supplied.
	ErrMissingProfileID = errors.New("profile id required for document path")
	// ErrEmptyCollectionName is returned when the collection name splits
	// into zero usable segments.
	ErrEmptyCollectionName = errors.New("collection name is empty")
	// ErrInvalidPathShape is returned when the segment count after the
	// root is even, i.e. the path ends at a document instead of a collection.
	ErrInvalidPathShape = errors.New("collection path must contain an odd number of segments")
	// ErrMissingDocID is returned when no document id was supplied.
	ErrMissingDocID = errors.New("doc id required for document path")
)

// Path is a validated, fully-qualified sequence of path segments.
type Path struct {
	segments []string
}

// Segments returns a copy of the path's segments.
func (p Path) Segments() []string {
	return append([]string(nil), p.segments...)
}

// String returns the slash-joined form of the path.
func (p Path) String() string {
	return strings.Join(p.segments, "/")
}

// IsZero reports whether the path is empty.
func (p Path) IsZero() bool {
	return len(p.segments) == 0
}

// splitName splits a collection name on "/" into trimmed, non-empty segments.
func splitName(colName string) []string {
	var parts []string
	for _, s := range strings.Split(colName, "/") {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// Collection builds the fully-qualified path for a (possibly nested)
// collection under the given profile.
func Collection(namespace, appID, profileID, colName string) (Path, error) {
	if profileID == "" {
		return Path{}, ErrMissingProfileID
	}
	parts := splitName(colName)
	if len(parts) == 0 {
		return Path{}, fmt.Errorf("%w: %q", ErrEmptyCollectionName, colName)
	}
	// The root is exactly 4 segments, so collection parity is decided by
	// the supplied segments alone. If the root shape ever changes, this
	// check must be revisited rather than rederived.
	if len(parts)%2 == 0 {
		return Path{}, fmt.Errorf("%w: %q has %d segments", ErrInvalidPathShape, colName, len(parts))
	}
	segments := append([]string{namespace, appID, usersSegment, profileID}, parts...)
	return Path{segments: segments}, nil
}

// Document builds the fully-qualified path for a single document under the
// given collection.
func Document(namespace, appID, profileID, colName, docID string) (Path, error) {
	if docID == "" {
		return Path{}, ErrMissingDocID
	}
	col, err := Collection(namespace, appID, profileID, colName)
	if err != nil {
		return Path{}, err
	}
	return Path{segments: append(col.segments, docID)}, nil
}

// Split separates a document path into its parent collection path and the
// document id. It returns false when the path is not a document path.
func (p Path) Split() (Path, string, bool) {
	// A document path has an even segment count past the 4-segment root.
	if len(p.segments) < 6 || (len(p.segments)-4)%2 != 0 {
		return Path{}, "", false
	}
	n := len(p.segments) - 1
	return Path{segments: append([]string(nil), p.segments[:n]...)}, p.segments[n], true
}
