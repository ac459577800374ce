// Package store defines the document store interface and its plugin registry.
package store

import (
	"context"
	"fmt"

	"github.com/studyplanner/planner-service/internal/docpath"
	"github.com/studyplanner/planner-service/internal/model"
)

// Query is an opaque, reusable descriptor for an ordered collection read.
// Building a Query performs no I/O; it is executed by FetchOnce or consumed
// by Subscribe.
type Query struct {
	Path docpath.Path
	// OrderField sorts results ascending. Defaults to "createdAt" when empty.
	OrderField string
}

// SnapshotFunc receives the full ordered record set every time the matching
// collection changes, or a non-nil error when the stream fails. After an
// error no further snapshots are delivered on that handle.
type SnapshotFunc func(records []model.Record, err error)

// Handle is a live change-stream subscription. Close releases the
// server-side listener; it is safe to call more than once but only the
// owner that opened the handle may close it.
type Handle interface {
	Close()
}

// DocumentStore is the backend-agnostic document store interface.
// Paths must have been built by docpath; implementations do not re-validate
// shape. The store assigns document ids and creation timestamps.
type DocumentStore interface {
	// Create appends a new record to the collection and returns its id.
	Create(ctx context.Context, col docpath.Path, fields map[string]any) (string, error)
	// Update applies a partial-field merge to the addressed document.
	// Returns a NotFoundError when the document does not exist.
	Update(ctx context.Context, doc docpath.Path, patch map[string]any) error
	// Delete permanently removes the addressed document.
	// Returns a NotFoundError when the document does not exist.
	Delete(ctx context.Context, doc docpath.Path) error
	// FetchOnce executes the query eagerly and returns the current snapshot.
	FetchOnce(ctx context.Context, q Query) ([]model.Record, error)
	// FetchDocument reads a single document; nil record when absent.
	FetchDocument(ctx context.Context, doc docpath.Path) (model.Record, error)
	// Subscribe opens a change stream for the query. The initial snapshot
	// is delivered before Subscribe returns or shortly after; every
	// subsequent change pushes a fresh snapshot.
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Handle, error)
	// Close releases the store's underlying connections.
	Close(ctx context.Context) error
}

// Loader creates a DocumentStore from config carried in ctx.
type Loader func(ctx context.Context) (DocumentStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
