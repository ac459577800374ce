// Package datastore exposes the write and read surface the rest of the
// service uses. It resolves the owning profile, builds validated paths, and
// stamps ownership on every created document. Writes are single attempts;
// failed writes surface as WriteError with no retry.
package datastore

import (
	"context"

	"github.com/studyplanner/planner-service/internal/docpath"
	"github.com/studyplanner/planner-service/internal/identity"
	"github.com/studyplanner/planner-service/internal/model"
	registrystore "github.com/studyplanner/planner-service/internal/registry/store"
)

// Adapter binds a DocumentStore to a resolved profile inside one
// namespace/app scope.
type Adapter struct {
	store     registrystore.DocumentStore
	ids       *identity.Resolver
	namespace string
	appID     string
}

// NewAdapter returns an adapter writing under the given namespace and app.
func NewAdapter(store registrystore.DocumentStore, ids *identity.Resolver, namespace, appID string) *Adapter {
	return &Adapter{store: store, ids: ids, namespace: namespace, appID: appID}
}

// ProfileID returns the profile all operations are scoped to.
func (a *Adapter) ProfileID() string {
	return a.ids.ProfileID()
}

// Store returns the underlying DocumentStore.
func (a *Adapter) Store() registrystore.DocumentStore {
	return a.store
}

func (a *Adapter) collectionPath(colName string) (docpath.Path, error) {
	return docpath.Collection(a.namespace, a.appID, a.ids.ProfileID(), colName)
}

func (a *Adapter) documentPath(colName, docID string) (docpath.Path, error) {
	return docpath.Document(a.namespace, a.appID, a.ids.ProfileID(), colName, docID)
}

// Create appends a document to the named collection and returns its id.
// The resolved profile is stamped as ownerProfileId; a caller-supplied
// owner field is always overwritten.
func (a *Adapter) Create(ctx context.Context, colName string, fields map[string]any) (string, error) {
	col, err := a.collectionPath(colName)
	if err != nil {
		return "", err
	}

	stamped := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		stamped[k] = v
	}
	stamped[model.FieldOwner] = a.ids.ProfileID()

	id, err := a.store.Create(ctx, col, stamped)
	if err != nil {
		return "", &WriteError{Op: "create", Path: col.String(), Err: err}
	}
	return id, nil
}

// Update merges the patch into the addressed document's fields.
func (a *Adapter) Update(ctx context.Context, colName, docID string, patch map[string]any) error {
	doc, err := a.documentPath(colName, docID)
	if err != nil {
		return err
	}
	if err := a.store.Update(ctx, doc, patch); err != nil {
		return &WriteError{Op: "update", Path: doc.String(), Err: err}
	}
	return nil
}

// Delete permanently removes the addressed document.
func (a *Adapter) Delete(ctx context.Context, colName, docID string) error {
	doc, err := a.documentPath(colName, docID)
	if err != nil {
		return err
	}
	if err := a.store.Delete(ctx, doc); err != nil {
		return &WriteError{Op: "delete", Path: doc.String(), Err: err}
	}
	return nil
}

// QueryOrdered builds a reusable query over the named collection ordered
// ascending by orderField. No I/O happens until the query is executed.
func (a *Adapter) QueryOrdered(colName, orderField string) (*registrystore.Query, error) {
	col, err := a.collectionPath(colName)
	if err != nil {
		return nil, err
	}
	return &registrystore.Query{Path: col, OrderField: orderField}, nil
}

// FetchOnce executes the query eagerly against the store.
func (a *Adapter) FetchOnce(ctx context.Context, q *registrystore.Query) ([]model.Record, error) {
	return a.store.FetchOnce(ctx, *q)
}

// FetchDocument reads one document; a nil record means it does not exist.
func (a *Adapter) FetchDocument(ctx context.Context, colName, docID string) (model.Record, error) {
	doc, err := a.documentPath(colName, docID)
	if err != nil {
		return nil, err
	}
	return a.store.FetchDocument(ctx, doc)
}
