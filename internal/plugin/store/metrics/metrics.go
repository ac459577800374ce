// Package metrics wraps a DocumentStore to record per-operation latency.
package metrics

import (
	"context"
	"time"

	"github.com/studyplanner/planner-service/internal/docpath"
	"github.com/studyplanner/planner-service/internal/model"
	"github.com/studyplanner/planner-service/internal/observe"
	registrystore "github.com/studyplanner/planner-service/internal/registry/store"
)

// Wrap decorates a DocumentStore so every operation observes its latency.
func Wrap(next registrystore.DocumentStore) registrystore.DocumentStore {
	return &store{next: next}
}

type store struct {
	next registrystore.DocumentStore
}

func observeOp(op string, start time.Time) {
	if observe.StoreLatency == nil {
		return
	}
	observe.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *store) Create(ctx context.Context, col docpath.Path, fields map[string]any) (string, error) {
	defer observeOp("create", time.Now())
	return s.next.Create(ctx, col, fields)
}

func (s *store) Update(ctx context.Context, doc docpath.Path, patch map[string]any) error {
	defer observeOp("update", time.Now())
	return s.next.Update(ctx, doc, patch)
}

func (s *store) Delete(ctx context.Context, doc docpath.Path) error {
	defer observeOp("delete", time.Now())
	return s.next.Delete(ctx, doc)
}

func (s *store) FetchOnce(ctx context.Context, q registrystore.Query) ([]model.Record, error) {
	defer observeOp("fetch_once", time.Now())
	return s.next.FetchOnce(ctx, q)
}

func (s *store) FetchDocument(ctx context.Context, doc docpath.Path) (model.Record, error) {
	defer observeOp("fetch_document", time.Now())
	return s.next.FetchDocument(ctx, doc)
}

func (s *store) Subscribe(ctx context.Context, q registrystore.Query, fn registrystore.SnapshotFunc) (registrystore.Handle, error) {
	defer observeOp("subscribe", time.Now())
	return s.next.Subscribe(ctx, q, fn)
}

func (s *store) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}
