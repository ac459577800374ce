// Package memory implements DocumentStore entirely in process. It backs
// tests and local development; snapshots are delivered synchronously after
// each mutation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/studyplanner/planner-service/internal/docpath"
	"github.com/studyplanner/planner-service/internal/model"
	registrystore "github.com/studyplanner/planner-service/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			return New(), nil
		},
	})
}

type doc struct {
	id        string
	createdAt time.Time
	fields    map[string]any
	seq       int
}

type subscriber struct {
	q  registrystore.Query
	fn registrystore.SnapshotFunc
}

// Store is the in-memory DocumentStore.
type Store struct {
	mu      sync.Mutex
	cols    map[string][]*doc
	subs    map[string]map[int]*subscriber
	nextSub int
	seq     int
	// now is swappable for deterministic timestamps in tests.
	now func() time.Time
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		cols: map[string][]*doc{},
		subs: map[string]map[int]*subscriber{},
		now:  time.Now,
	}
}

func (s *Store) Create(ctx context.Context, col docpath.Path, fields map[string]any) (string, error) {
	d := &doc{
		id:        uuid.NewString(),
		createdAt: s.now(),
		fields:    cloneFields(fields),
	}

	s.mu.Lock()
	s.seq++
	d.seq = s.seq
	key := col.String()
	s.cols[key] = append(s.cols[key], d)
	pending := s.pendingSnapshotsLocked(key)
	s.mu.Unlock()

	deliver(pending)
	return d.id, nil
}

func (s *Store) Update(ctx context.Context, docPath docpath.Path, patch map[string]any) error {
	col, id, ok := docPath.Split()
	if !ok {
		return fmt.Errorf("not a document path: %s", docPath)
	}

	s.mu.Lock()
	d := s.findLocked(col.String(), id)
	if d == nil {
		s.mu.Unlock()
		return &registrystore.NotFoundError{Path: docPath.String()}
	}
	for k, v := range patch {
		d.fields[k] = v
	}
	pending := s.pendingSnapshotsLocked(col.String())
	s.mu.Unlock()

	deliver(pending)
	return nil
}

func (s *Store) Delete(ctx context.Context, docPath docpath.Path) error {
	col, id, ok := docPath.Split()
	if !ok {
		return fmt.Errorf("not a document path: %s", docPath)
	}
	key := col.String()

	s.mu.Lock()
	docs := s.cols[key]
	idx := -1
	for i, d := range docs {
		if d.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return &registrystore.NotFoundError{Path: docPath.String()}
	}
	s.cols[key] = append(docs[:idx], docs[idx+1:]...)
	pending := s.pendingSnapshotsLocked(key)
	s.mu.Unlock()

	deliver(pending)
	return nil
}

func (s *Store) FetchOnce(ctx context.Context, q registrystore.Query) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(q), nil
}

func (s *Store) FetchDocument(ctx context.Context, docPath docpath.Path) (model.Record, error) {
	col, id, ok := docPath.Split()
	if !ok {
		return nil, fmt.Errorf("not a document path: %s", docPath)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findLocked(col.String(), id)
	if d == nil {
		return nil, nil
	}
	return d.record(), nil
}

func (s *Store) Subscribe(ctx context.Context, q registrystore.Query, fn registrystore.SnapshotFunc) (registrystore.Handle, error) {
	key := q.Path.String()

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	if s.subs[key] == nil {
		s.subs[key] = map[int]*subscriber{}
	}
	s.subs[key][id] = &subscriber{q: q, fn: fn}
	initial := s.snapshotLocked(q)
	s.mu.Unlock()

	fn(initial, nil)
	return &handle{store: s, key: key, id: id}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

type handle struct {
	store *Store
	key   string
	id    int
	once  sync.Once
}

func (h *handle) Close() {
	h.once.Do(func() {
		h.store.mu.Lock()
		delete(h.store.subs[h.key], h.id)
		h.store.mu.Unlock()
	})
}

func (s *Store) findLocked(key, id string) *doc {
	for _, d := range s.cols[key] {
		if d.id == id {
			return d
		}
	}
	return nil
}

func (d *doc) record() model.Record {
	rec := make(model.Record, len(d.fields)+2)
	for k, v := range d.fields {
		rec[k] = v
	}
	rec[model.FieldID] = d.id
	rec[model.FieldCreatedAt] = d.createdAt
	return rec
}

func (s *Store) snapshotLocked(q registrystore.Query) []model.Record {
	orderField := q.OrderField
	if orderField == "" {
		orderField = model.FieldCreatedAt
	}
	docs := append([]*doc(nil), s.cols[q.Path.String()]...)
	sort.SliceStable(docs, func(i, j int) bool {
		less, eq := compareDocs(docs[i], docs[j], orderField)
		if eq {
			return docs[i].seq < docs[j].seq
		}
		return less
	})
	records := make([]model.Record, len(docs))
	for i, d := range docs {
		records[i] = d.record()
	}
	return records
}

func compareDocs(a, b *doc, field string) (less, eq bool) {
	av, bv := orderValue(a, field), orderValue(b, field)
	switch x := av.(type) {
	case time.Time:
		if y, ok := bv.(time.Time); ok {
			return x.Before(y), x.Equal(y)
		}
	case string:
		if y, ok := bv.(string); ok {
			return x < y, x == y
		}
	}
	x, xok := toFloat(av)
	y, yok := toFloat(bv)
	if xok && yok {
		return x < y, x == y
	}
	xs, ys := fmt.Sprint(av), fmt.Sprint(bv)
	return xs < ys, xs == ys
}

func orderValue(d *doc, field string) any {
	if field == model.FieldCreatedAt {
		return d.createdAt
	}
	return d.fields[field]
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

type pendingSnapshot struct {
	fn      registrystore.SnapshotFunc
	records []model.Record
}

// pendingSnapshotsLocked computes the post-mutation snapshot for every
// subscriber of the collection. Callbacks run after the lock is released.
func (s *Store) pendingSnapshotsLocked(key string) []pendingSnapshot {
	var out []pendingSnapshot
	for _, sub := range s.subs[key] {
		out = append(out, pendingSnapshot{fn: sub.fn, records: s.snapshotLocked(sub.q)})
	}
	return out
}

func deliver(pending []pendingSnapshot) {
	for _, p := range pending {
		p.fn(p.records, nil)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

var _ registrystore.DocumentStore = (*Store)(nil)
