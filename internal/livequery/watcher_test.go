package livequery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/studyplanner/planner-service/internal/docpath"
	"github.com/studyplanner/planner-service/internal/model"
	registrystore "github.com/studyplanner/planner-service/internal/registry/store"
	"github.com/stretchr/testify/require"
)

// fakeStore records subscribe/close ordering and lets tests push snapshots
// into live or stale subscriptions.
type fakeStore struct {
	mu           sync.Mutex
	events       []string
	subs         []*fakeSub
	subscribeErr error
}

type fakeSub struct {
	store  *fakeStore
	q      registrystore.Query
	fn     registrystore.SnapshotFunc
	closed bool
	once   sync.Once
}

func (f *fakeStore) Subscribe(ctx context.Context, q registrystore.Query, fn registrystore.SnapshotFunc) (registrystore.Handle, error) {
	f.mu.Lock()
	if f.subscribeErr != nil {
		err := f.subscribeErr
		f.mu.Unlock()
		return nil, err
	}
	f.events = append(f.events, "subscribe:"+q.Path.String())
	sub := &fakeSub{store: f, q: q, fn: fn}
	f.subs = append(f.subs, sub)
	f.mu.Unlock()

	fn([]model.Record{}, nil)
	return sub, nil
}

func (s *fakeSub) Close() {
	s.once.Do(func() {
		s.store.mu.Lock()
		s.closed = true
		s.store.events = append(s.store.events, "close:"+s.q.Path.String())
		s.store.mu.Unlock()
	})
}

func (f *fakeStore) latestSub() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeStore) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeStore) Create(ctx context.Context, col docpath.Path, fields map[string]any) (string, error) {
	return "", nil
}
func (f *fakeStore) Update(ctx context.Context, doc docpath.Path, patch map[string]any) error {
	return nil
}
func (f *fakeStore) Delete(ctx context.Context, doc docpath.Path) error { return nil }
func (f *fakeStore) FetchOnce(ctx context.Context, q registrystore.Query) ([]model.Record, error) {
	return nil, nil
}
func (f *fakeStore) FetchDocument(ctx context.Context, doc docpath.Path) (model.Record, error) {
	return nil, nil
}
func (f *fakeStore) Close(ctx context.Context) error { return nil }

func queryFor(t *testing.T, colName string) QueryFunc {
	t.Helper()
	return func() (*registrystore.Query, error) {
		p, err := docpath.Collection("artifacts", "study-planner-v1", "p1", colName)
		if err != nil {
			return nil, err
		}
		return &registrystore.Query{Path: p}, nil
	}
}

func TestWatchDeliversSnapshots(t *testing.T) {
	store := &fakeStore{}
	w := NewWatcher(store)
	defer w.Close()

	var mu sync.Mutex
	var got [][]model.Record
	w.OnSnapshot(func(records []model.Record) {
		mu.Lock()
		got = append(got, records)
		mu.Unlock()
	})

	w.Watch(context.Background(), queryFor(t, "M_tasks"), "M_tasks")
	require.Equal(t, StateSubscribed, w.State())

	mu.Lock()
	require.Len(t, got, 1)
	require.Empty(t, got[0])
	mu.Unlock()

	store.latestSub().fn([]model.Record{{"id": "1", "text": "read ch. 4"}}, nil)

	records := w.Records()
	require.Len(t, records, 1)
	require.Equal(t, "read ch. 4", records[0]["text"])
}

func TestRewatchTearsDownBeforeResubscribing(t *testing.T) {
	store := &fakeStore{}
	w := NewWatcher(store)
	defer w.Close()

	w.Watch(context.Background(), queryFor(t, "M_tasks"), "M_tasks")
	w.Watch(context.Background(), queryFor(t, "Y_tasks"), "Y_tasks")

	events := store.eventLog()
	require.Len(t, events, 3)
	require.Contains(t, events[0], "subscribe:")
	require.Contains(t, events[0], "M_tasks")
	require.Contains(t, events[1], "close:")
	require.Contains(t, events[1], "M_tasks")
	require.Contains(t, events[2], "subscribe:")
	require.Contains(t, events[2], "Y_tasks")
}

func TestLateSnapshotFromOldSubscriptionIsDropped(t *testing.T) {
	store := &fakeStore{}
	w := NewWatcher(store)
	defer w.Close()

	w.Watch(context.Background(), queryFor(t, "M_tasks"), "M_tasks")
	oldSub := store.latestSub()

	w.Watch(context.Background(), queryFor(t, "Y_tasks"), "Y_tasks")
	store.latestSub().fn([]model.Record{{"id": "current"}}, nil)

	// A snapshot surfacing from the torn-down stream must not clobber the
	// current generation's records.
	oldSub.fn([]model.Record{{"id": "stale"}}, nil)

	records := w.Records()
	require.Len(t, records, 1)
	require.Equal(t, "current", records[0]["id"])
}

func TestWatchWithUnchangedDepsIsNoop(t *testing.T) {
	store := &fakeStore{}
	w := NewWatcher(store)
	defer w.Close()

	w.Watch(context.Background(), queryFor(t, "M_tasks"), "M_tasks", "p1")
	w.Watch(context.Background(), queryFor(t, "M_tasks"), "M_tasks", "p1")

	require.Len(t, store.eventLog(), 1)
}

func TestCloseReleasesHandleExactlyOnce(t *testing.T) {
	store := &fakeStore{}
	w := NewWatcher(store)

	w.Watch(context.Background(), queryFor(t, "M_tasks"), "M_tasks")
	sub := store.latestSub()

	w.Close()
	w.Close()

	events := store.eventLog()
	closes := 0
	for _, e := range events {
		if e == fmt.Sprintf("close:%s", sub.q.Path) {
			closes++
		}
	}
	require.Equal(t, 1, closes)

	// Snapshots after Close are dropped.
	sub.fn([]model.Record{{"id": "late"}}, nil)
	require.Empty(t, w.Records())
}

func TestQueryBuildFailureSettlesOnEmptySnapshot(t *testing.T) {
	store := &fakeStore{}
	w := NewWatcher(store)
	defer w.Close()

	var delivered []model.Record
	w.OnSnapshot(func(records []model.Record) { delivered = records })

	w.Watch(context.Background(), func() (*registrystore.Query, error) {
		return nil, errors.New("missing profile")
	}, "bad")

	require.Equal(t, StateError, w.State())
	require.NotNil(t, delivered)
	require.Empty(t, delivered)
	require.Empty(t, store.eventLog())
}

func TestNilQueryMeansNothingToWatch(t *testing.T) {
	store := &fakeStore{}
	w := NewWatcher(store)
	defer w.Close()

	w.Watch(context.Background(), func() (*registrystore.Query, error) { return nil, nil }, "none")

	require.Equal(t, StateIdle, w.State())
	require.Empty(t, store.eventLog())
}

func TestSubscribeFailureIsAbsorbed(t *testing.T) {
	store := &fakeStore{subscribeErr: errors.New("connection refused")}
	w := NewWatcher(store)
	defer w.Close()

	var delivered []model.Record
	w.OnSnapshot(func(records []model.Record) { delivered = records })

	w.Watch(context.Background(), queryFor(t, "M_tasks"), "M_tasks")

	require.Equal(t, StateError, w.State())
	require.NotNil(t, delivered)
	require.Empty(t, delivered)
}

func TestStreamErrorReplacesRecordsWithEmptySnapshot(t *testing.T) {
	store := &fakeStore{}
	w := NewWatcher(store)
	defer w.Close()

	w.Watch(context.Background(), queryFor(t, "M_tasks"), "M_tasks")
	sub := store.latestSub()
	sub.fn([]model.Record{{"id": "1"}}, nil)
	require.Len(t, w.Records(), 1)

	sub.fn(nil, errors.New("stream reset"))

	require.Equal(t, StateError, w.State())
	require.Empty(t, w.Records())
}
