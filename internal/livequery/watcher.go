// Package livequery keeps a consumer subscribed to one live collection
// query at a time. Re-watching with new inputs tears down the previous
// subscription before the next one opens, and a generation counter makes
// sure snapshots from a torn-down subscription are never delivered.
package livequery

import (
	"context"
	"reflect"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/studyplanner/planner-service/internal/model"
	"github.com/studyplanner/planner-service/internal/observe"
	registrystore "github.com/studyplanner/planner-service/internal/registry/store"
)

// State describes the watcher's subscription lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateSubscribed State = "subscribed"
	StateError      State = "error"
)

// QueryFunc builds the query to subscribe to. A nil query means there is
// nothing to watch and the watcher goes idle; an error puts it in the error
// state. Either way it settles on an empty snapshot.
type QueryFunc func() (*registrystore.Query, error)

// Watcher manages a single live subscription against a DocumentStore.
// Watch may be called repeatedly with changing inputs; only the most recent
// subscription delivers snapshots. All methods are safe for concurrent use.
type Watcher struct {
	store registrystore.DocumentStore

	mu         sync.Mutex
	gen        uint64
	handle     registrystore.Handle
	deps       []any
	records    []model.Record
	onSnapshot func([]model.Record)
	state      State
	closed     bool
}

// NewWatcher returns an idle watcher bound to the store.
func NewWatcher(store registrystore.DocumentStore) *Watcher {
	return &Watcher{store: store, state: StateIdle}
}

// OnSnapshot registers the consumer callback. It is invoked with every
// snapshot the watcher accepts, including the empty snapshot emitted when a
// query cannot be built or the stream fails.
func (w *Watcher) OnSnapshot(fn func(records []model.Record)) {
	w.mu.Lock()
	w.onSnapshot = fn
	w.mu.Unlock()
}

// Records returns the last accepted snapshot.
func (w *Watcher) Records() []model.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.Record, len(w.records))
	copy(out, w.records)
	return out
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Watch (re)subscribes using the query built by queryFn. When deps are
// unchanged from the previous call and a subscription is already open, the
// call is a no-op. Otherwise the old subscription is closed before the new
// one opens. Query build and subscribe failures are absorbed: the watcher
// logs them and delivers an empty snapshot instead of propagating the error.
func (w *Watcher) Watch(ctx context.Context, queryFn QueryFunc, deps ...any) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if w.handle != nil && reflect.DeepEqual(deps, w.deps) {
		w.mu.Unlock()
		return
	}
	w.deps = append([]any(nil), deps...)
	old := w.handle
	w.handle = nil
	w.gen++
	gen := w.gen
	w.mu.Unlock()

	// The old stream must be fully torn down before the new one opens so
	// two subscriptions for the same consumer never overlap.
	if old != nil {
		old.Close()
		subscriptionsDec()
	}

	q, err := queryFn()
	if err != nil {
		log.Warn("Failed to build watch query", "error", err)
		w.settle(gen, StateError)
		return
	}
	if q == nil || q.Path.IsZero() {
		w.settle(gen, StateIdle)
		return
	}

	handle, err := w.store.Subscribe(ctx, *q, func(records []model.Record, err error) {
		if err != nil {
			log.Error("Snapshot stream failed", "path", q.Path, "error", err)
			w.settle(gen, StateError)
			return
		}
		w.deliver(gen, records)
	})
	if err != nil {
		log.Error("Failed to subscribe", "path", q.Path, "error", err)
		w.settle(gen, StateError)
		return
	}

	w.mu.Lock()
	if w.closed || gen != w.gen {
		// A newer Watch or a Close raced this subscribe; the stream is
		// already stale and must not be kept.
		w.mu.Unlock()
		handle.Close()
		return
	}
	w.handle = handle
	w.state = StateSubscribed
	w.mu.Unlock()
	subscriptionsInc()
}

// Close tears down the subscription. Safe to call more than once; the
// underlying handle is released exactly once.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	h := w.handle
	w.handle = nil
	w.mu.Unlock()

	if h != nil {
		h.Close()
		subscriptionsDec()
	}
}

// deliver accepts a snapshot only when it belongs to the current generation
// of a live watcher. Late snapshots from torn-down streams are dropped.
func (w *Watcher) deliver(gen uint64, records []model.Record) {
	if records == nil {
		records = []model.Record{}
	}
	w.mu.Lock()
	if w.closed || gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.records = records
	fn := w.onSnapshot
	w.mu.Unlock()

	if fn != nil {
		fn(records)
	}
}

// settle records a terminal state for the generation and delivers the empty
// snapshot consumers observe in place of an error.
func (w *Watcher) settle(gen uint64, state State) {
	w.mu.Lock()
	if !w.closed && gen == w.gen {
		w.state = state
	}
	w.mu.Unlock()
	w.deliver(gen, []model.Record{})
}

func subscriptionsInc() {
	if observe.ActiveSubscriptions != nil {
		observe.ActiveSubscriptions.Inc()
	}
}

func subscriptionsDec() {
	if observe.ActiveSubscriptions != nil {
		observe.ActiveSubscriptions.Dec()
	}
}
