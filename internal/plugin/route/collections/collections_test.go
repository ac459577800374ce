package collections

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/studyplanner/planner-service/internal/identity"
	"github.com/studyplanner/planner-service/internal/model"
	"github.com/studyplanner/planner-service/internal/plugin/store/memory"
	registrycache "github.com/studyplanner/planner-service/internal/registry/cache"
)

func newRouter(t *testing.T, cache registrycache.SnapshotCache) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	r := gin.New()
	MountRoutes(r, Deps{
		Store:     store,
		Cache:     cache,
		Namespace: "artifacts",
		AppID:     "study-planner-v1",
	})
	return r, store
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndList(t *testing.T) {
	r, _ := newRouter(t, nil)

	w := do(r, http.MethodPost, "/api/profiles/p1/collections/M_tasks", `{"text":"read ch. 4","completed":false}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	w = do(r, http.MethodGet, "/api/profiles/p1/collections/M_tasks", "")
	require.Equal(t, http.StatusOK, w.Code)

	var listed struct {
		Records []model.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Records, 1)
	require.Equal(t, "read ch. 4", listed.Records[0]["text"])
	require.Equal(t, "p1", listed.Records[0]["ownerProfileId"])
}

func TestMeAliasResolvesThroughIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := memory.New()
	r := gin.New()
	MountRoutes(r, Deps{
		Store:     store,
		Resolver:  identity.NewResolver("injected-profile", t.TempDir()),
		Namespace: "artifacts",
		AppID:     "study-planner-v1",
	})

	w := do(r, http.MethodPost, "/api/profiles/me/collections/M_tasks", `{"text":"x"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// The document lives under the resolved profile, not under "me".
	w = do(r, http.MethodGet, "/api/profiles/injected-profile/collections/M_tasks", "")
	var listed struct {
		Records []model.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Records, 1)
	require.Equal(t, "injected-profile", listed.Records[0]["ownerProfileId"])
}

func TestCreateOverridesSpoofedOwner(t *testing.T) {
	r, _ := newRouter(t, nil)

	w := do(r, http.MethodPost, "/api/profiles/p1/collections/M_tasks", `{"text":"x","ownerProfileId":"intruder"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(r, http.MethodGet, "/api/profiles/p1/collections/M_tasks", "")
	var listed struct {
		Records []model.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Equal(t, "p1", listed.Records[0]["ownerProfileId"])
}

func TestInvalidCollectionShapeIsBadRequest(t *testing.T) {
	r, _ := newRouter(t, nil)

	// Two segments address a document, not a collection.
	w := do(r, http.MethodGet, "/api/profiles/p1/collections/M_courses/c1", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	r, _ := newRouter(t, nil)

	w := do(r, http.MethodPost, "/api/profiles/p1/collections/M_tasks", `{"text":"essay","completed":false}`)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	docPath := "/api/profiles/p1/documents/M_tasks/" + created.ID

	w = do(r, http.MethodPatch, docPath, `{"completed":true}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, docPath, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec model.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	require.Equal(t, true, rec["completed"])
	require.Equal(t, "essay", rec["text"])

	w = do(r, http.MethodDelete, docPath, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, docPath, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchMissingDocumentIsNotFound(t *testing.T) {
	r, _ := newRouter(t, nil)

	w := do(r, http.MethodPatch, "/api/profiles/p1/documents/M_tasks/nope", `{"completed":true}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrdersByQueryParam(t *testing.T) {
	r, _ := newRouter(t, nil)

	do(r, http.MethodPost, "/api/profiles/p1/collections/M_schedule", `{"title":"physics","day":3}`)
	do(r, http.MethodPost, "/api/profiles/p1/collections/M_schedule", `{"title":"algebra","day":1}`)

	w := do(r, http.MethodGet, "/api/profiles/p1/collections/M_schedule?orderBy=day", "")
	require.Equal(t, http.StatusOK, w.Code)

	var listed struct {
		Records []model.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Records, 2)
	require.Equal(t, "algebra", listed.Records[0]["title"])
}

// recordingCache is a SnapshotCache double that tracks calls.
type recordingCache struct {
	mu      sync.Mutex
	entries map[string][]model.Record
	sets    int
	removes int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string][]model.Record{}}
}

func (c *recordingCache) Available() bool { return true }

func (c *recordingCache) Get(ctx context.Context, path string) ([]model.Record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, ok := c.entries[path]
	return records, ok, nil
}

func (c *recordingCache) Set(ctx context.Context, path string, records []model.Record, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = records
	c.sets++
	return nil
}

func (c *recordingCache) Remove(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
	c.removes++
	return nil
}

func TestListUsesSnapshotCache(t *testing.T) {
	cache := newRecordingCache()
	r, _ := newRouter(t, cache)

	do(r, http.MethodPost, "/api/profiles/p1/collections/M_tasks", `{"text":"a"}`)

	// First list misses and fills the cache; second is served from it.
	w := do(r, http.MethodGet, "/api/profiles/p1/collections/M_tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, cache.sets)

	w = do(r, http.MethodGet, "/api/profiles/p1/collections/M_tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, cache.sets, "second list must not refill the cache")

	// Writes invalidate.
	do(r, http.MethodPost, "/api/profiles/p1/collections/M_tasks", `{"text":"b"}`)
	require.GreaterOrEqual(t, cache.removes, 1)
}

// closeNotifyRecorder adds the http.CloseNotifier method gin's
// Context.Stream requires, which httptest.ResponseRecorder lacks.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (c *closeNotifyRecorder) CloseNotify() <-chan bool { return c.closed }

func TestWatchStreamsInitialSnapshot(t *testing.T) {
	r, _ := newRouter(t, nil)

	do(r, http.MethodPost, "/api/profiles/p1/collections/M_tasks", `{"text":"live"}`)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/profiles/p1/collections/M_tasks?watch", nil).WithContext(ctx)
	w := &closeNotifyRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate on disconnect")
	}

	body := w.Body.String()
	require.Contains(t, body, "event:snapshot")
	require.Contains(t, body, "live")
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}
