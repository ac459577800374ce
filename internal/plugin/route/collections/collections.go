// Package collections mounts the document REST surface: collection list and
// create, single-document read, patch and delete, and a server-sent-events
// stream that pushes a fresh snapshot whenever the collection changes.
package collections

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/studyplanner/planner-service/internal/docpath"
	"github.com/studyplanner/planner-service/internal/identity"
	"github.com/studyplanner/planner-service/internal/livequery"
	"github.com/studyplanner/planner-service/internal/model"
	"github.com/studyplanner/planner-service/internal/observe"
	registrycache "github.com/studyplanner/planner-service/internal/registry/cache"
	registrystore "github.com/studyplanner/planner-service/internal/registry/store"
)

// Deps carries what the routes need; Cache and Resolver may be nil.
type Deps struct {
	Store registrystore.DocumentStore
	Cache registrycache.SnapshotCache
	// Resolver backs the "me" profile alias.
	Resolver  *identity.Resolver
	Namespace string
	AppID     string
}

// MountRoutes registers the document routes.
func MountRoutes(r *gin.Engine, deps Deps) {
	h := &handler{deps: deps}

	r.GET("/api/profiles/:profileId/collections/*collection", h.list)
	r.POST("/api/profiles/:profileId/collections/*collection", h.create)
	r.GET("/api/profiles/:profileId/documents/*docpath", h.fetchDocument)
	r.PATCH("/api/profiles/:profileId/documents/*docpath", h.update)
	r.DELETE("/api/profiles/:profileId/documents/*docpath", h.delete)
}

type handler struct {
	deps Deps
}

func (h *handler) profileID(c *gin.Context) string {
	profileID := c.Param("profileId")
	if profileID == "me" && h.deps.Resolver != nil {
		return h.deps.Resolver.ProfileID()
	}
	return profileID
}

func (h *handler) collectionPath(c *gin.Context) (docpath.Path, bool) {
	profileID := h.profileID(c)
	colName := strings.Trim(c.Param("collection"), "/")
	p, err := docpath.Collection(h.deps.Namespace, h.deps.AppID, profileID, colName)
	if err != nil {
		handleError(c, err)
		return docpath.Path{}, false
	}
	return p, true
}

func (h *handler) documentPath(c *gin.Context) (docpath.Path, bool) {
	profileID := h.profileID(c)
	raw := strings.Trim(c.Param("docpath"), "/")
	idx := strings.LastIndexByte(raw, '/')
	if idx < 0 {
		handleError(c, docpath.ErrMissingDocID)
		return docpath.Path{}, false
	}
	colName, docID := raw[:idx], raw[idx+1:]
	p, err := docpath.Document(h.deps.Namespace, h.deps.AppID, profileID, colName, docID)
	if err != nil {
		handleError(c, err)
		return docpath.Path{}, false
	}
	return p, true
}

func (h *handler) list(c *gin.Context) {
	p, ok := h.collectionPath(c)
	if !ok {
		return
	}
	q := registrystore.Query{Path: p, OrderField: c.Query("orderBy")}

	if _, watch := c.GetQuery("watch"); watch {
		h.watch(c, q)
		return
	}

	ctx := c.Request.Context()
	if h.deps.Cache != nil && h.deps.Cache.Available() && q.OrderField == "" {
		records, hit, err := h.deps.Cache.Get(ctx, p.String())
		if err != nil {
			log.Warn("Snapshot cache read failed", "path", p, "error", err)
		} else if hit {
			cacheHit()
			c.JSON(http.StatusOK, gin.H{"records": records})
			return
		}
		cacheMiss()
	}

	records, err := h.deps.Store.FetchOnce(ctx, q)
	if err != nil {
		handleError(c, err)
		return
	}
	if records == nil {
		records = []model.Record{}
	}

	if h.deps.Cache != nil && h.deps.Cache.Available() && q.OrderField == "" {
		if err := h.deps.Cache.Set(ctx, p.String(), records, 0); err != nil {
			log.Warn("Snapshot cache write failed", "path", p, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// watch streams snapshots over SSE until the client disconnects.
func (h *handler) watch(c *gin.Context, q registrystore.Query) {
	w := livequery.NewWatcher(h.deps.Store)
	defer w.Close()

	snapshots := make(chan []model.Record, 8)
	w.OnSnapshot(func(records []model.Record) {
		select {
		case snapshots <- records:
		default:
			// Slow consumer: drop the intermediate snapshot. The next one
			// carries the full state anyway.
		}
	})

	ctx := c.Request.Context()
	w.Watch(ctx, func() (*registrystore.Query, error) { return &q, nil }, q.Path.String(), q.OrderField)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(_ io.Writer) bool {
		select {
		case records := <-snapshots:
			c.SSEvent("snapshot", records)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (h *handler) create(c *gin.Context) {
	p, ok := h.collectionPath(c)
	if !ok {
		return
	}

	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}
	// The addressed profile owns the document no matter what the body says.
	delete(fields, model.FieldID)
	delete(fields, model.FieldCreatedAt)
	fields[model.FieldOwner] = h.profileID(c)

	id, err := h.deps.Store.Create(c.Request.Context(), p, fields)
	if err != nil {
		handleError(c, err)
		return
	}

	h.invalidate(c, p.String())
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *handler) fetchDocument(c *gin.Context) {
	p, ok := h.documentPath(c)
	if !ok {
		return
	}

	record, err := h.deps.Store.FetchDocument(c.Request.Context(), p)
	if err != nil {
		handleError(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *handler) update(c *gin.Context) {
	p, ok := h.documentPath(c)
	if !ok {
		return
	}

	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}
	delete(patch, model.FieldID)
	delete(patch, model.FieldCreatedAt)
	delete(patch, model.FieldOwner)

	if err := h.deps.Store.Update(c.Request.Context(), p, patch); err != nil {
		handleError(c, err)
		return
	}

	if parent, _, ok := p.Split(); ok {
		h.invalidate(c, parent.String())
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) delete(c *gin.Context) {
	p, ok := h.documentPath(c)
	if !ok {
		return
	}

	if err := h.deps.Store.Delete(c.Request.Context(), p); err != nil {
		handleError(c, err)
		return
	}

	if parent, _, ok := p.Split(); ok {
		h.invalidate(c, parent.String())
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) invalidate(c *gin.Context, key string) {
	if h.deps.Cache == nil || !h.deps.Cache.Available() {
		return
	}
	if err := h.deps.Cache.Remove(c.Request.Context(), key); err != nil {
		log.Warn("Snapshot cache invalidation failed", "path", key, "error", err)
	}
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.Is(err, docpath.ErrMissingProfileID),
		errors.Is(err, docpath.ErrEmptyCollectionName),
		errors.Is(err, docpath.ErrInvalidPathShape),
		errors.Is(err, docpath.ErrMissingDocID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func cacheHit() {
	if observe.SnapshotCacheHitsTotal != nil {
		observe.SnapshotCacheHitsTotal.Inc()
	}
}

func cacheMiss() {
	if observe.SnapshotCacheMissesTotal != nil {
		observe.SnapshotCacheMissesTotal.Inc()
	}
}
