package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flatdocs/flatdocs/internal/schema"
	"github.com/flatdocs/flatdocs/internal/sessions"
	"github.com/flatdocs/flatdocs/internal/store"
	"github.com/flatdocs/flatdocs/pkg/logger"
	"github.com/flatdocs/flatdocs/pkg/metrics"
	"github.com/flatdocs/flatdocs/pkg/middleware"
)

// FilesHandler serves the document pipeline: auth gate, schema validation,
// store operation, JSON response.
type FilesHandler struct {
	store    *store.Store
	schemas  *schema.Registry
	sessions *sessions.Service
}

func NewFilesHandler(st *store.Store, sc *schema.Registry, se *sessions.Service) *FilesHandler {
	return &FilesHandler{store: st, schemas: sc, sessions: se}
}

// Register wires the document routes. Reads are public unless the
// permission map flags the name as admin; all mutations require a session.
func (h *FilesHandler) Register(r *gin.Engine) {
	r.GET("/data/:name", middleware.OptionalSession(h.sessions), h.Get)

	api := r.Group("/api")
	api.GET("/files", h.List)

	f := api.Group("/file")
	f.GET("/:name", middleware.OptionalSession(h.sessions), h.Get)
	f.POST("/:name", middleware.RequireSession(h.sessions), h.Put)
	f.PUT("/:name", middleware.RequireSession(h.sessions), h.Put)
	f.PATCH("/:name", middleware.RequireSession(h.sessions), h.Patch)
	f.DELETE("/:name", middleware.RequireSession(h.sessions), h.Delete)
}

// Get returns the raw document. Admin-flagged names need a valid session on
// every read path, /data and /api/file alike.
func (h *FilesHandler) Get(c *gin.Context) {
	name := c.Param("name")
	if h.sessions.RequiresAdmin(name) && !c.GetBool("authenticated") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	doc, err := h.store.Read(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		logger.Errorf("[%s] read %s: %v", requestID(c), name, err)
		metrics.DocumentOps.WithLabelValues("read", "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read failed"})
		return
	}
	metrics.DocumentOps.WithLabelValues("read", "ok").Inc()
	c.JSON(http.StatusOK, doc)
}

// Put creates or fully replaces a document. The payload lives under a
// required `data` key and is validated in full against the matching schema.
func (h *FilesHandler) Put(c *gin.Context) {
	name := c.Param("name")
	body, ok := bindBody(c)
	if !ok {
		return
	}
	data, ok := body["data"]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing data payload"})
		return
	}
	if !h.validate(c, name, data) {
		return
	}
	doc, err := h.store.Write(name, data)
	if err != nil {
		logger.Errorf("[%s] write %s: %v", requestID(c), name, err)
		metrics.DocumentOps.WithLabelValues("write", "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write failed"})
		return
	}
	metrics.DocumentOps.WithLabelValues("write", "ok").Inc()
	c.JSON(http.StatusOK, gin.H{"success": true, "data": doc})
}

var errNotObject = errors.New("existing document is not an object")

// Patch shallow-merges the payload's top-level keys over the existing
// document and validates the merged result, not just the patch. The whole
// read-merge-write cycle runs under the store's per-name lock.
func (h *FilesHandler) Patch(c *gin.Context) {
	name := c.Param("name")
	body, ok := bindBody(c)
	if !ok {
		return
	}
	data, ok := body["data"]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing data payload"})
		return
	}
	patch, ok := data.(map[string]interface{})
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "patch payload must be an object"})
		return
	}

	var invalid *schema.Result
	doc, err := h.store.Update(name, func(existing interface{}, found bool) (interface{}, error) {
		if !found {
			return nil, store.ErrNotFound
		}
		base, ok := existing.(map[string]interface{})
		if !ok {
			return nil, errNotObject
		}
		// top-level merge only; nested values are replaced wholesale
		merged := make(map[string]interface{}, len(base)+len(patch))
		for k, v := range base {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		if res := h.schemas.Validate(name, merged); !res.Valid {
			invalid = res
			return nil, errors.New("validation failed")
		}
		return merged, nil
	})
	if err != nil {
		switch {
		case invalid != nil:
			metrics.ValidationFailures.WithLabelValues(store.LogicalName(name)).Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": invalid.Errors})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(err, errNotObject):
			c.JSON(http.StatusBadRequest, gin.H{"error": errNotObject.Error()})
		default:
			logger.Errorf("[%s] patch %s: %v", requestID(c), name, err)
			metrics.DocumentOps.WithLabelValues("write", "error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "write failed"})
		}
		return
	}
	metrics.DocumentOps.WithLabelValues("write", "ok").Inc()
	c.JSON(http.StatusOK, gin.H{"success": true, "data": doc})
}

// Delete backs up and removes the document.
func (h *FilesHandler) Delete(c *gin.Context) {
	name := c.Param("name")
	if err := h.store.Delete(name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		logger.Errorf("[%s] delete %s: %v", requestID(c), name, err)
		metrics.DocumentOps.WithLabelValues("delete", "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	metrics.DocumentOps.WithLabelValues("delete", "ok").Inc()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// List returns all logical document names. Unauthenticated.
func (h *FilesHandler) List(c *gin.Context) {
	names, err := h.store.List()
	if err != nil {
		logger.Errorf("[%s] list documents: %v", requestID(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": names})
}

// requestID returns the correlation id set by the request-id middleware,
// for inclusion in log lines.
func requestID(c *gin.Context) string {
	return c.GetString("requestID")
}

// bindBody decodes the request body as a JSON object, replying 400 itself
// on failure.
func bindBody(c *gin.Context) (map[string]interface{}, bool) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return body, true
}

// validate runs schema validation, replying 400 with the ordered error list
// itself on failure.
func (h *FilesHandler) validate(c *gin.Context, name string, doc interface{}) bool {
	res := h.schemas.Validate(name, doc)
	if res.Valid {
		return true
	}
	metrics.ValidationFailures.WithLabelValues(store.LogicalName(name)).Inc()
	c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": res.Errors})
	return false
}
