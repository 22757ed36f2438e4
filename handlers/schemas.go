package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flatdocs/flatdocs/internal/schema"
	"github.com/flatdocs/flatdocs/internal/sessions"
	"github.com/flatdocs/flatdocs/pkg/logger"
	"github.com/flatdocs/flatdocs/pkg/middleware"
)

// SchemaHandler serves the schema management surface. Reads are public;
// mutations require a session and take effect immediately (full reload).
type SchemaHandler struct {
	registry *schema.Registry
	sessions *sessions.Service
}

func NewSchemaHandler(r *schema.Registry, s *sessions.Service) *SchemaHandler {
	return &SchemaHandler{registry: r, sessions: s}
}

func (h *SchemaHandler) Register(r *gin.Engine) {
	r.GET("/api/schemas", h.List)

	g := r.Group("/api/schema")
	g.GET("/:name", h.Get)
	g.POST("/:name", middleware.RequireSession(h.sessions), h.Save)
	g.DELETE("/:name", middleware.RequireSession(h.sessions), h.Delete)
}

// Get returns the raw schema document for name.
func (h *SchemaHandler) Get(c *gin.Context) {
	doc, ok := h.registry.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Save stores the request body as the schema for name. The schema must
// compile before anything touches disk.
func (h *SchemaHandler) Save(c *gin.Context) {
	name := c.Param("name")
	var body interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.Save(name, body); err != nil {
		if errors.Is(err, schema.ErrInvalidSchema) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schema", "details": []string{err.Error()}})
			return
		}
		logger.Errorf("[%s] save schema %s: %v", requestID(c), name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "schema": body})
}

// Delete removes the schema for name and reloads the registry.
func (h *SchemaHandler) Delete(c *gin.Context) {
	name := c.Param("name")
	if err := h.registry.Delete(name); err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		logger.Errorf("[%s] delete schema %s: %v", requestID(c), name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// List returns all registered schema names.
func (h *SchemaHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schemas": h.registry.Names()})
}
