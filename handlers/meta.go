package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Version is reported by /health and the root description document.
const Version = "v0.1.0"

// RegisterMeta registers the liveness endpoint and the root API
// description document.
func RegisterMeta(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   Version,
		})
	})

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, apiDescription)
	})
}

// apiDescription is the machine-readable summary served at /.
var apiDescription = gin.H{
	"name":        "flatdocs",
	"version":     Version,
	"description": "JSON document store with schema validation and single-admin sessions",
	"endpoints": gin.H{
		"GET /data/:name":          "raw document (admin-flagged names require a session)",
		"GET /api/file/:name":      "raw document, optional auth",
		"POST /api/file/:name":     "create or replace a document ({data: ...}), auth required",
		"PUT /api/file/:name":      "create or replace a document ({data: ...}), auth required",
		"PATCH /api/file/:name":    "shallow-merge into an existing document, auth required",
		"DELETE /api/file/:name":   "backup and remove a document, auth required",
		"GET /api/files":           "list document names",
		"POST /api/auth/login":     "exchange admin credentials for a session cookie",
		"POST /api/auth/logout":    "invalidate the session and clear the cookie",
		"GET /api/auth/status":     "report whether the request carries a live session",
		"GET /api/schema/:name":    "raw schema",
		"POST /api/schema/:name":   "create or replace a schema, auth required",
		"DELETE /api/schema/:name": "remove a schema, auth required",
		"GET /api/schemas":         "list schema names",
		"GET /health":              "liveness",
		"GET /ready":               "readiness",
		"GET /metrics":             "Prometheus metrics",
	},
}
