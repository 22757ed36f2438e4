package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flatdocs/flatdocs/internal/sessions"
	"github.com/flatdocs/flatdocs/pkg/logger"
	"github.com/flatdocs/flatdocs/pkg/metrics"
	"github.com/flatdocs/flatdocs/pkg/middleware"
)

// LoginRequest carries the single-admin credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	sessions *sessions.Service
}

func NewAuthHandler(s *sessions.Service) *AuthHandler {
	return &AuthHandler{sessions: s}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/logout", h.Logout)
	a.GET("/status", h.Status)
}

// Login checks the admin credentials and mints a session. The token travels
// back both in the body and as an HttpOnly same-site-strict cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	if !h.sessions.Authenticate(req.Username, req.Password) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token, err := h.sessions.Create(c.Request.Context(), req.Username)
	if err != nil {
		logger.Errorf("[%s] failed to create session: %v", requestID(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.SessionCookie, token, int(h.sessions.TTL().Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "login successful", "sessionId": token})
}

// Logout invalidates the session (if any) and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token := middleware.TokenFromRequest(c); token != "" {
		if err := h.sessions.Invalidate(c.Request.Context(), token); err != nil {
			logger.Warnf("[%s] failed to remove session: %v", requestID(c), err)
		}
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out"})
}

// Status reports whether the request carries a live session.
func (h *AuthHandler) Status(c *gin.Context) {
	token := middleware.TokenFromRequest(c)
	authed := token != "" && h.sessions.Validate(c.Request.Context(), token)
	c.JSON(http.StatusOK, gin.H{"authenticated": authed})
}
