package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/flatdocs/flatdocs/internal/schema"
	"github.com/flatdocs/flatdocs/internal/sessions"
	"github.com/flatdocs/flatdocs/internal/store"
)

const (
	testUser     = "admin"
	testPassword = "secret123"
)

// newTestApp assembles the full router against temp directories, the way
// main wires it.
func newTestApp(t *testing.T, perms map[string]string) (*gin.Engine, *schema.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	reg := schema.NewRegistry(t.TempDir())

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	svc := sessions.NewService(sessions.NewMemoryRepository(), testUser, string(hash), perms, time.Hour)

	r := gin.New()
	NewAuthHandler(svc).Register(r.Group("/api"))
	NewFilesHandler(st, reg, svc).Register(r)
	NewSchemaHandler(reg, svc).Register(r)
	RegisterMeta(r)
	return r, reg
}

// do issues a JSON request. A non-empty token travels as the session cookie.
func do(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "sessionId", Value: token})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// login authenticates with the test credentials and returns the session token.
func login(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": testUser,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}
