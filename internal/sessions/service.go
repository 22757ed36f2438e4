package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/flatdocs/flatdocs/internal/store"
)

// DefaultTTL is the fixed session lifetime.
const DefaultTTL = 24 * time.Hour

// Service is the session authority: it checks the single admin credential,
// mints opaque tokens and applies the lazy expiry rule.
type Service struct {
	repo        Repository
	adminUser   string
	adminHash   string
	permissions map[string]string
	ttl         time.Duration
}

// NewService wires a Service. adminHash is a bcrypt hash; permissions maps
// logical document names to "public" or "admin". A zero ttl means DefaultTTL.
func NewService(r Repository, adminUser, adminHash string, permissions map[string]string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if permissions == nil {
		permissions = map[string]string{}
	}
	return &Service{repo: r, adminUser: adminUser, adminHash: adminHash, permissions: permissions, ttl: ttl}
}

// TTL returns the configured session lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Authenticate reports whether the credentials match the configured admin.
// The bcrypt comparison runs before the username check so a wrong username
// costs the same as a wrong password.
func (s *Service) Authenticate(username, password string) bool {
	hashOK := bcrypt.CompareHashAndPassword([]byte(s.adminHash), []byte(password)) == nil
	return hashOK && username == s.adminUser
}

// Create mints a fresh unguessable token and stores the session.
func (s *Service) Create(ctx context.Context, username string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	sess := &Session{
		Token:         token,
		Username:      username,
		Authenticated: true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the owning username when token belongs to a live session.
// A session older than the TTL is evicted on this access and reported
// invalid; there is no background sweep.
func (s *Service) Resolve(ctx context.Context, token string) (string, bool) {
	if token == "" {
		return "", false
	}
	sess, err := s.repo.Get(ctx, token)
	if err != nil || sess == nil {
		return "", false
	}
	if time.Since(sess.CreatedAt) > s.ttl {
		_ = s.repo.Delete(ctx, token)
		return "", false
	}
	return sess.Username, true
}

// Validate reports whether token belongs to a live session.
func (s *Service) Validate(ctx context.Context, token string) bool {
	_, ok := s.Resolve(ctx, token)
	return ok
}

// Invalidate removes the session unconditionally. Idempotent.
func (s *Service) Invalidate(ctx context.Context, token string) error {
	return s.repo.Delete(ctx, token)
}

// RequiresAdmin reports whether the permission map marks name as admin-only.
// The lookup key is the sanitized logical name.
func (s *Service) RequiresAdmin(name string) bool {
	return s.permissions[store.LogicalName(name)] == "admin"
}
