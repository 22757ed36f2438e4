package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newTestService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	hash := testHash(t, "hunter2")
	return NewService(NewMemoryRepository(), "admin", hash, map[string]string{"secret": "admin"}, ttl)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t, time.Hour)
	assert.True(t, svc.Authenticate("admin", "hunter2"))
	assert.False(t, svc.Authenticate("admin", "wrong"))
	assert.False(t, svc.Authenticate("nobody", "hunter2"))
	assert.False(t, svc.Authenticate("", ""))
}

func TestCreateValidateInvalidate(t *testing.T) {
	svc := newTestService(t, time.Hour)
	ctx := context.Background()

	token, err := svc.Create(ctx, "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.GreaterOrEqual(t, len(token), 20, "token must be unguessable")

	assert.True(t, svc.Validate(ctx, token))

	require.NoError(t, svc.Invalidate(ctx, token))
	assert.False(t, svc.Validate(ctx, token))

	// idempotent
	require.NoError(t, svc.Invalidate(ctx, token))
}

func TestResolveReturnsUsername(t *testing.T) {
	svc := newTestService(t, time.Hour)
	ctx := context.Background()

	token, err := svc.Create(ctx, "admin")
	require.NoError(t, err)

	user, ok := svc.Resolve(ctx, token)
	require.True(t, ok)
	assert.Equal(t, "admin", user)

	user, ok = svc.Resolve(ctx, "no-such-token")
	assert.False(t, ok)
	assert.Empty(t, user)
}

func TestValidateUnknownToken(t *testing.T) {
	svc := newTestService(t, time.Hour)
	assert.False(t, svc.Validate(context.Background(), "no-such-token"))
	assert.False(t, svc.Validate(context.Background(), ""))
}

func TestLazyExpiry(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, "admin", testHash(t, "pw"), nil, time.Hour)
	ctx := context.Background()

	token, err := svc.Create(ctx, "admin")
	require.NoError(t, err)

	// age the stored session past the TTL instead of sleeping
	sess, err := repo.Get(ctx, token)
	require.NoError(t, err)
	sess.CreatedAt = time.Now().UTC().Add(-25 * time.Hour)

	assert.False(t, svc.Validate(ctx, token))

	// the expired entry is evicted on that first failed validation
	gone, err := repo.Get(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTokensAreUnique(t *testing.T) {
	svc := newTestService(t, time.Hour)
	ctx := context.Background()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := svc.Create(ctx, "admin")
		require.NoError(t, err)
		require.False(t, seen[token], "token collision")
		seen[token] = true
	}
}

func TestRequiresAdmin(t *testing.T) {
	svc := newTestService(t, time.Hour)
	assert.True(t, svc.RequiresAdmin("secret"))
	assert.True(t, svc.RequiresAdmin("secret.json"))
	assert.True(t, svc.RequiresAdmin("../secret.json"))
	assert.False(t, svc.RequiresAdmin("public-thing"))
}

func TestDefaultTTL(t *testing.T) {
	svc := NewService(NewMemoryRepository(), "admin", testHash(t, "pw"), nil, 0)
	assert.Equal(t, DefaultTTL, svc.TTL())
}
