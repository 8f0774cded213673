package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	auth "github.com/quillhub/blog-auth"
)

func TestIdentityFromContext(t *testing.T) {
	t.Run("bound identity", func(t *testing.T) {
		identity := auth.Identity{ID: 7, Username: "alice", Enabled: true, Authorities: []string{auth.AuthorityUser}}
		ctx := auth.WithIdentity(context.Background(), identity)

		got, ok := auth.IdentityFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, identity, got)
	})

	t.Run("nothing bound", func(t *testing.T) {
		_, ok := auth.IdentityFromContext(context.Background())
		assert.False(t, ok)
	})

	t.Run("anonymous marker", func(t *testing.T) {
		ctx := auth.WithIdentity(context.Background(), auth.Anonymous())
		_, ok := auth.IdentityFromContext(ctx)
		assert.False(t, ok)
	})

	t.Run("nil context", func(t *testing.T) {
		var ctx context.Context
		_, ok := auth.IdentityFromContext(ctx)
		assert.False(t, ok)
	})
}

func TestGetClaims(t *testing.T) {
	claims := &auth.JWTClaims{UID: 7}
	claims.RegisteredClaims.Subject = "alice"

	ctx := auth.WithClaimsContext(context.Background(), claims)
	got, ok := auth.GetClaims(ctx)
	assert.True(t, ok)
	assert.Same(t, claims, got)

	_, ok = auth.GetClaims(context.Background())
	assert.False(t, ok)

	_, ok = auth.GetClaims(auth.WithClaimsContext(context.Background(), nil))
	assert.False(t, ok)
}

func TestHasAuthority(t *testing.T) {
	admin := auth.Identity{ID: 1, Username: "root", Authorities: []string{auth.AuthorityUser, auth.AuthorityAdmin}}
	user := auth.Identity{ID: 2, Username: "alice", Authorities: []string{auth.AuthorityUser}}

	assert.True(t, auth.HasAuthority(auth.WithIdentity(context.Background(), admin), auth.AuthorityAdmin))
	assert.False(t, auth.HasAuthority(auth.WithIdentity(context.Background(), user), auth.AuthorityAdmin))
	assert.False(t, auth.HasAuthority(context.Background(), auth.AuthorityUser))
}

func TestIdentity(t *testing.T) {
	assert.True(t, auth.Anonymous().IsAnonymous())
	assert.True(t, auth.Identity{ID: 3, Username: auth.AnonymousSubject}.IsAnonymous())
	assert.True(t, auth.Identity{Username: "alice"}.IsAnonymous())
	assert.False(t, auth.Identity{ID: 3, Username: "alice"}.IsAnonymous())

	user := newUser(7, "alice", true, auth.AuthorityUser, auth.AuthorityAdmin)
	user.PasswordHash = "secret-hash"

	identity := auth.NewIdentity(&user)
	assert.Equal(t, int64(7), identity.ID)
	assert.Equal(t, "alice", identity.Username)
	assert.True(t, identity.Enabled)
	assert.Equal(t, []string{auth.AuthorityUser, auth.AuthorityAdmin}, identity.Authorities)

	assert.True(t, auth.NewIdentity(nil).IsAnonymous())
}
