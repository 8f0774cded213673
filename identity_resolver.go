package auth

import (
	"context"

	"github.com/goliatone/go-errors"
)

// IdentityResolver maps verified token claims onto a live identity record.
// Every call reads the store; nothing is cached between calls.
type IdentityResolver struct {
	store  IdentityStore
	tokens *TokenService
	logger Logger
}

// NewIdentityResolver creates a resolver over store. tokens is only
// required for ResolveToken.
func NewIdentityResolver(store IdentityStore, tokens *TokenService, logger Logger) *IdentityResolver {
	return &IdentityResolver{
		store:  store,
		tokens: tokens,
		logger: normalizeLogger(logger),
	}
}

// Tokens returns the token service used by ResolveToken
func (r *IdentityResolver) Tokens() *TokenService {
	return r.tokens
}

// Resolve looks up the claims subject and checks that the stored id matches
// the uid embedded at issuance. An account recreated under the same
// username gets a new id, so stale tokens fail with ErrIdentityMismatch.
func (r *IdentityResolver) Resolve(ctx context.Context, claims *JWTClaims) (Identity, error) {
	if claims == nil || claims.Subject() == "" {
		return Identity{}, ErrTokenMalformed
	}

	user, err := r.store.FindByUsername(ctx, claims.Subject())
	if err != nil {
		if errors.IsNotFound(err) {
			return Identity{}, withMeta(ErrIdentityNotFound, map[string]any{
				"subject": claims.Subject(),
			})
		}
		return Identity{}, r.internalFailure("identity lookup failed", err, claims.Subject())
	}

	if user == nil {
		return Identity{}, withMeta(ErrIdentityNotFound, map[string]any{
			"subject": claims.Subject(),
		})
	}

	if user.ID != claims.IdentityID() {
		r.logger.Warn("token identity mismatch",
			"subject", claims.Subject(),
			"token_uid", claims.IdentityID(),
			"store_uid", user.ID,
		)
		return Identity{}, withMeta(ErrIdentityMismatch, map[string]any{
			"subject": claims.Subject(),
		})
	}

	return NewIdentity(user), nil
}

// ResolveToken verifies a raw token and resolves its identity
func (r *IdentityResolver) ResolveToken(ctx context.Context, token string) (Identity, *JWTClaims, error) {
	if r.tokens == nil {
		return Identity{}, nil, r.internalFailure("token service not configured", nil, "")
	}

	claims, err := r.tokens.Verify(token)
	if err != nil {
		return Identity{}, nil, err
	}

	identity, err := r.Resolve(ctx, claims)
	if err != nil {
		return Identity{}, claims, err
	}
	return identity, claims, nil
}

// Refresh re-reads an identity by id. Used by gates that must observe
// account state changes made after the token was issued.
func (r *IdentityResolver) Refresh(ctx context.Context, id int64) (Identity, error) {
	user, err := r.store.FindByID(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return Identity{}, withMeta(ErrIdentityNotFound, map[string]any{"id": id})
		}
		return Identity{}, r.internalFailure("identity refresh failed", err, "")
	}
	if user == nil {
		return Identity{}, withMeta(ErrIdentityNotFound, map[string]any{"id": id})
	}
	return NewIdentity(user), nil
}

func (r *IdentityResolver) internalFailure(msg string, cause error, subject string) error {
	r.logger.Error(msg, "subject", subject, "error", cause)
	out := ErrInternalAuthFailure.Clone()
	out.Source = cause
	return out
}
