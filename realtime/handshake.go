package realtime

import (
	"context"
	"strings"

	auth "github.com/quillhub/blog-auth"
)

// Handshake results reported to the Observer
const (
	HandshakeAuthenticated = "authenticated"
	HandshakeMissing       = "missing"
	HandshakeRejected      = "rejected"
)

// HandshakeAuthenticator authenticates a connection once, from the headers
// of its connect frame. A failed handshake does not refuse the connection:
// the session stays open but unauthenticated and is never registered for
// delivery.
type HandshakeAuthenticator struct {
	resolver *auth.IdentityResolver
	logger   auth.Logger
	observer Observer
}

func NewHandshakeAuthenticator(resolver *auth.IdentityResolver, logger auth.Logger, observer Observer) *HandshakeAuthenticator {
	if logger == nil {
		logger = auth.NopLogger()
	}
	return &HandshakeAuthenticator{
		resolver: resolver,
		logger:   logger,
		observer: normalizeObserver(observer),
	}
}

// Authenticate verifies the Authorization header of a connect frame and
// resolves its identity, including the token uid cross-check.
func (h *HandshakeAuthenticator) Authenticate(ctx context.Context, headers map[string]string) ConnectionIdentity {
	raw := tokenFromHeaders(headers)
	if raw == "" {
		h.observer.Handshake(HandshakeMissing)
		return ConnectionIdentity{Identity: auth.Anonymous()}
	}

	identity, _, err := h.resolver.ResolveToken(ctx, raw)
	if err != nil {
		reason := auth.TextCode(err)
		if auth.StatusCode(err) >= 500 {
			h.logger.Error("connection handshake failed", "error", err)
			reason = auth.TextCodeInternalAuthFailure
		} else {
			h.logger.Debug("connection handshake rejected", "reason", reason)
		}
		h.observer.Handshake(HandshakeRejected)
		return ConnectionIdentity{Identity: auth.Anonymous(), Reason: reason}
	}

	h.observer.Handshake(HandshakeAuthenticated)
	return ConnectionIdentity{Identity: identity, Authenticated: true}
}

// tokenFromHeaders reads Authorization case insensitively and strips an
// optional Bearer prefix.
func tokenFromHeaders(headers map[string]string) string {
	var value string
	for k, v := range headers {
		if strings.EqualFold(k, HeaderAuthorization) {
			value = strings.TrimSpace(v)
			break
		}
	}
	if len(value) > 7 && strings.EqualFold(value[:7], "Bearer ") {
		value = strings.TrimSpace(value[7:])
	}
	return value
}
