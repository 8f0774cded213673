package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenTTL is used when the configured TTL is not positive
const DefaultTokenTTL = 24 * time.Hour

// TokenService issues and verifies signed, time bounded identity tokens.
// It holds no per-token state and is safe for concurrent use.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	now        Clock
	logger     Logger
}

// TokenOption customizes a TokenService
type TokenOption func(*TokenService)

// WithTokenClock overrides the clock used during verification
func WithTokenClock(c Clock) TokenOption {
	return func(ts *TokenService) {
		ts.now = normalizeClock(c)
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(l Logger) TokenOption {
	return func(ts *TokenService) {
		ts.logger = normalizeLogger(l)
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, ttl time.Duration, issuer string, opts ...TokenOption) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	ts := &TokenService{
		signingKey: append([]byte(nil), signingKey...),
		ttl:        ttl,
		issuer:     issuer,
		now:        time.Now,
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// NewTokenServiceFromConfig builds a TokenService from the process configuration
func NewTokenServiceFromConfig(cfg Config, opts ...TokenOption) *TokenService {
	return NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetTokenTTL(), cfg.GetIssuer(), opts...)
}

// TTL returns the configured token lifetime
func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Issue creates a token for subject and identityID valid from now until
// now+TTL. The expiry is encoded at full precision.
func (ts *TokenService) Issue(subject string, identityID int64, now time.Time) (string, time.Time, error) {
	if len(ts.signingKey) == 0 {
		return "", time.Time{}, errors.New("token signing key is not configured", errors.CategoryInternal)
	}

	issuedAt := now.Round(0).UTC()
	expiresAt := issuedAt.Add(ts.ttl)

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   subject,
			IssuedAt:  &jwt.NumericDate{Time: issuedAt},
			ExpiresAt: &jwt.NumericDate{Time: expiresAt},
		},
		UID: identityID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the embedded claims.
// It fails with ErrTokenMalformed or ErrTokenExpired only.
func (ts *TokenService) Verify(tokenString string) (*JWTClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		ts.logger.Debug("token verification failed", "error", err)
		return nil, ErrTokenMalformed
	}

	if !token.Valid || claims.Subject() == "" || claims.UID == 0 {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
