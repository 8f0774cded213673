package jwtware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"

	auth "github.com/quillhub/blog-auth"
)

var (
	defaultTokenLookup = "header:" + fiber.HeaderAuthorization

	// ErrJWTMissing signals that no credential was presented. It is not a
	// rejection: the request continues unauthenticated.
	ErrJWTMissing = errors.New("missing JWT", errors.CategoryAuth)
)

// ValidationListener is invoked after an identity has been bound.
type ValidationListener func(c *fiber.Ctx, identity auth.Identity, claims *auth.JWTClaims) error

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   func(*fiber.Ctx, error) error

	// Resolver verifies tokens and resolves their identity. Required.
	Resolver *auth.IdentityResolver

	ContextKey  string
	TokenLookup string
	AuthScheme  string

	ValidationListeners []ValidationListener

	// OnReject is called with the rejection text code, e.g. for metrics.
	OnReject func(reason string)

	Logger auth.Logger
}

// New returns the request authentication gate. A request without a
// credential proceeds unauthenticated. A request with a credential either
// gets its identity bound to the user context or is rejected.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err != nil || raw == "" {
			return c.Next()
		}

		claims, err := cfg.Resolver.Tokens().Verify(raw)
		if err != nil {
			return cfg.reject(c, err)
		}

		identity, err := cfg.Resolver.Resolve(c.UserContext(), claims)
		if err != nil {
			return cfg.reject(c, err)
		}

		ctx := auth.WithIdentity(c.UserContext(), identity)
		ctx = auth.WithClaimsContext(ctx, claims)
		c.SetUserContext(ctx)
		c.Locals(cfg.ContextKey, identity)

		if err := cfg.runValidationListeners(c, identity, claims); err != nil {
			return cfg.reject(c, err)
		}

		return cfg.SuccessHandler(c)
	}
}

// RequireIdentity rejects requests that reached it without a bound identity
func RequireIdentity(onReject ...func(string)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := auth.IdentityFromContext(c.UserContext()); !ok {
			notify(onReject, auth.TextCodeAuthenticationRequired)
			return auth.WriteError(c, auth.ErrAuthenticationRequired)
		}
		return c.Next()
	}
}

// RequireAuthority rejects requests whose identity lacks authority
func RequireAuthority(authority string, onReject ...func(string)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := auth.IdentityFromContext(c.UserContext())
		if !ok {
			notify(onReject, auth.TextCodeAuthenticationRequired)
			return auth.WriteError(c, auth.ErrAuthenticationRequired)
		}
		if !identity.HasAuthority(authority) {
			notify(onReject, auth.TextCodeForbidden)
			return auth.WriteError(c, auth.ErrForbidden)
		}
		return c.Next()
	}
}

func notify(hooks []func(string), reason string) {
	for _, h := range hooks {
		if h != nil {
			h(reason)
		}
	}
}

func (cfg *Config) reject(c *fiber.Ctx, err error) error {
	if auth.StatusCode(err) == errors.CodeInternal {
		cfg.Logger.Error("request authentication failed", "path", c.Path(), "error", err)
		err = auth.ErrInternalAuthFailure
	} else {
		cfg.Logger.Debug("request rejected", "path", c.Path(), "reason", auth.TextCode(err))
	}

	if cfg.OnReject != nil {
		cfg.OnReject(auth.TextCode(err))
	}

	return cfg.ErrorHandler(c, err)
}

func ExtractRawToken(c *fiber.Ctx, extractors []JWTExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(c)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = auth.WriteError
	}

	if cfg.Resolver == nil || cfg.Resolver.Tokens() == nil {
		panic("AUTH: JWT middleware configuration: Resolver with a TokenService is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "identity"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.Logger == nil {
		cfg.Logger = auth.NopLogger()
	}

	return cfg
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(c *fiber.Ctx, identity auth.Identity, claims *auth.JWTClaims) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(c, identity, claims); err != nil {
			return err
		}
	}
	return nil
}

func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 && strings.TrimSpace(authSchemes[0]) != "" {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	// header:Authorization,cookie:jwt,query:auth_token
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

type JWTExtractor func(c *fiber.Ctx) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
// A header using another scheme counts as no credential.
func jwtFromHeader(header string, authScheme string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		return TokenFromHeaderValue(c.Get(header), authScheme)
	}
}

// TokenFromHeaderValue strips the auth scheme from an Authorization value
func TokenFromHeaderValue(value, authScheme string) (string, error) {
	l := len(authScheme)
	if len(value) > l+1 && strings.EqualFold(value[:l], authScheme) && value[l] == ' ' {
		if token := strings.TrimSpace(value[l:]); token != "" {
			return token, nil
		}
	}
	return "", ErrJWTMissing
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrJWTMissing
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissing
		}
		return token, nil
	}
}
