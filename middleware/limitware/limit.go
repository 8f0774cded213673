// Package limitware throttles mutating requests per caller.
package limitware

import (
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	auth "github.com/quillhub/blog-auth"
	"github.com/quillhub/blog-auth/middleware/jwtware"
	"github.com/quillhub/blog-auth/ratelimit"
)

var defaultMethods = []string{
	fiber.MethodPost,
	fiber.MethodPut,
	fiber.MethodPatch,
	fiber.MethodDelete,
}

type Config struct {
	// Limiter is required
	Limiter *ratelimit.Limiter

	// Tokens, when set, lets callers presenting a valid token be throttled
	// by subject instead of by address. The token is only verified, the
	// identity store is not consulted.
	Tokens     *auth.TokenService
	AuthScheme string

	// Methods that are throttled. Everything else passes through.
	Methods []string

	// KeyFunc overrides the identifier derivation
	KeyFunc func(*fiber.Ctx) string

	OnReject func()
	Logger   auth.Logger
}

func New(config Config) fiber.Handler {
	cfg := configDefault(config)

	methods := make(map[string]struct{}, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods[strings.ToUpper(m)] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := methods[c.Method()]; !ok {
			return c.Next()
		}

		key := cfg.KeyFunc(c)
		ok, retryAfter := cfg.Limiter.Reserve(key)
		if ok {
			return c.Next()
		}

		cfg.Logger.Debug("rate limited", "key", key, "path", c.Path())
		if cfg.OnReject != nil {
			cfg.OnReject()
		}

		secs := int64(math.Ceil(retryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(secs, 10))
		return auth.WriteError(c, auth.ErrRateLimited)
	}
}

func configDefault(cfg Config) Config {
	if cfg.Limiter == nil {
		panic("AUTH: rate limit middleware configuration: Limiter is required.")
	}
	if len(cfg.Methods) == 0 {
		cfg.Methods = defaultMethods
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}
	if cfg.Logger == nil {
		cfg.Logger = auth.NopLogger()
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = subjectOrIP(cfg.Tokens, cfg.AuthScheme)
	}
	return cfg
}

func subjectOrIP(tokens *auth.TokenService, scheme string) func(*fiber.Ctx) string {
	return func(c *fiber.Ctx) string {
		if tokens != nil {
			if raw, err := jwtware.TokenFromHeaderValue(c.Get(fiber.HeaderAuthorization), scheme); err == nil {
				if claims, err := tokens.Verify(raw); err == nil {
					return "user:" + claims.Subject()
				}
			}
		}
		return "ip:" + c.IP()
	}
}
