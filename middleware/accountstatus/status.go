// Package accountstatus rejects requests made by disabled accounts.
package accountstatus

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"

	auth "github.com/quillhub/blog-auth"
)

type Config struct {
	Filter func(*fiber.Ctx) bool

	// Resolver is used to re-read the account on every request. Required.
	Resolver *auth.IdentityResolver

	ContextKey   string
	ErrorHandler func(*fiber.Ctx, error) error
	OnReject     func(reason string)
	Logger       auth.Logger
}

// New must run after the request authentication gate. Requests without a
// bound identity, or bound to the anonymous marker, pass through. The
// enabled flag is always read fresh since it can change after a token
// was issued.
func New(config Config) fiber.Handler {
	cfg := configDefault(config)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		bound, ok := auth.IdentityFromContext(c.UserContext())
		if !ok {
			return c.Next()
		}

		current, err := cfg.Resolver.Refresh(c.UserContext(), bound.ID)
		if err != nil {
			return cfg.reject(c, err)
		}

		if !current.Enabled {
			cfg.Logger.Info("request from disabled account", "username", current.Username, "path", c.Path())
			return cfg.reject(c, auth.ErrAccountDisabled)
		}

		ctx := auth.WithIdentity(c.UserContext(), current)
		c.SetUserContext(ctx)
		c.Locals(cfg.ContextKey, current)

		return c.Next()
	}
}

func (cfg *Config) reject(c *fiber.Ctx, err error) error {
	if auth.StatusCode(err) == errors.CodeInternal {
		cfg.Logger.Error("account status check failed", "path", c.Path(), "error", err)
		err = auth.ErrInternalAuthFailure
	}
	if cfg.OnReject != nil {
		cfg.OnReject(auth.TextCode(err))
	}
	return cfg.ErrorHandler(c, err)
}

func configDefault(cfg Config) Config {
	if cfg.Resolver == nil {
		panic("AUTH: account status middleware configuration: Resolver is required.")
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = "identity"
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = auth.WriteError
	}
	if cfg.Logger == nil {
		cfg.Logger = auth.NopLogger()
	}
	return cfg
}
