package auth

import (
	"context"
	"time"
)

// Logger is the logging surface used across the module. Arguments are
// key/value pairs in the log/slog style.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// IdentityStore is the identity lookup collaborator. Implementations must
// report missing records with a go-errors CategoryNotFound error.
type IdentityStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
}

// AccountStatusUpdater is implemented by stores that can enable or disable accounts.
type AccountStatusUpdater interface {
	SetEnabled(ctx context.Context, id int64, enabled bool) (*User, error)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetTokenTTL() time.Duration
	GetIssuer() string
	GetContextKey() string
	GetAuthScheme() string
}

// Clock returns the current time. Components accept one so tests can
// move time without sleeping.
type Clock func() time.Time

func normalizeClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}
