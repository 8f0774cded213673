package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// LoginResult is returned by a successful Login
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  Identity  `json:"-"`
}

// Auther performs credential login and account moderation on top of an
// IdentityStore and a TokenService.
type Auther struct {
	store        IdentityStore
	tokens       *TokenService
	logger       Logger
	activitySink ActivitySink
	now          Clock
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(store IdentityStore, tokens *TokenService) *Auther {
	return &Auther{
		store:        store,
		tokens:       tokens,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClock overrides the clock used to stamp tokens and events
func (s *Auther) WithClock(c Clock) *Auther {
	s.now = normalizeClock(c)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() *TokenService {
	return s.tokens
}

// Login checks username and password and issues a token. Unknown users
// and wrong passwords fail with the same error.
func (s *Auther) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.IsNotFound(err) {
			compareDecoy(password)
			s.logger.Debug("login unknown user", "username", username)
			s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, 0, map[string]any{
				"username": username,
				"error":    ErrMismatchedHashAndPassword.Error(),
			})
			return nil, ErrMismatchedHashAndPassword
		}
		s.logger.Error("login identity lookup failed", "username", username, "error", err)
		return nil, ErrInternalAuthFailure
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, user.ID, map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		if Is(err, ErrMismatchedHashAndPassword) {
			return nil, ErrMismatchedHashAndPassword
		}
		s.logger.Error("login password compare failed", "username", username, "error", err)
		return nil, ErrInternalAuthFailure
	}

	identity := NewIdentity(user)
	if !identity.Enabled {
		s.logger.Warn("login blocked for disabled account", "username", username)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, userActor(identity), user.ID, map[string]any{
			"username": username,
			"error":    ErrAccountDisabled.Error(),
		})
		return nil, ErrAccountDisabled
	}

	token, expiresAt, err := s.tokens.Issue(identity.Username, identity.ID, s.now())
	if err != nil {
		s.logger.Error("login token issue failed", "username", username, "error", err)
		return nil, ErrInternalAuthFailure
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, userActor(identity), user.ID, map[string]any{
		"username": username,
	})

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Identity:  identity,
	}, nil
}

// SetAccountStatus enables or disables an account. The change is picked up
// by the account status gate on the target's next request.
func (s *Auther) SetAccountStatus(ctx context.Context, actor Identity, id int64, enabled bool) (Identity, error) {
	updater, ok := s.store.(AccountStatusUpdater)
	if !ok {
		return Identity{}, errors.New("identity store does not support status updates", errors.CategoryOperation).
			WithCode(errors.CodeInternal)
	}

	user, err := updater.SetEnabled(ctx, id, enabled)
	if err != nil {
		return Identity{}, err
	}

	s.emitAuthEvent(ctx, ActivityEventAccountStatusChanged, userActor(actor), id, map[string]any{
		"enabled":  enabled,
		"username": user.Username,
	})

	return NewIdentity(user), nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID int64, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "error", err)
	}
}
