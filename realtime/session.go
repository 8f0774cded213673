package realtime

import (
	"sync"

	auth "github.com/quillhub/blog-auth"
)

// ConnectionIdentity is the identity a session was tagged with during its
// connect handshake. It never changes afterwards.
type ConnectionIdentity struct {
	Identity      auth.Identity
	Authenticated bool
	// Reason holds the text code of a failed handshake
	Reason string
}

// Session represents one connected websocket.
//
// Send is never closed by the server so concurrent fan-out cannot panic;
// done signals the session goroutines to stop and Close is idempotent.
type Session struct {
	ID   string
	Send chan Envelope

	mu            sync.RWMutex
	identity      ConnectionIdentity
	connected     bool
	subscriptions map[string]string // destination -> subscription id

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession constructs a Session with a bounded send queue
func NewSession(id string, sendQueueSize int) *Session {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Session{
		ID:            id,
		Send:          make(chan Envelope, sendQueueSize),
		identity:      ConnectionIdentity{Identity: auth.Anonymous()},
		subscriptions: make(map[string]string),
		done:          make(chan struct{}),
	}
}

// Identity returns the identity tagged at connect time
func (s *Session) Identity() ConnectionIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Username returns the authenticated username, or empty
func (s *Session) Username() string {
	id := s.Identity()
	if !id.Authenticated {
		return ""
	}
	return id.Identity.Username
}

// markConnected records the handshake result. It returns false when the
// session already completed a connect.
func (s *Session) markConnected(identity ConnectionIdentity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return false
	}
	s.connected = true
	s.identity = identity
	return true
}

func (s *Session) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Session) subscribe(destination, subID string) {
	s.mu.Lock()
	s.subscriptions[destination] = subID
	s.mu.Unlock()
}

func (s *Session) unsubscribe(destination string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscriptions[destination]
	delete(s.subscriptions, destination)
	return ok
}

// Subscribed reports whether the session listens on destination
func (s *Session) Subscribed(destination string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subscriptions[destination]
	return ok
}

func (s *Session) subscriptionID(destination string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscriptions[destination]
}

// Enqueue queues env without blocking. It returns false when the session
// is closing or its queue is full.
func (s *Session) Enqueue(env Envelope) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case <-s.done:
		return false
	case s.Send <- env:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the session is shutting down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close signals the session goroutines to stop (idempotent).
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
