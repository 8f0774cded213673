package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	auth "github.com/quillhub/blog-auth"
)

const (
	defaultSendQueueSize    = 64
	defaultWriteTimeout     = 5 * time.Second
	defaultHeartbeat        = 25 * time.Second
	defaultHeartbeatTimeout = 5 * time.Second
	defaultFramesPerSecond  = 20
	defaultMaxFrameBytes    = 64 << 10
	closeGrace              = time.Second
	maxPingFailures         = 3
)

// GatewayConfig configures the websocket endpoint. Zero values take defaults.
type GatewayConfig struct {
	// OriginPatterns are host patterns accepted for cross origin upgrades
	OriginPatterns     []string
	InsecureSkipVerify bool

	SendQueueSize     int
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// FramesPerSecond bounds inbound frames per session
	FramesPerSecond float64
	MaxFrameBytes   int64
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeat
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.FramesPerSecond <= 0 {
		c.FramesPerSecond = defaultFramesPerSecond
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = defaultMaxFrameBytes
	}
	return c
}

// Gateway is the websocket entrypoint. It runs the connect handshake,
// registers authenticated sessions for delivery and serves subscriptions.
type Gateway struct {
	cfg       GatewayConfig
	handshake *HandshakeAuthenticator
	registry  *Registry
	observer  Observer
	logger    auth.Logger

	base   context.Context
	cancel context.CancelFunc
}

func NewGateway(cfg GatewayConfig, handshake *HandshakeAuthenticator, registry *Registry, logger auth.Logger, observer Observer) *Gateway {
	if logger == nil {
		logger = auth.NopLogger()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Gateway{
		cfg:       cfg.withDefaults(),
		handshake: handshake,
		registry:  registry,
		observer:  normalizeObserver(observer),
		logger:    logger,
		base:      base,
		cancel:    cancel,
	}
}

// Close terminates every open session
func (g *Gateway) Close() {
	g.cancel()
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{Subprotocol},
		OriginPatterns:     g.cfg.OriginPatterns,
		InsecureSkipVerify: g.cfg.InsecureSkipVerify,
	})
	if err != nil {
		g.logger.Info("ws accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		g.logger.Info("ws subprotocol rejected", "got", sp, "want", Subprotocol)
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol required")
		return
	}

	conn.SetReadLimit(g.cfg.MaxFrameBytes)
	g.serve(r.Context(), conn)
}

func (g *Gateway) serve(parent context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stop := context.AfterFunc(g.base, cancel)
	defer stop()

	session := NewSession(NewID(time.Now()), g.cfg.SendQueueSize)
	g.observer.ConnectionOpened(false)

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			session.Close()
			g.registry.Unregister(session)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.writeLoop(ctx, conn, session, shutdown)
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		g.heartbeat(ctx, conn, session, shutdown)
	}()

	g.readLoop(ctx, conn, session, shutdown)

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}

	g.observer.ConnectionClosed(session.Identity().Authenticated)
	g.logger.Debug("ws session closed", "session_id", session.ID, "username", session.Username())
}

func (g *Gateway) writeLoop(ctx context.Context, conn *websocket.Conn, session *Session, shutdown func(websocket.StatusCode, string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			return
		case env := <-session.Send:
			if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
				g.logger.Info("ws write failed", "session_id", session.ID, "close_status", websocket.CloseStatus(err), "error", err)
				shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
			if env.Type == TypeReceipt && env.Header("disconnect") == "true" {
				shutdown(websocket.StatusNormalClosure, "disconnect")
				return
			}
		}
	}
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, session *Session, shutdown func(websocket.StatusCode, string)) {
	t := time.NewTicker(g.cfg.HeartbeatInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(hbCtx)
			hbCancel()

			if err != nil {
				failures++
				g.logger.Debug("ws ping failed", "session_id", session.ID, "failures", failures, "error", err)
				if failures >= maxPingFailures {
					shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, session *Session, shutdown func(websocket.StatusCode, string)) {
	limiter := rate.NewLimiter(rate.Limit(g.cfg.FramesPerSecond), int(g.cfg.FramesPerSecond)*2)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !isClosedErr(err) {
				g.logger.Info("ws read failed", "session_id", session.ID, "error", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			return
		}

		if !limiter.Allow() {
			g.fail(ctx, conn, session, "rate_limited", "too many frames")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			if !session.isConnected() {
				g.fail(ctx, conn, session, "connect_required", "first frame must be connect")
				shutdown(websocket.StatusPolicyViolation, "connect required")
				return
			}
			g.sendError(session, "bad_frame", "invalid JSON frame")
			continue
		}

		if !session.isConnected() && env.Type != TypeConnect {
			g.fail(ctx, conn, session, "connect_required", "first frame must be connect")
			shutdown(websocket.StatusPolicyViolation, "connect required")
			return
		}

		switch env.Type {
		case TypeConnect:
			g.onConnect(ctx, session, env)
		case TypeSubscribe:
			g.onSubscribe(session, env)
		case TypeUnsubscribe:
			g.onUnsubscribe(session, env)
		case TypePing:
			g.reply(session, Envelope{Type: TypePong, Headers: receiptHeaders(env)})
		case TypeDisconnect:
			headers := receiptHeaders(env)
			headers["disconnect"] = "true"
			if !g.reply(session, Envelope{Type: TypeReceipt, Headers: headers}) {
				shutdown(websocket.StatusNormalClosure, "disconnect")
				return
			}
		default:
			g.sendError(session, "unsupported", "unsupported frame type: "+env.Type)
		}
	}
}

func (g *Gateway) onConnect(ctx context.Context, session *Session, env Envelope) {
	if session.isConnected() {
		g.sendError(session, "already_connected", "connect was already processed")
		return
	}

	identity := g.handshake.Authenticate(ctx, env.Headers)
	session.markConnected(identity)

	if identity.Authenticated {
		g.observer.ConnectionAuthenticated()
		if !g.registry.Register(session) {
			// shutdown raced the handshake
			return
		}
		g.logger.Debug("ws session authenticated", "session_id", session.ID, "username", identity.Identity.Username)
	}

	payload, _ := json.Marshal(ConnectedPayload{
		SessionID:     session.ID,
		Authenticated: identity.Authenticated,
		Username:      session.Username(),
	})
	g.reply(session, Envelope{Type: TypeConnected, Headers: receiptHeaders(env), Payload: payload})
}

func (g *Gateway) onSubscribe(session *Session, env Envelope) {
	destination := env.Header(HeaderDestination)
	if !IsChannel(destination) {
		g.sendError(session, "unknown_destination", "unknown destination: "+destination)
		return
	}
	if !session.Identity().Authenticated {
		g.sendError(session, "authentication_required", "user destinations require an authenticated connection")
		return
	}

	subID := env.Header("id")
	if subID == "" {
		subID = env.ID
	}
	session.subscribe(destination, subID)

	headers := receiptHeaders(env)
	headers[HeaderDestination] = destination
	g.reply(session, Envelope{Type: TypeReceipt, Headers: headers})
}

func (g *Gateway) onUnsubscribe(session *Session, env Envelope) {
	destination := env.Header(HeaderDestination)
	if !session.unsubscribe(destination) {
		g.sendError(session, "not_subscribed", "not subscribed to: "+destination)
		return
	}
	headers := receiptHeaders(env)
	headers[HeaderDestination] = destination
	g.reply(session, Envelope{Type: TypeReceipt, Headers: headers})
}

func (g *Gateway) sendError(session *Session, code, msg string) {
	p, _ := json.Marshal(ErrorPayload{Code: code, Message: msg})
	g.reply(session, Envelope{Type: TypeError, Payload: p})
}

// fail writes an error frame directly so it reaches the peer before the
// connection is closed.
func (g *Gateway) fail(ctx context.Context, conn *websocket.Conn, session *Session, code, msg string) {
	p, _ := json.Marshal(ErrorPayload{Code: code, Message: msg})
	now := time.Now().UTC()
	env := Envelope{Type: TypeError, ID: NewID(now), TS: now, Payload: p}
	if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
		g.logger.Debug("ws error frame not delivered", "session_id", session.ID, "error", err)
	}
}

func (g *Gateway) reply(session *Session, env Envelope) bool {
	now := time.Now().UTC()
	env.ID = NewID(now)
	env.TS = now
	if !session.Enqueue(env) {
		g.logger.Debug("ws reply dropped", "session_id", session.ID, "type", env.Type)
		return false
	}
	return true
}

func receiptHeaders(env Envelope) map[string]string {
	headers := map[string]string{}
	if env.ID != "" {
		headers[HeaderReceiptID] = env.ID
	}
	return headers
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func isClosedErr(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF)
}
