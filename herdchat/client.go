package herdchat

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/herdlink/herdchat-go/herdchat/internal"

	"github.com/coder/websocket"
)

// transport is the framed connection the client drives. internal.Conn is
// the production implementation; tests substitute their own.
type transport interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, v any) error
	Close(code websocket.StatusCode, reason string) error
}

type dialFunc func(ctx context.Context, urlStr string) (transport, error)

// Client provides the high-level SDK for the HerdChat messaging backend.
// It owns the single connection per session, the reconnect policy, the
// event dispatcher and the local conversation store. Construct one per
// authenticated session and pass it explicitly to consumers; there is no
// package-level instance.
type Client struct {
	cfg        Config
	logger     Logger
	dial       dialFunc
	dispatcher *Dispatcher
	store      *conversationStore

	mu         sync.Mutex
	state      ConnState
	conn       transport
	cancel     context.CancelFunc
	userID     string
	token      string
	attempts   int
	retryTimer *time.Timer

	presence presenceState
}

// NewClient constructs a client with the provided config.
// Use DefaultConfig() as a starting point and modify as needed.
func NewClient(cfg Config) *Client {
	c := &Client{
		cfg:        cfg,
		logger:     noopLogger{},
		dispatcher: newDispatcher(noopLogger{}),
		store:      newConversationStore(),
	}
	c.dial = func(ctx context.Context, urlStr string) (transport, error) {
		ws, _, err := websocket.Dial(ctx, urlStr, nil)
		if err != nil {
			return nil, err
		}
		return internal.NewConn(ws, cfg.ReadTimeout, cfg.WriteTimeout), nil
	}
	return c
}

// SetLogger overrides the logger (optional).
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
	c.dispatcher.setLogger(l)
}

// On subscribes fn to the named event. See Handler for payload types.
func (c *Client) On(event Event, fn Handler) Subscription { return c.dispatcher.On(event, fn) }

// Off removes a subscription returned by On.
func (c *Client) Off(sub Subscription) { c.dispatcher.Off(sub) }

// UserID returns the identity given to Connect, or "" when disconnected.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// State returns the current connection lifecycle state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool { return c.State() == StateOpen }

// Connect establishes the connection for the given identity. Idempotent:
// a no-op while already connecting or open. With AutoReconnect enabled
// (the default) dial failures are absorbed into the retry schedule instead
// of being returned.
func (c *Client) Connect(ctx context.Context, userID, accessToken string) error {
	if c.cfg.URL == "" {
		return NewError(ErrorInvalidConfig, "empty URL")
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.userID = userID
	c.token = accessToken
	c.attempts = 0
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.open(ctx); err != nil {
		if !c.cfg.AutoReconnect {
			c.mu.Lock()
			c.state = StateClosed
			c.mu.Unlock()
			return err
		}
		c.logger.Warn("dial failed, scheduling reconnect", map[string]any{"error": err.Error()})
		c.scheduleReconnect(err)
	}
	return nil
}

// open dials with the cached identity bound into the handshake URL and, on
// success, transitions to OPEN and starts the read loop.
func (c *Client) open(ctx context.Context) error {
	c.mu.Lock()
	userID, token := c.userID, c.token
	c.mu.Unlock()

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return WrapError(ErrorInvalidConfig, "invalid URL", err)
	}
	q := u.Query()
	q.Set("user_id", userID)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	conn, err := c.dial(dialCtx, u.String())
	if err != nil {
		return WrapError(ErrorDial, "dial failed", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect won the race while we were dialing.
		c.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		return nil
	}
	old := c.state
	c.conn = conn
	c.cancel = cancel
	c.attempts = 0
	c.state = StateOpen
	c.mu.Unlock()

	c.logger.Info("connected", map[string]any{"user": userID})
	c.dispatcher.emit(EventConnected, StateEvent{Old: old, New: StateOpen})
	go c.readLoop(runCtx, conn)
	return nil
}

// Disconnect closes the connection with a normal-closure code, cancels any
// pending reconnect, clears listener registrations and the cached identity.
// Idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	old := c.state
	conn := c.conn
	c.conn = nil
	c.userID = ""
	c.token = ""
	c.attempts = 0
	c.state = StateClosing
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()

	if old != StateClosed {
		c.dispatcher.emit(EventDisconnected, StateEvent{Old: old, New: StateClosed})
	}
	c.dispatcher.reset()
	return err
}

// Send transmits a frame. It fails with ErrorNotConnected unless the
// connection is open; frames are never queued for later delivery, and no
// acknowledgement is awaited. Delivery confirmation arrives asynchronously
// as an inbound frame.
func (c *Client) Send(f Frame) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return NewError(ErrorNotConnected, "send requires an open connection")
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	if err := conn.WriteFrame(context.Background(), f); err != nil {
		return WrapError(ErrorSend, "frame write failed", err)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn transport) {
	for {
		data, err := conn.ReadFrame(ctx)
		if err != nil {
			c.handleReadError(ctx, err)
			return
		}
		env, derr := decodeFrame(data)
		if derr != nil {
			c.logger.Warn("dropping undecodable frame", map[string]any{"error": derr.Error()})
			continue
		}
		c.route(env)
	}
}

// route maps an inbound frame to its event. Unknown types are logged and
// dropped; payload decode failures drop the frame without closing the
// connection.
func (c *Client) route(env inboundFrame) {
	switch env.Type {
	case FrameMessage:
		var p MessagePayload
		if err := decodePayload(env, &p); err != nil {
			c.logger.Warn("dropping frame", map[string]any{"error": err.Error()})
			return
		}
		msg := c.store.reconcileInbound(p, env.Timestamp)
		c.dispatcher.emit(EventMessage, msg)
	case FrameTyping:
		var p TypingPayload
		if err := decodePayload(env, &p); err != nil {
			c.logger.Warn("dropping frame", map[string]any{"error": err.Error()})
			return
		}
		c.dispatcher.emit(EventTyping, p)
	case FrameOnlineStatus:
		var p OnlineStatusPayload
		if err := decodePayload(env, &p); err != nil {
			c.logger.Warn("dropping frame", map[string]any{"error": err.Error()})
			return
		}
		c.dispatcher.emit(EventOnlineStatus, p)
	case FrameReadReceipt:
		var p ReadReceiptPayload
		if err := decodePayload(env, &p); err != nil {
			c.logger.Warn("dropping frame", map[string]any{"error": err.Error()})
			return
		}
		c.store.advanceStatus(p.MessageID, StatusRead)
		c.dispatcher.emit(EventReadReceipt, p)
	default:
		c.logger.Warn("unknown frame type dropped", map[string]any{"type": string(env.Type)})
	}
}

func (c *Client) handleReadError(ctx context.Context, err error) {
	c.mu.Lock()
	if c.state == StateClosing || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	expected := isExpectedDisconnect(ctx, err)
	auto := c.cfg.AutoReconnect && !expected
	old := c.state
	if auto {
		c.state = StateConnecting
	} else {
		c.state = StateClosed
	}
	newState := c.state
	c.conn = nil
	c.mu.Unlock()

	c.dispatcher.emit(EventDisconnected, StateEvent{Old: old, New: newState, Err: err})
	if expected {
		return
	}
	c.logger.Warn("connection lost", map[string]any{"error": err.Error()})
	c.dispatcher.emit(EventError, WrapError(ErrorConnection, "connection lost", err))
	if auto {
		c.scheduleReconnect(err)
	}
}

// scheduleReconnect counts a consecutive failure and either arms the
// backoff timer or, once MaxReconnectTries failures have accumulated,
// emits the terminal maxReconnectAttemptsReached event and stops.
func (c *Client) scheduleReconnect(cause error) {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.attempts++
	if c.attempts >= c.cfg.MaxReconnectTries {
		c.state = StateFailed
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted", map[string]any{
			"attempts": c.cfg.MaxReconnectTries,
		})
		c.dispatcher.emit(EventReconnectFailed, WrapError(ErrorConnection, "max reconnect attempts reached", cause))
		return
	}
	attempt := c.attempts
	delay := backoffDelay(attempt, c.cfg.ReconnectInterval, c.cfg.MaxReconnectDelay)
	c.retryTimer = time.AfterFunc(delay, c.reconnect)
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled", map[string]any{
		"attempt": attempt,
		"delay":   delay.String(),
	})
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.mu.Unlock()

	if err := c.open(context.Background()); err != nil {
		c.logger.Warn("reconnect attempt failed", map[string]any{"error": err.Error()})
		c.scheduleReconnect(err)
	}
}

// backoffDelay is the exponential schedule: interval doubled per attempt,
// capped at max. Attempt numbering starts at 1.
func backoffDelay(attempt int, interval, max time.Duration) time.Duration {
	d := interval
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
