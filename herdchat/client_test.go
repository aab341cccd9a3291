package herdchat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// fakeTransport stands in for the WebSocket connection so lifecycle and
// reconnect behavior can be driven without a network.
type fakeTransport struct {
	mu        sync.Mutex
	sent      []Frame
	writeErr  error
	inbound   chan []byte
	readErr   chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (t *fakeTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case data := <-t.inbound:
		return data, nil
	case err := <-t.readErr:
		return nil, err
	case <-t.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) WriteFrame(_ context.Context, v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.sent = append(t.sent, v.(Frame))
	return nil
}

func (t *fakeTransport) Close(websocket.StatusCode, string) error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) sentFrames() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Frame(nil), t.sent...)
}

func (t *fakeTransport) setWriteErr(err error) {
	t.mu.Lock()
	t.writeErr = err
	t.mu.Unlock()
}

// pushFrame delivers an inbound wire frame to the read loop.
func (t *fakeTransport) pushFrame(tb testing.TB, f Frame) {
	tb.Helper()
	data, err := json.Marshal(f)
	if err != nil {
		tb.Fatalf("marshal frame: %v", err)
	}
	t.inbound <- data
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.URL = "ws://farm.test/ws"
	cfg.ReconnectInterval = time.Millisecond
	cfg.MaxReconnectDelay = 10 * time.Millisecond
	return cfg
}

// newConnectedClient returns a client whose dialer hands out fresh fake
// transports, connected as worker-1.
func newConnectedClient(t *testing.T, cfg Config) (*Client, *fakeTransport) {
	t.Helper()
	c := NewClient(cfg)
	ft := newFakeTransport()
	c.dial = func(context.Context, string) (transport, error) { return ft, nil }
	if err := c.Connect(context.Background(), "worker-1", "tok"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !c.IsConnected() {
		t.Fatalf("expected open connection, state=%s", c.State())
	}
	t.Cleanup(func() { _ = c.Disconnect() })
	return c, ft
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectIdempotent(t *testing.T) {
	c := NewClient(testConfig())
	var dials int
	var mu sync.Mutex
	c.dial = func(context.Context, string) (transport, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return newFakeTransport(), nil
	}

	if err := c.Connect(context.Background(), "worker-1", "tok"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Connect(context.Background(), "worker-1", "tok"); err != nil {
		t.Fatalf("second connect: %v", err)
	}

	mu.Lock()
	got := dials
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected 1 dial, got %d", got)
	}
	if !c.IsConnected() {
		t.Fatalf("expected connected")
	}
	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	if attempts != 0 {
		t.Fatalf("expected attempt counter 0 after open, got %d", attempts)
	}
	_ = c.Disconnect()
}

func TestIdentityBoundIntoHandshakeURL(t *testing.T) {
	c := NewClient(testConfig())
	var dialedURL string
	c.dial = func(_ context.Context, urlStr string) (transport, error) {
		dialedURL = urlStr
		return newFakeTransport(), nil
	}
	if err := c.Connect(context.Background(), "worker-7", "secret"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	if dialedURL != "ws://farm.test/ws?token=secret&user_id=worker-7" {
		t.Fatalf("unexpected dial URL: %s", dialedURL)
	}
}

func TestSendNotConnected(t *testing.T) {
	c := NewClient(testConfig())
	err := c.Send(Frame{Type: FrameTyping})
	if !IsNotConnected(err) {
		t.Fatalf("expected not_connected error, got %v", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("send must not mutate state, got %s", c.State())
	}
}

func TestBackoffSchedule(t *testing.T) {
	interval := time.Second
	max := 30 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(tc.attempt, interval, max); got != tc.want {
			t.Errorf("attempt %d: got %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestReconnectGivesUpAfterMaxTries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReconnectTries = 3

	c := NewClient(cfg)
	var mu sync.Mutex
	var dials int
	c.dial = func(context.Context, string) (transport, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("dial refused")
	}

	var terminal int
	done := make(chan struct{}, 4)
	c.On(EventReconnectFailed, func(any) {
		mu.Lock()
		terminal++
		mu.Unlock()
		done <- struct{}{}
	})

	if err := c.Connect(context.Background(), "worker-1", "tok"); err != nil {
		t.Fatalf("connect with auto-reconnect must not surface dial error, got %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("terminal event never fired")
	}
	// Give any stray timer a chance to misfire.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	fired := terminal
	got := dials
	mu.Unlock()
	if fired != 1 {
		t.Fatalf("terminal event fired %d times, want exactly 1", fired)
	}
	if got != cfg.MaxReconnectTries {
		t.Fatalf("expected %d dials, got %d", cfg.MaxReconnectTries, got)
	}
	if c.State() != StateFailed {
		t.Fatalf("expected FAILED, got %s", c.State())
	}
}

func TestDisconnectCancelsScheduledReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectInterval = 50 * time.Millisecond

	c := NewClient(cfg)
	var mu sync.Mutex
	var dials int
	c.dial = func(context.Context, string) (transport, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("dial refused")
	}

	if err := c.Connect(context.Background(), "worker-1", "tok"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	got := dials
	mu.Unlock()
	if got != 1 {
		t.Fatalf("reconnect fired after disconnect: %d dials", got)
	}
	if c.State() != StateClosed {
		t.Fatalf("expected CLOSED, got %s", c.State())
	}
}

func TestAbnormalClosureReconnects(t *testing.T) {
	cfg := testConfig()
	c := NewClient(cfg)

	var mu sync.Mutex
	var transports []*fakeTransport
	c.dial = func(context.Context, string) (transport, error) {
		ft := newFakeTransport()
		mu.Lock()
		transports = append(transports, ft)
		mu.Unlock()
		return ft, nil
	}

	if err := c.Connect(context.Background(), "worker-1", "tok"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	mu.Lock()
	first := transports[0]
	mu.Unlock()
	first.readErr <- errors.New("connection reset")

	waitFor(t, "redial", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transports) == 2
	})
	waitFor(t, "reopen", c.IsConnected)

	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	if attempts != 0 {
		t.Fatalf("attempt counter not reset after reopen: %d", attempts)
	}
}

func TestNormalClosureDoesNotReconnect(t *testing.T) {
	c, ft := newConnectedClient(t, testConfig())

	var disconnected bool
	done := make(chan struct{}, 1)
	c.On(EventDisconnected, func(data any) {
		disconnected = true
		done <- struct{}{}
	})

	ft.readErr <- io.EOF

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("disconnected event never fired")
	}
	if !disconnected {
		t.Fatalf("expected disconnected event")
	}
	waitFor(t, "closed state", func() bool { return c.State() == StateClosed })
}

func TestUnknownAndMalformedFramesDropped(t *testing.T) {
	c, ft := newConnectedClient(t, testConfig())

	var events int
	var mu sync.Mutex
	for _, ev := range []Event{EventMessage, EventTyping, EventOnlineStatus, EventReadReceipt} {
		c.On(ev, func(any) {
			mu.Lock()
			events++
			mu.Unlock()
		})
	}

	ft.inbound <- []byte(`{"type":"BARN_DANCE","payload":{}}`)
	ft.inbound <- []byte(`this is not json`)
	ft.pushFrame(t, Frame{
		Type:      FrameTyping,
		Payload:   TypingPayload{UserID: "worker-2", ConversationID: "herd-4", IsTyping: true},
		Timestamp: time.Now(),
	})

	waitFor(t, "typing event after dropped frames", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return events == 1
	})
	if !c.IsConnected() {
		t.Fatalf("bad frames must not close the connection")
	}
}

func TestInboundEchoReconciliation(t *testing.T) {
	c, ft := newConnectedClient(t, testConfig())

	msg, err := c.SendMessage("hi", "worker-2", "worker-1", MessageText)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	got, ok := c.Message(msg.ID)
	if !ok || got.Status != StatusSending {
		t.Fatalf("expected optimistic SENDING message, got %+v ok=%v", got, ok)
	}

	delivered := make(chan Message, 1)
	c.On(EventMessage, func(data any) { delivered <- data.(Message) })

	ft.pushFrame(t, Frame{
		Type: FrameMessage,
		Payload: MessagePayload{
			ID:          msg.ID,
			Sender:      "worker-1",
			Receiver:    "worker-2",
			Content:     "hi",
			ContentType: MessageText,
		},
		Timestamp: time.Now(),
	})

	select {
	case ev := <-delivered:
		if ev.ID != msg.ID || ev.Status != StatusDelivered {
			t.Fatalf("unexpected reconciled message: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message event never fired")
	}

	got, _ = c.Message(msg.ID)
	if got.Status != StatusDelivered {
		t.Fatalf("store not reconciled: %s", got.Status)
	}
	if n := len(c.Messages()); n != 1 {
		t.Fatalf("echo must reconcile by id, not append: %d messages", n)
	}
}

func TestInboundReadReceiptAdvancesStatus(t *testing.T) {
	c, ft := newConnectedClient(t, testConfig())

	msg, err := c.SendMessage("feed delivered", "worker-2", "worker-1", MessageText)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	receipts := make(chan ReadReceiptPayload, 1)
	c.On(EventReadReceipt, func(data any) { receipts <- data.(ReadReceiptPayload) })

	ft.pushFrame(t, Frame{
		Type:      FrameReadReceipt,
		Payload:   ReadReceiptPayload{MessageID: msg.ID, UserID: "worker-2"},
		Timestamp: time.Now(),
	})

	select {
	case r := <-receipts:
		if r.MessageID != msg.ID {
			t.Fatalf("unexpected receipt: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("read receipt event never fired")
	}

	got, _ := c.Message(msg.ID)
	if got.Status != StatusRead {
		t.Fatalf("expected READ, got %s", got.Status)
	}
}

func TestDisconnectClearsListenersAndIdentity(t *testing.T) {
	c, _ := newConnectedClient(t, testConfig())

	c.On(EventMessage, func(any) {})
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	if c.UserID() != "" {
		t.Fatalf("identity not cleared")
	}
	c.dispatcher.mu.Lock()
	n := len(c.dispatcher.listeners)
	c.dispatcher.mu.Unlock()
	if n != 0 {
		t.Fatalf("listener registry not cleared: %d entries", n)
	}
	// A second disconnect is a no-op.
	if err := c.Disconnect(); err != nil {
		t.Fatalf("repeated disconnect: %v", err)
	}
}
