package herdchat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// presenceState holds what the tracker needs to avoid emitting duplicate
// no-op transitions and to throttle keystroke-driven typing signals. It is
// not authoritative presence state; the backend is.
type presenceState struct {
	mu         sync.Mutex
	lastOnline *bool
	typing     map[string]*rate.Limiter // conversationID -> limiter
}

// SendTypingIndicator transmits a typing frame for the conversation, tagged
// with the local user and timestamp. Typing-start signals are throttled to
// one per TypingInterval per conversation so callers may invoke this on
// every keystroke; typing-stop signals always go out.
func (c *Client) SendTypingIndicator(conversationID string, isTyping bool) error {
	if isTyping && !c.allowTyping(conversationID) {
		return nil
	}
	return c.Send(Frame{
		Type: FrameTyping,
		Payload: TypingPayload{
			UserID:         c.UserID(),
			ConversationID: conversationID,
			IsTyping:       isTyping,
			Timestamp:      time.Now().UTC(),
		},
	})
}

func (c *Client) allowTyping(conversationID string) bool {
	interval := c.cfg.TypingInterval
	if interval <= 0 {
		return true
	}
	c.presence.mu.Lock()
	if c.presence.typing == nil {
		c.presence.typing = make(map[string]*rate.Limiter)
	}
	lim, ok := c.presence.typing[conversationID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(interval), 1)
		c.presence.typing[conversationID] = lim
	}
	c.presence.mu.Unlock()
	return lim.Allow()
}

// UpdateOnlineStatus transmits a presence frame for the local user.
// Repeating the current status is a no-op.
func (c *Client) UpdateOnlineStatus(isOnline bool) error {
	c.presence.mu.Lock()
	if c.presence.lastOnline != nil && *c.presence.lastOnline == isOnline {
		c.presence.mu.Unlock()
		return nil
	}
	v := isOnline
	c.presence.lastOnline = &v
	c.presence.mu.Unlock()

	err := c.Send(Frame{
		Type: FrameOnlineStatus,
		Payload: OnlineStatusPayload{
			UserID:   c.UserID(),
			IsOnline: isOnline,
			LastSeen: time.Now().UTC(),
		},
	})
	if err != nil {
		// Not sent, so the suppression cache must not claim it was.
		c.presence.mu.Lock()
		c.presence.lastOnline = nil
		c.presence.mu.Unlock()
	}
	return err
}

// EnterForeground reports the app moving to the foreground.
func (c *Client) EnterForeground() error { return c.UpdateOnlineStatus(true) }

// EnterBackground reports the app moving to the background.
func (c *Client) EnterBackground() error { return c.UpdateOnlineStatus(false) }
