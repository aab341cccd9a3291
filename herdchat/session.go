package herdchat

import "context"

// SessionState is what the authentication provider knows about the current
// session. A zero Authenticated state means logged out.
type SessionState struct {
	UserID        string
	AccessToken   string
	Authenticated bool
}

// SessionObserver drives the client lifecycle from session-state updates,
// so connection start/stop is owned by the application session and not by
// any UI component tree. Feed it the auth provider's state stream.
type SessionObserver struct {
	client *Client
	logger Logger
}

func NewSessionObserver(client *Client) *SessionObserver {
	return &SessionObserver{client: client, logger: client.logger}
}

// Observe consumes session-state updates until ctx is cancelled or the
// channel closes, connecting on login and disconnecting on logout. It
// blocks; run it in its own goroutine. The client is disconnected on exit.
func (o *SessionObserver) Observe(ctx context.Context, updates <-chan SessionState) {
	defer func() {
		_ = o.client.Disconnect()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			o.apply(ctx, st)
		}
	}
}

func (o *SessionObserver) apply(ctx context.Context, st SessionState) {
	if !st.Authenticated {
		if err := o.client.Disconnect(); err != nil {
			o.logger.Warn("disconnect on logout", map[string]any{"error": err.Error()})
		}
		return
	}
	if err := o.client.Connect(ctx, st.UserID, st.AccessToken); err != nil {
		o.logger.Warn("connect on login", map[string]any{"error": err.Error()})
	}
}
