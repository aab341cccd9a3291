package herdchat

import "time"

// Config controls how the SDK connects.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 disables the per-read deadline
	WriteTimeout     time.Duration

	// Reconnect policy. AutoReconnect makes dial failures and abnormal
	// closures schedule a retry instead of surfacing to the caller.
	AutoReconnect     bool
	ReconnectInterval time.Duration // initial backoff, doubled per attempt
	MaxReconnectDelay time.Duration // backoff cap
	MaxReconnectTries int           // consecutive failures before giving up

	// TypingInterval is the minimum gap between outbound typing frames
	// per conversation.
	TypingInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		AutoReconnect:     true,
		ReconnectInterval: 1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		MaxReconnectTries: 5,
		TypingInterval:    3 * time.Second,
	}
}
