package rest

import "time"

// Authentication types

// LoginRequest is the request body for farm-account login.
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// TokenResponse contains the session credentials returned after successful
// authentication. Token and UserID together are what Client.Connect needs.
type TokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Conversation types

// ConversationKind represents the type of a conversation.
type ConversationKind string

const (
	// ConversationDirect is a one-to-one chat between two workers.
	ConversationDirect ConversationKind = "direct"
	// ConversationHerd groups everyone assigned to a herd.
	ConversationHerd ConversationKind = "herd"
	// ConversationFarm is the farm-wide channel.
	ConversationFarm ConversationKind = "farm"
)

// ConversationInfo represents conversation metadata.
type ConversationInfo struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Kind      ConversationKind `json:"kind"`
	HerdID    string           `json:"herd_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// CreateDirectConversationRequest is the request body for opening (or
// returning the existing) direct conversation with another user.
type CreateDirectConversationRequest struct {
	UserID string `json:"user_id"`
}

// Message history types

// MessageRecord represents a single message in the history.
type MessageRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessagesPage contains a page of messages with pagination info.
type MessagesPage struct {
	Messages []MessageRecord `json:"messages"`
	HasMore  bool            `json:"has_more"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
