package herdchat

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameType discriminates the wire envelope.
type FrameType string

const (
	FrameMessage      FrameType = "MESSAGE"
	FrameTyping       FrameType = "TYPING"
	FrameOnlineStatus FrameType = "ONLINE_STATUS"
	FrameReadReceipt  FrameType = "READ_RECEIPT"
)

// Frame is the JSON envelope sent to the server.
type Frame struct {
	Type      FrameType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// inboundFrame is the envelope received from the server. The payload stays
// raw until the type switch decodes it.
type inboundFrame struct {
	Type      FrameType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// MessagePayload carries a message-create request or its echo.
type MessagePayload struct {
	ID             string      `json:"id"`
	Sender         string      `json:"sender"`
	Receiver       string      `json:"receiver,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
	Content        string      `json:"content"`
	ContentType    MessageType `json:"contentType"`
	ReplyTo        string      `json:"replyTo,omitempty"`
	ForwardedFrom  string      `json:"forwardedFrom,omitempty"`
}

// TypingPayload signals typing activity in a conversation.
type TypingPayload struct {
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId"`
	IsTyping       bool      `json:"isTyping"`
	Timestamp      time.Time `json:"timestamp"`
}

// OnlineStatusPayload reports a user's presence.
type OnlineStatusPayload struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// ReadReceiptPayload acknowledges that a message was read.
type ReadReceiptPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

func decodeFrame(data []byte) (inboundFrame, error) {
	var env inboundFrame
	if err := json.Unmarshal(data, &env); err != nil {
		return inboundFrame{}, WrapError(ErrorFrameDecode, "malformed frame envelope", err)
	}
	if env.Type == "" {
		return inboundFrame{}, NewError(ErrorFrameDecode, "frame envelope missing type")
	}
	return env, nil
}

func decodePayload(env inboundFrame, v any) error {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return WrapError(ErrorFrameDecode, fmt.Sprintf("malformed %s payload", env.Type), err)
	}
	return nil
}
