package herdchat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType categorizes message content.
type MessageType string

const (
	MessageText     MessageType = "TEXT"
	MessageImage    MessageType = "IMAGE"
	MessageFile     MessageType = "FILE"
	MessageLocation MessageType = "LOCATION"
)

// MessageStatus is the delivery lifecycle of a message. Transitions are
// monotonic (SENDING -> SENT -> DELIVERED -> READ) except for FAILED, which
// is left by retrying the send under the same id.
type MessageStatus string

const (
	StatusSending   MessageStatus = "SENDING"
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
	StatusFailed    MessageStatus = "FAILED"
)

var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Message is a single conversation entry held in the local store. Messages
// are never hard-deleted, only flagged.
type Message struct {
	ID             string
	Sender         string
	Receiver       string
	ConversationID string
	Content        string
	Type           MessageType
	Status         MessageStatus
	Edited         bool
	Deleted        bool
	ReplyTo        string
	ForwardedFrom  string
	Reactions      map[string]string // userID -> reaction token, one per user
	Timestamp      time.Time
}

func (m *Message) clone() Message {
	out := *m
	if m.Reactions != nil {
		out.Reactions = make(map[string]string, len(m.Reactions))
		for k, v := range m.Reactions {
			out.Reactions[k] = v
		}
	}
	return out
}

// newMessageID returns a locally generated, time-ordered, collision-tolerant
// message identifier.
func newMessageID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8])
}
