package herdchat

import (
	"time"
)

// Command verbs over the local conversation store. Every mutation here is
// optimistic: local state changes first, the frame goes out second, and the
// authoritative echo reconciles by message id when it arrives.

// SendMessage appends a SENDING message to the local store and transmits it.
// If transmission fails the message is flagged FAILED and the error is
// returned; RetryMessage re-submits it under the same id.
func (c *Client) SendMessage(content, receiver, sender string, msgType MessageType) (Message, error) {
	if msgType == "" {
		msgType = MessageText
	}
	now := time.Now().UTC()
	msg := Message{
		ID:             newMessageID(now),
		Sender:         sender,
		Receiver:       receiver,
		ConversationID: receiver,
		Content:        content,
		Type:           msgType,
		Status:         StatusSending,
		Timestamp:      now,
	}
	c.store.append(msg)

	if err := c.transmitMessage(msg); err != nil {
		c.store.markFailed(msg.ID)
		msg.Status = StatusFailed
		return msg, err
	}
	return msg, nil
}

// RetryMessage re-transmits a FAILED message, reusing its id. Messages in
// any other status are not retryable.
func (c *Client) RetryMessage(id string) error {
	msg, ok := c.store.get(id)
	if !ok {
		return NewError(ErrorMessageNotFound, "no such message")
	}
	if !c.store.resetForRetry(id) {
		return NewError(ErrorMessageState, "only failed messages can be retried")
	}
	msg.Status = StatusSending
	if err := c.transmitMessage(msg); err != nil {
		c.store.markFailed(id)
		return err
	}
	return nil
}

func (c *Client) transmitMessage(msg Message) error {
	return c.Send(Frame{
		Type: FrameMessage,
		Payload: MessagePayload{
			ID:             msg.ID,
			Sender:         msg.Sender,
			Receiver:       msg.Receiver,
			ConversationID: msg.ConversationID,
			Content:        msg.Content,
			ContentType:    msg.Type,
			ReplyTo:        msg.ReplyTo,
			ForwardedFrom:  msg.ForwardedFrom,
		},
		Timestamp: msg.Timestamp,
	})
}

// EditMessage replaces the content of a message owned by the local user and
// marks it edited. Silent no-op when the id is unknown or owned by someone
// else.
func (c *Client) EditMessage(id, newContent string) {
	c.store.edit(id, c.UserID(), newContent)
}

// RemoveMessage soft-deletes a message locally. Peer notification of the
// delete is a backend concern, not handled here.
func (c *Client) RemoveMessage(id string) {
	c.store.softDelete(id)
}

// AddReaction records userID's reaction on a message. At most one reaction
// per user per message; a second call overwrites the first.
func (c *Client) AddReaction(messageID, userID, reaction string) {
	c.store.setReaction(messageID, userID, reaction)
}

// RemoveReaction clears userID's reaction. Idempotent.
func (c *Client) RemoveReaction(messageID, userID string) {
	c.store.clearReaction(messageID, userID)
}

// MarkMessagesAsRead flags every inbound message of the conversation READ
// and emits a read receipt per message. Receipts are best effort: when the
// connection is down the local state still changes and the receipt is
// skipped.
func (c *Client) MarkMessagesAsRead(conversationID string) int {
	localUser := c.UserID()
	ids := c.store.markConversationRead(conversationID, localUser)
	for _, id := range ids {
		err := c.Send(Frame{
			Type:    FrameReadReceipt,
			Payload: ReadReceiptPayload{MessageID: id, UserID: localUser},
		})
		if err != nil {
			c.logger.Debug("read receipt not sent", map[string]any{
				"message": id,
				"error":   err.Error(),
			})
		}
	}
	return len(ids)
}

// ForwardMessage sends the content of an existing message to another
// receiver as a new message carrying a forwarded-from reference.
func (c *Client) ForwardMessage(id, receiver string) (Message, error) {
	src, ok := c.store.get(id)
	if !ok || src.Deleted {
		return Message{}, NewError(ErrorMessageNotFound, "no such message")
	}
	now := time.Now().UTC()
	sender := c.UserID()
	msg := Message{
		ID:             newMessageID(now),
		Sender:         sender,
		Receiver:       receiver,
		ConversationID: receiver,
		Content:        src.Content,
		Type:           src.Type,
		Status:         StatusSending,
		ForwardedFrom:  src.ID,
		Timestamp:      now,
	}
	c.store.append(msg)
	if err := c.transmitMessage(msg); err != nil {
		c.store.markFailed(msg.ID)
		msg.Status = StatusFailed
		return msg, err
	}
	return msg, nil
}

// SearchMessages returns non-deleted messages whose content contains query,
// case-insensitively.
func (c *Client) SearchMessages(query string) []Message {
	return c.store.search(query)
}

// Messages returns a copy of the local conversation state in store order.
func (c *Client) Messages() []Message {
	return c.store.list()
}

// Message returns a copy of a single message by id.
func (c *Client) Message(id string) (Message, bool) {
	return c.store.get(id)
}
