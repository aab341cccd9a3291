package herdchat

import (
	"strings"
	"sync"
	"time"
)

// conversationStore is the single authority over local conversation state:
// a message-by-id map plus an ordered id index. All mutation goes through
// the command verbs on Client; readers get copies.
type conversationStore struct {
	mu    sync.RWMutex
	byID  map[string]*Message
	order []string
}

func newConversationStore() *conversationStore {
	return &conversationStore{byID: make(map[string]*Message)}
}

func (s *conversationStore) append(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[msg.ID]; exists {
		return false
	}
	m := msg.clone()
	s.byID[m.ID] = &m
	s.order = append(s.order, m.ID)
	return true
}

func (s *conversationStore) get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	return m.clone(), true
}

func (s *conversationStore) list() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].clone())
	}
	return out
}

// advanceStatus moves a message forward in the delivery lifecycle. Backward
// transitions are ignored so a late SENT cannot undo DELIVERED or READ.
func (s *conversationStore) advanceStatus(id string, status MessageStatus) bool {
	rank, ok := statusRank[status]
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.Status == StatusFailed {
		return false
	}
	if cur, ok := statusRank[m.Status]; ok && cur >= rank {
		return false
	}
	m.Status = status
	return true
}

func (s *conversationStore) markFailed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.Status != StatusSending {
		return false
	}
	m.Status = StatusFailed
	return true
}

// resetForRetry flips a FAILED message back to SENDING for re-transmission
// under the same id.
func (s *conversationStore) resetForRetry(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.Status != StatusFailed {
		return false
	}
	m.Status = StatusSending
	return true
}

// edit replaces content on a message owned by userID. Unknown ids and
// foreign messages are silent no-ops.
func (s *conversationStore) edit(id, userID, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.Deleted || m.Sender != userID {
		return false
	}
	m.Content = content
	m.Edited = true
	return true
}

func (s *conversationStore) softDelete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.Deleted {
		return false
	}
	m.Deleted = true
	return true
}

// setReaction records userID's reaction on a message. One reaction per user
// per message; a second call overwrites.
func (s *conversationStore) setReaction(id, userID, reaction string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.Deleted {
		return false
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string]string)
	}
	m.Reactions[userID] = reaction
	return true
}

// clearReaction removes userID's reaction. Idempotent.
func (s *conversationStore) clearReaction(id, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return
	}
	delete(m.Reactions, userID)
}

// search returns non-deleted messages whose content contains query,
// case-insensitively, in store order.
func (s *conversationStore) search(query string) []Message {
	q := strings.ToLower(query)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Message
	for _, id := range s.order {
		m := s.byID[id]
		if m.Deleted {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), q) {
			out = append(out, m.clone())
		}
	}
	return out
}

// markConversationRead advances every inbound, non-deleted message of the
// conversation to READ and returns the ids that changed.
func (s *conversationStore) markConversationRead(conversationID, localUser string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []string
	for _, id := range s.order {
		m := s.byID[id]
		if m.ConversationID != conversationID || m.Deleted || m.Sender == localUser {
			continue
		}
		if cur, ok := statusRank[m.Status]; !ok || cur >= statusRank[StatusRead] {
			continue
		}
		m.Status = StatusRead
		changed = append(changed, id)
	}
	return changed
}

// reconcileInbound applies an inbound MESSAGE payload: an echo of a local
// send advances that message to DELIVERED, a peer message is appended as
// DELIVERED. Reconciliation is by id, never by position.
func (s *conversationStore) reconcileInbound(p MessagePayload, ts time.Time) Message {
	s.mu.Lock()
	if m, ok := s.byID[p.ID]; ok {
		if cur, ranked := statusRank[m.Status]; ranked && cur < statusRank[StatusDelivered] && m.Status != StatusFailed {
			m.Status = StatusDelivered
		}
		out := m.clone()
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	conversation := p.ConversationID
	if conversation == "" {
		conversation = p.Sender
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = MessageText
	}
	msg := Message{
		ID:             p.ID,
		Sender:         p.Sender,
		Receiver:       p.Receiver,
		ConversationID: conversation,
		Content:        p.Content,
		Type:           contentType,
		Status:         StatusDelivered,
		ReplyTo:        p.ReplyTo,
		ForwardedFrom:  p.ForwardedFrom,
		Timestamp:      ts,
	}
	s.append(msg)
	return msg
}
