package herdchat

import "sync"

// Event names a dispatcher channel that listeners subscribe to.
type Event string

const (
	EventMessage         Event = "message"
	EventTyping          Event = "typing"
	EventOnlineStatus    Event = "onlineStatus"
	EventReadReceipt     Event = "readReceipt"
	EventConnected       Event = "connected"
	EventDisconnected    Event = "disconnected"
	EventError           Event = "error"
	EventReconnectFailed Event = "maxReconnectAttemptsReached"
)

// Handler receives event data. The concrete type depends on the event:
// Message for message, TypingPayload for typing, OnlineStatusPayload for
// onlineStatus, ReadReceiptPayload for readReceipt, StateEvent for
// connected/disconnected, and error for error/maxReconnectAttemptsReached.
type Handler func(data any)

// Subscription identifies a registered handler so it can be removed.
// Go func values are not comparable, so Off takes the handle returned by On
// rather than the callback itself.
type Subscription struct {
	event Event
	id    uint64
}

type listener struct {
	id uint64
	fn Handler
}

// Dispatcher routes events to registered callbacks in registration order.
// A panicking listener is recovered and logged so it cannot break delivery
// to the remaining listeners.
type Dispatcher struct {
	mu        sync.Mutex
	seq       uint64
	listeners map[Event][]listener
	logger    Logger
}

func newDispatcher(logger Logger) *Dispatcher {
	return &Dispatcher{
		listeners: make(map[Event][]listener),
		logger:    logger,
	}
}

func (d *Dispatcher) setLogger(l Logger) {
	d.mu.Lock()
	d.logger = l
	d.mu.Unlock()
}

// On registers fn for the named event. All handlers registered for an event
// are invoked on every emission, in registration order.
func (d *Dispatcher) On(event Event, fn Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.listeners[event] = append(d.listeners[event], listener{id: d.seq, fn: fn})
	return Subscription{event: event, id: d.seq}
}

// Off removes a previously registered handler. No-op if the subscription is
// unknown or already removed.
func (d *Dispatcher) Off(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ls := d.listeners[sub.event]
	for i, l := range ls {
		if l.id == sub.id {
			d.listeners[sub.event] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) emit(event Event, data any) {
	d.mu.Lock()
	ls := append([]listener(nil), d.listeners[event]...)
	logger := d.logger
	d.mu.Unlock()

	for _, l := range ls {
		invoke(logger, event, l.fn, data)
	}
}

func invoke(logger Logger, event Event, fn Handler, data any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("listener panic", map[string]any{
				"event": string(event),
				"panic": r,
			})
		}
	}()
	fn(data)
}

// reset drops every registration. Called on Disconnect.
func (d *Dispatcher) reset() {
	d.mu.Lock()
	d.listeners = make(map[Event][]listener)
	d.mu.Unlock()
}
