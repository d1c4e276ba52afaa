package chatsync

import "sync"

// Engine event names. Payload shapes are documented at the emitting call
// sites. Handlers run synchronously in registration order; a slow handler
// stalls the emitting goroutine.
const (
	EventMessageNew       = "message.new"
	EventMessageConfirmed = "message.confirmed"
	EventMessageFailed    = "message.failed"
	EventParticipants     = "participants.updated"
	EventSessionRollover  = "session.rollover"
	EventSyncComplete     = "sync.complete"
	EventSyncError        = "sync.error"
	EventConnState        = "conn.state"
)

// EventHandler receives engine events.
type EventHandler func(event string, payload any)

type emitter struct {
	mu        sync.RWMutex
	listeners map[string][]EventHandler
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[string][]EventHandler)}
}

// On subscribes a handler to an event.
func (e *emitter) On(event string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *emitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in user callbacks
			h(event, payload)
		}()
	}
}

func (e *emitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[string][]EventHandler)
}
