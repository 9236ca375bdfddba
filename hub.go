package qaboard

import (
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// MessageHandler receives every decoded realtime message.
type MessageHandler func(Message)

type subscription struct {
	id      string
	handler MessageHandler
	active  atomic.Bool
}

// Hub multiplexes one Connection across any number of subscribers.
// Subscribing lazily opens the connection; unsubscribing never closes it.
type Hub struct {
	conn   *Connection
	logger *log.Logger

	mu   sync.Mutex
	subs []*subscription
}

// NewHub creates a Hub and its idle Connection.
func NewHub(config *RealtimeConfig) *Hub {
	cfg := *config
	cfg.defaults()
	h := &Hub{logger: cfg.Logger.With("component", "hub")}
	h.conn = NewConnection(&cfg, h.dispatch)
	return h
}

// Subscribe registers handler and makes sure the connection is open or
// opening. The returned func removes the registration; calling it more than
// once is harmless.
func (h *Hub) Subscribe(handler MessageHandler) (unsubscribe func()) {
	sub := &subscription{id: uuid.NewString(), handler: handler}
	sub.active.Store(true)

	h.mu.Lock()
	h.subs = append(h.subs, sub)
	n := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("subscribed", "id", sub.id, "subscribers", n)
	h.conn.Connect()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(sub) })
	}
}

func (h *Hub) remove(sub *subscription) {
	sub.active.Store(false)
	h.mu.Lock()
	for i, s := range h.subs {
		if s == sub {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			break
		}
	}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("unsubscribed", "id", sub.id, "subscribers", n)
}

// dispatch fans msg out over a snapshot of the subscriber list, in
// registration order. A subscriber removed mid-dispatch is not invoked.
func (h *Hub) dispatch(msg Message) {
	h.mu.Lock()
	snapshot := append([]*subscription(nil), h.subs...)
	h.mu.Unlock()

	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		sub.handler(msg)
	}
}

// Subscribers returns the number of registered handlers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Live reports whether the underlying connection is currently open.
func (h *Hub) Live() bool {
	return h.conn.State() == StateConnected
}

// Connection exposes the underlying connection for state observation.
func (h *Hub) Connection() *Connection {
	return h.conn
}

// Close tears the connection down. Subscriptions stay registered; a later
// Subscribe reopens the connection.
func (h *Hub) Close() error {
	return h.conn.Disconnect()
}
