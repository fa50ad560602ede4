// Package events fans live messages out to stream subscribers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/watermon/internal/access"
	"github.com/AaronLay10/watermon/internal/metrics"
)

const (
	// DefaultQueueSize bounds each subscriber's pending messages.
	DefaultQueueSize = 10
	// DefaultKeepalive is the idle time before a ping is sent.
	DefaultKeepalive = 30 * time.Second
	// DefaultRecent is how many broadcast messages are retained.
	DefaultRecent = 256
)

// Subscriber is one live stream connection.
type Subscriber struct {
	ID        string
	Principal access.Principal

	ch     chan Message
	closed chan struct{}
	once   sync.Once
}

// C returns the subscriber's queue. It is closed when the subscriber is
// removed.
func (s *Subscriber) C() <-chan Message {
	return s.ch
}

// Done is closed when the subscriber is removed from its hub.
func (s *Subscriber) Done() <-chan struct{} {
	return s.closed
}

func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}

// Allows reports whether the subscriber's principal may receive m. Admins
// receive everything; mechanics receive pings, greetings, and
// mechanic_update messages scoped to their own id.
func (s *Subscriber) Allows(m Message) bool {
	if s.Principal.IsAdmin() {
		return true
	}
	switch m.Type {
	case TypePing, TypeConnected:
		return true
	case TypeMechanicUpdate:
		return s.Principal.CanSee(m.MechanicID)
	}
	return false
}

// Next returns the next message the subscriber may see. If nothing
// arrives within keepalive it returns a ping. ok is false once the
// subscriber is closed or ctx is done.
func (s *Subscriber) Next(ctx context.Context, keepalive time.Duration) (Message, bool) {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	timer := time.NewTimer(keepalive)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Message{}, false
		case m, ok := <-s.ch:
			if !ok {
				return Message{}, false
			}
			if s.Allows(m) {
				return m, true
			}
		case <-timer.C:
			return Ping(), true
		}
	}
}

// Hub manages live stream subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	queueSize   int
	recent      *Backlog
	metrics     *metrics.Registry
}

// NewHub creates a hub. A queueSize of zero uses DefaultQueueSize.
func NewHub(queueSize int, m *metrics.Registry) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		queueSize:   queueSize,
		recent:      NewBacklog(DefaultRecent),
		metrics:     m,
	}
}

// Subscribe adds a new subscriber for the given principal.
func (h *Hub) Subscribe(p access.Principal) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.NewString(),
		Principal: p,
		ch:        make(chan Message, h.queueSize),
		closed:    make(chan struct{}),
	}
	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	n := len(h.subscribers)
	h.mu.Unlock()

	h.metrics.SetSubscribers(n)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. It is safe to
// call after the subscriber was evicted.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub.ID)
	n := len(h.subscribers)
	h.mu.Unlock()

	sub.close()
	h.metrics.SetSubscribers(n)
}

// Broadcast validates m and enqueues it on every subscriber.
// Non-blocking: a subscriber whose queue is full is evicted.
func (h *Hub) Broadcast(m Message) error {
	if err := Validate(m); err != nil {
		return err
	}
	if m.Timestamp == "" {
		m = stamp(m)
	}
	h.recent.Add(m)
	h.metrics.MessageBroadcast(m.Type)

	var slow []*Subscriber
	h.mu.RLock()
	for _, sub := range h.subscribers {
		select {
		case sub.ch <- m:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.metrics.SubscriberEvicted()
		h.Unsubscribe(sub)
	}
	return nil
}

// SubscriberCount returns the current number of subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Recent returns the last n broadcast messages, oldest first.
// If n is greater than available messages, returns all available.
func (h *Hub) Recent(n int) []Message {
	return h.recent.Last(n)
}

// TotalCount returns how many messages were ever broadcast.
func (h *Hub) TotalCount() uint64 {
	return h.recent.Total()
}

// CloseAll removes every subscriber. Used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[string]*Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	h.metrics.SetSubscribers(0)
}
