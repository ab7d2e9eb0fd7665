// Package broadcast fans sync progress, log and finish events out to any number of subscribers.
//
// Delivery is best effort: a subscriber whose buffer is full misses the event, and nothing is replayed
// to late subscribers.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksync/internal/metrics"
)

// DefaultBufferSize is the per-subscriber channel buffer.
const DefaultBufferSize = 256

// Publisher is the write side of the hub.
type Publisher interface {
	Publish(Event)
}

// Hub is a publish/subscribe fan-out of [Event]s.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
	bufSize int
	dropped atomic.Uint64
	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewHub creates a hub whose subscribers buffer bufSize events each.
func NewHub(bufSize int, logger *log.Logger, m *metrics.Metrics) *Hub {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		subs:    make(map[uint64]*Subscription),
		bufSize: bufSize,
		logger:  logger.WithPrefix("broadcast"),
		metrics: metrics.OrNew(m),
	}
}

// Publish delivers e to every current subscriber without blocking.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, sub := range h.subs {
		if !sub.deliver(e) {
			h.dropped.Add(1)
			h.metrics.BroadcastDropped.Inc()
			h.logger.Debug("dropping event for slow subscriber", "subscriber", sub.id, "kind", e.Kind)
		}
	}
}

// Subscribe registers a new subscriber. Events published before this call are not delivered.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{id: h.nextID, ch: make(chan Event, h.bufSize), hub: h}
	if h.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	h.subs[sub.id] = sub
	return sub
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the total number of undelivered events.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close ends every subscription. Publishing afterwards is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.shut()
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Subscription is one subscriber's view of the hub.
type Subscription struct {
	id      uint64
	ch      chan Event
	hub     *Hub
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// C returns the event stream. It is closed when the subscription or the hub is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Dropped returns how many events this subscriber missed.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
	s.shut()
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscription) deliver(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- e:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}
