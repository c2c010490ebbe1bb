// Package realtime fans seat-count changes out to connected websocket
// observers.
package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"go.uber.org/zap"
)

// EventSeatUpdate is the frame name observers listen for.
const EventSeatUpdate = "seatUpdate"

const (
	broadcastQueue = 256
	clientQueue    = 32
)

// Frame is the envelope written to every observer.
type Frame struct {
	Event string           `json:"event"`
	Data  model.SeatUpdate `json:"data"`
}

// Hub owns the registry of connected observers. All registry mutations and
// deliveries happen on the Run goroutine, so updates for one event reach
// every observer in the same order.
type Hub struct {
	logger *zap.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan model.SeatUpdate
	forget     chan string

	clients  map[*Client]struct{}
	versions map[string]int64
	count    atomic.Int64

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub constructs a Hub. Call Run in its own goroutine before use.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger.With(zap.String("component", "realtime_hub")),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan model.SeatUpdate, broadcastQueue),
		forget:     make(chan string, broadcastQueue),
		clients:    make(map[*Client]struct{}),
		versions:   make(map[string]int64),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount()

		case c := <-h.unregister:
			h.remove(c)

		case u := <-h.broadcast:
			h.deliver(u)

		case id := <-h.forget:
			delete(h.versions, id)

		case <-h.done:
			for c := range h.clients {
				h.remove(c)
			}
			return
		}
	}
}

// Stop closes every observer and ends Run. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Publish queues a seat update for delivery. It never blocks and never
// fails: when the queue is full or the hub is stopped the update is dropped.
func (h *Hub) Publish(u model.SeatUpdate) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.broadcast <- u:
	default:
		metrics.NotifierDropped.WithLabelValues("queue_full").Inc()
		h.logger.Warn("seat update dropped, broadcast queue full", zap.String("event_id", u.ID))
	}
}

// Forget discards ordering state for an event that no longer exists.
func (h *Hub) Forget(eventID string) {
	select {
	case h.forget <- eventID:
	default:
	}
}

// Observers reports how many observers are connected.
func (h *Hub) Observers() int {
	return int(h.count.Load())
}

func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) deliver(u model.SeatUpdate) {
	// Versions only grow per event; anything not newer than what observers
	// already have would move their count backwards.
	if last, seen := h.versions[u.ID]; seen && u.Version <= last {
		metrics.NotifierDropped.WithLabelValues("stale").Inc()
		return
	}
	h.versions[u.ID] = u.Version

	frame, err := json.Marshal(Frame{Event: EventSeatUpdate, Data: u})
	if err != nil {
		h.logger.Error("encode seat update", zap.Error(err))
		return
	}

	for c := range h.clients {
		if !c.wants(u.ID) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			metrics.NotifierDropped.WithLabelValues("slow_client").Inc()
			h.logger.Info("evicting slow observer", zap.String("remote", c.remote))
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.Observers.Set(float64(len(h.clients)))
}
