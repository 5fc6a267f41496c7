package eventstream

import (
	"sync"

	"go.uber.org/zap"

	"github.com/park285/chess-wager-escrow/internal/obslog"
	"github.com/park285/chess-wager-escrow/internal/wager"
)

// subscriber buffer; a consumer this far behind starts losing events rather
// than blocking settlement.
const subscriberBuffer = 64

type subscriber struct {
	ch   chan wager.Event
	room string // "" subscribes to every room
}

// Hub fans audit events out to subscribers. It implements wager.Emitter and
// never blocks the publisher: slow subscribers drop events.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscriber)}
}

// Subscribe registers a consumer for one room ("" = all rooms). The returned
// cancel func must be called to release the subscription; the channel closes
// after cancellation.
func (h *Hub) Subscribe(room string) (<-chan wager.Event, func()) {
	sub := &subscriber{ch: make(chan wager.Event, subscriberBuffer), room: room}
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Emit delivers an event to every matching subscriber without blocking.
func (h *Hub) Emit(ev wager.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.room != "" && sub.room != ev.Room {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			obslog.L().Warn("event_subscriber_lagging",
				zap.String("type", ev.Type),
				zap.String("room", ev.Room),
			)
		}
	}
}

// SubscriberCount is exposed for introspection and tests.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
