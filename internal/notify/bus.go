package notify

import (
	"sync"

	"github.com/snarg/podium/internal/database"
)

// Bus fans caption insert notifications out to in-process subscribers.
// Subscribers are keyed by room; delivery never blocks the publisher —
// slow subscribers drop events and catch up from the durable store on
// resubscribe.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
}

type subscriber struct {
	roomID string // "" matches every room
	ch     chan database.CaptionAPI
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[uint64]subscriber)}
}

// Subscribe registers a subscriber for one room's captions and returns
// a receive channel plus a cancel function. Cancel releases the
// subscription deterministically; the channel is not closed (the bus
// may not own its lifetime once handed out).
func (b *Bus) Subscribe(roomID string) (<-chan database.CaptionAPI, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan database.CaptionAPI, 64)
	b.subscribers[id] = subscriber{roomID: roomID, ch: ch}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers a caption to all subscribers of its room.
func (b *Bus) Publish(c database.CaptionAPI) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.roomID != "" && sub.roomID != c.RoomID {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			// Drop if subscriber is slow
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
