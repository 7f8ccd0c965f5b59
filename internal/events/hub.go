// Package events fans repair events out to live subscribers such as the
// HTTP event stream.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MimeLyc/cloudmaint/internal/repair"
	"github.com/MimeLyc/cloudmaint/pkg/log"
)

// Message is one delivered event.
type Message struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
	Time time.Time       `json:"time"`
}

// Hub delivers every dispatched event to all current subscribers. Slow
// subscribers lose messages instead of blocking the dispatcher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Message
	nextID  uint64
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Message)}
}

// Subscribe registers a subscriber with a buffer of size messages. The
// returned cancel func unsubscribes and closes the channel.
func (h *Hub) Subscribe(size int) (<-chan Message, func()) {
	if size <= 0 {
		size = 16
	}
	ch := make(chan Message, size)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts messages lost to full subscriber buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) DispatchTyped(_ context.Context, event repair.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Warn("Drop event %s: %v", event.EventName(), err)
		return
	}
	msg := Message{Name: event.EventName(), Data: data, Time: time.Now()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}
