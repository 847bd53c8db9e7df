package events

import (
	"context"
	"sync"
)

// Hub fans events out to in-process subscribers keyed by channel id.
// Sends never block: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

// Subscription receives the events of one channel until closed.
type Subscription struct {
	hub       *Hub
	channelID string
	ch        chan TelemetryEvent
	once      sync.Once
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers interest in channelID.
func (h *Hub) Subscribe(channelID string) *Subscription {
	sub := &Subscription{hub: h, channelID: channelID, ch: make(chan TelemetryEvent, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[channelID] == nil {
		h.subs[channelID] = make(map[*Subscription]struct{})
	}
	h.subs[channelID][sub] = struct{}{}
	return sub
}

// Publish delivers ev to the subscribers of its channel.
func (h *Hub) Publish(_ context.Context, ev TelemetryEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.ChannelID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for channelID.
func (h *Hub) Subscribers(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channelID])
}

// C is closed when the subscription is closed.
func (s *Subscription) C() <-chan TelemetryEvent { return s.ch }

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[s.channelID], s)
		if len(h.subs[s.channelID]) == 0 {
			delete(h.subs, s.channelID)
		}
		close(s.ch)
	})
}
