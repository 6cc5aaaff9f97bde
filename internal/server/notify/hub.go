// Package notify fans replica change events out to the devices of a user.
package notify

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

const DefaultBuffer = 32

type subscriber struct {
	deviceID string
	ch       chan models.ChangeEvent
}

// Hub keeps in-process subscriptions keyed by user id. Publish never blocks:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
	logger logging.Logger
}

func NewHub(buffer int, logger logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
		logger: logger.With("module", "notify"),
	}
}

// Subscribe registers deviceID for the changes of userID. The returned cancel
// func removes the subscription and closes the channel; it is safe to call
// more than once.
func (h *Hub) Subscribe(userID, deviceID string) (<-chan models.ChangeEvent, func()) {
	s := &subscriber{deviceID: deviceID, ch: make(chan models.ChangeEvent, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[userID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[userID]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(h.subs, userID)
				}
			}
			close(s.ch)
		})
	}
	return s.ch, cancel
}

func (h *Hub) Publish(event models.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[event.UserID] {
		if s.deviceID == event.DeviceID {
			continue
		}
		select {
		case s.ch <- event:
		default:
			h.logger.Warn(context.Background(), "subscriber buffer full, event dropped",
				"user_id", event.UserID, "device_id", s.deviceID, "filename", event.Filename)
		}
	}
}

// Subscribers reports how many devices of userID are listening.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
