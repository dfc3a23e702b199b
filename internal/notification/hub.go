package notification

import "sync"

const subscriberBuffer = 16

// Hub fans new notifications out to the recipient's open streams.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Notification]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Notification]struct{})}
}

// Subscribe returns the channel for recipientID and a func that closes it.
func (h *Hub) Subscribe(recipientID string) (<-chan Notification, func()) {
	ch := make(chan Notification, subscriberBuffer)

	h.mu.Lock()
	if h.subscribers[recipientID] == nil {
		h.subscribers[recipientID] = make(map[chan Notification]struct{})
	}
	h.subscribers[recipientID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers[recipientID], ch)
			if len(h.subscribers[recipientID]) == 0 {
				delete(h.subscribers, recipientID)
			}
			close(ch)
		})
	}
}

// Publish never blocks; a subscriber with a full buffer misses the event and
// catches up through the list endpoint.
func (h *Hub) Publish(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[n.RecipientID] {
		select {
		case ch <- n:
		default:
		}
	}
}

func (h *Hub) Subscribers(recipientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[recipientID])
}
