// Package notify fans connectivity notifications out to UI surfaces: the
// CLI, the REPL and browser tabs attached over a websocket.
package notify

import (
	"sync"

	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 8

// Broadcaster delivers each published notification to every current
// subscriber. Delivery is best effort: a subscriber whose buffer is full
// misses the message.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]chan models.Notification
	buffer int
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{subs: make(map[string]chan models.Notification), buffer: buffer}
}

// Subscribe returns a channel of notifications and a cancel func that
// unsubscribes and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan models.Notification, func()) {
	id := uuid.NewString()
	ch := make(chan models.Notification, b.buffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish never blocks. It returns how many subscribers received n.
func (b *Broadcaster) Publish(n models.Notification) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- n:
			delivered++
		default:
		}
	}
	return delivered
}

func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
