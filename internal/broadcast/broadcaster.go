// Package broadcast fans completed-cycle events out to in-process
// subscribers. Delivery is best effort: a subscriber that stops draining
// its channel loses events instead of stalling the publisher.
package broadcast

import (
	"errors"
	"log/slog"
	"sync"

	"pulsefeed/internal/domain"
)

// eventBuffer is the per-subscriber channel capacity.
const eventBuffer = 50

// ErrSubscriberLimit is returned by Subscribe once the registry is full.
var ErrSubscriberLimit = errors.New("subscriber limit reached")

// Broadcaster distributes cycle events to live subscribers.
type Broadcaster struct {
	mu             sync.Mutex
	subs           map[chan domain.CycleEvent]struct{}
	maxSubscribers int
	logger         *slog.Logger
}

func New(maxSubscribers int, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs:           make(map[chan domain.CycleEvent]struct{}),
		maxSubscribers: maxSubscribers,
		logger:         logger,
	}
}

// Subscription is one listener's handle. Events arrive on C; C is closed
// after Cancel. Callers must Cancel when done or the registry slot leaks.
type Subscription struct {
	C <-chan domain.CycleEvent

	b  *Broadcaster
	ch chan domain.CycleEvent
}

// Cancel removes the subscription and closes C. Safe to call twice.
func (s *Subscription) Cancel() {
	s.b.remove(s.ch)
}

// Subscribe registers a new listener. Only events published after the
// call are delivered.
func (b *Broadcaster) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subs) >= b.maxSubscribers {
		return nil, ErrSubscriberLimit
	}

	ch := make(chan domain.CycleEvent, eventBuffer)
	b.subs[ch] = struct{}{}

	return &Subscription{C: ch, b: b, ch: ch}, nil
}

// Publish delivers event to every subscriber whose channel has room.
// Subscribers with full channels miss this event; Publish never blocks.
func (b *Broadcaster) Publish(event domain.CycleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber", "source", event.Source)
		}
	}
}

// Subscribers reports the current registry size.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) remove(ch chan domain.CycleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}
