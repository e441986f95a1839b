package settlement

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types"
)

// EventKind distinguishes settlement events.
type EventKind uint8

const (
	EventSettled EventKind = iota + 1
	EventAborted
)

func (k EventKind) String() string {
	switch k {
	case EventSettled:
		return "settled"
	case EventAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case EventSettled.String():
		*k = EventSettled
	case EventAborted.String():
		*k = EventAborted
	default:
		return fmt.Errorf("unknown event kind %q", text)
	}
	return nil
}

// Event is the public outcome of a resolution. Settled events carry the
// winner index and winning bid; aborted events carry the reason.
type Event struct {
	Kind        EventKind       `json:"kind"`
	AuctionID   types.AuctionID `json:"auctionId"`
	Offset      uint64          `json:"offset"`
	WinnerIndex uint64          `json:"winnerIndex"`
	WinningBid  uint64          `json:"winningBid"`
	Reason      string          `json:"reason,omitempty"`
}

// Feed fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Feed struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: map[string]chan Event{}}
}

// Subscribe registers a subscriber with the given buffer size and returns
// its id and channel.
func (f *Feed) Subscribe(buffer int) (string, <-chan Event) {
	id := uuid.New().String()
	ch := make(chan Event, buffer)
	f.mu.Lock()
	f.subs[id] = ch
	f.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored.
func (f *Feed) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every subscriber with room for it and returns the
// number of deliveries.
func (f *Feed) Publish(ev Event) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	delivered := 0
	for id, ch := range f.subs {
		select {
		case ch <- ev:
			delivered++
		default:
			log.Warnw("dropping settlement event for slow subscriber", "subscription", id, "offset", ev.Offset)
		}
	}
	return delivered
}

// Subscribers returns the number of active subscribers.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
