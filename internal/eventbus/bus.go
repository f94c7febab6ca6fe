// Package eventbus defines the bead-lifecycle event contract and two
// concrete implementations: an in-process buffered-channel bus for single-
// process deployments, and a JetStream-backed bus for multi-process ones.
package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jordanhubbard/oya-go/pkg/models"
)

// Event is a single bead lifecycle transition published on the bus.
type Event struct {
	ID         string
	BeadID     string
	WorkflowID string
	From       models.BeadState
	To         models.BeadState
	Reason     string
	Payload    map[string]interface{}
	Timestamp  time.Time
}

// Filter decides whether a subscriber wants to see a given event.
type Filter func(Event) bool

// EventBus is the contract every backend satisfies: publish is ordered per
// publisher goroutine. The in-process Bus additionally treats subscriptions
// as idempotent by id and reports a full buffer as ErrBufferFull rather than
// blocking; NatsBus does neither (a repeated Subscribe registers a new
// JetStream subscription, and Publish waits on the server acknowledgement).
type EventBus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(id string, filter Filter) (<-chan Event, error)
	Unsubscribe(id string) error
	Close() error
}

type subscriber struct {
	id     string
	ch     chan Event
	filter Filter
}

// Bus is an in-process event bus backed by a buffered channel and a single
// dispatch goroutine. Publish never blocks past the shared buffer, and
// per-subscriber delivery is itself non-blocking so one slow subscriber
// cannot stall others.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	buffer      chan Event
	ctx         context.Context
	cancel      context.CancelFunc
	closed      bool
}

// NewBus starts an in-process bus with the given shared buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subscribers: make(map[string]*subscriber),
		buffer:      make(chan Event, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
	go b.loop()
	return b
}

func (b *Bus) loop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case ev := <-b.buffer:
			b.distribute(ev)
		}
	}
}

func (b *Bus) distribute(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Slow subscriber: drop rather than block the dispatch loop.
		}
	}
}

// Publish stamps an id/timestamp if missing and enqueues the event. It
// returns ErrBufferFull if the shared buffer has no room, and ErrClosed if
// the bus has been closed.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("%s-%d", ev.BeadID, ev.Timestamp.UnixNano())
	}
	select {
	case b.buffer <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Subscribe registers a subscriber id with a per-subscriber buffered
// channel. Re-subscribing with the same id replaces the filter but keeps
// delivery idempotent: callers don't end up with two channels for one id.
func (b *Bus) Subscribe(id string, filter Filter) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if existing, ok := b.subscribers[id]; ok {
		existing.filter = filter
		return existing.ch, nil
	}
	sub := &subscriber{id: id, ch: make(chan Event, 100), filter: filter}
	b.subscribers[id] = sub
	return sub.ch, nil
}

// Unsubscribe closes and removes a subscriber's channel.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subscribers[id]
	if !ok {
		return nil
	}
	close(sub.ch)
	delete(b.subscribers, id)
	return nil
}

// Close stops the dispatch loop and closes every subscriber channel. No
// further Publish or Subscribe calls will succeed afterward.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.cancel()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	return nil
}

// SubscriberIDs returns the ids currently subscribed, sorted, for tests and
// introspection.
func (b *Bus) SubscriberIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.subscribers))
	for id := range b.subscribers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
