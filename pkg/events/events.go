package events

import (
	"sync"
	"time"
)

// Type is the event type emitted by ConcurrentMemory. This is a
// supplemented feature (SPEC_FULL.md): it is not one of spec.md's
// operations, but a low-risk extension of the reconciler's documented
// swap step (§4.5 step 6).
type Type string

const (
	TypeSnapshotSwapped Type = "snapshot.swapped"
	TypeConceptDeleted  Type = "concept.deleted"
	TypeTxnCommitted    Type = "txn.committed"
	TypeTxnAborted      Type = "txn.aborted"
	TypeDegraded        Type = "store.degraded"
)

// Event is a single notification.
type Event struct {
	Type      Type
	Timestamp time.Time
	ShardID   uint32
	// SnapshotSeq is set for TypeSnapshotSwapped.
	SnapshotSeq uint64
	// Message carries free-form context, e.g. an abort reason.
	Message string
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// Broker manages event subscriptions and non-blocking distribution.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan Event
	stopCh      chan struct{}
	once        sync.Once
}

// NewBroker creates a new event broker. Start must be called before
// Publish has any effect.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker's distribution loop. Subscriber channels are left
// open; Unsubscribe closes them.
func (b *Broker) Stop() {
	b.once.Do(func() { close(b.stopCh) })
}

// Subscribe returns a new buffered channel that receives every
// subsequently published event.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish enqueues event for broadcast. Non-blocking: if the broker is
// stopped or its internal queue is full the event is dropped rather than
// blocking the reconciler.
func (b *Broker) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip it for this event.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
