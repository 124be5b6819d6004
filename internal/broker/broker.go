// Package broker implements the in-process, topic-routed publish/
// subscribe message bus described in spec.md §4.1. It is the sole
// owner of subscription state; Device/Stream registries are owned
// elsewhere and referenced only by ID string.
package broker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rtaspi/rtaspi-core/internal/model"
)

// Mailbox is anything that can accept an enqueued message without
// blocking the broker's critical section. Bus Client implements it.
type Mailbox interface {
	ClientID() string
	Enqueue(msg model.Message)
}

// Broker routes published messages to every subscriber whose pattern
// matches the topic, except the publisher itself. All mutation of the
// subscription tables happens under a single mutex (spec.md §5); the
// mailbox enqueue happens inside that critical section, but draining a
// mailbox happens on the subscriber's own dispatcher goroutine.
type Broker struct {
	mu          sync.Mutex
	clients     map[string]Mailbox
	subscribers map[string]map[string]struct{} // pattern -> set of client IDs

	// droppedTotal counts messages dropped because a mailbox was full,
	// aggregated across all clients (spec.md §4.1 "Failure"). It is an
	// atomic, not a mu-guarded field: RecordDrop is called by a Mailbox
	// from inside Enqueue, which Publish invokes while still holding mu
	// (broker.go's Publish), so the drop path must never take mu itself.
	droppedTotal atomic.Uint64
}

// New returns an empty broker.
func New() *Broker {
	return &Broker{
		clients:     make(map[string]Mailbox),
		subscribers: make(map[string]map[string]struct{}),
	}
}

// ErrAlreadyRegistered is returned by Register when client_id is already
// present.
type ErrAlreadyRegistered struct{ ClientID string }

func (e *ErrAlreadyRegistered) Error() string {
	return "broker: client already registered: " + e.ClientID
}

// Register records a client by ID so it can receive deliveries. It
// fails if the ID is already present.
func (b *Broker) Register(c Mailbox) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.clients[c.ClientID()]; exists {
		return &ErrAlreadyRegistered{ClientID: c.ClientID()}
	}
	b.clients[c.ClientID()] = c
	return nil
}

// Unregister removes the client and evicts it from every subscription
// set. Idempotent.
func (b *Broker) Unregister(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.clients, clientID)
	for pattern, ids := range b.subscribers {
		delete(ids, clientID)
		if len(ids) == 0 {
			delete(b.subscribers, pattern)
		}
	}
}

// Subscribe adds clientID to the subscribers of pattern. Idempotent.
func (b *Broker) Subscribe(clientID, pattern string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids, ok := b.subscribers[pattern]
	if !ok {
		ids = make(map[string]struct{})
		b.subscribers[pattern] = ids
	}
	ids[clientID] = struct{}{}
}

// Unsubscribe removes clientID from pattern's subscriber set, pruning
// the pattern entirely once it has no subscribers left.
func (b *Broker) Unsubscribe(clientID, pattern string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids, ok := b.subscribers[pattern]
	if !ok {
		return
	}
	delete(ids, clientID)
	if len(ids) == 0 {
		delete(b.subscribers, pattern)
	}
}

// Publish delivers payload on topic to every subscriber of a matching
// pattern, except senderID itself. A topic with no matching subscribers
// is a silent no-op (spec.md §4.1).
func (b *Broker) Publish(senderID, topic string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg := model.Message{
		Topic:     topic,
		Sender:    senderID,
		Timestamp: time.Now(),
		MessageID: uuid.NewString(),
		Payload:   payload,
	}

	for pattern, ids := range b.subscribers {
		if !matchTopic(topic, pattern) {
			continue
		}
		for clientID := range ids {
			if clientID == senderID {
				continue // a message is never delivered to its own sender
			}
			if c, ok := b.clients[clientID]; ok {
				c.Enqueue(msg)
			}
		}
	}
}

// DroppedCount returns the running total of messages dropped across all
// clients due to a full mailbox.
func (b *Broker) DroppedCount() uint64 {
	return b.droppedTotal.Load()
}

// RecordDrop is the hook a Mailbox implementation calls when it drops
// the oldest message to make room for a new one. It must stay
// lock-free: Enqueue (and therefore RecordDrop) runs from inside
// Publish's critical section, so acquiring b.mu here would deadlock the
// publisher against itself (spec.md §4.1: "the publisher never
// blocks").
func (b *Broker) RecordDrop() { b.droppedTotal.Add(1) }
