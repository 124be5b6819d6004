// Package busclient implements the per-component Bus Client described in
// spec.md §4.2: a bounded mailbox, a topic-pattern-to-handler dispatch
// table, and a dispatcher goroutine that drains the mailbox and invokes
// handlers, grounded on the original rtaspi MCPClient (core/mcp.py).
package busclient

import (
	"sync"
	"time"

	"github.com/rtaspi/rtaspi-core/internal/broker"
	"github.com/rtaspi/rtaspi-core/internal/logging"
	"github.com/rtaspi/rtaspi-core/internal/model"
)

// Handler processes a single delivered message. Panics are recovered by
// the dispatcher and logged, matching spec.md §4.2 "Handler exceptions
// are logged and swallowed."
type Handler func(topic string, payload any)

const (
	defaultMailboxCapacity = 256
	dispatchPollInterval   = 50 * time.Millisecond
	closeDrainTimeout      = 2 * time.Second
)

type handlerEntry struct {
	pattern string
	handler Handler
}

// Client is a single named participant on the broker: it holds its own
// mailbox, its own handler table, and a dispatcher goroutine that owns
// both.
type Client struct {
	id     string
	broker *broker.Broker
	log    *logging.Logger

	mailboxMu sync.Mutex
	mailbox   []model.Message
	capacity  int

	handlersMu sync.Mutex
	handlers   []handlerEntry // insertion order, used for wildcard fallback

	running  chan struct{} // closed by Close to signal the dispatcher to stop
	stopped  chan struct{} // closed by the dispatcher once it has returned
	closeOne sync.Once
}

// New creates a Bus Client with the given ID, registers it with b, and
// starts its dispatcher goroutine. capacity <= 0 uses the default bound.
func New(id string, b *broker.Broker, log *logging.Logger, capacity int) (*Client, error) {
	if capacity <= 0 {
		capacity = defaultMailboxCapacity
	}
	c := &Client{
		id:       id,
		broker:   b,
		log:      log,
		capacity: capacity,
		running:  make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if err := b.Register(c); err != nil {
		return nil, err
	}
	go c.dispatchLoop()
	return c, nil
}

// ClientID implements broker.Mailbox.
func (c *Client) ClientID() string { return c.id }

// Enqueue implements broker.Mailbox. It runs inside the broker's
// critical section (spec.md §4.1), so it must never block.
func (c *Client) Enqueue(msg model.Message) {
	c.mailboxMu.Lock()
	defer c.mailboxMu.Unlock()

	if len(c.mailbox) >= c.capacity {
		c.mailbox = c.mailbox[1:] // drop oldest
		c.broker.RecordDrop()
	}
	c.mailbox = append(c.mailbox, msg)
}

func (c *Client) dequeue() (model.Message, bool) {
	c.mailboxMu.Lock()
	defer c.mailboxMu.Unlock()

	if len(c.mailbox) == 0 {
		return model.Message{}, false
	}
	msg := c.mailbox[0]
	c.mailbox = c.mailbox[1:]
	return msg, true
}

// Subscribe registers pattern with the broker and stores handler locally
// in insertion order, used for wildcard dispatch fallback. Subscribing an
// already-subscribed pattern replaces its handler in place.
func (c *Client) Subscribe(pattern string, handler Handler) {
	c.handlersMu.Lock()
	replaced := false
	for i, e := range c.handlers {
		if e.pattern == pattern {
			c.handlers[i].handler = handler
			replaced = true
			break
		}
	}
	if !replaced {
		c.handlers = append(c.handlers, handlerEntry{pattern: pattern, handler: handler})
	}
	c.handlersMu.Unlock()

	c.broker.Subscribe(c.id, pattern)
}

// Unsubscribe removes both the broker subscription and the local
// handler entry for pattern.
func (c *Client) Unsubscribe(pattern string) {
	c.broker.Unsubscribe(c.id, pattern)

	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	for i, e := range c.handlers {
		if e.pattern == pattern {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			break
		}
	}
}

// Publish forwards topic/payload to the broker with this client's ID as
// the sender.
func (c *Client) Publish(topic string, payload any) {
	c.broker.Publish(c.id, topic, payload)
}

// Close stops the dispatcher, waits (bounded) for it to drain and exit,
// and unregisters from the broker. Safe to call more than once.
func (c *Client) Close() {
	c.closeOne.Do(func() {
		close(c.running)
		select {
		case <-c.stopped:
		case <-time.After(closeDrainTimeout):
		}
		c.broker.Unregister(c.id)
	})
}

func (c *Client) dispatchLoop() {
	defer close(c.stopped)

	ticker := time.NewTicker(dispatchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.running:
			c.drainOnce()
			return
		case <-ticker.C:
			c.drainOnce()
		}
	}
}

// drainOnce dequeues and dispatches every message currently queued.
func (c *Client) drainOnce() {
	for {
		msg, ok := c.dequeue()
		if !ok {
			return
		}
		c.dispatch(msg)
	}
}

// dispatch selects a handler for msg.Topic: an exact pattern match takes
// priority, otherwise the first handler (by insertion order) whose
// pattern wildcard-matches the topic (spec.md §4.2).
func (c *Client) dispatch(msg model.Message) {
	c.handlersMu.Lock()
	entries := make([]handlerEntry, len(c.handlers))
	copy(entries, c.handlers)
	c.handlersMu.Unlock()

	var selected *Handler
	for _, e := range entries {
		if e.pattern == msg.Topic {
			h := e.handler
			selected = &h
			break
		}
	}
	if selected == nil {
		for _, e := range entries {
			if broker.MatchTopic(msg.Topic, e.pattern) {
				h := e.handler
				selected = &h
				break
			}
		}
	}
	if selected == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil && c.log != nil {
			c.log.Errorf("handler for topic %q panicked: %v", msg.Topic, r)
		}
	}()
	(*selected)(msg.Topic, msg.Payload)
}
