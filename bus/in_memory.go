package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/logging"
)

// InMemoryBus is a process-local core.MessageBus. Delivery is synchronous:
// Publish invokes the recipient's dispatch function on the calling goroutine
// and republishes any returned response.
type InMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string]core.Handler
	logger      logging.Logger
}

var _ core.MessageBus = (*InMemoryBus)(nil)

// Option configures an InMemoryBus.
type Option func(*InMemoryBus)

// WithLogger sets the bus logger.
func WithLogger(l logging.Logger) Option {
	return func(b *InMemoryBus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates an empty in-memory bus.
func New(opts ...Option) *InMemoryBus {
	b := &InMemoryBus{
		subscribers: make(map[string]core.Handler),
		logger:      logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a dispatch function for an agent id, replacing any
// previous registration. The returned function unsubscribes.
func (b *InMemoryBus) Subscribe(agentID string, dispatch core.Handler) func() {
	b.mu.Lock()
	b.subscribers[agentID] = dispatch
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subscribers, agentID)
		b.mu.Unlock()
	}
}

// Publish routes a message. A direct message with an unknown recipient is an
// error; a broadcast with no listeners is not. Responses returned by handlers
// are published recursively so query/response round trips need no extra
// plumbing. Handler errors are contained by the agents themselves, so an
// error here means routing failed, not handling.
func (b *InMemoryBus) Publish(ctx context.Context, msg core.Message) error {
	if !msg.Kind.Valid() {
		return fmt.Errorf("publish: invalid message kind %q", msg.Kind)
	}
	if msg.IsBroadcast() {
		return b.broadcast(ctx, msg)
	}
	b.mu.RLock()
	dispatch, ok := b.subscribers[msg.Recipient]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("publish: no subscriber for recipient %q", msg.Recipient)
	}
	resp, err := dispatch(ctx, msg)
	if err != nil {
		return err
	}
	if resp != nil {
		return b.Publish(ctx, *resp)
	}
	return nil
}

func (b *InMemoryBus) broadcast(ctx context.Context, msg core.Message) error {
	b.mu.RLock()
	targets := make(map[string]core.Handler, len(b.subscribers))
	for id, d := range b.subscribers {
		if id != msg.Sender {
			targets[id] = d
		}
	}
	b.mu.RUnlock()

	for id, dispatch := range targets {
		delivered := msg
		delivered.Recipient = id
		resp, err := dispatch(ctx, delivered)
		if err != nil {
			b.logger.Warn("broadcast delivery failed", "recipient", id, "kind", string(msg.Kind), "error", err)
			continue
		}
		if resp != nil {
			if err := b.Publish(ctx, *resp); err != nil {
				b.logger.Warn("broadcast response publish failed", "recipient", id, "error", err)
			}
		}
	}
	return nil
}

// SubscriberCount returns how many agents are currently subscribed.
func (b *InMemoryBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
