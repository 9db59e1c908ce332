package core

import (
	"context"
	"sync"
	"time"
)

// AgentStatus is the lifecycle state of a running agent.
type AgentStatus string

const (
	StatusInitializing AgentStatus = "initializing"
	StatusIdle         AgentStatus = "idle"
	StatusActive       AgentStatus = "active"
	// StatusWaiting marks an agent blocked on an unmet dependency.
	StatusWaiting   AgentStatus = "waiting"
	StatusCompleted AgentStatus = "completed"
	StatusError     AgentStatus = "error"
	StatusTimeout   AgentStatus = "timeout"
	StatusPaused    AgentStatus = "paused"
)

// Capability describes something an agent can do. It is declarative metadata
// for introspection and documentation only; nothing at runtime enforces the
// declared inputs, outputs or dependencies.
type Capability struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	InputKinds   []string `json:"input_kinds,omitempty"`
	OutputKinds  []string `json:"output_kinds,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Async        bool     `json:"async"`
	EstimatedMs  int      `json:"estimated_ms,omitempty"`
}

// Metrics accumulates per-agent message counters. It is safe for concurrent
// use; read it via Snapshot.
type Metrics struct {
	mu           sync.Mutex
	sent         int
	received     int
	errors       int
	processing   time.Duration
	lastActivity time.Time
}

// MetricsSnapshot is a point-in-time copy of an agent's counters.
type MetricsSnapshot struct {
	MessagesSent     int           `json:"messages_sent"`
	MessagesReceived int           `json:"messages_received"`
	Errors           int           `json:"errors"`
	ProcessingTime   time.Duration `json:"processing_time"`
	LastActivity     time.Time     `json:"last_activity"`
}

// RecordSent increments the sent counter.
func (m *Metrics) RecordSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	m.lastActivity = time.Now().UTC()
}

// RecordReceived increments the received counter.
func (m *Metrics) RecordReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received++
	m.lastActivity = time.Now().UTC()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
	m.lastActivity = time.Now().UTC()
}

// RecordProcessing adds handler latency to the running total.
func (m *Metrics) RecordProcessing(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processing += d
	m.lastActivity = time.Now().UTC()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		MessagesSent:     m.sent,
		MessagesReceived: m.received,
		Errors:           m.errors,
		ProcessingTime:   m.processing,
		LastActivity:     m.lastActivity,
	}
}

// Handler processes one inbound message and optionally produces a response.
// A nil response means no reply. Errors returned here are contained by the
// dispatching substrate; they never reach the sender.
type Handler func(ctx context.Context, msg Message) (*Message, error)

// MessageBus routes messages between agents. Implementations deliver
// recipient-addressed messages to that subscriber only, and broadcast
// messages to every subscriber except the sender.
type MessageBus interface {
	// Publish delivers msg to its recipient(s). Delivery failures of
	// individual subscribers are contained by the bus.
	Publish(ctx context.Context, msg Message) error

	// Subscribe registers a dispatch function under the given agent id and
	// returns an unsubscribe function.
	Subscribe(agentID string, dispatch Handler) (unsubscribe func())
}
