package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/logging"
)

// BaseAgent provides the shared mechanics of a coordination worker: one
// handler per message kind, expiry enforcement before dispatch, contained
// handler errors reported as ERROR_REPORT broadcasts, a pending outbox
// used until the bus is attached, and lifecycle status broadcasts.
//
// Handler errors never propagate out of Dispatch; they are logged, counted
// and broadcast so the coordinator can decide on recovery.
type BaseAgent struct {
	id   string
	name string

	mu           sync.RWMutex
	status       core.AgentStatus
	handlers     map[core.MessageKind]core.Handler
	capabilities []core.Capability
	bus          core.MessageBus
	unsubscribe  func()
	pending      []core.Message
	onError      []ErrorCallback

	// Coordination context picked up from inbound traffic; stamped onto
	// outgoing messages that do not carry their own ids.
	sessionID string
	eventID   string

	metrics *core.Metrics
	logger  logging.Logger
}

// ErrorCallback observes a contained handler failure together with the
// message that triggered it.
type ErrorCallback func(ctx context.Context, msg core.Message, err error)

// Option configures a BaseAgent.
type Option func(*BaseAgent)

// WithLogger sets the agent logger.
func WithLogger(l logging.Logger) Option {
	return func(a *BaseAgent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCapabilities declares the agent's capabilities. Capabilities are
// descriptive metadata only; nothing enforces them at dispatch time.
func WithCapabilities(caps ...core.Capability) Option {
	return func(a *BaseAgent) {
		a.capabilities = append(a.capabilities, caps...)
	}
}

// WithID overrides the generated agent id.
func WithID(id string) Option {
	return func(a *BaseAgent) {
		if id != "" {
			a.id = id
		}
	}
}

// NewBase creates a BaseAgent in the Initializing status.
func NewBase(name string, opts ...Option) *BaseAgent {
	a := &BaseAgent{
		id:       core.NewID(),
		name:     name,
		status:   core.StatusInitializing,
		handlers: make(map[core.MessageKind]core.Handler),
		metrics:  &core.Metrics{},
		logger:   logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the agent's runtime id.
func (a *BaseAgent) ID() string { return a.id }

// Name returns the agent's logical name.
func (a *BaseAgent) Name() string { return a.name }

// Status returns the current lifecycle status.
func (a *BaseAgent) Status() core.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Capabilities returns a copy of the declared capabilities.
func (a *BaseAgent) Capabilities() []core.Capability {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]core.Capability, len(a.capabilities))
	copy(out, a.capabilities)
	return out
}

// Metrics returns a snapshot of the agent's counters.
func (a *BaseAgent) Metrics() core.MetricsSnapshot { return a.metrics.Snapshot() }

// Register installs the handler for a message kind. Registering the same
// kind again replaces the previous handler.
func (a *BaseAgent) Register(kind core.MessageKind, h core.Handler) error {
	if !kind.Valid() {
		return fmt.Errorf("register: invalid message kind %q", kind)
	}
	if h == nil {
		return fmt.Errorf("register: nil handler for kind %q", kind)
	}
	a.mu.Lock()
	a.handlers[kind] = h
	a.mu.Unlock()
	return nil
}

// OnError registers a callback invoked whenever a handler error is
// contained by Dispatch. Callbacks run after the error is counted and
// before the ERROR_REPORT broadcast.
func (a *BaseAgent) OnError(fn ErrorCallback) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	a.onError = append(a.onError, fn)
	a.mu.Unlock()
}

// Dispatch routes one inbound message to the handler registered for its
// kind. Expired messages are dropped before any handler runs. A missing
// handler drops the message with a debug log. Handler errors are contained:
// the error counter is bumped, registered error callbacks run, an
// ERROR_REPORT broadcast is emitted, and Dispatch itself returns nil error
// so one bad message cannot wedge the bus.
func (a *BaseAgent) Dispatch(ctx context.Context, msg core.Message) (*core.Message, error) {
	if msg.IsExpired() {
		a.logger.Debug("dropping expired message", "agent", a.name, "kind", string(msg.Kind), "message_id", msg.ID)
		return nil, nil
	}
	a.mu.Lock()
	h, ok := a.handlers[msg.Kind]
	if msg.SessionID != "" {
		a.sessionID = msg.SessionID
	}
	if msg.EventID != "" {
		a.eventID = msg.EventID
	}
	a.mu.Unlock()
	if !ok {
		a.logger.Debug("no handler for kind", "agent", a.name, "kind", string(msg.Kind))
		return nil, nil
	}

	a.metrics.RecordReceived()
	start := time.Now()
	resp, err := h(ctx, msg)
	a.metrics.RecordProcessing(time.Since(start))
	if err != nil {
		a.metrics.RecordError()
		a.logger.Error("handler failed", "agent", a.name, "kind", string(msg.Kind), "error", err)
		a.mu.RLock()
		callbacks := make([]ErrorCallback, len(a.onError))
		copy(callbacks, a.onError)
		a.mu.RUnlock()
		for _, fn := range callbacks {
			fn(ctx, msg, err)
		}
		a.reportError(ctx, msg, err)
		return nil, nil
	}
	return resp, nil
}

// reportError broadcasts an ERROR_REPORT describing a contained handler
// failure, classified through the failure taxonomy.
func (a *BaseAgent) reportError(ctx context.Context, cause core.Message, err error) {
	report := core.NewMessage(a.id, core.KindErrorReport, "handler failure")
	report.Payload = map[string]any{
		"agent_name": a.name,
		"kind":       string(core.KindOf(err)),
		"error":      err.Error(),
		"message_id": cause.ID,
	}
	report.Priority = core.PriorityHigh
	report.EventID = cause.EventID
	report.SessionID = cause.SessionID
	if sendErr := a.Send(ctx, report); sendErr != nil {
		a.logger.Warn("error report not delivered", "agent", a.name, "error", sendErr)
	}
}

// Send publishes a message, stamping the agent as sender and filling the
// session and event ids from the agent's coordination context when the
// message does not carry its own. Without an attached bus the message is
// buffered in the pending outbox until FlushPending runs after Start.
func (a *BaseAgent) Send(ctx context.Context, msg core.Message) error {
	msg.Sender = a.id
	a.mu.Lock()
	if msg.SessionID == "" {
		msg.SessionID = a.sessionID
	}
	if msg.EventID == "" {
		msg.EventID = a.eventID
	}
	bus := a.bus
	if bus == nil {
		a.pending = append(a.pending, msg)
		a.mu.Unlock()
		a.logger.Debug("buffered message, bus not attached", "agent", a.name, "kind", string(msg.Kind))
		return nil
	}
	a.mu.Unlock()
	if err := bus.Publish(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	a.metrics.RecordSent()
	return nil
}

// FlushPending publishes every buffered message in arrival order. Messages
// that expired while buffered are dropped. The first publish error stops
// the flush and leaves the remaining messages buffered.
func (a *BaseAgent) FlushPending(ctx context.Context) error {
	a.mu.Lock()
	bus := a.bus
	queued := a.pending
	a.pending = nil
	a.mu.Unlock()
	if bus == nil {
		a.mu.Lock()
		a.pending = append(queued, a.pending...)
		a.mu.Unlock()
		return fmt.Errorf("flush: bus not attached")
	}
	for i, msg := range queued {
		if msg.IsExpired() {
			a.logger.Debug("dropping expired pending message", "agent", a.name, "message_id", msg.ID)
			continue
		}
		if err := bus.Publish(ctx, msg); err != nil {
			a.mu.Lock()
			a.pending = append(queued[i+1:], a.pending...)
			a.mu.Unlock()
			return fmt.Errorf("flush: %w", err)
		}
		a.metrics.RecordSent()
	}
	return nil
}

// PendingCount returns how many messages are buffered.
func (a *BaseAgent) PendingCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.pending)
}

// Initialize attaches the bus and subscribes the agent, moving it to Idle.
func (a *BaseAgent) Initialize(ctx context.Context, bus core.MessageBus) error {
	if bus == nil {
		return fmt.Errorf("initialize: nil bus")
	}
	a.mu.Lock()
	if a.bus != nil {
		a.mu.Unlock()
		return fmt.Errorf("initialize: agent %s already initialized", a.name)
	}
	a.bus = bus
	a.unsubscribe = bus.Subscribe(a.id, a.Dispatch)
	a.status = core.StatusIdle
	a.mu.Unlock()
	a.logger.Info("agent initialized", "agent", a.name, "agent_id", a.id)
	return nil
}

// Start moves the agent to Active, broadcasts a STATUS_UPDATE and flushes
// the pending outbox.
func (a *BaseAgent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.bus == nil {
		a.mu.Unlock()
		return fmt.Errorf("start: agent %s not initialized", a.name)
	}
	a.status = core.StatusActive
	a.mu.Unlock()
	a.broadcastStatus(ctx, core.StatusActive)
	return a.FlushPending(ctx)
}

// Stop broadcasts the final status, unsubscribes from the bus and moves the
// agent to Completed (or Error if stopping on failure).
func (a *BaseAgent) Stop(ctx context.Context, failed bool) error {
	final := core.StatusCompleted
	if failed {
		final = core.StatusError
	}
	a.mu.Lock()
	a.status = final
	unsub := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()
	a.broadcastStatus(ctx, final)
	if unsub != nil {
		unsub()
	}
	a.logger.Info("agent stopped", "agent", a.name, "status", string(final))
	return nil
}

// SetStatus updates the lifecycle status and broadcasts it.
func (a *BaseAgent) SetStatus(ctx context.Context, status core.AgentStatus) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()
	a.broadcastStatus(ctx, status)
}

func (a *BaseAgent) broadcastStatus(ctx context.Context, status core.AgentStatus) {
	msg := core.NewMessage(a.id, core.KindStatusUpdate, "status changed")
	msg.Payload = map[string]any{
		"agent_name": a.name,
		"status":     string(status),
	}
	if err := a.Send(ctx, msg); err != nil {
		a.logger.Warn("status broadcast failed", "agent", a.name, "error", err)
	}
}

// Heartbeat broadcasts a liveness message with the agent's metric counters.
// Cadence is the caller's concern; the agent keeps no timer of its own.
func (a *BaseAgent) Heartbeat(ctx context.Context) error {
	snap := a.metrics.Snapshot()
	msg := core.NewMessage(a.id, core.KindHeartbeat, "heartbeat")
	msg.Payload = map[string]any{
		"agent_name":        a.name,
		"status":            string(a.Status()),
		"messages_sent":     snap.MessagesSent,
		"messages_received": snap.MessagesReceived,
		"errors":            snap.Errors,
	}
	msg.Priority = core.PriorityLow
	return a.Send(ctx, msg)
}
