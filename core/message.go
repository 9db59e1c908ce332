package core

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind is the closed set of message categories exchanged between
// agents. Dispatch is keyed by kind: each agent registers at most one handler
// per kind and a switch over this type should be exhaustive.
type MessageKind string

const (
	// KindCommand instructs the recipient to perform an action.
	KindCommand MessageKind = "command"
	// KindQuery requests information without side effects.
	KindQuery MessageKind = "query"
	// KindResponse answers a prior command or query (see CorrelationID).
	KindResponse MessageKind = "response"
	// KindEvent announces something that happened.
	KindEvent MessageKind = "event"
	// KindStatusUpdate broadcasts an agent's lifecycle status change.
	KindStatusUpdate MessageKind = "status_update"
	// KindErrorReport broadcasts a contained handler or worker failure.
	KindErrorReport MessageKind = "error_report"
	// KindHeartbeat carries a caller-invoked status and metrics snapshot.
	KindHeartbeat MessageKind = "heartbeat"
)

// Valid reports whether k is one of the defined message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindCommand, KindQuery, KindResponse, KindEvent,
		KindStatusUpdate, KindErrorReport, KindHeartbeat:
		return true
	}
	return false
}

// Priority orders competing messages. It is advisory: the in-memory bus
// delivers in publish order regardless.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Message is the envelope exchanged between agents. After emission it should
// be treated as immutable. An empty Recipient means broadcast. A message past
// its expiry is never dispatched (the substrate drops it before any handler
// runs).
type Message struct {
	ID            string         `json:"id"`
	Sender        string         `json:"sender"`
	Recipient     string         `json:"recipient,omitempty"`
	Kind          MessageKind    `json:"kind"`
	Priority      Priority       `json:"priority"`
	Subject       string         `json:"subject"`
	Payload       map[string]any `json:"payload,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	RetryCount    int            `json:"retry_count"`
	EventID       string         `json:"event_id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
}

// NewMessage creates a message authored by sender with normal priority and a
// fresh id and timestamp.
func NewMessage(sender string, kind MessageKind, subject string) Message {
	return Message{
		ID:        NewID(),
		Sender:    sender,
		Kind:      kind,
		Priority:  PriorityNormal,
		Subject:   subject,
		Payload:   map[string]any{},
		Timestamp: time.Now().UTC(),
	}
}

// NewCommand creates a command message addressed to recipient. The command
// verb is placed in the payload under "command".
func NewCommand(sender, recipient, command string) Message {
	m := NewMessage(sender, KindCommand, command)
	m.Recipient = recipient
	m.Payload["command"] = command
	return m
}

// NewEventMessage creates a broadcast event notification. The event type is
// placed in the payload under "event_type".
func NewEventMessage(sender, eventType string) Message {
	m := NewMessage(sender, KindEvent, eventType)
	m.Payload["event_type"] = eventType
	return m
}

// Reply builds a response message addressed back to this message's sender,
// correlated by this message's id. Event and session correlation ids carry
// over so downstream routing stays within the same coordination run.
func (m Message) Reply(sender string, payload map[string]any) Message {
	r := NewMessage(sender, KindResponse, "Re: "+m.Subject)
	r.Recipient = m.Sender
	r.CorrelationID = m.ID
	r.EventID = m.EventID
	r.SessionID = m.SessionID
	if payload != nil {
		r.Payload = payload
	}
	return r
}

// IsExpired reports whether the message's expiry, if set, has elapsed.
func (m Message) IsExpired() bool {
	return m.ExpiresAt != nil && time.Now().UTC().After(*m.ExpiresAt)
}

// IsBroadcast reports whether the message has no specific recipient.
func (m Message) IsBroadcast() bool { return m.Recipient == "" }

// PayloadString returns the string payload value for key, or "" when absent
// or of a different type.
func (m Message) PayloadString(key string) string {
	s, _ := m.Payload[key].(string)
	return s
}

// NewID generates a new unique identifier for messages, sessions and
// checkpoints.
func NewID() string { return uuid.NewString() }
